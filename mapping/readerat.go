// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mapping

import (
	"errors"
	"fmt"
	"io"
)

// ReaderAt is a Mapping that serves each View from a positioned read into
// a freshly allocated buffer.  It works over any io.ReaderAt, including
// files that are themselves streams into another archive.
type ReaderAt struct {
	name   string
	r      io.ReaderAt
	size   int64
	closer io.Closer
	closed bool
}

var _ Mapping = (*ReaderAt)(nil)

// NewReaderAt returns a Mapping over r, which holds size bytes.  If closer
// is non-nil it is closed along with the Mapping.
func NewReaderAt(name string, r io.ReaderAt, size int64, closer io.Closer) *ReaderAt {
	return &ReaderAt{
		name:   name,
		r:      r,
		size:   size,
		closer: closer,
	}
}

func (m *ReaderAt) Name() string {
	return m.name
}

func (m *ReaderAt) Size() int64 {
	return m.size
}

func (m *ReaderAt) Map(off, length int64) (*View, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if err := checkBounds(m.name, off, length, m.size); err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	n, err := m.r.ReadAt(buf, off)
	// io.ReaderAt may return io.EOF alongside a full read at the end of input
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, fmt.Errorf("ReadAt(%s, off: %d, len: %d): %w", m.name, off, length, err)
	} else if int64(n) != length {
		return nil, fmt.Errorf("short read of %d ReadAt(%s, off: %d, len: %d)", n, m.name, off, length)
	}

	return &View{
		off:   off,
		data:  buf,
		valid: func() bool { return !m.closed },
	}, nil
}

func (m *ReaderAt) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.closer != nil {
		return m.closer.Close()
	}
	return nil
}

// Memory is a Mapping over an in-memory byte slice.
type Memory struct {
	name   string
	data   []byte
	closed bool
}

var _ Mapping = (*Memory)(nil)

// NewMemory returns a Mapping over data.  data must not be modified while
// the Mapping is open.
func NewMemory(name string, data []byte) *Memory {
	return &Memory{
		name: name,
		data: data,
	}
}

func (m *Memory) Name() string {
	return m.name
}

func (m *Memory) Size() int64 {
	return int64(len(m.data))
}

func (m *Memory) Map(off, length int64) (*View, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if err := checkBounds(m.name, off, length, int64(len(m.data))); err != nil {
		return nil, err
	}
	return &View{
		off:   off,
		data:  m.data[off : off+length : off+length],
		valid: func() bool { return !m.closed },
	}, nil
}

func (m *Memory) Close() error {
	m.closed = true
	return nil
}
