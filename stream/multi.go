// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package stream

import (
	"errors"
	"fmt"
	"io"
)

// Multi is the logical concatenation of several streams, for files whose
// bytes are split across regions (e.g. inline preload data followed by
// data in an archive member).
type Multi struct {
	name    string
	parts   []Stream
	offsets []int64
	size    int64
	pos     int64
	open    bool
}

var _ Stream = (*Multi)(nil)

// NewMulti returns a closed stream reading parts back to back.
func NewMulti(name string, parts ...Stream) *Multi {
	return &Multi{
		name:  name,
		parts: parts,
	}
}

func (s *Multi) Name() string {
	return s.name
}

// Size is the sum of the part sizes.  It is only known once the stream has
// been opened, as some parts learn their size on Open.
func (s *Multi) Size() int64 {
	if !s.open {
		var size int64
		for _, part := range s.parts {
			size += part.Size()
		}
		return size
	}
	return s.size
}

func (s *Multi) Open(mode Mode) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	s.offsets = s.offsets[:0]
	s.size = 0
	for i, part := range s.parts {
		if err := part.Open(mode); err != nil {
			for _, opened := range s.parts[:i] {
				_ = opened.Close()
			}
			return fmt.Errorf("part %d (%s): %w", i, part.Name(), err)
		}
		s.offsets = append(s.offsets, s.size)
		s.size += part.Size()
	}
	s.pos = 0
	s.open = true
	return nil
}

func (s *Multi) Read(p []byte) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	if s.pos >= s.size {
		return 0, io.EOF
	}
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (s *Multi) ReadAt(p []byte, off int64) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidSeek, off)
	}

	var n int
	for i, part := range s.parts {
		if n == len(p) {
			break
		}
		start, end := s.offsets[i], s.offsets[i]+part.Size()
		cur := off + int64(n)
		if cur >= end {
			continue
		}
		want := p[n:]
		if int64(len(want)) > end-cur {
			want = want[:end-cur]
		}
		k, err := part.ReadAt(want, cur-start)
		n += k
		if err != nil && !errors.Is(err, io.EOF) {
			return n, err
		}
		if k < len(want) {
			return n, io.ErrUnexpectedEOF
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Multi) Seek(offset int64, whence int) (int64, error) {
	if !s.open {
		return 0, ErrClosed
	}
	pos, err := seekPos(s.pos, s.size, offset, whence)
	if err != nil {
		return s.pos, err
	}
	s.pos = pos
	return pos, nil
}

func (s *Multi) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	var errs []error
	for _, part := range s.parts {
		if err := part.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
