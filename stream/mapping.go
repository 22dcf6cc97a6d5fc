// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package stream

import (
	"fmt"
	"io"

	"github.com/bpowers/pakfs/mapping"
)

// DefaultWindow is how many bytes a Mapping stream maps at a time.
const DefaultWindow = 64 * 1024

// Mapping is a Stream over [base, base+size) of a mapping.Mapping.  Reads
// are served from a View that is re-mapped whenever the cursor moves past
// its bounds.
type Mapping struct {
	m      mapping.Mapping
	base   int64
	size   int64
	window int64
	pos    int64
	view   *mapping.View
	open   bool
}

var _ Stream = (*Mapping)(nil)

// NewMapping returns a closed stream over size bytes of m starting at base.
func NewMapping(m mapping.Mapping, base, size int64) *Mapping {
	return &Mapping{
		m:      m,
		base:   base,
		size:   size,
		window: DefaultWindow,
	}
}

// SetWindow changes how many bytes are mapped per View.
func (s *Mapping) SetWindow(n int64) {
	if n > 0 {
		s.window = n
	}
}

func (s *Mapping) Name() string {
	return s.m.Name()
}

func (s *Mapping) Size() int64 {
	return s.size
}

// Base is the absolute offset of the stream's first byte in its Mapping.
func (s *Mapping) Base() int64 {
	return s.base
}

func (s *Mapping) Open(mode Mode) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	if s.base < 0 || s.size < 0 || s.base+s.size > s.m.Size() {
		return fmt.Errorf("%w: stream [%d, %d) of %s (size %d)", mapping.ErrOutOfBounds, s.base, s.base+s.size, s.m.Name(), s.m.Size())
	}
	s.release()
	s.pos = 0
	s.open = true
	return nil
}

func (s *Mapping) release() {
	if s.view != nil {
		s.view.Release()
		s.view = nil
	}
}

func (s *Mapping) Read(p []byte) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	if s.pos >= s.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	abs := s.base + s.pos
	if !s.view.Contains(abs, 1) {
		s.release()
		length := s.size - s.pos
		if length > s.window {
			length = s.window
		}
		v, err := s.m.Map(abs, length)
		if err != nil {
			return 0, fmt.Errorf("m.Map(%d, %d): %w", abs, length, err)
		}
		s.view = v
	}

	data := s.view.Bytes()
	if data == nil {
		return 0, fmt.Errorf("%w: %s", mapping.ErrClosed, s.m.Name())
	}
	data = data[abs-s.view.Offset():]
	if remaining := s.size - s.pos; int64(len(data)) > remaining {
		data = data[:remaining]
	}
	n := copy(p, data)
	s.pos += int64(n)
	return n, nil
}

func (s *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidSeek, off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	length := int64(len(p))
	if remaining := s.size - off; length > remaining {
		length = remaining
	}
	v, err := s.m.Map(s.base+off, length)
	if err != nil {
		return 0, fmt.Errorf("m.Map(%d, %d): %w", s.base+off, length, err)
	}
	defer v.Release()

	n := copy(p, v.Bytes())
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Mapping) Seek(offset int64, whence int) (int64, error) {
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

func (s *Mapping) Close() error {
	s.release()
	s.open = false
	return nil
}
