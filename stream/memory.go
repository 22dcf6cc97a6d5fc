// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package stream

import (
	"fmt"
	"io"
)

// Memory is a Stream over a byte slice it does not own.
type Memory struct {
	name string
	data []byte
	pos  int64
	open bool
}

var _ Stream = (*Memory)(nil)

// NewMemory returns a closed stream over data.
func NewMemory(name string, data []byte) *Memory {
	return &Memory{
		name: name,
		data: data,
	}
}

func (s *Memory) Name() string {
	return s.name
}

func (s *Memory) Size() int64 {
	return int64(len(s.data))
}

func (s *Memory) Open(mode Mode) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	s.pos = 0
	s.open = true
	return nil
}

func (s *Memory) Read(p []byte) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *Memory) ReadAt(p []byte, off int64) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidSeek, off)
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Memory) Seek(offset int64, whence int) (int64, error) {
	if !s.open {
		return 0, ErrClosed
	}
	pos, err := seekPos(s.pos, int64(len(s.data)), offset, whence)
	if err != nil {
		return s.pos, err
	}
	s.pos = pos
	return pos, nil
}

func (s *Memory) Close() error {
	s.open = false
	return nil
}

// NewNull returns an empty stream, used for zero-length files.
func NewNull(name string) *Memory {
	return NewMemory(name, nil)
}
