// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package stream

import (
	"fmt"
	"io"
	"os"
)

// File is a Stream over a raw file handle.  It is used for data that lives
// in an independent file, such as the members of a split archive.
type File struct {
	path string
	f    *os.File
	size int64
}

var _ Stream = (*File)(nil)

// NewFile returns a closed stream over the file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (s *File) Name() string {
	return s.path
}

// Size is the size of the file as of the last Open.
func (s *File) Size() int64 {
	return s.size
}

func (s *File) Open(mode Mode) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	if s.f != nil {
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("f.Seek: %w", err)
		}
		return nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("os.Open(%s): %w", s.path, err)
	}
	stats, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("f.Stat: %w", err)
	}
	if stats.IsDir() {
		_ = f.Close()
		return fmt.Errorf("open %s: is a directory", s.path)
	}
	s.f = f
	s.size = stats.Size()
	return nil
}

func (s *File) Read(p []byte) (int, error) {
	if s.f == nil {
		return 0, ErrClosed
	}
	return s.f.Read(p)
}

func (s *File) ReadAt(p []byte, off int64) (int, error) {
	if s.f == nil {
		return 0, ErrClosed
	}
	return s.f.ReadAt(p, off)
}

func (s *File) Seek(offset int64, whence int) (int64, error) {
	if s.f == nil {
		return 0, ErrClosed
	}
	pos, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("f.Seek: %w", err)
	}
	abs, err := seekPos(pos, s.size, offset, whence)
	if err != nil {
		return pos, err
	}
	return s.f.Seek(abs, io.SeekStart)
}

func (s *File) Close() error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	if err := f.Close(); err != nil {
		return fmt.Errorf("f.Close: %w", err)
	}
	return nil
}
