// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package stream provides read cursors over files on disk, ranges of a
// mapping.Mapping and in-memory buffers.
//
// A Stream is created closed; callers Open it with ModeRead, read, and Close
// it.  A Stream bound to a Mapping must not be used after that Mapping is
// closed.
package stream

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrClosed is returned when reading or seeking a stream that is not open.
	ErrClosed = errors.New("stream: not open")
	// ErrUnsupportedMode is returned by Open for any mode other than ModeRead.
	ErrUnsupportedMode = errors.New("stream: unsupported mode")
	// ErrInvalidSeek is returned when a seek would move before the start.
	ErrInvalidSeek = errors.New("stream: invalid seek")
)

// Mode selects how a stream is opened.
type Mode uint

const (
	ModeInvalid Mode = 0
	ModeRead    Mode = 1
	ModeWrite   Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeRead | ModeWrite:
		return "read-write"
	default:
		return fmt.Sprintf("Mode(%d)", uint(m))
	}
}

// Stream is a seekable, read-only byte cursor over a logical range.
type Stream interface {
	io.Reader
	io.Seeker
	io.ReaderAt
	// Open prepares the stream for reading.  Only ModeRead is supported.
	Open(mode Mode) error
	// Size is the logical size of the stream in bytes.
	Size() int64
	// Name describes the stream's source.
	Name() string
	// Close releases resources held by an open stream.  Closing a closed
	// stream is a no-op.
	Close() error
}

func checkMode(mode Mode) error {
	if mode != ModeRead {
		return fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	return nil
}

// seekPos computes the new absolute position for a Seek call.
func seekPos(pos, size, offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = pos + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return pos, fmt.Errorf("%w: whence %d", ErrInvalidSeek, whence)
	}
	if abs < 0 {
		return pos, fmt.Errorf("%w: negative position %d", ErrInvalidSeek, abs)
	}
	return abs, nil
}

// ReadAll opens s, reads it completely and closes it.
func ReadAll(s Stream) ([]byte, error) {
	if err := s.Open(ModeRead); err != nil {
		return nil, err
	}
	defer func() {
		_ = s.Close()
	}()

	buf := make([]byte, s.Size())
	if _, err := io.ReadFull(s, buf); err != nil {
		return nil, fmt.Errorf("io.ReadFull(%s): %w", s.Name(), err)
	}
	return buf, nil
}
