// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mapping provides bounded, windowed read access to archive files.
//
// A Mapping serves Views: byte windows covering a requested range.  Callers
// must Release every View they obtain, usually with a defer right after a
// successful Map:
//
//	v, err := m.Map(off, n)
//	if err != nil {
//		return err
//	}
//	defer v.Release()
//
// The file-backed Mapping memory-maps page-aligned windows on demand so
// arbitrarily large archives can be read without mapping them whole.
package mapping

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrOutOfBounds is returned when a requested range extends past the
	// end of the mapped file.
	ErrOutOfBounds = errors.New("mapping: range out of bounds")
	// ErrClosed is returned by Map after the Mapping has been closed.
	ErrClosed = errors.New("mapping: closed")
)

// Mapping is a read-only source of Views over a single backing file.
type Mapping interface {
	// Name is the path (or a descriptive name) of the backing file.
	Name() string
	// Size is the total size in bytes of the backing file.
	Size() int64
	// Map returns a View covering exactly [off, off+length).
	Map(off, length int64) (*View, error)
	// Close releases the backing file.  Views still held become empty.
	Close() error
}

// View is a resident byte window of a Mapping.
type View struct {
	off      int64
	data     []byte
	valid    func() bool
	release  func()
	released bool
}

// Bytes returns the contents of the view.  The returned slice must not be
// written to, and must not be used after Release or after the owning
// Mapping is closed; in both cases Bytes returns nil.
func (v *View) Bytes() []byte {
	if v == nil || v.released {
		return nil
	}
	if v.valid != nil && !v.valid() {
		return nil
	}
	return v.data
}

// Offset is the absolute offset of the first byte of the view.
func (v *View) Offset() int64 {
	return v.off
}

// Len is the length of the view in bytes.
func (v *View) Len() int64 {
	return int64(len(v.data))
}

// Contains reports whether [off, off+length) lies within this view.
func (v *View) Contains(off, length int64) bool {
	return v != nil && !v.released && off >= v.off && off+length <= v.off+int64(len(v.data))
}

// Release returns the view to its Mapping.  It is safe to call more than once.
func (v *View) Release() {
	if v == nil || v.released {
		return
	}
	v.released = true
	if v.release != nil {
		v.release()
	}
}

func checkBounds(name string, off, length, size int64) error {
	if off < 0 || length < 0 || off > size || length > size-off {
		return fmt.Errorf("%w: %s [%d, %d) exceeds size %d", ErrOutOfBounds, name, off, off+length, size)
	}
	return nil
}

// Backing selects how a file is made resident.
type Backing int

const (
	// Mmap maps page-aligned windows of the file with mmap(2).
	Mmap Backing = iota
	// Pread reads each requested range into a heap buffer.
	Pread
	// InMemory reads the whole file into memory once.
	InMemory
)

func (b Backing) String() string {
	switch b {
	case Mmap:
		return "mmap"
	case Pread:
		return "pread"
	case InMemory:
		return "memory"
	default:
		return fmt.Sprintf("Backing(%d)", int(b))
	}
}

const (
	// DefaultWindowSize is the minimum size of a memory-mapped window.
	DefaultWindowSize = 1 << 20
	// DefaultIdleWindows is how many unreferenced windows stay mapped.
	DefaultIdleWindows = 8
)

// Option configures Open.
type Option func(*options)

type options struct {
	backing     Backing
	windowSize  int64
	idleWindows int
}

// WithBacking selects the strategy used to make file contents resident.
func WithBacking(b Backing) Option {
	return func(opts *options) {
		opts.backing = b
	}
}

// WithWindowSize sets the minimum size of memory-mapped windows.
func WithWindowSize(n int64) Option {
	return func(opts *options) {
		if n > 0 {
			opts.windowSize = n
		}
	}
}

// WithIdleWindows sets how many released windows are kept mapped for reuse.
// Zero unmaps windows as soon as their last View is released.
func WithIdleWindows(n int) Option {
	return func(opts *options) {
		if n >= 0 {
			opts.idleWindows = n
		}
	}
}

// Open opens the file at path using the configured backing strategy.
func Open(path string, opts ...Option) (Mapping, error) {
	options := options{
		backing:     Mmap,
		windowSize:  DefaultWindowSize,
		idleWindows: DefaultIdleWindows,
	}
	for _, opt := range opts {
		opt(&options)
	}

	switch options.backing {
	case Mmap:
		m, err := openMmap(path, options)
		if err != nil {
			return nil, err
		}
		return m, nil
	case Pread:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("os.Open(%s): %w", path, err)
		}
		stats, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("f.Stat: %w", err)
		}
		return NewReaderAt(path, f, stats.Size(), f), nil
	case InMemory:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("os.ReadFile(%s): %w", path, err)
		}
		return NewMemory(path, data), nil
	default:
		return nil, fmt.Errorf("unknown backing %s", options.backing)
	}
}
