// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build unix

package mapping

import (
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sys/unix"
)

// window is a single mmap'd region.  refs counts the outstanding Views.
type window struct {
	id   uint64
	off  int64
	data []byte
	refs int
	dead bool
}

func (w *window) covers(off, length int64) bool {
	return !w.dead && off >= w.off && off+length <= w.off+int64(len(w.data))
}

func (w *window) unmap() error {
	if w.dead {
		return nil
	}
	w.dead = true
	data := w.data
	w.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// File is a Mapping that memory-maps windows of an *os.File.  It is safe
// for concurrent use; Views may be created and released from several
// goroutines.
type File struct {
	f          *os.File
	size       int64
	pageSize   int64
	windowSize int64

	mu     sync.Mutex
	nextID uint64
	active     []*window
	// idle holds windows with no outstanding Views so that short-lived
	// probes of nearby ranges reuse an existing mapping.
	idle   *lru.Cache[uint64, *window]
	closed bool
}

var _ Mapping = (*File)(nil)

func openMmap(path string, opts options) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	stats, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}

	m := &File{
		f:          f,
		size:       stats.Size(),
		pageSize:   int64(unix.Getpagesize()),
		windowSize: opts.windowSize,
	}
	if opts.idleWindows > 0 {
		// only windows nobody references are ever in the cache; a window
		// revived by Map has refs > 0 when it is removed and must survive.
		m.idle, err = lru.NewWithEvict[uint64, *window](opts.idleWindows, func(_ uint64, w *window) {
			if w.refs == 0 {
				_ = w.unmap()
			}
		})
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("lru.NewWithEvict: %w", err)
		}
	}
	return m, nil
}

func (m *File) Name() string {
	return m.f.Name()
}

func (m *File) Size() int64 {
	return m.size
}

// Resident returns the number of windows currently mapped, in use or idle.
func (m *File) Resident() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.active)
	if m.idle != nil {
		n += m.idle.Len()
	}
	return n
}

func (m *File) Map(off, length int64) (*View, error) {
	if err := checkBounds(m.Name(), off, length, m.size); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if length == 0 {
		return &View{off: off, data: []byte{}, valid: m.open}, nil
	}

	w := m.lookup(off, length)
	if w == nil {
		var err error
		if w, err = m.mapWindow(off, length); err != nil {
			return nil, err
		}
		m.active = append(m.active, w)
	}

	start := off - w.off
	return &View{
		off:     off,
		data:    w.data[start : start+length : start+length],
		valid:   func() bool { return m.alive(w) },
		release: func() { m.release(w) },
	}, nil
}

func (m *File) open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *File) alive(w *window) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !w.dead
}

// lookup finds a resident window covering the range and takes a reference
// on it, moving it out of the idle cache if necessary.  m.mu must be held.
func (m *File) lookup(off, length int64) *window {
	for _, w := range m.active {
		if w.covers(off, length) {
			w.refs++
			return w
		}
	}
	if m.idle == nil {
		return nil
	}
	for _, id := range m.idle.Keys() {
		w, ok := m.idle.Peek(id)
		if !ok || !w.covers(off, length) {
			continue
		}
		w.refs++
		m.idle.Remove(id)
		m.active = append(m.active, w)
		return w
	}
	return nil
}

func (m *File) mapWindow(off, length int64) (*window, error) {
	start := off &^ (m.pageSize - 1)
	end := off + length
	if end-start < m.windowSize {
		end = start + m.windowSize
	}
	if end > m.size {
		end = m.size
	}

	data, err := unix.Mmap(int(m.f.Fd()), start, int(end-start), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap(%s, %d, %d): %w", m.Name(), start, end-start, err)
	}
	if err := unix.Madvise(data, unix.MADV_SEQUENTIAL); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("madvise: %w", err)
	}

	m.nextID++
	return &window{
		id:   m.nextID,
		off:  start,
		data: data,
		refs: 1,
	}, nil
}

func (m *File) release(w *window) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.refs--; w.refs > 0 || w.dead {
		return
	}
	for i, aw := range m.active {
		if aw == w {
			m.active = append(m.active[:i], m.active[i+1:]...)
			break
		}
	}
	if m.idle != nil {
		m.idle.Add(w.id, w)
		return
	}
	_ = w.unmap()
}

func (m *File) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for _, w := range m.active {
		if err := w.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.active = nil
	if m.idle != nil {
		m.idle.Purge()
	}
	if err := m.f.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("f.Close: %w", err)
	}
	return firstErr
}
