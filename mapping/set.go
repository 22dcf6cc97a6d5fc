// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mapping

import (
	"errors"

	"github.com/bpowers/pakfs/internal/bitset"
)

// Set is an ordered collection of Mappings over sibling files of a split
// archive.  Slots whose file could not be opened are empty.
type Set struct {
	maps      []Mapping
	available *bitset.Bitset
}

// NewSet returns a Set with n empty slots.
func NewSet(n int) *Set {
	return &Set{
		maps:      make([]Mapping, n),
		available: bitset.New(int64(n)),
	}
}

// Len is the number of slots in the set.
func (s *Set) Len() int {
	return len(s.maps)
}

// Put stores m in slot i.  Out of range slots are ignored.
func (s *Set) Put(i int, m Mapping) {
	if i < 0 || i >= len(s.maps) || m == nil {
		return
	}
	s.maps[i] = m
	s.available.Set(int64(i))
}

// Available reports whether slot i holds an open Mapping.
func (s *Set) Available(i int) bool {
	return i >= 0 && s.available.IsSet(int64(i))
}

// Count returns how many slots hold an open Mapping.
func (s *Set) Count() int {
	return int(s.available.Count())
}

// Get returns the Mapping in slot i, or nil.
func (s *Set) Get(i int) Mapping {
	if !s.Available(i) {
		return nil
	}
	return s.maps[i]
}

// Size returns the size of the file in slot i, or 0 if it is unavailable.
func (s *Set) Size(i int) int64 {
	if m := s.Get(i); m != nil {
		return m.Size()
	}
	return 0
}

// Close closes every open Mapping in the set.
func (s *Set) Close() error {
	var errs []error
	for i, m := range s.maps {
		if m == nil {
			continue
		}
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
		s.maps[i] = nil
		s.available.Clear(int64(i))
	}
	return errors.Join(errs...)
}
