// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, n int) (string, []byte) {
	t.Helper()
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	path := filepath.Join(t.TempDir(), "mapping.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func TestOpen_Backings(t *testing.T) {
	path, data := writeTestFile(t, 3*4096+17)

	for _, backing := range []Backing{Mmap, Pread, InMemory} {
		t.Run(backing.String(), func(t *testing.T) {
			m, err := Open(path, WithBacking(backing), WithWindowSize(4096))
			require.NoError(t, err)
			defer func() {
				require.NoError(t, m.Close())
			}()

			require.Equal(t, int64(len(data)), m.Size())
			require.Equal(t, path, m.Name())

			for _, r := range []struct{ off, length int64 }{
				{0, 4},
				{4095, 2},
				{4000, 5000},
				{int64(len(data)) - 1, 1},
				{int64(len(data)), 0},
			} {
				v, err := m.Map(r.off, r.length)
				require.NoError(t, err)
				require.Equal(t, r.off, v.Offset())
				require.Equal(t, r.length, v.Len())
				require.Equal(t, data[r.off:r.off+r.length], v.Bytes()[:r.length])
				v.Release()
				v.Release()
				require.Nil(t, v.Bytes())
			}
		})
	}
}

func TestMap_OutOfBounds(t *testing.T) {
	path, data := writeTestFile(t, 100)

	for _, backing := range []Backing{Mmap, Pread, InMemory} {
		t.Run(backing.String(), func(t *testing.T) {
			m, err := Open(path, WithBacking(backing))
			require.NoError(t, err)
			defer m.Close()

			held, err := m.Map(10, 20)
			require.NoError(t, err)
			defer held.Release()

			for _, r := range []struct{ off, length int64 }{
				{90, 11},
				{101, 0},
				{-1, 4},
				{0, -1},
				{50, 1 << 62},
			} {
				v, err := m.Map(r.off, r.length)
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrOutOfBounds), "unexpected error %v", err)
				require.Nil(t, v)
			}

			// the outstanding view is untouched
			require.Equal(t, data[10:30], held.Bytes())
		})
	}
}

func TestFile_WindowReuse(t *testing.T) {
	path, data := writeTestFile(t, 64*1024)

	m, err := Open(path, WithBacking(Mmap), WithWindowSize(16*1024), WithIdleWindows(2))
	require.NoError(t, err)
	f, ok := m.(*File)
	require.True(t, ok)
	defer f.Close()

	outer, err := f.Map(0, 100)
	require.NoError(t, err)
	require.Equal(t, 1, f.Resident())

	// nested, overlapping requests share the resident window
	inner, err := f.Map(50, 4)
	require.NoError(t, err)
	require.Equal(t, 1, f.Resident())
	require.Equal(t, data[50:54], inner.Bytes())

	inner.Release()
	require.Equal(t, data[:100], outer.Bytes())
	outer.Release()

	// released windows stay resident in the idle cache and are reused
	require.Equal(t, 1, f.Resident())
	nearby, err := f.Map(200, 4)
	require.NoError(t, err)
	require.Equal(t, 1, f.Resident())
	require.Equal(t, data[200:204], nearby.Bytes())
	nearby.Release()

	// ranges far away need new windows; the idle cache bounds residency
	for _, off := range []int64{20 * 1024, 40 * 1024, 60 * 1024} {
		v, err := f.Map(off, 1024)
		require.NoError(t, err)
		require.Equal(t, data[off:off+1024], v.Bytes())
		v.Release()
	}
	assert.LessOrEqual(t, f.Resident(), 2)
}

func TestFile_NoIdleWindows(t *testing.T) {
	path, _ := writeTestFile(t, 8192)

	m, err := Open(path, WithIdleWindows(0))
	require.NoError(t, err)
	f := m.(*File)
	defer f.Close()

	v, err := f.Map(0, 16)
	require.NoError(t, err)
	require.Equal(t, 1, f.Resident())
	v.Release()
	require.Equal(t, 0, f.Resident())
}

func TestMap_ZeroLength(t *testing.T) {
	path, _ := writeTestFile(t, 4096)

	for _, backing := range []Backing{Mmap, Pread, InMemory} {
		t.Run(backing.String(), func(t *testing.T) {
			m, err := Open(path, WithBacking(backing))
			require.NoError(t, err)
			defer m.Close()

			for _, off := range []int64{0, 100, 4096} {
				v, err := m.Map(off, 0)
				require.NoError(t, err)
				require.NotNil(t, v.Bytes())
				require.Empty(t, v.Bytes())
				v.Release()
			}
		})
	}
}

func TestFile_ConcurrentMap(t *testing.T) {
	path, data := writeTestFile(t, 256*1024)

	m, err := Open(path, WithBacking(Mmap), WithWindowSize(4096), WithIdleWindows(4))
	require.NoError(t, err)
	defer m.Close()

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				off := int64((w*7919 + i*4099) % (len(data) - 64))
				v, err := m.Map(off, 64)
				if err != nil {
					errs <- err
					return
				}
				if !assert.Equal(t, data[off:off+64], v.Bytes()) {
					v.Release()
					return
				}
				v.Release()
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, m.(*File).Resident(), 4)
}

func TestClose_InvalidatesViews(t *testing.T) {
	path, _ := writeTestFile(t, 4096)

	for _, backing := range []Backing{Mmap, Pread, InMemory} {
		t.Run(backing.String(), func(t *testing.T) {
			m, err := Open(path, WithBacking(backing))
			require.NoError(t, err)

			v, err := m.Map(0, 16)
			require.NoError(t, err)
			require.NotNil(t, v.Bytes())

			require.NoError(t, m.Close())
			require.NoError(t, m.Close())
			require.Nil(t, v.Bytes())
			v.Release()

			_, err = m.Map(0, 1)
			require.True(t, errors.Is(err, ErrClosed))
		})
	}
}

func TestOpen_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.bin")
	for _, backing := range []Backing{Mmap, Pread, InMemory} {
		m, err := Open(missing, WithBacking(backing))
		require.Error(t, err)
		require.Nil(t, m)
		require.True(t, errors.Is(err, os.ErrNotExist))
	}
}

func TestSet(t *testing.T) {
	s := NewSet(4)
	require.Equal(t, 4, s.Len())
	require.Zero(t, s.Count())

	s.Put(1, NewMemory("one", []byte("hello")))
	s.Put(3, NewMemory("three", []byte("hi")))
	s.Put(7, NewMemory("seven", nil))

	require.Equal(t, 2, s.Count())
	require.False(t, s.Available(0))
	require.True(t, s.Available(1))
	require.False(t, s.Available(7))
	require.Nil(t, s.Get(0))
	require.Equal(t, int64(5), s.Size(1))
	require.Equal(t, int64(2), s.Size(3))
	require.Zero(t, s.Size(2))

	m := s.Get(1)
	require.NoError(t, s.Close())
	require.Zero(t, s.Count())
	_, err := m.Map(0, 1)
	require.True(t, errors.Is(err, ErrClosed))
}
