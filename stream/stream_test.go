// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package stream

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/pakfs/mapping"
)

func testBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestMapping_ReadAcrossWindows(t *testing.T) {
	data := testBytes(10000)
	m := mapping.NewMemory("mem", data)

	s := NewMapping(m, 100, 5000)
	s.SetWindow(333)

	_, err := s.Read(make([]byte, 1))
	require.True(t, errors.Is(err, ErrClosed))

	require.NoError(t, s.Open(ModeRead))
	require.Equal(t, int64(5000), s.Size())
	require.Equal(t, int64(100), s.Base())

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, data[100:5100], got)

	// at end of stream
	n, err := s.Read(make([]byte, 10))
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)

	pos, err := s.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(4990), pos)
	buf := make([]byte, 100)
	n, err = s.Read(buf)
	require.NoError(t, err)
	// reads never cross the logical size even though the mapping is larger
	require.Equal(t, 10, n)
	require.Equal(t, data[5090:5100], buf[:n])

	n, err = s.ReadAt(buf[:20], 4995)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 5, n)
	require.Equal(t, data[5095:5100], buf[:5])

	_, err = s.Seek(-1, io.SeekStart)
	require.True(t, errors.Is(err, ErrInvalidSeek))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestMapping_OpenOutOfBounds(t *testing.T) {
	m := mapping.NewMemory("mem", testBytes(10))
	s := NewMapping(m, 5, 6)
	err := s.Open(ModeRead)
	require.True(t, errors.Is(err, mapping.ErrOutOfBounds))
}

func TestMapping_ClosedMapping(t *testing.T) {
	m := mapping.NewMemory("mem", testBytes(100))
	s := NewMapping(m, 0, 100)
	require.NoError(t, s.Open(ModeRead))

	buf := make([]byte, 10)
	_, err := s.Read(buf)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	_, err = s.Read(buf)
	require.True(t, errors.Is(err, mapping.ErrClosed), "unexpected error %v", err)
}

func TestOpen_Modes(t *testing.T) {
	for _, s := range []Stream{
		NewMemory("mem", nil),
		NewMapping(mapping.NewMemory("mem", nil), 0, 0),
		NewFile("/nonexistent"),
		NewMulti("multi"),
	} {
		err := s.Open(ModeWrite)
		require.True(t, errors.Is(err, ErrUnsupportedMode))
		err = s.Open(ModeRead | ModeWrite)
		require.True(t, errors.Is(err, ErrUnsupportedMode))
	}
}

func TestFile(t *testing.T) {
	data := testBytes(4096)
	path := filepath.Join(t.TempDir(), "member_000.vpk")
	require.NoError(t, os.WriteFile(path, data, 0644))

	s := NewFile(path)
	require.Equal(t, path, s.Name())
	require.NoError(t, s.Open(ModeRead))
	require.Equal(t, int64(4096), s.Size())

	got, err := ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, data, got)

	require.NoError(t, s.Open(ModeRead))
	_, err = s.Seek(4000, io.SeekStart)
	require.NoError(t, err)
	got, err = io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, data[4000:], got)

	buf := make([]byte, 16)
	n, err := s.ReadAt(buf, 16)
	require.NoError(t, err)
	require.Equal(t, data[16:32], buf[:n])
	require.NoError(t, s.Close())

	_, err = s.Read(buf)
	require.True(t, errors.Is(err, ErrClosed))

	missing := NewFile(filepath.Join(t.TempDir(), "missing.vpk"))
	require.True(t, errors.Is(missing.Open(ModeRead), os.ErrNotExist))
}

func TestMemoryAndNull(t *testing.T) {
	s := NewMemory("preload", []byte("hello, world"))
	got, err := ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "hello, world", string(got))

	null := NewNull("empty")
	require.NoError(t, null.Open(ModeRead))
	require.Zero(t, null.Size())
	n, err := null.Read(make([]byte, 4))
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)
	require.NoError(t, null.Close())
}

func TestMulti(t *testing.T) {
	data := testBytes(3000)
	m := mapping.NewMemory("archive", data)

	s := NewMulti("joined",
		NewMemory("preload", []byte("PRELOAD")),
		NewMapping(m, 1000, 2000),
		NewNull("empty"),
	)
	require.Equal(t, int64(2007), s.Size())

	got, err := ReadAll(s)
	require.NoError(t, err)
	want := append([]byte("PRELOAD"), data[1000:3000]...)
	require.Equal(t, want, got)

	require.NoError(t, s.Open(ModeRead))
	buf := make([]byte, 10)
	n, err := s.ReadAt(buf, 3)
	require.NoError(t, err)
	require.Equal(t, want[3:13], buf[:n])

	_, err = s.Seek(2000, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, want[2000:], rest)
	require.NoError(t, s.Close())
}
