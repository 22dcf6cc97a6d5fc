// Copyright 2021 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package unsafestring

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestToBytes_Empty(t *testing.T) {
	require.Nil(t, ToBytes(""))
	// a zero-length view into a longer string is still empty
	require.Nil(t, ToBytes("materials"[3:3]))
}

func TestToBytes_SharesMemory(t *testing.T) {
	for _, name := range []string{
		"a",
		"materials/brick.vmt",
		"MODELS/Props/Crate.MDL",
		"😀 unicode",
		strings.Repeat("long/", 100),
	} {
		b := ToBytes(name)
		require.Equal(t, name, string(b))
		require.Equal(t, len(name), len(b))
		require.Equal(t, len(name), cap(b))
		require.Equal(t, unsafe.StringData(name), &b[0])
	}
}

func TestToBytes_NoAllocs(t *testing.T) {
	key := strings.ToLower("Sound/UI/Click.WAV")
	var sum int
	allocs := testing.AllocsPerRun(100, func() {
		sum += len(ToBytes(key))
	})
	require.Zero(t, allocs)
	require.NotZero(t, sum)
}
