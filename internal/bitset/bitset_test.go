// Copyright 2021 The pakfs Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitset(t *testing.T) {
	b := New(128)

	require.Equal(t, 2, len(b.bits))
	require.Equal(t, int64(128), b.Len())

	// should do nothing
	b.Set(132)
	b.Set(-1)

	zero := []uint64{0, 0}
	require.Equal(t, zero, b.bits)
	require.Zero(t, b.Count())

	require.False(t, b.IsSet(7))
	b.Set(7)
	require.True(t, b.IsSet(7))
	b.Set(8)
	require.True(t, b.IsSet(8))
	require.Equal(t, int64(2), b.Count())
	b.Clear(7)
	require.False(t, b.IsSet(7))
	require.True(t, b.IsSet(8))
	b.Clear(8)
	require.Equal(t, zero, b.bits)

	for i := int64(0); i < 128; i++ {
		b.Set(i)
	}

	full := []uint64{^uint64(0), ^uint64(0)}
	require.Equal(t, full, b.bits)
	require.Equal(t, int64(128), b.Count())

	// should do nothing
	b.Clear(137)
	require.Equal(t, full, b.bits)
	require.False(t, b.IsSet(-3))
}

func TestBitset_Empty(t *testing.T) {
	b := New(0)
	b.Set(0)
	require.False(t, b.IsSet(0))
	require.Zero(t, b.Count())
}
