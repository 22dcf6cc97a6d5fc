// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dirtree

import (
	"errors"
	"io/fs"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func childNames(f *Folder) []string {
	var names []string
	for _, child := range f.Children() {
		names = append(names, child.Name())
	}
	sort.Strings(names)
	return names
}

func TestInsert_BuildsFolders(t *testing.T) {
	root := NewRoot(false)
	for i, p := range []string{"a.txt", "dir/b.txt", `dir\sub/c.txt`} {
		f, err := root.Insert(p, i, NoID)
		require.NoError(t, err)
		require.Equal(t, i, f.Ref())
		require.Equal(t, NoID, f.ID())
		require.Same(t, root, f.Root())
	}

	require.Equal(t, []string{"a.txt", "dir"}, childNames(root))
	dir, ok := root.Item("dir")
	require.True(t, ok)
	require.Equal(t, KindFolder, dir.Kind())
	require.Equal(t, []string{"b.txt", "sub"}, childNames(dir.(*Folder)))

	sub, ok := root.ItemByPath("dir/sub")
	require.True(t, ok)
	require.Equal(t, []string{"c.txt"}, childNames(sub.(*Folder)))
	require.Equal(t, "dir/sub", sub.Path())

	c, ok := root.ItemByPath(`dir\sub\c.txt`)
	require.True(t, ok)
	require.Equal(t, "dir/sub/c.txt", c.Path())
	require.Same(t, sub, Item(c.Parent()))

	// repeated prefixes never create duplicate folders
	require.Equal(t, 2, root.FolderCount(true))
	require.Equal(t, 3, root.FileCount(true))
	require.Equal(t, 1, root.FileCount(false))
	require.Equal(t, 1, root.FolderCount(false))
}

func TestInsert_Conflicts(t *testing.T) {
	root := NewRoot(false)
	_, err := root.Insert("data", 0, NoID)
	require.NoError(t, err)

	// a path segment that is already a file
	_, err = root.Insert("data/x.bin", 1, NoID)
	require.True(t, errors.Is(err, ErrNameConflict))

	// a file that duplicates an existing file or folder
	_, err = root.Insert("data", 2, NoID)
	require.True(t, errors.Is(err, ErrNameConflict))
	_, err = root.Insert("dir/f", 3, NoID)
	require.NoError(t, err)
	_, err = root.Insert("dir", 4, NoID)
	require.True(t, errors.Is(err, ErrNameConflict))

	_, err = root.Insert("//", 5, NoID)
	require.True(t, errors.Is(err, ErrInvalidPath))

	require.Equal(t, 2, root.Len())
}

func TestFoldCase(t *testing.T) {
	folded := NewRoot(true)
	_, err := folded.Insert("Materials/Brick.vmt", 0, NoID)
	require.NoError(t, err)
	_, err = folded.Insert("materials/wood.vmt", 1, NoID)
	require.NoError(t, err)
	require.Equal(t, 1, folded.Len())

	it, ok := folded.ItemByPath("MATERIALS/BRICK.VMT")
	require.True(t, ok)
	require.Equal(t, "Brick.vmt", it.Name())

	_, err = folded.Insert("materials/BRICK.vmt", 2, NoID)
	require.True(t, errors.Is(err, ErrNameConflict))

	exact := NewRoot(false)
	_, err = exact.Insert("Materials/Brick.vmt", 0, NoID)
	require.NoError(t, err)
	_, err = exact.Insert("materials/wood.vmt", 1, NoID)
	require.NoError(t, err)
	require.Equal(t, 2, exact.Len())
	_, ok = exact.ItemByPath("MATERIALS/BRICK.VMT")
	require.False(t, ok)
}

func TestEnsureFolder(t *testing.T) {
	root := NewRoot(false)
	f, err := root.EnsureFolder("a/b/")
	require.NoError(t, err)
	require.Equal(t, "a/b", f.Path())

	again, err := root.EnsureFolder(`a\b`)
	require.NoError(t, err)
	require.Same(t, f, again)

	same, err := root.EnsureFolder("")
	require.NoError(t, err)
	require.Same(t, root, same)
	require.Equal(t, "", root.Path())
	require.Equal(t, RootName, root.Name())
}

func TestItemByPath(t *testing.T) {
	root := NewRoot(false)
	_, err := root.Insert("a/b/c.txt", 0, NoID)
	require.NoError(t, err)

	it, ok := root.ItemByPath("")
	require.True(t, ok)
	require.Same(t, Item(root), it)

	it, ok = root.ItemByPath("a/./b/../b/c.txt")
	require.True(t, ok)
	require.Equal(t, "a/b/c.txt", it.Path())

	_, ok = root.ItemByPath("a/b/c.txt/d")
	require.False(t, ok)
	_, ok = root.ItemByPath("missing")
	require.False(t, ok)
}

func TestWalkAndFind(t *testing.T) {
	root := NewRoot(true)
	for i, p := range []string{"maps/de_dust.bsp", "maps/cs_office.bsp", "sound/ui/click.wav", "readme.TXT"} {
		_, err := root.Insert(p, i, NoID)
		require.NoError(t, err)
	}

	var visited []string
	require.NoError(t, root.Walk(func(it Item) error {
		visited = append(visited, it.Path())
		if it.Name() == "sound" {
			return fs.SkipDir
		}
		return nil
	}))
	assert.Equal(t, []string{"", "maps", "maps/de_dust.bsp", "maps/cs_office.bsp", "sound", "readme.TXT"}, visited)

	stop := errors.New("stop")
	var n int
	err := root.Walk(func(Item) error {
		if n++; n == 3 {
			return stop
		}
		return nil
	})
	require.True(t, errors.Is(err, stop))

	found, err := root.Find("*.bsp")
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = root.Find("*.txt", KindFile)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "readme.TXT", found[0].Name())

	found, err = root.Find("*", KindFolder)
	require.NoError(t, err)
	require.Len(t, found, 3)

	_, err = root.Find("[")
	require.Error(t, err)
}

func TestSort(t *testing.T) {
	root := NewRoot(false)
	for i, p := range []string{"z.txt", "b/x", "a.txt", "a/y"} {
		_, err := root.Insert(p, i, NoID)
		require.NoError(t, err)
	}
	root.Sort(true)

	var names []string
	for _, child := range root.Children() {
		names = append(names, child.Name())
	}
	require.Equal(t, []string{"a", "b", "a.txt", "z.txt"}, names)

	// lookups still work after reordering
	it, ok := root.Item("z.txt")
	require.True(t, ok)
	require.Equal(t, 0, it.(*File).Ref())
}
