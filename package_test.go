// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfs

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/format"
	"github.com/bpowers/pakfs/format/vpk"
	"github.com/bpowers/pakfs/internal/testutil"
	"github.com/bpowers/pakfs/mapping"
	"github.com/bpowers/pakfs/stream"
)

var (
	aData = []byte("alpha")
	bData = bytes.Repeat([]byte("bravo "), 2000)
	cData = []byte("charlie")
)

func sampleZip() *testutil.ZipBuilder {
	b := &testutil.ZipBuilder{}
	b.Add("a.txt", aData)
	b.Add("dir/b.txt", bData)
	b.Add("dir/sub/c.txt", cData)
	return b
}

func writeZip(t *testing.T, b *testutil.ZipBuilder) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.zip")
	require.NoError(t, b.WriteFile(path))
	return path
}

func openZip(t *testing.T, b *testutil.ZipBuilder, opts ...Option) *Package {
	t.Helper()
	p, err := Open(writeZip(t, b), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})
	return p
}

func lookupFile(t *testing.T, p *Package, path string) *dirtree.File {
	t.Helper()
	it, ok := p.Lookup(path)
	require.True(t, ok, "missing %s", path)
	f, ok := it.(*dirtree.File)
	require.True(t, ok, "%s is not a file", path)
	return f
}

func TestOpen_ZipTree(t *testing.T) {
	for _, backing := range []mapping.Backing{mapping.Mmap, mapping.Pread} {
		t.Run(backing.String(), func(t *testing.T) {
			p := openZip(t, sampleZip(), WithBacking(backing), WithWindowSize(4096))

			assert.True(t, p.IsOpen())
			assert.Equal(t, format.ZIP, p.Type())
			assert.Equal(t, "zip", p.Extension())
			assert.Equal(t, "sample.zip", filepath.Base(p.Name()))

			root := p.Root()
			require.NotNil(t, root)
			require.Equal(t, 2, root.Len())
			assert.Equal(t, 2, root.FolderCount(true))
			assert.Equal(t, 3, root.FileCount(true))

			a, ok := root.Item("a.txt")
			require.True(t, ok)
			assert.Equal(t, dirtree.KindFile, a.Kind())
			dir, ok := root.Item("dir")
			require.True(t, ok)
			assert.Equal(t, dirtree.KindFolder, dir.Kind())

			for path, want := range map[string][]byte{
				"a.txt":         aData,
				"dir/b.txt":     bData,
				"dir/sub/c.txt": cData,
			} {
				got, err := p.ReadFile(path)
				require.NoError(t, err, path)
				assert.Equal(t, want, got, path)

				f := lookupFile(t, p, path)
				v, err := p.FileValidation(f, nil)
				require.NoError(t, err)
				assert.Equal(t, format.OK, v, path)

				size, err := p.FileSize(f)
				require.NoError(t, err)
				assert.Equal(t, int64(len(want)), size)
			}
		})
	}
}

func TestOpen_VPKMissingArchive(t *testing.T) {
	dir := t.TempDir()
	b := &testutil.VPKBuilder{Version: 2}
	b.Add(testutil.VPKEntry{Path: "materials/brick.vmt", Data: bData, Archive: 0})
	b.Add(testutil.VPKEntry{Path: "sound/click.wav", Data: cData, Archive: 3})
	b.Add(testutil.VPKEntry{Path: "scripts/only.txt", Preload: aData, Archive: 3})
	dirPath, err := b.WriteFiles(dir, "pak01")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "pak01_003.vpk")))

	var logs bytes.Buffer
	p, err := Open(dirPath, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()

	assert.Equal(t, format.VPK, p.Type())
	assert.Contains(t, logs.String(), "vpk archive unavailable")

	attrs := p.Attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "Archives", attrs[0].Name)
	assert.Equal(t, uint64(4), attrs[0].Uint())

	d, ok := p.Driver().(*vpk.Driver)
	require.True(t, ok)
	assert.True(t, d.ArchiveAvailable(0))
	assert.False(t, d.ArchiveAvailable(3))

	click := lookupFile(t, p, "sound/click.wav")
	ok, err = p.FileExtractable(click)
	require.NoError(t, err)
	assert.False(t, ok)
	v, err := p.FileValidation(click, nil)
	require.NoError(t, err)
	assert.Equal(t, format.AssumedOK, v)
	_, err = p.ReadFile("sound/click.wav")
	assert.ErrorIs(t, err, format.ErrUnsupported)

	got, err := p.ReadFile("scripts/only.txt")
	require.NoError(t, err)
	assert.Equal(t, aData, got)

	got, err = p.ReadFile("MATERIALS/Brick.VMT")
	require.NoError(t, err)
	assert.Equal(t, bData, got)
}

func TestClose(t *testing.T) {
	p, err := Open(writeZip(t, sampleZip()))
	require.NoError(t, err)

	s, err := p.CreateStream(lookupFile(t, p, "dir/b.txt"))
	require.NoError(t, err)
	require.NoError(t, s.Open(stream.ModeRead))
	buf := make([]byte, 4)
	_, err = s.Read(buf)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.False(t, p.IsOpen())
	assert.Nil(t, p.Root())
	assert.Equal(t, "", p.Name())

	_, err = s.Read(buf)
	assert.ErrorIs(t, err, stream.ErrClosed)

	require.NoError(t, p.Close())

	_, err = p.ReadFile("a.txt")
	assert.ErrorIs(t, err, ErrNotOpen)
	_, ok := p.Lookup("a.txt")
	assert.False(t, ok)
	_, ok = p.Attribute(0)
	assert.False(t, ok)
}

func TestReleaseStream(t *testing.T) {
	p := openZip(t, sampleZip())

	s, err := p.CreateStream(lookupFile(t, p, "a.txt"))
	require.NoError(t, err)
	require.NoError(t, s.Open(stream.ModeRead))
	p.ReleaseStream(s)
	assert.Empty(t, p.streams)

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, stream.ErrClosed)

	// releasing twice is harmless
	p.ReleaseStream(s)
}

func TestForeignItem(t *testing.T) {
	p1 := openZip(t, sampleZip())
	p2 := openZip(t, sampleZip())

	f := lookupFile(t, p1, "a.txt")

	_, err := p2.FileExtractable(f)
	assert.ErrorIs(t, err, ErrForeignItem)
	_, err = p2.FileSize(f)
	assert.ErrorIs(t, err, ErrForeignItem)
	_, err = p2.FileSizeOnDisk(f)
	assert.ErrorIs(t, err, ErrForeignItem)
	_, err = p2.FileValidation(f, nil)
	assert.ErrorIs(t, err, ErrForeignItem)
	_, err = p2.CreateStream(f)
	assert.ErrorIs(t, err, ErrForeignItem)
	_, ok := p2.ItemAttribute(f, 0)
	assert.False(t, ok)
	assert.ErrorIs(t, p2.Extract(f, t.TempDir()), ErrForeignItem)

	ok, err = p1.FileExtractable(f)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_Failure(t *testing.T) {
	garbage := mapping.NewMemory("garbage.zip", bytes.Repeat([]byte("x"), 64))

	p, err := New(format.ZIP)
	require.NoError(t, err)
	assert.Error(t, p.OpenMapping(garbage))
	assert.False(t, p.IsOpen())
	assert.Nil(t, p.Root())
	require.NoError(t, p.Close())

	_, err = OpenMapping(garbage, WithFormat(format.VPK))
	assert.ErrorIs(t, err, format.ErrInvalidFile)

	_, err = Open(filepath.Join(t.TempDir(), "missing.zip"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = New(format.None)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestReopen(t *testing.T) {
	first := openZip(t, sampleZip())
	require.Equal(t, 3, first.Root().FileCount(true))

	other := &testutil.ZipBuilder{}
	other.Add("only.txt", cData)
	require.NoError(t, first.Open(writeZip(t, other)))

	assert.Equal(t, 1, first.Root().FileCount(true))
	_, ok := first.Lookup("a.txt")
	assert.False(t, ok)
	got, err := first.ReadFile("only.txt")
	require.NoError(t, err)
	assert.Equal(t, cData, got)
}

func TestReadFile_Errors(t *testing.T) {
	p := openZip(t, sampleZip())

	_, err := p.ReadFile("nope.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = p.ReadFile("dir/sub")
	assert.ErrorIs(t, err, ErrNotFile)

	got, err := p.ReadFile(`dir\sub\c.txt`)
	require.NoError(t, err)
	assert.Equal(t, cData, got)
}

func TestItemAttributes(t *testing.T) {
	p := openZip(t, sampleZip())

	names := p.ItemAttributeNames()
	attrs := p.ItemAttributes(lookupFile(t, p, "dir/b.txt"))
	require.NotEmpty(t, attrs)
	require.LessOrEqual(t, len(attrs), len(names))
	for _, a := range attrs {
		assert.Contains(t, names, a.Name)
	}

	assert.Len(t, p.Attributes(), len(p.AttributeNames()))
}

func TestFileValidation_Progress(t *testing.T) {
	p := openZip(t, sampleZip())
	f := lookupFile(t, p, "dir/b.txt")

	var last int64
	v, err := p.FileValidation(f, func(got *dirtree.File, done, total int64) bool {
		assert.Same(t, f, got)
		assert.Equal(t, int64(len(bData)), total)
		last = done
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, format.OK, v)
	assert.Equal(t, int64(len(bData)), last)

	v, err = p.FileValidation(f, func(*dirtree.File, int64, int64) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, format.Canceled, v)
}

func TestConcurrentReads(t *testing.T) {
	for _, backing := range []mapping.Backing{mapping.Mmap, mapping.Pread} {
		t.Run(backing.String(), func(t *testing.T) {
			p := openZip(t, sampleZip(), WithBacking(backing), WithWindowSize(4096), WithIdleWindows(2))
			want := map[string][]byte{
				"a.txt":         aData,
				"dir/b.txt":     bData,
				"dir/sub/c.txt": cData,
			}
			b := lookupFile(t, p, "dir/b.txt")

			var eg errgroup.Group
			for w := 0; w < 8; w++ {
				eg.Go(func() error {
					for i := 0; i < 200; i++ {
						for path, data := range want {
							got, err := p.ReadFile(path)
							if err != nil {
								return err
							}
							if !bytes.Equal(data, got) {
								return fmt.Errorf("%s: contents differ", path)
							}
						}
						v, err := p.FileValidation(b, nil)
						if err != nil {
							return err
						}
						if v != format.OK {
							return fmt.Errorf("dir/b.txt: validation %s", v)
						}
					}
					return nil
				})
			}
			require.NoError(t, eg.Wait())
			assert.Empty(t, p.streams)
		})
	}
}
