// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfs

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/stream"
)

var errIsDir = errors.New("is a directory")

// FS is a read-only io/fs view of an open Package.  Paths are slash
// separated and relative to the package root.
type FS struct {
	p *Package
}

var (
	_ fs.FS         = (*FS)(nil)
	_ fs.StatFS     = (*FS)(nil)
	_ fs.ReadDirFS  = (*FS)(nil)
	_ fs.ReadFileFS = (*FS)(nil)
)

// FS returns an fs.FS over p.  It is only usable while p is open.
func (p *Package) FS() *FS {
	return &FS{p: p}
}

func (fsys *FS) lookup(op, name string) (dirtree.Item, error) {
	if !fs.ValidPath(name) || strings.Contains(name, `\`) {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	if fsys.p.root == nil {
		return nil, &fs.PathError{Op: op, Path: name, Err: ErrNotOpen}
	}
	if name == "." {
		return fsys.p.root, nil
	}
	it, ok := fsys.p.root.ItemByPath(name)
	if !ok {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return it, nil
}

// Open implements fs.FS.
func (fsys *FS) Open(name string) (fs.File, error) {
	it, err := fsys.lookup("open", name)
	if err != nil {
		return nil, err
	}

	switch it := it.(type) {
	case *dirtree.Folder:
		return &openDir{fsys: fsys, name: name, folder: it}, nil
	case *dirtree.File:
		s, err := fsys.p.CreateStream(it)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		if err := s.Open(stream.ModeRead); err != nil {
			fsys.p.ReleaseStream(s)
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &openFile{Stream: s, fsys: fsys, info: fsys.info(it)}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
}

// Stat implements fs.StatFS.
func (fsys *FS) Stat(name string) (fs.FileInfo, error) {
	it, err := fsys.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return fsys.info(it), nil
}

// ReadFile implements fs.ReadFileFS.
func (fsys *FS) ReadFile(name string) ([]byte, error) {
	it, err := fsys.lookup("readfile", name)
	if err != nil {
		return nil, err
	}
	f, ok := it.(*dirtree.File)
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: errIsDir}
	}
	data, err := fsys.p.readFile(f)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// ReadDir implements fs.ReadDirFS.  Entries are sorted by name.
func (fsys *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	it, err := fsys.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	folder, ok := it.(*dirtree.Folder)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errors.New("not a directory")}
	}
	return fsys.entries(folder), nil
}

func (fsys *FS) entries(folder *dirtree.Folder) []fs.DirEntry {
	children := folder.Children()
	entries := make([]fs.DirEntry, 0, len(children))
	for _, child := range children {
		entries = append(entries, fs.FileInfoToDirEntry(fsys.info(child)))
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries
}

func (fsys *FS) info(it dirtree.Item) *fileInfo {
	info := &fileInfo{name: it.Name(), item: it}
	if it.Parent() == nil {
		info.name = "."
	}
	if f, ok := it.(*dirtree.File); ok {
		info.size = fsys.p.driver.FileSize(f)
	}
	return info
}

// fileInfo describes a tree item.  Archives carry no modification times or
// permissions, so folders are reported as 0555 and files as 0444.
type fileInfo struct {
	name string
	size int64
	item dirtree.Item
}

func (fi *fileInfo) Name() string { return fi.name }
func (fi *fileInfo) Size() int64  { return fi.size }
func (fi *fileInfo) IsDir() bool  { return fi.item.Kind() == dirtree.KindFolder }

func (fi *fileInfo) Mode() fs.FileMode {
	if fi.IsDir() {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

func (fi *fileInfo) ModTime() time.Time { return time.Time{} }

// Sys returns the dirtree.Item.
func (fi *fileInfo) Sys() any { return fi.item }

// openFile is an fs.File over a package stream.  It also implements
// io.Seeker and io.ReaderAt.
type openFile struct {
	stream.Stream
	fsys   *FS
	info   *fileInfo
	closed bool
}

func (f *openFile) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

func (f *openFile) Close() error {
	if f.closed {
		return &fs.PathError{Op: "close", Path: f.info.name, Err: fs.ErrClosed}
	}
	f.closed = true
	f.fsys.p.ReleaseStream(f.Stream)
	return nil
}

type openDir struct {
	fsys    *FS
	name    string
	folder  *dirtree.Folder
	entries []fs.DirEntry
	offset  int
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: errIsDir}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	info := d.fsys.info(d.folder)
	if d.name != "." {
		info.name = path.Base(d.name)
	}
	return info, nil
}

func (d *openDir) Close() error {
	d.entries = nil
	return nil
}

// ReadDir implements fs.ReadDirFile.
func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.entries == nil {
		d.entries = d.fsys.entries(d.folder)
	}

	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.offset += n
	return rest[:n], nil
}
