// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package dirtree is the folder/file tree every package driver builds
// from its directory records.
//
// Files do not copy their driver's directory record: they carry a Ref, an
// index into a table the driver owns for the lifetime of the open package.
// Child names are unique within a folder.  Whether names are compared
// case-insensitively is fixed per tree when the root is created, and is
// applied identically when inserting and when looking items up.
package dirtree

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/pakfs/internal/pathutil"
	"github.com/bpowers/pakfs/internal/unsafestring"
)

// NoID marks an item without a numeric identifier.
const NoID = ^uint32(0)

// RootName is the name of every tree's root folder.
const RootName = "root"

var (
	// ErrNameConflict is returned when an insertion would give two children
	// of one folder the same name.
	ErrNameConflict = errors.New("dirtree: name conflict")
	// ErrInvalidPath is returned for paths without any segment.
	ErrInvalidPath = errors.New("dirtree: invalid path")
)

// Kind distinguishes folders from files.
type Kind int

const (
	KindFolder Kind = iota + 1
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Item is a node of the tree: a *Folder or a *File.
type Item interface {
	Name() string
	Kind() Kind
	ID() uint32
	// Parent is nil for the root.
	Parent() *Folder
	// Root is the root folder of the tree the item belongs to.
	Root() *Folder
	// Path is the '/'-separated path from the root, "" for the root itself.
	Path() string

	isItem()
}

type node struct {
	name   string
	parent *Folder
	id     uint32
}

func (n *node) Name() string {
	return n.name
}

func (n *node) ID() uint32 {
	return n.id
}

func (n *node) Parent() *Folder {
	return n.parent
}

func (n *node) isItem() {}

func rootOf(it Item) *Folder {
	for {
		p := it.Parent()
		if p == nil {
			f, _ := it.(*Folder)
			return f
		}
		it = p
	}
}

func pathOf(it Item) string {
	var segs []string
	for ; it.Parent() != nil; it = it.Parent() {
		segs = append(segs, it.Name())
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, "/")
}

// File is a leaf of the tree.
type File struct {
	node
	ref int
}

var _ Item = (*File)(nil)

func (f *File) Kind() Kind {
	return KindFile
}

// Ref is the index of the file's record in its driver's directory table.
func (f *File) Ref() int {
	return f.ref
}

func (f *File) Root() *Folder {
	return rootOf(f)
}

func (f *File) Path() string {
	return pathOf(f)
}

func (f *File) String() string {
	return f.Path()
}

// Folder is an interior node of the tree.
type Folder struct {
	node
	foldCase bool
	children []Item
	// index maps the hash of a child's (possibly case-folded) name to its
	// positions in children.  A hit is verified against the stored name.
	index map[uint64][]int
}

var _ Item = (*Folder)(nil)

// NewRoot returns an empty root folder.  When foldCase is set, names are
// matched case-insensitively throughout the tree.
func NewRoot(foldCase bool) *Folder {
	return newFolder(RootName, nil, foldCase)
}

func newFolder(name string, parent *Folder, foldCase bool) *Folder {
	return &Folder{
		node:     node{name: name, parent: parent, id: NoID},
		foldCase: foldCase,
		index:    make(map[uint64][]int),
	}
}

func (f *Folder) Kind() Kind {
	return KindFolder
}

func (f *Folder) Root() *Folder {
	return rootOf(f)
}

func (f *Folder) Path() string {
	return pathOf(f)
}

func (f *Folder) String() string {
	return f.Path() + "/"
}

// FoldCase reports whether names in this tree match case-insensitively.
func (f *Folder) FoldCase() bool {
	return f.foldCase
}

func (f *Folder) key(name string) string {
	if f.foldCase {
		return strings.ToLower(name)
	}
	return name
}

func hashKey(key string) uint64 {
	return farm.Hash64(unsafestring.ToBytes(key))
}

// Len is the number of direct children.
func (f *Folder) Len() int {
	return len(f.children)
}

// Children returns the direct children in insertion (or sorted) order.
// The returned slice must not be modified.
func (f *Folder) Children() []Item {
	return f.children
}

// Item returns the direct child called name.
func (f *Folder) Item(name string) (Item, bool) {
	key := f.key(name)
	for _, i := range f.index[hashKey(key)] {
		if child := f.children[i]; f.key(child.Name()) == key {
			return child, true
		}
	}
	return nil, false
}

func (f *Folder) add(it Item) {
	h := hashKey(f.key(it.Name()))
	f.index[h] = append(f.index[h], len(f.children))
	f.children = append(f.children, it)
}

// AddFolder adds an empty folder called name.
func (f *Folder) AddFolder(name string) (*Folder, error) {
	if existing, ok := f.Item(name); ok {
		return nil, fmt.Errorf("%w: %s already exists in %q", ErrNameConflict, existing.Kind(), pathOf(existing))
	}
	child := newFolder(name, f, f.foldCase)
	f.add(child)
	return child, nil
}

// AddFile adds a file called name referring to the driver record ref.
func (f *Folder) AddFile(name string, ref int, id uint32) (*File, error) {
	if existing, ok := f.Item(name); ok {
		return nil, fmt.Errorf("%w: %s already exists at %q", ErrNameConflict, existing.Kind(), pathOf(existing))
	}
	child := &File{
		node: node{name: name, parent: f, id: id},
		ref:  ref,
	}
	f.add(child)
	return child, nil
}

// folder returns the child folder called name, creating it if needed.
func (f *Folder) folder(name string) (*Folder, error) {
	existing, ok := f.Item(name)
	if !ok {
		return f.AddFolder(name)
	}
	if sub, ok := existing.(*Folder); ok {
		return sub, nil
	}
	return nil, fmt.Errorf("%w: path segment %q is a file", ErrNameConflict, pathOf(existing))
}

// EnsureFolder walks p from f, creating any folders that do not exist yet,
// and returns the last one.  An empty path returns f.
func (f *Folder) EnsureFolder(p string) (*Folder, error) {
	folder := f
	for _, seg := range pathutil.Segments(p) {
		var err error
		if folder, err = folder.folder(seg); err != nil {
			return nil, err
		}
	}
	return folder, nil
}

// Insert adds a file at path p, relative to f, creating intermediate
// folders on demand.  Both '/' and '\\' separate segments and empty
// segments are ignored.
func (f *Folder) Insert(p string, ref int, id uint32) (*File, error) {
	segs := pathutil.Segments(p)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	folder := f
	for _, seg := range segs[:len(segs)-1] {
		var err error
		if folder, err = folder.folder(seg); err != nil {
			return nil, err
		}
	}
	return folder.AddFile(segs[len(segs)-1], ref, id)
}

// ItemByPath resolves p relative to f.  The empty path resolves to f.
func (f *Folder) ItemByPath(p string) (Item, bool) {
	var cur Item = f
	for _, seg := range pathutil.Segments(p) {
		folder, ok := cur.(*Folder)
		if !ok {
			return nil, false
		}
		if seg == "." {
			continue
		}
		if seg == ".." {
			if folder.parent != nil {
				cur = folder.parent
			}
			continue
		}
		if cur, ok = folder.Item(seg); !ok {
			return nil, false
		}
	}
	return cur, true
}

// WalkFunc is called for every item visited by Walk.  Returning
// fs.SkipDir from a folder skips its children; any other error stops the
// walk and is returned by Walk.
type WalkFunc func(it Item) error

// Walk visits f and everything beneath it, parents before children.
func (f *Folder) Walk(fn WalkFunc) error {
	err := f.walk(fn)
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func (f *Folder) walk(fn WalkFunc) error {
	if err := fn(f); err != nil {
		if errors.Is(err, fs.SkipDir) {
			return nil
		}
		return err
	}
	for _, child := range f.children {
		var err error
		switch c := child.(type) {
		case *Folder:
			err = c.walk(fn)
		default:
			err = fn(c)
		}
		if err != nil && !errors.Is(err, fs.SkipDir) {
			return err
		}
	}
	return nil
}

// Find returns every item beneath f (f itself excluded) whose name matches
// pattern, using path.Match syntax.  Folded trees match case-insensitively.
func (f *Folder) Find(pattern string, kinds ...Kind) ([]Item, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("path.Match(%q): %w", pattern, err)
	}
	pattern = f.key(pattern)

	var found []Item
	err := f.Walk(func(it Item) error {
		if it == Item(f) || !kindIn(it.Kind(), kinds) {
			return nil
		}
		if ok, _ := path.Match(pattern, f.key(it.Name())); ok {
			found = append(found, it)
		}
		return nil
	})
	return found, err
}

func kindIn(k Kind, kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// FolderCount counts the folders beneath f.
func (f *Folder) FolderCount(recursive bool) int {
	return f.count(KindFolder, recursive)
}

// FileCount counts the files beneath f.
func (f *Folder) FileCount(recursive bool) int {
	return f.count(KindFile, recursive)
}

func (f *Folder) count(kind Kind, recursive bool) int {
	var n int
	for _, child := range f.children {
		if child.Kind() == kind {
			n++
		}
		if sub, ok := child.(*Folder); ok && recursive {
			n += sub.count(kind, recursive)
		}
	}
	return n
}

// Sort orders children folders first, then by name.  When recursive is set
// every folder beneath f is sorted too.
func (f *Folder) Sort(recursive bool) {
	sort.SliceStable(f.children, func(i, j int) bool {
		a, b := f.children[i], f.children[j]
		if a.Kind() != b.Kind() {
			return a.Kind() == KindFolder
		}
		return f.key(a.Name()) < f.key(b.Name())
	})
	f.index = make(map[uint64][]int, len(f.children))
	for i, child := range f.children {
		h := hashKey(f.key(child.Name()))
		f.index[h] = append(f.index[h], i)
	}
	if !recursive {
		return
	}
	for _, child := range f.children {
		if sub, ok := child.(*Folder); ok {
			sub.Sort(recursive)
		}
	}
}
