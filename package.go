// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pakfs is a read-only virtual filesystem over game archive
// formats.
//
// Opening a package maps the archive, lets the format driver locate its
// directory and builds a folder/file tree from it.  Files in the tree can
// then be queried for attributes, validated against their stored
// checksums and streamed without copying the archive into memory.
//
//	p, err := pakfs.Open("pak01_dir.vpk")
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//	data, err := p.ReadFile("materials/brick.vmt")
//
// A Package is not safe for concurrent use while it is being opened or
// closed.  Once open, its tree is immutable and queries, streams and
// reads may be used from several goroutines, each with its own Stream.
package pakfs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/format"
	"github.com/bpowers/pakfs/mapping"
	"github.com/bpowers/pakfs/stream"
)

var (
	// ErrNotOpen is returned by queries on a package that is not open.
	ErrNotOpen = errors.New("package not open")
	// ErrForeignItem is returned when an item from another package's tree
	// is passed to a query.
	ErrForeignItem = errors.New("item does not belong to this package")
	// ErrNotFile is returned when a path names a folder where a file is
	// needed.
	ErrNotFile = errors.New("item is not a file")
)

// Package is an archive opened through one format driver.
type Package struct {
	driver      format.Driver
	logger      *slog.Logger
	mappingOpts []mapping.Option

	m           mapping.Mapping
	ownsMapping bool
	root        *dirtree.Folder

	mu      sync.Mutex
	streams map[stream.Stream]struct{}
}

// New returns a closed Package for format t.
func New(t format.Type, opts ...Option) (*Package, error) {
	options := newOptions(opts)
	d, err := newDriver(t, options.logger)
	if err != nil {
		return nil, err
	}
	return &Package{
		driver:      d,
		logger:      options.logger,
		mappingOpts: options.mappingOpts,
	}, nil
}

// Open opens the archive at path, detecting its format unless WithFormat
// is given.
func Open(path string, opts ...Option) (*Package, error) {
	options := newOptions(opts)
	m, err := mapping.Open(path, options.mappingOpts...)
	if err != nil {
		return nil, fmt.Errorf("mapping.Open: %w", err)
	}

	p, err := openMapping(m, true, options, opts)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return p, nil
}

// OpenMapping opens an archive already available as a Mapping.  The
// caller keeps ownership of m and must close it after closing the package.
func OpenMapping(m mapping.Mapping, opts ...Option) (*Package, error) {
	return openMapping(m, false, newOptions(opts), opts)
}

func openMapping(m mapping.Mapping, owns bool, options options, opts []Option) (*Package, error) {
	t := options.typ
	if t == format.None {
		var err error
		if t, err = Detect(m); err != nil {
			return nil, err
		}
	}
	p, err := New(t, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.open(m, owns); err != nil {
		return nil, err
	}
	return p, nil
}

// Open opens the archive at path with p's driver, closing whatever p had
// open before.
func (p *Package) Open(path string) error {
	if err := p.Close(); err != nil {
		return err
	}
	m, err := mapping.Open(path, p.mappingOpts...)
	if err != nil {
		return fmt.Errorf("mapping.Open: %w", err)
	}
	if err := p.open(m, true); err != nil {
		_ = m.Close()
		return err
	}
	return nil
}

// OpenMapping opens m with p's driver, closing whatever p had open before.
// The caller keeps ownership of m.
func (p *Package) OpenMapping(m mapping.Mapping) error {
	if err := p.Close(); err != nil {
		return err
	}
	return p.open(m, false)
}

// open runs the driver lifecycle.  On failure nothing stays mapped and p
// remains closed.
func (p *Package) open(m mapping.Mapping, owns bool) error {
	if err := p.driver.MapDataStructures(m); err != nil {
		p.driver.UnmapDataStructures()
		return fmt.Errorf("%s: %w", m.Name(), err)
	}
	root, err := p.driver.CreateRoot()
	if err != nil {
		p.driver.UnmapDataStructures()
		return fmt.Errorf("%s: %w", m.Name(), err)
	}

	p.m = m
	p.ownsMapping = owns
	p.root = root
	p.mu.Lock()
	p.streams = make(map[stream.Stream]struct{})
	p.mu.Unlock()

	p.logger.Debug("opened package",
		"name", m.Name(),
		"type", p.driver.Type(),
		"folders", root.FolderCount(true),
		"files", root.FileCount(true))
	return nil
}

// Close closes outstanding streams, unmaps the driver's data structures
// and discards the tree.  Closing a closed package is a no-op.
func (p *Package) Close() error {
	if p.root == nil {
		return nil
	}

	p.mu.Lock()
	streams := p.streams
	p.streams = nil
	p.mu.Unlock()

	var errs []error
	for s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		p.driver.ReleaseStream(s)
	}

	p.driver.UnmapDataStructures()
	p.root = nil

	if p.ownsMapping {
		if err := p.m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("m.Close: %w", err))
		}
	}
	name := p.m.Name()
	p.m = nil
	p.ownsMapping = false

	p.logger.Debug("closed package", "name", name)
	return errors.Join(errs...)
}

// IsOpen reports whether p is open.
func (p *Package) IsOpen() bool {
	return p.root != nil
}

func (p *Package) Type() format.Type {
	return p.driver.Type()
}

func (p *Package) Extension() string {
	return p.driver.Extension()
}

func (p *Package) Description() string {
	return p.driver.Description()
}

// Name is the name of the opened archive, or "" if p is closed.
func (p *Package) Name() string {
	if p.m == nil {
		return ""
	}
	return p.m.Name()
}

// Driver returns the format driver, for format-specific queries.
func (p *Package) Driver() format.Driver {
	return p.driver
}

// Root is the root folder of the tree, or nil if p is closed.
func (p *Package) Root() *dirtree.Folder {
	return p.root
}

// Lookup resolves a '/' or '\\' separated path from the root.
func (p *Package) Lookup(path string) (dirtree.Item, bool) {
	if p.root == nil {
		return nil, false
	}
	return p.root.ItemByPath(path)
}

func (p *Package) checkItem(it dirtree.Item) error {
	if p.root == nil {
		return ErrNotOpen
	}
	if it == nil || it.Root() != p.root {
		return ErrForeignItem
	}
	return nil
}

func (p *Package) AttributeNames() []string {
	return p.driver.AttributeNames()
}

// Attribute returns package attribute i.  It returns false if p is closed
// or i is out of range.
func (p *Package) Attribute(i int) (format.Attribute, bool) {
	if p.root == nil || i < 0 || i >= len(p.driver.AttributeNames()) {
		return format.Attribute{}, false
	}
	return p.driver.Attribute(i)
}

// Attributes returns every package attribute.
func (p *Package) Attributes() []format.Attribute {
	var attrs []format.Attribute
	for i := range p.driver.AttributeNames() {
		if a, ok := p.Attribute(i); ok {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

func (p *Package) ItemAttributeNames() []string {
	return p.driver.ItemAttributeNames()
}

// ItemAttribute returns attribute i of it.  It returns false if it is not
// part of this package, or has no such attribute.
func (p *Package) ItemAttribute(it dirtree.Item, i int) (format.Attribute, bool) {
	if p.checkItem(it) != nil || i < 0 || i >= len(p.driver.ItemAttributeNames()) {
		return format.Attribute{}, false
	}
	return p.driver.ItemAttribute(it, i)
}

// ItemAttributes returns every attribute of it.
func (p *Package) ItemAttributes(it dirtree.Item) []format.Attribute {
	var attrs []format.Attribute
	for i := range p.driver.ItemAttributeNames() {
		if a, ok := p.ItemAttribute(it, i); ok {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

func (p *Package) FileExtractable(f *dirtree.File) (bool, error) {
	if err := p.checkItem(f); err != nil {
		return false, err
	}
	return p.driver.FileExtractable(f), nil
}

// FileValidation verifies f.  progress may be nil.
func (p *Package) FileValidation(f *dirtree.File, progress format.ProgressFunc) (format.Validation, error) {
	if err := p.checkItem(f); err != nil {
		return format.Corrupt, err
	}
	return p.driver.FileValidation(f, progress)
}

func (p *Package) FileSize(f *dirtree.File) (int64, error) {
	if err := p.checkItem(f); err != nil {
		return 0, err
	}
	return p.driver.FileSize(f), nil
}

func (p *Package) FileSizeOnDisk(f *dirtree.File) (int64, error) {
	if err := p.checkItem(f); err != nil {
		return 0, err
	}
	return p.driver.FileSizeOnDisk(f), nil
}

// CreateStream returns a closed stream over f.  Callers should pass it to
// ReleaseStream when done; streams still outstanding when p is closed are
// closed with it.
func (p *Package) CreateStream(f *dirtree.File) (stream.Stream, error) {
	if err := p.checkItem(f); err != nil {
		return nil, err
	}
	s, err := p.driver.CreateStream(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path(), err)
	}
	p.mu.Lock()
	p.streams[s] = struct{}{}
	p.mu.Unlock()
	return s, nil
}

// ReleaseStream closes s and forgets it.
func (p *Package) ReleaseStream(s stream.Stream) {
	p.mu.Lock()
	_, ok := p.streams[s]
	delete(p.streams, s)
	p.mu.Unlock()
	if !ok {
		return
	}
	_ = s.Close()
	p.driver.ReleaseStream(s)
}

// file resolves path to a file of p.
func (p *Package) file(path string) (*dirtree.File, error) {
	if p.root == nil {
		return nil, ErrNotOpen
	}
	it, ok := p.root.ItemByPath(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	f, ok := it.(*dirtree.File)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFile)
	}
	return f, nil
}

// ReadFile returns the contents of the file at path.
func (p *Package) ReadFile(path string) ([]byte, error) {
	f, err := p.file(path)
	if err != nil {
		return nil, err
	}
	return p.readFile(f)
}

func (p *Package) readFile(f *dirtree.File) ([]byte, error) {
	s, err := p.CreateStream(f)
	if err != nil {
		return nil, err
	}
	defer p.ReleaseStream(s)
	data, err := stream.ReadAll(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path(), err)
	}
	return data, nil
}
