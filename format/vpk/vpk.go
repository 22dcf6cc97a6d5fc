// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package vpk reads Valve VPK packages, including packages split into a
// "_dir.vpk" directory file and numbered "_NNN.vpk" archives.
//
// The directory maps each file to an archive index, an offset and a length,
// optionally preceded by preload bytes stored inline in the directory.
// Numbered archives are opened when the package is mapped; archives that
// are missing make the files stored in them unextractable but do not
// prevent the package from opening.
package vpk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/format"
	"github.com/bpowers/pakfs/mapping"
	"github.com/bpowers/pakfs/stream"
)

var (
	attributeNames     = []string{"Archives", "Version"}
	itemAttributeNames = []string{"Preload Bytes", "Archive", "CRC"}
)

const (
	attrArchives = iota
	attrVersion
)

const (
	itemAttrPreloadBytes = iota
	itemAttrArchive
	itemAttrCRC
)

const dirSuffix = "_dir.vpk"

// Option configures a Driver.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report missing archives and skipped
// directory entries.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Driver is the VPK format driver.
type Driver struct {
	logger *slog.Logger

	m            mapping.Mapping
	dirView      *mapping.View
	header       header
	items        []item
	archiveCount int
	archives     *mapping.Set
	isMapped     bool
}

var (
	_ format.Driver   = (*Driver)(nil)
	_ format.Detector = (*Driver)(nil)
)

// New returns a Driver with nothing mapped.
func New(opts ...Option) *Driver {
	var options options
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{logger: options.logger}
}

func (d *Driver) Type() format.Type {
	return format.VPK
}

func (d *Driver) Extension() string {
	return "vpk"
}

func (d *Driver) Description() string {
	return "Valve Pak File"
}

func (d *Driver) Detect(head []byte) bool {
	return len(head) >= 4 && le.Uint32(head) == signature
}

func (d *Driver) MapDataStructures(m mapping.Mapping) error {
	d.UnmapDataStructures()

	size := m.Size()
	if size < headerSizeV1 {
		return fmt.Errorf("%w: the file map is too small for its header", format.ErrInvalidFile)
	}
	headLen := int64(headerSizeV2)
	if size < headLen {
		headLen = size
	}
	head, err := m.Map(0, headLen)
	if err != nil {
		return fmt.Errorf("m.Map(0, %d): %w", headLen, err)
	}
	var h header
	err = h.UnmarshalBytes(head.Bytes())
	head.Release()
	if err != nil {
		return err
	}

	dirView, err := m.Map(0, h.dataStart())
	if err != nil {
		return fmt.Errorf("%w: directory of %d bytes does not fit: %w", format.ErrInvalidFile, h.treeSize, err)
	}
	items, err := parseTree(dirView.Bytes()[h.size():])
	if err != nil {
		dirView.Release()
		return err
	}

	d.m = m
	d.dirView = dirView
	d.header = h
	d.items = items
	d.archiveCount = archiveCount(items)
	d.archives = mapping.NewSet(d.archiveCount)
	d.isMapped = true

	d.openArchives()

	d.logger.Debug("mapped vpk directory",
		"name", m.Name(),
		"version", h.version,
		"files", len(items),
		"archives", d.archiveCount,
		"available", d.archives.Count())
	return nil
}

// archiveCount is one more than the highest archive index any item
// references, not counting data stored in the directory file.
func archiveCount(items []item) int {
	n := 0
	for i := range items {
		if idx := int(items[i].entry.archiveIndex()); idx != DirArchive && idx+1 > n {
			n = idx + 1
		}
	}
	return n
}

// openArchives opens every numbered archive an item has data in.  Only
// directory files named "<prefix>_dir.vpk" have numbered archives.
func (d *Driver) openArchives() {
	name := d.m.Name()
	if d.archiveCount == 0 || !strings.HasSuffix(strings.ToLower(name), dirSuffix) {
		return
	}
	prefix := name[:len(name)-len(dirSuffix)]

	wanted := make([]bool, d.archiveCount)
	for i := range d.items {
		e := d.items[i].entry
		if idx := int(e.archiveIndex()); idx != DirArchive && e.length() > 0 {
			wanted[idx] = true
		}
	}

	for i, want := range wanted {
		if !want {
			continue
		}
		path := fmt.Sprintf("%s_%03d.vpk", prefix, i)
		f := stream.NewFile(path)
		if err := f.Open(stream.ModeRead); err != nil {
			d.logger.Warn("vpk archive unavailable", "index", i, "path", path, "err", err)
			continue
		}
		d.archives.Put(i, mapping.NewReaderAt(path, f, f.Size(), f))
	}
}

func (d *Driver) UnmapDataStructures() {
	if d.archives != nil {
		if err := d.archives.Close(); err != nil {
			d.logger.Warn("closing vpk archives", "err", err)
		}
	}
	if d.dirView != nil {
		d.dirView.Release()
	}
	d.m = nil
	d.dirView = nil
	d.header = header{}
	d.items = nil
	d.archiveCount = 0
	d.archives = nil
	d.isMapped = false
}

func (d *Driver) CreateRoot() (*dirtree.Folder, error) {
	if !d.isMapped {
		return nil, format.ErrNotMapped
	}

	root := dirtree.NewRoot(true)
	for i := range d.items {
		p := d.items[i].path()
		if _, err := root.Insert(p, i, dirtree.NoID); err != nil {
			if errors.Is(err, dirtree.ErrNameConflict) || errors.Is(err, dirtree.ErrInvalidPath) {
				d.logger.Warn("skipping vpk entry", "path", p, "err", err)
				continue
			}
			return nil, err
		}
	}
	return root, nil
}

func (d *Driver) item(f *dirtree.File) (*item, bool) {
	if f == nil || f.Ref() < 0 || f.Ref() >= len(d.items) {
		return nil, false
	}
	return &d.items[f.Ref()], true
}

func (d *Driver) AttributeNames() []string {
	return attributeNames
}

func (d *Driver) Attribute(i int) (format.Attribute, bool) {
	if !d.isMapped {
		return format.Attribute{}, false
	}
	switch i {
	case attrArchives:
		return format.UintAttribute(attributeNames[i], uint64(d.archiveCount), false), true
	case attrVersion:
		return format.UintAttribute(attributeNames[i], uint64(d.header.version), false), true
	default:
		return format.Attribute{}, false
	}
}

func (d *Driver) ItemAttributeNames() []string {
	return itemAttributeNames
}

func (d *Driver) ItemAttribute(it dirtree.Item, i int) (format.Attribute, bool) {
	f, ok := it.(*dirtree.File)
	if !ok {
		return format.Attribute{}, false
	}
	rec, ok := d.item(f)
	if !ok {
		return format.Attribute{}, false
	}
	switch i {
	case itemAttrPreloadBytes:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.entry.preloadBytes()), false), true
	case itemAttrArchive:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.entry.archiveIndex()), false), true
	case itemAttrCRC:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.entry.crc32()), true), true
	default:
		return format.Attribute{}, false
	}
}

// available reports whether the file holding e's data is open.
func (d *Driver) available(e entry) bool {
	idx := e.archiveIndex()
	return idx == DirArchive || e.length() == 0 || d.archives.Available(int(idx))
}

// inBounds reports whether e's data lies within the file holding it.  Only
// meaningful for available entries.
func (d *Driver) inBounds(e entry) bool {
	if e.length() == 0 {
		return true
	}
	end := e.offset() + e.length()
	idx := e.archiveIndex()
	if idx == DirArchive {
		return d.header.dataStart()+end <= d.m.Size()
	}
	return end <= d.archives.Size(int(idx))
}

func (d *Driver) extractable(e entry) bool {
	return d.available(e) && d.inBounds(e)
}

func (d *Driver) FileExtractable(f *dirtree.File) bool {
	rec, ok := d.item(f)
	return ok && d.extractable(rec.entry)
}

// FileValidation checks f against its CRC, which covers the preload bytes
// followed by the archive data.  Files on unavailable archives are assumed
// OK; files whose data overruns their archive are corrupt.
func (d *Driver) FileValidation(f *dirtree.File, progress format.ProgressFunc) (format.Validation, error) {
	rec, ok := d.item(f)
	if !ok {
		return format.Corrupt, fmt.Errorf("%w: file has no directory entry", format.ErrInvalidFile)
	}
	if !d.available(rec.entry) {
		return format.AssumedOK, nil
	}
	if !d.inBounds(rec.entry) {
		return format.Corrupt, nil
	}

	s, err := d.CreateStream(f)
	if err != nil {
		return format.Corrupt, err
	}
	defer d.ReleaseStream(s)

	return format.ValidateCRC32(f, s, rec.entry.crc32(), progress)
}

func (d *Driver) FileSize(f *dirtree.File) int64 {
	rec, ok := d.item(f)
	if !ok {
		return 0
	}
	return int64(rec.entry.preloadBytes()) + rec.entry.length()
}

func (d *Driver) FileSizeOnDisk(f *dirtree.File) int64 {
	return d.FileSize(f)
}

func (d *Driver) CreateStream(f *dirtree.File) (stream.Stream, error) {
	rec, ok := d.item(f)
	if !ok {
		return nil, fmt.Errorf("%w: file has no directory entry", format.ErrInvalidFile)
	}
	e := rec.entry
	if !d.available(e) {
		return nil, fmt.Errorf("%w: archive %d is not available", format.ErrUnsupported, e.archiveIndex())
	}
	if !d.inBounds(e) {
		return nil, fmt.Errorf("%w: data [%d, %d) overruns archive %d", format.ErrInvalidFile, e.offset(), e.offset()+e.length(), e.archiveIndex())
	}

	name := f.Path()
	var preload, data stream.Stream
	if e.preloadBytes() > 0 {
		preload = stream.NewMemory(name, bytes.Clone(e.preload()))
	}
	if e.length() > 0 {
		if idx := e.archiveIndex(); idx == DirArchive {
			data = stream.NewMapping(d.m, d.header.dataStart()+e.offset(), e.length())
		} else {
			data = stream.NewMapping(d.archives.Get(int(idx)), e.offset(), e.length())
		}
	}

	switch {
	case preload != nil && data != nil:
		return stream.NewMulti(name, preload, data), nil
	case preload != nil:
		return preload, nil
	case data != nil:
		return data, nil
	default:
		return stream.NewNull(name), nil
	}
}

func (d *Driver) ReleaseStream(s stream.Stream) {
	if s != nil {
		_ = s.Close()
	}
}

// ArchiveSize is the size of numbered archive i, or 0 if it is not open.
func (d *Driver) ArchiveSize(i int) int64 {
	if d.archives == nil {
		return 0
	}
	return d.archives.Size(i)
}

// ArchiveAvailable reports whether numbered archive i is open.
func (d *Driver) ArchiveAvailable(i int) bool {
	return d.archives != nil && d.archives.Available(i)
}
