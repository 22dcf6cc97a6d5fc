// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package zip reads stored (uncompressed) members of ZIP archives.
//
// The archive is scanned linearly from its first byte, hopping from local
// file header to local file header until the end of central directory
// record is found.  Only the central directory and the end record stay
// mapped while the package is open; member data is streamed on demand.
package zip

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/format"
	"github.com/bpowers/pakfs/internal/pathutil"
	"github.com/bpowers/pakfs/mapping"
	"github.com/bpowers/pakfs/stream"
)

var (
	attributeNames     = []string{"Disk", "Comment"}
	itemAttributeNames = []string{"Create Version", "Extract Version", "Flags", "Compression Method", "CRC", "Disk", "Comment"}
)

const (
	attrDisk = iota
	attrComment
)

const (
	itemAttrCreateVersion = iota
	itemAttrExtractVersion
	itemAttrFlags
	itemAttrCompressionMethod
	itemAttrCRC
	itemAttrDisk
	itemAttrComment
)

// Option configures a Driver.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report skipped directory entries.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Driver is the ZIP format driver.
type Driver struct {
	logger *slog.Logger

	m        mapping.Mapping
	endView  *mapping.View
	cdView   *mapping.View
	end      endRecord
	cd       []byte
	records  []record
	isMapped bool
}

var (
	_ format.Driver   = (*Driver)(nil)
	_ format.Detector = (*Driver)(nil)
)

// New returns a Driver with nothing mapped.
func New(opts ...Option) *Driver {
	var options options
	options.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{logger: options.logger}
}

func (d *Driver) Type() format.Type {
	return format.ZIP
}

func (d *Driver) Extension() string {
	return "zip"
}

func (d *Driver) Description() string {
	return "Zip File"
}

// Detect matches archives starting with a local file header, or empty
// archives consisting of only an end record.
func (d *Driver) Detect(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	switch le.Uint32(head) {
	case sigLocalFileHeader, sigEndOfCentralDir:
		return true
	}
	return false
}

// peek copies len(buf) bytes at off through a transient view.
func peek(m mapping.Mapping, off int64, buf []byte) error {
	v, err := m.Map(off, int64(len(buf)))
	if err != nil {
		return fmt.Errorf("m.Map(%d, %d): %w", off, len(buf), err)
	}
	defer v.Release()
	if copy(buf, v.Bytes()) != len(buf) {
		return fmt.Errorf("%w: %s", mapping.ErrClosed, m.Name())
	}
	return nil
}

func (d *Driver) MapDataStructures(m mapping.Mapping) error {
	d.UnmapDataStructures()

	size := m.Size()
	if size < endOfCentralDirSize {
		return fmt.Errorf("%w: the file map is too small for its header", format.ErrInvalidFile)
	}

	var hdr [fileHeaderSize]byte
	for off := int64(0); off < size-4; {
		if err := peek(m, off, hdr[:4]); err != nil {
			return err
		}
		switch sig := le.Uint32(hdr[:4]); sig {
		case sigEndOfCentralDir:
			return d.mapEnd(m, off)
		case sigFileHeader:
			if err := peek(m, off, hdr[:fileHeaderSize]); err != nil {
				return fmt.Errorf("%w: truncated central directory entry at %d: %w", format.ErrInvalidFile, off, err)
			}
			off += int64(record(hdr[:]).size())
		case sigLocalFileHeader:
			if err := peek(m, off, hdr[:localFileHeaderSize]); err != nil {
				return fmt.Errorf("%w: truncated local file header at %d: %w", format.ErrInvalidFile, off, err)
			}
			var lh localFileHeader
			lh.UnmarshalBytes(hdr[:localFileHeaderSize])
			off += lh.dataOffset() + int64(lh.compressedSize)
		default:
			return fmt.Errorf("%w: unknown section signature %#.8x", format.ErrInvalidFile, sig)
		}
	}

	return fmt.Errorf("%w: unexpected end of file while scanning for end of central directory record", format.ErrInvalidFile)
}

// mapEnd maps the end record at off and the central directory it points to.
func (d *Driver) mapEnd(m mapping.Mapping, off int64) error {
	var fixed [endOfCentralDirSize]byte
	if err := peek(m, off, fixed[:]); err != nil {
		return fmt.Errorf("%w: truncated end of central directory record: %w", format.ErrInvalidFile, err)
	}

	endView, err := m.Map(off, endOfCentralDirSize+int64(endRecord(fixed[:]).commentLen()))
	if err != nil {
		return fmt.Errorf("%w: end of central directory comment: %w", format.ErrInvalidFile, err)
	}
	end := endRecord(endView.Bytes())

	cdView, err := m.Map(end.cdOffset(), end.cdSize())
	if err != nil {
		endView.Release()
		return fmt.Errorf("%w: central directory: %w", format.ErrInvalidFile, err)
	}

	d.m = m
	d.endView = endView
	d.cdView = cdView
	d.end = end
	d.cd = cdView.Bytes()
	d.isMapped = true

	d.logger.Debug("mapped zip central directory",
		"name", m.Name(),
		"entries", end.entries(),
		"offset", end.cdOffset(),
		"size", end.cdSize())
	return nil
}

func (d *Driver) UnmapDataStructures() {
	if d.cdView != nil {
		d.cdView.Release()
	}
	if d.endView != nil {
		d.endView.Release()
	}
	d.m = nil
	d.endView = nil
	d.cdView = nil
	d.end = nil
	d.cd = nil
	d.records = nil
	d.isMapped = false
}

func (d *Driver) CreateRoot() (*dirtree.Folder, error) {
	if !d.isMapped {
		return nil, format.ErrNotMapped
	}

	root := dirtree.NewRoot(false)
	d.records = d.records[:0]
	for off := 0; off+4 <= len(d.cd); {
		if le.Uint32(d.cd[off:]) != sigFileHeader {
			break
		}
		if off+fileHeaderSize > len(d.cd) {
			return nil, fmt.Errorf("%w: central directory entry at %d is truncated", format.ErrInvalidFile, off)
		}
		rec := record(d.cd[off:])
		n := rec.size()
		if off+n > len(d.cd) {
			return nil, fmt.Errorf("%w: central directory entry at %d overruns the directory", format.ErrInvalidFile, off)
		}
		rec = rec[:n:n]
		off += n

		ref := len(d.records)
		d.records = append(d.records, rec)

		name := rec.name()
		var err error
		if pathutil.HasTrailingSeparator(name) {
			_, err = root.EnsureFolder(name)
		} else {
			_, err = root.Insert(name, ref, dirtree.NoID)
		}
		if err != nil {
			if errors.Is(err, dirtree.ErrNameConflict) || errors.Is(err, dirtree.ErrInvalidPath) {
				d.logger.Warn("skipping zip entry", "name", name, "err", err)
				continue
			}
			return nil, err
		}
	}

	return root, nil
}

func (d *Driver) record(f *dirtree.File) (record, bool) {
	if f == nil || f.Ref() < 0 || f.Ref() >= len(d.records) {
		return nil, false
	}
	return d.records[f.Ref()], true
}

func (d *Driver) AttributeNames() []string {
	return attributeNames
}

func (d *Driver) Attribute(i int) (format.Attribute, bool) {
	if !d.isMapped {
		return format.Attribute{}, false
	}
	switch i {
	case attrDisk:
		return format.UintAttribute(attributeNames[i], uint64(d.end.thisDisk()), false), true
	case attrComment:
		return format.StringAttribute(attributeNames[i], d.end.comment()), true
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
	rec, ok := d.record(f)
	if !ok {
		return format.Attribute{}, false
	}
	switch i {
	case itemAttrCreateVersion:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.versionMadeBy()), false), true
	case itemAttrExtractVersion:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.versionNeeded()), false), true
	case itemAttrFlags:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.flags()), true), true
	case itemAttrCompressionMethod:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.method()), true), true
	case itemAttrCRC:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.crc32()), true), true
	case itemAttrDisk:
		return format.UintAttribute(itemAttributeNames[i], uint64(rec.diskStart()), false), true
	case itemAttrComment:
		return format.StringAttribute(itemAttributeNames[i], rec.comment()), true
	default:
		return format.Attribute{}, false
	}
}

func (d *Driver) extractable(rec record) bool {
	return rec.method() == 0 && rec.diskStart() == d.end.thisDisk()
}

func (d *Driver) FileExtractable(f *dirtree.File) bool {
	rec, ok := d.record(f)
	return ok && d.extractable(rec)
}

// FileValidation checks a stored member against its CRC.  Compressed
// members and members on other disks are assumed OK without reading them.
func (d *Driver) FileValidation(f *dirtree.File, progress format.ProgressFunc) (format.Validation, error) {
	rec, ok := d.record(f)
	if !ok {
		return format.Corrupt, fmt.Errorf("%w: file has no directory record", format.ErrInvalidFile)
	}
	if !d.extractable(rec) {
		return format.AssumedOK, nil
	}

	s, err := d.CreateStream(f)
	if err != nil {
		return format.Corrupt, err
	}
	defer d.ReleaseStream(s)

	return format.ValidateCRC32(f, s, rec.crc32(), progress)
}

func (d *Driver) FileSize(f *dirtree.File) int64 {
	rec, ok := d.record(f)
	if !ok {
		return 0
	}
	return int64(rec.uncompressedSize())
}

func (d *Driver) FileSizeOnDisk(f *dirtree.File) int64 {
	rec, ok := d.record(f)
	if !ok {
		return 0
	}
	return int64(rec.compressedSize())
}

func (d *Driver) CreateStream(f *dirtree.File) (stream.Stream, error) {
	rec, ok := d.record(f)
	if !ok {
		return nil, fmt.Errorf("%w: file has no directory record", format.ErrInvalidFile)
	}
	if rec.method() != 0 {
		return nil, fmt.Errorf("%w: compression format %#.2x not supported", format.ErrUnsupported, rec.method())
	}
	if rec.diskStart() != d.end.thisDisk() {
		return nil, fmt.Errorf("%w: file resides on disk %d", format.ErrUnsupported, rec.diskStart())
	}

	var buf [localFileHeaderSize]byte
	if err := peek(d.m, rec.localOffset(), buf[:]); err != nil {
		return nil, fmt.Errorf("%w: invalid file data offset: %w", format.ErrInvalidFile, err)
	}
	var lh localFileHeader
	lh.UnmarshalBytes(buf[:])
	if lh.signature != sigLocalFileHeader {
		return nil, fmt.Errorf("%w: invalid file data offset", format.ErrInvalidFile)
	}

	base := rec.localOffset() + lh.dataOffset()
	return stream.NewMapping(d.m, base, int64(rec.uncompressedSize())), nil
}

func (d *Driver) ReleaseStream(s stream.Stream) {
	if s != nil {
		_ = s.Close()
	}
}
