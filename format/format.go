// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package format defines the contract every archive format driver
// implements, along with the values drivers hand back to callers:
// attributes, validation verdicts and the progress callback used while
// validating.
package format

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/mapping"
	"github.com/bpowers/pakfs/stream"
)

var (
	// ErrInvalidFile is returned for structural problems: bad signatures,
	// truncated files, headers that do not fit their file.  Opening a
	// package that fails this way is not retried.
	ErrInvalidFile = errors.New("invalid file")
	// ErrUnsupported is returned for features a driver recognizes but does
	// not implement, such as compressed entries or data on an unavailable
	// disk.  Only operations on the affected file fail.
	ErrUnsupported = errors.New("unsupported")
	// ErrNotMapped is returned when a driver is queried before
	// MapDataStructures succeeded or after UnmapDataStructures.
	ErrNotMapped = errors.New("data structures not mapped")
)

// Type identifies an archive format.
type Type int

const (
	None Type = iota
	ZIP
	VPK
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case ZIP:
		return "zip"
	case VPK:
		return "vpk"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Detector is implemented by drivers that can recognize their format from
// the first bytes of a file.
type Detector interface {
	// Detect reports whether head, a prefix of the file, looks like this
	// driver's format.
	Detect(head []byte) bool
}

// Driver understands one archive format end to end.
//
// The package lifecycle drives a Driver in a fixed order:
// MapDataStructures, then CreateRoot.  If either fails the caller calls
// UnmapDataStructures and discards the driver.  Query methods are only
// valid between a successful CreateRoot and UnmapDataStructures, and only
// for files of the tree CreateRoot returned.
type Driver interface {
	Type() Type
	Extension() string
	Description() string

	// MapDataStructures locates and validates the format's headers and
	// directory in m, keeping them resident until UnmapDataStructures.
	MapDataStructures(m mapping.Mapping) error
	// UnmapDataStructures releases everything MapDataStructures acquired.
	// It is safe to call more than once.
	UnmapDataStructures()
	// CreateRoot walks the mapped directory once and builds the tree.
	CreateRoot() (*dirtree.Folder, error)

	AttributeNames() []string
	// Attribute returns package attribute i, or false if i is out of range.
	Attribute(i int) (Attribute, bool)
	ItemAttributeNames() []string
	// ItemAttribute returns attribute i of it, or false if i is out of
	// range or the item has no such attribute.
	ItemAttribute(it dirtree.Item, i int) (Attribute, bool)

	// FileExtractable reports whether f's bytes can be served as stored.
	FileExtractable(f *dirtree.File) bool
	// FileValidation verifies f's contents, calling progress between
	// chunks.  A nil progress is allowed.
	FileValidation(f *dirtree.File, progress ProgressFunc) (Validation, error)
	// FileSize is the logical, uncompressed size of f.
	FileSize(f *dirtree.File) int64
	// FileSizeOnDisk is the number of bytes f occupies in the archive.
	FileSizeOnDisk(f *dirtree.File) int64

	// CreateStream returns a closed stream over f's bytes.  It fails with
	// ErrUnsupported if f is not extractable.
	CreateStream(f *dirtree.File) (stream.Stream, error)
	// ReleaseStream is called once the caller has closed a stream
	// returned by CreateStream.
	ReleaseStream(s stream.Stream)
}

// AttributeKind is the type of an Attribute's value.
type AttributeKind int

const (
	AttributeInvalid AttributeKind = iota
	AttributeBool
	AttributeInt
	AttributeUint
	AttributeFloat
	AttributeString
)

func (k AttributeKind) String() string {
	switch k {
	case AttributeBool:
		return "bool"
	case AttributeInt:
		return "int"
	case AttributeUint:
		return "uint"
	case AttributeFloat:
		return "float"
	case AttributeString:
		return "string"
	default:
		return "invalid"
	}
}

// Attribute is a named, typed metadata value.
type Attribute struct {
	Name string
	Kind AttributeKind
	// Hex asks for unsigned values to be displayed in hexadecimal.
	Hex bool

	b bool
	i int64
	u uint64
	f float64
	s string
}

func BoolAttribute(name string, v bool) Attribute {
	return Attribute{Name: name, Kind: AttributeBool, b: v}
}

func IntAttribute(name string, v int64) Attribute {
	return Attribute{Name: name, Kind: AttributeInt, i: v}
}

func UintAttribute(name string, v uint64, hex bool) Attribute {
	return Attribute{Name: name, Kind: AttributeUint, Hex: hex, u: v}
}

func FloatAttribute(name string, v float64) Attribute {
	return Attribute{Name: name, Kind: AttributeFloat, f: v}
}

func StringAttribute(name string, v string) Attribute {
	return Attribute{Name: name, Kind: AttributeString, s: v}
}

func (a Attribute) Bool() bool {
	return a.b
}

func (a Attribute) Int() int64 {
	return a.i
}

func (a Attribute) Uint() uint64 {
	return a.u
}

func (a Attribute) Float() float64 {
	return a.f
}

func (a Attribute) Str() string {
	return a.s
}

// String formats the value for display.
func (a Attribute) String() string {
	switch a.Kind {
	case AttributeBool:
		return strconv.FormatBool(a.b)
	case AttributeInt:
		return strconv.FormatInt(a.i, 10)
	case AttributeUint:
		if a.Hex {
			return fmt.Sprintf("%#.8x", a.u)
		}
		return strconv.FormatUint(a.u, 10)
	case AttributeFloat:
		return strconv.FormatFloat(a.f, 'f', -1, 64)
	case AttributeString:
		return a.s
	default:
		return ""
	}
}

// Validation is the integrity verdict for one file.
type Validation int

const (
	// OK means the checksum was recomputed and matched.
	OK Validation = iota
	// AssumedOK means the file could not be verified independently.
	AssumedOK
	// Corrupt means the recomputed checksum did not match.
	Corrupt
	// Canceled means the progress callback stopped validation.
	Canceled
)

func (v Validation) String() string {
	switch v {
	case OK:
		return "ok"
	case AssumedOK:
		return "assumed ok"
	case Corrupt:
		return "corrupt"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("Validation(%d)", int(v))
	}
}

// ProgressFunc reports validation progress for f.  Returning true cancels
// validation before the next chunk is read.
type ProgressFunc func(f *dirtree.File, done, total int64) (cancel bool)
