// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfs

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bpowers/pakfs/format"
	"github.com/bpowers/pakfs/format/vpk"
	"github.com/bpowers/pakfs/format/zip"
	"github.com/bpowers/pakfs/mapping"
)

// ErrUnknownFormat is returned when no driver recognizes a file.
var ErrUnknownFormat = errors.New("unknown package format")

// detectLen is how many leading bytes are handed to format detectors.
const detectLen = 32

type driverFactory func(logger *slog.Logger) format.Driver

// drivers lists every supported format in detection order.
var drivers = []struct {
	typ format.Type
	new driverFactory
}{
	{format.ZIP, func(logger *slog.Logger) format.Driver { return zip.New(zip.WithLogger(logger)) }},
	{format.VPK, func(logger *slog.Logger) format.Driver { return vpk.New(vpk.WithLogger(logger)) }},
}

// Types returns the supported formats.
func Types() []format.Type {
	types := make([]format.Type, 0, len(drivers))
	for _, d := range drivers {
		types = append(types, d.typ)
	}
	return types
}

func newDriver(t format.Type, logger *slog.Logger) (format.Driver, error) {
	for _, d := range drivers {
		if d.typ == t {
			return d.new(logger), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, t)
}

// Detect identifies the format of m from its leading bytes, falling back
// to its file extension.
func Detect(m mapping.Mapping) (format.Type, error) {
	n := m.Size()
	if n > detectLen {
		n = detectLen
	}
	v, err := m.Map(0, n)
	if err != nil {
		return format.None, fmt.Errorf("m.Map(0, %d): %w", n, err)
	}
	defer v.Release()

	if t := DetectBytes(v.Bytes()); t != format.None {
		return t, nil
	}
	if t := TypeForExtension(m.Name()); t != format.None {
		return t, nil
	}
	return format.None, fmt.Errorf("%w: %s", ErrUnknownFormat, m.Name())
}

// DetectBytes identifies a format from the first bytes of a file.
func DetectBytes(head []byte) format.Type {
	for _, d := range drivers {
		if det, ok := d.new(nil).(format.Detector); ok && det.Detect(head) {
			return d.typ
		}
	}
	return format.None
}

// TypeForExtension identifies a format from a file name's extension.
func TypeForExtension(name string) format.Type {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return format.None
	}
	for _, d := range drivers {
		if d.new(nil).Extension() == ext {
			return d.typ
		}
	}
	return format.None
}
