// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bpowers/pakfs/format"
)

// All multi-byte fields are little-endian.
const (
	signature = 0x55aa1234

	headerSizeV1 = 12
	headerSizeV2 = 28

	entrySize  = 18
	terminator = 0xffff

	// DirArchive is the archive index of data stored in the directory file
	// itself, after the directory.
	DirArchive = 0x7fff

	// noneMarker stands for an empty path or extension in the directory.
	noneMarker = " "
)

var le = binary.LittleEndian

type header struct {
	signature uint32
	version   uint32
	treeSize  uint32

	// version 2 only
	fileDataSize   uint32
	archiveMD5Size uint32
	otherMD5Size   uint32
	signatureSize  uint32
}

// UnmarshalBytes decodes the version 1 part of the header from b and, for
// version 2 files, the section sizes that follow it.
func (h *header) UnmarshalBytes(b []byte) error {
	if len(b) < headerSizeV1 {
		return fmt.Errorf("%w: the file map is too small for its header", format.ErrInvalidFile)
	}

	h.signature = le.Uint32(b[0:4])
	if h.signature != signature {
		return fmt.Errorf("%w: the file's signature does not match (%#.8x)", format.ErrInvalidFile, h.signature)
	}

	h.version = le.Uint32(b[4:8])
	h.treeSize = le.Uint32(b[8:12])
	switch h.version {
	case 1:
	case 2:
		if len(b) < headerSizeV2 {
			return fmt.Errorf("%w: the file map is too small for its version 2 header", format.ErrInvalidFile)
		}
		h.fileDataSize = le.Uint32(b[12:16])
		h.archiveMD5Size = le.Uint32(b[16:20])
		h.otherMD5Size = le.Uint32(b[20:24])
		h.signatureSize = le.Uint32(b[24:28])
	default:
		return fmt.Errorf("%w: version %d", format.ErrUnsupported, h.version)
	}

	return nil
}

func (h *header) size() int64 {
	if h.version == 2 {
		return headerSizeV2
	}
	return headerSizeV1
}

// dataStart is where data stored in the directory file begins.
func (h *header) dataStart() int64 {
	return h.size() + int64(h.treeSize)
}

// entry is a directory entry followed by its preload bytes.  It aliases the
// mapped directory.
type entry []byte

func (e entry) crc32() uint32        { return le.Uint32(e[0:4]) }
func (e entry) preloadBytes() int    { return int(le.Uint16(e[4:6])) }
func (e entry) archiveIndex() uint16 { return le.Uint16(e[6:8]) }
func (e entry) offset() int64        { return int64(le.Uint32(e[8:12])) }
func (e entry) length() int64        { return int64(le.Uint32(e[12:16])) }
func (e entry) terminator() uint16   { return le.Uint16(e[16:18]) }

func (e entry) preload() []byte {
	return e[entrySize : entrySize+e.preloadBytes()]
}

// item is one file of the directory.
type item struct {
	ext, dir, name string
	entry          entry
}

// path joins the item's components, dropping the markers for an empty
// path or extension.
func (it *item) path() string {
	var p string
	if it.dir != noneMarker && it.dir != "" {
		p = it.dir + "/"
	}
	p += it.name
	if it.ext != noneMarker && it.ext != "" {
		p += "." + it.ext
	}
	return p
}

// treeReader walks the directory's NUL-terminated strings and entries.
type treeReader struct {
	buf []byte
	off int
}

func (r *treeReader) string() (string, error) {
	i := bytes.IndexByte(r.buf[r.off:], 0)
	if i < 0 {
		return "", fmt.Errorf("%w: unterminated string at directory offset %d", format.ErrInvalidFile, r.off)
	}
	s := string(r.buf[r.off : r.off+i])
	r.off += i + 1
	return s, nil
}

func (r *treeReader) entry() (entry, error) {
	if len(r.buf)-r.off < entrySize {
		return nil, fmt.Errorf("%w: directory entry at offset %d is truncated", format.ErrInvalidFile, r.off)
	}
	e := entry(r.buf[r.off:])
	if t := e.terminator(); t != terminator {
		return nil, fmt.Errorf("%w: directory entry at offset %d has terminator %#.4x", format.ErrInvalidFile, r.off, t)
	}
	n := entrySize + e.preloadBytes()
	if len(r.buf)-r.off < n {
		return nil, fmt.Errorf("%w: preload data at offset %d is truncated", format.ErrInvalidFile, r.off)
	}
	r.off += n
	return e[:n:n], nil
}

// parseTree decodes every (extension, path, name) tuple in tree.  Each
// level ends with an empty string.
func parseTree(tree []byte) ([]item, error) {
	r := treeReader{buf: tree}
	var items []item
	for {
		ext, err := r.string()
		if err != nil {
			return nil, err
		}
		if ext == "" {
			return items, nil
		}
		for {
			dir, err := r.string()
			if err != nil {
				return nil, err
			}
			if dir == "" {
				break
			}
			for {
				name, err := r.string()
				if err != nil {
					return nil, err
				}
				if name == "" {
					break
				}
				e, err := r.entry()
				if err != nil {
					return nil, fmt.Errorf("%s/%s.%s: %w", dir, name, ext, err)
				}
				items = append(items, item{ext: ext, dir: dir, name: name, entry: e})
			}
		}
	}
}
