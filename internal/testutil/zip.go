// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package testutil builds small archives byte by byte for tests and for
// cmd/gen-testdata.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
)

// ZipEntry describes one member of a ZIP archive built by ZipBuilder.
type ZipEntry struct {
	Name string
	// Data is written as stored bytes, whatever Method says.
	Data    []byte
	Method  uint16
	Disk    uint16
	Flags   uint16
	Comment string
	Extra   []byte
	// CRC overrides the checksum computed over Data when non-nil.
	CRC *uint32
	// UncompressedSize overrides len(Data) when non-zero.
	UncompressedSize uint32
}

// ZipBuilder lays out local file headers, the central directory and the
// end of central directory record the way a plain, single-disk writer does.
type ZipBuilder struct {
	Entries []ZipEntry
	Comment string
	// Disk is the number of this disk in the end record.
	Disk uint16
}

// Add appends a stored entry.
func (b *ZipBuilder) Add(name string, data []byte) *ZipBuilder {
	b.Entries = append(b.Entries, ZipEntry{Name: name, Data: data})
	return b
}

// AddEntry appends e.
func (b *ZipBuilder) AddEntry(e ZipEntry) *ZipBuilder {
	b.Entries = append(b.Entries, e)
	return b
}

// Bytes returns the encoded archive.
func (b *ZipBuilder) Bytes() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	offsets := make([]uint32, len(b.Entries))
	for i, e := range b.Entries {
		offsets[i] = uint32(buf.Len())
		var h [30]byte
		le.PutUint32(h[0:], 0x04034b50)
		le.PutUint16(h[4:], 10)
		le.PutUint16(h[6:], e.Flags)
		le.PutUint16(h[8:], e.Method)
		le.PutUint32(h[14:], e.crc())
		le.PutUint32(h[18:], uint32(len(e.Data)))
		le.PutUint32(h[22:], e.uncompressedSize())
		le.PutUint16(h[26:], uint16(len(e.Name)))
		le.PutUint16(h[28:], uint16(len(e.Extra)))
		buf.Write(h[:])
		buf.WriteString(e.Name)
		buf.Write(e.Extra)
		buf.Write(e.Data)
	}

	cdStart := uint32(buf.Len())
	for i, e := range b.Entries {
		var h [46]byte
		le.PutUint32(h[0:], 0x02014b50)
		le.PutUint16(h[4:], 20)
		le.PutUint16(h[6:], 10)
		le.PutUint16(h[8:], e.Flags)
		le.PutUint16(h[10:], e.Method)
		le.PutUint32(h[16:], e.crc())
		le.PutUint32(h[20:], uint32(len(e.Data)))
		le.PutUint32(h[24:], e.uncompressedSize())
		le.PutUint16(h[28:], uint16(len(e.Name)))
		le.PutUint16(h[30:], uint16(len(e.Extra)))
		le.PutUint16(h[32:], uint16(len(e.Comment)))
		le.PutUint16(h[34:], e.Disk)
		le.PutUint32(h[42:], offsets[i])
		buf.Write(h[:])
		buf.WriteString(e.Name)
		buf.Write(e.Extra)
		buf.WriteString(e.Comment)
	}
	cdSize := uint32(buf.Len()) - cdStart

	var eocd [22]byte
	le.PutUint32(eocd[0:], 0x06054b50)
	le.PutUint16(eocd[4:], b.Disk)
	le.PutUint16(eocd[6:], b.Disk)
	le.PutUint16(eocd[8:], uint16(len(b.Entries)))
	le.PutUint16(eocd[10:], uint16(len(b.Entries)))
	le.PutUint32(eocd[12:], cdSize)
	le.PutUint32(eocd[16:], cdStart)
	le.PutUint16(eocd[20:], uint16(len(b.Comment)))
	buf.Write(eocd[:])
	buf.WriteString(b.Comment)

	return buf.Bytes()
}

// WriteFile writes the encoded archive to path.
func (b *ZipBuilder) WriteFile(path string) error {
	return os.WriteFile(path, b.Bytes(), 0644)
}

// DataOffset returns where entry i's data starts in Bytes().
func (b *ZipBuilder) DataOffset(i int) int {
	var off int
	for j, e := range b.Entries {
		off += 30 + len(e.Name) + len(e.Extra)
		if j == i {
			return off
		}
		off += len(e.Data)
	}
	return -1
}

func (e ZipEntry) crc() uint32 {
	if e.CRC != nil {
		return *e.CRC
	}
	return crc32.ChecksumIEEE(e.Data)
}

func (e ZipEntry) uncompressedSize() uint32 {
	if e.UncompressedSize != 0 {
		return e.UncompressedSize
	}
	return uint32(len(e.Data))
}
