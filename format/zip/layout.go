// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package zip

import (
	"encoding/binary"
)

// All multi-byte fields are little-endian.
const (
	sigLocalFileHeader = 0x04034b50
	sigFileHeader      = 0x02014b50
	sigEndOfCentralDir = 0x06054b50

	localFileHeaderSize = 30
	fileHeaderSize      = 46
	endOfCentralDirSize = 22
)

var le = binary.LittleEndian

// localFileHeader is the fixed part of the header preceding each member's
// data.
type localFileHeader struct {
	signature        uint32
	versionNeeded    uint16
	flags            uint16
	method           uint16
	modTime          uint16
	modDate          uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	nameLen          uint16
	extraLen         uint16
}

func (h *localFileHeader) UnmarshalBytes(b []byte) {
	_ = b[localFileHeaderSize-1]
	h.signature = le.Uint32(b[0:4])
	h.versionNeeded = le.Uint16(b[4:6])
	h.flags = le.Uint16(b[6:8])
	h.method = le.Uint16(b[8:10])
	h.modTime = le.Uint16(b[10:12])
	h.modDate = le.Uint16(b[12:14])
	h.crc32 = le.Uint32(b[14:18])
	h.compressedSize = le.Uint32(b[18:22])
	h.uncompressedSize = le.Uint32(b[22:26])
	h.nameLen = le.Uint16(b[26:28])
	h.extraLen = le.Uint16(b[28:30])
}

// dataOffset is where the member's data starts relative to the header.
func (h *localFileHeader) dataOffset() int64 {
	return localFileHeaderSize + int64(h.nameLen) + int64(h.extraLen)
}

// record is one central directory entry: the fixed 46-byte header followed
// by its name, extra field and comment.  It aliases the mapped central
// directory and is only valid while that stays mapped.
type record []byte

func (r record) signature() uint32     { return le.Uint32(r[0:4]) }
func (r record) versionMadeBy() uint16 { return le.Uint16(r[4:6]) }
func (r record) versionNeeded() uint16 { return le.Uint16(r[6:8]) }
func (r record) flags() uint16         { return le.Uint16(r[8:10]) }
func (r record) method() uint16        { return le.Uint16(r[10:12]) }
func (r record) crc32() uint32         { return le.Uint32(r[16:20]) }
func (r record) compressedSize() uint32 {
	return le.Uint32(r[20:24])
}
func (r record) uncompressedSize() uint32 {
	return le.Uint32(r[24:28])
}
func (r record) nameLen() int       { return int(le.Uint16(r[28:30])) }
func (r record) extraLen() int      { return int(le.Uint16(r[30:32])) }
func (r record) commentLen() int    { return int(le.Uint16(r[32:34])) }
func (r record) diskStart() uint16  { return le.Uint16(r[34:36]) }
func (r record) localOffset() int64 { return int64(le.Uint32(r[42:46])) }

// size is the length of the whole entry, variable parts included.
func (r record) size() int {
	return fileHeaderSize + r.nameLen() + r.extraLen() + r.commentLen()
}

func (r record) name() string {
	return string(r[fileHeaderSize : fileHeaderSize+r.nameLen()])
}

func (r record) comment() string {
	start := fileHeaderSize + r.nameLen() + r.extraLen()
	return string(r[start : start+r.commentLen()])
}

// endRecord is the end of central directory record with its comment.
type endRecord []byte

func (r endRecord) signature() uint32 { return le.Uint32(r[0:4]) }
func (r endRecord) thisDisk() uint16  { return le.Uint16(r[4:6]) }
func (r endRecord) entries() uint16   { return le.Uint16(r[10:12]) }
func (r endRecord) cdSize() int64     { return int64(le.Uint32(r[12:16])) }
func (r endRecord) cdOffset() int64   { return int64(le.Uint32(r[16:20])) }
func (r endRecord) commentLen() int   { return int(le.Uint16(r[20:22])) }
func (r endRecord) comment() string {
	return string(r[endOfCentralDirSize : endOfCentralDirSize+r.commentLen()])
}
