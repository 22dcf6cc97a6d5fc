// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// VPKDirArchive is the archive index of data stored in the directory file.
const VPKDirArchive = 0x7fff

// VPKEntry describes one file of a VPK built by VPKBuilder.
type VPKEntry struct {
	// Path is the full '/'-separated path, e.g. "materials/brick.vmt".
	Path    string
	Preload []byte
	Data    []byte
	Archive uint16
	// CRC overrides the checksum over Preload followed by Data when non-nil.
	CRC *uint32
}

// VPKBuilder lays out a VPK directory file and its numbered archives.
type VPKBuilder struct {
	Version uint32
	Entries []VPKEntry
}

// VPKFiles is the output of VPKBuilder.Build.
type VPKFiles struct {
	Dir      []byte
	Archives map[uint16][]byte
}

// Add appends e.
func (b *VPKBuilder) Add(e VPKEntry) *VPKBuilder {
	b.Entries = append(b.Entries, e)
	return b
}

// HeaderSize is the size of the header for b's version.
func (b *VPKBuilder) HeaderSize() int {
	if b.version() == 2 {
		return 28
	}
	return 12
}

func (b *VPKBuilder) version() uint32 {
	if b.Version == 0 {
		return 1
	}
	return b.Version
}

type vpkName struct {
	ext, dir, name string
}

func splitVPKPath(p string) vpkName {
	dir, file := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = " "
	}
	ext := path.Ext(file)
	name := strings.TrimSuffix(file, ext)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = " "
	}
	return vpkName{ext: ext, dir: dir, name: name}
}

// Build encodes the directory file and archives.
func (b *VPKBuilder) Build() VPKFiles {
	le := binary.LittleEndian
	files := VPKFiles{Archives: make(map[uint16][]byte)}

	order := make([]int, len(b.Entries))
	names := make([]vpkName, len(b.Entries))
	for i, e := range b.Entries {
		order[i] = i
		names[i] = splitVPKPath(e.Path)
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, c := names[order[i]], names[order[j]]
		if a.ext != c.ext {
			return a.ext < c.ext
		}
		return a.dir < c.dir
	})

	var tree, embedded bytes.Buffer
	archives := make(map[uint16]*bytes.Buffer)
	var ext, dir string
	first := true
	for _, i := range order {
		e, n := b.Entries[i], names[i]
		if first || n.ext != ext {
			if !first {
				tree.WriteString("\x00\x00")
			}
			tree.WriteString(n.ext + "\x00")
			tree.WriteString(n.dir + "\x00")
			ext, dir = n.ext, n.dir
		} else if n.dir != dir {
			tree.WriteString("\x00")
			tree.WriteString(n.dir + "\x00")
			dir = n.dir
		}
		first = false
		tree.WriteString(n.name + "\x00")

		var data *bytes.Buffer
		if e.Archive == VPKDirArchive {
			data = &embedded
		} else {
			if archives[e.Archive] == nil {
				archives[e.Archive] = new(bytes.Buffer)
			}
			data = archives[e.Archive]
		}

		var ent [18]byte
		le.PutUint32(ent[0:], e.crc())
		le.PutUint16(ent[4:], uint16(len(e.Preload)))
		le.PutUint16(ent[6:], e.Archive)
		le.PutUint32(ent[8:], uint32(data.Len()))
		le.PutUint32(ent[12:], uint32(len(e.Data)))
		le.PutUint16(ent[16:], 0xffff)
		tree.Write(ent[:])
		tree.Write(e.Preload)
		data.Write(e.Data)
	}
	if !first {
		tree.WriteString("\x00\x00")
	}
	tree.WriteString("\x00")

	var dirFile bytes.Buffer
	var h [28]byte
	le.PutUint32(h[0:], 0x55aa1234)
	le.PutUint32(h[4:], b.version())
	le.PutUint32(h[8:], uint32(tree.Len()))
	if b.version() == 2 {
		le.PutUint32(h[12:], uint32(embedded.Len()))
	}
	dirFile.Write(h[:b.HeaderSize()])
	dirFile.Write(tree.Bytes())
	dirFile.Write(embedded.Bytes())
	files.Dir = dirFile.Bytes()

	for i, buf := range archives {
		files.Archives[i] = buf.Bytes()
	}
	return files
}

// WriteFiles writes <prefix>_dir.vpk and <prefix>_NNN.vpk into dir and
// returns the path of the directory file.
func (b *VPKBuilder) WriteFiles(dir, prefix string) (string, error) {
	files := b.Build()
	dirPath := filepath.Join(dir, prefix+"_dir.vpk")
	if err := os.WriteFile(dirPath, files.Dir, 0644); err != nil {
		return "", fmt.Errorf("os.WriteFile: %w", err)
	}
	for i, data := range files.Archives {
		p := filepath.Join(dir, fmt.Sprintf("%s_%03d.vpk", prefix, i))
		if err := os.WriteFile(p, data, 0644); err != nil {
			return "", fmt.Errorf("os.WriteFile: %w", err)
		}
	}
	return dirPath, nil
}

func (e VPKEntry) crc() uint32 {
	if e.CRC != nil {
		return *e.CRC
	}
	crc := crc32.ChecksumIEEE(e.Preload)
	return crc32.Update(crc, crc32.IEEETable, e.Data)
}
