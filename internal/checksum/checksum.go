// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package checksum provides the running checksum archive formats store for
// their entries.  It continues from a previous value so large files can be
// checksummed a chunk at a time.
package checksum

import "hash/crc32"

// CRC32 continues the IEEE CRC-32 of previous data (crc, 0 to start) with buf.
func CRC32(buf []byte, crc uint32) uint32 {
	return crc32.Update(crc, crc32.IEEETable, buf)
}
