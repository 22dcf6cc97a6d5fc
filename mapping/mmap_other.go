// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !unix

package mapping

// openMmap falls back to positioned reads where mmap(2) is unavailable.
func openMmap(path string, _ options) (Mapping, error) {
	return Open(path, WithBacking(Pread))
}
