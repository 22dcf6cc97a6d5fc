// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package format

import (
	"errors"
	"fmt"
	"io"

	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/internal/checksum"
	"github.com/bpowers/pakfs/stream"
)

// ChunkSize is how many bytes validation reads between progress callbacks.
const ChunkSize = 0x8000

// ValidateCRC32 reads s in ChunkSize chunks, computing its CRC32 and
// comparing it against expected.  progress is called once before the first
// chunk and after every chunk; once it asks to cancel no further chunk is
// read and Canceled is returned.  s must be closed; it is opened and closed
// here.
func ValidateCRC32(f *dirtree.File, s stream.Stream, expected uint32, progress ProgressFunc) (Validation, error) {
	if err := s.Open(stream.ModeRead); err != nil {
		return Corrupt, fmt.Errorf("s.Open(%s): %w", s.Name(), err)
	}
	defer func() {
		_ = s.Close()
	}()

	total := s.Size()
	if progress != nil && progress(f, 0, total) {
		return Canceled, nil
	}

	var buf [ChunkSize]byte
	var crc uint32
	var done int64
	for done < total {
		want := int64(len(buf))
		if remaining := total - done; want > remaining {
			want = remaining
		}
		n, err := io.ReadFull(s, buf[:want])
		crc = checksum.CRC32(buf[:n], crc)
		done += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = fmt.Errorf("%w: %s ended after %d of %d bytes", ErrInvalidFile, s.Name(), done, total)
			}
			return Corrupt, err
		}
		if progress != nil && progress(f, done, total) {
			return Canceled, nil
		}
	}

	if crc != expected {
		return Corrupt, nil
	}
	return OK, nil
}
