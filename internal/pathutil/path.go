// Copyright 2021 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pathutil tokenizes archive paths independently of the host's
// path separator.
package pathutil

import "strings"

// IsSeparator reports whether c separates path segments inside an archive.
// Both '/' and '\\' are accepted regardless of the host OS.
func IsSeparator(c byte) bool {
	return c == '/' || c == '\\'
}

// Cut slices s around the first separator, returning the text before and
// after it.  The found result reports whether a separator appears in s.
// If it does not, Cut returns s, "", false.
//
// Cut returns substrings of s, not copies.
func Cut(s string) (before, after string, found bool) {
	if i := strings.IndexAny(s, `/\`); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

// Segments returns the non-empty segments of an archive path, so that
// leading, trailing and repeated separators are ignored.
func Segments(s string) []string {
	segs := make([]string, 0, strings.Count(s, "/")+strings.Count(s, `\`)+1)
	for {
		seg, rest, found := Cut(s)
		if seg != "" {
			segs = append(segs, seg)
		}
		if !found {
			return segs
		}
		s = rest
	}
}

// HasTrailingSeparator reports whether s names a directory, as ZIP
// directory entries do.
func HasTrailingSeparator(s string) bool {
	return s != "" && IsSeparator(s[len(s)-1])
}

// illegal holds characters that may not appear in a host file name.
const illegal = `/\?<>:*|"`

// RemoveIllegalCharacters strips characters from name that cannot be used
// in a file name on common host filesystems.
func RemoveIllegalCharacters(name string) string {
	if !strings.ContainsAny(name, illegal) {
		return name
	}
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		if c := name[i]; strings.IndexByte(illegal, c) < 0 {
			b.WriteByte(c)
		}
	}
	return b.String()
}
