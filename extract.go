// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/internal/pathutil"
	"github.com/bpowers/pakfs/stream"
)

// Extract writes it beneath the host directory dir.  A folder is written as
// a directory of the same name holding its children; the root folder writes
// its children directly into dir.  Characters that are not allowed in host
// file names are removed from item names.
func (p *Package) Extract(it dirtree.Item, dir string) error {
	if err := p.checkItem(it); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}

	switch it := it.(type) {
	case *dirtree.Folder:
		if it.Parent() != nil {
			dir = filepath.Join(dir, hostName(it))
		}
		return p.extractFolder(it, dir)
	case *dirtree.File:
		return p.extractFile(it, filepath.Join(dir, hostName(it)))
	}
	return ErrForeignItem
}

// hostName is the item's name stripped of characters a host file system
// may reject.
func hostName(it dirtree.Item) string {
	name := pathutil.RemoveIllegalCharacters(it.Name())
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name
}

func (p *Package) extractFolder(folder *dirtree.Folder, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}
	for _, child := range folder.Children() {
		target := filepath.Join(dir, hostName(child))
		var err error
		switch child := child.(type) {
		case *dirtree.Folder:
			err = p.extractFolder(child, target)
		case *dirtree.File:
			err = p.extractFile(child, target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes f to a temporary file next to dest and renames it into
// place, so dest is either complete or untouched.
func (p *Package) extractFile(f *dirtree.File, dest string) (err error) {
	s, err := p.CreateStream(f)
	if err != nil {
		return err
	}
	defer p.ReleaseStream(s)
	if err := s.Open(stream.ModeRead); err != nil {
		return fmt.Errorf("%s: %w", f.Path(), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".pakfs-")
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, s)
	if err != nil {
		return fmt.Errorf("%s: io.Copy: %w", f.Path(), err)
	}
	if n != s.Size() {
		return fmt.Errorf("%s: short read of %d/%d bytes: %w", f.Path(), n, s.Size(), io.ErrUnexpectedEOF)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("tmp.Close: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("os.Chmod: %w", err)
	}

	if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
		err = &os.PathError{Op: "extract", Path: dest, Err: errIsDir}
		return err
	} else if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		err = fmt.Errorf("os.Stat: %w", statErr)
		return err
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}

	p.logger.Debug("extracted file", "path", f.Path(), "dest", dest, "size", n)
	return nil
}
