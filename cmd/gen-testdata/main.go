// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata writes sample archives for manual testing: a stored ZIP and
// a VPK split into a directory file and numbered archives.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/bpowers/pakfs"
	"github.com/bpowers/pakfs/dirtree"
	"github.com/bpowers/pakfs/format"
	"github.com/bpowers/pakfs/internal/testutil"
)

var (
	outDir   = flag.String("out", "testdata", "directory to write archives into")
	nFiles   = flag.Int("files", 64, "number of files per archive")
	maxSize  = flag.Int("max-size", 128<<10, "maximum file size in bytes")
	archives = flag.Int("archives", 3, "number of numbered VPK archives")
	seed     = flag.Int64("seed", 1, "random seed")
)

var (
	dirs = []string{"materials", "materials/brick", "models/props", "sound/ui", "scripts"}
	exts = []string{"vmt", "vtf", "mdl", "wav", "txt"}
)

func randomData(rng *rand.Rand) []byte {
	data := make([]byte, rng.Intn(*maxSize+1))
	_, _ = rng.Read(data)
	return data
}

func randomPath(rng *rand.Rand, i int) string {
	return fmt.Sprintf("%s/file_%04d.%s", dirs[rng.Intn(len(dirs))], i, exts[rng.Intn(len(exts))])
}

func writeZip(rng *rand.Rand, path string) error {
	b := &testutil.ZipBuilder{Comment: "pakfs sample"}
	for i := 0; i < *nFiles; i++ {
		b.Add(randomPath(rng, i), randomData(rng))
	}
	return b.WriteFile(path)
}

func writeVPK(rng *rand.Rand, dir string) (string, error) {
	b := &testutil.VPKBuilder{Version: 2}
	for i := 0; i < *nFiles; i++ {
		e := testutil.VPKEntry{Path: randomPath(rng, i)}
		switch rng.Intn(4) {
		case 0:
			e.Preload = make([]byte, 1+rng.Intn(255))
			_, _ = rng.Read(e.Preload)
			e.Archive = testutil.VPKDirArchive
		case 1:
			e.Data = randomData(rng)
			e.Archive = testutil.VPKDirArchive
		default:
			e.Preload = make([]byte, rng.Intn(16))
			_, _ = rng.Read(e.Preload)
			e.Data = randomData(rng)
			e.Archive = uint16(rng.Intn(*archives))
		}
		b.Add(e)
	}
	return b.WriteFiles(dir, "pak01")
}

// verify reopens path and validates every file in it.
func verify(path string, logger *slog.Logger) error {
	p, err := pakfs.Open(path, pakfs.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Close()
	}()

	var bad int
	err = p.Root().Walk(func(it dirtree.Item) error {
		f, ok := it.(*dirtree.File)
		if !ok {
			return nil
		}
		v, err := p.FileValidation(f, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Path(), err)
		}
		if v != format.OK {
			logger.Warn("file failed validation", "path", f.Path(), "result", v)
			bad++
		}
		return nil
	})
	if err != nil {
		return err
	}
	if bad > 0 {
		return fmt.Errorf("%s: %d files failed validation", path, bad)
	}
	logger.Info("wrote package", "path", path, "type", p.Type(), "files", p.Root().FileCount(true))
	return nil
}

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *nFiles < 0 || *maxSize < 256 || *archives < 1 {
		fmt.Fprintln(os.Stderr, "gen-testdata: -files must be >= 0, -max-size >= 256 and -archives >= 1")
		os.Exit(2)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("os.MkdirAll", "err", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))

	zipPath := filepath.Join(*outDir, "sample.zip")
	if err := writeZip(rng, zipPath); err != nil {
		logger.Error("writeZip", "err", err)
		os.Exit(1)
	}
	vpkPath, err := writeVPK(rng, *outDir)
	if err != nil {
		logger.Error("writeVPK", "err", err)
		os.Exit(1)
	}

	for _, path := range []string{zipPath, vpkPath} {
		if err := verify(path, logger); err != nil {
			logger.Error("verify", "err", err)
			os.Exit(1)
		}
	}
}
