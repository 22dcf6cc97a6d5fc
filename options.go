// Copyright 2026 The pakfs Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfs

import (
	"io"
	"log/slog"

	"github.com/bpowers/pakfs/format"
	"github.com/bpowers/pakfs/mapping"
)

// Option configures Open and New.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	mappingOpts []mapping.Option
	typ         format.Type
}

func newOptions(opts []Option) options {
	var options options
	options.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return options
}

// WithLogger sets an optional logger for reporting package lifecycle events,
// skipped directory entries and missing split-archive members.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithBacking selects how the package file is made resident.  The default
// is mapping.Mmap where available.
func WithBacking(b mapping.Backing) Option {
	return func(opts *options) {
		opts.mappingOpts = append(opts.mappingOpts, mapping.WithBacking(b))
	}
}

// WithWindowSize sets the minimum size of memory-mapped windows.
func WithWindowSize(n int64) Option {
	return func(opts *options) {
		opts.mappingOpts = append(opts.mappingOpts, mapping.WithWindowSize(n))
	}
}

// WithIdleWindows sets how many released windows stay mapped for reuse.
func WithIdleWindows(n int) Option {
	return func(opts *options) {
		opts.mappingOpts = append(opts.mappingOpts, mapping.WithIdleWindows(n))
	}
}

// WithFormat skips format detection in Open.
func WithFormat(t format.Type) Option {
	return func(opts *options) {
		opts.typ = t
	}
}
