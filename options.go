// options.go: Functional options for NewEngine.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = discardLogger()
		}
		e.logger = logger
		return nil
	}
}

// WithAuditSink sets the audit sink. nil disables auditing.
func WithAuditSink(sink AuditSink) Option {
	return func(e *Engine) error {
		e.auditSink = sink
		return nil
	}
}

// WithPixelCodec replaces the PNG codec used by the steganography operations.
func WithPixelCodec(codec PixelCodec) Option {
	return func(e *Engine) error {
		if codec == nil {
			return newError(ErrInvalidInput, ErrCodeInvalidInput, "pixel codec cannot be nil")
		}
		e.pixels = codec
		return nil
	}
}

// WithChunkSize sets the read buffer size for streaming file operations.
func WithChunkSize(size int) Option {
	return func(e *Engine) error {
		if size < MinChunkSize || size > MaxChunkSize {
			return newError(ErrInvalidInput, ErrCodeInvalidInput,
				fmt.Sprintf("chunk size must be between %d and %d, got %d", MinChunkSize, MaxChunkSize, size))
		}
		e.chunkSize = size
		return nil
	}
}

// WithOutputSuffix sets the extension appended to encrypted files.
func WithOutputSuffix(suffix string) Option {
	return func(e *Engine) error {
		if !strings.HasPrefix(suffix, ".") || len(suffix) < 2 {
			return newError(ErrInvalidInput, ErrCodeInvalidInput, "output suffix must start with a dot")
		}
		e.outputSuffix = suffix
		return nil
	}
}

// WithDefaultMethod sets the cipher used when callers pass an empty method.
func WithDefaultMethod(method string) Option {
	return func(e *Engine) error {
		alg, err := LookupAlgorithm(method)
		if err != nil {
			return err
		}
		e.method = alg.Name
		return nil
	}
}

// WithConfig applies method, chunk size and suffix from cfg.
func WithConfig(cfg Config) Option {
	return func(e *Engine) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		for _, opt := range []Option{
			WithDefaultMethod(cfg.DefaultMethod),
			WithChunkSize(cfg.ChunkSize),
			WithOutputSuffix(cfg.OutputSuffix),
		} {
			if err := opt(e); err != nil {
				return err
			}
		}
		return nil
	}
}
