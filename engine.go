// engine.go: Engine runs the text, file and steganography codecs.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Engine holds the collaborators shared by codec operations: logger, audit sink,
// pixel codec and streaming parameters. It holds no key material; every call
// receives its own providers. An Engine is safe for concurrent use.
type Engine struct {
	logger       logrus.FieldLogger
	auditSink    AuditSink
	pixels       PixelCodec
	chunkSize    int
	outputSuffix string
	method       string
}

// NewEngine creates an engine with defaults overridden by opts.
//
// Example:
//
//	logger, _ := arocrypt.NewLogger(cfg.Log)
//	engine, err := arocrypt.NewEngine(
//		arocrypt.WithConfig(cfg),
//		arocrypt.WithLogger(logger),
//		arocrypt.WithAuditSink(arocrypt.LogAuditSink{Logger: logger}),
//	)
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:       discardLogger(),
		pixels:       PNGCodec{},
		chunkSize:    DefaultChunkSize,
		outputSuffix: DefaultOutputSuffix,
		method:       DefaultMethod,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// DefaultMethod returns the cipher used when callers pass an empty method.
func (e *Engine) DefaultMethod() string {
	return e.method
}

func (e *Engine) resolveMethod(method string) (Algorithm, error) {
	if method == "" {
		method = e.method
	}
	return LookupAlgorithm(method)
}

// checkContext reports cancellation before any cipher work begins.
func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "operation cancelled")
	}
	return nil
}

// passphrase fetches key material and classifies provider failures.
func passphrase(ctx context.Context, provider PassphraseProvider) ([]byte, error) {
	if provider == nil {
		return nil, ErrKeyNotConfigured
	}
	p, err := provider.Passphrase(ctx)
	if err != nil {
		if KindOf(err) == KindUnknown {
			return nil, wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "passphrase provider failed")
		}
		return nil, err
	}
	if len(p) == 0 {
		return nil, ErrKeyNotConfigured
	}
	return p, nil
}

func kemKeyPair(ctx context.Context, provider KemKeyProvider) (*KemKeyPair, error) {
	if provider == nil {
		return nil, ErrKeyNotConfigured
	}
	pair, err := provider.KemKeyPair(ctx)
	if err != nil {
		if KindOf(err) == KindUnknown {
			return nil, wrapError(ErrInvalidInput, err, ErrCodeKem, "KEM key provider failed")
		}
		return nil, err
	}
	if pair == nil {
		return nil, ErrKeyNotConfigured
	}
	return pair, nil
}
