// pool.go: Buffer pooling for chunked file processing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"sync"
)

// DefaultChunkSize is the plaintext chunk size used when streaming files.
const DefaultChunkSize = 64 * 1024

var (
	// Small buffers for nonces, IVs and salts.
	smallBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 32)
			return &buf
		},
	}

	// Chunk buffers for streaming file bodies.
	chunkBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, DefaultChunkSize)
			return &buf
		},
	}
)

// getBuffer retrieves a buffer of length size from the matching pool.
func getBuffer(size int) *[]byte {
	switch {
	case size <= 32:
		buf := smallBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= DefaultChunkSize:
		buf := chunkBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	default:
		buf := make([]byte, size)
		return &buf
	}
}

// clearBuffer zeroes buf, eight bytes per iteration for large buffers.
func clearBuffer(buf []byte) {
	if len(buf) <= 64 {
		for i := range buf {
			buf[i] = 0
		}
		return
	}

	i := 0
	for i < len(buf)-7 {
		buf[i] = 0
		buf[i+1] = 0
		buf[i+2] = 0
		buf[i+3] = 0
		buf[i+4] = 0
		buf[i+5] = 0
		buf[i+6] = 0
		buf[i+7] = 0
		i += 8
	}
	for i < len(buf) {
		buf[i] = 0
		i++
	}
}

// putBuffer wipes a buffer and returns it to its pool. Buffers of non-standard
// capacity are dropped.
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	clearBuffer((*buf)[:cap(*buf)])

	switch cap(*buf) {
	case 32:
		smallBufferPool.Put(buf)
	case DefaultChunkSize:
		chunkBufferPool.Put(buf)
	}
}

// WarmupPools pre allocates buffers in the pools to reduce cold latency
func WarmupPools(count int) {
	small := make([]*[]byte, count)
	chunks := make([]*[]byte, count)
	for i := 0; i < count; i++ {
		small[i] = getBuffer(32)
		chunks[i] = getBuffer(DefaultChunkSize)
	}
	for i := 0; i < count; i++ {
		putBuffer(small[i])
		putBuffer(chunks[i])
	}
}
