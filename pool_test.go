// pool_test.go: Buffer pooling tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBufferPoolBasic verifies basic get/put operations of the buffer pools
func TestBufferPoolBasic(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"Small buffer (12B)", 12},
		{"Small buffer (32B)", 32},
		{"Medium buffer (1KB)", 1024},
		{"Chunk buffer (64KB)", DefaultChunkSize},
		{"Oversized buffer (1MB)", 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := getBuffer(tt.size)
			require.NotNil(t, buf)
			assert.Len(t, *buf, tt.size)
			for i := range *buf {
				(*buf)[i] = byte(i)
			}
			putBuffer(buf)
		})
	}
}

// TestPutBufferClears verifies that returned buffers are wiped over their full capacity.
func TestPutBufferClears(t *testing.T) {
	buf := getBuffer(DefaultChunkSize)
	for i := range *buf {
		(*buf)[i] = 0xff
	}
	*buf = (*buf)[:10]
	putBuffer(buf)

	full := (*buf)[:cap(*buf)]
	for i, b := range full {
		if b != 0 {
			t.Fatalf("byte %d not cleared after putBuffer", i)
		}
	}
}

func TestClearBuffer_OddLengths(t *testing.T) {
	for _, n := range []int{0, 1, 7, 63, 64, 65, 100, 1023} {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = 0xaa
		}
		clearBuffer(buf)
		assert.Equal(t, make([]byte, n), buf, "length %d", n)
	}
}

func TestPutBuffer_Nil(t *testing.T) {
	assert.NotPanics(t, func() { putBuffer(nil) })
}

func TestBufferPoolConcurrent(t *testing.T) {
	WarmupPools(4)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed byte) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf := getBuffer(DefaultChunkSize)
				(*buf)[0] = seed
				putBuffer(buf)
			}
		}(byte(g))
	}
	wg.Wait()
}
