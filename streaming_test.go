// streaming_test.go: Test cases for streaming encryption/decryption.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamFixture(t *testing.T, method string) (Algorithm, []byte, []byte) {
	t.Helper()
	alg, err := LookupAlgorithm(method)
	require.NoError(t, err)
	key := make([]byte, alg.KeyLen)
	_, err = rand.Read(key)
	require.NoError(t, err)
	iv := make([]byte, alg.IVLen)
	_, err = rand.Read(iv)
	require.NoError(t, err)
	return alg, key, iv
}

// writeInPieces feeds data to w in uneven pieces.
func writeInPieces(t *testing.T, w interface{ Write([]byte) (int, error) }, data []byte) {
	t.Helper()
	sizes := []int{1, 7, 16, 333, 4096, 70000}
	for i := 0; len(data) > 0; i++ {
		n := sizes[i%len(sizes)]
		if n > len(data) {
			n = len(data)
		}
		written, err := w.Write(data[:n])
		require.NoError(t, err)
		require.Equal(t, n, written)
		data = data[n:]
	}
}

func encryptStream(t *testing.T, alg Algorithm, key, iv, plaintext []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	enc, err := NewStreamingEncryptor(&out, alg, key, iv)
	require.NoError(t, err)
	writeInPieces(t, enc, plaintext)
	require.NoError(t, enc.Close())
	return out.Bytes()
}

func decryptStream(alg Algorithm, key, iv, ciphertext []byte) ([]byte, error) {
	var out bytes.Buffer
	dec, err := NewStreamingDecryptor(&out, alg, key, iv)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Write(ciphertext); err != nil {
		_ = dec.Close()
		return nil, err
	}
	if err := dec.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func TestStreaming_RoundTripAllMethods(t *testing.T) {
	sizes := []int{0, 1, 15, 16, 17, GCMSegmentSize - 1, GCMSegmentSize, GCMSegmentSize + 1, 3*GCMSegmentSize + 100}
	for _, method := range SupportedAlgorithms() {
		for _, size := range sizes {
			t.Run(fmt.Sprintf("%s/%d", method, size), func(t *testing.T) {
				alg, key, iv := streamFixture(t, method)
				plaintext := make([]byte, size)
				_, err := rand.Read(plaintext)
				require.NoError(t, err)

				ct := encryptStream(t, alg, key, iv, plaintext)
				got, err := decryptStream(alg, key, iv, ct)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(plaintext, got))
			})
		}
	}
}

func TestStreaming_BodyLengths(t *testing.T) {
	alg, key, iv := streamFixture(t, "AES-256-GCM")
	ct := encryptStream(t, alg, key, iv, make([]byte, 2*GCMSegmentSize))
	assert.Len(t, ct, 2*(GCMSegmentSize+AuthTagSize), "two full segments, the last one final")

	ct = encryptStream(t, alg, key, iv, nil)
	assert.Len(t, ct, AuthTagSize, "empty input is one empty final segment")

	alg, key, iv = streamFixture(t, "AES-128-CBC")
	ct = encryptStream(t, alg, key, iv, make([]byte, 32))
	assert.Len(t, ct, 48, "CBC always adds a padding block")

	alg, key, iv = streamFixture(t, "AES-192-CTR")
	ct = encryptStream(t, alg, key, iv, make([]byte, 33))
	assert.Len(t, ct, 33)
}

func TestStreaming_MatchesWholeBuffer(t *testing.T) {
	for _, method := range []string{"AES-256-CBC", "AES-256-CTR"} {
		alg, key, iv := streamFixture(t, method)
		plaintext := bytes.Repeat([]byte("abcdefghij"), 10000)
		streamed := encryptStream(t, alg, key, iv, plaintext)
		whole, err := sealBytes(alg, key, iv, plaintext)
		require.NoError(t, err)
		assert.Equal(t, whole, streamed, method)
	}
}

func TestStreaming_GCMTamperDetection(t *testing.T) {
	alg, key, iv := streamFixture(t, "AES-128-GCM")
	plaintext := make([]byte, 2*GCMSegmentSize+10)
	ct := encryptStream(t, alg, key, iv, plaintext)

	for _, pos := range []int{0, GCMSegmentSize + 3, len(ct) - 1} {
		tampered := append([]byte(nil), ct...)
		tampered[pos] ^= 0x80
		_, err := decryptStream(alg, key, iv, tampered)
		assert.True(t, errors.Is(err, ErrAuthentication), "flip at %d", pos)
	}
}

func TestStreaming_GCMTruncationAndReorder(t *testing.T) {
	alg, key, iv := streamFixture(t, "AES-256-GCM")
	seg := GCMSegmentSize + AuthTagSize
	ct := encryptStream(t, alg, key, iv, make([]byte, 2*GCMSegmentSize+5))
	require.Len(t, ct, 2*seg+5+AuthTagSize)

	_, err := decryptStream(alg, key, iv, ct[:2*seg])
	assert.True(t, errors.Is(err, ErrAuthentication), "dropping the final segment must fail")

	_, err = decryptStream(alg, key, iv, ct[:10])
	assert.True(t, errors.Is(err, ErrCorruptEnvelope))

	reordered := append(append(append([]byte(nil), ct[seg:2*seg]...), ct[:seg]...), ct[2*seg:]...)
	_, err = decryptStream(alg, key, iv, reordered)
	assert.True(t, errors.Is(err, ErrAuthentication))
}

func TestStreaming_CBCErrors(t *testing.T) {
	alg, key, iv := streamFixture(t, "AES-256-CBC")
	ct := encryptStream(t, alg, key, iv, []byte("some plaintext"))

	_, err := decryptStream(alg, key, iv, ct[:len(ct)-1])
	assert.True(t, errors.Is(err, ErrCorruptEnvelope))

	_, err = decryptStream(alg, key, iv, nil)
	assert.True(t, errors.Is(err, ErrCorruptEnvelope))

	wrongKey := make([]byte, len(key))
	copy(wrongKey, key)
	wrongKey[0] ^= 1
	// A wrong key almost always breaks the padding; when it does not, the
	// plaintext differs.
	got, err := decryptStream(alg, wrongKey, iv, ct)
	if err == nil {
		assert.NotEqual(t, []byte("some plaintext"), got)
	} else {
		assert.True(t, errors.Is(err, ErrAuthentication))
	}
}

func TestStreaming_InvalidParameters(t *testing.T) {
	alg, key, iv := streamFixture(t, "AES-256-GCM")
	_, err := NewStreamingEncryptor(&bytes.Buffer{}, alg, key, iv[:8])
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = NewStreamingDecryptor(&bytes.Buffer{}, alg, key[:16], iv)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestStreaming_WriteAfterClose(t *testing.T) {
	for _, method := range []string{"AES-128-CBC", "AES-128-CTR", "AES-128-GCM"} {
		alg, key, iv := streamFixture(t, method)
		enc, err := NewStreamingEncryptor(&bytes.Buffer{}, alg, key, iv)
		require.NoError(t, err)
		require.NoError(t, enc.Close())
		assert.NoError(t, enc.Close(), "second close is a no-op")
		_, err = enc.Write([]byte("late"))
		assert.True(t, errors.Is(err, ErrInvalidInput), method)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestStreaming_WriterFailureIsIO(t *testing.T) {
	alg, key, iv := streamFixture(t, "AES-256-CTR")
	enc, err := NewStreamingEncryptor(failWriter{}, alg, key, iv)
	require.NoError(t, err)
	_, err = enc.Write([]byte("data"))
	assert.Equal(t, KindIO, KindOf(err))
}

func TestPump(t *testing.T) {
	src := bytes.Repeat([]byte{1, 2, 3}, 50000)
	var dst bytes.Buffer
	n, err := pump(&dst, bytes.NewReader(src), 4096)
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), n)
	assert.Equal(t, src, dst.Bytes())
}
