// streaming.go: Streaming encryption/decryption of envelope bodies in bounded memory.
//
// CBC and CTR bodies are one continuous cipher stream. GCM bodies are split into
// segments of GCMSegmentSize plaintext bytes, each sealed with its own nonce and
// with the segment index and a final-segment flag as additional data, so that
// reordering, truncation and extension of the body are all detected.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// GCMSegmentSize is the plaintext size of every GCM body segment except the last.
// It is part of the envelope format.
const GCMSegmentSize = 64 * 1024

// StreamingEncryptor encrypts everything written to it into an underlying writer.
//
// Example usage:
//
//	enc, _ := arocrypt.NewStreamingEncryptor(out, alg, key, iv)
//	if _, err := io.Copy(enc, in); err != nil {
//		return err
//	}
//	return enc.Close() // writes the padding block or the final GCM segment
type StreamingEncryptor interface {
	// Write encrypts data and forwards complete blocks or segments.
	Write(data []byte) (int, error)

	// Close finalizes the body. Must be called to ensure data integrity.
	Close() error
}

// StreamingDecryptor decrypts a body written to it and forwards plaintext to an
// underlying writer. Close verifies the end of the body.
type StreamingDecryptor interface {
	Write(data []byte) (int, error)
	Close() error
}

var errStreamClosed = errors.New("stream already closed")

// NewStreamingEncryptor returns an encryptor for alg writing ciphertext to w.
func NewStreamingEncryptor(w io.Writer, alg Algorithm, key, iv []byte) (StreamingEncryptor, error) {
	if err := checkIV(alg, iv); err != nil {
		return nil, err
	}
	switch alg.Mode {
	case ModeGCM:
		aead, err := newGCM(alg, key)
		if err != nil {
			return nil, err
		}
		return &gcmEncryptor{gcmSegmenter: newGCMSegmenter(w, aead, iv, GCMSegmentSize)}, nil
	case ModeCBC:
		block, err := newBlock(alg, key)
		if err != nil {
			return nil, err
		}
		return &cbcEncryptor{w: w, mode: cipher.NewCBCEncrypter(block, iv), buf: getBuffer(DefaultChunkSize)}, nil
	default:
		block, err := newBlock(alg, key)
		if err != nil {
			return nil, err
		}
		return &ctrStream{w: w, stream: cipher.NewCTR(block, iv), buf: getBuffer(DefaultChunkSize)}, nil
	}
}

// NewStreamingDecryptor returns a decryptor for alg writing plaintext to w.
func NewStreamingDecryptor(w io.Writer, alg Algorithm, key, iv []byte) (StreamingDecryptor, error) {
	if err := checkIV(alg, iv); err != nil {
		return nil, err
	}
	switch alg.Mode {
	case ModeGCM:
		aead, err := newGCM(alg, key)
		if err != nil {
			return nil, err
		}
		return &gcmDecryptor{gcmSegmenter: newGCMSegmenter(w, aead, iv, GCMSegmentSize+AuthTagSize)}, nil
	case ModeCBC:
		block, err := newBlock(alg, key)
		if err != nil {
			return nil, err
		}
		return &cbcDecryptor{w: w, mode: cipher.NewCBCDecrypter(block, iv), buf: getBuffer(DefaultChunkSize)}, nil
	default:
		block, err := newBlock(alg, key)
		if err != nil {
			return nil, err
		}
		return &ctrStream{w: w, stream: cipher.NewCTR(block, iv), buf: getBuffer(DefaultChunkSize)}, nil
	}
}

func writeOut(w io.Writer, p []byte) error {
	if _, err := w.Write(p); err != nil {
		if KindOf(err) != KindUnknown {
			return err
		}
		return wrapError(ErrIO, err, ErrCodeIO, "failed to write stream output")
	}
	return nil
}

// ctrStream is symmetric: the same keystream encrypts and decrypts.
type ctrStream struct {
	w      io.Writer
	stream cipher.Stream
	buf    *[]byte
	closed bool
}

func (s *ctrStream) Write(data []byte) (int, error) {
	if s.closed {
		return 0, newError(ErrInvalidInput, ErrCodeInvalidInput, errStreamClosed.Error())
	}
	written := 0
	for len(data) > 0 {
		n := copy(*s.buf, data)
		s.stream.XORKeyStream((*s.buf)[:n], data[:n])
		if err := writeOut(s.w, (*s.buf)[:n]); err != nil {
			return written, err
		}
		data = data[n:]
		written += n
	}
	return written, nil
}

func (s *ctrStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	putBuffer(s.buf)
	return nil
}

// cbcEncryptor encrypts whole blocks as they arrive and pads the tail on Close.
type cbcEncryptor struct {
	w       io.Writer
	mode    cipher.BlockMode
	buf     *[]byte
	tail    [aes.BlockSize]byte
	tailLen int
	closed  bool
}

func (e *cbcEncryptor) Write(data []byte) (int, error) {
	if e.closed {
		return 0, newError(ErrInvalidInput, ErrCodeInvalidInput, errStreamClosed.Error())
	}
	total := len(data)
	if e.tailLen > 0 {
		n := copy(e.tail[e.tailLen:], data)
		e.tailLen += n
		data = data[n:]
		if e.tailLen < aes.BlockSize {
			return total, nil
		}
		e.mode.CryptBlocks(e.tail[:], e.tail[:])
		if err := writeOut(e.w, e.tail[:]); err != nil {
			return 0, err
		}
		e.tailLen = 0
	}
	for len(data) >= aes.BlockSize {
		n := len(data) - len(data)%aes.BlockSize
		if n > len(*e.buf) {
			n = len(*e.buf)
		}
		out := (*e.buf)[:n]
		e.mode.CryptBlocks(out, data[:n])
		if err := writeOut(e.w, out); err != nil {
			return 0, err
		}
		data = data[n:]
	}
	e.tailLen = copy(e.tail[:], data)
	return total, nil
}

func (e *cbcEncryptor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	defer putBuffer(e.buf)

	padLen := aes.BlockSize - e.tailLen
	for i := e.tailLen; i < aes.BlockSize; i++ {
		e.tail[i] = byte(padLen)
	}
	e.mode.CryptBlocks(e.tail[:], e.tail[:])
	err := writeOut(e.w, e.tail[:])
	clearBuffer(e.tail[:])
	return err
}

// cbcDecryptor always holds back the last complete block, which carries the padding.
type cbcDecryptor struct {
	w      io.Writer
	mode   cipher.BlockMode
	buf    *[]byte
	n      int
	closed bool
}

func (d *cbcDecryptor) Write(data []byte) (int, error) {
	if d.closed {
		return 0, newError(ErrInvalidInput, ErrCodeInvalidInput, errStreamClosed.Error())
	}
	total := len(data)
	pend := *d.buf
	for len(data) > 0 {
		n := copy(pend[d.n:], data)
		d.n += n
		data = data[n:]
		if d.n == len(pend) {
			k := d.n - aes.BlockSize
			d.mode.CryptBlocks(pend[:k], pend[:k])
			if err := writeOut(d.w, pend[:k]); err != nil {
				return 0, err
			}
			copy(pend, pend[k:d.n])
			d.n = aes.BlockSize
		}
	}
	return total, nil
}

func (d *cbcDecryptor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	defer putBuffer(d.buf)

	if d.n == 0 || d.n%aes.BlockSize != 0 {
		return newError(ErrCorruptEnvelope, ErrCodeCorrupt, "CBC body is not a whole number of blocks")
	}
	pend := (*d.buf)[:d.n]
	d.mode.CryptBlocks(pend, pend)
	plain, err := pkcs7Unpad(pend, aes.BlockSize)
	if err != nil {
		return err
	}
	return writeOut(d.w, plain)
}

// gcmSegmenter buffers one segment and derives per-segment nonces and additional data.
type gcmSegmenter struct {
	w       io.Writer
	aead    cipher.AEAD
	iv      []byte
	seg     *[]byte
	limit   int
	n       int
	counter uint32
	nonce   [GCMNonceSize]byte
	aad     [5]byte
	closed  bool
}

func newGCMSegmenter(w io.Writer, aead cipher.AEAD, iv []byte, limit int) gcmSegmenter {
	ivCopy := make([]byte, len(iv))
	copy(ivCopy, iv)
	return gcmSegmenter{
		w:     w,
		aead:  aead,
		iv:    ivCopy,
		seg:   getBuffer(GCMSegmentSize + AuthTagSize),
		limit: limit,
	}
}

// next prepares nonce and aad for the current segment.
func (s *gcmSegmenter) next(final bool) error {
	if !final && s.counter == math.MaxUint32 {
		return newError(ErrInvalidInput, ErrCodeInvalidInput, "too many GCM segments")
	}
	copy(s.nonce[:], s.iv)
	var ctr [4]byte
	binary.BigEndian.PutUint32(ctr[:], s.counter)
	for i := 0; i < 4; i++ {
		s.nonce[GCMNonceSize-4+i] ^= ctr[i]
	}
	copy(s.aad[:4], ctr[:])
	s.aad[4] = 0
	if final {
		s.aad[4] = 1
	}
	return nil
}

// fill copies data into the segment buffer, calling flush whenever a full
// segment is followed by more data.
func (s *gcmSegmenter) fill(data []byte, flush func(final bool) error) (int, error) {
	if s.closed {
		return 0, newError(ErrInvalidInput, ErrCodeInvalidInput, errStreamClosed.Error())
	}
	total := len(data)
	buf := (*s.seg)[:s.limit]
	for len(data) > 0 {
		if s.n == s.limit {
			if err := flush(false); err != nil {
				return 0, err
			}
		}
		k := copy(buf[s.n:], data)
		s.n += k
		data = data[k:]
	}
	return total, nil
}

type gcmEncryptor struct {
	gcmSegmenter
}

func (e *gcmEncryptor) Write(data []byte) (int, error) {
	return e.fill(data, e.flush)
}

func (e *gcmEncryptor) flush(final bool) error {
	if err := e.next(final); err != nil {
		return err
	}
	seg := *e.seg
	out := e.aead.Seal(seg[:0], e.nonce[:], seg[:e.n], e.aad[:]) // #nosec G407 -- nonce derived from a random IV and a unique counter
	if err := writeOut(e.w, out); err != nil {
		return err
	}
	e.counter++
	e.n = 0
	return nil
}

// Close seals the remaining plaintext, possibly empty, as the final segment.
func (e *gcmEncryptor) Close() error {
	if e.closed {
		return nil
	}
	err := e.flush(true)
	e.closed = true
	putBuffer(e.seg)
	return err
}

type gcmDecryptor struct {
	gcmSegmenter
}

func (d *gcmDecryptor) Write(data []byte) (int, error) {
	return d.fill(data, d.open)
}

func (d *gcmDecryptor) open(final bool) error {
	if err := d.next(final); err != nil {
		return err
	}
	seg := *d.seg
	plain, err := d.aead.Open(seg[:0], d.nonce[:], seg[:d.n], d.aad[:])
	if err != nil {
		return wrapError(ErrAuthentication, err, ErrCodeAuthentication, "GCM segment authentication failed")
	}
	if err := writeOut(d.w, plain); err != nil {
		return err
	}
	d.counter++
	d.n = 0
	return nil
}

// Close authenticates the final segment.
func (d *gcmDecryptor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	defer putBuffer(d.seg)
	if d.n < AuthTagSize {
		return newError(ErrCorruptEnvelope, ErrCodeCorrupt, "GCM body truncated")
	}
	return d.open(true)
}

// pump copies src into dst through a pooled chunk buffer of chunkSize bytes.
func pump(dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	buf := getBuffer(chunkSize)
	defer putBuffer(buf)
	var total int64
	for {
		n, err := src.Read(*buf)
		if n > 0 {
			if _, werr := dst.Write((*buf)[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, wrapError(ErrIO, err, ErrCodeIO, "failed to read input")
		}
	}
}
