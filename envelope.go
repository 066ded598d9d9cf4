// envelope.go: Binary layout of .arocrypt file envelopes.
//
// Versioned layout (written by EncryptFile):
//
//	Version(1)=0x02 ‖ Flags(1) ‖ IV(ivLen) ‖ Salt(16) ‖ [KemLen(4,BE) ‖ KemCT]? ‖ Body ‖ HMAC(32)
//
// Legacy layout (decode only):
//
//	IV(ivLen) ‖ Salt(16) ‖ [KemLen(4,BE) ‖ KemCT]? ‖ Ciphertext ‖ [AuthTag(16)]?
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
)

// EnvelopeVersion is the first byte of every versioned envelope.
const EnvelopeVersion byte = 0x02

// MaxKemSegment bounds the declared length of a KEM ciphertext segment.
const MaxKemSegment = 1 << 20

const (
	flagKEM   byte = 0x01
	flagsMask      = flagKEM
)

// KeyMode selects where the file key comes from.
type KeyMode int

const (
	// KeyModePassphrase derives the key from the passphrase provider.
	KeyModePassphrase KeyMode = iota
	// KeyModeHybrid encapsulates to a ML-KEM-768 public key and derives the key
	// from the shared secret.
	KeyModeHybrid
	// KeyModeDetect follows the envelope. For versioned envelopes this reads the
	// KEM flag; for legacy envelopes it applies the length heuristic.
	KeyModeDetect
)

func (m KeyMode) String() string {
	switch m {
	case KeyModePassphrase:
		return "passphrase"
	case KeyModeHybrid:
		return "hybrid"
	case KeyModeDetect:
		return "detect"
	default:
		return "unknown"
	}
}

// ParseKeyMode parses "passphrase", "hybrid" or "detect".
func ParseKeyMode(s string) (KeyMode, error) {
	switch s {
	case "", "passphrase":
		return KeyModePassphrase, nil
	case "hybrid":
		return KeyModeHybrid, nil
	case "detect":
		return KeyModeDetect, nil
	}
	return 0, newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("unknown key mode %q", s))
}

// Layout selects the envelope layout used for decoding.
type Layout int

const (
	// LayoutVersioned is the current layout with a version byte and HMAC trailer.
	LayoutVersioned Layout = iota
	// LayoutLegacy is the unversioned layout, decoded in memory.
	LayoutLegacy
)

// envelopeHeader is everything in a versioned envelope before the body.
type envelopeHeader struct {
	flags         byte
	iv            []byte
	salt          []byte
	kemCiphertext []byte
}

func (h *envelopeHeader) hasKEM() bool {
	return h.flags&flagKEM != 0
}

func (h *envelopeHeader) marshal() []byte {
	size := 2 + len(h.iv) + len(h.salt)
	if h.hasKEM() {
		size += 4 + len(h.kemCiphertext)
	}
	out := make([]byte, 0, size)
	out = append(out, EnvelopeVersion, h.flags)
	out = append(out, h.iv...)
	out = append(out, h.salt...)
	if h.hasKEM() {
		out = binary.BigEndian.AppendUint32(out, uint32(len(h.kemCiphertext))) // #nosec G115 -- bounded by MaxKemSegment
		out = append(out, h.kemCiphertext...)
	}
	return out
}

// readEnvelopeHeader reads a versioned header from r. It returns the header and
// its raw bytes, which are the first input of the envelope HMAC.
func readEnvelopeHeader(r io.Reader, alg Algorithm) (*envelopeHeader, []byte, error) {
	fixed := make([]byte, 2+alg.IVLen+SaltSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, nil, corruptRead(err, "envelope header truncated")
	}
	if fixed[0] != EnvelopeVersion {
		return nil, nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt,
			fmt.Sprintf("unknown envelope version 0x%02x", fixed[0]))
	}
	h := &envelopeHeader{
		flags: fixed[1],
		iv:    fixed[2 : 2+alg.IVLen],
		salt:  fixed[2+alg.IVLen:],
	}
	if h.flags&^flagsMask != 0 {
		return nil, nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt,
			fmt.Sprintf("unknown envelope flags 0x%02x", h.flags))
	}
	raw := fixed
	if h.hasKEM() {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, nil, corruptRead(err, "KEM segment length truncated")
		}
		kemLen := binary.BigEndian.Uint32(lenBuf[:])
		if kemLen == 0 || kemLen > MaxKemSegment {
			return nil, nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt,
				fmt.Sprintf("invalid KEM segment length %d", kemLen))
		}
		h.kemCiphertext = make([]byte, kemLen)
		if _, err := io.ReadFull(r, h.kemCiphertext); err != nil {
			return nil, nil, corruptRead(err, "KEM segment truncated")
		}
		raw = append(raw, lenBuf[:]...)
		raw = append(raw, h.kemCiphertext...)
	}
	return h, raw, nil
}

func corruptRead(err error, msg string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return wrapError(ErrCorruptEnvelope, err, ErrCodeCorrupt, msg)
	}
	return wrapError(ErrIO, err, ErrCodeIO, msg)
}

// newEnvelopeMAC returns the HMAC-SHA256 keyed with SHA256(derivedKey).
func newEnvelopeMAC(derivedKey []byte) hash.Hash {
	macKey := sha256.Sum256(derivedKey)
	mac := hmac.New(sha256.New, macKey[:])
	clearBuffer(macKey[:])
	return mac
}

// legacyEnvelope is a fully parsed legacy envelope.
type legacyEnvelope struct {
	iv            []byte
	salt          []byte
	kemCiphertext []byte
	body          []byte
}

// parseLegacyEnvelope splits a legacy envelope held in memory. The KEM segment is
// read when mode is KeyModeHybrid, skipped for KeyModePassphrase and guessed for
// KeyModeDetect.
func parseLegacyEnvelope(data []byte, alg Algorithm, mode KeyMode) (*legacyEnvelope, error) {
	minTail := 1
	if alg.IsAEAD() {
		minTail = AuthTagSize
	}
	if len(data) < alg.IVLen+SaltSize+minTail {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt,
			fmt.Sprintf("legacy envelope too short: %d bytes", len(data)))
	}
	env := &legacyEnvelope{
		iv:   data[:alg.IVLen],
		salt: data[alg.IVLen : alg.IVLen+SaltSize],
	}
	rest := data[alg.IVLen+SaltSize:]

	readKEM := false
	switch mode {
	case KeyModeHybrid:
		readKEM = true
	case KeyModeDetect:
		readKEM = plausibleKemSegment(rest)
	}

	if readKEM {
		if len(rest) < 4 {
			return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "KEM segment length truncated")
		}
		kemLen := binary.BigEndian.Uint32(rest[:4])
		if kemLen == 0 || kemLen > MaxKemSegment || int64(kemLen) > int64(len(rest)-4) {
			return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt,
				fmt.Sprintf("invalid KEM segment length %d", kemLen))
		}
		env.kemCiphertext = rest[4 : 4+kemLen]
		rest = rest[4+kemLen:]
	}
	if len(rest) < minTail {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "legacy envelope has no ciphertext")
	}
	env.body = rest
	return env, nil
}

// plausibleKemSegment applies the legacy detection rule: a positive declared
// length that fits in the remaining bytes and does not exceed MaxKemSegment.
func plausibleKemSegment(rest []byte) bool {
	if len(rest) < 4 {
		return false
	}
	kemLen := binary.BigEndian.Uint32(rest[:4])
	return kemLen > 0 && kemLen <= MaxKemSegment && int64(kemLen) <= int64(len(rest)-4)
}
