// algorithms.go: Cipher name table and per-mode AES primitives.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
)

// CipherMode is the block cipher mode of an Algorithm.
type CipherMode int

const (
	ModeCBC CipherMode = iota + 1
	ModeCTR
	ModeGCM
)

func (m CipherMode) String() string {
	switch m {
	case ModeCBC:
		return "CBC"
	case ModeCTR:
		return "CTR"
	case ModeGCM:
		return "GCM"
	default:
		return "unknown"
	}
}

// Sizes shared by every envelope format.
const (
	// SaltSize is the length of the per-operation PBKDF2 salt.
	SaltSize = 16
	// BlockIVSize is the IV length for CBC and CTR.
	BlockIVSize = aes.BlockSize
	// GCMNonceSize is the IV length for GCM.
	GCMNonceSize = 12
	// AuthTagSize is the GCM authentication tag length.
	AuthTagSize = 16
	// MACSize is the HMAC-SHA256 trailer length.
	MACSize = 32
)

// Algorithm describes one entry of the cipher name space AES-{128,192,256}-{CBC,CTR,GCM}.
type Algorithm struct {
	Name   string
	KeyLen int
	IVLen  int
	Mode   CipherMode
}

// IsAEAD reports whether the algorithm produces an authentication tag.
func (a Algorithm) IsAEAD() bool {
	return a.Mode == ModeGCM
}

var algorithms = buildAlgorithmTable()

func buildAlgorithmTable() map[string]Algorithm {
	table := make(map[string]Algorithm, 9)
	for _, bits := range []int{128, 192, 256} {
		for _, mode := range []CipherMode{ModeCBC, ModeCTR, ModeGCM} {
			ivLen := BlockIVSize
			if mode == ModeGCM {
				ivLen = GCMNonceSize
			}
			name := fmt.Sprintf("AES-%d-%s", bits, mode)
			table[name] = Algorithm{Name: name, KeyLen: bits / 8, IVLen: ivLen, Mode: mode}
		}
	}
	return table
}

// LookupAlgorithm resolves a cipher name, case-insensitively.
//
// Example:
//
//	alg, err := arocrypt.LookupAlgorithm("aes-256-gcm")
//	// alg.KeyLen == 32, alg.IVLen == 12
func LookupAlgorithm(method string) (Algorithm, error) {
	alg, ok := algorithms[strings.ToUpper(strings.TrimSpace(method))]
	if !ok {
		return Algorithm{}, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported,
			fmt.Sprintf("unsupported algorithm %q", method))
	}
	return alg, nil
}

// SupportedAlgorithms returns the canonical names of every supported cipher, sorted.
func SupportedAlgorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IVLength returns the IV length for method: 16 for CBC/CTR, 12 for GCM.
func IVLength(method string) (int, error) {
	alg, err := LookupAlgorithm(method)
	if err != nil {
		return 0, err
	}
	return alg.IVLen, nil
}

// KeyLength returns the key length in bytes required by method.
func KeyLength(method string) (int, error) {
	alg, err := LookupAlgorithm(method)
	if err != nil {
		return 0, err
	}
	return alg.KeyLen, nil
}

func newBlock(alg Algorithm, key []byte) (cipher.Block, error) {
	if len(key) != alg.KeyLen {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput,
			fmt.Sprintf("%s needs a %d byte key, got %d", alg.Name, alg.KeyLen, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeCipherInit, "failed to create AES cipher")
	}
	return block, nil
}

func newGCM(alg Algorithm, key []byte) (cipher.AEAD, error) {
	block, err := newBlock(alg, key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeCipherInit, "failed to create GCM mode")
	}
	return gcm, nil
}

func checkIV(alg Algorithm, iv []byte) error {
	if len(iv) != alg.IVLen {
		return newError(ErrInvalidInput, ErrCodeInvalidInput,
			fmt.Sprintf("%s needs a %d byte IV, got %d", alg.Name, alg.IVLen, len(iv)))
	}
	return nil
}

// sealBytes encrypts a whole buffer. GCM output carries the tag at its end.
func sealBytes(alg Algorithm, key, iv, plaintext []byte) ([]byte, error) {
	if err := checkIV(alg, iv); err != nil {
		return nil, err
	}
	switch alg.Mode {
	case ModeGCM:
		gcm, err := newGCM(alg, key)
		if err != nil {
			return nil, err
		}
		return gcm.Seal(nil, iv, plaintext, nil), nil // #nosec G407 -- iv comes from crypto/rand
	case ModeCBC:
		block, err := newBlock(alg, key)
		if err != nil {
			return nil, err
		}
		out := pkcs7Pad(plaintext, aes.BlockSize)
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, out)
		return out, nil
	default:
		block, err := newBlock(alg, key)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(plaintext))
		cipher.NewCTR(block, iv).XORKeyStream(out, plaintext)
		return out, nil
	}
}

// openBytes decrypts a whole buffer produced by sealBytes.
func openBytes(alg Algorithm, key, iv, ciphertext []byte) ([]byte, error) {
	if err := checkIV(alg, iv); err != nil {
		return nil, err
	}
	switch alg.Mode {
	case ModeGCM:
		gcm, err := newGCM(alg, key)
		if err != nil {
			return nil, err
		}
		if len(ciphertext) < AuthTagSize {
			return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "ciphertext shorter than authentication tag")
		}
		plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
		if err != nil {
			return nil, wrapError(ErrAuthentication, err, ErrCodeAuthentication, "GCM authentication failed")
		}
		return plaintext, nil
	case ModeCBC:
		block, err := newBlock(alg, key)
		if err != nil {
			return nil, err
		}
		if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
			return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "CBC ciphertext is not a whole number of blocks")
		}
		out := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
		return pkcs7Unpad(out, aes.BlockSize)
	default:
		block, err := newBlock(alg, key)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(ciphertext))
		cipher.NewCTR(block, iv).XORKeyStream(out, ciphertext)
		return out, nil
	}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// pkcs7Unpad checks the padding without branching on individual pad bytes.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "padded data is not block aligned")
	}
	padLen := int(data[len(data)-1])
	good := subtle.ConstantTimeLessOrEq(1, padLen) & subtle.ConstantTimeLessOrEq(padLen, blockSize)
	tail := data[len(data)-blockSize:]
	for i := 0; i < blockSize; i++ {
		inPad := subtle.ConstantTimeLessOrEq(blockSize-padLen, i)
		match := subtle.ConstantTimeByteEq(tail[i], byte(padLen))
		good &= match | (inPad ^ 1)
	}
	if good != 1 {
		return nil, newError(ErrAuthentication, ErrCodeAuthentication, "bad padding")
	}
	return data[:len(data)-padLen], nil
}
