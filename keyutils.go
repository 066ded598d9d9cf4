// keyutils.go: Random material, key encoding, zeroization and fingerprinting.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

// randReader is the entropy source for salts, IVs and passphrases.
// Tests replace it to exercise failure paths.
var randReader io.Reader = rand.Reader

// KeyToBase64 encodes a key as a standard base64 string.
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// KeyFromBase64 decodes a standard base64 string to a key.
//
// Example:
//
//	key, err := arocrypt.KeyFromBase64(pair.PublicKey)
//	if err != nil {
//		log.Fatal(err)
//	}
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "failed to decode base64 key")
	}
	return key, nil
}

// KeyToHex encodes a key as a lowercase hexadecimal string.
func KeyToHex(key []byte) string {
	return hex.EncodeToString(key)
}

// KeyFromHex decodes a hexadecimal string to a key.
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "failed to decode hex key")
	}
	return key, nil
}

// Zeroize securely wipes a byte slice from memory.
//
// Note: This function modifies the original slice in place.
//
// Example:
//
//	key, _ := arocrypt.DeriveKey(passphrase, "AES-256-GCM", salt)
//	defer arocrypt.Zeroize(key)
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GetKeyFingerprint returns a short identifier for key material (first 8 bytes of
// SHA-256, hex encoded), or "" for an empty key.
//
// Fingerprints are what the library logs; key bytes never are.
func GetKeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := sha256.Sum256(key)
	return fmt.Sprintf("%016x", hash[:8])
}

// GenerateRandom returns n bytes from the system CSPRNG.
func GenerateRandom(n int) ([]byte, error) {
	if n <= 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "random length must be positive")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(randReader, buf); err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeRandom, "failed to read random bytes")
	}
	return buf, nil
}

// GenerateSalt returns a fresh SaltSize-byte salt.
func GenerateSalt() ([]byte, error) {
	return GenerateRandom(SaltSize)
}

// GenerateIV returns a fresh IV of the length required by alg.
func GenerateIV(alg Algorithm) ([]byte, error) {
	return GenerateRandom(alg.IVLen)
}

const passphraseAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*()-_=+[]{}<>?"

// DefaultPassphraseLength is the length of machine-generated install passphrases.
const DefaultPassphraseLength = 64

// GeneratePassphrase returns a random printable passphrase of length characters,
// drawn uniformly from a fixed alphabet.
//
// Example:
//
//	pass, err := arocrypt.GeneratePassphrase(arocrypt.DefaultPassphraseLength)
func GeneratePassphrase(length int) ([]byte, error) {
	if length <= 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "passphrase length must be positive")
	}
	limit := big.NewInt(int64(len(passphraseAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(randReader, limit)
		if err != nil {
			Zeroize(out)
			return nil, wrapError(ErrIO, err, ErrCodeRandom, "failed to generate passphrase")
		}
		out[i] = passphraseAlphabet[n.Int64()]
	}
	return out, nil
}
