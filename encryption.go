// encryption.go: AES-256-GCM record sealing for small at-rest values.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"io"
)

// RecordKeySize is the key size for SealRecord and OpenRecord (AES-256).
const RecordKeySize = 32

func recordAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != RecordKeySize {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput,
			fmt.Sprintf("invalid record key size: must be %d bytes (got %d)", RecordKeySize, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeCipherInit, "failed to create AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeCipherInit, "failed to create GCM mode")
	}
	return gcm, nil
}

// SealRecord encrypts plaintext with AES-256-GCM and returns base64(nonce ‖ ciphertext ‖ tag).
//
// The aad binds the record to its context (typically its storage key); OpenRecord must
// be given the same value.
//
// Example:
//
//	sealed, err := arocrypt.SealRecord(secret, key, []byte("kem/current"))
func SealRecord(plaintext, key, aad []byte) (string, error) {
	gcm, err := recordAEAD(key)
	if err != nil {
		return "", err
	}

	nonceBuffer := getBuffer(gcm.NonceSize())
	defer putBuffer(nonceBuffer)
	nonce := (*nonceBuffer)[:gcm.NonceSize()]
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return "", wrapError(ErrIO, err, ErrCodeRandom, "failed to generate nonce")
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, aad) // #nosec G407 -- nonce is generated from crypto/rand, not hardcoded
	return base64.StdEncoding.EncodeToString(out), nil
}

// OpenRecord reverses SealRecord. A wrong key, a wrong aad or a modified record
// returns ErrAuthentication.
func OpenRecord(sealed string, key, aad []byte) ([]byte, error) {
	gcm, err := recordAEAD(key)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, wrapError(ErrCorruptEnvelope, err, ErrCodeCorrupt, "failed to decode sealed record")
	}
	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "sealed record too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, wrapError(ErrAuthentication, err, ErrCodeAuthentication, "sealed record authentication failed")
	}
	return plaintext, nil
}
