// kdf.go: Key derivation for envelopes (PBKDF2), KEM secrets (HKDF) and keystore records (Argon2id).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the iteration count used for every passphrase-derived envelope key.
// Changing it breaks decryption of existing envelopes.
const PBKDF2Iterations = 100000

// Default Argon2 parameters for keystore record sealing.
const (
	// DefaultTime is the default number of iterations for Argon2id.
	DefaultTime = 3

	// DefaultMemory is the default memory usage in MB for Argon2id.
	DefaultMemory = 64

	// DefaultThreads is the default number of threads for Argon2id.
	DefaultThreads = 4
)

// KDFParams defines custom parameters for Argon2id key derivation.
//
// If a field is zero, the library's secure default will be used.
//
// Example:
//
//	params := &arocrypt.KDFParams{Time: 4, Memory: 128, Threads: 2}
//	key, err := arocrypt.DeriveKeyArgon2(password, salt, 32, params)
type KDFParams struct {
	// Time is the number of Argon2id passes. Zero means DefaultTime.
	Time uint32 `json:"time,omitempty" yaml:"time,omitempty"`

	// Memory is the memory usage in MB. Zero means DefaultMemory.
	Memory uint32 `json:"memory,omitempty" yaml:"memory,omitempty"`

	// Threads is the parallelism degree. Zero means DefaultThreads.
	Threads uint8 `json:"threads,omitempty" yaml:"threads,omitempty"`
}

// HighSecurityKDFParams returns Argon2id parameters for master passwords guarding
// long-lived keystores.
//
// Parameters: Time=5, Memory=128MB, Threads=4
func HighSecurityKDFParams() *KDFParams {
	return &KDFParams{
		Time:    5,
		Memory:  128,
		Threads: 4,
	}
}

// FastKDFParams returns Argon2id parameters optimized for speed.
// Suitable for tests and throwaway in-memory keystores.
//
// Parameters: Time=1, Memory=32MB, Threads=2
func FastKDFParams() *KDFParams {
	return &KDFParams{
		Time:    1,
		Memory:  32,
		Threads: 2,
	}
}

// DeriveKey derives the symmetric key for method from a passphrase and salt using
// PBKDF2-HMAC-SHA256 with PBKDF2Iterations iterations.
//
// The returned key has exactly the length the cipher requires: 16, 24 or 32 bytes.
//
// Parameters:
//   - passphrase: The secret to derive from (cannot be empty)
//   - method: Cipher name, e.g. "AES-256-GCM" (case-insensitive)
//   - salt: The per-operation random salt (cannot be empty)
//
// Returns:
//   - The derived key
//   - ErrUnsupportedAlgorithm for an unknown method, ErrInvalidInput for empty inputs
//
// Example:
//
//	salt, _ := arocrypt.GenerateSalt()
//	key, err := arocrypt.DeriveKey([]byte("correct horse"), "AES-192-CTR", salt)
//	// len(key) == 24
func DeriveKey(passphrase []byte, method string, salt []byte) ([]byte, error) {
	alg, err := LookupAlgorithm(method)
	if err != nil {
		return nil, err
	}
	return deriveAlgorithmKey(passphrase, alg, salt)
}

func deriveAlgorithmKey(passphrase []byte, alg Algorithm, salt []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "passphrase cannot be empty")
	}
	if len(salt) == 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "salt cannot be empty")
	}
	return pbkdf2.Key(passphrase, salt, PBKDF2Iterations, alg.KeyLen, sha256.New), nil
}

// FitKeyToLength returns a copy of key adjusted to the key length of method:
// truncated when longer, zero-padded when shorter.
//
// It exists for callers holding raw key material of the wrong size. Shared
// secrets should go through DeriveKeyHKDF instead.
func FitKeyToLength(method string, key []byte) ([]byte, error) {
	alg, err := LookupAlgorithm(method)
	if err != nil {
		return nil, err
	}
	out := make([]byte, alg.KeyLen)
	copy(out, key)
	return out, nil
}

// DeriveKeyHKDF derives keyLen bytes from a high-entropy secret using HKDF-SHA256 (RFC 5869).
//
// Parameters:
//   - secret: The input keying material, typically a KEM shared secret
//   - salt: Optional salt (may be nil)
//   - info: Context string binding the key to its use
//   - keyLen: Output length in bytes (1..8160)
//
// For passphrases, use DeriveKey instead.
func DeriveKeyHKDF(secret, salt, info []byte, keyLen int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "secret cannot be empty")
	}
	if keyLen <= 0 || keyLen > 255*sha256.Size {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput,
			fmt.Sprintf("invalid HKDF output length %d", keyLen))
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "HKDF expansion failed")
	}
	return key, nil
}

// kemInfo is the HKDF context for file keys derived from a KEM shared secret.
func kemInfo(alg Algorithm) []byte {
	return []byte("arocrypt:file:v2:" + alg.Name)
}

// DeriveKeyArgon2 derives a key from a password and salt using Argon2id.
//
// If params is nil, secure defaults are used (Time: 3, Memory: 64MB, Threads: 4).
//
// Example:
//
//	key, err := arocrypt.DeriveKeyArgon2([]byte("master"), salt, 32, arocrypt.FastKDFParams())
func DeriveKeyArgon2(password, salt []byte, keyLen int, params *KDFParams) ([]byte, error) {
	if len(password) == 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "salt cannot be empty")
	}
	if keyLen <= 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "key length must be positive")
	}

	time := uint32(DefaultTime)
	memory := uint32(DefaultMemory * 1024)
	threads := uint8(DefaultThreads)
	if params != nil {
		if params.Time > 0 {
			time = params.Time
		}
		if params.Memory > 0 {
			memory = params.Memory * 1024
		}
		if params.Threads > 0 {
			threads = params.Threads
		}
	}

	return argon2.IDKey(password, salt, time, memory, threads, uint32(keyLen)), nil // #nosec G115
}
