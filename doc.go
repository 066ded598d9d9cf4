// Package arocrypt encrypts text, files and hidden image payloads with
// passphrase-derived and post-quantum hybrid keys.
//
// The package covers:
//   - AES-{128,192,256}-{CBC,CTR,GCM} with PBKDF2-HMAC-SHA256 key derivation
//   - Hex JSON envelopes for short strings
//   - Streaming versioned file envelopes with an HMAC-SHA256 trailer
//   - Decoding of the older unversioned file layout
//   - ML-KEM-768 hybrid file encryption and key-pair rotation
//   - Least-significant-bit embedding of encrypted file bundles in PNG images
//
// Key material is never cached by the package. Every operation receives a
// PassphraseProvider or KemKeyProvider and fetches its secret for that call only.
//
// # Quick Start
//
//	engine, err := arocrypt.NewEngine()
//	if err != nil {
//		log.Fatal(err)
//	}
//	pass := arocrypt.NewStaticPassphrase([]byte("correct horse battery staple"))
//
//	env, err := engine.EncryptText(ctx, pass, "Hello World", "AES-256-CBC")
//	if err != nil {
//		log.Fatal(err)
//	}
//	text, err := engine.DecryptText(ctx, pass, env)
//	fmt.Println(text) // Output: Hello World
//
// # Files
//
// EncryptFile streams the input through the cipher and writes
//
//	Version ‖ Flags ‖ IV ‖ Salt ‖ [KemLen ‖ KemCiphertext] ‖ Body ‖ HMAC
//
// to a temporary file that is renamed into place on success. The cipher name is
// not stored in the envelope; callers must supply the same method to decrypt.
//
//	keys := arocrypt.FileKeys{Passphrases: pass}
//	out, err := engine.EncryptFile(ctx, keys, "report.pdf", "AES-256-GCM", "", arocrypt.FileOptions{})
//	_, err = engine.DecryptFile(ctx, keys, out, "AES-256-GCM", "", arocrypt.FileOptions{})
//
// Hybrid encryption encapsulates a fresh shared secret to an ML-KEM-768 public
// key and derives the file key from it with HKDF-SHA256:
//
//	keys := arocrypt.FileKeys{KemKeys: manager}
//	opts := arocrypt.FileOptions{Mode: arocrypt.KeyModeHybrid}
//
// ValidateIntegrity checks the HMAC trailer in constant time without decrypting.
//
// # Error Handling
//
// Every error wraps one kind sentinel (ErrInvalidInput, ErrUnsupportedAlgorithm,
// ErrAuthentication, ErrPayloadTooLarge, ErrCorruptEnvelope, ErrIO) and, where
// the failure is an expected outcome of a wrong key or damaged input, a boundary
// sentinel as well:
//
//	_, err := engine.DecryptFile(ctx, keys, path, method, "", opts)
//	switch {
//	case errors.Is(err, arocrypt.ErrBadDecrypt):
//		// wrong key, tampered or truncated file
//	case errors.Is(err, arocrypt.ErrKeyNotConfigured):
//		// no passphrase available
//	}
//
// KindOf classifies any error. Rich details come from github.com/agilira/go-errors.
//
// # Steganography
//
//	out, err := engine.HideDataInImage(ctx, pass, "carrier.png", []string{"notes.txt"}, "AES-256-GCM", "")
//	files, err := engine.ExtractHiddenData(ctx, pass, out, "AES-256-GCM", "recovered")
//
// A payload needs eight carrier bytes per payload byte. Oversized payloads return
// ErrPayloadTooLarge before anything is written.
//
// # Limits
//
// File encryption and versioned decryption use memory proportional to the chunk
// size. Legacy decryption and both steganography operations load the whole input.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package arocrypt
