// integrity.go: HMAC pre-check of file envelopes before any cipher work.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ValidKeyMessage is returned by a successful integrity check.
const ValidKeyMessage = "Valid key"

// ValidateIntegrity checks that passphrase opens the versioned envelope at
// filePath and that the file is intact. It recomputes the HMAC-SHA256 trailer
// with key SHA256(derivedKey) and compares it in constant time.
//
// Returns ValidKeyMessage, or an error wrapping ErrAuthentication on mismatch,
// ErrCorruptEnvelope for malformed envelopes and ErrUnsupportedAlgorithm for an
// unknown method. No decryption is attempted.
//
// Example:
//
//	msg, err := arocrypt.ValidateIntegrity("report.pdf.arocrypt", "AES-256-GCM", pass)
//	if errors.Is(err, arocrypt.ErrAuthentication) {
//		fmt.Println("wrong key or tampered file")
//	}
func ValidateIntegrity(filePath, method string, passphrase []byte) (string, error) {
	keys := FileKeys{Passphrases: PassphraseFunc(func(context.Context) ([]byte, error) {
		out := make([]byte, len(passphrase))
		copy(out, passphrase)
		return out, nil
	})}
	return validateIntegrity(context.Background(), keys, filePath, method, KeyModePassphrase, DefaultChunkSize)
}

// ValidateFile is ValidateIntegrity with key material from providers. Hybrid
// envelopes are checked with mode KeyModeHybrid or KeyModeDetect.
func (e *Engine) ValidateFile(ctx context.Context, keys FileKeys, filePath, method string, mode KeyMode) (msg string, err error) {
	span := startAudit(OpValidate, method)
	defer func() { e.audit(ctx, span, err) }()

	if err = checkContext(ctx); err != nil {
		return "", err
	}
	if method == "" {
		method = e.method
	}
	msg, err = validateIntegrity(ctx, keys, filePath, method, mode, e.chunkSize)
	if err != nil && KindOf(err) == KindAuthentication {
		e.logger.WithFields(logrus.Fields{
			"operation": OpValidate,
			"algorithm": method,
			"input":     filePath,
		}).Info("integrity check failed")
	}
	return msg, err
}

func validateIntegrity(ctx context.Context, keys FileKeys, filePath, method string, mode KeyMode, chunkSize int) (string, error) {
	alg, err := LookupAlgorithm(method)
	if err != nil {
		return "", err
	}
	path, err := RequireFile(filePath)
	if err != nil {
		return "", err
	}
	v, err := openVersioned(ctx, keys, path, alg, mode)
	if err != nil {
		return "", err
	}
	defer v.Close()
	if err := v.verifyMAC(chunkSize); err != nil {
		return "", err
	}
	return ValidKeyMessage, nil
}
