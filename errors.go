// errors.go: Error kinds, public sentinels and rich error construction.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"errors"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// ErrorKind classifies every failure returned by the library so that callers can
// tell a wrong key apart from a full disk without looking at error text.
type ErrorKind int

const (
	// KindNone is reported for a nil error.
	KindNone ErrorKind = iota
	// KindInvalidInput covers missing files, missing keys and malformed parameters.
	KindInvalidInput
	// KindUnsupportedAlgorithm is an unknown cipher name.
	KindUnsupportedAlgorithm
	// KindAuthentication is an AEAD tag or HMAC mismatch (usually a wrong key).
	KindAuthentication
	// KindPayloadTooLarge is a steganography capacity overflow.
	KindPayloadTooLarge
	// KindCorruptEnvelope is a truncated or malformed binary structure.
	KindCorruptEnvelope
	// KindIO is a disk or permission error.
	KindIO
	// KindUnknown is any error not produced by this library.
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnsupportedAlgorithm:
		return "unsupported_algorithm"
	case KindAuthentication:
		return "authentication_failure"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindCorruptEnvelope:
		return "corrupt_envelope"
	case KindIO:
		return "io_failure"
	default:
		return "unknown"
	}
}

// Public sentinel errors. Every error returned by this package wraps exactly one
// of the kind sentinels below and can be tested with errors.Is.
var (
	// ErrInvalidInput is returned for missing files, keys or malformed parameters.
	ErrInvalidInput = errors.New("arocrypt: invalid input")

	// ErrUnsupportedAlgorithm is returned for an unknown cipher name.
	ErrUnsupportedAlgorithm = errors.New("arocrypt: unsupported algorithm")

	// ErrAuthentication is returned when an authentication tag or HMAC does not match.
	ErrAuthentication = errors.New("arocrypt: authentication failure")

	// ErrPayloadTooLarge is returned when a payload does not fit in the carrier image.
	ErrPayloadTooLarge = errors.New("arocrypt: payload too large")

	// ErrCorruptEnvelope is returned for truncated or malformed binary structures.
	ErrCorruptEnvelope = errors.New("arocrypt: corrupt envelope")

	// ErrIO is returned for filesystem failures.
	ErrIO = errors.New("arocrypt: i/o failure")

	// ErrKeyNotConfigured is returned by providers that hold no key material yet.
	// It is an invalid-input condition.
	ErrKeyNotConfigured = fmt.Errorf("%w: key material not configured", ErrInvalidInput)
)

// Boundary sentinels. The codec entry points translate expected failures into
// these values; the underlying kind sentinel stays reachable through errors.Is.
var (
	// ErrInvalid is the text codec result for any decryption failure.
	ErrInvalid = errors.New("invalid")

	// ErrBadDecrypt is the file codec result for any decryption failure.
	ErrBadDecrypt = errors.New("bad_decrypt")

	// ErrCorrupt is the steganography extraction result for unreadable payloads.
	ErrCorrupt = errors.New("corrupt")
)

// Error codes for rich error handling
const (
	ErrCodeInvalidInput   = "AROCRYPT_INVALID_INPUT"
	ErrCodeUnsupported    = "AROCRYPT_UNSUPPORTED_ALGORITHM"
	ErrCodeAuthentication = "AROCRYPT_AUTHENTICATION"
	ErrCodeTooLarge       = "AROCRYPT_PAYLOAD_TOO_LARGE"
	ErrCodeCorrupt        = "AROCRYPT_CORRUPT_ENVELOPE"
	ErrCodeIO             = "AROCRYPT_IO"
	ErrCodeRandom         = "AROCRYPT_RANDOM"
	ErrCodeCipherInit     = "AROCRYPT_CIPHER_INIT"
	ErrCodeKem            = "AROCRYPT_KEM"
	ErrCodeKeyRotation    = "AROCRYPT_KEY_ROTATION"
)

// KindOf reports the ErrorKind of err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return KindUnsupportedAlgorithm
	case errors.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrCorruptEnvelope):
		return KindCorruptEnvelope
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}

// newError builds a coded error wrapped under a public sentinel.
func newError(sentinel error, code goerrors.ErrorCode, msg string) error {
	return fmt.Errorf("%w: %w", sentinel, goerrors.New(code, msg))
}

// wrapError wraps cause with a code and message under a public sentinel.
func wrapError(sentinel error, cause error, code goerrors.ErrorCode, msg string) error {
	return fmt.Errorf("%w: %w", sentinel, goerrors.Wrap(cause, code, msg))
}

// boundary converts err into a boundary sentinel while keeping its kind reachable.
// Errors that already carry the sentinel are returned unchanged.
func boundary(sentinel error, err error) error {
	if err == nil || errors.Is(err, sentinel) {
		return err
	}
	if KindOf(err) == KindUnknown {
		err = wrapError(ErrIO, err, ErrCodeIO, "unexpected failure")
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
