// kem.go: ML-KEM-768 key pairs, encapsulation and decapsulation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// ML-KEM-768 sizes in bytes.
const (
	KemPublicKeySize    = mlkem768.PublicKeySize
	KemSecretKeySize    = mlkem768.PrivateKeySize
	KemCiphertextSize   = mlkem768.CiphertextSize
	KemSharedSecretSize = mlkem768.SharedKeySize
)

// kemRandReader is the entropy source for key generation. nil means crypto/rand.
var kemRandReader io.Reader

// KeyKind names the kind of value checked by ValidateKeyFormat.
type KeyKind int

const (
	KeyKindPublic KeyKind = iota
	KeyKindSecret
	KeyKindCiphertext
)

func (k KeyKind) String() string {
	switch k {
	case KeyKindPublic:
		return "public"
	case KeyKindSecret:
		return "secret"
	case KeyKindCiphertext:
		return "ciphertext"
	default:
		return "unknown"
	}
}

// KemKeyPair is the persisted ML-KEM-768 record. Keys are standard base64.
// RecipientKey is the public key used for outbound hybrid encryption; it is
// empty when files are encrypted to the own public key.
type KemKeyPair struct {
	PublicKey    string    `json:"publicKey"`
	SecretKey    string    `json:"secretKey"`
	RecipientKey string    `json:"recipientKey,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Recipient returns the public key outbound encryption should target.
func (p *KemKeyPair) Recipient() string {
	if p.RecipientKey != "" {
		return p.RecipientKey
	}
	return p.PublicKey
}

// Fingerprint identifies the pair by its public key.
func (p *KemKeyPair) Fingerprint() string {
	pub, err := base64.StdEncoding.DecodeString(p.PublicKey)
	if err != nil {
		return ""
	}
	return GetKeyFingerprint(pub)
}

// GenerateKemKeyPair creates a fresh ML-KEM-768 key pair.
//
// Example:
//
//	pair, err := arocrypt.GenerateKemKeyPair()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(arocrypt.ValidateKeyFormat(pair.PublicKey, arocrypt.KeyKindPublic)) // true
func GenerateKemKeyPair() (*KemKeyPair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(kemRandReader)
	if err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeKem, "failed to generate ML-KEM-768 key pair")
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeKem, "failed to marshal public key")
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeKem, "failed to marshal secret key")
	}
	defer Zeroize(privBytes)

	return &KemKeyPair{
		PublicKey: KeyToBase64(pubBytes),
		SecretKey: KeyToBase64(privBytes),
		CreatedAt: timecache.CachedTime().UTC(),
	}, nil
}

// ValidateKeyFormat reports whether key decodes from base64 to a non-empty value.
// It is a format check only; it does not validate the key's structure.
func ValidateKeyFormat(key string, kind KeyKind) bool {
	if kind < KeyKindPublic || kind > KeyKindCiphertext {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	return err == nil && len(raw) > 0
}

// Encapsulate generates a shared secret for recipientPublicKey (base64) and returns
// the KEM ciphertext that lets the recipient recover it.
func Encapsulate(recipientPublicKey string) (ciphertext, sharedSecret []byte, err error) {
	raw, err := KeyFromBase64(recipientPublicKey)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) != KemPublicKeySize {
		return nil, nil, newError(ErrInvalidInput, ErrCodeKem,
			fmt.Sprintf("invalid ML-KEM-768 public key size %d", len(raw)))
	}
	scheme := mlkem768.Scheme()
	pk, err := scheme.UnmarshalBinaryPublicKey(raw)
	if err != nil {
		return nil, nil, wrapError(ErrInvalidInput, err, ErrCodeKem, "malformed ML-KEM-768 public key")
	}
	ct, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, wrapError(ErrIO, err, ErrCodeKem, "ML-KEM-768 encapsulation failed")
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from ciphertext with secretKey (base64).
//
// ML-KEM decapsulation never reports a wrong key: a mismatched secret key yields
// a different shared secret, which then fails envelope authentication.
func Decapsulate(ciphertext []byte, secretKey string) ([]byte, error) {
	if len(ciphertext) != KemCiphertextSize {
		return nil, newError(ErrCorruptEnvelope, ErrCodeKem,
			fmt.Sprintf("invalid ML-KEM-768 ciphertext size %d", len(ciphertext)))
	}
	raw, err := KeyFromBase64(secretKey)
	if err != nil {
		return nil, err
	}
	defer Zeroize(raw)
	if len(raw) != KemSecretKeySize {
		return nil, newError(ErrInvalidInput, ErrCodeKem,
			fmt.Sprintf("invalid ML-KEM-768 secret key size %d", len(raw)))
	}
	scheme := mlkem768.Scheme()
	sk, err := scheme.UnmarshalBinaryPrivateKey(raw)
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeKem, "malformed ML-KEM-768 secret key")
	}
	ss, err := scheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, wrapError(ErrCorruptEnvelope, err, ErrCodeKem, "ML-KEM-768 decapsulation failed")
	}
	return ss, nil
}
