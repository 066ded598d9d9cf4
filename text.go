// text.go: Hex JSON envelopes for short UTF-8 strings.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"context"
	"crypto/hmac"
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// TextEnvelope is the portable form of an encrypted string. All binary fields
// are lowercase hex.
type TextEnvelope struct {
	Content string `json:"content"`
	IV      string `json:"iv"`
	Salt    string `json:"salt,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Method  string `json:"method"`
}

// EncryptText encrypts plaintext with a key derived from the provider's passphrase.
//
// Example:
//
//	env, err := engine.EncryptText(ctx, provider, "Hello World", "AES-256-CBC")
//	// env.Content, env.IV, env.Salt and env.Tag are hex strings
func (e *Engine) EncryptText(ctx context.Context, passphrases PassphraseProvider, plaintext, method string) (env *TextEnvelope, err error) {
	span := startAudit(OpEncryptText, method)
	defer func() { e.audit(ctx, span, err) }()

	if err = checkContext(ctx); err != nil {
		return nil, err
	}
	alg, err := e.resolveMethod(method)
	if err != nil {
		return nil, err
	}
	span.method = alg.Name

	p, err := passphrase(ctx, passphrases)
	if err != nil {
		return nil, err
	}
	defer Zeroize(p)

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	iv, err := GenerateIV(alg)
	if err != nil {
		return nil, err
	}
	key, err := deriveAlgorithmKey(p, alg, salt)
	if err != nil {
		return nil, err
	}
	defer Zeroize(key)

	ct, err := sealBytes(alg, key, iv, []byte(plaintext))
	if err != nil {
		return nil, err
	}
	return &TextEnvelope{
		Content: hex.EncodeToString(ct),
		IV:      hex.EncodeToString(iv),
		Salt:    hex.EncodeToString(salt),
		Tag:     hex.EncodeToString(textTag(key, iv, salt, ct)),
		Method:  alg.Name,
	}, nil
}

// DecryptText reverses EncryptText.
//
// A wrong passphrase, a mismatched method, malformed hex or a modified envelope
// all return ErrInvalid. A nil envelope, an unknown method and a failing
// passphrase provider are returned as they are.
func (e *Engine) DecryptText(ctx context.Context, passphrases PassphraseProvider, env *TextEnvelope) (plaintext string, err error) {
	method := ""
	if env != nil {
		method = env.Method
	}
	span := startAudit(OpDecryptText, method)
	defer func() { e.audit(ctx, span, err) }()

	if err = checkContext(ctx); err != nil {
		return "", err
	}
	if env == nil {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, "text envelope cannot be nil")
	}
	alg, err := e.resolveMethod(method)
	if err != nil {
		return "", err
	}
	span.method = alg.Name

	p, err := passphrase(ctx, passphrases)
	if err != nil {
		return "", err
	}
	defer Zeroize(p)

	plain, err := openTextEnvelope(alg, p, env)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"operation": OpDecryptText,
			"algorithm": alg.Name,
			"kind":      KindOf(err).String(),
		}).Debug("text decryption failed")
		return "", boundary(ErrInvalid, err)
	}
	defer Zeroize(plain)
	return string(plain), nil
}

func openTextEnvelope(alg Algorithm, passphrase []byte, env *TextEnvelope) ([]byte, error) {
	ct, err := hex.DecodeString(env.Content)
	if err != nil {
		return nil, wrapError(ErrCorruptEnvelope, err, ErrCodeCorrupt, "content is not hex")
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return nil, wrapError(ErrCorruptEnvelope, err, ErrCodeCorrupt, "iv is not hex")
	}
	if len(iv) != alg.IVLen {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "iv length does not match method")
	}
	salt, err := hex.DecodeString(env.Salt)
	if err != nil || len(salt) == 0 {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "salt missing or not hex")
	}
	key, err := deriveAlgorithmKey(passphrase, alg, salt)
	if err != nil {
		return nil, err
	}
	defer Zeroize(key)

	if env.Tag != "" {
		tag, err := hex.DecodeString(env.Tag)
		if err != nil {
			return nil, wrapError(ErrCorruptEnvelope, err, ErrCodeCorrupt, "tag is not hex")
		}
		if !hmac.Equal(tag, textTag(key, iv, salt, ct)) {
			return nil, newError(ErrAuthentication, ErrCodeAuthentication, "text envelope tag mismatch")
		}
	}
	return openBytes(alg, key, iv, ct)
}

// textTag is HMAC-SHA256 over IV ‖ Salt ‖ Ciphertext keyed with SHA256(key).
func textTag(key, iv, salt, ct []byte) []byte {
	mac := newEnvelopeMAC(key)
	mac.Write(iv)
	mac.Write(salt)
	mac.Write(ct)
	return mac.Sum(nil)
}
