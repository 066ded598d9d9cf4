// text_test.go: Tests for text envelopes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/agilira/arocrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textPassphrase = "p@ssw0rd123!ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func newTextFixture(t *testing.T) (*arocrypt.Engine, arocrypt.PassphraseProvider) {
	t.Helper()
	engine, err := arocrypt.NewEngine()
	require.NoError(t, err)
	return engine, arocrypt.NewStaticPassphrase([]byte(textPassphrase))
}

func TestText_HelloWorld(t *testing.T) {
	ctx := context.Background()
	engine, pass := newTextFixture(t)

	env, err := engine.EncryptText(ctx, pass, "Hello World", "AES-256-CBC")
	require.NoError(t, err)
	assert.Equal(t, "AES-256-CBC", env.Method)

	iv, err := hex.DecodeString(env.IV)
	require.NoError(t, err)
	assert.Len(t, iv, 16)
	ct, err := hex.DecodeString(env.Content)
	require.NoError(t, err)
	assert.Len(t, ct, 16, "11 bytes pad to one block")

	got, err := engine.DecryptText(ctx, pass, env)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", got)
}

func TestText_AllMethods(t *testing.T) {
	ctx := context.Background()
	engine, pass := newTextFixture(t)

	for _, method := range allMethods {
		for _, msg := range []string{"", "x", "héllo wörld ✓", "sixteen bytes!!!"} {
			env, err := engine.EncryptText(ctx, pass, msg, method)
			require.NoError(t, err, method)
			got, err := engine.DecryptText(ctx, pass, env)
			require.NoError(t, err, method)
			assert.Equal(t, msg, got, method)
		}
	}
}

func TestText_FreshIVAndSalt(t *testing.T) {
	ctx := context.Background()
	engine, pass := newTextFixture(t)

	a, err := engine.EncryptText(ctx, pass, "same", "AES-128-GCM")
	require.NoError(t, err)
	b, err := engine.EncryptText(ctx, pass, "same", "AES-128-GCM")
	require.NoError(t, err)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Content, b.Content)
}

func TestText_JSONShape(t *testing.T) {
	ctx := context.Background()
	engine, pass := newTextFixture(t)
	env, err := engine.EncryptText(ctx, pass, "json", "AES-128-CTR")
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"content", "iv", "salt", "tag", "method"} {
		assert.NotEmpty(t, fields[key], key)
	}
}

func TestDecryptText_Invalid(t *testing.T) {
	ctx := context.Background()
	engine, pass := newTextFixture(t)
	env, err := engine.EncryptText(ctx, pass, "Hello World", "AES-256-CBC")
	require.NoError(t, err)

	mutate := map[string]func(e *arocrypt.TextEnvelope){
		"other method":   func(e *arocrypt.TextEnvelope) { e.Method = "AES-192-CBC" },
		"content hex":    func(e *arocrypt.TextEnvelope) { e.Content = "zz" },
		"iv hex":         func(e *arocrypt.TextEnvelope) { e.IV = "not hex" },
		"iv length":      func(e *arocrypt.TextEnvelope) { e.IV = e.IV[:8] },
		"missing salt":   func(e *arocrypt.TextEnvelope) { e.Salt = "" },
		"tag hex":        func(e *arocrypt.TextEnvelope) { e.Tag = "q" },
		"flipped byte":   func(e *arocrypt.TextEnvelope) { e.Content = flipHex(e.Content) },
		"flipped iv":     func(e *arocrypt.TextEnvelope) { e.IV = flipHex(e.IV) },
		"no tag, padded": func(e *arocrypt.TextEnvelope) { e.Tag = ""; e.Content = e.Content[:len(e.Content)-2] },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			cp := *env
			fn(&cp)
			_, err := engine.DecryptText(ctx, pass, &cp)
			assert.True(t, errors.Is(err, arocrypt.ErrInvalid), "got %v", err)
		})
	}

	_, err = engine.DecryptText(ctx, arocrypt.NewStaticPassphrase([]byte("wrong")), env)
	assert.True(t, errors.Is(err, arocrypt.ErrInvalid))
	assert.Equal(t, arocrypt.KindAuthentication, arocrypt.KindOf(err))
}

func TestDecryptText_HardErrors(t *testing.T) {
	ctx := context.Background()
	engine, pass := newTextFixture(t)

	_, err := engine.DecryptText(ctx, pass, nil)
	assert.True(t, errors.Is(err, arocrypt.ErrInvalidInput))
	assert.False(t, errors.Is(err, arocrypt.ErrInvalid))

	_, err = engine.DecryptText(ctx, pass, &arocrypt.TextEnvelope{Method: "AES-512-CBC"})
	assert.True(t, errors.Is(err, arocrypt.ErrUnsupportedAlgorithm))

	env, err := engine.EncryptText(ctx, pass, "x", "")
	require.NoError(t, err)
	assert.Equal(t, arocrypt.DefaultMethod, env.Method)
	_, err = engine.DecryptText(ctx, nil, env)
	assert.True(t, errors.Is(err, arocrypt.ErrKeyNotConfigured))

	_, err = engine.EncryptText(ctx, pass, "x", "ROT13")
	assert.True(t, errors.Is(err, arocrypt.ErrUnsupportedAlgorithm))
}

// flipHex flips the low bit of the first byte of a hex string.
func flipHex(s string) string {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) == 0 {
		return s
	}
	b[0] ^= 0x01
	return hex.EncodeToString(b)
}
