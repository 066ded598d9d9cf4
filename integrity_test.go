// integrity_test.go: Tests for HMAC integrity checks.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agilira/arocrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIntegrity(t *testing.T) {
	ctx := context.Background()
	engine, err := arocrypt.NewEngine()
	require.NoError(t, err)
	in := writeTempFile(t, "plain.bin", randomBytes(t, 2048))
	enc, err := engine.EncryptFile(ctx, passKeys("integrity"), in, "AES-256-GCM", "", arocrypt.FileOptions{})
	require.NoError(t, err)

	msg, err := arocrypt.ValidateIntegrity(enc, "AES-256-GCM", []byte("integrity"))
	require.NoError(t, err)
	assert.Equal(t, arocrypt.ValidKeyMessage, msg)

	_, err = arocrypt.ValidateIntegrity(enc, "AES-256-GCM", []byte("wrong"))
	assert.True(t, errors.Is(err, arocrypt.ErrAuthentication))

	_, err = arocrypt.ValidateIntegrity(enc, "AES-256-OFB", []byte("integrity"))
	assert.True(t, errors.Is(err, arocrypt.ErrUnsupportedAlgorithm))

	data, err := os.ReadFile(enc)
	require.NoError(t, err)
	tampered := filepath.Join(t.TempDir(), "tampered")
	require.NoError(t, os.WriteFile(tampered, flipAt(data, 100), 0o600))
	_, err = arocrypt.ValidateIntegrity(tampered, "AES-256-GCM", []byte("integrity"))
	assert.True(t, errors.Is(err, arocrypt.ErrAuthentication))

	short := filepath.Join(t.TempDir(), "short")
	require.NoError(t, os.WriteFile(short, data[:10], 0o600))
	_, err = arocrypt.ValidateIntegrity(short, "AES-256-GCM", []byte("integrity"))
	assert.True(t, errors.Is(err, arocrypt.ErrCorruptEnvelope))
}

func TestEngineValidateFile_Hybrid(t *testing.T) {
	ctx := context.Background()
	engine, err := arocrypt.NewEngine()
	require.NoError(t, err)
	pair, err := arocrypt.GenerateKemKeyPair()
	require.NoError(t, err)
	keys := arocrypt.FileKeys{KemKeys: arocrypt.StaticKemKeys{Pair: pair}}
	in := writeTempFile(t, "plain.txt", []byte("hybrid integrity"))

	enc, err := engine.EncryptFile(ctx, keys, in, "AES-128-CTR", "", arocrypt.FileOptions{Mode: arocrypt.KeyModeHybrid})
	require.NoError(t, err)

	msg, err := engine.ValidateFile(ctx, keys, enc, "AES-128-CTR", arocrypt.KeyModeDetect)
	require.NoError(t, err)
	assert.Equal(t, arocrypt.ValidKeyMessage, msg)

	other, err := arocrypt.GenerateKemKeyPair()
	require.NoError(t, err)
	_, err = engine.ValidateFile(ctx, arocrypt.FileKeys{KemKeys: arocrypt.StaticKemKeys{Pair: other}}, enc, "AES-128-CTR", arocrypt.KeyModeHybrid)
	assert.True(t, errors.Is(err, arocrypt.ErrAuthentication))

	_, err = engine.ValidateFile(ctx, keys, enc, "AES-128-CTR", arocrypt.KeyModePassphrase)
	assert.True(t, errors.Is(err, arocrypt.ErrCorruptEnvelope))
}
