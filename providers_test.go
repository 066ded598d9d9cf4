// providers_test.go: Tests for passphrase and KEM key providers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/agilira/arocrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticPassphrase(t *testing.T) {
	ctx := context.Background()
	src := []byte("sealed passphrase")
	p := arocrypt.NewStaticPassphrase(src)
	assert.Equal(t, []byte("sealed passphrase"), src, "argument is left untouched")

	got, err := p.Passphrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, src, got)

	got[0] = 'X'
	again, err := p.Passphrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, src, again, "callers receive copies")

	_, err = arocrypt.NewStaticPassphrase(nil).Passphrase(ctx)
	assert.True(t, errors.Is(err, arocrypt.ErrKeyNotConfigured))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Passphrase(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnvPassphrase(t *testing.T) {
	ctx := context.Background()
	const name = "AROCRYPT_TEST_PASSPHRASE"

	t.Setenv(name, "")
	_, err := arocrypt.EnvPassphrase(name).Passphrase(ctx)
	assert.True(t, errors.Is(err, arocrypt.ErrKeyNotConfigured))
	assert.True(t, errors.Is(err, arocrypt.ErrInvalidInput))

	t.Setenv(name, "from-env")
	got, err := arocrypt.EnvPassphrase(name).Passphrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-env"), got)
}

func TestStaticKemKeys(t *testing.T) {
	ctx := context.Background()
	_, err := arocrypt.StaticKemKeys{}.KemKeyPair(ctx)
	assert.True(t, errors.Is(err, arocrypt.ErrKeyNotConfigured))

	pair, err := arocrypt.GenerateKemKeyPair()
	require.NoError(t, err)
	got, err := arocrypt.StaticKemKeys{Pair: pair}.KemKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, pair.PublicKey, got.PublicKey)
	got.RecipientKey = "changed"
	assert.Empty(t, pair.RecipientKey)
}

func TestProviderRegistry(t *testing.T) {
	ctx := context.Background()
	reg := arocrypt.NewProviderRegistry(nil)
	assert.Nil(t, reg.Plugins())

	_, err := reg.Passphrase(ctx)
	assert.True(t, errors.Is(err, arocrypt.ErrKeyNotConfigured), "empty registry")

	assert.True(t, errors.Is(reg.Register("", arocrypt.NewStaticPassphrase([]byte("x"))), arocrypt.ErrInvalidInput))
	assert.True(t, errors.Is(reg.Register("nil", nil), arocrypt.ErrInvalidInput))

	require.NoError(t, reg.Register("first", arocrypt.NewStaticPassphrase([]byte("one"))))
	require.NoError(t, reg.Register("second", arocrypt.PassphraseFunc(func(context.Context) ([]byte, error) {
		return []byte("two"), nil
	})))
	assert.Equal(t, []string{"first", "second"}, reg.Names())

	got, err := reg.Passphrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got, "first registered is the default")

	require.NoError(t, reg.SetDefault("second"))
	got, err = reg.Passphrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	assert.True(t, errors.Is(reg.SetDefault("missing"), arocrypt.ErrInvalidInput))
	_, err = reg.Get("missing")
	assert.True(t, errors.Is(err, arocrypt.ErrKeyNotConfigured))

	p, err := reg.Get("first")
	require.NoError(t, err)
	got, err = p.Passphrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
}
