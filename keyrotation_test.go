// keyrotation_test.go: Tests for KEM key pair management and rotation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/agilira/arocrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memKemStore is an in-memory KemKeyStore.
type memKemStore struct {
	mu      sync.Mutex
	pair    *arocrypt.KemKeyPair
	saves   int
	saveErr error
}

func (s *memKemStore) LoadKemKeyPair(ctx context.Context) (*arocrypt.KemKeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair == nil {
		return nil, arocrypt.ErrKeyNotConfigured
	}
	cp := *s.pair
	return &cp, nil
}

func (s *memKemStore) SaveKemKeyPair(ctx context.Context, pair *arocrypt.KemKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *pair
	s.pair = &cp
	s.saves++
	return nil
}

func TestKemKeyManager_EnsureGeneratesOnce(t *testing.T) {
	ctx := context.Background()
	store := &memKemStore{}
	km := arocrypt.NewKemKeyManager(store, nil)

	_, err := km.KemKeyPair(ctx)
	assert.True(t, errors.Is(err, arocrypt.ErrKeyNotConfigured))

	first, err := km.Ensure(ctx)
	require.NoError(t, err)
	second, err := km.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey, second.PublicKey)
	assert.Equal(t, 1, store.saves)

	reloaded := arocrypt.NewKemKeyManager(store, nil)
	require.NoError(t, reloaded.Load(ctx))
	got, err := reloaded.KemKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey, got.PublicKey)
}

func TestKemKeyManager_RotateKeepsRecipient(t *testing.T) {
	ctx := context.Background()
	store := &memKemStore{}
	km := arocrypt.NewKemKeyManager(store, nil)

	before, err := km.Ensure(ctx)
	require.NoError(t, err)
	peer, err := arocrypt.GenerateKemKeyPair()
	require.NoError(t, err)
	require.NoError(t, km.SetRecipientKey(ctx, peer.PublicKey))

	after, err := km.Rotate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.Fingerprint(), after.Fingerprint())
	assert.Equal(t, peer.PublicKey, after.RecipientKey)
	assert.Equal(t, peer.PublicKey, after.Recipient())
	assert.Equal(t, after.PublicKey, store.pair.PublicKey)
}

func TestKemKeyManager_SetRecipientKey(t *testing.T) {
	ctx := context.Background()
	km := arocrypt.NewKemKeyManager(nil, nil)

	assert.True(t, errors.Is(km.SetRecipientKey(ctx, ""), arocrypt.ErrKeyNotConfigured))
	pair, err := km.Ensure(ctx)
	require.NoError(t, err)

	assert.True(t, errors.Is(km.SetRecipientKey(ctx, "%%%"), arocrypt.ErrInvalidInput))
	require.NoError(t, km.SetRecipientKey(ctx, ""))
	got, err := km.KemKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, pair.PublicKey, got.Recipient())
}

func TestKemKeyManager_RotationPhases(t *testing.T) {
	ctx := context.Background()
	km := arocrypt.NewKemKeyManager(&memKemStore{}, nil)
	active, err := km.Ensure(ctx)
	require.NoError(t, err)

	assert.True(t, errors.Is(km.CommitRotation(ctx), arocrypt.ErrInvalidInput), "commit without prepare")
	assert.True(t, errors.Is(km.ValidateRotation(), arocrypt.ErrInvalidInput), "validate without prepare")
	assert.True(t, errors.Is(km.RollbackRotation(), arocrypt.ErrInvalidInput), "rollback without prepare")

	pending, err := km.PrepareRotation()
	require.NoError(t, err)
	assert.NotEqual(t, active.PublicKey, pending.PublicKey)

	_, err = km.PrepareRotation()
	assert.True(t, errors.Is(err, arocrypt.ErrInvalidInput), "second prepare")
	assert.True(t, errors.Is(km.CommitRotation(ctx), arocrypt.ErrInvalidInput), "commit before validate")

	require.NoError(t, km.RollbackRotation())
	current, err := km.KemKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.PublicKey, current.PublicKey)

	_, err = km.PrepareRotation()
	require.NoError(t, err)
	require.NoError(t, km.ValidateRotation())
	require.NoError(t, km.CommitRotation(ctx))
	current, err = km.KemKeyPair(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, active.PublicKey, current.PublicKey)
}

func TestKemKeyManager_RotateRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	store := &memKemStore{}
	km := arocrypt.NewKemKeyManager(store, nil)
	active, err := km.Ensure(ctx)
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")
	_, err = km.Rotate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit failed")

	store.saveErr = nil
	current, err := km.KemKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.PublicKey, current.PublicKey)

	_, err = km.Rotate(ctx)
	require.NoError(t, err, "no rotation left pending")
}

func TestKemKeyManager_HybridFilesFollowRotation(t *testing.T) {
	ctx := context.Background()
	engine, err := arocrypt.NewEngine()
	require.NoError(t, err)
	km := arocrypt.NewKemKeyManager(nil, nil)
	_, err = km.Ensure(ctx)
	require.NoError(t, err)

	in := writeTempFile(t, "plain.txt", []byte("rotating"))
	keys := arocrypt.FileKeys{KemKeys: km}
	opts := arocrypt.FileOptions{Mode: arocrypt.KeyModeHybrid}
	enc, err := engine.EncryptFile(ctx, keys, in, "AES-256-GCM", "", opts)
	require.NoError(t, err)

	_, err = km.Rotate(ctx)
	require.NoError(t, err)
	_, err = engine.DecryptFile(ctx, keys, enc, "AES-256-GCM", in+".out", opts)
	assert.True(t, errors.Is(err, arocrypt.ErrBadDecrypt))
}
