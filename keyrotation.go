// keyrotation.go: ML-KEM-768 key pair management with validated wholesale rotation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// KemKeyStore persists the single KEM key pair record.
// LoadKemKeyPair returns an error wrapping ErrKeyNotConfigured when no record exists.
type KemKeyStore interface {
	LoadKemKeyPair(ctx context.Context) (*KemKeyPair, error)
	SaveKemKeyPair(ctx context.Context, pair *KemKeyPair) error
}

// KemKeyManager holds the current KEM key pair and rotates it.
// It implements KemKeyProvider.
//
// Rotation replaces the record wholesale; files encrypted to the old public key
// can no longer be decrypted once the rotation is committed.
type KemKeyManager struct {
	mu        sync.RWMutex
	store     KemKeyStore
	logger    logrus.FieldLogger
	active    *KemKeyPair
	pending   *KemKeyPair
	validated bool
}

// NewKemKeyManager creates a manager backed by store. A nil store keeps the pair
// in memory only; a nil logger discards log output.
func NewKemKeyManager(store KemKeyStore, logger logrus.FieldLogger) *KemKeyManager {
	if logger == nil {
		logger = discardLogger()
	}
	return &KemKeyManager{store: store, logger: logger}
}

// Load reads the record from the store. A missing record is not an error.
func (km *KemKeyManager) Load(ctx context.Context) error {
	if km.store == nil {
		return nil
	}
	pair, err := km.store.LoadKemKeyPair(ctx)
	if errors.Is(err, ErrKeyNotConfigured) {
		return nil
	}
	if err != nil {
		return err
	}
	km.mu.Lock()
	km.active = pair
	km.mu.Unlock()
	return nil
}

// Ensure returns the current pair, loading it or generating and persisting a new
// one when none exists.
func (km *KemKeyManager) Ensure(ctx context.Context) (*KemKeyPair, error) {
	if err := km.Load(ctx); err != nil {
		return nil, err
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.active != nil {
		return km.snapshot(km.active), nil
	}
	pair, err := GenerateKemKeyPair()
	if err != nil {
		return nil, err
	}
	if err := km.save(ctx, pair); err != nil {
		return nil, err
	}
	km.active = pair
	km.logger.WithFields(logrus.Fields{
		"fingerprint": pair.Fingerprint(),
	}).Info("generated KEM key pair")
	return km.snapshot(pair), nil
}

// KemKeyPair returns a copy of the current pair or ErrKeyNotConfigured.
func (km *KemKeyManager) KemKeyPair(ctx context.Context) (*KemKeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.active == nil {
		return nil, ErrKeyNotConfigured
	}
	return km.snapshot(km.active), nil
}

// SetRecipientKey sets the public key used for outbound hybrid encryption.
// An empty key reverts to the own public key.
func (km *KemKeyManager) SetRecipientKey(ctx context.Context, recipient string) error {
	if recipient != "" && !ValidateKeyFormat(recipient, KeyKindPublic) {
		return newError(ErrInvalidInput, ErrCodeKem, "recipient key is not valid base64")
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.active == nil {
		return ErrKeyNotConfigured
	}
	next := km.snapshot(km.active)
	next.RecipientKey = recipient
	if err := km.save(ctx, next); err != nil {
		return err
	}
	km.active = next
	return nil
}

// PrepareRotation generates the next pair without touching the active one.
func (km *KemKeyManager) PrepareRotation() (*KemKeyPair, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.pending != nil {
		return nil, newError(ErrInvalidInput, ErrCodeKeyRotation, "rotation already in progress")
	}
	pair, err := GenerateKemKeyPair()
	if err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeKeyRotation, "failed to generate next key pair")
	}
	if km.active != nil {
		pair.RecipientKey = km.active.RecipientKey
	}
	km.pending = pair
	km.validated = false
	return km.snapshot(pair), nil
}

// ValidateRotation checks that the pending pair completes an encapsulation round trip.
func (km *KemKeyManager) ValidateRotation() error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.pending == nil {
		return newError(ErrInvalidInput, ErrCodeKeyRotation, "no pending key pair to validate")
	}
	ct, want, err := Encapsulate(km.pending.PublicKey)
	if err != nil {
		return wrapError(ErrInvalidInput, err, ErrCodeKeyRotation, "pending key pair failed encapsulation")
	}
	defer Zeroize(want)
	got, err := Decapsulate(ct, km.pending.SecretKey)
	if err != nil {
		return wrapError(ErrInvalidInput, err, ErrCodeKeyRotation, "pending key pair failed decapsulation")
	}
	defer Zeroize(got)
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return newError(ErrInvalidInput, ErrCodeKeyRotation, "pending key pair shared secrets differ")
	}
	km.validated = true
	return nil
}

// CommitRotation persists the validated pending pair and makes it active.
func (km *KemKeyManager) CommitRotation(ctx context.Context) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.pending == nil || !km.validated {
		return newError(ErrInvalidInput, ErrCodeKeyRotation, "no validated key pair to commit")
	}
	if err := km.save(ctx, km.pending); err != nil {
		return err
	}
	previous := ""
	if km.active != nil {
		previous = km.active.Fingerprint()
	}
	km.active = km.pending
	km.pending = nil
	km.validated = false
	km.logger.WithFields(logrus.Fields{
		"previous":    previous,
		"fingerprint": km.active.Fingerprint(),
	}).Info("rotated KEM key pair")
	return nil
}

// RollbackRotation discards the pending pair.
func (km *KemKeyManager) RollbackRotation() error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.pending == nil {
		return newError(ErrInvalidInput, ErrCodeKeyRotation, "no rotation in progress to rollback")
	}
	km.pending = nil
	km.validated = false
	return nil
}

// Rotate runs prepare, validate and commit, rolling back on any failure.
func (km *KemKeyManager) Rotate(ctx context.Context) (*KemKeyPair, error) {
	if _, err := km.PrepareRotation(); err != nil {
		return nil, fmt.Errorf("preparation failed: %w", err)
	}
	if err := km.ValidateRotation(); err != nil {
		_ = km.RollbackRotation()
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := km.CommitRotation(ctx); err != nil {
		_ = km.RollbackRotation()
		return nil, fmt.Errorf("commit failed: %w", err)
	}
	return km.KemKeyPair(ctx)
}

func (km *KemKeyManager) save(ctx context.Context, pair *KemKeyPair) error {
	if km.store == nil {
		return nil
	}
	return km.store.SaveKemKeyPair(ctx, pair)
}

func (km *KemKeyManager) snapshot(pair *KemKeyPair) *KemKeyPair {
	cp := *pair
	return &cp
}
