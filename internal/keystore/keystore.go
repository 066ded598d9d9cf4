// keystore.go: Badger-backed store for the install passphrase and KEM key pair.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package keystore persists key material sealed under a master password.
//
// Records are AES-256-GCM sealed with a key derived from the master password by
// Argon2id. The record name is bound as associated data, so a sealed value
// cannot be moved to another slot. The store implements
// arocrypt.PassphraseProvider and arocrypt.KemKeyStore.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/agilira/arocrypt"
	goerrors "github.com/agilira/go-errors"
	"github.com/awnumar/memguard"
	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Error codes.
const (
	ErrCodeOpen     = "KEYSTORE_OPEN"
	ErrCodeRead     = "KEYSTORE_READ"
	ErrCodeWrite    = "KEYSTORE_WRITE"
	ErrCodeMaster   = "KEYSTORE_MASTER_PASSWORD"
	ErrCodeDecode   = "KEYSTORE_DECODE"
	ErrCodeClosed   = "KEYSTORE_CLOSED"
	ErrCodeSettings = "KEYSTORE_SETTINGS"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("keystore: closed")

var (
	keySalt       = []byte("meta/salt")
	keyCheck      = []byte("meta/check")
	keyPassphrase = []byte("secret/passphrase")
	keyKemPair    = []byte("secret/kem")
)

var checkValue = []byte("arocrypt-keystore-v1")

// Options configures Open.
type Options struct {
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all records in memory. Intended for tests.
	InMemory bool

	// MasterPassword unlocks the store. It is copied and the copy sealed in memory.
	MasterPassword []byte

	// KDF tunes Argon2id. nil selects the library defaults.
	KDF *arocrypt.KDFParams

	// Logger receives store events and badger's own output. nil discards both.
	Logger logrus.FieldLogger
}

// Store is an open keystore. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	db      *badger.DB
	sealKey *memguard.Enclave
	logger  logrus.FieldLogger
}

// Open opens or creates the keystore and unlocks it with the master password.
// A wrong master password returns an error wrapping arocrypt.ErrAuthentication.
//
// Example:
//
//	store, err := keystore.Open(keystore.Options{
//		Dir:            cfg.KeystoreDir,
//		MasterPassword: master,
//		Logger:         logger,
//	})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
func Open(opts Options) (*Store, error) {
	if len(opts.MasterPassword) == 0 {
		return nil, fmt.Errorf("%w: %w", arocrypt.ErrInvalidInput,
			goerrors.New(ErrCodeSettings, "master password cannot be empty"))
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, fmt.Errorf("%w: %w", arocrypt.ErrInvalidInput,
			goerrors.New(ErrCodeSettings, "keystore directory must be set"))
	}

	logger := opts.Logger
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	if logger == nil {
		bopts.Logger = nil
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	} else {
		bopts = bopts.WithLogger(logger.WithField("component", "badger"))
	}
	bopts.SyncWrites = true

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", arocrypt.ErrIO, goerrors.Wrap(err, ErrCodeOpen, "failed to open keystore"))
	}

	s := &Store{db: db, logger: logger.WithField("component", "keystore")}
	if err := s.unlock(opts.MasterPassword, opts.KDF); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// unlock derives the sealing key, creating the salt and check record on first use.
func (s *Store) unlock(master []byte, params *arocrypt.KDFParams) error {
	salt, err := s.get(keySalt)
	if errors.Is(err, badger.ErrKeyNotFound) {
		if salt, err = arocrypt.GenerateSalt(); err != nil {
			return err
		}
		if err := s.set(keySalt, salt); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	key, err := arocrypt.DeriveKeyArgon2(master, salt, arocrypt.RecordKeySize, params)
	if err != nil {
		return err
	}
	defer arocrypt.Zeroize(key)

	sealed, err := s.get(keyCheck)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		record, err := arocrypt.SealRecord(checkValue, key, keyCheck)
		if err != nil {
			return err
		}
		if err := s.set(keyCheck, []byte(record)); err != nil {
			return err
		}
		s.logger.Info("initialized keystore")
	case err != nil:
		return err
	default:
		if _, err := arocrypt.OpenRecord(string(sealed), key, keyCheck); err != nil {
			return fmt.Errorf("%w: %w", arocrypt.ErrAuthentication,
				goerrors.Wrap(err, ErrCodeMaster, "master password rejected"))
		}
	}

	buf := make([]byte, len(key))
	copy(buf, key)
	s.sealKey = memguard.NewEnclave(buf)
	return nil
}

// Close closes the underlying database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	s.sealKey = nil
	if err != nil {
		return fmt.Errorf("%w: %w", arocrypt.ErrIO, goerrors.Wrap(err, ErrCodeWrite, "failed to close keystore"))
	}
	return nil
}

// Passphrase implements arocrypt.PassphraseProvider.
func (s *Store) Passphrase(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.open(keyPassphrase)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: no passphrase stored", arocrypt.ErrKeyNotConfigured)
	}
	return p, err
}

// SetPassphrase replaces the stored passphrase.
func (s *Store) SetPassphrase(ctx context.Context, passphrase []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(passphrase) == 0 {
		return fmt.Errorf("%w: %w", arocrypt.ErrInvalidInput,
			goerrors.New(ErrCodeWrite, "passphrase cannot be empty"))
	}
	return s.seal(keyPassphrase, passphrase)
}

// EnsurePassphrase returns the stored passphrase, generating and storing a
// random one of arocrypt.DefaultPassphraseLength characters when none exists.
func (s *Store) EnsurePassphrase(ctx context.Context) ([]byte, error) {
	p, err := s.Passphrase(ctx)
	if !errors.Is(err, arocrypt.ErrKeyNotConfigured) {
		return p, err
	}
	p, err = arocrypt.GeneratePassphrase(arocrypt.DefaultPassphraseLength)
	if err != nil {
		return nil, err
	}
	if err := s.seal(keyPassphrase, p); err != nil {
		arocrypt.Zeroize(p)
		return nil, err
	}
	s.logger.Info("generated install passphrase")
	return p, nil
}

// LoadKemKeyPair implements arocrypt.KemKeyStore.
func (s *Store) LoadKemKeyPair(ctx context.Context) (*arocrypt.KemKeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.open(keyKemPair)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: no KEM key pair stored", arocrypt.ErrKeyNotConfigured)
	}
	if err != nil {
		return nil, err
	}
	defer arocrypt.Zeroize(data)

	var pair arocrypt.KemKeyPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("%w: %w", arocrypt.ErrCorruptEnvelope,
			goerrors.Wrap(err, ErrCodeDecode, "failed to decode KEM key pair"))
	}
	return &pair, nil
}

// SaveKemKeyPair implements arocrypt.KemKeyStore. The previous record is replaced.
func (s *Store) SaveKemKeyPair(ctx context.Context, pair *arocrypt.KemKeyPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pair == nil {
		return fmt.Errorf("%w: %w", arocrypt.ErrInvalidInput, goerrors.New(ErrCodeWrite, "key pair cannot be nil"))
	}
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("%w: %w", arocrypt.ErrInvalidInput, goerrors.Wrap(err, ErrCodeWrite, "failed to encode KEM key pair"))
	}
	defer arocrypt.Zeroize(data)
	if err := s.seal(keyKemPair, data); err != nil {
		return err
	}
	s.logger.WithField("fingerprint", pair.Fingerprint()).Info("stored KEM key pair")
	return nil
}

func (s *Store) seal(name, plaintext []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("%w: %w", ErrClosed, goerrors.New(ErrCodeClosed, "keystore is closed"))
	}
	lb, err := s.sealKey.Open()
	if err != nil {
		return fmt.Errorf("%w: %w", arocrypt.ErrIO, goerrors.Wrap(err, ErrCodeMaster, "failed to open sealing key"))
	}
	defer lb.Destroy()

	record, err := arocrypt.SealRecord(plaintext, lb.Bytes(), name)
	if err != nil {
		return err
	}
	return s.setLocked(name, []byte(record))
}

func (s *Store) open(name []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("%w: %w", ErrClosed, goerrors.New(ErrCodeClosed, "keystore is closed"))
	}
	sealed, err := s.getLocked(name)
	if err != nil {
		return nil, err
	}
	lb, err := s.sealKey.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", arocrypt.ErrIO, goerrors.Wrap(err, ErrCodeMaster, "failed to open sealing key"))
	}
	defer lb.Destroy()
	return arocrypt.OpenRecord(string(sealed), lb.Bytes(), name)
}

func (s *Store) get(name []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(name)
}

func (s *Store) set(name, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.setLocked(name, value)
}

// getLocked returns badger.ErrKeyNotFound unwrapped for missing records.
func (s *Store) getLocked(name []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(name)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", arocrypt.ErrIO, goerrors.Wrap(err, ErrCodeRead, fmt.Sprintf("failed to read %s", name)))
	}
	return value, nil
}

func (s *Store) setLocked(name, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(name, value)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", arocrypt.ErrIO, goerrors.Wrap(err, ErrCodeWrite, fmt.Sprintf("failed to write %s", name)))
	}
	return nil
}
