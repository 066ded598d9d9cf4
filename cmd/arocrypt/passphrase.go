// passphrase.go: Terminal prompts and key source selection.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/agilira/arocrypt"
	"github.com/agilira/arocrypt/internal/keystore"
	"golang.org/x/term"
)

const (
	// PassphraseEnvVar supplies the passphrase non-interactively.
	PassphraseEnvVar = "AROCRYPT_PASSPHRASE"
	// MasterPasswordEnvVar unlocks the keystore non-interactively.
	MasterPasswordEnvVar = "AROCRYPT_MASTER_PASSWORD"
)

// Key source names accepted by -key-source.
const (
	sourceEnv      = "env"
	sourcePrompt   = "prompt"
	sourceKeystore = "keystore"
)

// promptPassphrase asks on the terminal, once per call.
type promptPassphrase struct {
	confirm bool
}

func (p promptPassphrase) Passphrase(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pass, err := readPassword("Passphrase: ")
	if err != nil {
		return nil, err
	}
	if len(pass) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", arocrypt.ErrKeyNotConfigured)
	}
	if !p.confirm {
		return pass, nil
	}
	again, err := readPassword("Confirm passphrase: ")
	if err != nil {
		arocrypt.Zeroize(pass)
		return nil, err
	}
	defer arocrypt.Zeroize(again)
	if !bytes.Equal(pass, again) {
		arocrypt.Zeroize(pass)
		return nil, fmt.Errorf("%w: passphrases do not match", arocrypt.ErrInvalidInput)
	}
	return pass, nil
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd()) // #nosec G115
	if term.IsTerminal(fd) {
		return term.ReadPassword(fd)
	}
	tty, err := os.Open("/dev/tty")
	if err != nil {
		if runtime.GOOS == "windows" {
			return nil, fmt.Errorf("set %s when stdin is not a terminal", PassphraseEnvVar)
		}
		return nil, fmt.Errorf("stdin is not a terminal and /dev/tty is unavailable; set %s", PassphraseEnvVar)
	}
	defer tty.Close()
	return term.ReadPassword(int(tty.Fd())) // #nosec G115
}

// masterPassword reads the keystore master password from the environment or the terminal.
func masterPassword() ([]byte, error) {
	if v := os.Getenv(MasterPasswordEnvVar); v != "" {
		return []byte(v), nil
	}
	return readPassword("Keystore master password: ")
}

// openKeystore opens the configured keystore.
func (a *app) openKeystore() (*keystore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	dir, err := arocrypt.ResolvePath(a.cfg.KeystoreDir)
	if err != nil {
		return nil, err
	}
	master, err := masterPassword()
	if err != nil {
		return nil, err
	}
	defer arocrypt.Zeroize(master)
	store, err := keystore.Open(keystore.Options{
		Dir:            dir,
		MasterPassword: master,
		Logger:         a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// passphrases builds the registry and selects source. An empty source picks
// env when the variable is set and the prompt otherwise. A prompted passphrase
// is read once and sealed for the rest of the command.
func (a *app) passphrases(ctx context.Context, source string, confirm bool) (arocrypt.PassphraseProvider, error) {
	reg := arocrypt.NewProviderRegistry(nil)
	if err := reg.Register(sourceEnv, arocrypt.EnvPassphrase(PassphraseEnvVar)); err != nil {
		return nil, err
	}
	if source == "" {
		source = sourcePrompt
		if os.Getenv(PassphraseEnvVar) != "" {
			source = sourceEnv
		}
	}
	switch source {
	case sourcePrompt:
		pass, err := promptPassphrase{confirm: confirm}.Passphrase(ctx)
		if err != nil {
			return nil, err
		}
		sealed := arocrypt.NewStaticPassphrase(pass)
		arocrypt.Zeroize(pass)
		if err := reg.Register(sourcePrompt, sealed); err != nil {
			return nil, err
		}
	case sourceKeystore:
		store, err := a.openKeystore()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(sourceKeystore, store); err != nil {
			return nil, err
		}
	}
	if err := reg.SetDefault(source); err != nil {
		return nil, err
	}
	a.logger.WithField("source", source).Debug("passphrase source selected")
	return reg, nil
}
