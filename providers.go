// providers.go: Key material providers injected into every codec call.
//
// Passphrases and KEM key pairs are fetched from a provider on each operation;
// nothing is cached between calls. A ProviderRegistry selects passphrase
// providers by name and can carry a go-plugins manager for externally hosted
// key sources.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	goplugins "github.com/agilira/go-plugins"
	"github.com/awnumar/memguard"
)

// PassphraseProvider returns the current passphrase. The caller owns the returned
// slice and zeroizes it after use. A provider without key material returns an
// error wrapping ErrKeyNotConfigured.
type PassphraseProvider interface {
	Passphrase(ctx context.Context) ([]byte, error)
}

// KemKeyProvider returns the current KEM key pair.
type KemKeyProvider interface {
	KemKeyPair(ctx context.Context) (*KemKeyPair, error)
}

// PassphraseFunc adapts a function to PassphraseProvider.
type PassphraseFunc func(ctx context.Context) ([]byte, error)

// Passphrase calls f(ctx).
func (f PassphraseFunc) Passphrase(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// StaticPassphrase keeps a fixed passphrase sealed in a memguard enclave.
type StaticPassphrase struct {
	enclave *memguard.Enclave
}

// NewStaticPassphrase seals a copy of passphrase. The argument is left untouched.
func NewStaticPassphrase(passphrase []byte) *StaticPassphrase {
	if len(passphrase) == 0 {
		return &StaticPassphrase{}
	}
	buf := make([]byte, len(passphrase))
	copy(buf, passphrase)
	// NewEnclave wipes buf.
	return &StaticPassphrase{enclave: memguard.NewEnclave(buf)}
}

// Passphrase opens the enclave and returns a copy of the passphrase.
func (s *StaticPassphrase) Passphrase(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.enclave == nil {
		return nil, ErrKeyNotConfigured
	}
	lb, err := s.enclave.Open()
	if err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeIO, "failed to open passphrase enclave")
	}
	defer lb.Destroy()
	out := make([]byte, lb.Size())
	copy(out, lb.Bytes())
	return out, nil
}

// EnvPassphrase reads the passphrase from the named environment variable.
type EnvPassphrase string

// Passphrase returns the variable's value or ErrKeyNotConfigured when unset or empty.
func (e EnvPassphrase) Passphrase(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := os.Getenv(string(e))
	if v == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", ErrKeyNotConfigured, string(e))
	}
	return []byte(v), nil
}

// StaticKemKeys serves a fixed key pair.
type StaticKemKeys struct {
	Pair *KemKeyPair
}

// KemKeyPair returns a copy of the configured pair.
func (s StaticKemKeys) KemKeyPair(ctx context.Context) (*KemKeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Pair == nil {
		return nil, ErrKeyNotConfigured
	}
	cp := *s.Pair
	return &cp, nil
}

// KeyRequest is the request type exchanged with plugin-hosted key sources.
type KeyRequest struct {
	Provider  string `json:"provider"`
	Operation string `json:"operation"`
}

// KeyResponse is the response type exchanged with plugin-hosted key sources.
type KeyResponse struct {
	Passphrase []byte `json:"passphrase,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProviderRegistry maps names to passphrase providers. It is itself a
// PassphraseProvider serving the default entry.
type ProviderRegistry struct {
	mu          sync.RWMutex
	providers   map[string]PassphraseProvider
	defaultName string
	plugins     *goplugins.Manager[KeyRequest, KeyResponse]
}

// NewProviderRegistry creates an empty registry. plugins may be nil.
func NewProviderRegistry(plugins *goplugins.Manager[KeyRequest, KeyResponse]) *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]PassphraseProvider),
		plugins:   plugins,
	}
}

// Plugins returns the plugin manager the registry was created with.
func (r *ProviderRegistry) Plugins() *goplugins.Manager[KeyRequest, KeyResponse] {
	return r.plugins
}

// Register adds or replaces a provider. The first registered provider becomes the default.
func (r *ProviderRegistry) Register(name string, provider PassphraseProvider) error {
	if name == "" {
		return newError(ErrInvalidInput, ErrCodeInvalidInput, "provider name cannot be empty")
	}
	if provider == nil {
		return newError(ErrInvalidInput, ErrCodeInvalidInput, "provider cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// SetDefault selects the provider served by Passphrase.
func (r *ProviderRegistry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("provider %q not registered", name))
	}
	r.defaultName = name
	return nil
}

// Get returns the named provider, or the default one when name is empty.
func (r *ProviderRegistry) Get(name string) (PassphraseProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q not registered", ErrKeyNotConfigured, name)
	}
	return p, nil
}

// Names lists registered providers, sorted.
func (r *ProviderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Passphrase serves the default provider.
func (r *ProviderRegistry) Passphrase(ctx context.Context) ([]byte, error) {
	p, err := r.Get("")
	if err != nil {
		return nil, err
	}
	return p.Passphrase(ctx)
}
