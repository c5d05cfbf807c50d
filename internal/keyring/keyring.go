// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package keyring is the abstract key-value secret store spec.md §6
// names: aliases (`provider_name -> secret`) resolved in order, reads
// returning "not found" rather than an error when an alias is unset.
// The OS keyring integration itself is out of scope (spec.md's Non-goals);
// this package is the in-process contract the IndexManager resolves
// cloud-provider API keys against, backed by awnumar/memguard so secrets
// never sit in ordinary, swappable-to-disk Go heap memory.
package keyring

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// Store is the abstract contract: set a secret under an alias, read it
// back, or resolve the first match among several aliases. The
// IndexManager calls Resolve with the provider name as its single alias.
type Store interface {
	Set(alias, secret string) error
	Get(alias string) (string, bool, error)
	Resolve(aliases ...string) (string, bool, error)
	Delete(alias string)
}

// Keyring is a Store backed by memguard enclaves: each secret is sealed
// into encrypted, non-swappable memory and only decrypted for the
// duration of a Get/Resolve call.
type Keyring struct {
	mu      sync.RWMutex
	secrets map[string]*memguard.Enclave
}

// New returns an empty Keyring.
func New() *Keyring {
	return &Keyring{secrets: make(map[string]*memguard.Enclave)}
}

// Set seals secret under alias, replacing any value already stored
// there. The caller's copy of secret is not wiped; callers that read a
// secret from an environment variable or config file should discard
// their own copy promptly.
func (k *Keyring) Set(alias, secret string) error {
	buf := memguard.NewBufferFromBytes([]byte(secret))
	if buf == nil {
		return fmt.Errorf("keyring: failed to allocate secure buffer for alias %q", alias)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.secrets[alias] = buf.Seal()
	return nil
}

// Get returns the secret stored under alias. ok is false, with no error,
// when alias was never set — spec.md §6's "reads may return None".
func (k *Keyring) Get(alias string) (string, bool, error) {
	k.mu.RLock()
	enclave, ok := k.secrets[alias]
	k.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	lb, err := enclave.Open()
	if err != nil {
		return "", false, fmt.Errorf("keyring: opening alias %q: %w", alias, err)
	}
	defer lb.Destroy()
	return lb.String(), true, nil
}

// Resolve tries each alias in order and returns the first one present.
// This is the lookup IndexManager performs for a cloud provider's key; it
// passes the provider name as the only alias (spec.md §6:
// "the IndexManager accepts aliases and resolves the first match").
func (k *Keyring) Resolve(aliases ...string) (string, bool, error) {
	for _, alias := range aliases {
		secret, ok, err := k.Get(alias)
		if err != nil {
			return "", false, err
		}
		if ok {
			return secret, true, nil
		}
	}
	return "", false, nil
}

// Delete removes alias, if present. Deleting an unset alias is a no-op.
func (k *Keyring) Delete(alias string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.secrets, alias)
}

// Close wipes every secured buffer and enclave process-wide. Call once,
// at process shutdown.
func Close() {
	memguard.Purge()
}
