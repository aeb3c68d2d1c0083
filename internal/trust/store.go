package trust

import (
	"crypto"
	"sync"

	"certpass/pkg/dgcerrors"
)

// ErrNotFound is returned when no trust entry matches the exact
// (country, keyID) pair. Lookups never fall back to another country's key.
var ErrNotFound = dgcerrors.New(dgcerrors.CodeNotFound, "no trusted certificate for key")

// Store holds the current trust-list snapshot. Replace is atomic: readers
// never observe a partially updated list.
type Store struct {
	mu      sync.RWMutex
	entries map[storeKey][]TrustedCert
}

type storeKey struct {
	country string
	keyID   string
}

// NewStore builds a store seeded with the given snapshot (may be empty).
func NewStore(list DscList) *Store {
	s := &Store{}
	s.Replace(list)
	return s
}

// Replace swaps the whole trust list in one step. Callers must verify the
// incoming list's signature against the pinned key before invoking this.
func (s *Store) Replace(list DscList) {
	entries := make(map[storeKey][]TrustedCert, len(list.Certificates))
	for _, cert := range list.Certificates {
		key := storeKey{country: cert.Country, keyID: string(cert.KeyID)}
		entries[key] = append(entries[key], cert)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}

// Resolve returns the verification key for the exact (country, keyID) pair.
// An unknown pair is ErrNotFound; several entries under one pair is an
// ambiguity error, never a first-match.
func (s *Store) Resolve(country string, keyID []byte) (crypto.PublicKey, error) {
	s.mu.RLock()
	matches := s.entries[storeKey{country: country, keyID: string(keyID)}]
	s.mu.RUnlock()

	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return matches[0].PublicKey(), nil
	default:
		return nil, dgcerrors.New(dgcerrors.CodeInternal, "ambiguous trust list entry")
	}
}

// Len reports the number of trust entries, for health reporting.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, certs := range s.entries {
		n += len(certs)
	}
	return n
}
