// Package creds persists per-platform credentials in a JSON file with
// atomic replace semantics and snapshot reads.
package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"magpie/internal/faults"
)

// Validity records whether a stored credential is known to work.
type Validity string

const (
	ValidityValid     Validity = "valid"
	ValidityInvalid   Validity = "invalid"
	ValidityUnchecked Validity = "unchecked"
)

// ParseValidity converts a string into a known Validity value.
func ParseValidity(value string) (Validity, error) {
	switch Validity(strings.ToLower(strings.TrimSpace(value))) {
	case ValidityValid:
		return ValidityValid, nil
	case ValidityInvalid:
		return ValidityInvalid, nil
	case ValidityUnchecked, "":
		return ValidityUnchecked, nil
	default:
		return "", fmt.Errorf("unknown credential validity %q", value)
	}
}

// Record is one stored credential.
type Record struct {
	Token     string    `json:"token"`
	Validity  Validity  `json:"validity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a file-backed credential map keyed by platform id. Reads return
// consistent snapshots; writes persist the whole map via temp file + rename
// so a crash never leaves a partially written store.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]Record
}

// Open loads the store at path. A missing file resolves to an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]Record)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read credential store: %w", err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("decode credential store: %w", err)
	}
	return s, nil
}

// Get returns the credential for a platform, if any.
func (s *Store) Get(platformID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[normalizeID(platformID)]
	return rec, ok
}

// Set stores a credential and persists the store. UpdatedAt is stamped here.
func (s *Store) Set(platformID string, rec Record) error {
	id := normalizeID(platformID)
	if id == "" {
		return fmt.Errorf("%w: empty platform id", faults.ErrInvalidInput)
	}
	if strings.TrimSpace(rec.Token) == "" {
		return fmt.Errorf("%w: empty credential token", faults.ErrInvalidInput)
	}
	if rec.Validity == "" {
		rec.Validity = ValidityUnchecked
	}
	rec.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = rec
	return s.persistLocked()
}

// SetValidity updates the validity flag of an existing credential.
func (s *Store) SetValidity(platformID string, validity Validity) error {
	id := normalizeID(platformID)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: no credential for platform %q", faults.ErrNotFound, platformID)
	}
	rec.Validity = validity
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return s.persistLocked()
}

// Remove deletes a credential and persists the store.
func (s *Store) Remove(platformID string) error {
	id := normalizeID(platformID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: no credential for platform %q", faults.ErrNotFound, platformID)
	}
	delete(s.records, id)
	return s.persistLocked()
}

// Snapshot returns a copy of all stored credentials.
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}

// Platforms returns the platform ids with stored credentials, sorted.
func (s *Store) Platforms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure credential directory: %w", err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("create credential temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write credential temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod credential temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close credential temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace credential store: %w", err)
	}
	return nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
