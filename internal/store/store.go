// Package store persists learned merchant-to-category mappings in a YAML
// file. A mapping hit lets the classifier skip similarity search entirely
// for merchants it has already resolved.
package store

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// MappingStore manages the merchant mapping file. Lookups are
// case-insensitive on the merchant name. Safe for concurrent use.
type MappingStore struct {
	path string

	mu       sync.RWMutex
	mappings map[string]string
	dirty    bool
}

// NewMappingStore creates a store backed by the given YAML file.
func NewMappingStore(path string) *MappingStore {
	return &MappingStore{
		path:     path,
		mappings: make(map[string]string),
	}
}

// Load reads the mapping file. A missing file means an empty store, not an
// error, so first runs work without setup.
func (s *MappingStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("file", s.path).Debug("No merchant mappings file yet")
			return nil
		}
		return fmt.Errorf("read mappings file: %w", err)
	}

	raw := make(map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse mappings file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for merchant, category := range raw {
		s.mappings[strings.ToLower(merchant)] = category
	}

	log.WithFields(logrus.Fields{
		"file":  s.path,
		"count": len(raw),
	}).Debug("Loaded merchant mappings")

	return nil
}

// Lookup returns the learned category for a merchant, if any.
func (s *MappingStore) Lookup(merchant string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	category, ok := s.mappings[strings.ToLower(strings.TrimSpace(merchant))]
	return category, ok
}

// Record remembers a resolved merchant. The store is marked dirty so the
// next Save writes it out.
func (s *MappingStore) Record(merchant, category string) {
	merchant = strings.ToLower(strings.TrimSpace(merchant))
	if merchant == "" || category == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mappings[merchant] == category {
		return
	}
	s.mappings[merchant] = category
	s.dirty = true
}

// Save writes the mappings back to disk when anything changed since the
// last Load or Save.
func (s *MappingStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	data, err := yaml.Marshal(s.mappings)
	if err != nil {
		return fmt.Errorf("encode mappings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write mappings file: %w", err)
	}
	s.dirty = false

	log.WithFields(logrus.Fields{
		"file":  s.path,
		"count": len(s.mappings),
	}).Info("Saved merchant mappings")

	return nil
}

// Len reports how many mappings the store holds.
func (s *MappingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mappings)
}
