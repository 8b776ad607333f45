package store

import (
	"context"
	"sync"
	"time"

	"github.com/vigil-sec/vigil/internal/models"
)

type localEntry struct {
	Action  models.Action
	Details models.EnforcementDetails
	Expiry  time.Time
}

// LocalStore is an in-memory Store for store-less deployments and tests.
// Entries expire lazily on read and are swept by a janitor loop.
type LocalStore struct {
	entries map[string]localEntry
	mu      sync.RWMutex
}

// NewLocalStore returns a LocalStore with its janitor running.
func NewLocalStore() *LocalStore {
	s := &LocalStore{entries: make(map[string]localEntry)}
	go s.cleanupLoop()
	return s
}

func (s *LocalStore) Get(_ context.Context, et models.EntityType, entity string) (models.Action, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[Key(et, entity)]
	if !ok || expired(entry) {
		return "", false, nil
	}
	return entry.Action, true, nil
}

func (s *LocalStore) Set(_ context.Context, et models.EntityType, entity string, action models.Action, details models.EnforcementDetails, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := time.Time{}
	if ttl > 0 {
		expiry = time.Now().Add(ttl)
	}

	s.entries[Key(et, entity)] = localEntry{Action: action, Details: details, Expiry: expiry}
	return nil
}

func (s *LocalStore) Details(_ context.Context, et models.EntityType, entity string) (*models.EnforcementDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[Key(et, entity)]
	if !ok || expired(entry) {
		return nil, nil
	}
	details := entry.Details
	return &details, nil
}

func (s *LocalStore) Active(_ context.Context) (map[string]models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make(map[string]models.Action)
	for k, entry := range s.entries {
		if !expired(entry) {
			active[k[len("mitigation:"):]] = entry.Action
		}
	}
	return active, nil
}

func (s *LocalStore) Delete(_ context.Context, et models.EntityType, entity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Key(et, entity))
	return nil
}

func (s *LocalStore) Ping(context.Context) error { return nil }

func expired(e localEntry) bool {
	return !e.Expiry.IsZero() && time.Now().After(e.Expiry)
}

func (s *LocalStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		s.mu.Lock()
		for k, e := range s.entries {
			if expired(e) {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}
