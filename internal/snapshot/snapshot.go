// Package snapshot holds the latest known set of tracked launches, shared by
// the poller and by commands that list launches.
package snapshot

import (
	"slices"
	"sync"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// Store is a versioned single-writer, multi-reader launch snapshot.
// Readers receive copies; the lock is held only to copy or swap.
type Store struct {
	mu        sync.RWMutex
	records   []models.LaunchRecord
	version   uint64
	updatedAt time.Time
	clock     func() time.Time
}

// New creates an empty store at version 0.
func New() *Store {
	return &Store{clock: time.Now}
}

// Snapshot returns a copy of the current records and their version.
func (s *Store) Snapshot() ([]models.LaunchRecord, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records), s.version
}

// Launches returns a copy of the current records in ordinal order.
func (s *Store) Launches() []models.LaunchRecord {
	records, _ := s.Snapshot()
	return records
}

// CompareAndSwap replaces the records if the store is still at version and
// reports whether it did. A successful swap bumps the version.
func (s *Store) CompareAndSwap(version uint64, next []models.LaunchRecord) bool {
	records := slices.Clone(next)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return false
	}
	s.records = records
	s.version++
	s.updatedAt = s.clock()
	return true
}

// Version returns the number of successful swaps.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpdatedAt returns the time of the last swap, zero before the first.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Find returns the record with the given source id.
func (s *Store) Find(sourceID string) (models.LaunchRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.SourceID == sourceID {
			return r, true
		}
	}
	return models.LaunchRecord{}, false
}

// At returns the record with the given ordinal.
func (s *Store) At(ordinal int) (models.LaunchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(s.records) {
		return models.LaunchRecord{}, models.ErrLaunchNotFound
	}
	return s.records[ordinal], nil
}
