package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/signalk-exporter/internal/signalk"
)

// Entry is a parsed document together with the time it was last fetched.
type Entry struct {
	SourceID  string
	Doc       *signalk.Node
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory document store, keyed by source id.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL.
//
// Documents are treated as immutable once stored; readers share them.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the document for sourceID.
// Callers must not modify doc after calling Put.
func (s *Store) Put(sourceID string, doc *signalk.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sourceID] = &Entry{
		SourceID:  sourceID,
		Doc:       doc,
		UpdatedAt: s.now(),
	}
}

// Delete drops the document for sourceID, if any.
func (s *Store) Delete(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sourceID)
}

// Get returns the Entry for the given source ID and a boolean indicating
// whether an entry was found. The entry may be stale if TTL has elapsed.
func (s *Store) Get(sourceID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[sourceID]
	return e, ok
}

// List returns all entries whose UpdatedAt is within the TTL, ordered by
// source id. Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Stale reports whether e is older than the TTL.
func (s *Store) Stale(e *Entry) bool {
	return !e.UpdatedAt.After(s.now().Add(-s.ttl))
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so entries are evicted promptly. Run blocks until ctx is
// cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale documents", "count", n)
			}
		}
	}
}
