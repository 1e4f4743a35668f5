// Package cache provides a keyed TTL store for geocoding, reverse-geocoding,
// autocomplete, forecast and region-detection results.
//
// Entries live in memory and are optionally mirrored to a persistent backend
// (Postgres, Redis or SQLite). The mirror is best effort: when it fails the
// store logs a warning and keeps working from memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxEntries bounds the in-memory map when Config.MaxEntries is unset.
	DefaultMaxEntries = 10_000

	// sweepInterval spaces the expired-entry sweeps triggered by Put.
	sweepInterval = 5 * time.Minute
)

// ErrUnknownNamespace is returned by Put for keys without a known namespace prefix.
var ErrUnknownNamespace = errors.New("unknown cache namespace")

// Entry is the persisted form of a cached value.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
}

// Mirror is a persistent backend for cache entries.
type Mirror interface {
	// Load returns the entry stored under key, or nil when there is none.
	Load(ctx context.Context, key string) (*Entry, error)

	// Save stores the entry. ttl is a hint for backends with native expiry.
	Save(ctx context.Context, key string, entry Entry, ttl time.Duration) error

	// Clear removes every entry whose key starts with prefix.
	Clear(ctx context.Context, prefix string) error

	// Name identifies the backend in logs and stats.
	Name() string
}

// Config holds configuration for the store.
type Config struct {
	// Mirror is the optional persistent backend.
	Mirror Mirror

	// Logger for persistence warnings.
	Logger zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// MaxEntries caps the in-memory entries. Past it the least recently used
	// entry is dropped; the mirror keeps its copy. Default: DefaultMaxEntries.
	MaxEntries int
}

// Store is a TTL cache keyed by namespaced strings. It is safe for concurrent
// use; concurrent writers to the same key are last-write-wins.
//
// Memory is bounded two ways: Put periodically sweeps entries past their
// namespace TTL, and the map holds at most MaxEntries, evicting the least
// recently used entry first.
type Store struct {
	mirror Mirror
	logger zerolog.Logger
	now    func() time.Time

	// mu serializes writers; readers go straight to the LRU, which locks itself.
	mu        sync.Mutex
	entries   *lru.Cache[string, Entry]
	nextSweep time.Time

	hits       atomic.Int64
	misses     atomic.Int64
	mirrorErrs atomic.Int64
	evictions  atomic.Int64
	reclaimed  atomic.Int64
}

// New creates a new store.
func New(cfg Config) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	size := cfg.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, Entry](size)

	return &Store{
		mirror:  cfg.Mirror,
		logger:  cfg.Logger,
		now:     now,
		entries: entries,
	}
}

// Get returns the raw JSON stored under key if it is still fresh.
// A memory miss falls back to the mirror; a fresh mirror entry is copied
// back into memory.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	ttl := NamespaceOf(key).TTL()
	if ttl == 0 {
		s.misses.Add(1)
		return nil, false
	}

	entry, ok := s.entries.Get(key)
	if ok && s.fresh(entry, ttl) {
		s.hits.Add(1)
		return entry.Data, true
	}

	if s.mirror != nil {
		if mirrored := s.load(ctx, key); mirrored != nil && s.fresh(*mirrored, ttl) {
			s.mu.Lock()
			if current, ok := s.entries.Peek(key); !ok || current.Timestamp < mirrored.Timestamp {
				s.add(key, *mirrored)
			}
			s.mu.Unlock()

			s.hits.Add(1)
			return mirrored.Data, true
		}
	}

	s.misses.Add(1)
	return nil, false
}

// Lookup decodes the fresh entry stored under key into T.
// An entry that no longer decodes is treated as absent.
func Lookup[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T

	raw, ok := s.Get(ctx, key)
	if !ok {
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return zero, false
	}
	return v, true
}

// Put stores data under key, stamped with the current time. Only encoding
// failures and unknown namespaces are returned; mirror failures are logged.
func (s *Store) Put(ctx context.Context, key string, data any) error {
	ns := NamespaceOf(key)
	if ns.TTL() == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, key)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}

	now := s.now()
	entry := Entry{Data: raw, Timestamp: now.UnixMilli()}

	s.mu.Lock()
	s.add(key, entry)
	if !now.Before(s.nextSweep) {
		s.nextSweep = now.Add(sweepInterval)
		s.sweepLocked(now)
	}
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.Save(ctx, key, entry, ns.TTL()); err != nil {
			s.mirrorErrs.Add(1)
			s.logger.Warn().Err(err).
				Str("key", key).
				Str("mirror", s.mirror.Name()).
				Msg("cache mirror write failed, continuing in memory")
		}
	}

	return nil
}

// Clear removes every entry whose key starts with prefix and returns the
// number of in-memory entries removed. An empty prefix clears everything.
func (s *Store) Clear(ctx context.Context, prefix string) int {
	s.mu.Lock()
	removed := 0
	for _, key := range s.entries.Keys() {
		if strings.HasPrefix(key, prefix) && s.entries.Remove(key) {
			removed++
		}
	}
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.Clear(ctx, prefix); err != nil {
			s.mirrorErrs.Add(1)
			s.logger.Warn().Err(err).
				Str("prefix", prefix).
				Str("mirror", s.mirror.Name()).
				Msg("cache mirror clear failed")
		}
	}

	return removed
}

// Sweep drops in-memory entries older than their namespace TTL and returns how
// many were removed. Put calls it on its own every few minutes. The mirror is
// left alone; backends expire their own rows.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for _, key := range s.entries.Keys() {
		entry, ok := s.entries.Peek(key)
		if ok && !freshAt(entry, NamespaceOf(key).TTL(), now) && s.entries.Remove(key) {
			removed++
		}
	}
	if removed > 0 {
		s.reclaimed.Add(int64(removed))
		s.logger.Debug().Int("removed", removed).Msg("swept expired cache entries")
	}
	return removed
}

func (s *Store) add(key string, entry Entry) {
	if s.entries.Add(key, entry) {
		s.evictions.Add(1)
	}
}

// Stats returns a snapshot of the in-memory entries and hit counters.
func (s *Store) Stats() Stats {
	byNamespace := make(map[Namespace]*NamespaceStats)
	for _, key := range s.entries.Keys() {
		entry, ok := s.entries.Peek(key)
		if !ok {
			continue
		}
		ns := NamespaceOf(key)
		st, ok := byNamespace[ns]
		if !ok {
			st = &NamespaceStats{Namespace: ns}
			byNamespace[ns] = st
		}
		st.Entries++
		if s.fresh(entry, ns.TTL()) {
			st.FreshEntries++
		}
	}

	namespaces := make([]NamespaceStats, 0, len(byNamespace))
	for _, st := range byNamespace {
		namespaces = append(namespaces, *st)
	}
	sort.Slice(namespaces, func(i, j int) bool { return namespaces[i].Namespace < namespaces[j].Namespace })

	stats := Stats{
		Namespaces:   namespaces,
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
		MirrorErrors: s.mirrorErrs.Load(),
		Evictions:    s.evictions.Load(),
		Reclaimed:    s.reclaimed.Load(),
	}
	if s.mirror != nil {
		stats.Mirror = s.mirror.Name()
	}
	return stats
}

// Stats contains cache statistics.
type Stats struct {
	Namespaces   []NamespaceStats
	Hits         int64
	Misses       int64
	MirrorErrors int64
	Mirror       string

	// Evictions counts fresh entries dropped to stay under MaxEntries.
	Evictions int64
	// Reclaimed counts expired entries removed by sweeps.
	Reclaimed int64
}

// NamespaceStats contains per-namespace entry counts.
type NamespaceStats struct {
	Namespace    Namespace
	Entries      int
	FreshEntries int
}

// fresh reports whether the entry is younger than ttl. An entry exactly ttl
// old is expired.
func (s *Store) fresh(e Entry, ttl time.Duration) bool {
	return freshAt(e, ttl, s.now())
}

func freshAt(e Entry, ttl time.Duration, now time.Time) bool {
	return now.UnixMilli()-e.Timestamp < ttl.Milliseconds()
}

func (s *Store) load(ctx context.Context, key string) *Entry {
	entry, err := s.mirror.Load(ctx, key)
	if err != nil {
		s.mirrorErrs.Add(1)
		s.logger.Warn().Err(err).
			Str("key", key).
			Str("mirror", s.mirror.Name()).
			Msg("cache mirror read failed, continuing in memory")
		return nil
	}
	return entry
}
