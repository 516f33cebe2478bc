package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LimiterStore keeps one token-bucket limiter per key (e.g. client IP).
// Entries unused for longer than expiresIn are dropped lazily on access.
type LimiterStore struct {
	entries   map[string]*entry
	mu        sync.Mutex
	r         rate.Limit
	burst     int
	expiresIn time.Duration
}

func NewLimiterStore(r rate.Limit, burst int, expiresIn time.Duration) *LimiterStore {
	return &LimiterStore{
		entries:   make(map[string]*entry),
		r:         r,
		burst:     burst,
		expiresIn: expiresIn,
	}
}

// Allow reports whether the caller identified by key may proceed now.
func (s *LimiterStore) Allow(key string) bool {
	return s.GetLimiter(key).Allow()
}

func (s *LimiterStore) GetLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, exists := s.entries[key]; exists {
		e.lastSeen = now
		return e.limiter
	}

	s.evictStale(now)

	limiter := rate.NewLimiter(s.r, s.burst)
	s.entries[key] = &entry{limiter: limiter, lastSeen: now}
	return limiter
}

func (s *LimiterStore) evictStale(now time.Time) {
	if s.expiresIn <= 0 {
		return
	}
	for key, e := range s.entries {
		if now.Sub(e.lastSeen) > s.expiresIn {
			delete(s.entries, key)
		}
	}
}
