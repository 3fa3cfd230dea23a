// Package guest keeps the roadmap, saved resources and quiz history of a
// learner who has not linked an account, and merges them into an account on
// first sign-in.
package guest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/studymatehub/studymate-bot/internal/platform/cache"
	"github.com/studymatehub/studymate-bot/internal/progress"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// SavedResource is a bookmarked video, article or PDF.
type SavedResource struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Type      string `json:"type,omitempty"`
	Topic     string `json:"topic,omitempty"`
	NodeLabel string `json:"node_label,omitempty"`
}

// Data is everything stored for one guest.
type Data struct {
	Roadmap   *roadmap.Roadmap  `json:"roadmap"`
	Progress  []progress.Record `json:"progress"`
	Resources []SavedResource   `json:"resources"`
}

// Empty reports whether there is nothing worth merging.
func (d Data) Empty() bool {
	return d.Roadmap == nil && len(d.Progress) == 0 && len(d.Resources) == 0
}

// Store persists guest data by guest id.
type Store interface {
	Load(ctx context.Context, guestID string) (Data, error)
	Save(ctx context.Context, guestID string, data Data) error
	Clear(ctx context.Context, guestID string) error
}

// Locker takes short-lived exclusive locks.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(), error)
}

func dataKey(guestID string) string { return "guest_data:" + guestID }
func mergeKey(guestID string) string { return "guest_merge:" + guestID }

// RedisStore keeps guest data as a JSON document in Redis.
type RedisStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. Every write refreshes the ttl.
func NewRedisStore(c *cache.Cache, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: c, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, guestID string) (Data, error) {
	var d Data
	err := s.cache.GetJSON(ctx, dataKey(guestID), &d)
	if errors.Is(err, cache.ErrMiss) {
		return Data{}, nil
	}
	if err != nil {
		return Data{}, fmt.Errorf("load guest data: %w", err)
	}
	return d, nil
}

func (s *RedisStore) Save(ctx context.Context, guestID string, data Data) error {
	if err := s.cache.SetJSON(ctx, dataKey(guestID), data, s.ttl); err != nil {
		return fmt.Errorf("save guest data: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, guestID string) error {
	if err := s.cache.Delete(ctx, dataKey(guestID)); err != nil {
		return fmt.Errorf("clear guest data: %w", err)
	}
	return nil
}

func (s *RedisStore) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(), error) {
	return s.cache.TryLock(ctx, key, ttl)
}

// MemoryStore is an in-memory Store and Locker.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]Data
	locks map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]Data),
		locks: make(map[string]bool),
	}
}

func (s *MemoryStore) Load(_ context.Context, guestID string) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.data[guestID]), nil
}

func (s *MemoryStore) Save(_ context.Context, guestID string, data Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[guestID] = clone(data)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, guestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, guestID)
	return nil
}

func (s *MemoryStore) TryLock(_ context.Context, key string, _ time.Duration) (bool, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[key] {
		return false, func() {}, nil
	}
	s.locks[key] = true
	return true, func() {
		s.mu.Lock()
		delete(s.locks, key)
		s.mu.Unlock()
	}, nil
}

func clone(d Data) Data {
	out := Data{
		Progress:  append([]progress.Record(nil), d.Progress...),
		Resources: append([]SavedResource(nil), d.Resources...),
	}
	if d.Roadmap != nil {
		rm := *d.Roadmap
		rm.Nodes = append([]roadmap.Node(nil), d.Roadmap.Nodes...)
		out.Roadmap = &rm
	}
	return out
}
