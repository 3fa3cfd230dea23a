// Package profile reads what a signed-in learner has saved: roadmaps and
// bookmarked resources.
package profile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// SavedRoadmap is one roadmap kept in a learner's profile.
type SavedRoadmap struct {
	Topic     string
	Mode      roadmap.Mode
	Nodes     []roadmap.Node
	CreatedAt time.Time
}

// Store lists a learner's saved items, newest first.
type Store interface {
	Roadmaps(ctx context.Context, userID string) ([]SavedRoadmap, error)
	Resources(ctx context.Context, userID string) ([]guest.SavedResource, error)
}

// MemoryStore is an in-memory Store for tests and database-less runs.
type MemoryStore struct {
	mu        sync.RWMutex
	roadmaps  map[string][]SavedRoadmap
	resources map[string][]guest.SavedResource
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roadmaps:  make(map[string][]SavedRoadmap),
		resources: make(map[string][]guest.SavedResource),
	}
}

// PutRoadmap saves rm for userID, replacing any roadmap with the same topic.
func (s *MemoryStore) PutRoadmap(userID string, rm SavedRoadmap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rm.CreatedAt.IsZero() {
		rm.CreatedAt = time.Now()
	}
	list := s.roadmaps[userID][:0:0]
	for _, existing := range s.roadmaps[userID] {
		if !roadmap.SameTopic(existing.Topic, rm.Topic) {
			list = append(list, existing)
		}
	}
	s.roadmaps[userID] = append(list, rm)
}

// PutResource bookmarks res for userID. Duplicate URLs are ignored.
func (s *MemoryStore) PutResource(userID string, res guest.SavedResource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.resources[userID] {
		if existing.URL == res.URL {
			return
		}
	}
	s.resources[userID] = append(s.resources[userID], res)
}

func (s *MemoryStore) Roadmaps(_ context.Context, userID string) ([]SavedRoadmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]SavedRoadmap(nil), s.roadmaps[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Resources(_ context.Context, userID string) ([]guest.SavedResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.resources[userID]
	out := make([]guest.SavedResource, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
