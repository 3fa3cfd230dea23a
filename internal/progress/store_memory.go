package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	records []Record
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.ID == rec.ID {
			return nil
		}
	}
	s.records = append(s.records, rec)
	return nil
}

// List returns a user's records for a topic, oldest first. An empty topic
// returns every record of the user.
func (s *MemoryStore) List(_ context.Context, userID, topic string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, r := range s.records {
		if r.UserID != userID {
			continue
		}
		if topic != "" && !roadmap.SameTopic(r.Topic, topic) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
