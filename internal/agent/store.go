package agent

import (
	"fmt"
	"sync"
	"time"
)

// AccountLink ties a chat user to a StudyMate account.
type AccountLink struct {
	Channel    string    `json:"channel"`
	ExternalID string    `json:"external_id"`
	AccountID  string    `json:"account_id"`
	LinkedAt   time.Time `json:"linked_at"`
}

// AccountStore persists which chat users have signed in.
type AccountStore interface {
	Link(link AccountLink) error
	Lookup(channel, externalID string) (string, bool)
	Unlink(channel, externalID string) error
}

// MemoryStore is an in-memory implementation of AccountStore.
type MemoryStore struct {
	links map[string]AccountLink
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links: make(map[string]AccountLink),
	}
}

func linkKey(channel, externalID string) string {
	return channel + ":" + externalID
}

func (s *MemoryStore) Link(link AccountLink) error {
	if link.Channel == "" || link.ExternalID == "" || link.AccountID == "" {
		return fmt.Errorf("channel, external_id and account_id are required")
	}
	if link.LinkedAt.IsZero() {
		link.LinkedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[linkKey(link.Channel, link.ExternalID)] = link
	return nil
}

func (s *MemoryStore) Lookup(channel, externalID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[linkKey(channel, externalID)]
	if !ok {
		return "", false
	}
	return link.AccountID, true
}

func (s *MemoryStore) Unlink(channel, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := linkKey(channel, externalID)
	if _, ok := s.links[key]; !ok {
		return fmt.Errorf("account link not found: %s", key)
	}
	delete(s.links, key)
	return nil
}
