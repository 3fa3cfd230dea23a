package agent_test

import (
	"testing"

	"github.com/studymatehub/studymate-bot/internal/agent"
)

func TestAccountStore_LinkAndLookup(t *testing.T) {
	store := agent.NewMemoryStore()

	err := store.Link(agent.AccountLink{
		Channel:    "telegram",
		ExternalID: "123",
		AccountID:  "acct-1",
	})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	got, ok := store.Lookup("telegram", "123")
	if !ok || got != "acct-1" {
		t.Errorf("Lookup() = %q, %v, want acct-1, true", got, ok)
	}

	if _, ok := store.Lookup("websocket", "123"); ok {
		t.Error("Lookup() should be scoped to the channel")
	}
}

func TestAccountStore_Relink(t *testing.T) {
	store := agent.NewMemoryStore()
	_ = store.Link(agent.AccountLink{Channel: "telegram", ExternalID: "123", AccountID: "acct-1"})
	_ = store.Link(agent.AccountLink{Channel: "telegram", ExternalID: "123", AccountID: "acct-2"})

	got, _ := store.Lookup("telegram", "123")
	if got != "acct-2" {
		t.Errorf("Lookup() = %q, want acct-2", got)
	}
}

func TestAccountStore_LinkValidation(t *testing.T) {
	store := agent.NewMemoryStore()

	tests := []struct {
		name string
		link agent.AccountLink
	}{
		{"no channel", agent.AccountLink{ExternalID: "1", AccountID: "a"}},
		{"no external id", agent.AccountLink{Channel: "telegram", AccountID: "a"}},
		{"no account", agent.AccountLink{Channel: "telegram", ExternalID: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Link(tt.link); err == nil {
				t.Error("Link() should fail")
			}
		})
	}
}

func TestAccountStore_Unlink(t *testing.T) {
	store := agent.NewMemoryStore()
	_ = store.Link(agent.AccountLink{Channel: "telegram", ExternalID: "123", AccountID: "acct-1"})

	if err := store.Unlink("telegram", "123"); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if _, ok := store.Lookup("telegram", "123"); ok {
		t.Error("Lookup() after Unlink should miss")
	}
	if err := store.Unlink("telegram", "123"); err == nil {
		t.Error("Unlink() of a missing link should fail")
	}
}

func TestPostgresStore_NilPool(t *testing.T) {
	if _, err := agent.NewPostgresStore(nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
