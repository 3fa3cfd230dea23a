package profile

import (
	"context"
	"testing"
	"time"

	"github.com/studymatehub/studymate-bot/internal/guest"
)

func TestMemoryStore_RoadmapsNewestFirstAndReplaced(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.PutRoadmap("u1", SavedRoadmap{Topic: "Calculus", CreatedAt: base})
	s.PutRoadmap("u1", SavedRoadmap{Topic: "Algebra", CreatedAt: base.Add(time.Hour)})
	s.PutRoadmap("u1", SavedRoadmap{Topic: "calculus", CreatedAt: base.Add(2 * time.Hour)})

	got, err := s.Roadmaps(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Topic != "calculus" || got[1].Topic != "Algebra" {
		t.Errorf("order = %q, %q", got[0].Topic, got[1].Topic)
	}

	other, _ := s.Roadmaps(context.Background(), "u2")
	if len(other) != 0 {
		t.Errorf("other user sees %d roadmaps", len(other))
	}
}

func TestMemoryStore_ResourcesDedupe(t *testing.T) {
	s := NewMemoryStore()
	s.PutResource("u1", guest.SavedResource{Title: "A", URL: "https://a"})
	s.PutResource("u1", guest.SavedResource{Title: "B", URL: "https://b"})
	s.PutResource("u1", guest.SavedResource{Title: "A again", URL: "https://a"})

	got, _ := s.Resources(context.Background(), "u1")
	if len(got) != 2 || got[0].URL != "https://b" {
		t.Errorf("Resources() = %+v", got)
	}
}

func TestDecodeGraph(t *testing.T) {
	nodes, err := decodeGraph([]byte(`{"nodes":[{"id":1,"label":"Limits"},{"id":"b","label":"Derivatives"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 || nodes[0].ID != "1" || nodes[1].Label != "Derivatives" {
		t.Errorf("decodeGraph() = %+v", nodes)
	}
	if _, err := decodeGraph([]byte(`{`)); err == nil {
		t.Error("decodeGraph() should fail on bad json")
	}
	if nodes, err := decodeGraph(nil); err != nil || nodes != nil {
		t.Errorf("decodeGraph(nil) = %v, %v", nodes, err)
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := NewPostgresStore(nil); err == nil {
		t.Error("expected error for nil pool")
	}
}
