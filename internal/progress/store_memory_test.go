package progress_test

import (
	"context"
	"errors"
	"testing"

	"github.com/studymatehub/studymate-bot/internal/progress"
)

func TestMemoryStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s := progress.NewMemoryStore()

	recs := []progress.Record{
		{UserID: "u1", Topic: "Go", NodeLabel: "Syntax", Kind: "full", QuizScore: 7, QuestionCount: 10},
		{UserID: "u1", Topic: "go", NodeLabel: "Channels", Kind: "diagnostic", QuizScore: 2, QuestionCount: 5},
		{UserID: "u1", Topic: "SQL", NodeLabel: "Joins", Kind: "full", QuizScore: 9, QuestionCount: 10},
		{UserID: "u2", Topic: "Go", NodeLabel: "Syntax", Kind: "full", QuizScore: 10, QuestionCount: 10},
	}
	for _, r := range recs {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := s.List(ctx, "u1", "GO")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List(u1, GO) len = %d, want 2", len(got))
	}
	if got[0].NodeLabel != "Syntax" || got[1].NodeLabel != "Channels" {
		t.Errorf("order = %s, %s", got[0].NodeLabel, got[1].NodeLabel)
	}
	for _, r := range got {
		if r.ID == "" || r.CreatedAt.IsZero() {
			t.Errorf("record %+v should get an id and timestamp", r)
		}
	}

	all, _ := s.List(ctx, "u1", "")
	if len(all) != 3 {
		t.Errorf("List(u1, all) len = %d, want 3", len(all))
	}

	none, _ := s.List(ctx, "nobody", "Go")
	if none == nil || len(none) != 0 {
		t.Errorf("List(nobody) = %v, want empty non-nil slice", none)
	}
}

func TestMemoryStore_AppendIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	s := progress.NewMemoryStore()
	rec := progress.Record{ID: "f47ac10b-58cc-4372-a567-0e02b2c3d479", UserID: "u1", Topic: "Go", NodeLabel: "Syntax", Kind: "full", QuizScore: 6, QuestionCount: 10}

	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	got, _ := s.List(ctx, "u1", "Go")
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestMemoryStore_RejectsInvalid(t *testing.T) {
	s := progress.NewMemoryStore()
	err := s.Append(context.Background(), progress.Record{UserID: "u1", Topic: "Go"})
	if !errors.Is(err, progress.ErrInvalidRecord) {
		t.Errorf("Append() error = %v, want ErrInvalidRecord", err)
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := progress.NewPostgresStore(nil); err == nil {
		t.Error("NewPostgresStore(nil) should fail")
	}
}
