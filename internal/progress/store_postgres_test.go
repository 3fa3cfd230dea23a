package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/studymatehub/studymate-bot/internal/platform/database"
	"github.com/studymatehub/studymate-bot/internal/progress"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("studymate"),
		postgres.WithUsername("studymate"),
		postgres.WithPassword("studymate"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	db, err := database.New(ctx, database.Options{URL: dsn})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Migrations run on every start.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := newTestDB(t)
	s, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	recs := []progress.Record{
		{UserID: "u1", Topic: "machine learning", NodeLabel: "Linear Regression", Kind: "full", QuizScore: 8, QuestionCount: 10, CreatedAt: base},
		{UserID: "u1", Topic: "Machine  Learning", NodeLabel: "Decision Trees", Kind: "diagnostic", QuizScore: 1, QuestionCount: 5, FeedbackText: "too fast", CreatedAt: base.Add(time.Hour)},
		{UserID: "u1", Topic: "SQL", NodeLabel: "Joins", Kind: "full", QuizScore: 10, QuestionCount: 10, CreatedAt: base},
	}
	for _, r := range recs {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := s.List(ctx, "u1", "MACHINE LEARNING")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].NodeLabel != "Linear Regression" || got[0].Topic != "Machine Learning" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].FeedbackText != "too fast" || got[0].FeedbackText != "" {
		t.Errorf("feedback = %q, %q", got[0].FeedbackText, got[1].FeedbackText)
	}

	done := progress.CompletedNodes(got, "machine learning")
	if !done.Has("Linear Regression") || done.Has("Decision Trees") {
		t.Errorf("completed = %v", done.Keys())
	}

	// Re-appending a record with a known id is a no-op.
	dup := got[0]
	if err := s.Append(ctx, dup); err != nil {
		t.Fatalf("Append(dup) error = %v", err)
	}
	all, _ := s.List(ctx, "u1", "")
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}

	if err := s.Append(ctx, progress.Record{Topic: "Go", NodeLabel: "Syntax"}); err == nil {
		t.Error("Append() without user_id should fail")
	}
}
