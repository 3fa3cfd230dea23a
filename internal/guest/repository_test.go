package guest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/platform/cache"
	"github.com/studymatehub/studymate-bot/internal/progress"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

type recordingSyncer struct {
	calls     int
	accountID string
	data      guest.Data
	err       error
}

func (s *recordingSyncer) SyncGuestData(_ context.Context, accountID string, data guest.Data) error {
	s.calls++
	s.accountID = accountID
	s.data = data
	return s.err
}

func sampleRecord(label string, score int) progress.Record {
	return progress.Record{
		Topic:         "Machine Learning",
		NodeLabel:     label,
		Kind:          "full",
		QuizScore:     score,
		QuestionCount: 10,
	}
}

func TestRepository_AppendProgress(t *testing.T) {
	ctx := context.Background()
	repo := guest.NewRepository(guest.NewMemoryStore(), nil)

	if err := repo.AppendProgress(ctx, "g1", sampleRecord("Linear Algebra", 6)); err != nil {
		t.Fatalf("AppendProgress() error = %v", err)
	}
	if err := repo.AppendProgress(ctx, "g1", sampleRecord("Linear Algebra", 3)); err != nil {
		t.Fatalf("AppendProgress() error = %v", err)
	}

	recs, err := repo.Records(ctx, "g1", "machine  learning")
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Records() len = %d, want 2 (attempts are append-only)", len(recs))
	}
	for _, r := range recs {
		if r.ID == "" || r.CreatedAt.IsZero() {
			t.Errorf("record missing id or timestamp: %+v", r)
		}
	}

	done := progress.CompletedNodes(recs, "Machine Learning")
	if !done.Has("linear algebra") {
		t.Error("a passing guest attempt should complete the node")
	}
}

func TestRepository_AppendProgressRejectsInvalid(t *testing.T) {
	repo := guest.NewRepository(guest.NewMemoryStore(), nil)
	err := repo.AppendProgress(context.Background(), "g1", progress.Record{Topic: "Go"})
	if !errors.Is(err, progress.ErrInvalidRecord) {
		t.Fatalf("AppendProgress() error = %v, want ErrInvalidRecord", err)
	}
}

func TestRepository_AppendResourceDedupesByURL(t *testing.T) {
	ctx := context.Background()
	repo := guest.NewRepository(guest.NewMemoryStore(), nil)

	res := guest.SavedResource{Title: "Intro", URL: "https://example.com/v/1", Type: "video"}
	added, err := repo.AppendResource(ctx, "g1", res)
	if err != nil || !added {
		t.Fatalf("first AppendResource() = %v, %v, want added", added, err)
	}
	added, err = repo.AppendResource(ctx, "g1", res)
	if err != nil || added {
		t.Fatalf("second AppendResource() = %v, %v, want duplicate", added, err)
	}
	if _, err := repo.AppendResource(ctx, "g1", guest.SavedResource{Title: "x"}); err == nil {
		t.Error("AppendResource() without url should fail")
	}

	d, _ := repo.Load(ctx, "g1")
	if len(d.Resources) != 1 {
		t.Errorf("Resources len = %d, want 1", len(d.Resources))
	}
}

func TestRepository_RemoveResource(t *testing.T) {
	ctx := context.Background()
	repo := guest.NewRepository(guest.NewMemoryStore(), nil)
	for _, u := range []string{"https://example.com/a", "https://example.com/b"} {
		if _, err := repo.AppendResource(ctx, "g1", guest.SavedResource{Title: u, URL: u}); err != nil {
			t.Fatalf("AppendResource() error = %v", err)
		}
	}

	removed, err := repo.RemoveResource(ctx, "g1", "https://example.com/a")
	if err != nil || !removed {
		t.Fatalf("RemoveResource() = %v, %v, want removed", removed, err)
	}
	removed, _ = repo.RemoveResource(ctx, "g1", "https://example.com/a")
	if removed {
		t.Error("second RemoveResource() should report nothing removed")
	}

	d, _ := repo.Load(ctx, "g1")
	if len(d.Resources) != 1 || d.Resources[0].URL != "https://example.com/b" {
		t.Errorf("Resources = %+v, want only /b", d.Resources)
	}
}

func TestRepository_SetAndClearRoadmap(t *testing.T) {
	ctx := context.Background()
	repo := guest.NewRepository(guest.NewMemoryStore(), nil)

	rm := roadmap.Fallback("python", roadmap.ModeStandard)
	if err := repo.SetRoadmap(ctx, "g1", rm); err != nil {
		t.Fatalf("SetRoadmap() error = %v", err)
	}
	rm.Nodes[0].Label = "mutated"

	d, _ := repo.Load(ctx, "g1")
	if d.Roadmap == nil || d.Roadmap.Nodes[0].Label != "Python Basics" {
		t.Fatalf("stored roadmap = %+v, want copy of Python Basics", d.Roadmap)
	}

	removed, err := repo.ClearRoadmap(ctx, "g1", "Rust")
	if err != nil || removed {
		t.Errorf("ClearRoadmap(other topic) = %v, %v", removed, err)
	}
	removed, err = repo.ClearRoadmap(ctx, "g1", " PYTHON ")
	if err != nil || !removed {
		t.Errorf("ClearRoadmap(same topic) = %v, %v", removed, err)
	}
}

func TestRepository_MergeInto(t *testing.T) {
	ctx := context.Background()
	store := guest.NewMemoryStore()
	repo := guest.NewRepository(store, store)

	rec := sampleRecord("Calculus", 7)
	rec.ID = "11111111-1111-1111-1111-111111111111"
	rec.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := repo.AppendProgress(ctx, "g1", rec); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AppendResource(ctx, "g1", guest.SavedResource{Title: "PDF", URL: "https://example.com/a.pdf"}); err != nil {
		t.Fatal(err)
	}

	syncer := &recordingSyncer{}
	res, err := repo.MergeInto(ctx, "g1", "acct-42", syncer)
	if err != nil {
		t.Fatalf("MergeInto() error = %v", err)
	}
	if res.Records != 1 || res.Resources != 1 || res.Roadmap {
		t.Errorf("MergeInto() = %+v", res)
	}
	if syncer.accountID != "acct-42" {
		t.Errorf("synced account = %q", syncer.accountID)
	}

	got := syncer.data.Progress[0]
	want := rec
	want.UserID = "acct-42"
	if got != want {
		t.Errorf("merged record = %+v, want %+v", got, want)
	}

	d, _ := repo.Load(ctx, "g1")
	if !d.Empty() {
		t.Errorf("guest data should be cleared after merge, got %+v", d)
	}

	// Second merge has nothing to send.
	if _, err := repo.MergeInto(ctx, "g1", "acct-42", syncer); err != nil {
		t.Fatal(err)
	}
	if syncer.calls != 1 {
		t.Errorf("syncer calls = %d, want 1", syncer.calls)
	}
}

func TestRepository_MergeIntoKeepsDataOnFailure(t *testing.T) {
	ctx := context.Background()
	store := guest.NewMemoryStore()
	repo := guest.NewRepository(store, store)

	if err := repo.AppendProgress(ctx, "g1", sampleRecord("Calculus", 2)); err != nil {
		t.Fatal(err)
	}

	syncer := &recordingSyncer{err: errors.New("gateway down")}
	if _, err := repo.MergeInto(ctx, "g1", "acct-1", syncer); err == nil {
		t.Fatal("MergeInto() should surface sync failure")
	}

	d, _ := repo.Load(ctx, "g1")
	if len(d.Progress) != 1 {
		t.Fatalf("guest data should survive a failed merge")
	}
	if d.Progress[0].UserID != "" {
		t.Error("stored guest record must not carry the account id after a failed merge")
	}
}

func TestRepository_MergeIntoSkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	store := guest.NewMemoryStore()
	repo := guest.NewRepository(store, store)
	if err := repo.AppendProgress(ctx, "g1", sampleRecord("Calculus", 9)); err != nil {
		t.Fatal(err)
	}

	ok, release, _ := store.TryLock(ctx, "guest_merge:g1", time.Minute)
	if !ok {
		t.Fatal("could not take lock")
	}
	defer release()

	syncer := &recordingSyncer{}
	res, err := repo.MergeInto(ctx, "g1", "acct-1", syncer)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || syncer.calls != 0 {
		t.Errorf("MergeInto() under lock = %+v, calls %d; want skipped", res, syncer.calls)
	}
}

func TestRepository_MergeIntoRequiresAccount(t *testing.T) {
	repo := guest.NewRepository(guest.NewMemoryStore(), nil)
	if _, err := repo.MergeInto(context.Background(), "g1", "", &recordingSyncer{}); err == nil {
		t.Error("MergeInto() without account id should fail")
	}
}

func TestRedisStore_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live redis test in short mode")
	}
	c, err := cache.New(t.Context(), "redis://localhost:6379/15")
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer c.Close()

	ctx := t.Context()
	store := guest.NewRedisStore(c, time.Minute)
	id := "test-" + time.Now().Format("150405.000000000")
	defer store.Clear(ctx, id)

	d, err := store.Load(ctx, id)
	if err != nil || !d.Empty() {
		t.Fatalf("Load() on missing guest = %+v, %v", d, err)
	}

	repo := guest.NewRepository(store, store)
	if err := repo.SetRoadmap(ctx, id, roadmap.Fallback("go", roadmap.ModePanic)); err != nil {
		t.Fatal(err)
	}
	d, err = store.Load(ctx, id)
	if err != nil || d.Roadmap == nil || d.Roadmap.Mode != roadmap.ModePanic {
		t.Fatalf("Load() after SetRoadmap = %+v, %v", d, err)
	}
}
