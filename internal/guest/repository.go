package guest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studymatehub/studymate-bot/internal/progress"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

const mergeLockTTL = 30 * time.Second

// Syncer uploads guest data to an account.
type Syncer interface {
	SyncGuestData(ctx context.Context, accountID string, data Data) error
}

// MergeResult summarises a merge.
type MergeResult struct {
	Roadmap   bool
	Records   int
	Resources int
	// Skipped is set when another merge of the same guest was in flight.
	Skipped bool
}

// Repository is the only way the rest of the bot reads or writes guest data.
type Repository struct {
	store  Store
	locker Locker

	mu sync.Mutex // serialises read-modify-write cycles
}

// NewRepository creates a repository. locker may be nil, in which case
// merges are not protected against concurrent callers.
func NewRepository(store Store, locker Locker) *Repository {
	return &Repository{store: store, locker: locker}
}

// Load returns the guest's data.
func (r *Repository) Load(ctx context.Context, guestID string) (Data, error) {
	return r.store.Load(ctx, guestID)
}

// SetRoadmap replaces the guest's saved roadmap. Guests keep one roadmap.
func (r *Repository) SetRoadmap(ctx context.Context, guestID string, rm *roadmap.Roadmap) error {
	return r.update(ctx, guestID, func(d *Data) {
		cp := *rm
		cp.Nodes = append([]roadmap.Node(nil), rm.Nodes...)
		d.Roadmap = &cp
	})
}

// ClearRoadmap drops the saved roadmap if it matches topic.
func (r *Repository) ClearRoadmap(ctx context.Context, guestID, topic string) (bool, error) {
	removed := false
	err := r.update(ctx, guestID, func(d *Data) {
		if d.Roadmap != nil && roadmap.SameTopic(d.Roadmap.Topic, topic) {
			d.Roadmap = nil
			removed = true
		}
	})
	return removed, err
}

// RemoveResource drops the bookmark with the given URL.
func (r *Repository) RemoveResource(ctx context.Context, guestID, resourceURL string) (bool, error) {
	removed := false
	err := r.update(ctx, guestID, func(d *Data) {
		var kept []SavedResource
		for _, res := range d.Resources {
			if res.URL == resourceURL {
				removed = true
				continue
			}
			kept = append(kept, res)
		}
		d.Resources = kept
	})
	return removed, err
}

// AppendProgress records a quiz attempt.
func (r *Repository) AppendProgress(ctx context.Context, guestID string, rec progress.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UserID = ""
	return r.update(ctx, guestID, func(d *Data) {
		for _, existing := range d.Progress {
			if existing.ID == rec.ID {
				return
			}
		}
		d.Progress = append(d.Progress, rec)
	})
}

// AppendResource bookmarks a resource. It reports false when the URL was
// already saved.
func (r *Repository) AppendResource(ctx context.Context, guestID string, res SavedResource) (bool, error) {
	if strings.TrimSpace(res.URL) == "" {
		return false, fmt.Errorf("resource url is required")
	}
	added := false
	err := r.update(ctx, guestID, func(d *Data) {
		for _, existing := range d.Resources {
			if existing.URL == res.URL {
				return
			}
		}
		d.Resources = append(d.Resources, res)
		added = true
	})
	return added, err
}

// Records returns the guest's attempts for a topic.
func (r *Repository) Records(ctx context.Context, guestID, topic string) ([]progress.Record, error) {
	d, err := r.store.Load(ctx, guestID)
	if err != nil {
		return nil, err
	}
	out := []progress.Record{}
	for _, rec := range d.Progress {
		if topic == "" || roadmap.SameTopic(rec.Topic, topic) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// MergeInto uploads the guest's data to accountID and clears it on success.
// Records keep their ids and timestamps and take the account's user id, so
// after the merge they cannot be told apart from records created while
// signed in. On failure the data is kept for the next attempt.
func (r *Repository) MergeInto(ctx context.Context, guestID, accountID string, syncer Syncer) (MergeResult, error) {
	if accountID == "" {
		return MergeResult{}, fmt.Errorf("account id is required")
	}

	if r.locker != nil {
		ok, release, err := r.locker.TryLock(ctx, mergeKey(guestID), mergeLockTTL)
		if err != nil {
			return MergeResult{}, fmt.Errorf("lock guest merge: %w", err)
		}
		defer release()
		if !ok {
			return MergeResult{Skipped: true}, nil
		}
	}

	d, err := r.store.Load(ctx, guestID)
	if err != nil {
		return MergeResult{}, err
	}
	if d.Empty() {
		return MergeResult{}, nil
	}

	for i := range d.Progress {
		d.Progress[i].UserID = accountID
	}

	if err := syncer.SyncGuestData(ctx, accountID, d); err != nil {
		return MergeResult{}, fmt.Errorf("sync guest data: %w", err)
	}

	if err := r.store.Clear(ctx, guestID); err != nil {
		// Already synced: a repeat merge is harmless because record ids dedupe.
		slog.Warn("guest data synced but not cleared", "guest_id", guestID, "error", err)
	}

	return MergeResult{
		Roadmap:   d.Roadmap != nil,
		Records:   len(d.Progress),
		Resources: len(d.Resources),
	}, nil
}

func (r *Repository) update(ctx context.Context, guestID string, fn func(*Data)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.store.Load(ctx, guestID)
	if err != nil {
		return err
	}
	fn(&d)
	return r.store.Save(ctx, guestID, d)
}
