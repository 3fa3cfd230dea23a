// Package learn drives one learner's view of one roadmap: opening it, gating
// node clicks, routing through the knowledge check to resources or quizzes,
// and persisting quiz outcomes.
package learn

import (
	"context"
	"time"

	"github.com/studymatehub/studymate-bot/internal/gateway"
	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/progress"
	"github.com/studymatehub/studymate-bot/internal/quiz"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// RoadmapSource fetches generated roadmaps.
type RoadmapSource interface {
	Roadmap(ctx context.Context, topic string, mode roadmap.Mode) (*roadmap.Roadmap, error)
}

// ResourceSource fetches study bundles.
type ResourceSource interface {
	Resources(ctx context.Context, q gateway.ResourceQuery) (gateway.Bundle, error)
}

// Catalog serves curated roadmaps offline.
type Catalog interface {
	Roadmap(topic string, mode roadmap.Mode) (*roadmap.Roadmap, bool)
}

// AccountBackend persists data for signed-in learners.
type AccountBackend interface {
	SubmitProgress(ctx context.Context, rec progress.Record) error
	SaveRoadmap(ctx context.Context, userID string, rm *roadmap.Roadmap) (string, error)
	SaveResource(ctx context.Context, userID string, res guest.SavedResource) error
}

// History reads a signed-in learner's attempts.
type History interface {
	List(ctx context.Context, userID, topic string) ([]progress.Record, error)
}

// GuestStore persists data for learners without an account.
type GuestStore interface {
	Records(ctx context.Context, guestID, topic string) ([]progress.Record, error)
	AppendProgress(ctx context.Context, guestID string, rec progress.Record) error
	SetRoadmap(ctx context.Context, guestID string, rm *roadmap.Roadmap) error
	AppendResource(ctx context.Context, guestID string, res guest.SavedResource) (bool, error)
}

// Deps are shared by every view.
type Deps struct {
	Roadmaps  RoadmapSource
	Catalog   Catalog // optional
	Quizzes   quiz.Source
	Resources ResourceSource
	Account   AccountBackend
	History   History
	Guests    GuestStore
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Learner identifies who is looking at a view.
type Learner struct {
	ID    string
	Guest bool
	// PendingGuest is the guest id of a signed-in learner whose device data
	// has not been merged yet. Its attempts count toward the account.
	PendingGuest string
}
