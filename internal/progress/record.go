// Package progress records quiz attempts per roadmap node and derives which
// nodes a learner has completed.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/studymatehub/studymate-bot/internal/quiz"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

var ErrInvalidRecord = errors.New("invalid progress record")

// Record is one quiz attempt. Records are append-only: several may exist for
// the same topic and node.
type Record struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	Topic         string    `json:"topic"`
	NodeLabel     string    `json:"node_label"`
	Kind          string    `json:"kind"`
	QuizScore     int       `json:"quiz_score"`
	QuestionCount int       `json:"question_count"`
	FeedbackText  string    `json:"feedback_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// FromOutcome builds a record for a submitted quiz.
func FromOutcome(userID, topic string, out quiz.Outcome, now time.Time) Record {
	return Record{
		ID:            uuid.NewString(),
		UserID:        userID,
		Topic:         roadmap.DisplayTopic(topic),
		NodeLabel:     out.Params.SubTopic,
		Kind:          out.Params.Kind.String(),
		QuizScore:     out.Result.Score,
		QuestionCount: out.Result.Total,
		FeedbackText:  out.Feedback,
		CreatedAt:     now.UTC(),
	}
}

// Validate checks the fields every store requires.
func (r Record) Validate() error {
	switch {
	case r.Topic == "" || r.NodeLabel == "":
		return errors.Join(ErrInvalidRecord, errors.New("topic and node_label are required"))
	case r.QuizScore < 0 || r.QuestionCount < 0 || (r.QuestionCount > 0 && r.QuizScore > r.QuestionCount):
		return errors.Join(ErrInvalidRecord, errors.New("quiz_score must be within [0, question_count]"))
	}
	return nil
}

// Passed applies the canonical quiz threshold to this attempt. Older records
// without a question count are judged against the kind's default size.
func (r Record) Passed() bool {
	total := r.QuestionCount
	if total == 0 {
		kind, ok := quiz.ParseKind(r.Kind)
		if !ok {
			return false
		}
		total = kind.QuestionCount()
	}
	return quiz.Passed(r.QuizScore, total)
}

// CompletedNodes derives the completed set for a topic from attempt history.
// Any passing attempt counts, regardless of later failures.
func CompletedNodes(records []Record, topic string) roadmap.CompletedSet {
	set := roadmap.CompletedSet{}
	for _, r := range records {
		if !roadmap.SameTopic(r.Topic, topic) {
			continue
		}
		if r.Passed() {
			set.Add(r.NodeLabel)
		}
	}
	return set
}

// Store persists attempt history.
type Store interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, userID, topic string) ([]Record, error)
}
