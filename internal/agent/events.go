package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types written by the engine.
const (
	EventRoadmapOpened = "roadmap_opened"
	EventQuizSubmitted = "quiz_submitted"
	EventAccountLinked = "account_linked"
	EventGuestMerged   = "guest_merged"
)

var errEventType = errors.New("event_type is required")

// Event is one learning analytics row. UserID is the account id, or the
// guest id when Guest is set.
type Event struct {
	UserID    string
	Channel   string
	Guest     bool
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// stamped returns the event with CreatedAt and Data filled in.
func (ev Event) stamped() Event {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	return ev
}

// EventLogger records analytics events. Failures are logged by the engine
// and never reach the learner.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger keeps events in memory.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return errEventType
	}
	l.mu.Lock()
	l.events = append(l.events, event.stamped())
	l.mu.Unlock()
	return nil
}

// Events returns a copy of everything logged so far.
func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// Count returns how many events of a type were logged.
func (l *MemoryEventLogger) Count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

// PostgresEventLogger appends events to the events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return errEventType
	}
	if event.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	event = event.stamped()

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO events (user_id, channel, is_guest, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		event.UserID,
		event.Channel,
		event.Guest,
		event.EventType,
		string(data),
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert %s event: %w", event.EventType, err)
	}

	slog.Debug("event logged", "type", event.EventType, "user_id", event.UserID, "guest", event.Guest)
	return nil
}
