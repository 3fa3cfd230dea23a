// Package agent turns chat messages into roadmap, quiz and profile actions.
// Each chat user gets one session holding their open roadmap view.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studymatehub/studymate-bot/internal/auth"
	"github.com/studymatehub/studymate-bot/internal/catalog"
	"github.com/studymatehub/studymate-bot/internal/chat"
	"github.com/studymatehub/studymate-bot/internal/gateway"
	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/learn"
	"github.com/studymatehub/studymate-bot/internal/profile"
)

const (
	maxTutorTurns = 10
	genericError  = "Sorry, something went wrong on our side. Please try again in a moment."
)

// guestNamespace scopes derived guest ids so they never collide with account ids.
var guestNamespace = uuid.MustParse("6f1c1f0e-5a7b-4d8e-9c2a-3b4d5e6f7a8b")

// Catalog lists curated topics.
type Catalog interface {
	Starters() []catalog.Entry
	Notes(topic string) (string, bool)
}

// Community covers the leaderboard and squad endpoints.
type Community interface {
	Leaderboard(ctx context.Context) ([]gateway.LeaderboardEntry, error)
	MySquad(ctx context.Context, userID string) (gateway.Squad, error)
	SquadRankings(ctx context.Context) ([]gateway.SquadRanking, error)
	CreateSquad(ctx context.Context, userID, name string) error
	JoinSquad(ctx context.Context, userID, code string) error
}

// Tutor answers questions about a roadmap node.
type Tutor interface {
	ChatNode(ctx context.Context, req gateway.ChatRequest) (string, error)
}

// ProfileEditor deletes saved items from an account profile.
type ProfileEditor interface {
	DeleteRoadmap(ctx context.Context, userID, topic string) error
	DeleteResource(ctx context.Context, userID, resourceURL string) error
}

// TokenVerifier checks access tokens pasted into /login.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// EngineConfig holds dependencies for the agent engine.
type EngineConfig struct {
	Learn     *learn.Deps
	Guests    *guest.Repository
	Syncer    guest.Syncer  // uploads guest data on sign-in
	Catalog   Catalog       // optional
	Community Community     // optional
	Tutor     Tutor         // optional
	Profiles  profile.Store // optional
	Remover   ProfileEditor // optional
	Accounts  AccountStore  // defaults to an in-memory store
	Verifier  TokenVerifier // nil disables /login
	Events    EventLogger   // defaults to NopEventLogger
}

// Engine is the core message processor.
type Engine struct {
	deps      *learn.Deps
	guests    *guest.Repository
	syncer    guest.Syncer
	catalog   Catalog
	community Community
	tutor     Tutor
	profiles  profile.Store
	remover   ProfileEditor
	accounts  AccountStore
	verifier  TokenVerifier
	events    EventLogger

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one chat user's state. Its mutex serialises their messages.
type session struct {
	mu sync.Mutex

	channel    string
	externalID string
	guestID    string
	learner    learn.Learner
	lastSeen   time.Time // guarded by Engine.mu

	// mergeRetryAt holds back automatic merge retries after a failure.
	mergeRetryAt time.Time

	view        *learn.View
	confirmExit bool

	tutorNode string
	tutorLog  []gateway.ChatTurn
}

// NewEngine creates a new agent engine.
func NewEngine(cfg EngineConfig) *Engine {
	deps := cfg.Learn
	if deps == nil {
		deps = &learn.Deps{}
	}
	accounts := cfg.Accounts
	if accounts == nil {
		accounts = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	return &Engine{
		deps:      deps,
		guests:    cfg.Guests,
		syncer:    cfg.Syncer,
		catalog:   cfg.Catalog,
		community: cfg.Community,
		tutor:     cfg.Tutor,
		profiles:  cfg.Profiles,
		remover:   cfg.Remover,
		accounts:  accounts,
		verifier:  cfg.Verifier,
		events:    events,
		sessions:  make(map[string]*session),
	}
}

// GuestID derives the stable guest id of a chat user.
func GuestID(channel, externalID string) string {
	return uuid.NewSHA1(guestNamespace, []byte(linkKey(channel, externalID))).String()
}

// ProcessMessage handles an incoming message and returns a response.
func (e *Engine) ProcessMessage(ctx context.Context, msg chat.InboundMessage) (string, error) {
	slog.Info("processing message",
		"channel", msg.Channel,
		"user_id", msg.UserID,
		"text_len", len(msg.Text),
	)

	s := e.session(msg)
	s.mu.Lock()
	defer s.mu.Unlock()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return "Send a topic you want to learn, or /help to see what I can do.", nil
	}

	merged := e.resumeMerge(ctx, s)

	var reply string
	switch {
	case s.confirmExit:
		reply = e.resolveExit(s, text)
	case strings.HasPrefix(text, "/"):
		reply = e.handleCommand(ctx, s, msg, text)
	default:
		reply = e.handleText(ctx, s, text)
	}
	if merged == "" {
		return reply, nil
	}
	return join(merged, reply), nil
}

func (e *Engine) session(msg chat.InboundMessage) *session {
	key := linkKey(msg.Channel, msg.UserID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[key]; ok {
		s.lastSeen = time.Now()
		return s
	}

	s := &session{
		channel:    msg.Channel,
		externalID: msg.UserID,
		guestID:    GuestID(msg.Channel, msg.UserID),
		lastSeen:   time.Now(),
	}
	s.learner = learn.Learner{ID: s.guestID, Guest: true}
	if accountID, ok := e.accounts.Lookup(msg.Channel, msg.UserID); ok {
		// Device data left by an earlier failed merge is retried on the first message.
		s.learner = learn.Learner{ID: accountID, PendingGuest: s.guestID}
	}
	e.sessions[key] = s
	return s
}

// EvictIdle drops sessions last used before cutoff and reports how many
// went. Sessions busy with a message are kept. Open views and quizzes of
// evicted sessions are lost; saved progress and account links are not.
func (e *Engine) EvictIdle(cutoff time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	evicted := 0
	for key, s := range e.sessions {
		if !s.lastSeen.Before(cutoff) || !s.mu.TryLock() {
			continue
		}
		delete(e.sessions, key)
		s.mu.Unlock()
		evicted++
	}
	return evicted
}

// Sessions returns the number of live sessions.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (e *Engine) RunEviction(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := e.EvictIdle(now.Add(-idle)); n > 0 {
				slog.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}

// handleText interprets plain messages according to where the learner is.
func (e *Engine) handleText(ctx context.Context, s *session, text string) string {
	if s.view == nil {
		return e.openTopic(ctx, s, text, false)
	}

	switch s.view.Stage() {
	case learn.StageQuiz:
		return e.answerQuiz(ctx, s, text)
	case learn.StageKnowledgeCheck:
		if yes, ok := parseYesNo(text); ok {
			return e.answerKnowledgeCheck(ctx, s, yes)
		}
	}

	if n, ok := parseNumber(text); ok {
		return e.openNode(s, n-1)
	}
	if s.view.Stage() == learn.StageKnowledgeCheck {
		return "Reply yes if you already know this step, or no to study it first."
	}
	return e.openTopic(ctx, s, text, false)
}

func (e *Engine) logEvent(s *session, eventType string, data map[string]any) {
	if err := e.events.LogEvent(Event{
		UserID:    s.learner.ID,
		Channel:   s.channel,
		Guest:     s.learner.Guest,
		EventType: eventType,
		Data:      data,
	}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "error", err)
	}
}

func (e *Engine) handleCommand(ctx context.Context, s *session, msg chat.InboundMessage, text string) string {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	// Telegram appends the bot name in groups: /learn@StudyMateBot.
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	switch cmd {
	case "/start":
		return e.handleStart(msg)
	case "/help":
		return helpText
	case "/learn":
		if rest == "" {
			return "Usage: /learn <topic>, for example /learn calculus"
		}
		return e.openTopic(ctx, s, rest, false)
	case "/cram":
		if rest == "" {
			return "Usage: /cram <topic> builds a shorter path for last-minute revision."
		}
		return e.openTopic(ctx, s, rest, true)
	case "/map":
		if s.view == nil {
			return noRoadmap
		}
		return renderRoadmap(s.view)
	case "/open":
		if s.view == nil {
			return noRoadmap
		}
		n, ok := firstNumber(args)
		if !ok {
			return "Usage: /open <step number>"
		}
		return e.openNode(s, n-1)
	case "/next":
		return e.openNext(ctx, s)
	case "/back":
		return e.back(s)
	case "/progress":
		if s.view == nil {
			return noRoadmap
		}
		return renderProgress(s.view)
	case "/notes":
		return e.notes(s)
	case "/diagnostic":
		return e.startQuiz(ctx, s, false)
	case "/assess":
		return e.startQuiz(ctx, s, true)
	case "/submit":
		return e.submitQuiz(ctx, s, rest)
	case "/retake":
		return e.retakeQuiz(ctx, s)
	case "/escalate":
		return e.escalateQuiz(ctx, s)
	case "/exit":
		return e.requestExit(s)
	case "/save":
		if s.view == nil {
			return noRoadmap
		}
		return renderNotices([]learn.Notice{s.view.SaveRoadmap(ctx)})
	case "/save_resource":
		return e.saveResource(ctx, s, args)
	case "/saved":
		return e.saved(ctx, s)
	case "/delete_roadmap":
		return e.deleteRoadmap(ctx, s, rest)
	case "/delete_resource":
		return e.deleteResource(ctx, s, rest)
	case "/ask":
		return e.ask(ctx, s, rest)
	case "/leaderboard":
		return e.leaderboard(ctx)
	case "/squad":
		return e.mySquad(ctx, s)
	case "/squad_create":
		return e.createSquad(ctx, s, rest)
	case "/squad_join":
		return e.joinSquad(ctx, s, rest)
	case "/login":
		return e.login(ctx, s, args)
	case "/logout":
		return e.logout(ctx, s)
	default:
		return fmt.Sprintf("Unknown command: %s\nUse /help to see what I can do.", cmd)
	}
}

func (e *Engine) handleStart(msg chat.InboundMessage) string {
	name := msg.FirstName
	if name == "" {
		name = msg.Username
	}
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s!\n\nI'm StudyMate. Tell me any topic and I'll build you a step-by-step roadmap, ", name)
	b.WriteString("with study resources and quizzes that unlock each step.\n")

	if e.catalog != nil {
		if starters := e.catalog.Starters(); len(starters) > 0 {
			b.WriteString("\nPopular topics:\n")
			for _, entry := range starters {
				fmt.Fprintf(&b, "- %s", entry.Topic)
				if entry.Summary != "" {
					fmt.Fprintf(&b, ": %s", entry.Summary)
				}
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\nSend a topic to begin, or /help for all commands.")
	return b.String()
}

const noRoadmap = "No roadmap open yet. Send a topic to start one."

const helpText = `Learning
/learn <topic> - build a roadmap
/cram <topic> - shorter roadmap for last-minute revision
/map - show the current roadmap
/open <n> or just <n> - open step n
/next - open the next unlocked step
/back - back to the roadmap
/progress - completed steps
/notes - curated notes for the topic

Quizzes
/diagnostic - short check
/assess - full assessment
/submit [feedback] - record a finished quiz
/retake - same quiz again
/escalate - go from a diagnostic to the full assessment
/exit - leave the quiz

Profile
/save - save this roadmap
/save_resource <n> - bookmark a resource
/saved - your saved roadmaps and resources
/delete_roadmap [topic] - remove a saved roadmap
/delete_resource <n> - remove a saved resource
/ask <question> - ask the tutor about the open step
/leaderboard, /squad, /squad_create <name>, /squad_join <code>
/login <token>, /logout`
