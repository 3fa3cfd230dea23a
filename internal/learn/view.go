package learn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studymatehub/studymate-bot/internal/gateway"
	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/progress"
	"github.com/studymatehub/studymate-bot/internal/quiz"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

var (
	ErrNotOpen        = errors.New("roadmap is not loaded yet")
	ErrQuizInProgress = errors.New("finish or exit the current quiz first")
	ErrNoQuiz         = errors.New("no quiz is running")
	ErrWrongStage     = errors.New("that action is not available right now")
	ErrNoSuchResource = errors.New("no such resource")
)

// Stage is where the learner is within the selected node.
type Stage int

const (
	StageRoadmap        Stage = iota // nothing selected, or back at the map
	StageKnowledgeCheck              // "do you already know this?"
	StageResources                   // studying the node's bundle
	StageQuiz                        // a quiz session is open
)

func (s Stage) String() string {
	switch s {
	case StageKnowledgeCheck:
		return "knowledge_check"
	case StageResources:
		return "resources"
	case StageQuiz:
		return "quiz"
	default:
		return "roadmap"
	}
}

// Origin records where the open roadmap came from.
type Origin int

const (
	OriginGateway Origin = iota
	OriginCatalog
	OriginFallback
)

func (o Origin) String() string {
	switch o {
	case OriginCatalog:
		return "catalog"
	case OriginFallback:
		return "fallback"
	default:
		return "gateway"
	}
}

// View is the controller for one (learner, topic, mode) roadmap view.
type View struct {
	deps    *Deps
	learner Learner
	topic   string
	mode    roadmap.Mode

	rm        *roadmap.Roadmap
	origin    Origin
	completed roadmap.CompletedSet
	gate      *roadmap.Gate

	selected int
	stage    Stage
	bundle   gateway.Bundle
	hasFetch bool // bundle fetched for the selected node

	session *quiz.Session
	asked   map[string][]string // question texts already seen, per node key
}

// NewView creates a view. Call Open before anything else.
func NewView(deps *Deps, learner Learner, topic string, mode roadmap.Mode) *View {
	return &View{
		deps:     deps,
		learner:  learner,
		topic:    roadmap.DisplayTopic(topic),
		mode:     mode,
		selected: -1,
		asked:    make(map[string][]string),
	}
}

// Open fetches the roadmap and the learner's attempt history. It always ends
// with a usable roadmap: gateway, then catalog, then a single Basics node.
func (v *View) Open(ctx context.Context) []Notice {
	var notices []Notice

	rm, err := v.deps.Roadmaps.Roadmap(ctx, v.topic, v.mode)
	v.origin = OriginGateway
	if err != nil {
		slog.Warn("roadmap fetch failed", "topic", v.topic, "mode", v.mode, "error", err)
		if cat, ok := v.catalogRoadmap(); ok {
			rm = cat
			v.origin = OriginCatalog
			notices = append(notices, warning("Couldn't reach the roadmap service, showing the curated path instead."))
		} else {
			rm = roadmap.Fallback(v.topic, v.mode)
			v.origin = OriginFallback
			notices = append(notices, warning("Couldn't generate a roadmap right now, starting with the basics."))
		}
	}
	v.rm = rm
	v.topic = rm.Topic

	notices = append(notices, v.Reload(ctx)...)
	v.selected = -1
	v.stage = StageRoadmap
	return notices
}

func (v *View) catalogRoadmap() (*roadmap.Roadmap, bool) {
	if v.deps.Catalog == nil {
		return nil, false
	}
	return v.deps.Catalog.Roadmap(v.topic, v.mode)
}

// Reload recomputes the completed set from stored attempts.
func (v *View) Reload(ctx context.Context) []Notice {
	records, err := v.records(ctx)
	if err != nil {
		slog.Warn("progress reload failed", "learner", v.learner.ID, "topic", v.topic, "error", err)
		if v.completed == nil {
			v.completed = roadmap.CompletedSet{}
		}
		v.gate = roadmap.NewGate(v.rm.Nodes, v.completed)
		return []Notice{warning("Couldn't load your progress, locked steps may be out of date.")}
	}
	v.completed = progress.CompletedNodes(records, v.topic)
	v.gate = roadmap.NewGate(v.rm.Nodes, v.completed)
	return nil
}

func (v *View) records(ctx context.Context) ([]progress.Record, error) {
	if v.learner.Guest {
		if v.deps.Guests == nil {
			return nil, nil
		}
		return v.deps.Guests.Records(ctx, v.learner.ID, v.topic)
	}

	var records []progress.Record
	if v.deps.History != nil {
		var err error
		if records, err = v.deps.History.List(ctx, v.learner.ID, v.topic); err != nil {
			return nil, err
		}
	}
	if v.learner.PendingGuest != "" && v.deps.Guests != nil {
		pending, err := v.deps.Guests.Records(ctx, v.learner.PendingGuest, v.topic)
		if err != nil {
			slog.Warn("unmerged guest progress unavailable", "guest_id", v.learner.PendingGuest, "error", err)
			return records, nil
		}
		records = append(records, pending...)
	}
	return records, nil
}

// ClickNode selects node k. Locked or unknown nodes are rejected without any
// state change. Clicking the selected node again does nothing.
func (v *View) ClickNode(k int) error {
	if v.rm == nil {
		return ErrNotOpen
	}
	if v.stage == StageQuiz {
		return ErrQuizInProgress
	}
	if err := v.gate.Check(k); err != nil {
		return err
	}
	if k == v.selected {
		return nil
	}
	v.selected = k
	v.stage = StageKnowledgeCheck
	v.bundle = gateway.Bundle{}
	v.hasFetch = false
	return nil
}

// AnswerKnowledgeCheck routes the selected node: learners who know the topic
// go straight to the full assessment, others get the study bundle.
func (v *View) AnswerKnowledgeCheck(ctx context.Context, knowsIt bool) ([]Notice, error) {
	if v.stage != StageKnowledgeCheck {
		return nil, ErrWrongStage
	}
	if knowsIt {
		return v.startQuiz(ctx, quiz.Full), nil
	}
	notices := v.loadResources(ctx)
	v.stage = StageResources
	return notices, nil
}

// StartDiagnostic opens the short quiz from the resources view.
func (v *View) StartDiagnostic(ctx context.Context) ([]Notice, error) {
	if v.stage != StageResources {
		return nil, ErrWrongStage
	}
	return v.startQuiz(ctx, quiz.Diagnostic), nil
}

// StartAssessment opens the full quiz from the resources view.
func (v *View) StartAssessment(ctx context.Context) ([]Notice, error) {
	if v.stage != StageResources {
		return nil, ErrWrongStage
	}
	return v.startQuiz(ctx, quiz.Full), nil
}

func (v *View) startQuiz(ctx context.Context, kind quiz.Kind) []Notice {
	node := v.rm.Nodes[v.selected]
	s := quiz.NewSession(v.deps.Quizzes, quiz.Params{
		MainTopic: v.rm.Topic,
		SubTopic:  node.Label,
		Kind:      kind,
		History:   append([]string(nil), v.asked[roadmap.Key(node.Label)]...),
	})
	s.Load(ctx)
	v.session = s
	v.stage = StageQuiz
	if s.Degraded() {
		return []Notice{warning("Couldn't load the quiz. This attempt won't be saved, use retake to try again.")}
	}
	return nil
}

// Quiz returns the open session, if any.
func (v *View) Quiz() (*quiz.Session, bool) {
	if v.stage != StageQuiz || v.session == nil {
		return nil, false
	}
	return v.session, true
}

// RetakeQuiz restarts a finished quiz with the same parameters.
func (v *View) RetakeQuiz(ctx context.Context) ([]Notice, error) {
	s, ok := v.Quiz()
	if !ok {
		return nil, ErrNoQuiz
	}
	if err := s.RetakeSame(ctx); err != nil {
		return nil, err
	}
	if s.Degraded() {
		return []Notice{warning("Still couldn't load the quiz.")}, nil
	}
	return nil, nil
}

// EscalateQuiz replaces a finished diagnostic with a full assessment.
func (v *View) EscalateQuiz(ctx context.Context) ([]Notice, error) {
	s, ok := v.Quiz()
	if !ok {
		return nil, ErrNoQuiz
	}
	if _, err := s.Escalate(); err != nil {
		return nil, err
	}
	v.remember(s)
	return v.startQuiz(ctx, quiz.Full), nil
}

// ExitQuiz abandons the open quiz without recording anything.
func (v *View) ExitQuiz() error {
	s, ok := v.Quiz()
	if !ok {
		return ErrNoQuiz
	}
	s.Exit()
	v.session = nil
	if v.hasFetch {
		v.stage = StageResources
	} else {
		v.stage = StageRoadmap
		v.selected = -1
	}
	return nil
}

// FinishQuiz submits a finished quiz. Real outcomes are persisted and, when
// passing, complete the node. Placeholder outcomes are never persisted. The
// resources view is refreshed afterwards.
func (v *View) FinishQuiz(ctx context.Context, feedback string) (quiz.Outcome, []Notice, error) {
	s, ok := v.Quiz()
	if !ok {
		return quiz.Outcome{}, nil, ErrNoQuiz
	}
	out, err := s.Submit(feedback)
	if err != nil {
		return quiz.Outcome{}, nil, err
	}
	v.remember(s)
	v.session = nil

	var notices []Notice
	label := out.Params.SubTopic
	switch {
	case out.Degraded:
		notices = append(notices, warning("This attempt used a placeholder question and was not saved."))
	default:
		notices = append(notices, v.persist(ctx, out)...)
		if out.Result.Passed {
			v.completed.Add(label)
			notices = append(notices, success(fmt.Sprintf("Passed %q with %d/%d.", label, out.Result.Score, out.Result.Total)))
		} else {
			notices = append(notices, info(fmt.Sprintf("Scored %d/%d, you need %d to pass. Keep studying and try again.",
				out.Result.Score, out.Result.Total, out.Result.PassMark)))
		}
	}

	notices = append(notices, v.loadResources(ctx)...)
	v.stage = StageResources
	return out, notices, nil
}

func (v *View) persist(ctx context.Context, out quiz.Outcome) []Notice {
	userID := ""
	if !v.learner.Guest {
		userID = v.learner.ID
	}
	rec := progress.FromOutcome(userID, v.rm.Topic, out, v.deps.now())

	if v.learner.Guest {
		if v.deps.Guests == nil {
			return nil
		}
		if err := v.deps.Guests.AppendProgress(ctx, v.learner.ID, rec); err != nil {
			slog.Error("saving guest progress failed", "guest_id", v.learner.ID, "error", err)
			return []Notice{failure("Couldn't save your score on this device.")}
		}
		return nil
	}

	if err := v.deps.Account.SubmitProgress(ctx, rec); err != nil {
		slog.Error("submitting progress failed", "user_id", v.learner.ID, "topic", rec.Topic, "node", rec.NodeLabel, "error", err)
		return []Notice{failure("Couldn't save your score. It counts for this session only.")}
	}
	return nil
}

func (v *View) remember(s *quiz.Session) {
	key := roadmap.Key(s.Params().SubTopic)
	v.asked[key] = append(v.asked[key], s.Asked()...)
}

func (v *View) loadResources(ctx context.Context) []Notice {
	node := v.rm.Nodes[v.selected]
	b, err := v.deps.Resources.Resources(ctx, gateway.ResourceQuery{
		Topic:     v.rm.Topic,
		NodeLabel: node.Label,
		Mode:      v.mode,
	})
	v.hasFetch = true
	if err != nil {
		slog.Warn("resource fetch failed", "topic", v.rm.Topic, "node", node.Label, "error", err)
		v.bundle = gateway.Bundle{}
		return []Notice{warning("Couldn't load study resources right now.")}
	}
	v.bundle = b
	return nil
}

// BackToRoadmap leaves the node view.
func (v *View) BackToRoadmap() error {
	if v.stage == StageQuiz {
		return ErrQuizInProgress
	}
	v.stage = StageRoadmap
	v.selected = -1
	return nil
}

// SaveRoadmap stores the roadmap in the learner's profile, or on the device
// for guests.
func (v *View) SaveRoadmap(ctx context.Context) Notice {
	if v.rm == nil {
		return failure(ErrNotOpen.Error())
	}
	if v.learner.Guest {
		if v.deps.Guests == nil {
			return failure("Saving is not available.")
		}
		if err := v.deps.Guests.SetRoadmap(ctx, v.learner.ID, v.rm); err != nil {
			slog.Error("saving guest roadmap failed", "guest_id", v.learner.ID, "error", err)
			return failure("Couldn't save the roadmap.")
		}
		return info("Saved on this device. Use /login to keep it in your profile.")
	}
	msg, err := v.deps.Account.SaveRoadmap(ctx, v.learner.ID, v.rm)
	if err != nil {
		slog.Error("saving roadmap failed", "user_id", v.learner.ID, "topic", v.rm.Topic, "error", err)
		return failure("Couldn't save the roadmap.")
	}
	if msg == "" {
		msg = "Roadmap saved."
	}
	return success(msg)
}

// SaveResource bookmarks the i-th resource of the current bundle.
func (v *View) SaveResource(ctx context.Context, i int) Notice {
	all := v.bundle.All()
	if v.stage != StageResources || i < 0 || i >= len(all) {
		return warning(ErrNoSuchResource.Error())
	}
	r := all[i]
	res := guest.SavedResource{
		Title:     r.Title,
		URL:       r.URL,
		Type:      r.Type,
		Topic:     v.rm.Topic,
		NodeLabel: v.rm.Nodes[v.selected].Label,
	}
	if v.learner.Guest {
		if v.deps.Guests == nil {
			return failure("Saving is not available.")
		}
		added, err := v.deps.Guests.AppendResource(ctx, v.learner.ID, res)
		if err != nil {
			slog.Error("saving guest resource failed", "guest_id", v.learner.ID, "error", err)
			return failure("Couldn't save the resource.")
		}
		if !added {
			return info("Already saved.")
		}
		return info("Saved on this device. Use /login to keep it in your profile.")
	}
	if err := v.deps.Account.SaveResource(ctx, v.learner.ID, res); err != nil {
		slog.Error("saving resource failed", "user_id", v.learner.ID, "url", res.URL, "error", err)
		return failure("Couldn't save the resource.")
	}
	return success("Resource saved.")
}

// Topic returns the display topic.
func (v *View) Topic() string { return v.topic }

// Mode returns the roadmap mode.
func (v *View) Mode() roadmap.Mode { return v.mode }

// Origin reports where the roadmap came from.
func (v *View) Origin() Origin { return v.origin }

// Roadmap returns the open roadmap, or nil before Open.
func (v *View) Roadmap() *roadmap.Roadmap { return v.rm }

// Stage returns the current stage.
func (v *View) Stage() Stage { return v.stage }

// Learner returns who the view belongs to.
func (v *View) Learner() Learner { return v.learner }

// Selected returns the selected node index.
func (v *View) Selected() (int, bool) {
	if v.selected < 0 {
		return 0, false
	}
	return v.selected, true
}

// Unlocked reports whether node k may be clicked.
func (v *View) Unlocked(k int) bool {
	return v.gate != nil && v.gate.Unlocked(k)
}

// Completed reports whether node k has been passed.
func (v *View) Completed(k int) bool {
	return v.gate != nil && v.gate.Completed(k)
}

// CompletedCount returns how many nodes are done.
func (v *View) CompletedCount() int {
	if v.rm == nil {
		return 0
	}
	n := 0
	for k := range v.rm.Nodes {
		if v.Completed(k) {
			n++
		}
	}
	return n
}

// NextOpen returns the first unlocked node not yet completed, or -1.
func (v *View) NextOpen() int {
	if v.gate == nil {
		return -1
	}
	return v.gate.NextOpen()
}

// Bundle returns the resources of the selected node.
func (v *View) Bundle() gateway.Bundle { return v.bundle }

// Rebind moves the view to another learner, e.g. after sign-in, and reloads
// progress for them.
func (v *View) Rebind(ctx context.Context, learner Learner) []Notice {
	v.learner = learner
	if v.rm == nil {
		return nil
	}
	return v.Reload(ctx)
}
