// Package quiz drives a single quiz attempt from question fetch to completion.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Kind selects the question count of a session.
type Kind int

const (
	Diagnostic Kind = iota // short check for learners claiming prior knowledge
	Full                   // full assessment required after studying resources
)

func (k Kind) String() string {
	switch k {
	case Diagnostic:
		return "diagnostic"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// QuestionCount returns how many questions a session of this kind requests.
func (k Kind) QuestionCount() int {
	if k == Diagnostic {
		return 5
	}
	return 10
}

// ParseKind maps a stored kind name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "diagnostic":
		return Diagnostic, true
	case "full":
		return Full, true
	}
	return Full, false
}

// Phase is the current state of a session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhasePresenting
	PhaseAnswered
	PhaseFinished
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhasePresenting:
		return "presenting"
	case PhaseAnswered:
		return "answered"
	case PhaseFinished:
		return "finished"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrNotFinished   = errors.New("quiz is not finished")
	ErrNotDiagnostic = errors.New("only a diagnostic quiz can be escalated")
	ErrClosed        = errors.New("quiz session is closed")
)

// Question is one multiple-choice question. Question text may embed markup.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
}

// Source fetches questions for a session.
type Source interface {
	Questions(ctx context.Context, req Request) ([]Question, error)
}

// Request is what a Source is asked for.
type Request struct {
	MainTopic string
	SubTopic  string
	Count     int
	History   []string
}

// Params identify a session; retakes reuse them unchanged.
type Params struct {
	MainTopic string
	SubTopic  string
	Kind      Kind
	History   []string
}

// Result is the scored state of a finished session.
type Result struct {
	Score    int
	Total    int
	PassMark int
	Passed   bool
}

// Outcome is emitted by Submit and ends the session.
type Outcome struct {
	Params   Params
	Result   Result
	Feedback string
	Degraded bool // scored against the placeholder question
}

// Session is the client-owned state of one quiz attempt.
type Session struct {
	source Source
	params Params

	phase     Phase
	questions []Question
	index     int
	score     int
	selected  int // -1 when nothing is selected
	degraded  bool
}

// NewSession creates a session in the Loading phase. Call Load to fetch questions.
func NewSession(source Source, params Params) *Session {
	return &Session{
		source:   source,
		params:   params,
		phase:    PhaseLoading,
		selected: -1,
	}
}

// Load fetches questions. Failures never surface as errors: the session falls
// back to a single placeholder question so it can always be completed.
func (s *Session) Load(ctx context.Context) {
	s.reset()

	var (
		questions []Question
		err       error
	)
	if s.source == nil {
		err = errors.New("no question source configured")
	} else {
		questions, err = s.source.Questions(ctx, Request{
			MainTopic: s.params.MainTopic,
			SubTopic:  s.params.SubTopic,
			Count:     s.params.Kind.QuestionCount(),
			History:   s.params.History,
		})
	}

	questions = usable(questions)
	if err != nil || len(questions) == 0 {
		if err == nil {
			err = errors.New("no questions returned")
		}
		slog.Warn("quiz fetch failed, using placeholder",
			"main_topic", s.params.MainTopic,
			"sub_topic", s.params.SubTopic,
			"error", err,
		)
		questions = []Question{Placeholder(err)}
		s.degraded = true
	}

	s.questions = questions
	s.phase = PhasePresenting
}

// Placeholder is the trivially completable question shown when fetching fails.
func Placeholder(cause error) Question {
	text := "We couldn't load this quiz right now."
	if cause != nil {
		text = fmt.Sprintf("We couldn't load this quiz right now (%v).", cause)
	}
	return Question{
		Question:      text,
		Options:       []string{"OK"},
		CorrectAnswer: 0,
	}
}

// usable drops questions that could never be answered correctly.
func usable(qs []Question) []Question {
	out := qs[:0:0]
	for _, q := range qs {
		if len(q.Options) == 0 || q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func (s *Session) reset() {
	s.phase = PhaseLoading
	s.questions = nil
	s.index = 0
	s.score = 0
	s.selected = -1
	s.degraded = false
}

// SelectOption answers the current question. It is a no-op returning false
// unless the session is presenting an unanswered question and i is in range.
func (s *Session) SelectOption(i int) bool {
	if s.phase != PhasePresenting {
		return false
	}
	q := s.questions[s.index]
	if i < 0 || i >= len(q.Options) {
		return false
	}
	s.selected = i
	s.phase = PhaseAnswered
	if i == q.CorrectAnswer {
		s.score++
	}
	return true
}

// Advance moves past an answered question. From the last question it finishes
// the session. It returns false when the current question is not answered.
func (s *Session) Advance() bool {
	if s.phase != PhaseAnswered {
		return false
	}
	if s.index+1 < len(s.questions) {
		s.index++
		s.selected = -1
		s.phase = PhasePresenting
		return true
	}
	s.phase = PhaseFinished
	return true
}

// Result reports the score. Only meaningful once finished.
func (s *Session) Result() (Result, error) {
	if s.phase != PhaseFinished {
		return Result{}, ErrNotFinished
	}
	total := len(s.questions)
	return Result{
		Score:    s.score,
		Total:    total,
		PassMark: PassMark(total),
		Passed:   Passed(s.score, total),
	}, nil
}

// Submit emits the final score with optional feedback and closes the session.
func (s *Session) Submit(feedback string) (Outcome, error) {
	res, err := s.Result()
	if err != nil {
		return Outcome{}, err
	}
	s.phase = PhaseClosed
	return Outcome{
		Params:   s.params,
		Result:   res,
		Feedback: feedback,
		Degraded: s.degraded,
	}, nil
}

// RetakeSame reloads the session with identical parameters and zeroed counters.
func (s *Session) RetakeSame(ctx context.Context) error {
	if s.phase != PhaseFinished {
		return ErrNotFinished
	}
	s.Load(ctx)
	return nil
}

// Escalate closes a finished diagnostic session and returns the parameters
// the caller should use to start a full assessment.
func (s *Session) Escalate() (Params, error) {
	if s.phase != PhaseFinished {
		return Params{}, ErrNotFinished
	}
	if s.params.Kind != Diagnostic {
		return Params{}, ErrNotDiagnostic
	}
	s.phase = PhaseClosed
	next := s.params
	next.Kind = Full
	return next, nil
}

// Exit abandons the session without emitting a score.
func (s *Session) Exit() {
	s.phase = PhaseClosed
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Params returns the parameters the session was created with.
func (s *Session) Params() Params { return s.params }

// Degraded reports whether the session is running on the placeholder question.
func (s *Session) Degraded() bool { return s.degraded }

// Score returns the running score.
func (s *Session) Score() int { return s.score }

// Len returns the number of loaded questions.
func (s *Session) Len() int { return len(s.questions) }

// Index returns the zero-based index of the current question.
func (s *Session) Index() int { return s.index }

// Current returns the question being presented.
func (s *Session) Current() (Question, bool) {
	if s.phase != PhasePresenting && s.phase != PhaseAnswered {
		return Question{}, false
	}
	return s.questions[s.index], true
}

// Selected returns the chosen option for the current question, if any.
func (s *Session) Selected() (int, bool) {
	if s.selected < 0 {
		return 0, false
	}
	return s.selected, true
}

// Asked returns the question texts loaded into this session.
func (s *Session) Asked() []string {
	if s.degraded {
		return nil
	}
	out := make([]string, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, q.Question)
	}
	return out
}
