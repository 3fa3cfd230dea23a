package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studymatehub/studymate-bot/internal/learn"
	"github.com/studymatehub/studymate-bot/internal/quiz"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

const quizBusy = "Finish or /exit the current quiz first."

func inQuiz(s *session) bool {
	return s.view != nil && s.view.Stage() == learn.StageQuiz
}

func (e *Engine) openTopic(ctx context.Context, s *session, topic string, cram bool) string {
	if inQuiz(s) {
		return quizBusy
	}
	mode := roadmap.ModeStandard
	if cram {
		mode = roadmap.ModePanic
	}

	v := learn.NewView(e.deps, s.learner, topic, mode)
	notices := v.Open(ctx)
	s.view = v
	s.tutorNode, s.tutorLog = "", nil

	e.logEvent(s, EventRoadmapOpened, map[string]any{
		"topic":  v.Topic(),
		"mode":   string(mode),
		"origin": v.Origin().String(),
	})
	return join(renderNotices(notices), renderRoadmap(v))
}

func (e *Engine) openNode(s *session, k int) string {
	if err := s.view.ClickNode(k); err != nil {
		return sentence(err)
	}
	return renderStage(s.view)
}

func (e *Engine) openNext(ctx context.Context, s *session) string {
	if s.view == nil {
		return noRoadmap
	}
	if inQuiz(s) {
		return e.answerQuiz(ctx, s, "next")
	}
	k := s.view.NextOpen()
	if k < 0 {
		return "Every step is complete. Nice work!"
	}
	return e.openNode(s, k)
}

func (e *Engine) back(s *session) string {
	if s.view == nil {
		return noRoadmap
	}
	if err := s.view.BackToRoadmap(); err != nil {
		return sentence(err)
	}
	return renderRoadmap(s.view)
}

func (e *Engine) notes(s *session) string {
	if s.view == nil {
		return noRoadmap
	}
	if e.catalog != nil {
		if notes, ok := e.catalog.Notes(s.view.Topic()); ok {
			return notes
		}
	}
	return fmt.Sprintf("No curated notes for %s yet.", s.view.Topic())
}

func (e *Engine) answerKnowledgeCheck(ctx context.Context, s *session, knowsIt bool) string {
	notices, err := s.view.AnswerKnowledgeCheck(ctx, knowsIt)
	if err != nil {
		return sentence(err)
	}
	return join(renderNotices(notices), renderStage(s.view))
}

func (e *Engine) startQuiz(ctx context.Context, s *session, full bool) string {
	if s.view == nil {
		return noRoadmap
	}
	if inQuiz(s) {
		return quizBusy
	}

	var (
		notices []learn.Notice
		err     error
	)
	if full {
		notices, err = s.view.StartAssessment(ctx)
	} else {
		notices, err = s.view.StartDiagnostic(ctx)
	}
	if errors.Is(err, learn.ErrWrongStage) {
		return "Open a step and look at its resources first."
	}
	if err != nil {
		return sentence(err)
	}
	return join(renderNotices(notices), renderStage(s.view))
}

// answerQuiz handles plain replies while a quiz is open: an option pick, or
// "next" after answering.
func (e *Engine) answerQuiz(_ context.Context, s *session, text string) string {
	q, ok := s.view.Quiz()
	if !ok {
		return sentence(learn.ErrNoQuiz)
	}

	switch q.Phase() {
	case quiz.PhasePresenting:
		cur, _ := q.Current()
		i, ok := parseOption(text, len(cur.Options))
		if !ok {
			return fmt.Sprintf("Reply with an option number between 1 and %d, or /exit to leave the quiz.", len(cur.Options))
		}
		q.SelectOption(i)
		return renderAnswer(q)
	case quiz.PhaseAnswered:
		if !isNext(text) {
			return "Send next to continue."
		}
		q.Advance()
		return renderQuiz(q)
	default:
		return renderQuiz(q)
	}
}

func (e *Engine) submitQuiz(ctx context.Context, s *session, feedback string) string {
	if s.view == nil {
		return noRoadmap
	}
	out, notices, err := s.view.FinishQuiz(ctx, feedback)
	switch {
	case errors.Is(err, quiz.ErrNotFinished):
		return "Answer every question before submitting."
	case err != nil:
		return sentence(err)
	}

	if !out.Degraded {
		e.logEvent(s, EventQuizSubmitted, map[string]any{
			"topic":    out.Params.MainTopic,
			"node":     out.Params.SubTopic,
			"kind":     out.Params.Kind.String(),
			"score":    out.Result.Score,
			"total":    out.Result.Total,
			"passed":   out.Result.Passed,
			"feedback": feedback != "",
		})
	}

	var next string
	if out.Result.Passed && !out.Degraded {
		if k := s.view.NextOpen(); k >= 0 {
			next = fmt.Sprintf("Step %d is unlocked. Send %d to open it.", k+1, k+1)
		} else {
			next = "You've completed the whole roadmap!"
		}
	}
	return join(renderNotices(notices), next, renderStage(s.view))
}

func (e *Engine) retakeQuiz(ctx context.Context, s *session) string {
	if s.view == nil {
		return noRoadmap
	}
	notices, err := s.view.RetakeQuiz(ctx)
	switch {
	case errors.Is(err, quiz.ErrNotFinished):
		return "Finish this quiz before retaking it."
	case err != nil:
		return sentence(err)
	}
	return join(renderNotices(notices), renderStage(s.view))
}

func (e *Engine) escalateQuiz(ctx context.Context, s *session) string {
	if s.view == nil {
		return noRoadmap
	}
	notices, err := s.view.EscalateQuiz(ctx)
	switch {
	case errors.Is(err, quiz.ErrNotFinished):
		return "Finish the diagnostic first."
	case errors.Is(err, quiz.ErrNotDiagnostic):
		return "Only a diagnostic can be escalated. Use /retake to try again."
	case err != nil:
		return sentence(err)
	}
	return join(renderNotices(notices), renderStage(s.view))
}

func (e *Engine) requestExit(s *session) string {
	if !inQuiz(s) {
		return sentence(learn.ErrNoQuiz)
	}
	s.confirmExit = true
	return "Leave this quiz? Nothing will be recorded. Reply yes to leave or no to keep going."
}

// resolveExit consumes the reply to an exit confirmation. Anything but yes
// keeps the quiz open.
func (e *Engine) resolveExit(s *session, text string) string {
	s.confirmExit = false
	q, ok := s.view.Quiz()
	if !ok {
		return sentence(learn.ErrNoQuiz)
	}
	if yes, ok := parseYesNo(text); !ok || !yes {
		return join("Carrying on.", renderQuiz(q))
	}
	if err := s.view.ExitQuiz(); err != nil {
		slog.Warn("exit quiz failed", "user_id", s.learner.ID, "error", err)
		return sentence(err)
	}
	return join("Quiz closed.", renderStage(s.view))
}

func (e *Engine) saveResource(ctx context.Context, s *session, args []string) string {
	if s.view == nil {
		return noRoadmap
	}
	n, ok := firstNumber(args)
	if !ok {
		return "Usage: /save_resource <resource number>"
	}
	return renderNotices([]learn.Notice{s.view.SaveResource(ctx, n-1)})
}
