package agent

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/studymatehub/studymate-bot/internal/learn"
	"github.com/studymatehub/studymate-bot/internal/quiz"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// join glues non-empty reply parts with a blank line.
func join(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// sentence turns an error into reply text.
func sentence(err error) string {
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:] + "."
}

func renderNotices(notices []learn.Notice) string {
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		switch n.Level {
		case learn.LevelWarning:
			lines = append(lines, "Note: "+n.Text)
		case learn.LevelError:
			lines = append(lines, "Error: "+n.Text)
		default:
			lines = append(lines, n.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// renderStage shows whatever the learner is looking at.
func renderStage(v *learn.View) string {
	switch v.Stage() {
	case learn.StageKnowledgeCheck:
		return renderKnowledgeCheck(v)
	case learn.StageResources:
		return renderBundle(v)
	case learn.StageQuiz:
		if q, ok := v.Quiz(); ok {
			return renderQuiz(q)
		}
	}
	return renderRoadmap(v)
}

func renderRoadmap(v *learn.View) string {
	rm := v.Roadmap()
	var b strings.Builder
	b.WriteString(rm.Topic)
	if v.Mode() == roadmap.ModePanic {
		b.WriteString(" (cram mode)")
	}
	b.WriteString("\n")
	for k, node := range rm.Nodes {
		fmt.Fprintf(&b, "%d. %s", k+1, node.Label)
		switch {
		case v.Completed(k):
			b.WriteString(" - done")
		case !v.Unlocked(k):
			b.WriteString(" - locked")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nCompleted %d of %d. Send a step number to open it.", v.CompletedCount(), len(rm.Nodes))
	return b.String()
}

func renderProgress(v *learn.View) string {
	rm := v.Roadmap()
	done := v.CompletedCount()
	line := fmt.Sprintf("%s: completed %d of %d steps.", rm.Topic, done, len(rm.Nodes))
	if k := v.NextOpen(); k >= 0 {
		return join(line, fmt.Sprintf("Next up: %d. %s", k+1, rm.Nodes[k].Label))
	}
	return join(line, "Every step is complete.")
}

func selectedLabel(v *learn.View) (int, string) {
	k, ok := v.Selected()
	if !ok {
		return -1, ""
	}
	return k, v.Roadmap().Nodes[k].Label
}

func renderKnowledgeCheck(v *learn.View) string {
	k, label := selectedLabel(v)
	return fmt.Sprintf("Step %d: %s\n\nDo you already know this? Reply yes to go straight to the assessment, or no to study it first.", k+1, label)
}

func renderBundle(v *learn.View) string {
	k, label := selectedLabel(v)
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d: %s\n", k+1, label)

	bundle := v.Bundle()
	all := bundle.All()
	if len(all) == 0 {
		b.WriteString("\nNo study resources found for this step.\n")
	} else {
		b.WriteString("\nResources:\n")
		for i, r := range all {
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, r.Type, r.Title)
			if r.Channel != "" {
				fmt.Fprintf(&b, " (%s)", r.Channel)
			}
			fmt.Fprintf(&b, "\n   %s\n", r.URL)
		}
	}
	if bundle.TrustScore != nil {
		reviews := 0
		if bundle.ReviewCount != nil {
			reviews = *bundle.ReviewCount
		}
		fmt.Fprintf(&b, "\nRated %.1f from %d reviews.\n", *bundle.TrustScore, reviews)
	}
	b.WriteString("\nReady? /diagnostic for a quick check, /assess for the full assessment.")
	if len(all) > 0 {
		b.WriteString(" /save_resource <n> bookmarks a link.")
	}
	return b.String()
}

// renderQuiz shows the session according to its phase.
func renderQuiz(q *quiz.Session) string {
	switch q.Phase() {
	case quiz.PhasePresenting:
		return renderQuestion(q)
	case quiz.PhaseAnswered:
		return renderAnswer(q)
	case quiz.PhaseFinished:
		return renderResult(q)
	default:
		return "The quiz is closed."
	}
}

func renderQuestion(q *quiz.Session) string {
	cur, ok := q.Current()
	if !ok {
		return renderQuiz(q)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d of %d\n%s\n\n", q.Index()+1, q.Len(), cur.Question)
	for i, opt := range cur.Options {
		fmt.Fprintf(&b, "%d) %s\n", i+1, opt)
	}
	b.WriteString("\nReply with the option number.")
	return b.String()
}

func renderAnswer(q *quiz.Session) string {
	cur, _ := q.Current()
	picked, _ := q.Selected()

	verdict := "Correct!"
	if picked != cur.CorrectAnswer {
		verdict = fmt.Sprintf("Not quite. The answer was %d) %s.", cur.CorrectAnswer+1, cur.Options[cur.CorrectAnswer])
	}
	if q.Index()+1 == q.Len() {
		return verdict + "\n\nSend next to see your score."
	}
	return verdict + "\n\nSend next for the next question."
}

func renderResult(q *quiz.Session) string {
	res, err := q.Result()
	if err != nil {
		return sentence(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Quiz finished: %d/%d (pass mark %d). ", res.Score, res.Total, res.PassMark)
	if res.Passed {
		b.WriteString("You passed!")
	} else {
		b.WriteString("Not quite there yet.")
	}
	if q.Degraded() {
		b.WriteString("\nThis quiz couldn't be loaded, so the result won't be saved.")
	}
	b.WriteString("\n\n/submit records the result (add feedback after the command if you like). /retake tries again.")
	if q.Params().Kind == quiz.Diagnostic {
		b.WriteString(" /escalate switches to the full assessment.")
	}
	return b.String()
}

func parseYesNo(text string) (bool, bool) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!")) {
	case "yes", "y", "yeah", "yep", "sure", "ok", "i do":
		return true, true
	case "no", "n", "nope", "not yet", "i don't", "i dont":
		return false, true
	}
	return false, false
}

func parseNumber(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(text), "."))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func firstNumber(args []string) (int, bool) {
	if len(args) == 0 {
		return 0, false
	}
	return parseNumber(args[0])
}

// parseOption accepts "2" or "b" for the second of n options and returns the
// zero-based index.
func parseOption(text string, n int) (int, bool) {
	text = strings.ToLower(strings.Trim(strings.TrimSpace(text), ").:"))
	if num, ok := parseNumber(text); ok {
		if num > n {
			return 0, false
		}
		return num - 1, true
	}
	if len(text) == 1 && text[0] >= 'a' && text[0] <= 'z' {
		i := int(text[0] - 'a')
		if i < n {
			return i, true
		}
	}
	return 0, false
}

func isNext(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "next", "n", "continue", "/next":
		return true
	}
	return false
}
