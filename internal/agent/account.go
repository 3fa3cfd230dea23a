package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/studymatehub/studymate-bot/internal/gateway"
	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/learn"
	"github.com/studymatehub/studymate-bot/internal/profile"
)

const (
	needsAccount       = "Sign in with /login to use squads."
	mergeRetryInterval = time.Minute
)

func (e *Engine) login(ctx context.Context, s *session, args []string) string {
	if e.verifier == nil {
		return "Sign-in isn't enabled on this server."
	}
	if len(args) == 0 {
		return "Send /login <access token>. You can copy the token from your StudyMate profile page."
	}
	if inQuiz(s) {
		return quizBusy
	}

	id, err := e.verifier.Verify(args[0])
	if err != nil {
		slog.Info("login rejected", "channel", s.channel, "external_id", s.externalID, "error", err)
		return "That token is invalid or has expired. Copy a fresh one and try again."
	}
	if !s.learner.Guest && s.learner.ID == id.UserID {
		if s.learner.PendingGuest == "" {
			return "You're already signed in."
		}
		merged, ok := e.mergeGuest(ctx, s)
		if ok && s.view != nil {
			merged = join(merged, renderNotices(s.view.Rebind(ctx, s.learner)), renderRoadmap(s.view))
		}
		return join("You're already signed in.", merged)
	}

	if err := e.accounts.Link(AccountLink{
		Channel:    s.channel,
		ExternalID: s.externalID,
		AccountID:  id.UserID,
	}); err != nil {
		slog.Error("failed to link account", "channel", s.channel, "external_id", s.externalID, "error", err)
		return genericError
	}
	s.learner = learn.Learner{ID: id.UserID, PendingGuest: s.guestID}
	e.logEvent(s, EventAccountLinked, map[string]any{"channel": s.channel})

	name := id.FullName
	if name == "" {
		name = id.Email
	}
	greeting := "Signed in."
	if name != "" {
		greeting = fmt.Sprintf("Signed in as %s.", name)
	}

	merged, _ := e.mergeGuest(ctx, s)

	var reloaded string
	if s.view != nil {
		reloaded = join(renderNotices(s.view.Rebind(ctx, s.learner)), renderRoadmap(s.view))
	}
	return join(greeting, merged, reloaded)
}

// mergeGuest moves the chat user's guest data into their account and reports
// whether it is done. Until then the learner keeps PendingGuest, so device
// attempts still count, and the merge is retried later.
func (e *Engine) mergeGuest(ctx context.Context, s *session) (string, bool) {
	if e.guests == nil || e.syncer == nil {
		s.learner.PendingGuest = ""
		return "", true
	}
	res, err := e.guests.MergeInto(ctx, s.guestID, s.learner.ID, e.syncer)
	if err != nil || res.Skipped {
		s.mergeRetryAt = time.Now().Add(mergeRetryInterval)
		if err != nil {
			slog.Error("guest merge failed", "guest_id", s.guestID, "account_id", s.learner.ID, "error", err)
		}
		return "Note: Couldn't move your guest progress yet. It still counts here, and I'll keep trying. Send /login again to retry now.", false
	}
	s.learner.PendingGuest = ""
	if res.Records == 0 && res.Resources == 0 && !res.Roadmap {
		return "", true
	}

	e.logEvent(s, EventGuestMerged, map[string]any{
		"records":   res.Records,
		"resources": res.Resources,
		"roadmap":   res.Roadmap,
	})
	msg := fmt.Sprintf("Moved %d quiz results and %d saved resources to your profile.", res.Records, res.Resources)
	if res.Roadmap {
		msg += " Your saved roadmap came along too."
	}
	return msg, true
}

// resumeMerge retries a pending merge in the background of a normal message.
// Failures stay quiet until the learner asks with /login.
func (e *Engine) resumeMerge(ctx context.Context, s *session) string {
	if s.learner.Guest || s.learner.PendingGuest == "" || inQuiz(s) || time.Now().Before(s.mergeRetryAt) {
		return ""
	}
	merged, ok := e.mergeGuest(ctx, s)
	if !ok || merged == "" {
		return ""
	}
	if s.view != nil {
		merged = join(merged, renderNotices(s.view.Rebind(ctx, s.learner)))
	}
	return merged
}

func (e *Engine) logout(ctx context.Context, s *session) string {
	if s.learner.Guest {
		return "You're not signed in."
	}
	if inQuiz(s) {
		return quizBusy
	}
	if err := e.accounts.Unlink(s.channel, s.externalID); err != nil {
		slog.Error("failed to unlink account", "channel", s.channel, "external_id", s.externalID, "error", err)
		return genericError
	}
	s.learner = learn.Learner{ID: s.guestID, Guest: true}

	var reloaded string
	if s.view != nil {
		reloaded = renderNotices(s.view.Rebind(ctx, s.learner))
	}
	return join("Signed out. New progress stays on this device until you sign in again.", reloaded)
}

func (e *Engine) saved(ctx context.Context, s *session) string {
	if s.learner.Guest {
		if e.guests == nil {
			return "Saving isn't available."
		}
		d, err := e.guests.Load(ctx, s.learner.ID)
		if err != nil {
			slog.Error("failed to load guest data", "guest_id", s.learner.ID, "error", err)
			return genericError
		}
		var roadmaps []profile.SavedRoadmap
		if d.Roadmap != nil {
			roadmaps = append(roadmaps, profile.SavedRoadmap{Topic: d.Roadmap.Topic, Mode: d.Roadmap.Mode, Nodes: d.Roadmap.Nodes})
		}
		out := renderSaved(roadmaps, d.Resources)
		if d.Roadmap == nil && len(d.Resources) == 0 {
			return out
		}
		return join(out, "Kept on this device. /login to move it into your profile.")
	}

	if e.profiles == nil {
		return "Your profile isn't available right now."
	}
	roadmaps, err := e.profiles.Roadmaps(ctx, s.learner.ID)
	if err != nil {
		slog.Error("failed to load saved roadmaps", "user_id", s.learner.ID, "error", err)
		return genericError
	}
	resources, err := e.profiles.Resources(ctx, s.learner.ID)
	if err != nil {
		slog.Error("failed to load saved resources", "user_id", s.learner.ID, "error", err)
		return genericError
	}
	return renderSaved(roadmaps, resources)
}

func renderSaved(roadmaps []profile.SavedRoadmap, resources []guest.SavedResource) string {
	if len(roadmaps) == 0 && len(resources) == 0 {
		return "Nothing saved yet. Use /save on a roadmap or /save_resource <n> on a resource."
	}
	var b strings.Builder
	if len(roadmaps) > 0 {
		b.WriteString("Saved roadmaps:\n")
		for _, rm := range roadmaps {
			fmt.Fprintf(&b, "- %s (%d steps)\n", rm.Topic, len(rm.Nodes))
		}
	}
	if len(resources) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Saved resources:\n")
		for i, r := range resources {
			fmt.Fprintf(&b, "%d. %s (%s, %s)\n   %s\n", i+1, r.Title, r.Topic, r.NodeLabel, r.URL)
		}
	}
	return strings.TrimSpace(b.String())
}

func (e *Engine) deleteRoadmap(ctx context.Context, s *session, topic string) string {
	if topic == "" && s.view != nil {
		topic = s.view.Topic()
	}
	if topic == "" {
		return "Usage: /delete_roadmap <topic>"
	}

	if s.learner.Guest {
		if e.guests == nil {
			return "Saving isn't available."
		}
		removed, err := e.guests.ClearRoadmap(ctx, s.learner.ID, topic)
		if err != nil {
			slog.Error("failed to clear guest roadmap", "guest_id", s.learner.ID, "error", err)
			return genericError
		}
		if !removed {
			return fmt.Sprintf("No saved roadmap for %s.", topic)
		}
		return fmt.Sprintf("Deleted the saved roadmap for %s.", topic)
	}

	if e.remover == nil {
		return "Your profile isn't available right now."
	}
	if err := e.remover.DeleteRoadmap(ctx, s.learner.ID, topic); err != nil {
		slog.Error("failed to delete roadmap", "user_id", s.learner.ID, "topic", topic, "error", err)
		return "Couldn't delete the roadmap. " + apiReason(err)
	}
	return fmt.Sprintf("Deleted the saved roadmap for %s.", topic)
}

// deleteResource removes the nth bookmark as numbered by /saved.
func (e *Engine) deleteResource(ctx context.Context, s *session, arg string) string {
	const usage = "Usage: /delete_resource <n>, numbered as in /saved"
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return usage
	}

	var resources []guest.SavedResource
	switch {
	case s.learner.Guest && e.guests != nil:
		d, err := e.guests.Load(ctx, s.learner.ID)
		if err != nil {
			slog.Error("failed to load guest data", "guest_id", s.learner.ID, "error", err)
			return genericError
		}
		resources = d.Resources
	case s.learner.Guest:
		return "Saving isn't available."
	case e.profiles == nil || e.remover == nil:
		return "Your profile isn't available right now."
	default:
		resources, err = e.profiles.Resources(ctx, s.learner.ID)
		if err != nil {
			slog.Error("failed to load saved resources", "user_id", s.learner.ID, "error", err)
			return genericError
		}
	}
	if n > len(resources) {
		return fmt.Sprintf("There is no saved resource %d. /saved lists them.", n)
	}
	target := resources[n-1]

	if s.learner.Guest {
		if _, err := e.guests.RemoveResource(ctx, s.learner.ID, target.URL); err != nil {
			slog.Error("failed to remove guest resource", "guest_id", s.learner.ID, "error", err)
			return genericError
		}
	} else if err := e.remover.DeleteResource(ctx, s.learner.ID, target.URL); err != nil {
		slog.Error("failed to delete resource", "user_id", s.learner.ID, "url", target.URL, "error", err)
		return "Couldn't delete the resource. " + apiReason(err)
	}
	return fmt.Sprintf("Removed %s from your saved resources.", target.Title)
}

// apiReason surfaces the gateway's own message when it sent one.
func apiReason(err error) string {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Please try again later."
}

func (e *Engine) ask(ctx context.Context, s *session, question string) string {
	if e.tutor == nil {
		return "The tutor isn't available right now."
	}
	if question == "" {
		return "Usage: /ask <question about the open step>"
	}
	if s.view == nil {
		return noRoadmap
	}
	if inQuiz(s) {
		return quizBusy
	}
	_, label := selectedLabel(s.view)
	if label == "" {
		return "Open a step first, then ask about it."
	}
	if s.tutorNode != label {
		s.tutorNode, s.tutorLog = label, nil
	}

	reply, err := e.tutor.ChatNode(ctx, gateway.ChatRequest{
		Topic:     s.view.Topic(),
		NodeLabel: label,
		Message:   question,
		History:   append([]gateway.ChatTurn(nil), s.tutorLog...),
	})
	if err != nil {
		slog.Warn("tutor chat failed", "topic", s.view.Topic(), "node", label, "error", err)
		return "The tutor couldn't answer right now. Try again in a moment."
	}

	s.tutorLog = append(s.tutorLog,
		gateway.ChatTurn{Role: "user", Text: question},
		gateway.ChatTurn{Role: "bot", Text: reply},
	)
	if over := len(s.tutorLog) - maxTutorTurns; over > 0 {
		s.tutorLog = s.tutorLog[over:]
	}
	return reply
}

func (e *Engine) leaderboard(ctx context.Context) string {
	if e.community == nil {
		return "The leaderboard isn't available right now."
	}
	entries, err := e.community.Leaderboard(ctx)
	if err != nil {
		slog.Warn("leaderboard fetch failed", "error", err)
		return "Couldn't load the leaderboard. Try again later."
	}
	if len(entries) == 0 {
		return "No scores yet. Pass a quiz to get on the board!"
	}

	var b strings.Builder
	b.WriteString("Leaderboard\n")
	for i, entry := range entries {
		if i == 10 {
			break
		}
		name := entry.FullName
		if name == "" {
			name = "Anonymous"
		}
		fmt.Fprintf(&b, "%d. %s - %g pts\n", i+1, name, entry.Score)
	}
	return strings.TrimSpace(b.String())
}

func (e *Engine) mySquad(ctx context.Context, s *session) string {
	if e.community == nil {
		return "Squads aren't available right now."
	}
	if s.learner.Guest {
		return needsAccount
	}

	squad, err := e.community.MySquad(ctx, s.learner.ID)
	if err != nil {
		slog.Warn("squad fetch failed", "user_id", s.learner.ID, "error", err)
		return "Couldn't load your squad. Try again later."
	}

	var mine string
	if squad.Details == nil {
		mine = "You're not in a squad yet. /squad_create <name> starts one, /squad_join <code> joins a friend's."
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "Squad: %s (join code %s)\nTotal score: %g\n", squad.Details.Name, squad.Details.JoinCode, squad.Details.TotalScore)
		for _, m := range squad.Members {
			fmt.Fprintf(&b, "- %s: %g\n", m.FullName, m.Score)
		}
		mine = b.String()
	}

	rankings, err := e.community.SquadRankings(ctx)
	if err != nil {
		slog.Warn("squad rankings fetch failed", "error", err)
		return mine
	}
	if len(rankings) == 0 {
		return mine
	}
	var b strings.Builder
	b.WriteString("Top squads\n")
	for i, r := range rankings {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "%d. %s - %g\n", i+1, r.Name, r.TotalScore)
	}
	return join(mine, b.String())
}

func (e *Engine) createSquad(ctx context.Context, s *session, name string) string {
	if e.community == nil {
		return "Squads aren't available right now."
	}
	if s.learner.Guest {
		return needsAccount
	}
	if name == "" {
		return "Usage: /squad_create <name>"
	}
	if err := e.community.CreateSquad(ctx, s.learner.ID, name); err != nil {
		slog.Warn("create squad failed", "user_id", s.learner.ID, "error", err)
		return "Couldn't create the squad. " + apiReason(err)
	}
	return fmt.Sprintf("Squad %s created. Send /squad to see its join code.", name)
}

func (e *Engine) joinSquad(ctx context.Context, s *session, code string) string {
	if e.community == nil {
		return "Squads aren't available right now."
	}
	if s.learner.Guest {
		return needsAccount
	}
	if code == "" {
		return "Usage: /squad_join <code>"
	}
	if err := e.community.JoinSquad(ctx, s.learner.ID, code); err != nil {
		slog.Warn("join squad failed", "user_id", s.learner.ID, "error", err)
		return "Couldn't join that squad. " + apiReason(err)
	}
	return "You joined the squad. Send /squad to see your teammates."
}
