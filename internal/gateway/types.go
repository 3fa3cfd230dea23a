package gateway

import (
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// ID is a row id the gateway may send as a string or a number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	var n roadmap.NodeID
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	*id = ID(n)
	return nil
}

// Resource is one study link in a bundle.
type Resource struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Bundle is the set of resources curated for a node.
type Bundle struct {
	Videos      []Resource `json:"videos"`
	Articles    []Resource `json:"articles"`
	PDFs        []Resource `json:"pdfs"`
	TrustScore  *float64   `json:"trust_score,omitempty"`
	ReviewCount *int       `json:"review_count,omitempty"`
}

// Empty reports whether the bundle has no links.
func (b Bundle) Empty() bool {
	return len(b.Videos) == 0 && len(b.Articles) == 0 && len(b.PDFs) == 0
}

// All lists every link in display order (videos, articles, PDFs) with Type
// filled in.
func (b Bundle) All() []Resource {
	out := make([]Resource, 0, len(b.Videos)+len(b.Articles)+len(b.PDFs))
	add := func(rs []Resource, kind string) {
		for _, r := range rs {
			if r.Type == "" {
				r.Type = kind
			}
			out = append(out, r)
		}
	}
	add(b.Videos, "video")
	add(b.Articles, "article")
	add(b.PDFs, "pdf")
	return out
}

// ResourceQuery selects a bundle.
type ResourceQuery struct {
	Topic     string
	NodeLabel string
	Mode      roadmap.Mode
}

// ChatTurn is one message of a node tutor conversation.
type ChatTurn struct {
	Role string `json:"role"` // "user" or "bot"
	Text string `json:"text"`
}

// ChatRequest asks the node tutor a question.
type ChatRequest struct {
	Topic     string     `json:"topic"`
	NodeLabel string     `json:"node_label"`
	Message   string     `json:"message"`
	History   []ChatTurn `json:"history"`
}

// LeaderboardEntry is one learner's ranking.
type LeaderboardEntry struct {
	UserID   string  `json:"user_id"`
	FullName string  `json:"full_name"`
	Score    float64 `json:"score"`
}

// SquadDetails describes a squad.
type SquadDetails struct {
	Name       string  `json:"name"`
	TotalScore float64 `json:"total_score"`
	JoinCode   string  `json:"join_code"`
}

// SquadMember is one member of a squad.
type SquadMember struct {
	FullName string  `json:"full_name"`
	Score    float64 `json:"score"`
}

// Squad is the caller's squad; Details is nil when they are not in one.
type Squad struct {
	Details *SquadDetails `json:"details"`
	Members []SquadMember `json:"members"`
}

// SquadRanking is one row of the squad leaderboard.
type SquadRanking struct {
	ID         ID      `json:"id"`
	Name       string  `json:"name"`
	TotalScore float64 `json:"total_score"`
}

// Stats are the admin dashboard headline numbers.
type Stats struct {
	Users        int     `json:"users"`
	Roadmaps     int     `json:"roadmaps"`
	Satisfaction float64 `json:"satisfaction"`
}

// SavedRoadmapRow is one saved roadmap as listed for admins.
type SavedRoadmapRow struct {
	ID        ID     `json:"id"`
	Topic     string `json:"topic"`
	CreatedAt string `json:"created_at"`
}

// FeedbackRow is learner feedback left after a quiz.
type FeedbackRow struct {
	Topic          string   `json:"topic"`
	NodeLabel      string   `json:"node_label"`
	FeedbackText   string   `json:"feedback_text"`
	SentimentScore *float64 `json:"sentiment_score"`
}
