package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ChatNode asks the node tutor a question and returns its reply.
func (c *Client) ChatNode(ctx context.Context, req ChatRequest) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", fmt.Errorf("chat node: message is required")
	}
	if req.History == nil {
		req.History = []ChatTurn{}
	}
	var reply struct {
		Reply string `json:"reply"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/chat_node", nil, req, chatSchema, &reply); err != nil {
		return "", fmt.Errorf("chat node: %w", err)
	}
	return reply.Reply, nil
}

// Leaderboard returns the global learner ranking.
func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	if err := c.get(ctx, "/api/leaderboard", nil, leaderboardSchema, &out); err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	return out, nil
}

// MySquad returns the learner's squad.
func (c *Client) MySquad(ctx context.Context, userID string) (Squad, error) {
	var out Squad
	if err := c.get(ctx, "/api/squad/my_squad", url.Values{"user_id": {userID}}, mySquadSchema, &out); err != nil {
		return Squad{}, fmt.Errorf("fetch squad: %w", err)
	}
	return out, nil
}

// SquadRankings returns the squad leaderboard.
func (c *Client) SquadRankings(ctx context.Context) ([]SquadRanking, error) {
	var out []SquadRanking
	if err := c.get(ctx, "/api/squad/leaderboard", nil, squadRankingSchema, &out); err != nil {
		return nil, fmt.Errorf("fetch squad leaderboard: %w", err)
	}
	return out, nil
}

// CreateSquad creates a squad with the learner as its first member.
func (c *Client) CreateSquad(ctx context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("create squad: name is required")
	}
	body := map[string]string{"user_id": userID, "name": name}
	if err := c.send(ctx, http.MethodPost, "/api/squad/create", nil, body, messageSchema, nil); err != nil {
		return fmt.Errorf("create squad: %w", err)
	}
	return nil
}

// JoinSquad joins the squad with the given join code.
func (c *Client) JoinSquad(ctx context.Context, userID, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("join squad: code is required")
	}
	body := map[string]string{"user_id": userID, "code": code}
	if err := c.send(ctx, http.MethodPost, "/api/squad/join", nil, body, messageSchema, nil); err != nil {
		return fmt.Errorf("join squad: %w", err)
	}
	return nil
}

// AdminStats returns the dashboard headline numbers.
func (c *Client) AdminStats(ctx context.Context) (Stats, error) {
	var out Stats
	if err := c.get(ctx, "/api/admin/stats", nil, adminStatsSchema, &out); err != nil {
		return Stats{}, fmt.Errorf("fetch admin stats: %w", err)
	}
	return out, nil
}

// AdminRoadmaps lists every saved roadmap.
func (c *Client) AdminRoadmaps(ctx context.Context) ([]SavedRoadmapRow, error) {
	var out []SavedRoadmapRow
	if err := c.get(ctx, "/api/admin/roadmaps", nil, adminRoadmapsSchema, &out); err != nil {
		return nil, fmt.Errorf("fetch admin roadmaps: %w", err)
	}
	return out, nil
}

// AdminFeedback lists learner feedback with its sentiment.
func (c *Client) AdminFeedback(ctx context.Context) ([]FeedbackRow, error) {
	var out []FeedbackRow
	if err := c.get(ctx, "/api/admin/feedback", nil, adminFeedbackSchema, &out); err != nil {
		return nil, fmt.Errorf("fetch admin feedback: %w", err)
	}
	return out, nil
}

// AdminDeleteRoadmap removes every saved copy of a topic.
func (c *Client) AdminDeleteRoadmap(ctx context.Context, topic string) error {
	q := url.Values{"topic": {topic}}
	if err := c.send(ctx, http.MethodDelete, "/api/admin/delete_roadmap", q, nil, messageSchema, nil); err != nil {
		return fmt.Errorf("admin delete roadmap: %w", err)
	}
	return nil
}
