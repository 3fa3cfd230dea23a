package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/progress"
	"github.com/studymatehub/studymate-bot/internal/quiz"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// Roadmap fetches (or generates) the roadmap for a topic.
func (c *Client) Roadmap(ctx context.Context, topic string, mode roadmap.Mode) (*roadmap.Roadmap, error) {
	q := url.Values{"topic": {roadmap.DisplayTopic(topic)}}
	if mode != "" {
		q.Set("mode", string(mode))
	}

	var rm roadmap.Roadmap
	if err := c.get(ctx, "/api/roadmap", q, roadmapSchema, &rm); err != nil {
		return nil, fmt.Errorf("fetch roadmap: %w", err)
	}
	rm.Topic = topic
	rm.Mode = mode
	rm.Normalize()
	return &rm, nil
}

// Questions implements quiz.Source.
func (c *Client) Questions(ctx context.Context, req quiz.Request) ([]quiz.Question, error) {
	q := url.Values{
		"main_topic": {req.MainTopic},
		"sub_topic":  {req.SubTopic},
		"num":        {strconv.Itoa(req.Count)},
	}
	for _, h := range req.History {
		q.Add("history", h)
	}

	var qs []quiz.Question
	if err := c.get(ctx, "/api/quiz", q, quizSchema, &qs); err != nil {
		return nil, fmt.Errorf("fetch quiz: %w", err)
	}
	if req.Count > 0 && len(qs) > req.Count {
		qs = qs[:req.Count]
	}
	return qs, nil
}

// Resources fetches the study bundle for a node.
func (c *Client) Resources(ctx context.Context, rq ResourceQuery) (Bundle, error) {
	q := url.Values{
		"topic_key":    {roadmap.Key(rq.Topic)},
		"node_label":   {rq.NodeLabel},
		"search_query": {strings.TrimSpace(rq.Topic + " " + rq.NodeLabel)},
	}
	if rq.Mode != "" {
		q.Set("mode", string(rq.Mode))
	}

	var b Bundle
	if err := c.get(ctx, "/api/resources", q, resourcesSchema, &b); err != nil {
		return Bundle{}, fmt.Errorf("fetch resources: %w", err)
	}
	return b, nil
}

type progressPayload struct {
	ID            string    `json:"id,omitempty"`
	UserID        string    `json:"user_id"`
	Topic         string    `json:"topic"`
	NodeLabel     string    `json:"node_label"`
	Kind          string    `json:"kind"`
	Score         int       `json:"score"`
	QuestionCount int       `json:"question_count"`
	Feedback      string    `json:"feedback"`
	CreatedAt     time.Time `json:"created_at"`
}

// SubmitProgress appends a quiz attempt to the account's history.
func (c *Client) SubmitProgress(ctx context.Context, rec progress.Record) error {
	if rec.UserID == "" {
		return fmt.Errorf("submit progress: user id is required")
	}
	body := progressPayload{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Topic:         roadmap.DisplayTopic(rec.Topic),
		NodeLabel:     rec.NodeLabel,
		Kind:          rec.Kind,
		Score:         rec.QuizScore,
		QuestionCount: rec.QuestionCount,
		Feedback:      rec.FeedbackText,
		CreatedAt:     rec.CreatedAt,
	}
	if err := c.send(ctx, http.MethodPost, "/api/submit_progress", nil, body, messageSchema, nil); err != nil {
		return fmt.Errorf("submit progress: %w", err)
	}
	return nil
}

type messageReply struct {
	Message string `json:"message"`
}

// SaveRoadmap stores a roadmap in the learner's profile. The returned message
// distinguishes a new save from an existing one.
func (c *Client) SaveRoadmap(ctx context.Context, userID string, rm *roadmap.Roadmap) (string, error) {
	body := map[string]any{
		"user_id":    userID,
		"topic":      roadmap.DisplayTopic(rm.Topic),
		"mode":       rm.Mode,
		"graph_data": map[string]any{"nodes": rm.Nodes},
	}
	var reply messageReply
	if err := c.send(ctx, http.MethodPost, "/api/save_roadmap", nil, body, messageSchema, &reply); err != nil {
		return "", fmt.Errorf("save roadmap: %w", err)
	}
	return reply.Message, nil
}

// SaveResource bookmarks a resource for the learner.
func (c *Client) SaveResource(ctx context.Context, userID string, res guest.SavedResource) error {
	body := map[string]any{
		"user_id":       userID,
		"roadmap_topic": roadmap.DisplayTopic(res.Topic),
		"node_label":    res.NodeLabel,
		"resource_type": res.Type,
		"title":         res.Title,
		"url":           res.URL,
	}
	if err := c.send(ctx, http.MethodPost, "/api/save_resource", nil, body, messageSchema, nil); err != nil {
		return fmt.Errorf("save resource: %w", err)
	}
	return nil
}

// DeleteRoadmap removes a saved roadmap from the learner's profile.
func (c *Client) DeleteRoadmap(ctx context.Context, userID, topic string) error {
	q := url.Values{"user_id": {userID}, "topic": {roadmap.DisplayTopic(topic)}}
	if err := c.send(ctx, http.MethodDelete, "/api/delete_roadmap", q, nil, messageSchema, nil); err != nil {
		return fmt.Errorf("delete roadmap: %w", err)
	}
	return nil
}

// DeleteResource removes a bookmarked resource.
func (c *Client) DeleteResource(ctx context.Context, userID, resourceURL string) error {
	q := url.Values{"user_id": {userID}, "url": {resourceURL}}
	if err := c.send(ctx, http.MethodDelete, "/api/delete_resource", q, nil, messageSchema, nil); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}

// SyncGuestData implements guest.Syncer.
func (c *Client) SyncGuestData(ctx context.Context, accountID string, data guest.Data) error {
	body := map[string]any{
		"user_id":    accountID,
		"guest_data": data,
	}
	if err := c.send(ctx, http.MethodPost, "/api/sync_guest_data", nil, body, messageSchema, nil); err != nil {
		return fmt.Errorf("sync guest data: %w", err)
	}
	return nil
}
