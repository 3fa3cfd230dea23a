// Package admin serves the operator dashboard API: sign-in, backend stats,
// saved roadmaps, learner feedback and a downloadable XLSX report.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/studymatehub/studymate-bot/internal/auth"
	"github.com/studymatehub/studymate-bot/internal/gateway"
)

const maxLoginBody = 4 << 10

// Backend is the part of the gateway client the dashboard reads from.
type Backend interface {
	AdminStats(ctx context.Context) (gateway.Stats, error)
	AdminRoadmaps(ctx context.Context) ([]gateway.SavedRoadmapRow, error)
	AdminFeedback(ctx context.Context) ([]gateway.FeedbackRow, error)
	AdminDeleteRoadmap(ctx context.Context, topic string) error
}

// Handler mounts the admin routes.
type Handler struct {
	auth    *auth.Admin
	backend Backend
	now     func() time.Time
}

// NewHandler creates the admin API.
func NewHandler(a *auth.Admin, backend Backend) *Handler {
	return &Handler{auth: a, backend: backend, now: time.Now}
}

// Register adds the admin routes to mux. Everything except login requires a
// bearer token from POST /admin/login.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/login", h.handleLogin)
	mux.Handle("GET /admin/stats", h.auth.Middleware(http.HandlerFunc(h.handleStats)))
	mux.Handle("GET /admin/roadmaps", h.auth.Middleware(http.HandlerFunc(h.handleRoadmaps)))
	mux.Handle("DELETE /admin/roadmaps", h.auth.Middleware(http.HandlerFunc(h.handleDeleteRoadmap)))
	mux.Handle("GET /admin/feedback", h.auth.Middleware(http.HandlerFunc(h.handleFeedback)))
	mux.Handle("GET /admin/report.xlsx", h.auth.Middleware(http.HandlerFunc(h.handleReport)))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, expires, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Warn("admin login rejected", "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		slog.Error("admin login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	slog.Info("admin signed in")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.backend.AdminStats(r.Context())
	if err != nil {
		writeUpstreamError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRoadmaps(w http.ResponseWriter, r *http.Request) {
	rows, err := h.backend.AdminRoadmaps(r.Context())
	if err != nil {
		writeUpstreamError(w, "roadmaps", err)
		return
	}
	if rows == nil {
		rows = []gateway.SavedRoadmapRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	rows, err := h.backend.AdminFeedback(r.Context())
	if err != nil {
		writeUpstreamError(w, "feedback", err)
		return
	}
	if rows == nil {
		rows = []gateway.FeedbackRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleDeleteRoadmap(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if err := h.backend.AdminDeleteRoadmap(r.Context(), topic); err != nil {
		writeUpstreamError(w, "delete roadmap", err)
		return
	}
	admin, _ := auth.AdminFromContext(r.Context())
	slog.Info("admin deleted roadmap", "topic", topic, "admin", admin)
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Deleted roadmaps for %q", topic)})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.backend.AdminStats(ctx)
	if err != nil {
		writeUpstreamError(w, "stats", err)
		return
	}
	roadmaps, err := h.backend.AdminRoadmaps(ctx)
	if err != nil {
		writeUpstreamError(w, "roadmaps", err)
		return
	}
	feedback, err := h.backend.AdminFeedback(ctx)
	if err != nil {
		writeUpstreamError(w, "feedback", err)
		return
	}

	f, err := BuildReport(stats, roadmaps, feedback)
	if err != nil {
		slog.Error("build admin report failed", "error", err)
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}
	defer func() { _ = f.Close() }()

	name := fmt.Sprintf("studymate-report-%s.xlsx", h.now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	if _, err := f.WriteTo(w); err != nil {
		slog.Warn("write admin report failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode admin response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError passes backend 4xx replies through and reports
// everything else as a bad gateway.
func writeUpstreamError(w http.ResponseWriter, what string, err error) {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Status)
		}
		writeError(w, apiErr.Status, msg)
		return
	}
	slog.Error("admin backend call failed", "call", what, "error", err)
	writeError(w, http.StatusBadGateway, "backend unavailable")
}
