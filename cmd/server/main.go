package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/studymatehub/studymate-bot/internal/admin"
	"github.com/studymatehub/studymate-bot/internal/agent"
	"github.com/studymatehub/studymate-bot/internal/auth"
	"github.com/studymatehub/studymate-bot/internal/catalog"
	"github.com/studymatehub/studymate-bot/internal/chat"
	"github.com/studymatehub/studymate-bot/internal/gateway"
	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/learn"
	"github.com/studymatehub/studymate-bot/internal/platform/cache"
	"github.com/studymatehub/studymate-bot/internal/platform/config"
	"github.com/studymatehub/studymate-bot/internal/platform/database"
	"github.com/studymatehub/studymate-bot/internal/profile"
	"github.com/studymatehub/studymate-bot/internal/progress"
)

const messageTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	checks := make(map[string]healthChecker)

	db, err := database.New(ctx, database.Options{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	checks["database"] = db

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	var guestStore interface {
		guest.Store
		guest.Locker
	}
	switch cfg.Guest.Store {
	case "redis":
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		defer func() { _ = c.Close() }()
		checks["cache"] = c
		guestStore = guest.NewRedisStore(c, cfg.Guest.TTL)
	default:
		slog.Warn("guest data is kept in memory and lost on restart")
		guestStore = guest.NewMemoryStore()
	}
	guests := guest.NewRepository(guestStore, guestStore)

	catalogLoader, err := catalog.NewLoader(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	backend := gateway.New(cfg.Gateway.BaseURL,
		gateway.WithAPIKey(cfg.Gateway.APIKey),
		gateway.WithTimeout(cfg.Gateway.Timeout),
	)
	if err := backend.HealthCheck(ctx); err != nil {
		slog.Warn("gateway not reachable, using the catalog until it is", "url", cfg.Gateway.BaseURL, "error", err)
	}

	history, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	profiles, err := profile.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	accounts, err := agent.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}

	engineCfg := agent.EngineConfig{
		Learn: &learn.Deps{
			Roadmaps:  backend,
			Catalog:   catalogLoader,
			Quizzes:   backend,
			Resources: backend,
			Account:   backend,
			History:   history,
			Guests:    guests,
		},
		Guests:    guests,
		Syncer:    backend,
		Catalog:   catalogLoader,
		Community: backend,
		Tutor:     backend,
		Profiles:  profiles,
		Remover:   backend,
		Accounts:  accounts,
		Events:    agent.NewPostgresEventLogger(db.Pool),
	}
	if cfg.AccountsEnabled() {
		verifier, err := auth.NewAccessVerifier(cfg.Auth.AccessTokenSecret, cfg.Auth.Issuer)
		if err != nil {
			return fmt.Errorf("access verifier: %w", err)
		}
		engineCfg.Verifier = verifier
	}
	engine := agent.NewEngine(engineCfg)
	go engine.RunEviction(ctx, time.Minute, cfg.Server.SessionIdleTTL)

	gw := chat.NewGateway()
	if cfg.Telegram.BotToken != "" {
		tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		gw.Register("telegram", tg)
	}

	mux := newMux(checks)

	if cfg.WebSocket.Enabled {
		ws := chat.NewWebSocketChannel(originPatterns(cfg.Server.AllowedOrigins))
		gw.Register("websocket", ws)
		mux.Handle("GET "+cfg.WebSocket.Path, ws)
	}

	if cfg.AdminEnabled() {
		a, err := auth.NewAdmin(cfg.Admin.Email, cfg.Admin.PasswordHash, cfg.Admin.TokenSecret, cfg.Admin.TokenTTL)
		if err != nil {
			return fmt.Errorf("admin auth: %w", err)
		}
		admin.NewHandler(a, backend).Register(mux)
		slog.Info("admin API enabled")
	}

	if err := gw.StartAll(ctx, func(msg chat.InboundMessage) {
		handleMessage(ctx, engine, gw, msg)
	}); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      withCORS(mux, cfg.Server.AllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = gw.StopAll()
		return err
	}
	slog.Info("shutting down")

	if err := gw.StopAll(); err != nil {
		slog.Error("stopping channels", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// messageProcessor is the engine as seen by the channel handler.
type messageProcessor interface {
	ProcessMessage(ctx context.Context, msg chat.InboundMessage) (string, error)
}

// replier is the chat gateway as seen by the channel handler.
type replier interface {
	Send(ctx context.Context, msg chat.OutboundMessage) error
	SendTyping(ctx context.Context, channel, userID string) error
}

func handleMessage(ctx context.Context, engine messageProcessor, gw replier, msg chat.InboundMessage) {
	ctx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	if err := gw.SendTyping(ctx, msg.Channel, msg.UserID); err != nil {
		slog.Debug("typing indicator failed", "channel", msg.Channel, "error", err)
	}

	reply, err := engine.ProcessMessage(ctx, msg)
	if err != nil {
		slog.Error("processing message failed", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		reply = "Something went wrong on my side. Please try again."
	}
	if reply == "" {
		return
	}

	if err := gw.Send(ctx, chat.OutboundMessage{
		Channel: msg.Channel,
		UserID:  msg.UserID,
		Text:    reply,
	}); err != nil {
		slog.Error("sending reply failed", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
	}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// newMux creates the HTTP router with health check endpoints. readyz pings
// every dependency in checks.
func newMux(checks map[string]healthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for name, c := range checks {
			if err := c.HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, `{"status":"unavailable","dependency":%q}`, name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

func withCORS(h http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}).Handler(h)
}

// originPatterns turns CORS origins (https://app.example.com) into the host
// patterns the WebSocket handshake checks.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
