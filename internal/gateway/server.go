// Package gateway is the HTTP surface: chat platform webhooks, agent
// endpoints, cron triggers and the JSON API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/suzieq/ceo-office/internal/agent"
	"github.com/suzieq/ceo-office/internal/autonomy"
	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/config"
	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/org"
	"github.com/suzieq/ceo-office/internal/store"
)

const (
	maxBodyBytes    = 1 << 20
	slackDedupeSize = 1024
)

// Server routes inbound HTTP requests to the office.
type Server struct {
	office   *agent.Office
	bus      *bus.MessageBus
	memory   *memory.Service
	builder  *org.Builder
	research *org.Research
	policies *autonomy.Policies
	store    *store.Store

	cfg      config.ServerConfig
	slack    config.SlackConfig
	telegram config.TelegramConfig
	started  time.Time

	seenSlack *lru.Cache[string, struct{}]
}

// Options holds the server's collaborators.
type Options struct {
	Office   *agent.Office
	Bus      *bus.MessageBus
	Memory   *memory.Service
	Builder  *org.Builder
	Research *org.Research
	Policies *autonomy.Policies
	Store    *store.Store
	Config   *config.Config
}

// New creates a server.
func New(opts Options) *Server {
	seen, _ := lru.New[string, struct{}](slackDedupeSize)
	return &Server{
		office:   opts.Office,
		bus:      opts.Bus,
		memory:   opts.Memory,
		builder:  opts.Builder,
		research: opts.Research,
		policies: opts.Policies,
		store:    opts.Store,
		cfg:      opts.Config.Server,
		slack:    opts.Config.Slack,
		telegram: opts.Config.Telegram,
		started:  time.Now(),

		seenSlack: seen,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /slack/events", s.handleSlackEvents)
	mux.HandleFunc("POST /slack/commands", s.handleSlackCommand)
	mux.HandleFunc("POST /telegram/webhook", s.handleTelegram)

	mux.HandleFunc("POST /agents/{dept}/{role}/{name}", s.handleAgent)
	mux.HandleFunc("POST /cron/daily-report", s.handleDailyReport)
	mux.HandleFunc("POST /cron/autonomy-tick", s.handleTick)

	mux.HandleFunc("POST /api/v1/org/hire", s.handleHire)
	mux.HandleFunc("GET /api/v1/org/{department}", s.handleRoster)
	mux.HandleFunc("POST /api/v1/staff/{id}/deactivate", s.handleDeactivate)
	mux.HandleFunc("POST /api/v1/rnd/bootstrap", s.handleRnDBootstrap)
	mux.HandleFunc("GET /api/v1/rnd/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/v1/rnd/projects", s.handleCreateProject)
	mux.HandleFunc("POST /api/v1/rnd/projects/{id}/experiments", s.handleAddExperiment)
	mux.HandleFunc("POST /api/v1/rnd/projects/{id}/knowledge", s.handleRecordKnowledge)

	mux.HandleFunc("POST /api/v1/memory/remember", s.handleRemember)
	mux.HandleFunc("POST /api/v1/memory/recall", s.handleRecall)
	mux.HandleFunc("GET /api/v1/memory/recent", s.handleRecent)

	mux.HandleFunc("GET /api/v1/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/v1/goals", s.handleAddGoal)
	mux.HandleFunc("POST /api/v1/goals/{id}/status", s.handleGoalStatus)
	mux.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/v1/tasks", s.handleAddTask)
	mux.HandleFunc("GET /api/v1/autonomy/policy", s.handleGetPolicy)
	mux.HandleFunc("POST /api/v1/autonomy/policy", s.handleSetPolicy)
	mux.HandleFunc("POST /api/v1/kpis", s.handleRecordKPI)

	return s.withTimeout(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Gateway listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Gateway shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) withTimeout(next http.Handler) http.Handler {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"store":          s.store.Configured(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"inbound_queue":  s.bus.InboundSize(),
	})
}

// publish queues an inbound message for the office worker.
func (s *Server) publish(w http.ResponseWriter, msg *bus.InboundMessage) bool {
	if err := s.bus.PublishInbound(msg); err != nil {
		slog.Warn("Inbound queue rejected message", "channel", msg.Channel, "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, key string, v any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, key: v})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

// fail maps err onto a status: validation errors are 400, missing rows 404,
// everything else 502.
func fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, store.ErrNotConfigured),
		errors.Is(err, org.ErrInvalidDepartment),
		errors.Is(err, memory.ErrInvalidImportance),
		errors.Is(err, memory.ErrEmptyContent),
		errors.Is(err, autonomy.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}
