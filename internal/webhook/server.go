// Package webhook receives GitHub webhook deliveries, verifies their
// HMAC signatures, and hands the parsed events to the command dispatcher.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskops/assignbot/internal/config"
	"github.com/taskops/assignbot/internal/dispatcher"
	"github.com/taskops/assignbot/internal/eligibility"
	"github.com/taskops/assignbot/internal/github"
)

// maxPayloadSize bounds a single delivery body.
const maxPayloadSize = 10 << 20

// Server handles HTTP requests carrying tracker webhook events.
type Server struct {
	base       *github.Client
	wallet     eligibility.WalletSource
	settings   *config.Settings
	secret     []byte
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// ServerConfig holds the dependencies of the webhook server.
type ServerConfig struct {
	Client   *github.Client // base client; rebound per delivery to the event's repository
	Wallet   eligibility.WalletSource
	Settings *config.Settings
	Secret   []byte // HMAC secret for delivery signatures
	Logger   *slog.Logger
}

// NewServer creates a webhook server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		base:     cfg.Client,
		wallet:   cfg.Wallet,
		settings: cfg.Settings,
		secret:   cfg.Secret,
		logger:   cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/webhook", s.handleDelivery)
	r.Get("/health", s.handleHealth)
	s.router = r

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// deliveryResponse is the JSON response body for a processed delivery.
type deliveryResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleDelivery handles POST /webhook.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer func() { _ = r.Body.Close() }()

	if err := ValidateSignature(payload, r.Header.Get("X-Hub-Signature-256"), s.secret); err != nil {
		s.writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid signature: %v", err))
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	logger := s.logger.With("event", event, "delivery", delivery)

	switch event {
	case github.EventIssueComment:
		s.handleIssueComment(w, r.Context(), payload, logger)
	case github.EventPullRequest:
		s.handlePullRequest(w, r.Context(), payload, logger)
	default:
		// Not subscribed; acknowledge so the hub doesn't redeliver.
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleIssueComment parses and dispatches an issue_comment delivery.
func (s *Server) handleIssueComment(w http.ResponseWriter, ctx context.Context, payload []byte, logger *slog.Logger) {
	ev, err := github.ParseIssueCommentEvent(payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := s.dispatcherFor(ev.Repository, logger)
	res, err := d.HandleComment(ctx, ev)
	s.writeOutcome(w, res, err, logger)
}

// handlePullRequest parses and dispatches a pull_request delivery.
func (s *Server) handlePullRequest(w http.ResponseWriter, ctx context.Context, payload []byte, logger *slog.Logger) {
	ev, err := github.ParsePullRequestEvent(payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := s.dispatcherFor(ev.Repository, logger)
	err = d.HandlePullRequest(ctx, ev)
	s.writeOutcome(w, nil, err, logger)
}

// dispatcherFor builds a dispatcher bound to the delivery's repository.
func (s *Server) dispatcherFor(repo *github.Repository, logger *slog.Logger) *dispatcher.Dispatcher {
	client := s.base.ForRepo(repo.Owner.Login, repo.Name)
	eval := eligibility.New(client, s.wallet, s.settings, logger)
	return dispatcher.New(client, eval, s.settings, logger)
}

// writeOutcome maps a dispatch outcome to an HTTP response. Policy
// rejections were already answered with a tracker comment, so the
// delivery itself is acknowledged; only upstream failures are surfaced as
// server errors for the hub to redeliver.
func (s *Server) writeOutcome(w http.ResponseWriter, res *dispatcher.Result, err error, logger *slog.Logger) {
	if err != nil {
		var derr *dispatcher.DisabledError
		var cerr *dispatcher.CommandError
		if _, ok := eligibility.AsRejection(err); ok || errors.As(err, &derr) || errors.As(err, &cerr) {
			logger.Info("command rejected", "reason", err.Error())
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(deliveryResponse{Error: err.Error()})
			return
		}
		logger.Error("event handling failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	resp := deliveryResponse{}
	if res != nil {
		resp.Output = res.Output
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// handleHealth handles GET /health for load balancer checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(deliveryResponse{Error: message})
}
