// Package gateway exposes the interview service over HTTP and WebSocket.
//
// The REST surface under /api/v1 covers the interview lifecycle (start, reply,
// transcript, status, applicants, cleanup); /ws/rooms carries streamed audio
// recordings. Operational endpoints (/healthz, /readyz, /metrics) are served
// from the same listener.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hireorbit/interviewd/internal/health"
	"github.com/hireorbit/interviewd/internal/observe"
	"github.com/hireorbit/interviewd/internal/rooms"
	"github.com/hireorbit/interviewd/internal/session"
)

// Server wires the interview service into HTTP routes.
type Server struct {
	svc     *session.Service
	agg     *rooms.Aggregator
	health  *health.Handler
	metrics *observe.Metrics
	logger  *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithAggregator sets the audio room aggregator backing /ws/rooms.
func WithAggregator(a *rooms.Aggregator) Option {
	return func(s *Server) { s.agg = a }
}

// WithHealth sets the handler backing /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server for the given interview service.
func New(svc *session.Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.agg == nil {
		s.agg = rooms.NewAggregator(0)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the root http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/interviews", s.handleStart)
	api.HandleFunc("POST /api/v1/interviews/reply", s.handleReply)
	api.HandleFunc("GET /api/v1/interviews/{sessionKey}/{name}/{email}/messages", s.handleMessages)
	api.HandleFunc("GET /api/v1/interviews/{sessionKey}/{name}/{email}/status", s.handleStatus)
	api.HandleFunc("GET /api/v1/sessions/{sessionKey}/applicants", s.handleApplicants)
	api.HandleFunc("DELETE /api/v1/interviews/{sessionKey}/{name}/{email}", s.handlePurge)
	api.HandleFunc("DELETE /api/v1/sessions/{sessionKey}/unfinished", s.handleCleanup)
	api.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(api)

	// The websocket upgrade needs the raw ResponseWriter; the instrumented
	// wrapper does not implement http.Hijacker, so /ws bypasses the middleware.
	root := http.NewServeMux()
	root.HandleFunc("GET /ws/rooms/{roomID}", s.handleRoom)
	root.Handle("/", observe.Middleware(s.metrics)(api))
	return root
}

// startRequest is the JSON body for POST /api/v1/interviews.
type startRequest struct {
	SessionKey string `json:"session_key"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Prompt     string `json:"prompt"`
}

// replyRequest is the JSON body for POST /api/v1/interviews/reply.
type replyRequest struct {
	SessionKey string `json:"session_key"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Message    string `json:"message"`
}

// exchangeResponse is the JSON body returned from start and reply.
type exchangeResponse struct {
	Reply    string `json:"reply"`
	Finished bool   `json:"finished"`
}

// messageResponse is one transcript turn in the messages listing.
type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Finishes  bool      `json:"finishes_interview"`
}

// applicantResponse is one entry in the applicants listing.
type applicantResponse struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Finished bool   `json:"finished"`
}

// deletedResponse reports how many turns a cleanup call removed.
type deletedResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &session.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}

	ex, err := s.svc.Start(r.Context(), session.StartRequest{
		SessionKey: req.SessionKey,
		Name:       req.Name,
		Email:      req.Email,
		Prompt:     req.Prompt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exchangeResponse{Reply: ex.Turn.Content, Finished: ex.Finished})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &session.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}

	ex, err := s.svc.Reply(r.Context(), session.ReplyRequest{
		SessionKey: req.SessionKey,
		Name:       req.Name,
		Email:      req.Email,
		Message:    req.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exchangeResponse{Reply: ex.Turn.Content, Finished: ex.Finished})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	turns, err := s.svc.Messages(r.Context(), r.PathValue("sessionKey"), r.PathValue("name"), r.PathValue("email"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]messageResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, messageResponse{
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
			Finishes:  t.CompletesSession,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context(), r.PathValue("sessionKey"), r.PathValue("name"), r.PathValue("email"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleApplicants(w http.ResponseWriter, r *http.Request) {
	finishedOnly := r.URL.Query().Get("finished") == "true"

	applicants, err := s.svc.Applicants(r.Context(), r.PathValue("sessionKey"), finishedOnly)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]applicantResponse, 0, len(applicants))
	for _, a := range applicants {
		out = append(out, applicantResponse{Name: a.Name, Email: a.Email, Finished: a.Finished})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Purge(r.Context(),
		r.PathValue("sessionKey"), r.PathValue("name"), r.PathValue("email"),
		r.Header.Get("X-Admin-Secret"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Cleanup(r.Context(), r.PathValue("sessionKey"), r.Header.Get("X-Admin-Secret"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps service errors onto HTTP statuses. Validation failures are
// the caller's fault (400), identity conflicts map to 409/404/403, and
// upstream provider failures surface as 502 so the client can retry.
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr    *session.ValidationError
		completionErr    *session.CompletionError
		transcriptionErr *session.TranscriptionError
		synthesisErr     *session.SynthesisError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrForbidden):
		status = http.StatusForbidden
	case errors.As(err, &completionErr),
		errors.As(err, &transcriptionErr),
		errors.As(err, &synthesisErr):
		status = http.StatusBadGateway
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Storage errors may embed DSNs or SQL; clients get a generic message.
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
