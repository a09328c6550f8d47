// Package session implements the interview request layer. It wires the
// transcript store to the completion, transcription, and synthesis providers
// and owns the error taxonomy the HTTP gateway maps to status codes.
package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hireorbit/interviewd/internal/interview"
	"github.com/hireorbit/interviewd/internal/observe"
	"github.com/hireorbit/interviewd/pkg/provider/llm"
	"github.com/hireorbit/interviewd/pkg/provider/stt"
	"github.com/hireorbit/interviewd/pkg/provider/tts"
)

// Service coordinates one interview round-trip: persist the incoming turn,
// ask the model, persist its reply. All methods are safe for concurrent use;
// per-applicant write ordering is the store's concern.
type Service struct {
	store   interview.Store
	llm     llm.Provider
	stt     stt.Provider
	tts     tts.Provider
	metrics *observe.Metrics
	logger  *slog.Logger

	adminSecret string
	temperature float64
	maxTokens   int
}

// Option is a functional option for [New].
type Option func(*Service)

// WithTranscriber enables the audio reply path using the given STT provider.
func WithTranscriber(p stt.Provider) Option {
	return func(s *Service) { s.stt = p }
}

// WithSynthesizer enables spoken replies using the given TTS provider.
func WithSynthesizer(p tts.Provider) Option {
	return func(s *Service) { s.tts = p }
}

// WithAdminSecret sets the secret required by Purge and Cleanup. An empty
// secret (the default) rejects every destructive call.
func WithAdminSecret(secret string) Option {
	return func(s *Service) { s.adminSecret = secret }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger overrides the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTemperature sets the completion temperature. Zero (the default) leaves
// the provider default in place.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithMaxTokens caps the completion length. Zero (the default) leaves the
// provider default in place.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// New creates a Service on top of the given store and completion provider.
func New(store interview.Store, completer llm.Provider, opts ...Option) *Service {
	s := &Service{
		store:  store,
		llm:    completer,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// StartRequest carries the fields needed to open an interview.
type StartRequest struct {
	SessionKey string
	Name       string
	Email      string
	Prompt     string
}

// ReplyRequest carries a candidate's text turn.
type ReplyRequest struct {
	SessionKey string
	Name       string
	Email      string
	Message    string
}

// Exchange is the outcome of one round-trip: the interviewer turn that was
// appended, and whether it finished the session.
type Exchange struct {
	Turn     interview.Turn
	Finished bool
}

func (r StartRequest) identity() interview.Identity {
	return interview.Identity{SessionKey: r.SessionKey, Name: r.Name, Email: r.Email}
}

func (r ReplyRequest) identity() interview.Identity {
	return interview.Identity{SessionKey: r.SessionKey, Name: r.Name, Email: r.Email}
}

// validateIdentity rejects empty identity fields. The email is otherwise
// opaque: it is an identity component, not a delivery address, so no format
// check is applied.
func validateIdentity(sessionKey, name, email string) error {
	switch {
	case strings.TrimSpace(sessionKey) == "":
		return &ValidationError{Field: "session_key", Reason: "must not be empty"}
	case strings.TrimSpace(name) == "":
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	case strings.TrimSpace(email) == "":
		return &ValidationError{Field: "email", Reason: "must not be empty"}
	}
	return nil
}

// Start opens an interview for a previously unseen (session key, name, email)
// triple. The prompt is persisted as the first system turn, the model
// produces the opening question, and that question is persisted and returned.
//
// A triple that already has turns yields [ErrSessionExists].
func (s *Service) Start(ctx context.Context, req StartRequest) (Exchange, error) {
	if err := validateIdentity(req.SessionKey, req.Name, req.Email); err != nil {
		return Exchange{}, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Exchange{}, &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}

	id := req.identity()
	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return Exchange{}, fmt.Errorf("session: start: %w", err)
	}
	if exists {
		return Exchange{}, ErrSessionExists
	}

	if _, err := s.append(ctx, id, interview.RoleSystem, req.Prompt); err != nil {
		return Exchange{}, fmt.Errorf("session: start: %w", err)
	}

	exchange, err := s.completeAndAppend(ctx, id)
	if err != nil {
		return Exchange{}, err
	}

	s.logger.InfoContext(ctx, "interview started",
		slog.String("session_key", id.SessionKey),
		slog.String("applicant", id.Email),
	)
	return exchange, nil
}

// Reply persists the candidate's message as a user turn and returns the
// model's next interviewer turn.
//
// An unknown triple yields [ErrSessionNotFound] before anything is written.
// When the completion provider fails the user turn stays persisted and the
// error is a [*CompletionError]; retrying the request is safe.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (Exchange, error) {
	if err := validateIdentity(req.SessionKey, req.Name, req.Email); err != nil {
		return Exchange{}, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return Exchange{}, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	id := req.identity()
	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return Exchange{}, fmt.Errorf("session: reply: %w", err)
	}
	if !exists {
		return Exchange{}, ErrSessionNotFound
	}

	if _, err := s.append(ctx, id, interview.RoleUser, req.Message); err != nil {
		return Exchange{}, fmt.Errorf("session: reply: %w", err)
	}

	return s.completeAndAppend(ctx, id)
}

// AudioReply transcribes a complete audio recording and runs the Reply
// round-trip with the recognised text. Transcription failures leave the
// transcript untouched and surface as [*TranscriptionError].
//
// The recognised text is returned alongside the exchange so callers can echo
// it back to the client.
func (s *Service) AudioReply(ctx context.Context, req ReplyRequest, audio []byte) (Exchange, string, error) {
	if s.stt == nil {
		return Exchange{}, "", &TranscriptionError{Err: fmt.Errorf("no transcription provider configured")}
	}
	if len(audio) == 0 {
		return Exchange{}, "", &ValidationError{Field: "audio", Reason: "must not be empty"}
	}

	start := time.Now()
	text, err := s.stt.Transcribe(ctx, audio)
	s.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "stt", "transcribe")
		return Exchange{}, "", &TranscriptionError{Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return Exchange{}, "", &TranscriptionError{Err: fmt.Errorf("empty transcription result")}
	}

	req.Message = text
	exchange, err := s.Reply(ctx, req)
	return exchange, text, err
}

// Synthesize converts an interviewer reply into audio. It returns (nil, nil)
// when no synthesis provider is configured; failures surface as
// [*SynthesisError].
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.tts == nil {
		return nil, nil
	}

	start := time.Now()
	audio, err := s.tts.Synthesize(ctx, text)
	s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return nil, &SynthesisError{Err: err}
	}
	return audio, nil
}

// Messages returns the full transcript of the triple in chronological order.
// An unknown triple yields [ErrSessionNotFound].
func (s *Service) Messages(ctx context.Context, sessionKey, name, email string) ([]interview.Turn, error) {
	if err := validateIdentity(sessionKey, name, email); err != nil {
		return nil, err
	}
	id := interview.Identity{SessionKey: sessionKey, Name: name, Email: email}

	turns, err := s.store.ListTurns(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: messages: %w", err)
	}
	if len(turns) == 0 {
		return nil, ErrSessionNotFound
	}
	return turns, nil
}

// Status reports the derived lifecycle state of the triple.
func (s *Service) Status(ctx context.Context, sessionKey, name, email string) (interview.Status, error) {
	if err := validateIdentity(sessionKey, name, email); err != nil {
		return "", err
	}
	id := interview.Identity{SessionKey: sessionKey, Name: name, Email: email}

	status, err := s.store.Status(ctx, id)
	if err != nil {
		return "", fmt.Errorf("session: status: %w", err)
	}
	return status, nil
}

// Applicants lists everyone who has turns under the session key. With
// finishedOnly set, only applicants whose interview completed are returned.
func (s *Service) Applicants(ctx context.Context, sessionKey string, finishedOnly bool) ([]interview.Applicant, error) {
	if strings.TrimSpace(sessionKey) == "" {
		return nil, &ValidationError{Field: "session_key", Reason: "must not be empty"}
	}
	var (
		applicants []interview.Applicant
		err        error
	)
	if finishedOnly {
		applicants, err = s.store.ListFinished(ctx, sessionKey)
	} else {
		applicants, err = s.store.ListApplicants(ctx, sessionKey)
	}
	if err != nil {
		return nil, fmt.Errorf("session: applicants: %w", err)
	}
	return applicants, nil
}

// Purge removes every turn of one triple. Requires the admin secret; a
// mismatch yields [ErrForbidden] without touching the store.
func (s *Service) Purge(ctx context.Context, sessionKey, name, email, secret string) (int64, error) {
	if err := s.authorize(secret); err != nil {
		return 0, err
	}
	if err := validateIdentity(sessionKey, name, email); err != nil {
		return 0, err
	}
	id := interview.Identity{SessionKey: sessionKey, Name: name, Email: email}

	removed, err := s.store.DeleteAll(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("session: purge: %w", err)
	}
	s.logger.InfoContext(ctx, "transcript purged",
		slog.String("session_key", sessionKey),
		slog.String("applicant", email),
		slog.Int64("turns_removed", removed),
	)
	return removed, nil
}

// Cleanup removes the transcripts of applicants under the session key who
// never finished. When nobody under the key finished, everything under the
// key is removed. Requires the admin secret.
func (s *Service) Cleanup(ctx context.Context, sessionKey, secret string) (int64, error) {
	if err := s.authorize(secret); err != nil {
		return 0, err
	}
	if strings.TrimSpace(sessionKey) == "" {
		return 0, &ValidationError{Field: "session_key", Reason: "must not be empty"}
	}

	removed, err := s.store.DeleteUnfinished(ctx, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("session: cleanup: %w", err)
	}
	s.logger.InfoContext(ctx, "unfinished transcripts removed",
		slog.String("session_key", sessionKey),
		slog.Int64("turns_removed", removed),
	)
	return removed, nil
}

// authorize compares the supplied secret against the configured admin secret
// in constant time. An unconfigured secret rejects everything.
func (s *Service) authorize(secret string) error {
	if s.adminSecret == "" {
		return ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.adminSecret)) != 1 {
		return ErrForbidden
	}
	return nil
}

// append writes one turn and records the counter.
func (s *Service) append(ctx context.Context, id interview.Identity, role interview.Role, content string) (interview.Turn, error) {
	turn, err := s.store.Append(ctx, id, role, content)
	if err != nil {
		return interview.Turn{}, err
	}
	s.metrics.RecordTurnAppended(ctx, string(role))
	return turn, nil
}

// completeAndAppend runs the completion over the persisted history and
// appends the model's reply as a system turn.
func (s *Service) completeAndAppend(ctx context.Context, id interview.Identity) (Exchange, error) {
	history, err := s.store.History(ctx, id)
	if err != nil {
		return Exchange{}, fmt.Errorf("session: load history: %w", err)
	}

	messages := make([]llm.Message, len(history))
	for i, e := range history {
		messages[i] = llm.Message{Role: string(e.Role), Content: e.Content}
	}

	start := time.Now()
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	s.metrics.CompletionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", "complete")
		return Exchange{}, &CompletionError{Err: err}
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "complete", "ok")

	turn, err := s.append(ctx, id, interview.RoleSystem, resp.Content)
	if err != nil {
		return Exchange{}, fmt.Errorf("session: append reply: %w", err)
	}

	return Exchange{Turn: turn, Finished: turn.CompletesSession}, nil
}
