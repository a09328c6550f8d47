package gateway_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hireorbit/interviewd/internal/gateway"
	"github.com/hireorbit/interviewd/internal/interview"
	"github.com/hireorbit/interviewd/internal/observe"
	"github.com/hireorbit/interviewd/internal/session"
	"github.com/hireorbit/interviewd/pkg/provider/llm"
	llmmock "github.com/hireorbit/interviewd/pkg/provider/llm/mock"
	sttmock "github.com/hireorbit/interviewd/pkg/provider/stt/mock"
	ttsmock "github.com/hireorbit/interviewd/pkg/provider/tts/mock"
)

const testSecret = "hunter2"

// testFixture bundles the HTTP test server with the mocks behind it.
type testFixture struct {
	srv   *httptest.Server
	store *interview.MemStore
	llm   *llmmock.Provider
	stt   *sttmock.Provider
	tts   *ttsmock.Provider
}

// newTestFixture builds a gateway over an in-memory store and mock providers.
func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// The observability middleware mirrors the active trace ID into the
	// X-Correlation-ID header, so the fixture needs a real tracer provider
	// just like production wiring installs one.
	tp := sdktrace.NewTracerProvider()
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	f := &testFixture{
		store: interview.NewMemStore(interview.DefaultClosingPhrase),
		llm:   &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Tell me about yourself."}},
		stt:   &sttmock.Provider{Text: "I am a Go developer."},
		tts:   &ttsmock.Provider{Audio: []byte("mp3-bytes")},
	}

	svc := session.New(f.store, f.llm,
		session.WithTranscriber(f.stt),
		session.WithSynthesizer(f.tts),
		session.WithAdminSecret(testSecret),
		session.WithMetrics(metrics),
	)

	g := gateway.New(svc, gateway.WithMetrics(metrics))
	f.srv = httptest.NewServer(g.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

// postJSON sends body as JSON to path and returns the response.
func (f *testFixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// startInterview runs the happy-path start call and fails the test on error.
func (f *testFixture) startInterview(t *testing.T) {
	t.Helper()
	resp := f.postJSON(t, "/api/v1/interviews", map[string]string{
		"session_key": "summer-2026",
		"name":        "Ada",
		"email":       "ada@example.com",
		"prompt":      "You are interviewing a backend engineer.",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: status %d", resp.StatusCode)
	}
}

// decode unmarshals the response body into v.
func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStart_ReturnsOpeningQuestion(t *testing.T) {
	f := newTestFixture(t)

	resp := f.postJSON(t, "/api/v1/interviews", map[string]string{
		"session_key": "summer-2026",
		"name":        "Ada",
		"email":       "ada@example.com",
		"prompt":      "You are interviewing a backend engineer.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var body struct {
		Reply    string `json:"reply"`
		Finished bool   `json:"finished"`
	}
	decode(t, resp, &body)
	if body.Reply != "Tell me about yourself." {
		t.Errorf("reply: got %q", body.Reply)
	}
	if body.Finished {
		t.Error("finished: a fresh interview should not be finished")
	}
}

func TestStart_DuplicateReturns409(t *testing.T) {
	f := newTestFixture(t)
	f.startInterview(t)

	resp := f.postJSON(t, "/api/v1/interviews", map[string]string{
		"session_key": "summer-2026",
		"name":        "Ada",
		"email":       "ada@example.com",
		"prompt":      "again",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestStart_MissingFieldsReturn400(t *testing.T) {
	f := newTestFixture(t)

	resp := f.postJSON(t, "/api/v1/interviews", map[string]string{
		"session_key": "summer-2026",
		"prompt":      "no identity",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestStart_MalformedJSONReturns400(t *testing.T) {
	f := newTestFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/v1/interviews", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestReply_RoundTrip(t *testing.T) {
	f := newTestFixture(t)
	f.startInterview(t)

	f.llm.CompleteResponse = &llm.CompletionResponse{Content: "What is your biggest project?"}
	resp := f.postJSON(t, "/api/v1/interviews/reply", map[string]string{
		"session_key": "summer-2026",
		"name":        "Ada",
		"email":       "ada@example.com",
		"message":     "I have eight years of Go experience.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Reply string `json:"reply"`
	}
	decode(t, resp, &body)
	if body.Reply != "What is your biggest project?" {
		t.Errorf("reply: got %q", body.Reply)
	}
}

func TestReply_UnknownSessionReturns404(t *testing.T) {
	f := newTestFixture(t)

	resp := f.postJSON(t, "/api/v1/interviews/reply", map[string]string{
		"session_key": "never-started",
		"name":        "Ada",
		"email":       "ada@example.com",
		"message":     "hello?",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestReply_CompletionFailureReturns502(t *testing.T) {
	f := newTestFixture(t)
	f.startInterview(t)

	f.llm.CompleteResponse = nil
	f.llm.CompleteErr = fmt.Errorf("model overloaded")
	resp := f.postJSON(t, "/api/v1/interviews/reply", map[string]string{
		"session_key": "summer-2026",
		"name":        "Ada",
		"email":       "ada@example.com",
		"message":     "still there?",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
}

func TestMessages_ListsTranscriptInOrder(t *testing.T) {
	f := newTestFixture(t)
	f.startInterview(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/interviews/summer-2026/Ada/ada@example.com/messages")
	if err != nil {
		t.Fatalf("GET messages: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	decode(t, resp, &body)
	if len(body) != 2 {
		t.Fatalf("want 2 turns, got %d", len(body))
	}
	if body[0].Role != "system" || body[0].Content != "You are interviewing a backend engineer." {
		t.Errorf("first turn: %+v", body[0])
	}
	if body[1].Content != "Tell me about yourself." {
		t.Errorf("second turn: %+v", body[1])
	}
}

func TestMessages_UnknownSessionReturns404(t *testing.T) {
	f := newTestFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/interviews/nope/Ada/ada@example.com/messages")
	if err != nil {
		t.Fatalf("GET messages: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestStatus_TracksLifecycle(t *testing.T) {
	f := newTestFixture(t)

	status := func() string {
		t.Helper()
		resp, err := http.Get(f.srv.URL + "/api/v1/interviews/summer-2026/Ada/ada@example.com/status")
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		var body struct {
			Status string `json:"status"`
		}
		decode(t, resp, &body)
		return body.Status
	}

	if got := status(); got != "uninitiated" {
		t.Errorf("before start: got %q", got)
	}

	f.startInterview(t)
	if got := status(); got != "started" {
		t.Errorf("after start: got %q", got)
	}

	f.llm.CompleteResponse = &llm.CompletionResponse{Content: "Thank you for your time and insights."}
	resp := f.postJSON(t, "/api/v1/interviews/reply", map[string]string{
		"session_key": "summer-2026",
		"name":        "Ada",
		"email":       "ada@example.com",
		"message":     "That is everything from my side.",
	})
	var body struct {
		Finished bool `json:"finished"`
	}
	decode(t, resp, &body)
	if !body.Finished {
		t.Error("closing reply should report finished")
	}
	if got := status(); got != "finished" {
		t.Errorf("after closing reply: got %q", got)
	}
}

func TestApplicants_FinishedFilter(t *testing.T) {
	f := newTestFixture(t)
	f.startInterview(t)

	// A second applicant under the same key who finishes immediately.
	f.llm.CompleteResponse = &llm.CompletionResponse{Content: "Thank you for your time and insights."}
	resp := f.postJSON(t, "/api/v1/interviews", map[string]string{
		"session_key": "summer-2026",
		"name":        "Grace",
		"email":       "grace@example.com",
		"prompt":      "short screen",
	})
	resp.Body.Close()

	all, err := http.Get(f.srv.URL + "/api/v1/sessions/summer-2026/applicants")
	if err != nil {
		t.Fatalf("GET applicants: %v", err)
	}
	var everyone []struct {
		Name     string `json:"name"`
		Finished bool   `json:"finished"`
	}
	decode(t, all, &everyone)
	if len(everyone) != 2 {
		t.Fatalf("want 2 applicants, got %d", len(everyone))
	}

	finished, err := http.Get(f.srv.URL + "/api/v1/sessions/summer-2026/applicants?finished=true")
	if err != nil {
		t.Fatalf("GET applicants?finished: %v", err)
	}
	var done []struct {
		Name     string `json:"name"`
		Finished bool   `json:"finished"`
	}
	decode(t, finished, &done)
	if len(done) != 1 || done[0].Name != "Grace" {
		t.Errorf("finished filter: got %+v", done)
	}
}

func TestPurge_RequiresAdminSecret(t *testing.T) {
	f := newTestFixture(t)
	f.startInterview(t)

	del := func(secret string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/v1/interviews/summer-2026/Ada/ada@example.com", nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		if secret != "" {
			req.Header.Set("X-Admin-Secret", secret)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE: %v", err)
		}
		return resp
	}

	resp := del("wrong")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong secret: status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	resp = del(testSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("correct secret: status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, resp, &body)
	if body.Deleted != 2 {
		t.Errorf("deleted: want 2, got %d", body.Deleted)
	}
}

func TestCleanup_DeletesUnfinished(t *testing.T) {
	f := newTestFixture(t)
	f.startInterview(t)

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/v1/sessions/summer-2026/unfinished", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("X-Admin-Secret", testSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	var body struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, resp, &body)
	if body.Deleted != 2 {
		t.Errorf("deleted: want 2, got %d", body.Deleted)
	}
}

func TestHealthEndpointsRegistered(t *testing.T) {
	f := newTestFixture(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestCorrelationIDHeaderSet(t *testing.T) {
	f := newTestFixture(t)

	resp, err := http.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header should be set by the middleware")
	}
}
