package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/db"
	"github.com/veritest/veritest/internal/events"
	"github.com/veritest/veritest/internal/model"
	"github.com/veritest/veritest/internal/pipeline"
)

type stubReasoner struct{}

func (stubReasoner) AnalyzeRequirements(ctx context.Context, input model.Input, mode model.Mode) (string, error) {
	return "Scenario: basics", nil
}

func (stubReasoner) GenerateCandidate(ctx context.Context, scenarios string, input model.Input, mode model.Mode) (model.Artifact, error) {
	return model.Artifact{Implementation: "def f():\n    return 1", Tests: "def test_f():\n    assert f() == 1"}, nil
}

func (stubReasoner) RegenerateTests(ctx context.Context, scenarios string, input model.Input, artifact model.Artifact, result model.SandboxResult) (string, error) {
	return artifact.Tests, nil
}

func (stubReasoner) Classify(ctx context.Context, result model.SandboxResult, artifact model.Artifact, input model.Input) (model.Classification, error) {
	return model.Classification{Kind: model.KindCodeBug, Confidence: 90, Rationale: "returns the wrong constant"}, nil
}

type stubExecutor struct {
	result model.SandboxResult
}

func (e stubExecutor) Run(ctx context.Context, artifact model.Artifact, timeout time.Duration) (model.SandboxResult, error) {
	return e.result, nil
}

func newTestServer(t *testing.T, exec stubExecutor) (*httptest.Server, *checkpoint.Store) {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "veritest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	store := checkpoint.NewStore(conn)
	broker := events.NewBroker()
	orch := pipeline.New(store, exec, stubReasoner{}, broker, time.Second)
	srv := httptest.NewServer(NewServer(store, orch, broker).Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor{result: model.SandboxResult{Passed: 1}})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateRejectsEmptyRequirement(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor{result: model.SandboxResult{Passed: 1}})

	resp := postJSON(t, srv.URL+"/api/generate", startRequest{Requirement: "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTestModeRequiresFunction(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor{result: model.SandboxResult{Passed: 1}})

	resp := postJSON(t, srv.URL+"/api/test", startRequest{Requirement: "adds two numbers"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateRunsSessionToCompletion(t *testing.T) {
	srv, store := newTestServer(t, stubExecutor{result: model.SandboxResult{Passed: 2}})

	resp := postJSON(t, srv.URL+"/api/generate", startRequest{Requirement: "a function that adds two numbers"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted startResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	require.NotEmpty(t, accepted.SessionID)

	require.Eventually(t, func() bool {
		cp, err := store.Load(context.Background(), accepted.SessionID)
		return err == nil && cp.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	detail, err := http.Get(srv.URL + "/api/sessions/" + accepted.SessionID)
	require.NoError(t, err)
	defer func() { _ = detail.Body.Close() }()
	require.Equal(t, http.StatusOK, detail.StatusCode)

	var body sessionDetail
	require.NoError(t, json.NewDecoder(detail.Body).Decode(&body))
	assert.Equal(t, model.StatusSuccess, body.Status)
	assert.False(t, body.Resumable)
	assert.NotEmpty(t, body.Artifact.Tests)
}

func TestResumeConflictsAndNotFound(t *testing.T) {
	srv, store := newTestServer(t, stubExecutor{result: model.SandboxResult{Passed: 2}})

	resp := postJSON(t, srv.URL+"/api/generate", startRequest{Requirement: "anything"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted startResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))

	require.Eventually(t, func() bool {
		cp, err := store.Load(context.Background(), accepted.SessionID)
		return err == nil && cp.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	// A session that already succeeded cannot be resumed.
	conflict := postJSON(t, srv.URL+"/api/sessions/"+accepted.SessionID+"/resume", resumeRequest{})
	assert.Equal(t, http.StatusConflict, conflict.StatusCode)

	missing := postJSON(t, srv.URL+"/api/sessions/nope/resume", resumeRequest{})
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestListSessions(t *testing.T) {
	srv, store := newTestServer(t, stubExecutor{result: model.SandboxResult{Passed: 2}})

	resp := postJSON(t, srv.URL+"/api/generate", startRequest{Requirement: "anything"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted startResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))

	require.Eventually(t, func() bool {
		cp, err := store.Load(context.Background(), accepted.SessionID)
		return err == nil && cp.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	list, err := http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	defer func() { _ = list.Body.Close() }()

	var sessions []sessionSummary
	require.NoError(t, json.NewDecoder(list.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, accepted.SessionID, sessions[0].SessionID)
	assert.Equal(t, model.ModeGenerate, sessions[0].Mode)
}
