package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dotsetgreg/dotrecall/pkg/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *memory.Service) {
	t.Helper()
	reg := prometheus.NewRegistry()
	svc, err := memory.NewService(context.Background(), memory.Config{
		Workspace:         t.TempDir(),
		UserID:            "u1",
		RecognizerEnabled: true,
		FuzzyMatch:        true,
		Backend:           memory.BackendNone,
		Registerer:        reg,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return New(svc, reg), svc
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestServer_MessageAndQuery(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/memory/message", `{"content":"I need to meet with Jon next week about the project"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	res := decode[memory.ProcessResult](t, rec)
	assert.Equal(t, memory.IntentScheduleMeeting, res.Intent)
	require.Len(t, res.ContactUpdates, 1)
	assert.Equal(t, "Jon", res.ContactUpdates[0].Name)

	rec = do(t, s, http.MethodPost, "/api/memory/query", `{"question":"Did Jon send his address?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ans := decode[memory.Answer](t, rec)
	assert.Equal(t, memory.QueryInformationCheck, ans.QueryType)
	assert.Equal(t, "No, Jon hasn't sent their address yet", ans.Answer)
	require.NotNil(t, ans.Found)
	assert.False(t, *ans.Found)
}

func TestServer_RejectsBadBodies(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		path string
		body string
	}{
		{"/api/memory/message", `{"content":"  "}`},
		{"/api/memory/message", `not json`},
		{"/api/memory/message", `{"content":"hi","extra":1}`},
		{"/api/memory/query", `{"question":""}`},
	}
	for _, tc := range cases {
		rec := do(t, s, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%s %s", tc.path, tc.body)
	}
}

func TestServer_ContextLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/memory/context", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No active context", decode[contextResponse](t, rec).Summary)

	do(t, s, http.MethodPost, "/api/memory/message", `{"content":"lunch with Sarah","speaker":"user"}`)
	do(t, s, http.MethodPost, "/api/memory/message", `{"content":"booked for noon","speaker":"agent"}`)

	got := decode[contextResponse](t, do(t, s, http.MethodGet, "/api/memory/context", ""))
	require.Len(t, got.Messages, 2)
	assert.Equal(t, memory.SpeakerAgent, got.Messages[1].Speaker)
	assert.Contains(t, got.Summary, "Recent conversation (2 messages)")

	rec = do(t, s, http.MethodDelete, "/api/memory/context", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	got = decode[contextResponse](t, do(t, s, http.MethodGet, "/api/memory/context", ""))
	assert.Empty(t, got.Messages)
}

func TestServer_Threads(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/memory/threads", `{"topic":"project kickoff"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	info := decode[memory.ThreadInfo](t, rec)
	assert.Equal(t, "project kickoff", info.Topic)
	assert.True(t, info.IsActive)

	do(t, s, http.MethodPost, "/api/memory/message", `{"content":"agenda is ready"}`)

	th := decode[memory.Thread](t, do(t, s, http.MethodGet, "/api/memory/threads/"+info.ID, ""))
	require.Len(t, th.Messages, 1)

	list := decode[[]memory.ThreadInfo](t, do(t, s, http.MethodGet, "/api/memory/threads", ""))
	require.NotEmpty(t, list)

	rec = do(t, s, http.MethodDelete, "/api/memory/threads/"+info.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[memory.ThreadInfo](t, rec).IsActive)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/memory/threads/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/memory/threads/missing", "").Code)

	rec = do(t, s, http.MethodPost, "/api/memory/threads", "")
	assert.Equal(t, http.StatusCreated, rec.Code, "topic is optional")
}

func TestServer_NewThreadChunkedBody(t *testing.T) {
	s, _ := newTestServer(t)

	for _, tc := range []struct {
		body  string
		topic string
	}{
		{body: "", topic: ""},
		{body: `{"topic":"streamed"}`, topic: "streamed"},
	} {
		// Wrapping the reader hides its length, as with a chunked upload.
		req := httptest.NewRequest(http.MethodPost, "/api/memory/threads", io.NopCloser(strings.NewReader(tc.body)))
		require.Equal(t, int64(-1), req.ContentLength)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, tc.topic, decode[memory.ThreadInfo](t, rec).Topic)
	}

	rec := do(t, s, http.MethodPost, "/api/memory/threads", `{"topic":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Contacts(t *testing.T) {
	s, svc := newTestServer(t)
	do(t, s, http.MethodPost, "/api/memory/message", `{"content":"Jon emailed me from jon@example.com"}`)

	found := decode[[]memory.Contact](t, do(t, s, http.MethodGet, "/api/contacts/search?q=jon", ""))
	require.Len(t, found, 1)
	id := found[0].ID

	rec := do(t, s, http.MethodPost, "/api/contacts/"+id+"/notes", `{"note":"prefers mornings"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"prefers mornings"}, decode[memory.Contact](t, rec).Notes)

	rec = do(t, s, http.MethodGet, "/api/contacts/"+id+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[memory.ContactHistory](t, rec)
	assert.Equal(t, 1, h.InteractionCount)
	assert.Equal(t, []string{"prefers mornings"}, h.Notes)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/contacts/nope/history", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/contacts/nope/notes", `{"note":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/contacts/"+id+"/notes", `{"note":""}`).Code)

	empty := decode[[]memory.Contact](t, do(t, s, http.MethodGet, "/api/contacts/search?q=zzz", ""))
	assert.Empty(t, empty)
	assert.Equal(t, 1, svc.System().Contacts().Len())
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/memory/message", `{"content":"Jon called"}`)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", health["status"])

	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dotrecall_")
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	require.NoError(t, <-done)
}
