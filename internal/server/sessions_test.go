package server

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	appErrors "resumerecon/internal/errors"
	"resumerecon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionBody = `{
  "suggestions": [
    {"id": "s1", "section": "summary", "type": "replace", "original": "Dev", "suggested": "Senior engineer"},
    {"id": "k1", "section": "skills", "type": "addition", "suggested": ["Go", "SQL"]},
    {"id": "k2", "section": "skills", "type": "addition", "suggested": "Kubernetes"}
  ]
}`

func openSession(t *testing.T, ts *testServer) SessionView {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/sessions", sessionBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decode[SessionView](t, resp)
	require.NotEmpty(t, view.ID)
	return view
}

func TestSessionLifecycle(t *testing.T) {
	backend := &fakeBackend{}
	ts := newTestServer(t, func(s *Server, _ *ServerConfig) { s.Backend = backend })

	view := openSession(t, ts)
	assert.Len(t, view.Suggestions, 3)
	assert.Empty(t, view.AcceptedIDs)
	assert.Empty(t, view.Preview)

	resp := ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/accept", `{"accept": ["s1", "k1"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decode[SessionView](t, resp)
	assert.Equal(t, []string{"k1", "s1"}, view.AcceptedIDs)
	assert.Contains(t, view.Preview, "SUMMARY:\nSenior engineer")
	assert.Contains(t, view.Preview, "SKILLS:\nGo\nSQL")

	resp = ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/edit", `{"id": "s1", "text": "Staff engineer"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decode[SessionView](t, resp)
	assert.Equal(t, types.EditedText{"s1": "Staff engineer"}, view.EditedText)
	assert.Contains(t, view.Preview, "SUMMARY:\nStaff engineer")

	resp = ts.do(t, http.MethodGet, "/sessions/"+view.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, view.Preview, decode[SessionView](t, resp).Preview)

	resp = ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/apply",
		`{"originalResumeId": "r-42", "title": "Platform role", "improvementScore": 80}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	applied := decode[ApplyResponse](t, resp)
	require.NotNil(t, applied.Resume)
	assert.Equal(t, "resume-1", applied.Resume.ID)

	require.Len(t, backend.saved, 1)
	saved := backend.saved[0]
	assert.Equal(t, "r-42", saved.OriginalResumeID)
	assert.Equal(t, "Platform role", saved.Title)
	assert.Contains(t, saved.FinalResumeText, "SUMMARY:\nStaff engineer")
	assert.Equal(t, "Staff engineer", saved.AcceptedSuggestions["summary"])
	assert.NotContains(t, saved.FinalResumeText, "Kubernetes")

	resp = ts.do(t, http.MethodGet, "/sessions/"+view.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, appErrors.ErrCodeSessionNotFound, decode[ErrorResponse](t, resp).Code)
}

func TestSessionAcceptRules(t *testing.T) {
	ts := newTestServer(t)
	view := openSession(t, ts)
	path := "/sessions/" + view.ID + "/accept"

	tests := []struct {
		name   string
		body   string
		status int
		want   []string
	}{
		{"accept all", `{"acceptAll": true}`, http.StatusOK, []string{"k1", "k2", "s1"}},
		{"reject one", `{"reject": ["k2"]}`, http.StatusOK, []string{"k1", "s1"}},
		{"reject wins within one request", `{"accept": ["k2"], "reject": ["k2"]}`, http.StatusOK, []string{"k1", "s1"}},
		{"unknown id changes nothing", `{"accept": ["nope"], "reject": ["s1"]}`, http.StatusBadRequest, nil},
		{"reject all then accept", `{"rejectAll": true, "accept": ["k2"]}`, http.StatusOK, []string{"k2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, path, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusOK {
				assert.Equal(t, appErrors.ErrCodeUnknownID, decode[ErrorResponse](t, resp).Code)
				session, ok := ts.Sessions.Get(view.ID)
				require.True(t, ok)
				assert.True(t, session.Accepted.Has("s1"), "failed request must not mutate state")
				return
			}
			assert.Equal(t, tt.want, decode[SessionView](t, resp).AcceptedIDs)
		})
	}
}

func TestSessionEditClearAndUnknown(t *testing.T) {
	ts := newTestServer(t)
	view := openSession(t, ts)

	resp := ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/edit", `{"id": "k2", "text": "Helm"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.EditedText{"k2": "Helm"}, decode[SessionView](t, resp).EditedText)

	resp = ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/edit", `{"id": "k2", "text": null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[SessionView](t, resp).EditedText)

	resp = ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/edit", `{"id": "ghost", "text": "x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionApplyFailures(t *testing.T) {
	t.Run("no backend", func(t *testing.T) {
		ts := newTestServer(t)
		view := openSession(t, ts)
		resp := ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/apply", `{"originalResumeId": "r", "title": "t"}`)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("nothing accepted", func(t *testing.T) {
		ts := newTestServer(t, func(s *Server, _ *ServerConfig) { s.Backend = &fakeBackend{} })
		view := openSession(t, ts)
		resp := ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/apply", `{"originalResumeId": "r", "title": "t"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("score out of range", func(t *testing.T) {
		ts := newTestServer(t, func(s *Server, _ *ServerConfig) { s.Backend = &fakeBackend{} })
		view := openSession(t, ts)
		resp := ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/apply", `{"originalResumeId": "r", "title": "t", "improvementScore": 120}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("backend failure keeps the session", func(t *testing.T) {
		backend := &fakeBackend{}
		backend.fail(appErrors.NewBackendError(appErrors.ErrCodeBackendFailed, "backend returned 500", nil))
		ts := newTestServer(t, func(s *Server, _ *ServerConfig) { s.Backend = backend })
		view := openSession(t, ts)
		ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/accept", `{"acceptAll": true}`)

		resp := ts.do(t, http.MethodPost, "/sessions/"+view.ID+"/apply", `{"originalResumeId": "r", "title": "t"}`)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

		resp = ts.do(t, http.MethodGet, "/sessions/"+view.ID, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestSessionDiscard(t *testing.T) {
	ts := newTestServer(t)
	view := openSession(t, ts)

	resp := ts.do(t, http.MethodDelete, "/sessions/"+view.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/sessions/"+view.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/sessions", `{"suggestions": []}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionStore(t *testing.T) {
	t.Run("expiry notifies only open sessions", func(t *testing.T) {
		store := NewSessionStore(20*time.Millisecond, 5*time.Millisecond)
		var expired atomic.Int32
		store.OnExpired(func(string) { expired.Add(1) })

		open := store.Create([]types.Suggestion{{ID: "a"}}, nil, nil)
		closed := store.Create([]types.Suggestion{{ID: "b"}}, nil, nil)
		store.Close(closed)

		assert.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, 5*time.Millisecond)
		_, ok := store.Get(open.ID)
		assert.False(t, ok)
		assert.Zero(t, store.Count())
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		store := NewSessionStore(0, time.Minute)
		rs := store.Create(nil, types.NewAcceptedSet("x"), nil)
		got, ok := store.Get(rs.ID)
		require.True(t, ok)
		assert.Same(t, rs, got)
		assert.True(t, got.Accepted.Has("x"))
		assert.NotNil(t, got.Edited)
	})

	t.Run("snapshot is detached", func(t *testing.T) {
		store := NewSessionStore(time.Minute, time.Minute)
		rs := store.Create([]types.Suggestion{{ID: "a"}}, nil, nil)
		_, accepted, _ := rs.Snapshot()
		accepted.Add("a")
		assert.False(t, rs.Accepted.Has("a"))
	})
}
