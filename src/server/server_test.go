package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/src/actions"
	"github.com/toolbridge/toolbridge/src/audit/audittest"
	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/json"
)

type fakeBackend struct{}

func (fakeBackend) List(context.Context, *auth.Credential) ([]actions.Action, error) {
	return []actions.Action{{ID: "a1", Name: "ping-service"}}, nil
}

func (fakeBackend) Invoke(context.Context, string, json.RawMessage, *auth.Credential) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	authn := auth.NewTokenAuthenticator(map[string]auth.Principal{
		"secret": {Kind: auth.UserPrincipal, Subject: "octocat"},
	})
	return New(authn, fakeBackend{}, audittest.NewRecorder(), Options{})
}

func TestRoutingStreamablePost(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ping-service")
}

func TestRoutingStreamableGetRejected(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "-32000")
}

func TestRoutingMessagesRequiresSession(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sse/messages", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "sessionId is required", strings.TrimSpace(w.Body.String()))
}

func TestPathNormalization(t *testing.T) {
	var opts Options
	opts.StreamablePath = "mcp/"
	opts.SSEPath = "events"
	opts.applyDefaults()
	assert.Equal(t, "/mcp", opts.StreamablePath)
	assert.Equal(t, "/events", opts.SSEPath)
}
