package actions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/json"
)

func TestHTTPBackendList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/actions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"actions":[{"id":"a1","name":"create-repo","description":"d","title":"T","attributes":{"destructive":true,"idempotent":false,"readOnly":false}}]}`))
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, nil, nil)
	acts, err := b.List(context.Background(), &auth.Credential{Token: "tok"})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "a1", acts[0].ID)
	assert.Equal(t, "create-repo", acts[0].Name)
	assert.True(t, acts[0].Attributes.Destructive)
}

func TestHTTPBackendInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/actions/a1/invoke", r.URL.Path)
		var req struct {
			Input json.RawMessage `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, `{"name":"x"}`, string(req.Input))
		_, _ = w.Write([]byte(`{"output":{"url":"https://example.com"}}`))
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, nil, nil)
	out, err := b.Invoke(context.Background(), "a1", json.RawMessage(`{"name":"x"}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com"}`, string(out))
}

func TestHTTPBackendInvokeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such action", http.StatusNotFound)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, nil, nil)
	_, err := b.Invoke(context.Background(), "missing", nil, nil)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ActionID)
}

func TestHTTPBackendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, nil, nil)
	_, err := b.List(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestHTTPBackendExtraHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v1", r.Header.Get("X-Tenant"))
		_, _ = w.Write([]byte(`{"actions":[]}`))
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, map[string]string{"X-Tenant": "v1"}, nil)
	acts, err := b.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, acts)
}
