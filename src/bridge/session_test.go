package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/src/actions"
	"github.com/toolbridge/toolbridge/src/audit"
	"github.com/toolbridge/toolbridge/src/audit/audittest"
	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/json"
)

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func newTestSession(backend *fakeBackend) *Session {
	h := NewHandler(backend, nil)
	return NewSession("sess-1", testCred(), h, audit.RequestContext{}, 0)
}

func decodeResponse(t *testing.T, raw []byte) rpcEnvelope {
	t.Helper()
	require.NotNil(t, raw)
	var env rpcEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "2.0", env.JSONRPC)
	return env
}

func TestSessionInitialize(t *testing.T) {
	sess := newTestSession(&fakeBackend{})
	raw := sess.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	env := decodeResponse(t, raw)
	require.Nil(t, env.Error)

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, protocolVersion, result.ProtocolVersion)
	assert.Equal(t, serverName, result.ServerInfo.Name)
}

func TestSessionToolsList(t *testing.T) {
	sess := newTestSession(&fakeBackend{catalog: sampleCatalog()})
	raw := sess.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	env := decodeResponse(t, raw)
	require.Nil(t, env.Error)

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &result))
	require.Len(t, result.Tools, 2)
	assert.Equal(t, "create-repo", result.Tools[0].Name)
}

func TestSessionUnknownMethod(t *testing.T) {
	sess := newTestSession(&fakeBackend{})
	raw := sess.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`))
	env := decodeResponse(t, raw)
	require.NotNil(t, env.Error)
	assert.Equal(t, -32601, env.Error.Code)
	assert.Contains(t, env.Error.Message, "resources/list")
}

func TestSessionParseError(t *testing.T) {
	sess := newTestSession(&fakeBackend{})
	raw := sess.HandleMessage(context.Background(), []byte(`{not json`))
	env := decodeResponse(t, raw)
	require.NotNil(t, env.Error)
	assert.Equal(t, -32700, env.Error.Code)
}

func TestSessionNotificationHasNoResponse(t *testing.T) {
	sess := newTestSession(&fakeBackend{})
	raw := sess.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, raw)
}

func TestSessionCallMissingName(t *testing.T) {
	sess := newTestSession(&fakeBackend{catalog: sampleCatalog()})
	raw := sess.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{}}`))
	env := decodeResponse(t, raw)
	require.NotNil(t, env.Error)
	assert.Equal(t, -32602, env.Error.Code)
}

// blockingBackend parks every call until its context expires, standing in
// for a stuck actions service.
type blockingBackend struct{}

func (blockingBackend) List(ctx context.Context, _ *auth.Credential) ([]actions.Action, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingBackend) Invoke(ctx context.Context, _ string, _ json.RawMessage, _ *auth.Credential) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSessionTurnTimeoutFailsStuckCall(t *testing.T) {
	rec := audittest.NewRecorder()
	h := NewHandler(blockingBackend{}, audit.NewEmitter(rec))
	sess := NewSession("sess-t", testCred(), h, audit.RequestContext{}, 50*time.Millisecond)

	start := time.Now()
	raw := sess.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"create-repo"}}`))
	elapsed := time.Since(start)

	env := decodeResponse(t, raw)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInternal, env.Error.Code)
	assert.Equal(t, "Internal server error", env.Error.Message)
	assert.Less(t, elapsed, 5*time.Second, "turn must not outlive its timeout by much")

	reqs := rec.ByID(audit.EventToolExecutionRequest)
	require.Len(t, reqs, 1)
	assert.Equal(t, audittest.OutcomeFailure, reqs[0].Outcome())
	assert.Equal(t, 1, reqs[0].Completions())
}

func TestSessionTurnTimeoutFreesSession(t *testing.T) {
	h := NewHandler(blockingBackend{}, nil)
	sess := NewSession("sess-t2", testCred(), h, audit.RequestContext{}, 50*time.Millisecond)

	raw := sess.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	env := decodeResponse(t, raw)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInternal, env.Error.Code)

	// The next turn is served immediately; the stuck one released the
	// session's turn lock when its context expired.
	raw = sess.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"ping"}`))
	env = decodeResponse(t, raw)
	assert.Nil(t, env.Error)
}

func TestSessionCloseRunsFinalizerOnce(t *testing.T) {
	sess := newTestSession(&fakeBackend{})
	closes := 0
	sess.OnClose(func() { closes++ })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, closes)
}

func TestErrorEnvelopeShape(t *testing.T) {
	raw := ErrorEnvelope(CodeMethodNotAllowed, "Method not allowed")
	env := decodeResponse(t, raw)
	assert.Nil(t, env.ID)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeMethodNotAllowed, env.Error.Code)
	assert.Equal(t, "Method not allowed", env.Error.Message)
}
