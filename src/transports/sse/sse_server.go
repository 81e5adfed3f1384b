// Package sse terminates the legacy two-endpoint MCP transport: a
// long-lived server-sent-event stream per connection plus a side-channel
// message endpoint correlated by session id.
package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toolbridge/toolbridge/src/audit"
	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/bridge"
)

// Handler serves the legacy transport's two endpoints over a shared
// session registry.
type Handler struct {
	authn    auth.Authenticator
	handler  *bridge.Handler
	emitter  *audit.Emitter
	registry *bridge.Registry
	timeout  time.Duration
	logger   func(format string, args ...interface{})
}

// NewHandler builds the legacy endpoints over the given registry.
func NewHandler(authn auth.Authenticator, h *bridge.Handler, emitter *audit.Emitter, registry *bridge.Registry, timeout time.Duration, logger func(format string, args ...interface{})) *Handler {
	if emitter == nil {
		emitter = audit.NewEmitter(nil)
	}
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &Handler{
		authn:    authn,
		handler:  h,
		emitter:  emitter,
		registry: registry,
		timeout:  timeout,
		logger:   logger,
	}
}

// streamConn couples one session with its outbound event stream. Writes
// are serialized; dispatches racing the connection teardown are dropped
// once the stream closes.
type streamConn struct {
	sess    *bridge.Session
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
}

func (c *streamConn) SessionID() string { return c.sess.ID() }

// Dispatch processes one side-channel message and forwards any response
// over the event stream.
func (c *streamConn) Dispatch(ctx context.Context, raw []byte) error {
	resp := c.sess.HandleMessage(ctx, raw)
	if resp == nil {
		return nil
	}
	return c.writeEvent("message", resp)
}

func (c *streamConn) writeEvent(event string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("stream closed")
	}
	if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *streamConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// ServeStream handles the GET endpoint: it authenticates, opens the event
// stream and pumps responses until the client disconnects.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	reqCtx := audit.RequestContext{
		Transport:  "sse",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}

	authHandle := h.emitter.Emit(r.Context(), audit.EventAuthAttempt, audit.SeverityMedium, reqCtx, nil)
	cred, err := h.authn.Credentials(r)
	if err != nil {
		authHandle.Fail(err, nil)
		h.connectionError(r, reqCtx, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	authHandle.Success(map[string]any{"principal": cred.Principal.Display()})
	reqCtx.Principal = cred.Principal.Display()

	flusher, ok := w.(http.Flusher)
	if !ok {
		err := fmt.Errorf("response writer does not support streaming")
		h.connectionError(r, reqCtx, err)
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := uuid.NewString()
	reqCtx.SessionID = sessionID
	sess := bridge.NewSession(sessionID, cred, h.handler, reqCtx, h.timeout)
	conn := &streamConn{sess: sess, w: w, flusher: flusher}

	// Registry removal is the session finalizer: whichever exit path
	// runs first makes subsequent side-channel lookups fail before the
	// stream handle can be reused.
	sess.OnClose(func() {
		h.registry.Remove(sessionID)
		conn.close()
	})
	h.registry.Add(conn)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	endpoint := fmt.Sprintf("%s/messages?sessionId=%s", r.URL.Path, sessionID)
	if err := conn.writeEvent("endpoint", []byte(endpoint)); err != nil {
		sess.Close()
		h.connectionError(r, reqCtx, err)
		return
	}

	start := time.Now()
	h.emitter.Emit(r.Context(), audit.EventConnectionEstablished, audit.SeverityLow, reqCtx, map[string]any{
		"session_id": sessionID,
	})

	<-r.Context().Done()

	h.emitter.Emit(r.Context(), audit.EventConnectionClosed, audit.SeverityLow, reqCtx, map[string]any{
		"session_id":  sessionID,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	sess.Close()
}

// ServeMessage handles the POST side channel. The HTTP response carries
// only a transport acknowledgement; protocol responses travel over the
// session's event stream.
func (h *Handler) ServeMessage(w http.ResponseWriter, r *http.Request) {
	reqCtx := audit.RequestContext{
		Transport:  "sse",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.emitter.Emit(r.Context(), audit.EventInvalidSession, audit.SeverityMedium, reqCtx, nil)
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	reqCtx.SessionID = sessionID

	conn, err := h.registry.Lookup(sessionID)
	if err != nil {
		h.emitter.Emit(r.Context(), audit.EventInvalidSession, audit.SeverityMedium, reqCtx, map[string]any{
			"session_id": sessionID,
		})
		http.Error(w, fmt.Sprintf("No transport found for sessionId %q", sessionID), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	go func() {
		if err := conn.Dispatch(context.Background(), body); err != nil {
			h.logger("sse dispatch for session %s failed: %v", sessionID, err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))
}

// connectionError records a failed stream open; the transport's own
// fault handling produces the client-visible response.
func (h *Handler) connectionError(r *http.Request, reqCtx audit.RequestContext, err error) {
	code, _ := bridge.Classify(err)
	handle := h.emitter.Emit(r.Context(), audit.EventConnectionError, audit.SeverityHigh, reqCtx, map[string]any{
		"error_type": bridge.ErrorType(err),
		"code":       code,
	})
	handle.Fail(err, nil)
}
