// Package streamable terminates the stateless MCP HTTP transport: one
// POST exchange is one protocol turn, with no server-held session state
// across calls.
package streamable

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolbridge/toolbridge/src/audit"
	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/bridge"
)

// Handler serves the stateless transport endpoint.
type Handler struct {
	authn   auth.Authenticator
	handler *bridge.Handler
	emitter *audit.Emitter
	timeout time.Duration
	logger  func(format string, args ...interface{})
}

// NewHandler builds the stateless endpoint. A zero timeout falls back to
// bridge.DefaultTurnTimeout.
func NewHandler(authn auth.Authenticator, h *bridge.Handler, emitter *audit.Emitter, timeout time.Duration, logger func(format string, args ...interface{})) *Handler {
	if emitter == nil {
		emitter = audit.NewEmitter(nil)
	}
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &Handler{
		authn:   authn,
		handler: h,
		emitter: emitter,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqCtx := audit.RequestContext{
		Transport:  "streamable",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}

	if r.Method != http.MethodPost {
		// No auth, no session: the endpoint simply does not serve
		// these methods.
		h.emitter.Emit(r.Context(), audit.EventMethodNotAllowed, audit.SeverityLow, reqCtx, map[string]any{
			"method": r.Method,
		})
		writeEnvelope(w, http.StatusMethodNotAllowed, bridge.CodeMethodNotAllowed, "Method not allowed")
		return
	}

	authHandle := h.emitter.Emit(r.Context(), audit.EventAuthAttempt, audit.SeverityMedium, reqCtx, nil)
	cred, err := h.authn.Credentials(r)
	if err != nil {
		authHandle.Fail(err, nil)
		// The request never got the chance to be answered at the
		// protocol level.
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	authHandle.Success(map[string]any{"principal": cred.Principal.Display()})

	// Random id for audit correlation only; the client never sees or
	// resends it.
	connID := uuid.NewString()
	sess := bridge.NewSession(connID, cred, h.handler, reqCtx, h.timeout)
	reqCtx.SessionID = connID
	reqCtx.Principal = cred.Principal.Display()

	start := time.Now()
	h.emitter.Emit(r.Context(), audit.EventConnectionEstablished, audit.SeverityLow, reqCtx, nil)
	defer func() {
		sess.Close()
		h.emitter.Emit(r.Context(), audit.EventConnectionClosed, audit.SeverityLow, reqCtx, map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}()

	wrote := false
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			h.reportError(r, reqCtx, err, wrote, w)
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.reportError(r, reqCtx, err, wrote, w)
		return
	}

	resp := sess.HandleMessage(r.Context(), body)
	if resp == nil {
		// Notification: acknowledge at the transport level only.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if acceptsEventStream(r) {
		// Clients that accept an event stream get the response framed
		// as a single message event; the content type advertises the
		// streaming capability.
		w.Header().Set("Content-Type", "text/event-stream")
		wrote = true
		if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", resp); err != nil {
			h.reportError(r, reqCtx, err, wrote, w)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	wrote = true
	if _, err := w.Write(resp); err != nil {
		h.reportError(r, reqCtx, err, wrote, w)
	}
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// reportError records an unexpected failure and, when nothing has been
// written yet, answers with the generic internal-error envelope. Once
// bytes are committed the audit trail is the only report.
func (h *Handler) reportError(r *http.Request, reqCtx audit.RequestContext, err error, wrote bool, w http.ResponseWriter) {
	code, message := bridge.Classify(err)
	handle := h.emitter.Emit(r.Context(), audit.EventHTTPError, audit.SeverityHigh, reqCtx, map[string]any{
		"error_type": bridge.ErrorType(err),
		"code":       code,
	})
	handle.Fail(err, nil)
	h.logger("streamable exchange failed: %v", err)
	if !wrote {
		writeEnvelope(w, http.StatusInternalServerError, code, message)
	}
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bridge.ErrorEnvelope(code, message))
}
