// Package audit defines the event contract between the bridge and the
// external audit sink: structured, severity-leveled events created at the
// start of a traceable unit of work and completed exactly once as success
// or failure.
package audit

import (
	"context"
	"strings"
	"unicode"
)

// Severity levels an event can carry.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Canonical event ids emitted by the bridge.
const (
	EventAuthAttempt           = "mcp-auth-attempt"
	EventConnectionEstablished = "mcp-connection-established"
	EventConnectionClosed      = "mcp-connection-closed"
	EventHTTPError             = "mcp-http-error"
	EventMethodNotAllowed      = "mcp-method-not-allowed"
	EventConnectionError       = "mcp-connection-error"
	EventInvalidSession        = "mcp-invalid-session"
	EventToolDiscovery         = "mcp-tool-discovery"
	EventToolExecutionRequest  = "mcp-tool-execution-request"
	EventToolNotFound          = "mcp-tool-not-found"

	// Completion ids: an execution-request handle records its outcome
	// under one of these rather than the originating id.
	EventToolExecutionSuccess = "mcp-tool-execution-success"
	EventToolExecutionFailure = "mcp-tool-execution-failure"
)

// RequestContext is the per-connection metadata attached to every event
// created for that connection.
type RequestContext struct {
	// Transport names the adapter that accepted the connection,
	// "streamable" or "sse".
	Transport string
	// RemoteAddr is the peer address as reported by the HTTP layer.
	RemoteAddr string
	// UserAgent is the client's User-Agent header, if any.
	UserAgent string
	// SessionID is the connection or session identifier, when one has
	// been allocated.
	SessionID string
	// Principal is the display reference of the authenticated principal,
	// empty before authentication completes.
	Principal string
}

// Handle annotates the outcome of a previously created event. At most one
// of Success or Fail may take effect per handle; implementations ignore
// later calls.
type Handle interface {
	Success(metadata map[string]any)
	Fail(err error, metadata map[string]any)
}

// Auditor records events. Implementations own durability and transport of
// the records; the bridge only creates and completes them.
type Auditor interface {
	CreateEvent(ctx context.Context, eventID string, severity Severity, reqCtx RequestContext, metadata map[string]any) Handle
}

// NormalizeEventID kebab-cases an event id and prefixes it with "mcp-"
// when the prefix is missing.
func NormalizeEventID(id string) string {
	var b strings.Builder
	prev := rune(0)
	for _, r := range id {
		switch {
		case r == '_' || r == ' ' || r == '-':
			if prev != '-' && b.Len() > 0 {
				b.WriteRune('-')
				prev = '-'
			}
			continue
		case unicode.IsUpper(r):
			if prev != 0 && prev != '-' && !unicode.IsUpper(prev) {
				b.WriteRune('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
		prev = r
	}
	out := strings.Trim(b.String(), "-")
	if !strings.HasPrefix(out, "mcp-") {
		out = "mcp-" + out
	}
	return out
}

// Emitter wraps an Auditor and normalizes event ids before emission.
type Emitter struct {
	auditor Auditor
}

// NewEmitter wraps the given auditor. A nil auditor yields an emitter that
// discards everything.
func NewEmitter(a Auditor) *Emitter {
	if a == nil {
		a = NopAuditor{}
	}
	return &Emitter{auditor: a}
}

// Emit creates an event with a normalized id and returns its handle.
func (e *Emitter) Emit(ctx context.Context, eventID string, severity Severity, reqCtx RequestContext, metadata map[string]any) Handle {
	return e.auditor.CreateEvent(ctx, NormalizeEventID(eventID), severity, reqCtx, metadata)
}

// NopAuditor discards all events.
type NopAuditor struct{}

func (NopAuditor) CreateEvent(context.Context, string, Severity, RequestContext, map[string]any) Handle {
	return nopHandle{}
}

type nopHandle struct{}

func (nopHandle) Success(map[string]any)     {}
func (nopHandle) Fail(error, map[string]any) {}
