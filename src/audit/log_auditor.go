package audit

import (
	"context"
	"log/slog"
	"sync"
)

// LogAuditor writes events to a structured logger. It is the default sink
// for deployments that have no dedicated audit pipeline; completions are
// guarded so that a handle records at most one outcome.
type LogAuditor struct {
	logger *slog.Logger
}

// NewLogAuditor builds a LogAuditor over the given logger. A nil logger
// falls back to slog.Default.
func NewLogAuditor(logger *slog.Logger) *LogAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAuditor{logger: logger}
}

func (a *LogAuditor) CreateEvent(ctx context.Context, eventID string, severity Severity, reqCtx RequestContext, metadata map[string]any) Handle {
	logger := a.logger.With(
		"transport", reqCtx.Transport,
		"remote_addr", reqCtx.RemoteAddr,
		"session_id", reqCtx.SessionID,
		"principal", reqCtx.Principal,
	)
	args := append(attrs(metadata), slog.String("event", eventID))
	logger.Log(ctx, severityLevel(severity), "audit event", args...)
	return &logHandle{ctx: ctx, logger: logger, eventID: eventID, severity: severity}
}

type logHandle struct {
	ctx      context.Context
	logger   *slog.Logger
	eventID  string
	severity Severity
	once     sync.Once
}

func (h *logHandle) Success(metadata map[string]any) {
	h.once.Do(func() {
		args := append(attrs(metadata), slog.String("event", completionID(h.eventID, true)))
		h.logger.Log(h.ctx, severityLevel(h.severity), "audit event succeeded", args...)
	})
}

func (h *logHandle) Fail(err error, metadata map[string]any) {
	h.once.Do(func() {
		args := append(attrs(metadata), slog.String("event", completionID(h.eventID, false)))
		if err != nil {
			args = append(args, slog.String("error", err.Error()))
		}
		h.logger.Log(h.ctx, slog.LevelError, "audit event failed", args...)
	})
}

// completionID maps an event id to the id its completion is recorded
// under. Tool execution requests complete under the canonical outcome
// ids; every other event completes under its own id.
func completionID(eventID string, success bool) string {
	if eventID == EventToolExecutionRequest {
		if success {
			return EventToolExecutionSuccess
		}
		return EventToolExecutionFailure
	}
	return eventID
}

func severityLevel(s Severity) slog.Level {
	switch s {
	case SeverityLow:
		return slog.LevelDebug
	case SeverityMedium:
		return slog.LevelInfo
	case SeverityHigh:
		return slog.LevelWarn
	case SeverityCritical:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func attrs(metadata map[string]any) []any {
	args := make([]any, 0, len(metadata)+2)
	for k, v := range metadata {
		args = append(args, slog.Any(k, v))
	}
	return args
}
