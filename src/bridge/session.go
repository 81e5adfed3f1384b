package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/toolbridge/toolbridge/src/audit"
	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/json"
)

const (
	protocolVersion = "2025-03-26"
	serverName      = "toolbridge"
	serverVersion   = "1.0.0"
)

// DefaultTurnTimeout bounds one RPC turn, including the backend calls it
// makes. Without it a stuck backend call would hold the session and its
// pending audit event open forever.
const DefaultTurnTimeout = 30 * time.Second

// rpcRequest is one inbound JSON-RPC message.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Session binds one connection, one resolved credential and one RPC
// dispatcher for the connection's lifetime. Turns are serialized: the
// legacy transport can deliver overlapping side-channel messages for the
// same session, and audit ordering must match response ordering.
type Session struct {
	id      string
	cred    *auth.Credential
	handler *Handler
	reqCtx  audit.RequestContext
	timeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	onClose   func()
}

// NewSession creates a session for the given connection id and credential.
// A zero timeout falls back to DefaultTurnTimeout.
func NewSession(id string, cred *auth.Credential, handler *Handler, reqCtx audit.RequestContext, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	reqCtx.SessionID = id
	if cred != nil {
		reqCtx.Principal = cred.Principal.Display()
	}
	return &Session{
		id:      id,
		cred:    cred,
		handler: handler,
		reqCtx:  reqCtx,
		timeout: timeout,
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// OnClose registers a finalizer run exactly once when the session closes.
func (s *Session) OnClose(fn func()) { s.onClose = fn }

// Close releases the session. Safe to call from any exit path; the
// finalizer runs at most once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// HandleMessage processes one protocol turn and returns the serialized
// response, or nil when the message was a notification.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return marshalResponse(rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32700, Message: "Parse error"},
		})
	}
	if strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}},
			"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
		}
	case "ping":
		resp.Result = map[string]any{}
	case "tools/list":
		result, err := s.handler.ListTools(ctx, s.cred, s.reqCtx)
		if err != nil {
			resp.Error = classifyRPC(err)
		} else {
			resp.Result = result
		}
	case "tools/call":
		resp = s.handleCall(ctx, req)
	default:
		resp.Error = &rpcError{Code: -32601, Message: fmt.Sprintf("Method not found: %s", req.Method)}
	}
	return marshalResponse(resp)
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Session) handleCall(ctx context.Context, req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		resp.Error = &rpcError{Code: -32602, Message: "Invalid params: tool name is required"}
		return resp
	}
	result, err := s.handler.CallTool(ctx, s.cred, s.reqCtx, params.Name, params.Arguments)
	if err != nil {
		resp.Error = classifyRPC(err)
		return resp
	}
	resp.Result = result
	return resp
}

func classifyRPC(err error) *rpcError {
	code, message := Classify(err)
	return &rpcError{Code: code, Message: message}
}

func marshalResponse(resp rpcResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// The response shape is always marshalable; this guards against
		// an unmarshalable handler result.
		data, _ = json.Marshal(rpcResponse{
			JSONRPC: "2.0",
			ID:      resp.ID,
			Error:   &rpcError{Code: CodeInternal, Message: "Internal server error"},
		})
	}
	return data
}

// ErrorEnvelope serializes a bare protocol error with a null id, for
// transports that must answer before any request was dispatched.
func ErrorEnvelope(code int, message string) []byte {
	data, _ := json.Marshal(rpcResponse{
		JSONRPC: "2.0",
		Error:   &rpcError{Code: code, Message: message},
	})
	return data
}
