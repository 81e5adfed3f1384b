package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolbridge/toolbridge/src/actions"
	"github.com/toolbridge/toolbridge/src/audit"
	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/json"
)

// Handler implements the two RPC methods against the actions backend.
type Handler struct {
	backend actions.Backend
	emitter *audit.Emitter
}

// NewHandler builds a Handler over the given backend and audit emitter.
func NewHandler(backend actions.Backend, emitter *audit.Emitter) *Handler {
	if emitter == nil {
		emitter = audit.NewEmitter(nil)
	}
	return &Handler{backend: backend, emitter: emitter}
}

// ListTools fetches the catalog currently visible to the credential and
// projects each action into protocol vocabulary. Always a fresh backend
// call; catalogs are never cached across turns.
func (h *Handler) ListTools(ctx context.Context, cred *auth.Credential, reqCtx audit.RequestContext) (*mcp.ListToolsResult, error) {
	acts, err := h.backend.List(ctx, cred)
	if err != nil {
		return nil, InternalError(err)
	}
	tools := make([]mcp.Tool, 0, len(acts))
	for _, act := range acts {
		tools = append(tools, projectTool(act))
	}
	h.emitter.Emit(ctx, audit.EventToolDiscovery, audit.SeverityLow, reqCtx, map[string]any{
		"tool_count": len(tools),
	})
	return &mcp.ListToolsResult{Tools: tools}, nil
}

// projectTool maps one action onto a tool descriptor. The descriptor name
// must stay equal to the action name: it is the invocation key. No output
// schema is advertised; the protocol has no slot for one here.
func projectTool(act actions.Action) mcp.Tool {
	tool := mcp.Tool{
		Name:        act.Name,
		Description: act.Description,
		Annotations: mcp.ToolAnnotation{
			Title:           act.Title,
			ReadOnlyHint:    mcp.ToBoolPtr(act.Attributes.ReadOnly),
			DestructiveHint: mcp.ToBoolPtr(act.Attributes.Destructive),
			IdempotentHint:  mcp.ToBoolPtr(act.Attributes.Idempotent),
			OpenWorldHint:   mcp.ToBoolPtr(false),
		},
	}
	if len(act.Schema.Input) > 0 {
		tool.RawInputSchema = []byte(act.Schema.Input)
	} else {
		tool.InputSchema = mcp.ToolInputSchema{Type: "object"}
	}
	return tool
}

// CallTool resolves a tool name against the current catalog and invokes
// the matching action. Exactly one audit completion happens per call.
func (h *Handler) CallTool(ctx context.Context, cred *auth.Credential, reqCtx audit.RequestContext, name string, args map[string]any) (*mcp.CallToolResult, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return nil, InternalError(err)
	}

	start := time.Now()
	handle := h.emitter.Emit(ctx, audit.EventToolExecutionRequest, audit.SeverityMedium, reqCtx, map[string]any{
		"tool":             name,
		"input_size_bytes": len(input),
	})

	output, err := h.invoke(ctx, cred, reqCtx, name, input)
	if err != nil {
		handle.Fail(err, map[string]any{
			"tool":        name,
			"error_type":  ErrorType(err),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, err
	}

	handle.Success(map[string]any{
		"tool":              name,
		"duration_ms":       time.Since(start).Milliseconds(),
		"output_size_bytes": len(output),
	})
	return wrapResult(output), nil
}

// invoke re-lists the catalog, resolves the name and executes the action.
func (h *Handler) invoke(ctx context.Context, cred *auth.Credential, reqCtx audit.RequestContext, name string, input json.RawMessage) (json.RawMessage, error) {
	acts, err := h.backend.List(ctx, cred)
	if err != nil {
		return nil, InternalError(err)
	}
	var target *actions.Action
	for i := range acts {
		if acts[i].Name == name {
			target = &acts[i]
			break
		}
	}
	if target == nil {
		h.emitter.Emit(ctx, audit.EventToolNotFound, audit.SeverityMedium, reqCtx, map[string]any{
			"tool": name,
		})
		return nil, NotFoundError(name)
	}
	output, err := h.backend.Invoke(ctx, target.ID, input, cred)
	if err != nil {
		var nf *actions.NotFoundError
		if errors.As(err, &nf) {
			return nil, NotFoundError(name)
		}
		return nil, InternalError(err)
	}
	return output, nil
}

// wrapResult renders the backend output as a single fenced-JSON text
// block. Structured tool output is not universally supported by clients
// yet, so text is the interoperable representation.
func wrapResult(output json.RawMessage) *mcp.CallToolResult {
	return mcp.NewToolResultText(fmt.Sprintf("```json\n%s\n```", string(output)))
}
