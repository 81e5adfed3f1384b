// Package actions defines the contract between the bridge and the external
// action catalog/execution service, plus an HTTP client implementation of it.
package actions

import (
	"context"
	"fmt"

	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/json"
)

// Schema carries the JSON schemas advertised for an action. Either side may
// be empty when the service declares none.
type Schema struct {
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// Attributes are the behavioral hints an action declares about itself.
type Attributes struct {
	Destructive bool `json:"destructive"`
	Idempotent  bool `json:"idempotent"`
	ReadOnly    bool `json:"readOnly"`
}

// Action is one invocable entry in the external catalog.
type Action struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Title       string     `json:"title"`
	Schema      Schema     `json:"schema"`
	Attributes  Attributes `json:"attributes"`
}

// Backend is the bridge's view of the actions service. Both operations are
// scoped to the credential: the accessible catalog can differ per caller
// and can change between calls.
type Backend interface {
	// List returns the actions the credential may currently invoke.
	List(ctx context.Context, cred *auth.Credential) ([]Action, error)

	// Invoke executes the action identified by actionID with the given
	// JSON input and returns the raw JSON output.
	Invoke(ctx context.Context, actionID string, input json.RawMessage, cred *auth.Credential) (json.RawMessage, error)
}

// NotFoundError reports an action id that the service refused to resolve.
type NotFoundError struct {
	ActionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("action not found: %s", e.ActionID)
}
