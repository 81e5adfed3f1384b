package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/json"
)

// statusError carries a non-2xx service response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("actions service error: status %d: %s", e.code, e.body)
}

// HTTPBackend talks to a remote actions service over JSON/HTTP.
type HTTPBackend struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	logger  func(format string, args ...interface{})
}

// NewHTTPBackend creates a backend client for the service at baseURL.
// Extra headers are attached to every request.
func NewHTTPBackend(baseURL string, headers map[string]string, logger func(format string, args ...interface{})) *HTTPBackend {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &HTTPBackend{
		baseURL: baseURL,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type listResponse struct {
	Actions []Action `json:"actions"`
}

// List fetches the catalog visible to the credential.
func (b *HTTPBackend) List(ctx context.Context, cred *auth.Credential) ([]Action, error) {
	var out listResponse
	if err := b.send(ctx, http.MethodGet, "/actions", nil, cred, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

type invokeRequest struct {
	Input json.RawMessage `json:"input"`
}

type invokeResponse struct {
	Output json.RawMessage `json:"output"`
}

// Invoke executes one action by id.
func (b *HTTPBackend) Invoke(ctx context.Context, actionID string, input json.RawMessage, cred *auth.Credential) (json.RawMessage, error) {
	body, err := json.Marshal(invokeRequest{Input: input})
	if err != nil {
		return nil, err
	}
	var out invokeResponse
	path := fmt.Sprintf("/actions/%s/invoke", actionID)
	if err := b.send(ctx, http.MethodPost, path, body, cred, &out); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, &NotFoundError{ActionID: actionID}
		}
		return nil, err
	}
	return out.Output, nil
}

// send issues one request against the service and decodes the response
// into out.
func (b *HTTPBackend) send(ctx context.Context, method, path string, body []byte, cred *auth.Credential, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	if cred != nil && cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		b.logf("actions service error: %s %s -> %s", method, path, resp.Status)
		return &statusError{code: resp.StatusCode, body: string(msg)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *HTTPBackend) logf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger(format, args...)
	}
}
