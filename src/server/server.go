// Package server wires the transports, handler and registry into one HTTP
// surface and owns their process-lifetime resources.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/toolbridge/toolbridge/src/actions"
	"github.com/toolbridge/toolbridge/src/audit"
	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/bridge"
	"github.com/toolbridge/toolbridge/src/transports/sse"
	"github.com/toolbridge/toolbridge/src/transports/streamable"
)

// Options configures the HTTP surface.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// StreamablePath is the stateless endpoint path. Default "/mcp".
	StreamablePath string
	// SSEPath is the legacy stream endpoint path; the side channel lives
	// at SSEPath + "/messages". Default "/sse".
	SSEPath string
	// TurnTimeout bounds one RPC turn including backend calls.
	TurnTimeout time.Duration
	// Logger receives transport-level diagnostics.
	Logger func(format string, args ...interface{})
}

func (o *Options) applyDefaults() {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if o.StreamablePath == "" {
		o.StreamablePath = "/mcp"
	}
	o.StreamablePath = "/" + strings.Trim(o.StreamablePath, "/")
	if o.SSEPath == "" {
		o.SSEPath = "/sse"
	}
	o.SSEPath = "/" + strings.Trim(o.SSEPath, "/")
	if o.Logger == nil {
		o.Logger = func(string, ...interface{}) {}
	}
}

// Server is the protocol bridge process: both transport adapters over one
// shared registry and one actions backend.
type Server struct {
	opts     Options
	registry *bridge.Registry
	mux      *http.ServeMux
}

// New assembles a Server from its collaborators.
func New(authn auth.Authenticator, backend actions.Backend, auditor audit.Auditor, opts Options) *Server {
	opts.applyDefaults()

	emitter := audit.NewEmitter(auditor)
	handler := bridge.NewHandler(backend, emitter)
	registry := bridge.NewRegistry()

	streamableHandler := streamable.NewHandler(authn, handler, emitter, opts.TurnTimeout, opts.Logger)
	sseHandler := sse.NewHandler(authn, handler, emitter, registry, opts.TurnTimeout, opts.Logger)

	mux := http.NewServeMux()
	mux.Handle(opts.StreamablePath, streamableHandler)
	mux.HandleFunc(opts.SSEPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sseHandler.ServeStream(w, r)
	})
	mux.HandleFunc(opts.SSEPath+"/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sseHandler.ServeMessage(w, r)
	})

	return &Server{opts: opts, registry: registry, mux: mux}
}

// Handler exposes the composed HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Registry exposes the legacy-transport session registry.
func (s *Server) Registry() *bridge.Registry { return s.registry }

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.opts.Addr,
		Handler: s.mux,
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		close(done)
	}()

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
