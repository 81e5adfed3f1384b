// Command toolbridge runs the MCP action bridge: an HTTP server exposing
// an external action catalog as MCP tools over the streamable and legacy
// SSE transports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/toolbridge/toolbridge/src/actions"
	"github.com/toolbridge/toolbridge/src/audit"
	"github.com/toolbridge/toolbridge/src/auth"
	"github.com/toolbridge/toolbridge/src/config"
	"github.com/toolbridge/toolbridge/src/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if cfg.BackendURL == "" {
		logger.Error("backend_url is required")
		os.Exit(1)
	}

	logf := func(format string, args ...interface{}) {
		logger.Info(fmt.Sprintf(format, args...))
	}

	tokens := make(map[string]auth.Principal, len(cfg.Tokens))
	for token, subject := range cfg.Tokens {
		kind := auth.UserPrincipal
		if subject == "" {
			kind = auth.ServicePrincipal
		}
		tokens[token] = auth.Principal{Kind: kind, Subject: subject}
	}

	srv := server.New(
		auth.NewTokenAuthenticator(tokens),
		actions.NewHTTPBackend(cfg.BackendURL, nil, logf),
		audit.NewLogAuditor(logger),
		server.Options{
			Addr:           cfg.Addr,
			StreamablePath: cfg.StreamablePath,
			SSEPath:        cfg.SSEPath,
			TurnTimeout:    cfg.TurnTimeout(),
			Logger:         logf,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("toolbridge starting", "addr", cfg.Addr,
		"streamable_path", cfg.StreamablePath, "sse_path", cfg.SSEPath)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
