package main

import (
	"fmt"
	"log/slog"

	"github.com/alecthomas/kong"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"fwd-proxy-go/internal/client"
	"fwd-proxy-go/internal/config"
	"fwd-proxy-go/internal/handler"
	"fwd-proxy-go/internal/logging"
	"fwd-proxy-go/internal/metrics"
	"fwd-proxy-go/internal/rewrite"
	"fwd-proxy-go/internal/server"
	"fwd-proxy-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("fwd-proxy"),
		kong.Description("Forward every inbound request to http://google.com and relay the reply."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(newFxLogger),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			logging.New,
			metrics.New,
			rewrite.Default,
			fx.Annotate(client.NewUpstreamClient, fx.As(new(service.Fetcher))),
			service.NewForwardService,
			handler.NewForwardHandler,
			handler.NewHealthHandler,
			server.New,
		),
		fx.Invoke(warnConfigPermissions, server.Register),
	).Run()
}

// newFxLogger keeps fx's own lifecycle events at debug level.
func newFxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}
