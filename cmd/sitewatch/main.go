package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/deusflow/sitewatch/internal/app"
	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "sitewatch",
		Usage: "Watch web pages and post new content to a Telegram chat",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Sources file (default: $SOURCES_FILE or configs/sources.yaml)"},
			&cli.StringFlag{Name: "env-file", Usage: "Read KEY=VALUE pairs from this file first", Value: ".env"},
			&cli.BoolFlag{Name: "once", Usage: "Run a single pass over every source and exit"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c.String("config"), c.String("env-file"), c.Bool("once"))
		},
		Commands: []*cli.Command{
			{
				Name:  "state",
				Usage: "Print the stored state of every source",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "recent", Usage: "Number of recent identifiers to list per source", Value: 5},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return inspect(ctx, c.String("config"), c.String("env-file"), c.Int("recent"))
				},
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		logFatal(err)
		stop()
		os.Exit(1)
	}
}

// logFatal records the error that ends the process.
func logFatal(err error) {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		logger.Error("configuration error", "key", cfgErr.Key, "error", err)
		return
	}
	logger.Error("sitewatch failed", "error", err)
}

func run(ctx context.Context, sourcesFile, envFile string, once bool) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(sourcesFile)
	if err != nil {
		return err
	}
	logger.Init(cfg.Debug, cfg.LogFormat)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing state store", "error", err)
		}
	}()

	if once {
		return a.RunOnce(ctx)
	}

	if cfg.MonitoringEnabled {
		go startMonitoringServer(ctx, cfg.MonitoringPort, a.Handler())
	}
	return a.Run(ctx)
}

func inspect(ctx context.Context, sourcesFile, envFile string, recent int) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(sourcesFile)
	if err != nil {
		return err
	}
	logger.Init(cfg.Debug, cfg.LogFormat)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Inspect(ctx, os.Stdout, recent)
}

func startMonitoringServer(ctx context.Context, port string, h http.Handler) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting monitoring server", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("monitoring server error", "error", err)
	}
}
