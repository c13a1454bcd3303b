// Package app wires configuration, fetcher, notifier, store and one
// monitoring loop per source.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/extract"
	"github.com/deusflow/sitewatch/internal/fetch"
	"github.com/deusflow/sitewatch/internal/logger"
	"github.com/deusflow/sitewatch/internal/metrics"
	"github.com/deusflow/sitewatch/internal/monitor"
	"github.com/deusflow/sitewatch/internal/ratelimit"
	"github.com/deusflow/sitewatch/internal/storage"
	"github.com/deusflow/sitewatch/internal/telegram"
)

type App struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	store   storage.Store
	client  *telegram.Client
	limiter *ratelimit.SendLimiter
	loops   []*monitor.Loop
	tickers []monitor.Ticker
}

// Option customises New; used by tests to swap the HTTP client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func WithHTTPClient(c *http.Client) Option  { return func(o *options) { o.httpClient = c } }
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{metrics: metrics.Global}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.Open(ctx, storage.Config{
		Driver: cfg.StoreDriver,
		Dir:    cfg.StateDir,
		Path:   cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithConditionalGet(cfg.ConditionalGet),
	}
	limiter := ratelimit.NewSendLimiter(cfg.SendMinDelay)
	tgOpts := []telegram.Option{
		telegram.WithBaseURL(cfg.TelegramAPIURL),
		telegram.WithParseMode(cfg.ParseMode),
		telegram.WithLimiter(limiter),
		telegram.WithRetry(cfg.NotifyRetries, 2*time.Second),
	}
	if o.httpClient != nil {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(o.httpClient))
		tgOpts = append(tgOpts, telegram.WithHTTPClient(o.httpClient))
	}
	fetcher := fetch.New(fetchOpts...)
	client := telegram.New(cfg.BotToken, cfg.ChatID, tgOpts...)

	a := &App{
		cfg:     cfg,
		log:     logger.Logger,
		metrics: o.metrics,
		store:   store,
		client:  client,
		limiter: limiter,
	}

	for _, src := range cfg.Sources {
		ext, err := extract.New(src)
		if err != nil {
			store.Close()
			return nil, &config.Error{Key: src.Name, Err: err}
		}
		spec := src.ScheduleSpec(cfg.PollInterval)
		ticker, err := monitor.NewCronTicker(spec)
		if err != nil {
			store.Close()
			return nil, &config.Error{Key: src.Name + ".schedule", Err: err}
		}
		a.loops = append(a.loops, monitor.New(src, monitor.Deps{
			Fetcher:    fetcher,
			Extractor:  ext,
			Notifier:   client,
			Store:      store,
			Metrics:    o.metrics,
			Logger:     a.log,
			MaxItems:   cfg.MaxSentItems,
			AlertAfter: cfg.AlertAfterFailures,
		}))
		a.tickers = append(a.tickers, ticker)
	}
	return a, nil
}

// Run starts every loop and blocks until ctx is cancelled and all in-flight
// cycles have finished.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("sitewatch starting", "sources", len(a.loops), "store", a.cfg.StoreDriver,
		"send_min_delay", a.limiter.MinDelay())

	if a.cfg.StartupMessage {
		text := fmt.Sprintf("sitewatch started, monitoring %d sources", len(a.loops))
		if err := a.client.SendText(ctx, text); err != nil {
			a.log.Warn("startup message not sent", "error", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range a.loops {
		loop, ticker := a.loops[i], a.tickers[i]
		g.Go(func() error {
			return loop.Run(ctx, ticker)
		})
	}
	err := g.Wait()
	a.log.Info("sitewatch stopped", "throttled_sends", a.limiter.Throttled())
	return err
}

// RunOnce runs a single cycle of every source concurrently. The returned
// error lists the sources whose cycle failed.
func (a *App) RunOnce(ctx context.Context) error {
	reports := make([]monitor.CycleReport, len(a.loops))

	var g errgroup.Group
	for i, loop := range a.loops {
		g.Go(func() error {
			reports[i] = loop.RunOnce(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	sent := 0
	for _, rep := range reports {
		sent += rep.Sent
		if rep.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rep.Source, rep.Err))
		}
	}
	a.log.Info("single pass done", "sources", len(reports), "sent", sent, "failed", len(errs),
		"throttled_sends", a.limiter.Throttled())
	return errors.Join(errs...)
}

// Handler returns the monitoring HTTP handler for this app.
func (a *App) Handler() http.Handler {
	return NewMonitoringHandler(a.metrics, a.cfg.AlertAfterFailures)
}

func (a *App) Close() error {
	return a.store.Close()
}
