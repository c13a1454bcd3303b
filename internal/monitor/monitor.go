// Package monitor runs the poll, extract, diff, notify and persist cycle of
// one watched source.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/extract"
	"github.com/deusflow/sitewatch/internal/fetch"
	"github.com/deusflow/sitewatch/internal/logger"
	"github.com/deusflow/sitewatch/internal/metrics"
	"github.com/deusflow/sitewatch/internal/news"
	"github.com/deusflow/sitewatch/internal/rss"
	"github.com/deusflow/sitewatch/internal/storage"
)

// Fetcher downloads a source. Forget drops cached validators so the next
// fetch returns a full body even if the page did not change.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*fetch.Response, error)
	Forget(url string)
}

// Notifier delivers messages to the chat.
type Notifier interface {
	Notify(ctx context.Context, source string, item news.Item) error
	SendText(ctx context.Context, text string) error
}

// Deps is everything a Loop needs besides its source definition.
type Deps struct {
	Fetcher   Fetcher
	Extractor extract.Extractor
	Notifier  Notifier
	Store     storage.Store
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// MaxItems caps the sent set (news.DefaultMaxItems when zero).
	MaxItems int
	// AlertAfter is the number of consecutive failed cycles that triggers one
	// alert message. Zero disables alerts.
	AlertAfter int
}

// CycleReport summarises one cycle.
type CycleReport struct {
	Source      string
	CycleID     string
	NotModified bool
	Found       int // items (or 1 for a hash) on the page
	New         int
	Sent        int
	Failed      int
	Baseline    bool
	Persisted   bool
	Alerted     bool
	Err         error
}

// Loop watches one source. RunOnce and Run must not be called concurrently
// on the same Loop; different Loops share nothing but their dependencies.
type Loop struct {
	src  config.Source
	deps Deps
	log  *slog.Logger

	state    news.State
	loaded   bool
	dirty    bool
	failures int
	alerted  bool
}

func New(src config.Source, deps Deps) *Loop {
	if deps.MaxItems <= 0 {
		deps.MaxItems = news.DefaultMaxItems
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Global
	}
	log := logger.With("source", src.Name)
	if deps.Logger != nil {
		log = deps.Logger.With("source", src.Name)
	}
	return &Loop{
		src:  src,
		deps: deps,
		log:  log,
	}
}

func (l *Loop) Name() string { return l.src.Name }

// State returns a copy of the in-memory state.
func (l *Loop) State() news.State {
	st := news.State{Hash: l.state.Hash}
	if l.state.Sent != nil {
		st.Sent = l.state.Sent.Clone()
	}
	return st
}

// ConsecutiveFailures returns the number of failed cycles since the last success.
func (l *Loop) ConsecutiveFailures() int { return l.failures }

// Run runs a cycle immediately and then one per tick until ctx is done.
// Cancellation is observed between cycles only.
func (l *Loop) Run(ctx context.Context, ticker Ticker) error {
	l.log.Info("monitoring started", "url", l.src.URL, "mode", l.deps.Extractor.Mode())
	for {
		if ctx.Err() != nil {
			break
		}
		l.RunOnce(ctx)
		if err := ticker.Wait(ctx); err != nil {
			break
		}
	}
	l.log.Info("monitoring stopped")
	return nil
}

// RunOnce performs exactly one cycle. The cycle is not interrupted by ctx
// cancellation so that sent items are always recorded.
func (l *Loop) RunOnce(ctx context.Context) CycleReport {
	ctx = context.WithoutCancel(ctx)
	rep := CycleReport{Source: l.src.Name, CycleID: uuid.NewString()}
	log := l.log.With("cycle", rep.CycleID)

	start := time.Now()
	l.cycle(ctx, log, &rep)
	l.deps.Metrics.RecordCycle(l.src.Name, time.Since(start), rep.Err)
	l.trackFailures(ctx, log, &rep)

	switch {
	case rep.Err != nil:
		log.Error("cycle failed", "error", rep.Err, "consecutive_failures", l.failures)
	case rep.New > 0 || rep.Baseline:
		log.Info("cycle done", "found", rep.Found, "new", rep.New, "sent", rep.Sent, "baseline", rep.Baseline)
	default:
		log.Debug("cycle done", "found", rep.Found, "not_modified", rep.NotModified)
	}
	return rep
}

func (l *Loop) cycle(ctx context.Context, log *slog.Logger, rep *CycleReport) {
	if !l.loaded {
		st, err := l.deps.Store.Load(ctx, l.src.Name, l.deps.MaxItems)
		if err != nil {
			rep.Err = fmt.Errorf("load state: %w", err)
			return
		}
		l.state, l.loaded = st, true
		if l.state.Sent == nil {
			l.state.Sent = news.NewSentSet(l.deps.MaxItems)
		}
	}

	// A state left dirty by a failed save is written even when the fetch fails.
	defer l.persist(ctx, log, rep)

	resp, err := l.deps.Fetcher.Fetch(ctx, l.src.URL, l.src.Headers)
	if errors.Is(err, fetch.ErrNotModified) {
		rep.NotModified = true
		l.deps.Metrics.IncrementNotModified()
		return
	}
	if err != nil {
		rep.Err = err
		return
	}

	snap, err := l.deps.Extractor.Extract(resp)
	if err != nil {
		var perr *extract.ParseError
		if errors.As(err, &perr) {
			l.deps.Metrics.IncrementParseFailures()
		}
		log.Warn("nothing extracted", "error", err)
	}
	if snap.Empty() {
		return
	}

	if snap.Mode == news.ModeHash {
		l.handleHash(ctx, log, snap, rep)
	} else {
		l.handleSet(ctx, log, snap, rep)
		l.export(log, snap.Items)
	}

	if rep.Failed > 0 {
		// Without validators the next fetch returns the page again and the
		// failed items are retried.
		l.deps.Fetcher.Forget(l.src.URL)
	}
}

func (l *Loop) handleHash(ctx context.Context, log *slog.Logger, snap news.Snapshot, rep *CycleReport) {
	rep.Found = 1
	if l.state.Hash == "" {
		l.state.Hash = snap.Hash
		l.dirty = true
		rep.Baseline = true
		log.Info("baseline hash recorded", "hash", snap.Hash)
		return
	}

	changed := news.Diff(l.state, snap, l.src.URL)
	rep.New = len(changed)
	l.deps.Metrics.AddItemsDetected(rep.New)
	for _, item := range changed {
		if err := l.notify(ctx, log, item, rep); err != nil {
			return
		}
		l.state.Hash = snap.Hash
		l.dirty = true
	}
}

func (l *Loop) handleSet(ctx context.Context, log *slog.Logger, snap news.Snapshot, rep *CycleReport) {
	rep.Found = len(snap.Items)
	if dropped := l.capToSet(&snap); dropped > 0 {
		log.Debug("page lists more items than the sent set holds, ignoring the tail",
			"items", rep.Found, "max_items", l.deps.MaxItems, "ignored", dropped)
	}
	fresh := news.Diff(l.state, snap, l.src.URL)
	rep.New = len(fresh)
	l.deps.Metrics.AddItemsDetected(rep.New)

	// Items still on the page stay in the set longest; the top of the page
	// ends up most recent.
	unique := make(map[string]struct{}, len(snap.Items))
	for i := len(snap.Items) - 1; i >= 0; i-- {
		id := snap.Items[i].ID
		if id == "" {
			continue
		}
		unique[id] = struct{}{}
		if l.state.Sent.Touch(id) {
			l.dirty = true
		}
	}
	if dups := len(snap.Items) - len(unique); dups > 0 {
		l.deps.Metrics.AddDuplicatesDropped(dups)
	}

	var sent []string
	for _, item := range fresh {
		if err := l.notify(ctx, log, item, rep); err != nil {
			continue
		}
		sent = append(sent, item.ID)
	}
	// Same order as the touches above: the top of the page is added last.
	for i := len(sent) - 1; i >= 0; i-- {
		l.state.Sent.Add(sent[i])
		l.dirty = true
	}
}

// capToSet keeps the top of the page up to as many distinct identifiers as
// the sent set can hold. Anything below would be evicted as soon as it was
// recorded and reported again on the next cycle.
func (l *Loop) capToSet(snap *news.Snapshot) int {
	seen := make(map[string]struct{}, l.deps.MaxItems)
	for i, it := range snap.Items {
		if it.ID == "" {
			continue
		}
		if _, ok := seen[it.ID]; ok {
			continue
		}
		if len(seen) == l.deps.MaxItems {
			dropped := len(snap.Items) - i
			snap.Items = snap.Items[:i]
			return dropped
		}
		seen[it.ID] = struct{}{}
	}
	return 0
}

func (l *Loop) notify(ctx context.Context, log *slog.Logger, item news.Item, rep *CycleReport) error {
	if err := l.deps.Notifier.Notify(ctx, l.src.Name, item); err != nil {
		rep.Failed++
		l.deps.Metrics.IncrementNotifyFailures()
		log.Warn("notification failed, will retry next cycle", "id", item.ID, "error", err)
		if rep.Err == nil {
			rep.Err = fmt.Errorf("notify: %w", err)
		}
		return err
	}
	rep.Sent++
	l.deps.Metrics.IncrementMessagesSent(l.src.Name)
	log.Debug("notification sent", "id", item.ID, "title", item.Title)
	return nil
}

func (l *Loop) persist(ctx context.Context, log *slog.Logger, rep *CycleReport) {
	if !l.dirty {
		return
	}
	if err := l.deps.Store.Save(ctx, l.src.Name, l.deps.Extractor.Mode(), l.state); err != nil {
		l.deps.Metrics.IncrementPersistFailures()
		l.deps.Fetcher.Forget(l.src.URL)
		log.Warn("state not saved, will retry next cycle", "error", err)
		rep.Err = errors.Join(rep.Err, err)
		return
	}
	l.dirty = false
	rep.Persisted = true
}

func (l *Loop) export(log *slog.Logger, items []news.Item) {
	if l.src.Export == "" {
		return
	}
	title := l.src.ExportTitle
	if title == "" {
		title = l.src.Name
	}
	ch := rss.Channel{Title: title, Link: l.src.URL, Language: l.src.ExportLanguage}
	if err := rss.WriteFile(l.src.Export, ch, items); err != nil {
		log.Warn("feed export failed", "path", l.src.Export, "error", err)
		return
	}
	l.deps.Metrics.IncrementExportsWritten()
}

func (l *Loop) trackFailures(ctx context.Context, log *slog.Logger, rep *CycleReport) {
	if rep.Err == nil {
		l.failures = 0
		l.alerted = false
		return
	}
	l.failures++
	if l.deps.AlertAfter <= 0 || l.alerted || l.failures < l.deps.AlertAfter {
		return
	}

	text := fmt.Sprintf("Error while monitoring %s (%s): %d failed checks in a row. Last error: %v",
		l.src.Name, l.src.URL, l.failures, rep.Err)
	if err := l.deps.Notifier.SendText(ctx, text); err != nil {
		log.Error("failed to send alert", "error", err)
		return
	}
	l.alerted = true
	rep.Alerted = true
	l.deps.Metrics.IncrementAlertsSent()
}
