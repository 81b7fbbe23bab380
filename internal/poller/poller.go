package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/obsidianstack/signalk-exporter/internal/config"
	"github.com/obsidianstack/signalk-exporter/internal/engine"
	"github.com/obsidianstack/signalk-exporter/internal/exposition"
	"github.com/obsidianstack/signalk-exporter/internal/fetch"
	"github.com/obsidianstack/signalk-exporter/internal/signalk"
	"github.com/obsidianstack/signalk-exporter/internal/store"
	"github.com/obsidianstack/signalk-exporter/internal/telemetry"
)

// Fetcher is the subset of *fetch.Client the poller needs.
type Fetcher interface {
	Source() config.Source
	Document(ctx context.Context) (*signalk.Node, error)
}

// Evaluator is the subset of *alerts.Engine the poller needs.
type Evaluator interface {
	Evaluate(sourceID string, ms []exposition.Metric)
}

// Poller drives the fetch loop.
type Poller struct {
	fetchers []Fetcher
	store    *store.Store
	rec      *telemetry.Recorder
	options  engine.OptionsFunc
	interval time.Duration
	alerts   Evaluator
}

// New creates a Poller. rec may be nil.
func New(fetchers []Fetcher, st *store.Store, rec *telemetry.Recorder, options engine.OptionsFunc, interval time.Duration) *Poller {
	return &Poller{
		fetchers: fetchers,
		store:    st,
		rec:      rec,
		options:  options,
		interval: interval,
	}
}

// WithAlerts makes every poll feed the source's metrics to ev. A source that
// stops reporting is evaluated with no metrics.
func (p *Poller) WithAlerts(ev Evaluator) *Poller {
	p.alerts = ev
	return p
}

// Run polls all sources immediately and then every interval until ctx is
// cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every source once, sequentially.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, f := range p.fetchers {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx, f)
	}
}

func (p *Poller) poll(ctx context.Context, f Fetcher) {
	id := f.Source().ID
	start := time.Now()
	doc, err := f.Document(ctx)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, fetch.ErrNotFound):
		slog.Warn("poller: sensors not turned on", "source", id)
		p.store.Delete(id)
		p.rec.Forget(id)
		p.rec.ObserveScrape(id, telemetry.ResultAbsent, elapsed)
		p.evaluate(id, nil)
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		slog.Warn("poller: fetch failed", "source", id, "err", err)
		p.rec.ObserveScrape(id, telemetry.ResultError, elapsed)
	default:
		p.store.Put(id, doc)
		ms := engine.Convert(doc, p.options(id))
		p.rec.SetEmitted(id, len(ms))
		p.rec.ObserveScrape(id, telemetry.ResultSuccess, elapsed)
		p.evaluate(id, ms)
		slog.Debug("poller: document stored", "source", id, "metrics", len(ms), "took", elapsed)
	}
}

func (p *Poller) evaluate(id string, ms []exposition.Metric) {
	if p.alerts != nil {
		p.alerts.Evaluate(id, ms)
	}
}
