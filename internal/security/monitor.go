package security

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/signalk-exporter/internal/config"
	"github.com/obsidianstack/signalk-exporter/internal/telemetry"
)

// DefaultInterval is how often Monitor re-checks certificates.
const DefaultInterval = time.Hour

// Monitor periodically checks the certificates of a fixed set of sources.
type Monitor struct {
	sources  []config.Source
	rec      *telemetry.Recorder
	interval time.Duration

	mu     sync.RWMutex
	status map[string]*Status
}

// NewMonitor creates a Monitor. rec may be nil.
func NewMonitor(sources []config.Source, rec *telemetry.Recorder, interval time.Duration) *Monitor {
	return &Monitor{
		sources:  sources,
		rec:      rec,
		interval: interval,
		status:   make(map[string]*Status),
	}
}

// Run checks all sources immediately and then every interval. It blocks
// until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckAll(ctx)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll checks every https source once.
func (m *Monitor) CheckAll(ctx context.Context) {
	for _, src := range m.sources {
		if ctx.Err() != nil {
			return
		}
		st := Check(ctx, src)
		if st == nil {
			continue
		}

		m.mu.Lock()
		m.status[src.ID] = st
		m.mu.Unlock()

		if st.Status == StatusUnreachable {
			slog.Warn("security: certificate check failed", "source", src.ID, "endpoint", src.URL)
			continue
		}
		m.rec.SetCertDaysLeft(src.ID, float64(st.DaysLeft))
		if st.Status != StatusValid {
			slog.Warn("security: certificate needs attention",
				"source", src.ID, "status", st.Status, "days_left", st.DaysLeft)
		}
	}
}

// Get returns the latest Status for a source.
func (m *Monitor) Get(sourceID string) (*Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.status[sourceID]
	return st, ok
}

// List returns the latest Status of every checked source, ordered by id.
func (m *Monitor) List() []*Status {
	m.mu.RLock()
	out := make([]*Status, 0, len(m.status))
	for _, st := range m.status {
		out = append(out, st)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}
