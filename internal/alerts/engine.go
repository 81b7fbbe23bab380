package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/signalk-exporter/internal/config"
	"github.com/obsidianstack/signalk-exporter/internal/exposition"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
//
// Series and Labels describe the sample that fired the rule. Vessel and MMSI
// are read from its name and mmsi labels, present when vessel labels are on.
type Alert struct {
	ID         string            `json:"id"`
	RuleName   string            `json:"rule_name"`
	SourceID   string            `json:"source_id"`
	Vessel     string            `json:"vessel,omitempty"`
	MMSI       string            `json:"mmsi,omitempty"`
	Severity   string            `json:"severity"`
	Condition  string            `json:"condition"`
	Series     string            `json:"series"`
	Labels     map[string]string `json:"labels,omitempty"`
	Message    string            `json:"message"`
	Value      float64           `json:"value"`
	FiredAt    time.Time         `json:"fired_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	State      string            `json:"state"`
}

type rule struct {
	config.AlertRule
	cond config.Condition
}

// Engine evaluates alert rules against the metrics of each source and
// delivers webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	now      func() time.Time
	notify   func(*Alert) // injectable for tests

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:sourceID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
}

// New creates an Engine from the alert configuration. Conditions must have
// been validated by config.Load; rules that fail to parse are skipped.
// An Engine with no rules is valid and Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		webhooks: cfg.Webhooks,
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, r := range cfg.Rules {
		cond, err := config.ParseCondition(r.Condition)
		if err != nil {
			slog.Warn("alerts: skipping rule", "rule", r.Name, "err", err)
			continue
		}
		e.rules = append(e.rules, rule{AlertRule: r, cond: cond})
	}
	e.notify = func(a *Alert) { go e.deliver(a) }
	return e
}

// Evaluate tests all rules against the metrics of one source. A rule fires
// when any sample of its metric satisfies the condition; a firing alert
// resolves once no sample does, including when the metric disappears.
func (e *Engine) Evaluate(sourceID string, ms []exposition.Metric) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, r := range e.rules {
		key := r.Name + ":" + sourceID
		m, fires := match(r.cond, ms)

		e.mu.Lock()
		var out *Alert
		if fires {
			out = e.fire(r, key, sourceID, m, now)
		} else {
			out = e.resolve(key, now)
		}
		e.mu.Unlock()

		if out == nil {
			continue
		}
		if out.State == StateFiring {
			slog.Warn("alert fired", "rule", r.Name, "source", sourceID, "series", out.Series, "value", out.Value, "severity", out.Severity)
		} else {
			slog.Info("alert resolved", "rule", r.Name, "source", sourceID)
		}
		e.notify(out)
	}
}

// fire records a firing alert unless the rule is cooling down. It returns a
// copy to deliver, or nil. Callers hold e.mu.
func (e *Engine) fire(r rule, key, sourceID string, m exposition.Metric, now time.Time) *Alert {
	cooldown := r.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if _, firing := e.active[key]; firing || now.Sub(e.lastFire[key]) <= cooldown {
		return nil
	}

	sev := r.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:        fmt.Sprintf("%s:%s:%d", r.Name, sourceID, now.UnixNano()),
		RuleName:  r.Name,
		SourceID:  sourceID,
		Severity:  sev,
		Condition: r.Condition,
		Series:    m.Series(),
		Labels:    make(map[string]string, len(m.Labels)),
		Value:     m.Value,
		FiredAt:   now,
		State:     StateFiring,
	}
	for _, l := range m.Labels {
		a.Labels[l.Name] = l.Value
	}
	a.Vessel = a.Labels["name"]
	a.MMSI = a.Labels["mmsi"]
	a.Message = fmt.Sprintf("%s on %s: %s is %s (%s)",
		r.Name, vesselOrSource(a), a.Series, exposition.FormatValue(m.Value), r.Condition)
	e.active[key] = a
	e.lastFire[key] = now
	cp := *a
	return &cp
}

// resolve moves a firing alert to history. Callers hold e.mu.
func (e *Engine) resolve(key string, now time.Time) *Alert {
	a, ok := e.active[key]
	if !ok {
		return nil
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	cp := *a
	return &cp
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))
	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// match returns the first sample of the condition's metric that satisfies it.
func match(c config.Condition, ms []exposition.Metric) (exposition.Metric, bool) {
	for _, m := range ms {
		if m.Name == c.Metric && c.Holds(m.Value) {
			return m, true
		}
	}
	return exposition.Metric{}, false
}

// vesselOrSource names the boat an alert is about: its name, else its MMSI,
// else the source id.
func vesselOrSource(a *Alert) string {
	switch {
	case a.Vessel != "":
		return a.Vessel
	case a.MMSI != "":
		return "MMSI " + a.MMSI
	default:
		return a.SourceID
	}
}
