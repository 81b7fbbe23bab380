package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/signalk-exporter/internal/alerts"
	"github.com/obsidianstack/signalk-exporter/internal/engine"
	"github.com/obsidianstack/signalk-exporter/internal/exposition"
	"github.com/obsidianstack/signalk-exporter/internal/security"
	"github.com/obsidianstack/signalk-exporter/internal/store"
	"github.com/obsidianstack/signalk-exporter/internal/telemetry"
)

// CertLister is the subset of *security.Monitor the handler needs.
type CertLister interface {
	List() []*security.Status
	Get(sourceID string) (*security.Status, bool)
}

// AlertLister is the subset of *alerts.Engine the handler needs.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Deps are the collaborators of a Handler. Store and Options are required;
// the rest may be nil. Sources lists the configured source ids in config
// order.
type Deps struct {
	Store    *store.Store
	Recorder *telemetry.Recorder
	Sources  []string
	Options  engine.OptionsFunc
	Certs    CertLister
	Alerts   AlertLister
}

// Handler serves /metrics and the /api/v1/* endpoints.
type Handler struct {
	store   *store.Store
	rec     *telemetry.Recorder
	sources []string
	options engine.OptionsFunc
	certs   CertLister
	alerts  AlertLister
	mux     *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(d Deps) *Handler {
	h := &Handler{
		store:   d.Store,
		rec:     d.Recorder,
		sources: d.Sources,
		options: d.Options,
		certs:   d.Certs,
		alerts:  d.Alerts,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("/metrics", h.metrics)
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/sources", h.listSources)
	h.mux.HandleFunc("/api/v1/sources/", h.getSource) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/certs", h.listCerts)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// metrics renders every live document. Samples are grouped by metric name
// across sources, each group preceded by one # HELP / # TYPE pair. A series
// that two sources both produce is written once, from the first source.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type family struct {
		comments bool
		samples  []exposition.Metric
	}
	var order []string
	families := make(map[string]*family)
	for _, e := range h.store.List() {
		opts := h.options(e.SourceID)
		for _, m := range engine.Convert(e.Doc, opts) {
			f, ok := families[m.Name]
			if !ok {
				f = &family{comments: opts.Comments}
				families[m.Name] = f
				order = append(order, m.Name)
			}
			f.samples = append(f.samples, m)
		}
	}

	var b []byte
	for _, name := range order {
		f := families[name]
		for i, m := range engine.Dedupe(f.samples) {
			b = m.AppendText(b, f.comments && i == 0)
			b = append(b, '\n')
		}
	}

	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b); err != nil {
		return
	}
	if h.rec != nil {
		if err := h.rec.Encode(w); err != nil {
			slog.Warn("api: encode self metrics", "err", err)
		}
	}
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jsonResp(w, http.StatusOK, h.healthResponse())
}

// listSources returns GET /api/v1/sources in config order.
func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jsonResp(w, http.StatusOK, h.sourceResponses())
}

// getSource returns GET /api/v1/sources/{id}.
func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/sources/")
	if id == "" {
		h.listSources(w, r)
		return
	}
	if !h.configured(id) {
		jsonErr(w, http.StatusNotFound, "source not found")
		return
	}
	jsonResp(w, http.StatusOK, h.sourceResponse(id))
}

// listCerts returns GET /api/v1/certs, the latest certificate status of
// every https source.
func (h *Handler) listCerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*security.Status{}
	if h.certs != nil {
		out = h.certs.List()
	}
	jsonResp(w, http.StatusOK, out)
}

// listAlerts returns GET /api/v1/alerts, firing alerts plus those resolved
// within the past hour.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*alerts.Alert{}
	if h.alerts != nil {
		out = h.alerts.Active()
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot, health plus every source.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.snapshotResponse())
}

func (h *Handler) snapshotResponse() SnapshotResponse {
	return SnapshotResponse{
		Health:      h.healthResponse(),
		Sources:     h.sourceResponses(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) healthResponse() HealthResponse {
	resp := HealthResponse{SourceCount: len(h.sources)}
	for _, id := range h.sources {
		if _, ok := h.live(id); ok {
			resp.LiveCount++
		}
	}
	switch {
	case resp.LiveCount == 0:
		resp.State = "unknown"
	case resp.LiveCount < resp.SourceCount:
		resp.State = "degraded"
	default:
		resp.State = "healthy"
	}
	return resp
}

func (h *Handler) sourceResponses() []SourceResponse {
	out := make([]SourceResponse, 0, len(h.sources))
	for _, id := range h.sources {
		out = append(out, h.sourceResponse(id))
	}
	return out
}

func (h *Handler) configured(id string) bool {
	for _, s := range h.sources {
		if s == id {
			return true
		}
	}
	return false
}

// live returns the entry for id unless it is missing or stale.
func (h *Handler) live(id string) (*store.Entry, bool) {
	e, ok := h.store.Get(id)
	if !ok || h.store.Stale(e) {
		return nil, false
	}
	return e, true
}

func (h *Handler) sourceResponse(id string) SourceResponse {
	resp := SourceResponse{ID: id}
	if h.certs != nil {
		if st, ok := h.certs.Get(id); ok {
			resp.Cert = st.Status
		}
	}
	e, ok := h.live(id)
	if !ok {
		return resp
	}
	resp.Live = true
	resp.MetricCount = len(engine.Convert(e.Doc, h.options(id)))
	resp.LastSeen = e.UpdatedAt.UTC().Format(time.RFC3339)

	vessel := engine.VesselLabels(e.Doc)
	resp.Vessel, _ = vessel.Get("name")
	resp.MMSI, _ = vessel.Get("mmsi")
	return resp
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
