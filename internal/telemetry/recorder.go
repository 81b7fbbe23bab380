package telemetry

import (
	"fmt"
	"io"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Result labels for signalk_exporter_scrapes_total.
const (
	ResultSuccess = "success"
	ResultAbsent  = "absent" // source answered 404
	ResultError   = "error"
)

// Recorder records poll outcomes.
type Recorder struct {
	reg      *prom.Registry
	scrapes  *prom.CounterVec
	duration *prom.HistogramVec
	emitted  *prom.GaugeVec
	certDays *prom.GaugeVec
}

// New constructs a Recorder and registers its metrics on a fresh registry.
func New() *Recorder {
	r := &Recorder{reg: prom.NewRegistry()}
	r.scrapes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "signalk_exporter",
		Name:      "scrapes_total",
		Help:      "SignalK polls by source and result",
	}, []string{"source", "result"})
	r.duration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "signalk_exporter",
		Name:      "scrape_duration_seconds",
		Help:      "Duration of one SignalK poll including retries",
		Buckets:   prom.DefBuckets,
	}, []string{"source"})
	r.emitted = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "signalk_exporter",
		Name:      "metrics",
		Help:      "Metric lines produced from the last document of a source",
	}, []string{"source"})
	r.certDays = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "signalk_exporter",
		Name:      "cert_days_left",
		Help:      "Days until the TLS certificate of an https source expires",
	}, []string{"source"})
	r.reg.MustRegister(r.scrapes, r.duration, r.emitted, r.certDays)
	return r
}

// ObserveScrape counts one poll of source with the given result and records
// how long it took.
func (r *Recorder) ObserveScrape(source, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.scrapes.WithLabelValues(source, result).Inc()
	r.duration.WithLabelValues(source).Observe(d.Seconds())
}

// SetEmitted records how many metric lines the last document of source
// produced.
func (r *Recorder) SetEmitted(source string, n int) {
	if r == nil {
		return
	}
	r.emitted.WithLabelValues(source).Set(float64(n))
}

// SetCertDaysLeft records the remaining validity of the certificate served
// by source.
func (r *Recorder) SetCertDaysLeft(source string, days float64) {
	if r == nil {
		return
	}
	r.certDays.WithLabelValues(source).Set(days)
}

// Forget drops the per-source gauge, used when a source stops reporting.
func (r *Recorder) Forget(source string) {
	if r == nil {
		return
	}
	r.emitted.DeleteLabelValues(source)
}

// TrackDocuments exports the number of documents held by the store, stale
// ones included. count is read at every scrape. Call it at most once.
func (r *Recorder) TrackDocuments(count func() int) {
	r.trackFunc("stored_documents", "SignalK documents held in memory, including stale ones", count)
}

// TrackStreamClients exports the number of connected /ws/stream clients.
// Call it at most once.
func (r *Recorder) TrackStreamClients(count func() int) {
	r.trackFunc("stream_clients", "Connected WebSocket stream clients", count)
}

func (r *Recorder) trackFunc(name, help string, count func() int) {
	if r == nil {
		return
	}
	r.reg.MustRegister(prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: "signalk_exporter",
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(count()) }))
}

// Encode writes all gathered families to w in the text exposition format.
func (r *Recorder) Encode(w io.Writer) error {
	mfs, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("telemetry: gather: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("telemetry: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
