package telemetry

import (
	"bytes"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, r *Recorder, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := r.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestRecorder_ObserveScrape(t *testing.T) {
	r := New()
	r.ObserveScrape("self", ResultSuccess, 150*time.Millisecond)
	r.ObserveScrape("self", ResultSuccess, 50*time.Millisecond)
	r.ObserveScrape("self", ResultAbsent, time.Millisecond)

	mf := family(t, r, "signalk_exporter_scrapes_total")
	require.NotNil(t, mf)
	assert.Equal(t, dto.MetricType_COUNTER, mf.GetType())

	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		var result string
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "result" {
				result = lp.GetValue()
			}
		}
		counts[result] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{ResultSuccess: 2, ResultAbsent: 1}, counts)

	hist := family(t, r, "signalk_exporter_scrape_duration_seconds")
	require.NotNil(t, hist)
	require.Len(t, hist.GetMetric(), 1)
	assert.Equal(t, uint64(3), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestRecorder_SetEmittedAndForget(t *testing.T) {
	r := New()
	r.SetEmitted("self", 42)

	mf := family(t, r, "signalk_exporter_metrics")
	require.NotNil(t, mf)
	require.Len(t, mf.GetMetric(), 1)
	assert.Equal(t, 42.0, mf.GetMetric()[0].GetGauge().GetValue())

	r.Forget("self")
	assert.Nil(t, family(t, r, "signalk_exporter_metrics"))
}

func TestRecorder_EncodeParses(t *testing.T) {
	r := New()
	r.ObserveScrape("self", ResultError, time.Second)
	r.SetEmitted("self", 7)

	var buf bytes.Buffer
	require.NoError(t, r.Encode(&buf))

	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Contains(t, mfs, "signalk_exporter_scrapes_total")
	assert.Contains(t, mfs, "signalk_exporter_metrics")
}

func TestRecorder_TrackFuncs(t *testing.T) {
	r := New()
	docs, clients := 3, 0
	r.TrackDocuments(func() int { return docs })
	r.TrackStreamClients(func() int { return clients })

	mf := family(t, r, "signalk_exporter_stored_documents")
	require.NotNil(t, mf)
	assert.Equal(t, 3.0, mf.GetMetric()[0].GetGauge().GetValue())

	docs, clients = 1, 2
	assert.Equal(t, 1.0, family(t, r, "signalk_exporter_stored_documents").GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 2.0, family(t, r, "signalk_exporter_stream_clients").GetMetric()[0].GetGauge().GetValue())
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.ObserveScrape("self", ResultSuccess, time.Second)
	r.SetEmitted("self", 1)
	r.Forget("self")
	r.SetCertDaysLeft("self", 90)
	r.TrackDocuments(func() int { return 1 })
}
