package security

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/signalk-exporter/internal/config"
	"github.com/obsidianstack/signalk-exporter/internal/telemetry"
)

func tlsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheck_PlainHTTPSkipped(t *testing.T) {
	assert.Nil(t, Check(context.Background(), config.Source{ID: "self", URL: "http://127.0.0.1:3000/"}))
}

func TestCheck_ValidCertificate(t *testing.T) {
	srv := tlsServer(t)
	src := config.Source{ID: "self", URL: srv.URL + "/signalk/v1/api/vessels/self"}
	src.TLS.InsecureSkipVerify = true

	st := Check(context.Background(), src)
	require.NotNil(t, st)
	assert.Equal(t, StatusValid, st.Status)
	assert.Equal(t, "none", st.AuthType)
	assert.Greater(t, st.DaysLeft, int32(30))
	assert.NotEmpty(t, st.NotAfter)
}

func TestCheck_UntrustedIsUnreachable(t *testing.T) {
	srv := tlsServer(t)
	st := Check(context.Background(), config.Source{ID: "self", URL: srv.URL, Auth: config.AuthConfig{Mode: "bearer"}})
	require.NotNil(t, st)
	assert.Equal(t, StatusUnreachable, st.Status)
	assert.Equal(t, "bearer", st.AuthType)
}

func TestCheck_ExpiryRelativeToNow(t *testing.T) {
	srv := tlsServer(t)
	src := config.Source{ID: "self", URL: srv.URL}
	src.TLS.InsecureSkipVerify = true

	leaf := srv.Certificate()
	st := check(context.Background(), src, leaf.NotAfter.Add(-10*24*time.Hour))
	assert.Equal(t, StatusExpiring, st.Status)
	assert.Equal(t, int32(10), st.DaysLeft)

	st = check(context.Background(), src, leaf.NotAfter.Add(time.Hour))
	assert.Equal(t, StatusExpired, st.Status)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StatusExpired, classify(0))
	assert.Equal(t, StatusExpiring, classify(30))
	assert.Equal(t, StatusValid, classify(30.5))
}

func TestMonitor_CheckAll(t *testing.T) {
	srv := tlsServer(t)
	secure := config.Source{ID: "secure", URL: srv.URL}
	secure.TLS.InsecureSkipVerify = true
	plain := config.Source{ID: "plain", URL: "http://127.0.0.1:3000/"}

	rec := telemetry.New()
	m := NewMonitor([]config.Source{plain, secure}, rec, time.Hour)
	m.CheckAll(context.Background())

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "secure", list[0].SourceID)

	st, ok := m.Get("secure")
	require.True(t, ok)
	assert.Equal(t, StatusValid, st.Status)
	_, ok = m.Get("plain")
	assert.False(t, ok)

	var buf bytes.Buffer
	require.NoError(t, rec.Encode(&buf))
	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(&buf)
	require.NoError(t, err)
	mf, ok := mfs["signalk_exporter_cert_days_left"]
	require.True(t, ok)
	require.Len(t, mf.GetMetric(), 1)
	assert.Equal(t, float64(st.DaysLeft), mf.GetMetric()[0].GetGauge().GetValue())
}
