package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/signalk-exporter/internal/config"
	"github.com/obsidianstack/signalk-exporter/internal/signalk"
)

const selfJSON = `{"name": "Ariel", "navigation": {"log": {"value": 1234.5}}}`

func fastBackoff() *backoff {
	return &backoff{current: time.Millisecond, max: 5 * time.Millisecond}
}

func testClient(srv *httptest.Server, src config.Source) *Client {
	if src.ID == "" {
		src.ID = "self"
	}
	src.URL = srv.URL + "/signalk/v1/api/vessels/self"
	return &Client{src: src, client: srv.Client(), bo: fastBackoff}
}

func TestClient_Document(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signalk/v1/api/vessels/self", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(selfJSON))
	}))
	defer srv.Close()

	doc, err := testClient(srv, config.Source{}).Document(context.Background())
	require.NoError(t, err)

	leaf, ok := doc.Lookup("navigation", "log")
	require.True(t, ok)
	assert.Equal(t, signalk.KindValue, leaf.Kind)
	assert.Equal(t, 1234.5, leaf.Value)
}

func TestClient_NotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	_, err := testClient(srv, config.Source{Retries: 3}).Document(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load(), "404 must not be retried")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(selfJSON))
	}))
	defer srv.Close()

	body, err := testClient(srv, config.Source{Retries: 2}).Fetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, selfJSON, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv, config.Source{Retries: 1}).Fetch(context.Background())
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv, config.Source{Retries: 3}).Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"navigation": `))
	}))
	defer srv.Close()

	_, err := testClient(srv, config.Source{}).Document(context.Background())
	assert.ErrorIs(t, err, signalk.ErrInvalidJSON)
}

func TestClient_ConnectFailure(t *testing.T) {
	c := &Client{
		src:    config.Source{ID: "down", URL: "http://127.0.0.1:1/signalk/v1/api/vessels/self"},
		client: &http.Client{Timeout: time.Second},
		bo:     fastBackoff,
	}
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(srv, config.Source{Retries: 5}).Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_AuthModes(t *testing.T) {
	t.Setenv("SK_KEY", "k-123")
	t.Setenv("SK_TOKEN", "jwt-abc")
	t.Setenv("SK_PASS", "pw")

	tests := []struct {
		name  string
		auth  config.AuthConfig
		check func(t *testing.T, r *http.Request)
	}{
		{"apikey", config.AuthConfig{Mode: "apikey", Header: "X-API-Key", KeyEnv: "SK_KEY"}, func(t *testing.T, r *http.Request) {
			assert.Equal(t, "k-123", r.Header.Get("X-API-Key"))
		}},
		{"bearer", config.AuthConfig{Mode: "bearer", TokenEnv: "SK_TOKEN"}, func(t *testing.T, r *http.Request) {
			assert.Equal(t, "Bearer jwt-abc", r.Header.Get("Authorization"))
		}},
		{"basic", config.AuthConfig{Mode: "basic", Username: "skipper", PasswordEnv: "SK_PASS"}, func(t *testing.T, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "skipper", user)
			assert.Equal(t, "pw", pass)
		}},
		{"none", config.AuthConfig{Mode: "none"}, func(t *testing.T, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tc.check(t, r)
				_, _ = w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			c, err := New(config.Source{ID: tc.name, URL: srv.URL, Auth: tc.auth})
			require.NoError(t, err)
			_, err = c.Fetch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.name, c.Source().ID)
		})
	}
}

func TestNew_MTLSMissingCert(t *testing.T) {
	_, err := New(config.Source{ID: "x", URL: "https://h/", Auth: config.AuthConfig{
		Mode: "mtls", CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem",
	}})
	assert.Error(t, err)
}

func TestBackoff_Grows(t *testing.T) {
	b := newBackoff()
	first := b.next()
	assert.InDelta(t, float64(backoffInitial), float64(first), float64(backoffInitial)/4+1)
	for i := 0; i < 10; i++ {
		b.next()
	}
	assert.Equal(t, backoffMax, b.current)
}
