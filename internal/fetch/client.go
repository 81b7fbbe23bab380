package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/obsidianstack/signalk-exporter/internal/config"
	"github.com/obsidianstack/signalk-exporter/internal/signalk"
)

// maxBodyBytes caps the size of a SignalK response.
const maxBodyBytes = 32 << 20

// ErrNotFound is returned when the SignalK server answers 404, which it does
// for a path whose instruments have not reported yet (sensors switched off).
var ErrNotFound = errors.New("signalk: path not found")

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Client fetches one SignalK source.
type Client struct {
	src    config.Source
	client *http.Client
	bo     func() *backoff // injectable for tests
}

// New returns a Client for src. It builds the HTTP client once and reuses it
// across fetches.
func New(src config.Source) (*Client, error) {
	client, err := buildHTTPClient(src)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: build http client: %w", src.ID, err)
	}
	return &Client{src: src, client: client, bo: newBackoff}, nil
}

// Source returns the configuration the client was built from.
func (c *Client) Source() config.Source {
	return c.src
}

// Document fetches and parses the source document.
func (c *Client) Document(ctx context.Context) (*signalk.Node, error) {
	body, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := signalk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", c.src.ID, err)
	}
	return doc, nil
}

// Fetch GETs the source URL and returns the response body. Transport errors
// and 5xx responses are retried up to Source.Retries times with exponential
// backoff; ErrNotFound and other statuses are returned immediately.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	bo := c.bo()
	for attempt := 0; ; attempt++ {
		body, err := c.get(ctx)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if !retryable(err) || attempt >= c.src.Retries || ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %q: %w", c.src.ID, err)
		}

		wait := bo.next()
		slog.Debug("fetch: transient failure, will retry",
			"source", c.src.ID, "attempt", attempt+1, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch %q: %w", c.src.ID, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// retryable reports whether err is worth another attempt: any transport
// error, or a 5xx status.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and TLS settings.
func buildHTTPClient(src config.Source) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if src.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(src.Auth.CertFile, src.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if src.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(src.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", src.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	timeout := src.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
			auth: src.Auth,
		},
		Timeout: timeout,
	}, nil
}
