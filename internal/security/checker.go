package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/obsidianstack/signalk-exporter/internal/config"
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring" // 30 days or fewer left
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

const dialTimeout = 10 * time.Second

// Status describes the leaf certificate served by one source.
type Status struct {
	SourceID  string `json:"source_id"`
	Endpoint  string `json:"endpoint"`
	AuthType  string `json:"auth_type"`
	Status    string `json:"status"`
	DaysLeft  int32  `json:"days_left"`
	Issuer    string `json:"issuer,omitempty"`
	NotAfter  string `json:"not_after,omitempty"`
	CheckedAt string `json:"checked_at"`
}

// Check dials the TLS endpoint of src and returns a Status describing the
// leaf certificate. It returns nil for non-https sources.
func Check(ctx context.Context, src config.Source) *Status {
	return check(ctx, src, time.Now())
}

func check(ctx context.Context, src config.Source, now time.Time) *Status {
	u, err := url.Parse(src.URL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	st := &Status{
		SourceID:  src.ID,
		Endpoint:  src.URL,
		AuthType:  src.Auth.Mode,
		CheckedAt: now.UTC().Format(time.RFC3339),
	}
	if st.AuthType == "" {
		st.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		st.Status = StatusUnreachable
		return st
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		st.Status = StatusUnreachable
		return st
	}

	leaf := peerCerts[0]
	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24

	st.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	st.Issuer = leaf.Issuer.CommonName
	st.DaysLeft = int32(math.Floor(daysLeft))
	st.Status = classify(daysLeft)
	return st
}

func classify(daysLeft float64) string {
	switch {
	case daysLeft <= 0:
		return StatusExpired
	case daysLeft <= 30:
		return StatusExpiring
	default:
		return StatusValid
	}
}
