package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/jalsense/jalsense/agent/internal/config"
)

// Certificate states reported in CertStatus.Status.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// ExpiryWarning is how close to NotAfter a certificate is reported as expiring.
const ExpiryWarning = 30 * 24 * time.Hour

const dialTimeout = 10 * time.Second

// now is replaced in tests.
var now = time.Now

// CertStatus describes the leaf certificate served by one source endpoint.
type CertStatus struct {
	SourceID string
	Endpoint string
	Status   string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
	Err      error // set when Status is unreachable
}

// Check dials the TLS endpoint for src and reports on its leaf certificate.
//
// Returns nil for non-HTTPS endpoints; there is no certificate to inspect.
// The handshake honours the source's insecure_skip_verify so self-signed
// gateways can still be inspected.
func Check(ctx context.Context, src config.Source) *CertStatus {
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{SourceID: src.ID, Endpoint: src.Endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName:         u.Hostname(),
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		cs.Err = err
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	left := leaf.NotAfter.Sub(now())

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = StatusExpired
	case left <= ExpiryWarning:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}

// CheckAll runs Check for every HTTPS source and returns the results in
// source order.
func CheckAll(ctx context.Context, sources []config.Source) []CertStatus {
	var out []CertStatus
	for _, src := range sources {
		if cs := Check(ctx, src); cs != nil {
			out = append(out, *cs)
		}
	}
	return out
}
