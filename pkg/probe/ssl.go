package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
)

// SSLProber inspects the peer certificate chain without ever failing the
// TLS handshake on an invalid certificate; the whole point is to report on
// certificates that validator-level checks would otherwise refuse.
type SSLProber struct {
	resolver hostResolver
}

func (p *SSLProber) Probe(ctx context.Context, monitor *store.Monitor) Observation {
	hostname, _ := hostPort(monitor)
	port := 443
	if monitor.Port != nil {
		port = *monitor.Port
	}

	timeout := timeoutOrDefault(monitor.TimeoutMs)
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := p.resolver.Resolve(dialCtx, hostname)
	if err != nil {
		var blocked *resolver.BlockedError
		if errors.As(err, &blocked) {
			return down(resolver.ErrSSRFProtection, err.Error())
		}
		return down("DNS_RESOLUTION_FAILED", err.Error())
	}

	return p.probeHost(dialCtx, hostname, port, res, monitor)
}

func (p *SSLProber) probeHost(ctx context.Context, hostname string, port int, res resolver.Resolution, monitor *store.Monitor) Observation {
	start := time.Now()
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, "tcp", dialAddr(res.Address, port))
	if err != nil {
		return down(classifyTCPError(err), err.Error())
	}
	defer rawConn.Close()

	tlsConn := tls.Client(rawConn, &tls.Config{
		ServerName:         hostname,
		InsecureSkipVerify: true, // collect the cert even if invalid; we judge it ourselves below
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return down("TLS_HANDSHAKE_FAILED", err.Error())
	}
	elapsed := elapsedMs(start)

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return down("TLS_NO_CERTIFICATE", "server presented no certificate")
	}

	leaf := state.PeerCertificates[0]
	now := time.Now()
	daysUntilExpiry := int(leaf.NotAfter.Sub(now).Hours() / 24)

	obs := newObservation()
	obs.ResponseTime = elapsed
	obs.IsUp = true
	obs.HealthState = HealthUp
	obs.Meta["daysUntilExpiry"] = daysUntilExpiry
	obs.Meta["notAfter"] = leaf.NotAfter
	obs.Meta["notBefore"] = leaf.NotBefore

	expired := now.After(leaf.NotAfter)
	threshold := monitor.SSLExpiryThresholdDays
	if threshold <= 0 {
		threshold = 14
	}
	expiringSoon := !expired && daysUntilExpiry <= threshold
	hostnameMismatch := leaf.VerifyHostname(hostname) != nil && !matchesWildcard(hostname, leaf)
	selfSigned := leaf.Issuer.CommonName == leaf.Subject.CommonName
	weakSignature := isWeakSignature(leaf.SignatureAlgorithm)

	obs.Meta["expired"] = expired
	obs.Meta["expiringSoon"] = expiringSoon
	obs.Meta["hostnameMismatch"] = hostnameMismatch
	obs.Meta["selfSigned"] = selfSigned
	obs.Meta["weakSignature"] = weakSignature

	if expired {
		obs.IsUp = false
		obs.HealthState = HealthDown
		obs.ErrorType = "CERT_EXPIRED"
	} else if hostnameMismatch {
		obs.HealthState = HealthDegraded
		obs.ErrorType = "CERT_HOSTNAME_MISMATCH"
	} else if selfSigned {
		obs.HealthState = HealthDegraded
		obs.ErrorType = "SELF_SIGNED_CERT"
	} else if expiringSoon {
		obs.HealthState = HealthDegraded
		obs.ErrorType = "CERT_EXPIRING_SOON"
	} else if weakSignature {
		obs.HealthState = HealthDegraded
		obs.ErrorType = "WEAK_SIGNATURE"
	}

	if revoked, checked := p.checkOCSP(ctx, monitor, state.PeerCertificates); checked && revoked {
		obs.IsUp = false
		obs.HealthState = HealthDown
		obs.ErrorType = "CERT_REVOKED"
	}

	return obs
}

// checkOCSP performs an optional revocation check with a 5s budget.
// "unknown", unsupported algorithm, or a responder failure are all ignored
// (not treated as DOWN) since OCSP infrastructure is itself unreliable.
func (p *SSLProber) checkOCSP(ctx context.Context, monitor *store.Monitor, chain []*x509.Certificate) (revoked bool, checked bool) {
	if len(chain) < 2 || len(chain[0].OCSPServer) == 0 {
		return false, false
	}
	leaf, issuer := chain[0], chain[1]

	reqBytes, err := ocsp.CreateRequest(leaf, issuer, nil)
	if err != nil {
		return false, false
	}

	ocspCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &netClientOCSP{}
	respBytes, err := client.post(ocspCtx, leaf.OCSPServer[0], reqBytes)
	if err != nil {
		return false, false
	}

	resp, err := ocsp.ParseResponse(respBytes, issuer)
	if err != nil {
		return false, false
	}

	if resp.Status == ocsp.Revoked {
		return true, true
	}
	return false, true
}

func matchesWildcard(hostname string, cert *x509.Certificate) bool {
	for _, san := range cert.DNSNames {
		if !strings.HasPrefix(san, "*.") {
			continue
		}
		suffix := san[1:] // ".example.com"
		rest := strings.TrimSuffix(hostname, suffix)
		if rest != hostname && !strings.Contains(rest, ".") && rest != "" {
			return true
		}
	}
	return false
}

func isWeakSignature(alg x509.SignatureAlgorithm) bool {
	switch alg {
	case x509.SHA1WithRSA, x509.DSAWithSHA1, x509.ECDSAWithSHA1, x509.MD5WithRSA:
		return true
	default:
		return false
	}
}

// netClientOCSP is a thin wrapper so the OCSP HTTP call site stays isolated
// from the rest of the probe's certificate inspection logic.
type netClientOCSP struct{}

func (c *netClientOCSP) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, 1<<16))
}
