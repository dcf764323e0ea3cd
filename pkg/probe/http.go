package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
)

const maxBodyBytes = 1 << 20 // 1 MiB
const maxRedirects = 10

const userAgent = "Mozilla/5.0 (compatible; PulseGuard/1.0; +https://pulseguard.dev/bot)"

// HTTPProber implements the HTTP and HTTPS protocol probe. The same type
// handles both; tls marks the HTTPS variant, which also runs the SSL
// certificate checks on an UP result. The scheme used is the target URL's.
type HTTPProber struct {
	resolver hostResolver
	tls      bool
}

func (p *HTTPProber) Probe(ctx context.Context, monitor *store.Monitor) Observation {
	parsed, err := url.Parse(normalizeTarget(monitor.Target))
	if err != nil {
		return down("INVALID_URL", fmt.Sprintf("failed to parse target: %v", err))
	}

	timeout := timeoutOrDefault(monitor.TimeoutMs)
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := p.resolver.Resolve(dialCtx, parsed.Hostname())
	if err != nil {
		var blocked *resolver.BlockedError
		if errors.As(err, &blocked) {
			return down(resolver.ErrSSRFProtection, err.Error())
		}
		return down("DNS_RESOLUTION_FAILED", err.Error())
	}

	obs, fallbackUsed := p.fetch(dialCtx, parsed, res, monitor, false)
	if fallbackUsed {
		obs.Meta["certChainFallback"] = true
	}

	if p.tls && obs.IsUp {
		p.applySSLDowngrade(dialCtx, parsed.Hostname(), res, monitor, &obs)
	}

	return obs
}

// fetch runs the actual GET, following redirects manually so loop detection
// and the 1xx short-circuit can be implemented precisely. insecureRetry is
// true only on the single fallback attempt after a chain-verification error.
func (p *HTTPProber) fetch(ctx context.Context, start *url.URL, firstHop resolver.Resolution, monitor *store.Monitor, insecureRetry bool) (Observation, bool) {
	visited := map[string]bool{}
	current := start
	currentResolution := firstHop
	redirectCount := 0
	usedFallback := false

	for {
		obs, statusCode, nextLocation, informational, certChainErr, fallbackUsed, reqErr := p.doRequest(ctx, current, currentResolution, monitor, insecureRetry)
		if fallbackUsed {
			usedFallback = true
		}

		if reqErr != nil {
			if certChainErr && !insecureRetry {
				// Retry once, same URL, with verification disabled.
				retryObs, retryFallback := p.fetch(ctx, current, currentResolution, monitor, true)
				return retryObs, retryFallback
			}
			return obs, usedFallback
		}

		if informational {
			obs.HealthState = HealthDegraded
			obs.IsUp = true
			obs.ErrorType = "HTTP_INFORMATIONAL"
			obs.Meta["statusCode"] = statusCode
			return obs, usedFallback
		}

		if statusCode >= 300 && statusCode < 400 && nextLocation != "" {
			redirectCount++
			key := current.String()
			if visited[key] || redirectCount > maxRedirects {
				obs.IsUp = false
				obs.HealthState = HealthDown
				obs.ErrorType = "REDIRECT_LOOP"
				obs.ErrorMessage = fmt.Sprintf("redirect loop or chain exceeding %d hops detected at %s", maxRedirects, key)
				obs.Meta["redirectCount"] = redirectCount
				return obs, usedFallback
			}
			visited[key] = true

			nextURL, err := current.Parse(nextLocation)
			if err != nil {
				obs.IsUp = false
				obs.HealthState = HealthDown
				obs.ErrorType = "REDIRECT_LOOP"
				obs.ErrorMessage = fmt.Sprintf("failed to parse redirect location: %v", err)
				return obs, usedFallback
			}

			nextResolution, err := p.resolver.Resolve(ctx, nextURL.Hostname())
			if err != nil {
				obs.IsUp = false
				obs.HealthState = HealthDown
				obs.ErrorType = "SSRF_PROTECTION"
				obs.ErrorMessage = err.Error()
				return obs, usedFallback
			}

			current = nextURL
			currentResolution = nextResolution
			continue
		}

		obs.Meta["redirectCount"] = redirectCount
		obs.Meta["statusCode"] = statusCode
		return obs, usedFallback
	}
}

// doRequest performs a single HTTP round trip against the resolved IP while
// preserving the original hostname for the Host header and TLS SNI.
func (p *HTTPProber) doRequest(ctx context.Context, u *url.URL, resolved resolver.Resolution, monitor *store.Monitor, insecure bool) (obs Observation, statusCode int, location string, informational bool, certChainErr bool, fallbackUsed bool, err error) {
	obs = newObservation()
	start := time.Now()

	hostname := u.Hostname()
	port := u.Port()
	if port == "" && monitor.Port != nil {
		port = strconv.Itoa(*monitor.Port)
	}
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	addr := net.JoinHostPort(resolved.Address, port)

	dialer := &net.Dialer{}
	transport := &http.Transport{
		DialContext: func(dctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(dctx, network, addr)
		},
	}
	if u.Scheme == "https" {
		transport.TLSClientConfig = &tls.Config{
			ServerName:         hostname,
			InsecureSkipVerify: insecure || monitor.AllowUnauthorized,
		}
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if reqErr != nil {
		return down("INVALID_URL", reqErr.Error()), 0, "", false, false, false, reqErr
	}
	req.Host = hostname
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Connection", "close")

	var infoCode int
	req = req.WithContext(httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		Got1xxResponse: func(code int, _ textproto.MIMEHeader) error {
			infoCode = code
			return errors.New("informational response received")
		},
	}))

	resp, doErr := client.Do(req)
	elapsed := elapsedMs(start)
	if infoCode != 0 {
		obs.ResponseTime, obs.IsUp, obs.StatusCode = elapsed, true, &infoCode
		return obs, infoCode, "", true, false, insecure, nil
	}
	if doErr != nil {
		chainErr := isCertChainError(doErr)
		if ctx.Err() != nil {
			return down("HTTP_TIMEOUT", "request exceeded monitor timeout"), 0, "", false, false, false, doErr
		}
		if chainErr {
			return Observation{Meta: map[string]any{}}, 0, "", false, true, false, doErr
		}
		return down(classifyDialError(doErr), doErr.Error()), 0, "", false, false, false, doErr
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, int64(maxBodyBytes)))
	// Drain whatever is left past the cap so the connection completes
	// normally instead of being reset mid-stream.
	_, _ = io.Copy(io.Discard, resp.Body)

	obs.ResponseTime = elapsed
	obs.IsUp = resp.StatusCode < 400
	obs.HealthState = HealthUp
	code := resp.StatusCode
	obs.StatusCode = &code

	if resp.StatusCode >= 100 && resp.StatusCode < 200 {
		return obs, resp.StatusCode, "", true, false, insecure, nil
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return obs, resp.StatusCode, resp.Header.Get("Location"), false, false, insecure, nil
	}
	if resp.StatusCode >= 400 {
		obs.IsUp = false
		obs.HealthState = HealthDown
	}

	return obs, resp.StatusCode, "", false, false, insecure, nil
}

func (p *HTTPProber) applySSLDowngrade(ctx context.Context, hostname string, resolved resolver.Resolution, monitor *store.Monitor, obs *Observation) {
	sslProber := &SSLProber{resolver: p.resolver}
	port := 443
	if monitor.Port != nil {
		port = *monitor.Port
	}
	sslObs := sslProber.probeHost(ctx, hostname, port, resolved, monitor)

	expired, _ := sslObs.Meta["expired"].(bool)
	expiring, _ := sslObs.Meta["expiringSoon"].(bool)
	mismatch, _ := sslObs.Meta["hostnameMismatch"].(bool)
	selfSigned, _ := sslObs.Meta["selfSigned"].(bool)

	if expired || expiring || mismatch || selfSigned {
		obs.HealthState = HealthDegraded
		if obs.ErrorType == "" {
			obs.ErrorType = sslObs.ErrorType
		}
		for k, v := range sslObs.Meta {
			obs.Meta["ssl_"+k] = v
		}
	}
}

func isCertChainError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "certificate signed by unknown authority") ||
		strings.Contains(msg, "x509: certificate") ||
		strings.Contains(msg, "self-signed")
}

func classifyDialError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "HTTP_TIMEOUT"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return "CONNECTION_REFUSED"
		}
	}
	return "HTTP_CONNECTION_FAILED"
}

func normalizeTarget(raw string) string {
	if !strings.Contains(raw, "://") {
		return "http://" + raw
	}
	return raw
}
