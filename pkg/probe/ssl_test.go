package probe

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/pulseguard/core/pkg/store"
)

func TestMatchesWildcard(t *testing.T) {
	cert := &x509.Certificate{DNSNames: []string{"*.example.com"}}
	if !matchesWildcard("api.example.com", cert) {
		t.Error("expected api.example.com to match *.example.com")
	}
	if matchesWildcard("a.b.example.com", cert) {
		t.Error("wildcard SANs should only match one additional label")
	}
	if matchesWildcard("example.com", cert) {
		t.Error("bare apex domain should not match a wildcard SAN")
	}
}

func TestIsWeakSignature(t *testing.T) {
	if !isWeakSignature(x509.SHA1WithRSA) {
		t.Error("expected SHA1WithRSA to be flagged weak")
	}
	if isWeakSignature(x509.SHA256WithRSA) {
		t.Error("expected SHA256WithRSA to not be flagged weak")
	}
}

func TestSSLProber_SelfSignedCertDetected(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse test server port: %v", err)
	}

	// example.com is one of the httptest certificate's SANs, so the hostname
	// check passes and self-signed is the issue reported.
	monitor := &store.Monitor{Target: "example.com", Port: intPtr(port), TimeoutMs: 2000, SSLExpiryThresholdDays: 14}
	prober := &SSLProber{resolver: localResolver(t)}
	obs := prober.Probe(context.Background(), monitor)

	if obs.HealthState != HealthDegraded {
		t.Errorf("expected a self-signed httptest certificate to degrade the probe, got %+v", obs)
	}
	selfSigned, _ := obs.Meta["selfSigned"].(bool)
	if !selfSigned {
		t.Error("expected selfSigned=true in observation metadata")
	}
	if obs.ErrorType != "SELF_SIGNED_CERT" {
		t.Errorf("expected SELF_SIGNED_CERT, got %s", obs.ErrorType)
	}
}
