package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/pulseguard/core/pkg/store"
)

func testHTTPMonitor(t *testing.T, ts *httptest.Server) *store.Monitor {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse test server port: %v", err)
	}
	return &store.Monitor{
		Target:              "http://probe-under-test/",
		Protocol:            "HTTP",
		Port:                &port,
		TimeoutMs:           3000,
		DegradedThresholdMs: 2000,
	}
}

func TestHTTPProber_SuccessfulGet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	monitor := testHTTPMonitor(t, ts)
	prober := &HTTPProber{resolver: localResolver(t), tls: false}
	obs := prober.Probe(context.Background(), monitor)

	if !obs.IsUp {
		t.Fatalf("expected UP, got %+v", obs)
	}
	if obs.StatusCode == nil || *obs.StatusCode != 200 {
		t.Errorf("expected status 200, got %+v", obs.StatusCode)
	}
}

func TestHTTPProber_ServerErrorIsDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	monitor := testHTTPMonitor(t, ts)
	prober := &HTTPProber{resolver: localResolver(t), tls: false}
	obs := prober.Probe(context.Background(), monitor)

	if obs.IsUp {
		t.Fatalf("expected 500 to be DOWN, got %+v", obs)
	}
}

func TestHTTPProber_RedirectFollowed(t *testing.T) {
	var finalHit bool
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		finalHit = true
		w.WriteHeader(http.StatusOK)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	monitor := testHTTPMonitor(t, ts)
	monitor.Target = "http://probe-under-test/start"
	prober := &HTTPProber{resolver: localResolver(t), tls: false}
	obs := prober.Probe(context.Background(), monitor)

	if !obs.IsUp {
		t.Fatalf("expected redirect chain to resolve to UP, got %+v", obs)
	}
	if !finalHit {
		t.Error("expected the redirect target to have been requested")
	}
}

func TestHTTPProber_RedirectLoopDetected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	monitor := testHTTPMonitor(t, ts)
	monitor.Target = "http://probe-under-test/a"
	prober := &HTTPProber{resolver: localResolver(t), tls: false}
	obs := prober.Probe(context.Background(), monitor)

	if obs.IsUp {
		t.Fatal("expected redirect loop to be DOWN")
	}
	if obs.ErrorType != "REDIRECT_LOOP" {
		t.Errorf("expected REDIRECT_LOOP, got %s", obs.ErrorType)
	}
}

func TestHTTPProber_InformationalShortCircuits(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		hj, ok := w.(http.Hijacker)
		if !ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = bufrw.WriteString("HTTP/1.1 103 Early Hints\r\n\r\n")
		_ = bufrw.Flush()
		_, _ = bufrw.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
		_ = bufrw.Flush()
	}))
	defer ts.Close()

	monitor := testHTTPMonitor(t, ts)
	prober := &HTTPProber{resolver: localResolver(t), tls: false}
	obs := prober.Probe(context.Background(), monitor)

	// The probe stops at the 103 instead of waiting for the final 200.
	if obs.ErrorType != "HTTP_INFORMATIONAL" {
		t.Errorf("expected HTTP_INFORMATIONAL, got %+v", obs)
	}
	if obs.HealthState != HealthDegraded {
		t.Errorf("expected a degraded health state, got %s", obs.HealthState)
	}
	if obs.StatusCode == nil || *obs.StatusCode != 103 {
		t.Errorf("expected status code 103, got %v", obs.StatusCode)
	}
}

func TestNormalizeTarget(t *testing.T) {
	if got := normalizeTarget("example.com"); got != "http://example.com" {
		t.Errorf("expected auto-prefixed target, got %q", got)
	}
	if got := normalizeTarget("https://example.com"); got != "https://example.com" {
		t.Errorf("expected unchanged target, got %q", got)
	}
}
