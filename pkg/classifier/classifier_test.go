package classifier

import (
	"testing"

	"github.com/pulseguard/core/pkg/probe"
	"github.com/pulseguard/core/pkg/store"
)

func code(n int) *int { return &n }

func TestClassifyHTTP_NoStatusCodeIsTimeout(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000}
	obs := probe.Observation{ResponseTime: 100, Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusDown || c.ErrorType != "HTTP_TIMEOUT" {
		t.Errorf("expected DOWN/HTTP_TIMEOUT, got %+v", c)
	}
	if c.Severity != 1.0 {
		t.Errorf("expected severity 1.0, got %v", c.Severity)
	}
}

func TestClassifyHTTP_ElapsedBeyondTimeoutIsTimeout(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 1000}
	obs := probe.Observation{ResponseTime: 5000, StatusCode: code(200), Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusDown || c.ErrorType != "HTTP_TIMEOUT" {
		t.Errorf("expected DOWN/HTTP_TIMEOUT even with a 200, got %+v", c)
	}
}

func TestClassifyHTTP_Informational(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000}
	obs := probe.Observation{ResponseTime: 100, StatusCode: code(103), Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusDegraded || c.ErrorType != "HTTP_INFORMATIONAL" || c.Severity != 0.6 {
		t.Errorf("expected DEGRADED/HTTP_INFORMATIONAL/0.6, got %+v", c)
	}
}

func TestClassifyHTTP_FastSuccessIsUp(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000, DegradedThresholdMs: 2000}
	obs := probe.Observation{ResponseTime: 50, StatusCode: code(200), Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusUp || c.Severity != 0 {
		t.Errorf("expected UP with zero severity, got %+v", c)
	}
}

func TestClassifyHTTP_SlowSuccessIsHighLatency(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000, DegradedThresholdMs: 1000}
	obs := probe.Observation{ResponseTime: 2000, StatusCode: code(200), Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusDegraded || c.ErrorType != "HIGH_LATENCY" {
		t.Errorf("expected DEGRADED/HIGH_LATENCY, got %+v", c)
	}
	if c.Severity <= 0 || c.Severity > 0.9 {
		t.Errorf("expected severity in (0, 0.9], got %v", c.Severity)
	}
}

func TestClassifyHTTP_RedirectWithinLimitIsUp(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000}
	obs := probe.Observation{ResponseTime: 100, StatusCode: code(302), Meta: map[string]any{"redirectCount": 3}}

	c := Classify(monitor, obs)
	if c.Status != StatusUp {
		t.Errorf("expected UP for a redirect within the hop limit, got %+v", c)
	}
}

func TestClassifyHTTP_RedirectLoopExceedsLimit(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000}
	obs := probe.Observation{ResponseTime: 100, StatusCode: code(302), Meta: map[string]any{"redirectCount": 11}}

	c := Classify(monitor, obs)
	if c.Status != StatusDown || c.ErrorType != "REDIRECT_LOOP" {
		t.Errorf("expected DOWN/REDIRECT_LOOP, got %+v", c)
	}
}

func TestClassifyHTTP_RateLimited(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000}
	obs := probe.Observation{ResponseTime: 100, StatusCode: code(429), Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusDegraded || c.ErrorType != "HTTP_RATE_LIMIT" {
		t.Errorf("expected DEGRADED/HTTP_RATE_LIMIT, got %+v", c)
	}
}

func TestClassifyHTTP_NotFoundIsMaxSeverity(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000}
	obs := probe.Observation{ResponseTime: 100, StatusCode: code(404), Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusDown || c.ErrorType != "HTTP_CLIENT_ERROR" || c.Severity != 1.0 {
		t.Errorf("expected DOWN/HTTP_CLIENT_ERROR/1.0, got %+v", c)
	}
}

func TestClassifyHTTP_OtherClientErrorIsLowerSeverity(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000}
	obs := probe.Observation{ResponseTime: 100, StatusCode: code(403), Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Severity != 0.9 {
		t.Errorf("expected severity 0.9 for non-404 client errors, got %v", c.Severity)
	}
}

func TestClassifyHTTP_ServerError(t *testing.T) {
	monitor := &store.Monitor{Protocol: "HTTP", TimeoutMs: 5000}
	obs := probe.Observation{ResponseTime: 100, StatusCode: code(503), Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusDown || c.ErrorType != "HTTP_SERVER_ERROR" || c.Severity != 1.0 {
		t.Errorf("expected DOWN/HTTP_SERVER_ERROR/1.0, got %+v", c)
	}
}

func TestClassifyGeneric_PassesThroughUp(t *testing.T) {
	monitor := &store.Monitor{Protocol: "TCP"}
	obs := probe.Observation{HealthState: probe.HealthUp, Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Status != StatusUp || c.Confidence != ConfidenceHigh {
		t.Errorf("expected UP/high confidence, got %+v", c)
	}
}

func TestClassifyGeneric_LowConfidenceUDPTimeout(t *testing.T) {
	monitor := &store.Monitor{Protocol: "UDP"}
	obs := probe.Observation{HealthState: probe.HealthUp, ErrorType: "UDP_NO_RESPONSE", Meta: map[string]any{"lowConfidence": true}}

	c := Classify(monitor, obs)
	if c.Confidence != ConfidenceLow {
		t.Errorf("expected low confidence on a lenient UDP timeout, got %+v", c)
	}
}

func TestClassifyGeneric_PacketLossSeverityFromMeta(t *testing.T) {
	monitor := &store.Monitor{Protocol: "PING"}
	obs := probe.Observation{HealthState: probe.HealthDegraded, ErrorType: "PACKET_LOSS", Meta: map[string]any{"severity": 0.4}}

	c := Classify(monitor, obs)
	if c.Severity != 0.4 {
		t.Errorf("expected severity sourced from meta, got %v", c.Severity)
	}
}

func TestClassifyGeneric_DownDefaultsToFullSeverity(t *testing.T) {
	monitor := &store.Monitor{Protocol: "DNS"}
	obs := probe.Observation{HealthState: probe.HealthDown, ErrorType: "DNS_NOT_FOUND", Meta: map[string]any{}}

	c := Classify(monitor, obs)
	if c.Severity != 1.0 {
		t.Errorf("expected default DOWN severity of 1.0, got %v", c.Severity)
	}
}
