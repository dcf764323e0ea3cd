package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/miekg/dns"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
)

type stubResolver struct {
	resolution resolver.Resolution
	err        error
}

func (s *stubResolver) Resolve(ctx context.Context, hostname string) (resolver.Resolution, error) {
	return s.resolution, s.err
}

func (s *stubResolver) ResolveAll(ctx context.Context, hostname string) ([]resolver.Resolution, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []resolver.Resolution{s.resolution}, nil
}

func TestDNSProber_SuccessfulLookup(t *testing.T) {
	prober := &DNSProber{resolver: &stubResolver{resolution: resolver.Resolution{Address: "93.184.216.34", Family: "ip4"}}}
	monitor := &store.Monitor{Target: "example.com", Protocol: "DNS", TimeoutMs: 2000}

	obs := prober.Probe(context.Background(), monitor)
	if !obs.IsUp {
		t.Fatalf("expected UP, got %+v", obs)
	}
}

func TestDNSProber_SSRFBlockedSurfaced(t *testing.T) {
	prober := &DNSProber{resolver: &stubResolver{err: &resolver.BlockedError{Hostname: "internal.example.com", Address: "10.0.0.1"}}}
	monitor := &store.Monitor{Target: "internal.example.com", Protocol: "DNS", TimeoutMs: 2000}

	obs := prober.Probe(context.Background(), monitor)
	if obs.IsUp {
		t.Fatal("expected DOWN for a hostname resolving to a private address")
	}
	if obs.ErrorType != "SSRF_BLOCKED" {
		t.Errorf("expected SSRF_BLOCKED, got %s", obs.ErrorType)
	}
}

func TestDNSProber_NotFound(t *testing.T) {
	prober := &DNSProber{resolver: &stubResolver{err: errors.New("no such host")}}
	monitor := &store.Monitor{Target: "does-not-exist.example.com", Protocol: "DNS", TimeoutMs: 2000}

	obs := prober.Probe(context.Background(), monitor)
	if obs.IsUp {
		t.Fatal("expected DOWN for an unresolvable hostname")
	}
	if obs.ErrorType != "DNS_NOT_FOUND" {
		t.Errorf("expected DNS_NOT_FOUND, got %s", obs.ErrorType)
	}
}

func TestDNSProber_ServerFailureDistinctFromNotFound(t *testing.T) {
	prober := &DNSProber{resolver: &stubResolver{err: &resolver.RCodeError{Hostname: "broken.example.com", Rcode: dns.RcodeServerFailure}}}
	monitor := &store.Monitor{Target: "broken.example.com", Protocol: "DNS", TimeoutMs: 2000}

	obs := prober.Probe(context.Background(), monitor)
	if obs.IsUp {
		t.Fatal("expected DOWN for a SERVFAIL response")
	}
	if obs.ErrorType != "DNS_SERVER_FAILURE" {
		t.Errorf("expected DNS_SERVER_FAILURE, got %s", obs.ErrorType)
	}
}
