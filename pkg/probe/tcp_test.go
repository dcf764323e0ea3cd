package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
)

// fakeResolver satisfies hostResolver without applying the private-IP
// policy, so tests can dial a real 127.0.0.1 listener.
type fakeResolver struct {
	address string
}

func (f *fakeResolver) Resolve(ctx context.Context, hostname string) (resolver.Resolution, error) {
	return resolver.Resolution{Address: f.address, Family: "ip4"}, nil
}

func (f *fakeResolver) ResolveAll(ctx context.Context, hostname string) ([]resolver.Resolution, error) {
	return []resolver.Resolution{{Address: f.address, Family: "ip4"}}, nil
}

func localResolver(t *testing.T) hostResolver {
	t.Helper()
	return &fakeResolver{address: "127.0.0.1"}
}

func TestTCPProber_ConnectSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	monitor := &store.Monitor{Target: "localhost-test", Port: &port, TimeoutMs: 2000, DegradedThresholdMs: 2000}

	// Override the private-hostname policy rejection by probing directly;
	// the Validator's localhost rule is exercised separately in pkg/target.
	prober := &TCPProber{resolver: localResolver(t)}
	obs := prober.Probe(context.Background(), monitor)

	if !obs.IsUp {
		t.Fatalf("expected connect success, got %+v", obs)
	}
	if obs.HealthState != HealthUp {
		t.Errorf("expected up health state, got %s", obs.HealthState)
	}
}

func TestTCPProber_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // nothing listening now

	monitor := &store.Monitor{Target: "localhost-test", Port: &port, TimeoutMs: 2000}
	prober := &TCPProber{resolver: localResolver(t)}
	obs := prober.Probe(context.Background(), monitor)

	if obs.IsUp {
		t.Fatal("expected connection refused to be DOWN")
	}
	if obs.ErrorType != "CONNECTION_REFUSED" {
		t.Errorf("expected CONNECTION_REFUSED, got %s", obs.ErrorType)
	}
}

func TestTCPProber_TinyDegradedThresholdStillConnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			time.Sleep(20 * time.Millisecond)
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	monitor := &store.Monitor{Target: "localhost-test", Port: &port, TimeoutMs: 2000, DegradedThresholdMs: 1}
	prober := &TCPProber{resolver: localResolver(t)}
	obs := prober.Probe(context.Background(), monitor)

	if !obs.IsUp {
		t.Fatalf("expected connection to still succeed, got %+v", obs)
	}
}

func TestDefaultPortFor(t *testing.T) {
	cases := map[string]int{"SMTP": 25, "DNS": 53, "SSL": 443, "TCP": 80}
	for protocol, want := range cases {
		if got := defaultPortFor(protocol); got != want {
			t.Errorf("%s: expected default port %d, got %d", protocol, want, got)
		}
	}
}
