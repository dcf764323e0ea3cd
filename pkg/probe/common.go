// Package probe implements the protocol-specific probes that turn a monitor
// definition into a raw Observation. Probes never classify status; they only
// report what they saw.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
	"github.com/pulseguard/core/pkg/target"
)

// Observation is the common contract every probe returns, per monitor.target
// reachability check.
type Observation struct {
	IsUp         bool
	ResponseTime int // wall-clock ms, except PING which reports parsed RTT
	StatusCode   *int
	ErrorType    string
	ErrorMessage string
	// HealthState is the probe's own best-effort guess (UP/DOWN/DEGRADED);
	// the classifier is the authority and may override it.
	HealthState string
	Meta         map[string]any
}

const (
	HealthUp       = "up"
	HealthDown     = "down"
	HealthDegraded = "degraded"
)

func newObservation() Observation {
	return Observation{Meta: make(map[string]any)}
}

func down(errType, msg string) Observation {
	o := newObservation()
	o.IsUp = false
	o.HealthState = HealthDown
	o.ErrorType = errType
	o.ErrorMessage = msg
	return o
}

// Prober is implemented by every protocol-specific probe.
type Prober interface {
	Probe(ctx context.Context, monitor *store.Monitor) Observation
}

// hostResolver is the subset of *resolver.Resolver every network-bound probe
// depends on. Probes hold this interface rather than the concrete type so
// tests can substitute a fake that skips the private-IP policy when they
// legitimately need to dial 127.0.0.1.
type hostResolver interface {
	Resolve(ctx context.Context, hostname string) (resolver.Resolution, error)
	ResolveAll(ctx context.Context, hostname string) ([]resolver.Resolution, error)
}

// Registry maps a monitor's protocol to its prober. Built once at startup
// from the concrete implementations in this package.
type Registry struct {
	probers  map[string]Prober
	resolver hostResolver
}

// NewRegistry wires every protocol prober against a shared Secure Resolver.
func NewRegistry(res *resolver.Resolver) *Registry {
	if res == nil {
		res = resolver.New()
	}
	reg := &Registry{probers: make(map[string]Prober), resolver: res}
	reg.probers["HTTP"] = &HTTPProber{resolver: res, tls: false}
	reg.probers["HTTPS"] = &HTTPProber{resolver: res, tls: true}
	reg.probers["TCP"] = &TCPProber{resolver: res}
	reg.probers["UDP"] = &UDPProber{resolver: res}
	reg.probers["DNS"] = &DNSProber{resolver: res}
	reg.probers["SMTP"] = &SMTPProber{resolver: res}
	reg.probers["SSL"] = &SSLProber{resolver: res}
	reg.probers["PING"] = &PingProber{}
	return reg
}

// Probe validates the target, dispatches to the protocol's prober, and
// normalizes validator failures into a DOWN observation. It never panics:
// probes are expected to catch their own expected failure modes, and any
// unexpected panic is the caller's (the Check Runner's) responsibility to
// recover.
func (r *Registry) Probe(ctx context.Context, monitor *store.Monitor) Observation {
	v := target.Validate(monitor.Target, monitor.Protocol)
	if !v.OK {
		return down(v.ErrorType, v.Message)
	}

	prober, ok := r.probers[monitor.Protocol]
	if !ok {
		return down("UNSUPPORTED_PROTOCOL", "no probe registered for protocol "+monitor.Protocol)
	}
	return prober.Probe(ctx, monitor)
}

func timeoutOrDefault(ms int) time.Duration {
	if ms <= 0 {
		ms = 30000
	}
	return time.Duration(ms) * time.Millisecond
}

func degradedThresholdOrDefault(ms int) int {
	if ms <= 0 {
		return 2000
	}
	return ms
}

// dialAddr builds a "host:port" string connecting to resolution.Address while
// the caller retains the original hostname separately for SNI/Host header use
// (DNS-rebinding defence: we never re-resolve the hostname at dial time).
func dialAddr(resolvedIP string, port int) string {
	return net.JoinHostPort(resolvedIP, strconv.Itoa(port))
}

func elapsedMs(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}
