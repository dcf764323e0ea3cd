package probe

import (
	"context"
	"errors"
	"time"

	"github.com/miekg/dns"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
)

const dnsDegradedThreshold = time.Second

// DNSProber performs a forward lookup of the monitor's hostname through the
// same Secure Resolver used by every other network-bound probe, so a
// monitor that points at a name resolving to a private address is still
// caught (SSRF_BLOCKED) rather than only CONNECTION_REFUSED elsewhere.
type DNSProber struct {
	resolver hostResolver
}

func (p *DNSProber) Probe(ctx context.Context, monitor *store.Monitor) Observation {
	res := p.resolver
	if res == nil {
		res = resolver.New()
	}

	timeout := timeoutOrDefault(monitor.TimeoutMs)
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := res.Resolve(dialCtx, monitor.Target)
	elapsed := elapsedMs(start)

	if err != nil {
		var blocked *resolver.BlockedError
		if errors.As(err, &blocked) {
			return down("SSRF_BLOCKED", err.Error())
		}
		if dialCtx.Err() != nil {
			return down("DNS_TIMEOUT", "lookup exceeded monitor timeout")
		}
		errType := "DNS_NOT_FOUND"
		var rcodeErr *resolver.RCodeError
		if errors.As(err, &rcodeErr) && rcodeErr.Rcode == dns.RcodeServerFailure {
			errType = "DNS_SERVER_FAILURE"
		}
		o := down(errType, err.Error())
		o.ResponseTime = elapsed
		return o
	}

	obs := newObservation()
	obs.IsUp = true
	obs.HealthState = HealthUp
	obs.ResponseTime = elapsed
	if time.Duration(elapsed)*time.Millisecond > dnsDegradedThreshold {
		obs.HealthState = HealthDegraded
		obs.ErrorType = "HIGH_LATENCY"
	}
	return obs
}
