package probe

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
)

// TCPProber opens a stream socket to the resolved address and classifies
// the connect outcome.
type TCPProber struct {
	resolver hostResolver
}

func (p *TCPProber) Probe(ctx context.Context, monitor *store.Monitor) Observation {
	hostname, port := hostPort(monitor)
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

	start := time.Now()
	conn, dialErr := (&net.Dialer{}).DialContext(dialCtx, "tcp", dialAddr(res.Address, port))
	elapsed := elapsedMs(start)

	if dialErr != nil {
		return down(classifyTCPError(dialErr), dialErr.Error())
	}
	defer conn.Close()

	obs := newObservation()
	obs.ResponseTime = elapsed
	obs.IsUp = true
	obs.HealthState = HealthUp

	if elapsed > degradedThresholdOrDefault(monitor.DegradedThresholdMs) {
		obs.HealthState = HealthDegraded
		obs.ErrorType = "HIGH_LATENCY"
	}
	return obs
}

func classifyTCPError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "CONNECTION_TIMEOUT"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "CONNECTION_REFUSED"
	}
	if errors.Is(err, syscall.EHOSTUNREACH) {
		return "HOST_UNREACHABLE"
	}
	if errors.Is(err, syscall.ENETUNREACH) {
		return "NETWORK_UNREACHABLE"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "CONNECTION_RESET"
	}
	return "CONNECTION_REFUSED"
}

// hostPort extracts the hostname and port a non-HTTP monitor targets,
// defaulting the port by protocol when the monitor did not set one.
func hostPort(monitor *store.Monitor) (string, int) {
	host := monitor.Target
	if h, _, err := net.SplitHostPort(monitor.Target); err == nil {
		host = h
	}
	if monitor.Port != nil {
		return host, *monitor.Port
	}
	return host, defaultPortFor(monitor.Protocol)
}

func defaultPortFor(protocol string) int {
	switch protocol {
	case "SMTP":
		return 25
	case "DNS":
		return 53
	case "SSL":
		return 443
	default:
		return 80
	}
}
