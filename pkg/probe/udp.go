package probe

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/miekg/dns"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
)

// UDPProber sends a protocol-appropriate datagram and classifies the
// (often inconclusive) response.
type UDPProber struct {
	resolver hostResolver
}

func (p *UDPProber) Probe(ctx context.Context, monitor *store.Monitor) Observation {
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

	payload := udpPayload(port)

	start := time.Now()
	conn, dialErr := net.Dial("udp", dialAddr(res.Address, port))
	if dialErr != nil {
		return down(classifyTCPError(dialErr), dialErr.Error())
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if deadline.IsZero() {
		deadline = time.Now().Add(timeout)
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(payload); err != nil {
		return down("UDP_SEND_FAILED", err.Error())
	}

	buf := make([]byte, 512)
	n, readErr := conn.Read(buf)
	elapsed := elapsedMs(start)

	obs := newObservation()
	obs.ResponseTime = elapsed

	if readErr == nil {
		obs.IsUp = true
		obs.HealthState = HealthUp
		obs.Meta["replyBytes"] = n
		if elapsed > degradedThresholdOrDefault(monitor.DegradedThresholdMs) {
			obs.HealthState = HealthDegraded
			obs.ErrorType = "HIGH_LATENCY"
		}
		return obs
	}

	if isPortUnreachable(readErr) {
		obs.IsUp = false
		obs.HealthState = HealthDown
		obs.ErrorType = "UDP_PORT_UNREACHABLE"
		obs.ErrorMessage = readErr.Error()
		return obs
	}

	// Timeout: UDP has no reliable delivery guarantee, so the absence of a
	// reply is only weak evidence of an outage.
	dnsErr := p.confirmViaDNS(dialCtx, hostname)
	obs.Meta["lowConfidence"] = true
	obs.ErrorType = "UDP_NO_RESPONSE"
	if monitor.StrictMode {
		obs.IsUp = false
		obs.HealthState = HealthDown
		obs.ErrorMessage = "no reply before deadline (strict mode)"
	} else {
		obs.IsUp = true
		obs.HealthState = HealthUp
		obs.ErrorMessage = "no reply before deadline"
	}
	if dnsErr == nil {
		obs.Meta["fallbackUsed"] = "dns"
	}
	return obs
}

func udpPayload(port int) []byte {
	if port == 53 {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn("google.com"), dns.TypeA)
		packed, err := msg.Pack()
		if err == nil {
			return packed
		}
	}
	return []byte("PING")
}

// confirmViaDNS checks whether the hostname itself still resolves, used to
// annotate an inconclusive UDP timeout with fallbackUsed=dns.
func (p *UDPProber) confirmViaDNS(ctx context.Context, hostname string) error {
	_, err := p.resolver.Resolve(ctx, hostname)
	return err
}

func isPortUnreachable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
