package resolver

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// RCodeError reports a DNS response code that is neither a successful answer
// nor a plain NXDOMAIN, so a real server failure (SERVFAIL) is never
// collapsed into a generic "no such host" the way net.Resolver would.
type RCodeError struct {
	Hostname string
	Rcode    int
}

func (e *RCodeError) Error() string {
	return fmt.Sprintf("dns lookup for %s returned %s", e.Hostname, dns.RcodeToString[e.Rcode])
}

// miekgLookup resolves hostname's A and AAAA records by querying the
// system's configured nameserver directly, instead of net.DefaultResolver,
// so the Rcode of the response is visible to the caller. Falls back to
// net.DefaultResolver if /etc/resolv.conf can't be read (e.g. non-Unix
// hosts), since that's the only portable source of a nameserver address.
func miekgLookup(ctx context.Context, hostname string) ([]net.IPAddr, error) {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return net.DefaultResolver.LookupIPAddr(ctx, hostname)
	}

	client := &dns.Client{}
	server := net.JoinHostPort(conf.Servers[0], conf.Port)

	var addrs []net.IPAddr
	var sawSuccess bool
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(hostname), qtype)

		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.Rcode == dns.RcodeServerFailure {
			return nil, &RCodeError{Hostname: hostname, Rcode: resp.Rcode}
		}
		if resp.Rcode != dns.RcodeSuccess {
			continue
		}
		sawSuccess = true

		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				addrs = append(addrs, net.IPAddr{IP: rec.A})
			case *dns.AAAA:
				addrs = append(addrs, net.IPAddr{IP: rec.AAAA})
			}
		}
	}

	if !sawSuccess {
		return nil, &RCodeError{Hostname: hostname, Rcode: dns.RcodeNameError}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", hostname)
	}
	return addrs, nil
}
