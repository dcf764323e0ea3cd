// Package resolver implements the SSRF-protected hostname resolution every
// network-bound probe must go through before it dials anything.
package resolver

import (
	"context"
	"fmt"
	"net"
	"sort"
)

// ErrorType for resolution failures that are not plain DNS errors.
const ErrSSRFProtection = "SSRF_PROTECTION"

// Resolution is the single address a probe is allowed to connect to.
type Resolution struct {
	Address string // dotted/colon IP literal, no port
	Family  string // "ip4" or "ip6"
}

// BlockedError is returned when every candidate address (or the only one
// inspected) falls inside the private-IP policy.
type BlockedError struct {
	Hostname string
	Address  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("resolved address %s for host %s is private or reserved: %s", e.Address, e.Hostname, ErrSSRFProtection)
}

// Lookup abstracts net.DefaultResolver.LookupIPAddr so tests can substitute
// a deterministic fake without touching the real network.
type Lookup func(ctx context.Context, host string) ([]net.IPAddr, error)

// Resolver resolves hostnames while rejecting any address in the private-IP
// policy. A hostname with even one private address in its answer set is
// rejected outright, since an attacker-controlled DNS record could otherwise
// round-robin between a public decoy and a private target.
type Resolver struct {
	lookup Lookup
}

// New returns a Resolver backed by a direct miekg/dns query against the
// system's configured nameserver, so a SERVFAIL response can be told apart
// from NXDOMAIN (see RCodeError) rather than collapsed into the single
// "no such host" error net.DefaultResolver would return for both.
func New() *Resolver {
	return &Resolver{lookup: miekgLookup}
}

// NewWithLookup returns a Resolver backed by a custom lookup function, for tests.
func NewWithLookup(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve looks up all A/AAAA records for hostname and returns the first
// public address. If hostname is itself already an IP literal it is checked
// against the private-IP policy directly without a DNS round trip.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (Resolution, error) {
	if ip := net.ParseIP(hostname); ip != nil {
		if IsPrivate(ip) {
			return Resolution{}, &BlockedError{Hostname: hostname, Address: ip.String()}
		}
		return Resolution{Address: ip.String(), Family: family(ip)}, nil
	}

	addrs, err := r.lookup(ctx, hostname)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve %s: %w", hostname, err)
	}
	if len(addrs) == 0 {
		return Resolution{}, fmt.Errorf("no addresses found for %s", hostname)
	}

	for _, addr := range addrs {
		if IsPrivate(addr.IP) {
			return Resolution{}, &BlockedError{Hostname: hostname, Address: addr.IP.String()}
		}
	}

	first := addrs[0].IP
	return Resolution{Address: first.String(), Family: family(first)}, nil
}

// ResolveAll returns every public address for hostname, IPv6 addresses
// first, for callers (SMTP) that must try more than one address in turn.
// As with Resolve, a single private address anywhere in the answer set
// rejects the whole hostname.
func (r *Resolver) ResolveAll(ctx context.Context, hostname string) ([]Resolution, error) {
	if ip := net.ParseIP(hostname); ip != nil {
		if IsPrivate(ip) {
			return nil, &BlockedError{Hostname: hostname, Address: ip.String()}
		}
		return []Resolution{{Address: ip.String(), Family: family(ip)}}, nil
	}

	addrs, err := r.lookup(ctx, hostname)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", hostname, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", hostname)
	}
	for _, addr := range addrs {
		if IsPrivate(addr.IP) {
			return nil, &BlockedError{Hostname: hostname, Address: addr.IP.String()}
		}
	}

	results := make([]Resolution, 0, len(addrs))
	for _, addr := range addrs {
		results = append(results, Resolution{Address: addr.IP.String(), Family: family(addr.IP)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		iV6 := results[i].Family == "ip6"
		jV6 := results[j].Family == "ip6"
		return iV6 && !jV6
	})
	return results, nil
}

func family(ip net.IP) string {
	if ip.To4() != nil {
		return "ip4"
	}
	return "ip6"
}

var privateIPv4Blocks []*net.IPNet
var privateIPv6Blocks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"192.168.0.0/16",
		"172.16.0.0/12",
		"169.254.0.0/16",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil {
			privateIPv4Blocks = append(privateIPv4Blocks, block)
		}
	}
	for _, cidr := range []string{
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil {
			privateIPv6Blocks = append(privateIPv6Blocks, block)
		}
	}
}

// IsPrivate reports whether ip falls inside the private-IP policy. IPv4-mapped
// IPv6 addresses (::ffff:10.0.0.1) are unwrapped to their IPv4 form first.
func IsPrivate(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		for _, block := range privateIPv4Blocks {
			if block.Contains(v4) {
				return true
			}
		}
		return false
	}
	for _, block := range privateIPv6Blocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
