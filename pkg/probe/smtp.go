package probe

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/store"
)

// SMTPProber resolves every address for the target, tries IPv6 addresses
// first, and speaks just enough SMTP to confirm the server is healthy
// without sending mail.
type SMTPProber struct {
	resolver hostResolver
}

func (p *SMTPProber) Probe(ctx context.Context, monitor *store.Monitor) Observation {
	hostname, port := hostPort(monitor)
	timeout := timeoutOrDefault(monitor.TimeoutMs)

	addrs, err := p.resolveAll(ctx, hostname)
	if err != nil {
		var blocked *resolver.BlockedError
		if errors.As(err, &blocked) {
			return down(resolver.ErrSSRFProtection, err.Error())
		}
		return down("DNS_RESOLUTION_FAILED", err.Error())
	}

	perIPBudget := timeout / time.Duration(len(addrs))
	if perIPBudget < 8*time.Second {
		perIPBudget = 8 * time.Second
	}

	var lastObs Observation
	for _, addr := range addrs {
		attemptCtx, cancel := context.WithTimeout(ctx, perIPBudget)
		obs := p.attempt(attemptCtx, hostname, addr, port)
		cancel()
		if obs.IsUp || obs.HealthState == HealthDegraded {
			return obs
		}
		lastObs = obs
	}
	return lastObs
}

func (p *SMTPProber) resolveAll(ctx context.Context, hostname string) ([]string, error) {
	resolutions, err := p.resolver.ResolveAll(ctx, hostname)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, len(resolutions))
	for i, r := range resolutions {
		addrs[i] = r.Address
	}
	return addrs, nil
}

func (p *SMTPProber) attempt(ctx context.Context, hostname, ip string, port int) Observation {
	start := time.Now()
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return down(classifyTCPError(err), err.Error())
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	reader := bufio.NewReader(conn)

	banner, code, err := readSMTPLine(reader)
	if err != nil {
		return down("SMTP_CONNECTION_FAILED", err.Error())
	}
	if code == 250 {
		return down("SMTP_CONNECT_FAILED", "Interception detected: received 250 banner instead of 220: "+banner)
	}
	if code != 220 {
		return down("SMTP_UNEXPECTED_BANNER", fmt.Sprintf("unexpected banner code %d: %s", code, banner))
	}

	if _, err := fmt.Fprintf(conn, "EHLO pulse-guard\r\n"); err != nil {
		return down("SMTP_CONNECTION_FAILED", err.Error())
	}
	ehloReply, ehloCode, err := readSMTPMultiline(reader)
	if err != nil {
		return down("SMTP_CONNECTION_FAILED", err.Error())
	}
	if ehloCode == 421 {
		obs := newObservation()
		obs.IsUp = false
		obs.HealthState = HealthDegraded
		obs.ErrorType = "SMTP_TEMPORARILY_UNAVAILABLE"
		obs.ErrorMessage = ehloReply
		obs.ResponseTime = elapsedMs(start)
		return obs
	}

	if port == 587 {
		if _, err := fmt.Fprintf(conn, "STARTTLS\r\n"); err != nil {
			return down("SMTP_CONNECTION_FAILED", err.Error())
		}
		_, startCode, err := readSMTPLine(reader)
		if err != nil {
			return down("SMTP_CONNECTION_FAILED", err.Error())
		}
		if startCode != 220 {
			return down("SMTP_STARTTLS_FAILED", fmt.Sprintf("STARTTLS rejected with code %d", startCode))
		}

		tlsConn := tls.Client(conn, &tls.Config{ServerName: hostname})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return down("SMTP_STARTTLS_FAILED", err.Error())
		}
		tlsReader := bufio.NewReader(tlsConn)
		if _, err := fmt.Fprintf(tlsConn, "EHLO pulse-guard\r\n"); err != nil {
			return down("SMTP_CONNECTION_FAILED", err.Error())
		}
		_, finalCode, err := readSMTPMultiline(tlsReader)
		if err != nil {
			return down("SMTP_CONNECTION_FAILED", err.Error())
		}
		if finalCode != 250 {
			return down("SMTP_HANDSHAKE_FAILED", fmt.Sprintf("post-STARTTLS EHLO returned %d", finalCode))
		}
	} else if ehloCode != 250 {
		return down("SMTP_HANDSHAKE_FAILED", fmt.Sprintf("EHLO/HELO returned %d", ehloCode))
	}

	obs := newObservation()
	obs.IsUp = true
	obs.HealthState = HealthUp
	obs.ResponseTime = elapsedMs(start)
	return obs
}

func readSMTPLine(r *bufio.Reader) (string, int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", 0, err
	}
	return parseSMTPCode(line)
}

// readSMTPMultiline reads continuation lines ("250-...") until the final
// line ("250 ...") and returns its code.
func readSMTPMultiline(r *bufio.Reader) (string, int, error) {
	var last string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", 0, err
		}
		last = line
		if len(line) >= 4 && line[3] == ' ' {
			break
		}
	}
	return parseSMTPCode(last)
}

func parseSMTPCode(line string) (string, int, error) {
	if len(line) < 3 {
		return line, 0, fmt.Errorf("malformed SMTP line: %q", line)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return line, 0, fmt.Errorf("malformed SMTP status code: %w", err)
	}
	return strings.TrimSpace(line), code, nil
}
