package probe

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/pulseguard/core/pkg/store"
)

func startFakeSMTP(t *testing.T, handle func(conn net.Conn)) (port int, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start fake SMTP listener: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()
	return ln.Addr().(*net.TCPAddr).Port, func() { ln.Close() }
}

func TestSMTPProber_HappyPathPort25(t *testing.T) {
	port, closeFn := startFakeSMTP(t, func(conn net.Conn) {
		defer conn.Close()
		reader := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("220 mail.example.com ESMTP\r\n"))
		_, _ = reader.ReadString('\n') // EHLO
		_, _ = conn.Write([]byte("250 mail.example.com\r\n"))
	})
	defer closeFn()

	monitor := &store.Monitor{Target: "smtp-host", Port: intPtr(port), TimeoutMs: 2000}
	prober := &SMTPProber{resolver: localResolver(t)}
	obs := prober.Probe(context.Background(), monitor)

	if !obs.IsUp {
		t.Fatalf("expected UP, got %+v", obs)
	}
}

func TestSMTPProber_InterceptionDetected(t *testing.T) {
	port, closeFn := startFakeSMTP(t, func(conn net.Conn) {
		defer conn.Close()
		_, _ = conn.Write([]byte("250 proxy intercepted\r\n"))
	})
	defer closeFn()

	monitor := &store.Monitor{Target: "smtp-host", Port: intPtr(port), TimeoutMs: 2000}
	prober := &SMTPProber{resolver: localResolver(t)}
	obs := prober.Probe(context.Background(), monitor)

	if obs.IsUp {
		t.Fatal("expected interception to be DOWN")
	}
	if obs.ErrorType != "SMTP_CONNECT_FAILED" {
		t.Errorf("expected SMTP_CONNECT_FAILED, got %s", obs.ErrorType)
	}
	if !strings.Contains(obs.ErrorMessage, "Interception") {
		t.Errorf("expected error message to mention Interception, got %q", obs.ErrorMessage)
	}
}

func TestSMTPProber_TransientDegraded(t *testing.T) {
	port, closeFn := startFakeSMTP(t, func(conn net.Conn) {
		defer conn.Close()
		reader := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("220 mail.example.com ESMTP\r\n"))
		_, _ = reader.ReadString('\n')
		_, _ = conn.Write([]byte("421 Service not available\r\n"))
	})
	defer closeFn()

	monitor := &store.Monitor{Target: "smtp-host", Port: intPtr(port), TimeoutMs: 2000}
	prober := &SMTPProber{resolver: localResolver(t)}
	obs := prober.Probe(context.Background(), monitor)

	if obs.HealthState != HealthDegraded {
		t.Errorf("expected DEGRADED on 421, got %+v", obs)
	}
	if obs.ErrorType != "SMTP_TEMPORARILY_UNAVAILABLE" {
		t.Errorf("expected SMTP_TEMPORARILY_UNAVAILABLE, got %s", obs.ErrorType)
	}
}

func intPtr(n int) *int { return &n }
