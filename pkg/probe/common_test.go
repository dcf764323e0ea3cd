package probe

import (
	"context"
	"testing"

	"github.com/pulseguard/core/pkg/store"
)

func TestRegistry_ValidatorShortCircuitsBeforeProbing(t *testing.T) {
	reg := NewRegistry(nil)
	monitor := &store.Monitor{Target: "   ", Protocol: "HTTP"}

	obs := reg.Probe(context.Background(), monitor)
	if obs.IsUp {
		t.Fatal("expected validator failure to short-circuit with DOWN")
	}
	if obs.ErrorType != "MISSING_TARGET" {
		t.Errorf("expected MISSING_TARGET, got %s", obs.ErrorType)
	}
}

func TestRegistry_UnsupportedProtocol(t *testing.T) {
	reg := NewRegistry(nil)
	monitor := &store.Monitor{Target: "example.com", Protocol: "GOPHER"}

	obs := reg.Probe(context.Background(), monitor)
	if obs.IsUp {
		t.Fatal("expected unsupported protocol to be DOWN")
	}
	if obs.ErrorType != "UNSUPPORTED_PROTOCOL" {
		t.Errorf("expected UNSUPPORTED_PROTOCOL, got %s", obs.ErrorType)
	}
}

func TestTimeoutOrDefault(t *testing.T) {
	if got := timeoutOrDefault(0); got.Milliseconds() != 30000 {
		t.Errorf("expected default 30000ms, got %v", got)
	}
	if got := timeoutOrDefault(5000); got.Milliseconds() != 5000 {
		t.Errorf("expected 5000ms, got %v", got)
	}
}

func TestDegradedThresholdOrDefault(t *testing.T) {
	if got := degradedThresholdOrDefault(0); got != 2000 {
		t.Errorf("expected default 2000, got %d", got)
	}
	if got := degradedThresholdOrDefault(500); got != 500 {
		t.Errorf("expected 500, got %d", got)
	}
}
