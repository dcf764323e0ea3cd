// Package evaluator refines a raw Classification using the monitor's recent
// check history to damp flapping before it reaches the Check Runner.
package evaluator

import (
	"github.com/pulseguard/core/pkg/classifier"
	"github.com/pulseguard/core/pkg/store"
)

// WindowSize is how many recent checks the Evaluator looks back across.
const WindowSize = 10

// StateTransition describes whether flapping was damped for this check.
type StateTransition struct {
	From              string
	To                string
	PreventedFlapping bool
}

// Result is the Evaluator's output: the (possibly damped) final status plus
// the transition metadata the Check Runner and Reducer act on.
type Result struct {
	Status     string
	Confidence float64
	ErrorType  string
	Reason     string
	Severity   float64
	Transition StateTransition
}

// Evaluate combines the raw classification with the monitor's current
// status and recent window to decide the final status for this check.
// recent is ordered newest-first, matching CheckStore.ListRecent.
func Evaluate(monitor *store.Monitor, c classifier.Classification, recent []*store.Check) Result {
	prev := monitor.CurrentStatus
	if prev == "" {
		prev = classifier.StatusUnknown
	}
	curr := c.Status

	result := Result{
		Status:     curr,
		Confidence: c.Confidence,
		ErrorType:  c.ErrorType,
		Reason:     c.Reason,
		Severity:   c.Severity,
		Transition: StateTransition{From: prev, To: curr},
	}

	// A degraded -> down transition needs a second consecutive DOWN
	// classification once the monitor requires more than one strike.
	if prev == classifier.StatusDegraded && curr == classifier.StatusDown && monitor.AlertThreshold >= 2 {
		if !previousCheckAgrees(recent, classifier.StatusDown) {
			result.Status = classifier.StatusDegraded
			result.Transition.To = classifier.StatusDegraded
			result.Transition.PreventedFlapping = true
			result.Reason = "held at degraded pending a second consecutive down classification"
		}
	}

	return result
}

// previousCheckAgrees reports whether the most recent recorded check already
// carries the given status, i.e. whether this would be the second strike in
// a row rather than the first.
func previousCheckAgrees(recent []*store.Check, status string) bool {
	if len(recent) == 0 {
		return false
	}
	return recent[0].Status == status
}
