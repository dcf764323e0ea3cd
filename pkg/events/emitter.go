// Package events is a thin fan-out adapter (spec §4.I): every check publishes
// a monitor_update, status transitions publish monitor_status_change plus a
// status-specific event, and incident opens publish incident_created. All
// events are published to a single Redis topic for multi-process fan-out;
// each process is expected to forward matching events to its own locally
// connected sockets.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulseguard/core/pkg/classifier"
	"github.com/pulseguard/core/pkg/evaluator"
	"github.com/pulseguard/core/pkg/store"
)

// Channel is the single pub/sub topic every event is published to.
const Channel = "monitor_updates"

// Event types.
const (
	TypeMonitorUpdate       = "monitor_update"
	TypeMonitorStatusChange = "monitor_status_change"
	TypeMonitorDown         = "monitor_down"
	TypeMonitorDegraded     = "monitor_degraded"
	TypeMonitorUnknown      = "monitor_unknown"
	TypeIncidentCreated     = "incident_created"
)

// Event is the envelope every publication carries.
type Event struct {
	MonitorID string      `json:"monitorId"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// publisher is the subset of *redis.Client the Emitter depends on, so tests
// can substitute a fake instead of requiring a live Redis server.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Emitter publishes monitor lifecycle events to the shared Redis topic.
type Emitter struct {
	rdb publisher
}

// NewEmitter builds an Emitter backed by the given Redis client.
func NewEmitter(rdb *redis.Client) *Emitter {
	return &Emitter{rdb: rdb}
}

// EmitCheckUpdate publishes a monitor_update for every completed check.
func (e *Emitter) EmitCheckUpdate(ctx context.Context, monitorID string, check *store.Check) error {
	return e.publish(ctx, TypeMonitorUpdate, monitorID, check)
}

// EmitStatusChange publishes monitor_status_change plus, for a down,
// degraded, or unknown destination status, the matching status-specific
// event. An up destination emits only the status-change event.
func (e *Emitter) EmitStatusChange(ctx context.Context, monitorID string, transition evaluator.StateTransition) error {
	if err := e.publish(ctx, TypeMonitorStatusChange, monitorID, transition); err != nil {
		return err
	}

	var specific string
	switch transition.To {
	case classifier.StatusDown:
		specific = TypeMonitorDown
	case classifier.StatusDegraded:
		specific = TypeMonitorDegraded
	case classifier.StatusUnknown:
		specific = TypeMonitorUnknown
	default:
		return nil
	}
	return e.publish(ctx, specific, monitorID, transition)
}

// EmitIncidentCreated publishes incident_created when the Reducer opens a
// new incident.
func (e *Emitter) EmitIncidentCreated(ctx context.Context, monitorID string, incident *store.Incident) error {
	return e.publish(ctx, TypeIncidentCreated, monitorID, incident)
}

func (e *Emitter) publish(ctx context.Context, eventType, monitorID string, payload interface{}) error {
	body, err := json.Marshal(Event{
		MonitorID: monitorID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	if err := e.rdb.Publish(ctx, Channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}
