package alert

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is the flat structure published to NATS for every alert-worthy
// state transition, mirroring the discrete events a fleet-wide collector
// would want to subscribe to.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Slave     int       `json:"slave"`
	OldState  string    `json:"old_state"`
	NewState  string    `json:"new_state"`
}

// EventBus publishes Engine state transitions to NATS. It is an optional
// collaborator: a nil *EventBus is safe to call StateChange on, so the
// Engine never needs to know whether NATS is configured.
type EventBus struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewEventBus connects to url and returns an EventBus publishing to
// subject. Returns nil, nil when url is empty (alerts.nats_url unset),
// matching the "optional collaborator" pattern used elsewhere in this
// codebase for disabled transports.
func NewEventBus(url, subject string, logger *slog.Logger) (*EventBus, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url, nats.MaxReconnects(10), nats.ReconnectWait(5*time.Second))
	if err != nil {
		return nil, err
	}
	return &EventBus{conn: conn, subject: subject, logger: logger}, nil
}

// StateChange publishes one transition. Safe to call on a nil receiver.
func (b *EventBus) StateChange(slave int, oldState, newState string) {
	if b == nil || b.conn == nil || !b.conn.IsConnected() {
		return
	}

	data, err := json.Marshal(Event{
		Timestamp: time.Now().UTC(),
		Type:      "state_change",
		Slave:     slave,
		OldState:  oldState,
		NewState:  newState,
	})
	if err != nil {
		b.logger.Error("failed to marshal alert event", "error", err)
		return
	}

	if err := b.conn.Publish(b.subject, data); err != nil {
		b.logger.Warn("failed to publish alert event", "error", err)
	}
}

// Close closes the underlying NATS connection. Safe on nil.
func (b *EventBus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	b.conn.Close()
}
