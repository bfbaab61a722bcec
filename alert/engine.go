// Package alert maintains per-device online/offline debounce and cooldown
// state and dispatches change-of-state notifications to a chat transport.
package alert

import (
	"log/slog"
	"sync"
	"time"

	"silomonitor/state"
)

// Kind discriminates the notifications the engine can emit.
type Kind int

const (
	KindOffline Kind = iota
	KindRecovery
	KindStartup
	KindCritical
	KindTest
)

// Notification is one message the engine wants delivered to the chat
// transport.
type Notification struct {
	Kind  Kind
	Slave int
	Text  string
}

// Transport delivers a rendered notification. Implemented by
// *TelegramTransport in production and by fakes in tests.
type Transport interface {
	Send(text string) error
}

// EventSink optionally mirrors alert-worthy transitions onto a side
// channel (for example NATS) without the engine knowing what the sink
// is. Nil-safe: a nil EventSink is simply never called.
type EventSink interface {
	StateChange(slave int, oldState, newState string)
}

// Engine owns the debounce set and per-slave cooldown timestamps,
// guarded by its own mutex, independent of the State Store's mutex.
type Engine struct {
	offlineThreshold time.Duration
	cooldown         time.Duration
	transport        Transport
	sink             EventSink
	logger           *slog.Logger
	location         *time.Location

	mu              sync.Mutex
	currentlyOffline map[int]bool
	lastAlert        map[int]time.Time
}

// NewEngine builds an Engine. transport may be nil to disable delivery
// while still exercising the debounce state machine (useful for tests
// and for alerts.enabled=false deployments).
func NewEngine(offlineThreshold, cooldown time.Duration, transport Transport, sink EventSink, location *time.Location, logger *slog.Logger) *Engine {
	return &Engine{
		offlineThreshold: offlineThreshold,
		cooldown:         cooldown,
		transport:        transport,
		sink:             sink,
		location:         location,
		logger:           logger,
		currentlyOffline: make(map[int]bool),
		lastAlert:        make(map[int]time.Time),
	}
}

// Evaluate inspects a State Store snapshot and emits any OFFLINE/RECOVERY
// notifications the debounce policy calls for at time now.
func (e *Engine) Evaluate(snapshot map[int]state.Status, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for slave, st := range snapshot {
		offlineTooLong := !st.Online && (st.LastOK == nil || now.Sub(*st.LastOK) > e.offlineThreshold)

		if offlineTooLong && !e.currentlyOffline[slave] {
			e.currentlyOffline[slave] = true
			e.maybeSendOffline(slave, st, now)
		} else if st.Online && e.currentlyOffline[slave] {
			delete(e.currentlyOffline, slave)
			delete(e.lastAlert, slave)
			e.send(KindRecovery, slave, formatRecovery(slave, st, e.location))
		}
	}
}

// maybeSendOffline emits an OFFLINE notification unless the per-slave
// cooldown window is still active. Callers must hold e.mu.
func (e *Engine) maybeSendOffline(slave int, st state.Status, now time.Time) {
	if last, ok := e.lastAlert[slave]; ok && now.Sub(last) < e.cooldown {
		return
	}
	e.lastAlert[slave] = now
	e.send(KindOffline, slave, formatOffline(slave, st, e.location))
}

func (e *Engine) send(kind Kind, slave int, text string) {
	if e.sink != nil {
		switch kind {
		case KindOffline:
			e.sink.StateChange(slave, "online", "offline")
		case KindRecovery:
			e.sink.StateChange(slave, "offline", "online")
		}
	}
	if e.transport == nil {
		return
	}
	if err := e.transport.Send(text); err != nil {
		e.logger.Warn("alert transport failed, notification dropped", "error", err, "kind", kind, "slave", slave)
	}
}

// Startup sends the one-shot startup notification.
func (e *Engine) Startup() {
	e.send(KindStartup, 0, formatStartup())
}

// Critical sends a critical notification on scheduler crash or graceful
// shutdown.
func (e *Engine) Critical(reason string) {
	e.send(KindCritical, 0, formatCritical(reason))
}

// Test emits a synthetic message for the /api/test_telegram endpoint.
// ErrNoTransport is returned when alerts are disabled.
func (e *Engine) Test() error {
	if e.transport == nil {
		return ErrNoTransport
	}
	return e.transport.Send(formatTest())
}
