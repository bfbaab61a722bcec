package alert

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"silomonitor/config"
	"silomonitor/state"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeTransport) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSink struct {
	mu        sync.Mutex
	transitions []string
}

func (f *fakeSink) StateChange(slave int, oldState, newState string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, config.ExternalCode(slave)+":"+oldState+"->"+newState)
}

func statusAt(slave int, online bool, lastOK *time.Time) state.Status {
	return state.Status{Slave: slave, ExternalCode: config.ExternalCode(slave), Online: online, LastOK: lastOK, LastError: "timeout"}
}

func TestEvaluateSendsSingleOfflineAtThresholdCrossing(t *testing.T) {
	transport := &fakeTransport{}
	e := NewEngine(5*time.Minute, 15*time.Minute, transport, nil, time.UTC, slog.Default())

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	lastOK := base.Add(-6 * time.Minute)

	snapshot := map[int]state.Status{1: statusAt(1, false, &lastOK)}
	e.Evaluate(snapshot, base)
	e.Evaluate(snapshot, base.Add(time.Minute)) // still offline, still within cooldown

	if got := transport.count(); got != 1 {
		t.Fatalf("offline notifications sent = %d, want 1", got)
	}
}

func TestEvaluateSuppressesRepeatOfflineDuringCooldown(t *testing.T) {
	transport := &fakeTransport{}
	e := NewEngine(5*time.Minute, 15*time.Minute, transport, nil, time.UTC, slog.Default())

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	lastOK := base.Add(-6 * time.Minute)
	snapshot := map[int]state.Status{1: statusAt(1, false, &lastOK)}

	e.Evaluate(snapshot, base)
	delete(e.currentlyOffline, 1) // simulate a new threshold crossing without recovery
	e.Evaluate(snapshot, base.Add(10*time.Minute))

	if got := transport.count(); got != 1 {
		t.Fatalf("notifications sent = %d, want 1 (cooldown should suppress the second)", got)
	}
}

func TestEvaluateSendsRecoveryAndClearsCooldown(t *testing.T) {
	transport := &fakeTransport{}
	e := NewEngine(5*time.Minute, 15*time.Minute, transport, nil, time.UTC, slog.Default())

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	lastOK := base.Add(-6 * time.Minute)
	e.Evaluate(map[int]state.Status{1: statusAt(1, false, &lastOK)}, base)

	recoveredAt := base.Add(2 * time.Minute)
	e.Evaluate(map[int]state.Status{1: statusAt(1, true, &recoveredAt)}, recoveredAt)

	if got := transport.count(); got != 2 {
		t.Fatalf("notifications sent = %d, want 2 (offline + recovery)", got)
	}
	if e.currentlyOffline[1] {
		t.Error("slave 1 still marked offline after recovery")
	}
	if _, ok := e.lastAlert[1]; ok {
		t.Error("lastAlert not cleared after recovery")
	}
}

func TestEvaluateIgnoresDeviceWithinThreshold(t *testing.T) {
	transport := &fakeTransport{}
	e := NewEngine(5*time.Minute, 15*time.Minute, transport, nil, time.UTC, slog.Default())

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	lastOK := base.Add(-1 * time.Minute)
	e.Evaluate(map[int]state.Status{1: statusAt(1, false, &lastOK)}, base)

	if got := transport.count(); got != 0 {
		t.Fatalf("notifications sent = %d, want 0 (within debounce threshold)", got)
	}
}

func TestEvaluateNotifiesSinkOnTransitions(t *testing.T) {
	transport := &fakeTransport{}
	sink := &fakeSink{}
	e := NewEngine(5*time.Minute, 15*time.Minute, transport, sink, time.UTC, slog.Default())

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	lastOK := base.Add(-6 * time.Minute)
	e.Evaluate(map[int]state.Status{1: statusAt(1, false, &lastOK)}, base)

	recoveredAt := base.Add(time.Minute)
	e.Evaluate(map[int]state.Status{1: statusAt(1, true, &recoveredAt)}, recoveredAt)

	if len(sink.transitions) != 2 {
		t.Fatalf("sink transitions = %v, want 2 entries", sink.transitions)
	}
}

func TestSendSurvivesTransportFailure(t *testing.T) {
	transport := &fakeTransport{err: errUnavailable}
	sink := &fakeSink{}
	e := NewEngine(5*time.Minute, 15*time.Minute, transport, sink, time.UTC, slog.Default())

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	lastOK := base.Add(-6 * time.Minute)
	e.Evaluate(map[int]state.Status{1: statusAt(1, false, &lastOK)}, base)

	if !e.currentlyOffline[1] {
		t.Error("state machine side effect should persist even when transport.Send fails")
	}
	if len(sink.transitions) != 1 {
		t.Error("sink should still be notified even when transport.Send fails")
	}
}

func TestTestReturnsErrNoTransportWhenDisabled(t *testing.T) {
	e := NewEngine(5*time.Minute, 15*time.Minute, nil, nil, time.UTC, slog.Default())
	if err := e.Test(); err != ErrNoTransport {
		t.Fatalf("Test() error = %v, want ErrNoTransport", err)
	}
}

func TestTestDelegatesToTransport(t *testing.T) {
	transport := &fakeTransport{}
	e := NewEngine(5*time.Minute, 15*time.Minute, transport, nil, time.UTC, slog.Default())
	if err := e.Test(); err != nil {
		t.Fatalf("Test() error = %v, want nil", err)
	}
	if transport.count() != 1 {
		t.Fatalf("transport sends = %d, want 1", transport.count())
	}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errUnavailable = fakeErr("transport unavailable")
