// Package poll drives the recurring cycle that reads every configured
// device, folds each outcome into the State Store, forwards accepted
// readings to persistence, and asks the Alert Engine to evaluate the
// resulting snapshot once per cycle.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"silomonitor/device"
	"silomonitor/persistence"
	"silomonitor/state"
)

// reader is the Device Reader dependency, satisfied by *device.Reader.
type reader interface {
	Read(ctx context.Context, slave uint8) device.ReadOutcome
}

// store is the State Store dependency.
type store interface {
	BeginCycle(now time.Time)
	Update(slave int, value, percent *int, errText string, now time.Time) bool
	Snapshot() map[int]state.Status
	Order() []int
}

// enqueuer accepts accepted readings for batched persistence, satisfied by
// *persistence.Writer.
type enqueuer interface {
	Enqueue(rec persistence.Record)
}

// evaluator is the Alert Engine dependency.
type evaluator interface {
	Evaluate(snapshot map[int]state.Status, now time.Time)
	Critical(reason string)
}

// Scheduler owns the recurring poll cycle. One Scheduler drives every
// configured device sequentially, honoring the configured inter-device
// pacing delay and cycle interval.
type Scheduler struct {
	reader    reader
	store     store
	writer    enqueuer
	alerts    evaluator
	validator device.Validator
	logger    *slog.Logger

	interval   time.Duration
	slaveDelay time.Duration
	externalCode func(int) string

	// exit terminates the process after a scheduler crash has been
	// reported. Defaults to os.Exit; overridable in tests so a simulated
	// crash doesn't kill the test binary.
	exit func(code int)
}

// New builds a Scheduler. externalCode maps a slave address to its
// ERP-visible identifier for persistence.
func New(r reader, s store, w enqueuer, a evaluator, validator device.Validator, interval, slaveDelay time.Duration, externalCode func(int) string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		reader:       r,
		store:        s,
		writer:       w,
		alerts:       a,
		validator:    validator,
		interval:     interval,
		slaveDelay:   slaveDelay,
		externalCode: externalCode,
		logger:       logger,
		exit:         os.Exit,
	}
}

// Run drives poll cycles until ctx is cancelled. A panic inside a cycle
// is treated as a scheduler crash: it is logged, reported as one
// critical alert, and the process exits with code 1 rather than
// continuing in a possibly corrupted state.
func (s *Scheduler) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll scheduler crashed", "panic", r)
			s.alerts.Critical(fmt.Sprintf("poll scheduler crashed: %v", r))
			s.exit(1)
		}
	}()

	for {
		cycleStart := time.Now()
		s.runCycle(ctx, cycleStart)

		elapsed := time.Since(cycleStart)
		sleepFor := s.interval - elapsed
		if sleepFor < time.Second {
			sleepFor = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

// runCycle polls every configured device once, in configured order, then
// evaluates the alert policy against the resulting snapshot.
func (s *Scheduler) runCycle(ctx context.Context, now time.Time) {
	s.store.BeginCycle(now)

	order := s.store.Order()
	for i, slave := range order {
		if ctx.Err() != nil {
			return
		}

		outcome := s.reader.Read(ctx, uint8(slave))
		s.applyOutcome(slave, outcome, now)

		if i < len(order)-1 && s.slaveDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.slaveDelay):
			}
		}
	}

	s.alerts.Evaluate(s.store.Snapshot(), now)
}

// applyOutcome validates a Device Reader result, folds it into the State
// Store, and forwards accepted readings to persistence.
func (s *Scheduler) applyOutcome(slave int, outcome device.ReadOutcome, now time.Time) {
	if outcome.Kind != device.OutcomeValue {
		s.store.Update(slave, nil, nil, outcome.Err.Error(), now)
		return
	}

	percent, err := s.validator.Validate(outcome.Value)
	if err != nil {
		s.store.Update(slave, nil, nil, err.Error(), now)
		return
	}

	value := int(outcome.Value)
	accepted := s.store.Update(slave, &value, &percent, "", now)
	if accepted {
		s.writer.Enqueue(persistence.Record{ExternalCode: s.externalCode(slave), Value: value, Timestamp: now})
	}
}
