package device

import (
	"context"
	"errors"
	"time"

	"silomonitor/bus"
)

// registerReader is the bus-facing dependency of Reader, satisfied by
// *bus.Adapter in production and by fakes in tests.
type registerReader interface {
	ReadHoldingRegister(ctx context.Context, slave uint8, address uint16) (uint16, error)
}

// OutcomeKind discriminates a Device Reader result without resorting to
// string inspection of the underlying error.
type OutcomeKind int

const (
	// OutcomeValue means a register word was read successfully; the
	// Validator still has to check it against the configured range.
	OutcomeValue OutcomeKind = iota
	// OutcomeProtocolError means the device itself returned an exception
	// frame or an otherwise malformed response.
	OutcomeProtocolError
	// OutcomeTransportError means the transaction could not complete on
	// the wire (timeout, closed handle, suppressed reconnect).
	OutcomeTransportError
)

// ReadOutcome is the closed result of one Device Reader Read call (after
// its retries), consumed by the Poll Scheduler, which validates it and
// folds it into the State Store.
type ReadOutcome struct {
	Kind  OutcomeKind
	Value uint16
	Err   error
}

const (
	registerAddress      = 10
	retryDelay           = 200 * time.Millisecond
	connectSettleDelay   = 500 * time.Millisecond
)

// Reader performs a per-device read with bounded retries against a shared
// Bus Adapter. It does not validate the returned value.
type Reader struct {
	adapter    registerReader
	maxRetries int
}

// NewReader builds a Reader bound to adapter with the given retry budget.
func NewReader(adapter *bus.Adapter, maxRetries int) *Reader {
	return &Reader{adapter: adapter, maxRetries: maxRetries}
}

// newReaderWithDependency is used by tests to substitute a fake bus.
func newReaderWithDependency(adapter registerReader, maxRetries int) *Reader {
	return &Reader{adapter: adapter, maxRetries: maxRetries}
}

// Read attempts to read the level register from slave, making up to
// maxRetries attempts in total and classifying the final outcome.
func (r *Reader) Read(ctx context.Context, slave uint8) ReadOutcome {
	var last ReadOutcome

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		value, err := r.adapter.ReadHoldingRegister(ctx, slave, registerAddress)
		if err == nil {
			return ReadOutcome{Kind: OutcomeValue, Value: value}
		}

		var transportErr *bus.TransportError
		var protocolErr *bus.ProtocolError
		switch {
		case errors.As(err, &transportErr):
			last = ReadOutcome{Kind: OutcomeTransportError, Err: err}
			if attempt == 1 {
				time.Sleep(connectSettleDelay)
			}
		case errors.As(err, &protocolErr):
			last = ReadOutcome{Kind: OutcomeProtocolError, Err: err}
		default:
			last = ReadOutcome{Kind: OutcomeTransportError, Err: err}
		}

		if attempt < r.maxRetries {
			time.Sleep(retryDelay)
		}
	}

	return last
}
