package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	modbus "github.com/aldas/go-modbus-client"
	"github.com/aldas/go-modbus-client/packet"

	"silomonitor/config"
)

// ProtocolError wraps an exception frame returned by a slave device
// (illegal function, illegal data address, and so on).
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError wraps a failure to complete a transaction on the wire:
// a closed handle, a suppressed reconnect, or an I/O timeout.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Adapter owns the single serial handle and serializes every Modbus RTU
// transaction under one mutex, satisfying invariant I6 (the bus carries
// at most one in-flight transaction at any instant).
type Adapter struct {
	cfg    config.ModbusConfig
	logger *slog.Logger

	mu               sync.Mutex
	port             Port
	client           *modbus.SerialClient
	lastReconnectTry time.Time
}

// NewAdapter creates an Adapter for the given serial configuration. The
// port is opened lazily on first use so construction never fails due to
// hardware being briefly unavailable at startup.
func NewAdapter(cfg config.ModbusConfig, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, logger: logger}
}

// ReadHoldingRegister issues function code 0x03 for one register at the
// given slave/address and returns its raw 16-bit value.
func (a *Adapter) ReadHoldingRegister(ctx context.Context, slave uint8, address uint16) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		if err := a.connectLocked(); err != nil {
			return 0, err
		}
	}

	req, err := packet.NewReadHoldingRegistersRequestRTU(slave, address, 1)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		var errResp *packet.ErrorResponseRTU
		if errors.As(err, &errResp) {
			return 0, &ProtocolError{Err: err}
		}
		a.disconnectLocked()
		return 0, &TransportError{Err: err}
	}

	hrResp, ok := resp.(*packet.ReadHoldingRegistersResponseRTU)
	if !ok {
		return 0, &ProtocolError{Err: fmt.Errorf("unexpected response type %T", resp)}
	}
	registers, err := hrResp.AsRegisters(address)
	if err != nil {
		return 0, &ProtocolError{Err: err}
	}
	value, err := registers.Uint16(address)
	if err != nil {
		return 0, &ProtocolError{Err: err}
	}
	return value, nil
}

// connectLocked opens the serial handle, honoring the reconnection
// rate limit described in the Bus Adapter design. Callers must hold a.mu.
func (a *Adapter) connectLocked() error {
	now := time.Now()
	if !a.lastReconnectTry.IsZero() && now.Sub(a.lastReconnectTry) < defaultConnectionTimeout {
		return &TransportError{Err: fmt.Errorf("reconnect suppressed, last attempt %s ago", now.Sub(a.lastReconnectTry))}
	}
	a.lastReconnectTry = now

	port, err := openPort(a.cfg)
	if err != nil {
		return &TransportError{Err: err}
	}

	a.port = port
	a.client = modbus.NewSerialClient(port, modbus.WithSerialReadTimeout(a.cfg.Timeout()))
	a.logger.Info("bus adapter connected", "port", a.cfg.SerialPort, "baud", a.cfg.BaudRate)
	return nil
}

// disconnectLocked closes the handle after a transport error so the next
// transaction attempt goes through connectLocked's rate limit. Callers
// must hold a.mu. The rate-limit window is reset here, not on success,
// matching the design's "resets on the next transport error" rule.
func (a *Adapter) disconnectLocked() {
	if a.port != nil {
		a.port.Close()
		a.port = nil
	}
	a.client = nil
	a.lastReconnectTry = time.Time{}
}

// Close releases the serial handle. Safe to call when never connected.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	a.client = nil
	return err
}
