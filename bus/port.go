// Package bus owns the single RS-485/RS-232 serial handle shared by every
// Modbus RTU transaction and serializes access to it.
package bus

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"silomonitor/config"
)

// Port is the minimal surface the adapter needs from a serial handle.
// Implemented by *realPort.
type Port interface {
	io.ReadWriteCloser
}

// realPort wraps go.bug.st/serial for the configured line settings.
type realPort struct {
	serial.Port
}

func openPort(cfg config.ModbusConfig) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.ByteSize,
		Parity:   parityMode(cfg.Parity),
		StopBits: stopBitsMode(cfg.StopBits),
	}

	p, err := serial.Open(cfg.SerialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.SerialPort, err)
	}

	if err := p.SetReadTimeout(cfg.Timeout()); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return &realPort{Port: p}, nil
}

func parityMode(p string) serial.Parity {
	switch p {
	case "E":
		return serial.EvenParity
	case "O":
		return serial.OddParity
	default:
		return serial.NoParity
	}
}

func stopBitsMode(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// defaultConnectionTimeout is the minimum time between two consecutive
// reconnection attempts. A transport error that closes the handle clears
// the window (see disconnectLocked).
const defaultConnectionTimeout = 2 * time.Second
