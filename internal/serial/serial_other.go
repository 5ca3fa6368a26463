//go:build !linux

package serial

import (
	"errors"

	"github.com/Jinwook-Song/h5link/internal/transport"
)

// RawPort is a stub for non-Linux platforms.
// This is never used at runtime; Port (go.bug.st/serial) is the only
// transport.ByteTransport available off Linux.
type RawPort struct{}

// OpenRaw is a stub for non-Linux platforms.
func OpenRaw(portName string, baudRate int) (*RawPort, error) {
	return nil, errors.New("serial: raw port not supported on this platform")
}

// Open is a stub - never called on non-Linux platforms.
func (p *RawPort) Open(onError transport.ErrorFunc, onData transport.DataFunc, onLog transport.LogFunc) error {
	return errors.New("serial: raw port not supported on this platform")
}

// Send is a stub - never called on non-Linux platforms.
func (p *RawPort) Send(data []byte) error {
	return errors.New("serial: raw port not supported on this platform")
}

// Close is a stub - never called on non-Linux platforms.
func (p *RawPort) Close() error {
	return errors.New("serial: raw port not supported on this platform")
}

// Flush is a stub - never called on non-Linux platforms.
func (p *RawPort) Flush() error {
	return errors.New("serial: raw port not supported on this platform")
}

// SetDTR is a stub - never called on non-Linux platforms.
func (p *RawPort) SetDTR(value bool) error {
	return errors.New("serial: raw port not supported on this platform")
}

// SetRTS is a stub - never called on non-Linux platforms.
func (p *RawPort) SetRTS(value bool) error {
	return errors.New("serial: raw port not supported on this platform")
}

// PortName is a stub - never called on non-Linux platforms.
func (p *RawPort) PortName() string {
	return ""
}

// BaudRate is a stub - never called on non-Linux platforms.
func (p *RawPort) BaudRate() int {
	return 0
}
