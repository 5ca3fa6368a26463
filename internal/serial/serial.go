// Package serial provides transport.ByteTransport implementations over
// a physical serial port: Port, backed by go.bug.st/serial, and (on
// Linux) RawPort, a raw termios-based alternative for boards whose
// USB-serial chipset the former doesn't probe cleanly.
package serial

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Jinwook-Song/h5link/internal/transport"
)

var _ transport.ByteTransport = (*Port)(nil)

// Port is a transport.ByteTransport backed by go.bug.st/serial.
type Port struct {
	port     serial.Port
	portName string
	baudRate int

	mu      sync.Mutex
	onData  transport.DataFunc
	onError transport.ErrorFunc
	onLog   transport.LogFunc
	closed  bool
	done    chan struct{}
}

// NewPort opens the named serial port at baudRate without starting
// delivery; call Open to begin the read loop.
func NewPort(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: set read timeout: %w", err)
	}

	return &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// Open implements transport.ByteTransport: it spawns the background
// read-loop goroutine that delivers bytes to onData as they arrive,
// the "transport-delivery thread" the link depends on.
func (p *Port) Open(onError transport.ErrorFunc, onData transport.DataFunc, onLog transport.LogFunc) error {
	p.mu.Lock()
	p.onError = onError
	p.onData = onData
	p.onLog = onLog
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.readLoop()
	return nil
}

func (p *Port) readLoop() {
	buf := make([]byte, 1024)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		n, err := p.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.mu.Lock()
			onData := p.onData
			p.mu.Unlock()
			if onData != nil {
				onData(chunk)
			}
		}
		if err != nil {
			p.mu.Lock()
			closed := p.closed
			onError := p.onError
			p.mu.Unlock()
			if closed {
				return
			}
			if onError != nil {
				onError(transport.ErrCodeIOResourcesUnavailable, err.Error())
			}
			return
		}
	}
}

// Send implements transport.ByteTransport.
func (p *Port) Send(data []byte) error {
	_, err := p.port.Write(data)
	if err != nil {
		return fmt.Errorf("serial: write: %w", err)
	}
	return nil
}

// Close implements transport.ByteTransport.
func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	if p.done != nil {
		close(p.done)
	}
	p.mu.Unlock()

	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush discards any buffered input.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// SetDTR sets the DTR signal.
func (p *Port) SetDTR(value bool) error {
	return p.port.SetDTR(value)
}

// SetRTS sets the RTS signal.
func (p *Port) SetRTS(value bool) error {
	return p.port.SetRTS(value)
}

// PulseDTR drops DTR for low, then raises it for high, a reset pattern
// some BLE USB dongles (e.g. nRF51 boards) use in place of a physical
// reset button. Call before Open.
func (p *Port) PulseDTR(low, high time.Duration) error {
	if err := p.SetDTR(false); err != nil {
		return err
	}
	time.Sleep(low)
	if err := p.SetDTR(true); err != nil {
		return err
	}
	time.Sleep(high)
	return nil
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
