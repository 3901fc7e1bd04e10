package modbus

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// Transport moves raw frames across the half-duplex medium. It does not
// interpret payload.
type Transport interface {
	Send(frame []byte) error
	Receive() ([]byte, error)
	SetTimeout(d time.Duration)
	Close() error
}

const maxFrame = 256

// SerialTransport drives one RS-485 serial endpoint, 8N1. The port's read
// timeout doubles as the inter-byte gap detector: a response is complete
// once a read comes back empty.
type SerialTransport struct {
	port    *serial.Port
	device  string
	timeout time.Duration // full response budget
}

// Connect opens and configures the serial device.
func Connect(device string, baud int, timeout, byteTimeout time.Duration) (*SerialTransport, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: byteTimeout,
	})
	if err != nil {
		return nil, &ConnectError{Device: device, Err: err}
	}
	return &SerialTransport{port: port, device: device, timeout: timeout}, nil
}

func (t *SerialTransport) Send(frame []byte) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return fmt.Errorf("send on %s: %w", t.device, err)
	}
	if n != len(frame) {
		return fmt.Errorf("send on %s: wrote %d of %d bytes", t.device, n, len(frame))
	}
	return nil
}

// Receive blocks until a full frame arrived or the response budget ran out
// before the first byte. tarm reads return (0, nil) on timeout, so every
// empty read is one inter-byte interval gone.
func (t *SerialTransport) Receive() ([]byte, error) {
	buf := make([]byte, 0, maxFrame)
	chunk := make([]byte, maxFrame)
	deadline := time.Now().Add(t.timeout)

	for {
		n, err := t.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("receive on %s: %w", t.device, err)
		}
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) >= maxFrame {
				return buf, nil
			}
			continue
		}
		// empty read: inter-byte gap
		if len(buf) > 0 {
			return buf, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
	}
}

func (t *SerialTransport) SetTimeout(d time.Duration) { t.timeout = d }

func (t *SerialTransport) Close() error {
	return t.port.Close()
}
