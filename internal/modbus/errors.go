package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means no qualifying response arrived within the budget.
	ErrTimeout = errors.New("modbus: response timeout")
	// ErrCRC means a response frame arrived but failed its checksum.
	ErrCRC = errors.New("modbus: crc mismatch")
	// ErrInvalidArgument is returned before any I/O happens.
	ErrInvalidArgument = errors.New("modbus: invalid argument")
)

// ConnectError reports a failure to open or configure the serial device.
type ConnectError struct {
	Device string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("modbus: cannot open %s: %v", e.Device, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DeviceError is a Modbus exception reported by the addressed device.
type DeviceError struct {
	Addr byte
	Code byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("modbus: device 0x%02X exception 0x%02X", e.Addr, e.Code)
}
