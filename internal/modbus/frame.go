package modbus

import (
	"fmt"
)

// Function codes in use on the garage bus.
const (
	FnReadRegisters  = 0x03
	FnWriteRegister  = 0x06
	FnWriteRegisters = 0x10
)

const exceptionBit = 0x80

// UnitTag packs the last four decimal digits of the unit ID into the 4-byte
// suffix every outbound frame carries right before the CRC. The digits go
// out as two big-endian 16-bit values, one digit pair per value. The suffix
// is a shared-secret tag the peripherals expect, not authentication.
func UnitTag(digits []byte) ([4]byte, error) {
	var tag [4]byte
	if len(digits) < 4 {
		return tag, fmt.Errorf("%w: unit id needs 4 digits", ErrInvalidArgument)
	}
	last := digits[len(digits)-4:]
	for _, d := range last {
		if d < '0' || d > '9' {
			return tag, fmt.Errorf("%w: unit id digit %q", ErrInvalidArgument, d)
		}
	}
	p1 := uint16(last[0]-'0')<<8 | uint16(last[1]-'0')
	p2 := uint16(last[2]-'0')<<8 | uint16(last[3]-'0')
	tag[0] = byte(p1 >> 8)
	tag[1] = byte(p1)
	tag[2] = byte(p2 >> 8)
	tag[3] = byte(p2)
	return tag, nil
}

func buildReadRequest(addr byte, start, count uint16, tag [4]byte) []byte {
	req := []byte{addr, FnReadRegisters,
		byte(start >> 8), byte(start),
		byte(count >> 8), byte(count)}
	req = append(req, tag[:]...)
	return AppendCRC(req)
}

func buildWriteRequest(addr byte, reg, value uint16, tag [4]byte) []byte {
	req := []byte{addr, FnWriteRegister,
		byte(reg >> 8), byte(reg),
		byte(value >> 8), byte(value)}
	req = append(req, tag[:]...)
	return AppendCRC(req)
}

func buildWriteMultipleRequest(addr byte, start uint16, values []uint16, tag [4]byte) []byte {
	req := []byte{addr, FnWriteRegisters,
		byte(start >> 8), byte(start),
		byte(len(values) >> 8), byte(len(values)),
		byte(len(values) * 2)}
	for _, v := range values {
		req = append(req, byte(v>>8), byte(v))
	}
	req = append(req, tag[:]...)
	return AppendCRC(req)
}

// parseReadResponse decodes a function 0x03 response into register values.
func parseReadResponse(addr byte, count uint16, rsp []byte) ([]uint16, error) {
	if err := checkHeader(addr, FnReadRegisters, rsp); err != nil {
		return nil, err
	}
	want := int(count) * 2
	if len(rsp) != 5+want || int(rsp[2]) != want {
		return nil, fmt.Errorf("modbus: short read response: %d bytes for %d registers", len(rsp), count)
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = uint16(rsp[3+2*i])<<8 | uint16(rsp[4+2*i])
	}
	return values, nil
}

// checkWriteAck validates the echo frame of a write.
func checkWriteAck(addr, fn byte, rsp []byte) error {
	return checkHeader(addr, fn, rsp)
}

func checkHeader(addr, fn byte, rsp []byte) error {
	if len(rsp) < 3 {
		return fmt.Errorf("modbus: truncated response (%d bytes)", len(rsp))
	}
	if rsp[0] != addr {
		return fmt.Errorf("modbus: response from 0x%02X, expected 0x%02X", rsp[0], addr)
	}
	if rsp[1] == fn|exceptionBit {
		return &DeviceError{Addr: addr, Code: rsp[2]}
	}
	if rsp[1] != fn {
		return fmt.Errorf("modbus: function echo 0x%02X, expected 0x%02X", rsp[1], fn)
	}
	return nil
}

// Request is a decoded inbound frame, used by the device side (the bus
// emulator serves the camera and display register maps from it).
type Request struct {
	Addr     byte
	Function byte
	Register uint16
	Count    uint16
	Value    uint16
	Values   []uint16
	Tag      [4]byte
}

// ParseRequest decodes and validates one complete request frame, tag and
// CRC included.
func ParseRequest(frame []byte) (*Request, error) {
	if len(frame) < 12 {
		return nil, fmt.Errorf("modbus: request too short (%d bytes)", len(frame))
	}
	if !VerifyCRC(frame) {
		return nil, ErrCRC
	}
	body := frame[:len(frame)-2]
	r := &Request{Addr: body[0], Function: body[1]}
	copy(r.Tag[:], body[len(body)-4:])
	body = body[:len(body)-4]

	switch r.Function {
	case FnReadRegisters:
		if len(body) != 6 {
			return nil, fmt.Errorf("modbus: bad read request length %d", len(body))
		}
		r.Register = uint16(body[2])<<8 | uint16(body[3])
		r.Count = uint16(body[4])<<8 | uint16(body[5])
	case FnWriteRegister:
		if len(body) != 6 {
			return nil, fmt.Errorf("modbus: bad write request length %d", len(body))
		}
		r.Register = uint16(body[2])<<8 | uint16(body[3])
		r.Value = uint16(body[4])<<8 | uint16(body[5])
	case FnWriteRegisters:
		if len(body) < 7 {
			return nil, fmt.Errorf("modbus: bad multi-write request length %d", len(body))
		}
		r.Register = uint16(body[2])<<8 | uint16(body[3])
		r.Count = uint16(body[4])<<8 | uint16(body[5])
		n := int(body[6])
		if n != int(r.Count)*2 || len(body) != 7+n {
			return nil, fmt.Errorf("modbus: multi-write byte count %d does not match %d registers", n, r.Count)
		}
		r.Values = make([]uint16, r.Count)
		for i := range r.Values {
			r.Values[i] = uint16(body[7+2*i])<<8 | uint16(body[8+2*i])
		}
	default:
		return nil, fmt.Errorf("modbus: unsupported function 0x%02X", r.Function)
	}
	return r, nil
}

// BuildReadResponse assembles a function 0x03 response frame.
func BuildReadResponse(addr byte, values []uint16) []byte {
	rsp := []byte{addr, FnReadRegisters, byte(len(values) * 2)}
	for _, v := range values {
		rsp = append(rsp, byte(v>>8), byte(v))
	}
	return AppendCRC(rsp)
}

// BuildWriteAck assembles the echo frame acknowledging a write request.
func BuildWriteAck(r *Request) []byte {
	switch r.Function {
	case FnWriteRegister:
		return AppendCRC([]byte{r.Addr, FnWriteRegister,
			byte(r.Register >> 8), byte(r.Register),
			byte(r.Value >> 8), byte(r.Value)})
	default:
		return AppendCRC([]byte{r.Addr, FnWriteRegisters,
			byte(r.Register >> 8), byte(r.Register),
			byte(r.Count >> 8), byte(r.Count)})
	}
}

// BuildException assembles a device exception frame.
func BuildException(addr, fn, code byte) []byte {
	return AppendCRC([]byte{addr, fn | exceptionBit, code})
}
