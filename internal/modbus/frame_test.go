package modbus

import (
	"errors"
	"testing"
)

func TestUnitTag(t *testing.T) {
	tag, err := UnitTag([]byte("1234"))
	if err != nil {
		t.Fatalf("UnitTag: %v", err)
	}
	// digit pairs as two big-endian words: 0x0102, 0x0304
	want := [4]byte{0x01, 0x02, 0x03, 0x04}
	if tag != want {
		t.Errorf("tag = % X, want % X", tag, want)
	}

	// longer IDs keep only the last four digits
	tag, err = UnitTag([]byte("20240987"))
	if err != nil {
		t.Fatalf("UnitTag long: %v", err)
	}
	if want := [4]byte{0x00, 0x09, 0x08, 0x07}; tag != want {
		t.Errorf("tag = % X, want % X", tag, want)
	}

	if _, err := UnitTag([]byte("123")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short id: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := UnitTag([]byte("12a4")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("non-digit id: err = %v, want ErrInvalidArgument", err)
	}
}

func TestBuildReadRequestLayout(t *testing.T) {
	tag, _ := UnitTag([]byte("1234"))
	frame := buildReadRequest(0x11, 2, 4, tag)

	if !VerifyCRC(frame) {
		t.Fatalf("bad checksum on fresh request: % X", frame)
	}
	body := frame[:len(frame)-2]
	want := []byte{0x11, FnReadRegisters, 0x00, 0x02, 0x00, 0x04, 0x01, 0x02, 0x03, 0x04}
	if len(body) != len(want) {
		t.Fatalf("body length %d, want %d", len(body), len(want))
	}
	for i := range want {
		if body[i] != want[i] {
			t.Fatalf("body = % X, want % X", body, want)
		}
	}
}

func TestBuildWriteMultipleLayout(t *testing.T) {
	tag, _ := UnitTag([]byte("1234"))
	frame := buildWriteMultipleRequest(0x20, 0, []uint16{0x0102, 0xA0B0}, tag)

	if !VerifyCRC(frame) {
		t.Fatalf("bad checksum: % X", frame)
	}
	body := frame[:len(frame)-2]
	// addr fn start count bytecount data... tag
	want := []byte{0x20, FnWriteRegisters, 0x00, 0x00, 0x00, 0x02, 0x04,
		0x01, 0x02, 0xA0, 0xB0, 0x01, 0x02, 0x03, 0x04}
	if len(body) != len(want) {
		t.Fatalf("body length %d, want %d", len(body), len(want))
	}
	for i := range want {
		if body[i] != want[i] {
			t.Fatalf("body = % X, want % X", body, want)
		}
	}
}

func TestParseReadResponse(t *testing.T) {
	rsp := AppendCRC([]byte{0x11, FnReadRegisters, 0x04, 0x12, 0x34, 0x56, 0x78})
	values, err := parseReadResponse(0x11, 2, rsp)
	if err != nil {
		t.Fatalf("parseReadResponse: %v", err)
	}
	if values[0] != 0x1234 || values[1] != 0x5678 {
		t.Errorf("values = %#04x, want [0x1234 0x5678]", values)
	}

	if _, err := parseReadResponse(0x12, 2, rsp); err == nil {
		t.Error("wrong address echo accepted")
	}
	if _, err := parseReadResponse(0x11, 3, rsp); err == nil {
		t.Error("count mismatch accepted")
	}
}

func TestExceptionResponse(t *testing.T) {
	rsp := BuildException(0x11, FnReadRegisters, 0x02)
	_, err := parseReadResponse(0x11, 1, rsp)

	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DeviceError", err)
	}
	if de.Addr != 0x11 || de.Code != 0x02 {
		t.Errorf("DeviceError = %+v", de)
	}
}

func TestParseRequestRoundTrip(t *testing.T) {
	tag, _ := UnitTag([]byte("1234"))

	t.Run("read", func(t *testing.T) {
		req, err := ParseRequest(buildReadRequest(0x11, 2, 4, tag))
		if err != nil {
			t.Fatalf("ParseRequest: %v", err)
		}
		if req.Addr != 0x11 || req.Function != FnReadRegisters || req.Register != 2 || req.Count != 4 {
			t.Errorf("request = %+v", req)
		}
		if req.Tag != tag {
			t.Errorf("tag = % X, want % X", req.Tag, tag)
		}
	})

	t.Run("write single", func(t *testing.T) {
		req, err := ParseRequest(buildWriteRequest(0x11, 1, 1, tag))
		if err != nil {
			t.Fatalf("ParseRequest: %v", err)
		}
		if req.Function != FnWriteRegister || req.Register != 1 || req.Value != 1 {
			t.Errorf("request = %+v", req)
		}
	})

	t.Run("write multiple", func(t *testing.T) {
		req, err := ParseRequest(buildWriteMultipleRequest(0x20, 0, []uint16{7, 8, 9}, tag))
		if err != nil {
			t.Fatalf("ParseRequest: %v", err)
		}
		if req.Function != FnWriteRegisters || req.Count != 3 {
			t.Errorf("request = %+v", req)
		}
		if len(req.Values) != 3 || req.Values[0] != 7 || req.Values[2] != 9 {
			t.Errorf("values = %v", req.Values)
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		frame := buildReadRequest(0x11, 0, 1, tag)
		frame[3] ^= 0xFF
		if _, err := ParseRequest(frame); !errors.Is(err, ErrCRC) {
			t.Errorf("err = %v, want ErrCRC", err)
		}
	})
}
