package display

import (
	"testing"
	"time"

	"parkserv/internal/modbus"
)

// ackTransport acknowledges every write and captures the request frames.
type ackTransport struct {
	requests []*modbus.Request
	pending  []byte
}

func (t *ackTransport) Send(frame []byte) error {
	req, err := modbus.ParseRequest(frame)
	if err != nil {
		return err
	}
	t.requests = append(t.requests, req)
	t.pending = modbus.BuildWriteAck(req)
	return nil
}

func (t *ackTransport) Receive() ([]byte, error) {
	if t.pending == nil {
		return nil, modbus.ErrTimeout
	}
	rsp := t.pending
	t.pending = nil
	return rsp, nil
}

func (t *ackTransport) SetTimeout(time.Duration) {}
func (t *ackTransport) Close() error             { return nil }

func TestWriterRegisterImage(t *testing.T) {
	tr := &ackTransport{}
	cl, err := modbus.NewClient(tr, []byte("1234"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	w := NewWriter(cl, 0x20)

	snap := Snapshot{
		Free: [Floors][3]uint16{
			{1, 0, 2},
			{0, 1, 5},
			{1, 1, 6},
		},
		Cars:       [Floors]uint16{1, 2, 0},
		Floor1Full: true,
	}
	if err := w.Write(snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(tr.requests) != 1 {
		t.Fatalf("want one bus write, got %d", len(tr.requests))
	}
	req := tr.requests[0]
	if req.Addr != 0x20 || req.Function != modbus.FnWriteRegisters || req.Register != 0 {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Values) != RegisterSize {
		t.Fatalf("register image has %d values, want %d", len(req.Values), RegisterSize)
	}

	wantFree := []uint16{1, 0, 2, 0, 1, 5, 1, 1, 6}
	for i, v := range wantFree {
		if req.Values[i] != v {
			t.Errorf("free reg %d = %d, want %d", i, req.Values[i], v)
		}
	}
	wantCars := []uint16{1, 2, 0}
	for i, v := range wantCars {
		if req.Values[9+i] != v {
			t.Errorf("cars reg %d = %d, want %d", 9+i, req.Values[9+i], v)
		}
	}
	if req.Values[12] != FlagFloor1Full {
		t.Errorf("flags = %#x, want %#x", req.Values[12], FlagFloor1Full)
	}
}

func TestWriterFlagBits(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want uint16
	}{
		{"none", Snapshot{}, 0},
		{"lot full", Snapshot{LotFull: true}, FlagLotFull},
		{"both floors", Snapshot{Floor1Full: true, Floor2Full: true}, FlagFloor1Full | FlagFloor2Full},
		{"all", Snapshot{LotFull: true, Floor1Full: true, Floor2Full: true},
			FlagLotFull | FlagFloor1Full | FlagFloor2Full},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs := tt.snap.registers()
			if regs[12] != tt.want {
				t.Errorf("flags = %#x, want %#x", regs[12], tt.want)
			}
		})
	}
}
