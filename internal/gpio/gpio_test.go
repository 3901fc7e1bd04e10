package gpio

import "testing"

func TestMemPortBits(t *testing.T) {
	p := NewMemPort()

	v, err := p.ReadBit(23)
	if err != nil {
		t.Fatalf("ReadBit: %v", err)
	}
	if v {
		t.Error("fresh pin reads high")
	}

	if err := p.WriteBit(23, true); err != nil {
		t.Fatalf("WriteBit: %v", err)
	}
	if v, _ := p.ReadBit(23); !v {
		t.Error("written bit lost")
	}
	if !p.Bit(23) {
		t.Error("Bit disagrees with ReadBit")
	}
}

func TestMemPortMux(t *testing.T) {
	p := NewMemPort()
	mux := MuxConfig{AddressPins: []uint8{17, 18}, SensorPin: 8, Spots: 4}

	p.SetChannel(8, 2, true)

	for i := 0; i < mux.Spots; i++ {
		if err := p.SetMuxAddress(mux, i); err != nil {
			t.Fatalf("SetMuxAddress(%d): %v", i, err)
		}
		v, err := p.ReadBit(8)
		if err != nil {
			t.Fatalf("ReadBit: %v", err)
		}
		if v != (i == 2) {
			t.Errorf("channel %d = %v", i, v)
		}
	}

	if err := p.SetMuxAddress(mux, 4); err == nil {
		t.Error("index beyond the address space accepted")
	}
	if err := p.SetMuxAddress(mux, -1); err == nil {
		t.Error("negative index accepted")
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	p, err := Open("mem")
	if err != nil {
		t.Fatalf("Open(mem): %v", err)
	}
	if _, ok := p.(*MemPort); !ok {
		t.Errorf("Open(mem) = %T, want *MemPort", p)
	}

	if _, err := Open("pigpio"); err == nil {
		t.Error("unknown driver accepted")
	}
}
