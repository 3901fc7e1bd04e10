// Package gpio is the seam to the pin hardware. The garage nodes only ever
// need three capabilities: read a bit, write a bit, and preselect a
// multiplexed sensor bank address. Real pin drivers (pigpio, sysfs, ...)
// implement Port outside this repo; MemPort stands in on the bench.
package gpio

import (
	"fmt"
	"sync"
)

// MuxConfig addresses one floor's bank of occupancy sensors: the address
// bits select which spot the shared sensor pin reports.
type MuxConfig struct {
	AddressPins []uint8
	SensorPin   uint8
	Spots       int
}

type Port interface {
	ReadBit(pin uint8) (bool, error)
	WriteBit(pin uint8, value bool) error
	// SetMuxAddress asserts the address bits and waits for the line to
	// settle (>=1us on real hardware) so the sensor pin reads the
	// indexed spot.
	SetMuxAddress(cfg MuxConfig, index int) error
}

// Open selects a pin driver by name. Only the in-memory driver ships with
// this repo; a hardware driver registers under its own name here once one
// lands.
func Open(driver string) (Port, error) {
	switch driver {
	case "mem":
		return NewMemPort(), nil
	default:
		return nil, fmt.Errorf("gpio: unknown driver %q", driver)
	}
}

// MemPort is an in-memory Port used by tests and the bench binaries. Plain
// pins are a bit map; sensor pins registered with SetChannel follow the
// currently selected mux address.
type MemPort struct {
	mu       sync.Mutex
	bits     map[uint8]bool
	selected map[uint8]int
	channels map[uint8][]bool
}

func NewMemPort() *MemPort {
	return &MemPort{
		bits:     map[uint8]bool{},
		selected: map[uint8]int{},
		channels: map[uint8][]bool{},
	}
}

func (p *MemPort) ReadBit(pin uint8) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.channels[pin]; ok {
		sel := p.selected[pin]
		if sel >= len(ch) {
			return false, nil
		}
		return ch[sel], nil
	}
	return p.bits[pin], nil
}

func (p *MemPort) WriteBit(pin uint8, value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bits[pin] = value
	return nil
}

func (p *MemPort) SetMuxAddress(cfg MuxConfig, index int) error {
	if index < 0 || index >= 1<<len(cfg.AddressPins) {
		return fmt.Errorf("mux address %d out of range for %d bits", index, len(cfg.AddressPins))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, pin := range cfg.AddressPins {
		p.bits[pin] = index&(1<<i) != 0
	}
	p.selected[cfg.SensorPin] = index
	return nil
}

// SetChannel plants the occupancy of one multiplexed spot. Test hook.
func (p *MemPort) SetChannel(sensorPin uint8, index int, occupied bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := p.channels[sensorPin]
	for len(ch) <= index {
		ch = append(ch, false)
	}
	ch[index] = occupied
	p.channels[sensorPin] = ch
}

// SetBit plants a plain input bit (gate or passage sensor). Test hook.
func (p *MemPort) SetBit(pin uint8, value bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bits[pin] = value
}

// Bit reads a pin without error plumbing. Test hook.
func (p *MemPort) Bit(pin uint8) bool {
	v, _ := p.ReadBit(pin)
	return v
}
