// Package display feeds the status board at the garage entrance. The board
// is a dumb register bank: 13 registers rewritten in one shot, no read-back.
package display

import (
	"fmt"

	"parkserv/internal/modbus"
)

// Register block layout on the display device.
const (
	regFreeBase  = 0  // 3 classes x 3 floors
	regCarsBase  = 9  // cars per floor
	regFlags     = 12 // bitset below
	RegisterSize = 13
)

// Flag register bits.
const (
	FlagLotFull    = 1 << 0
	FlagFloor1Full = 1 << 1
	FlagFloor2Full = 1 << 2
)

const Floors = 3

// Snapshot is the transient occupancy picture written to the board. Built
// right before the write, never cached.
type Snapshot struct {
	// Free spots per floor: accessible, priority, standard.
	Free [Floors][3]uint16
	Cars [Floors]uint16

	LotFull    bool
	Floor1Full bool // full or administratively blocked
	Floor2Full bool
}

func (s Snapshot) registers() []uint16 {
	regs := make([]uint16, RegisterSize)
	for floor := 0; floor < Floors; floor++ {
		for class := 0; class < 3; class++ {
			regs[regFreeBase+floor*3+class] = s.Free[floor][class]
		}
		regs[regCarsBase+floor] = s.Cars[floor]
	}
	var flags uint16
	if s.LotFull {
		flags |= FlagLotFull
	}
	if s.Floor1Full {
		flags |= FlagFloor1Full
	}
	if s.Floor2Full {
		flags |= FlagFloor2Full
	}
	regs[regFlags] = flags
	return regs
}

// Writer owns the display address on the shared bus.
type Writer struct {
	cl   *modbus.Client
	addr byte
}

func NewWriter(cl *modbus.Client, addr byte) *Writer {
	return &Writer{cl: cl, addr: addr}
}

// Write pushes the whole snapshot as one multi-register write.
func (w *Writer) Write(s Snapshot) error {
	if err := w.cl.WriteRegisters(w.addr, regFreeBase, s.registers()); err != nil {
		return fmt.Errorf("display update: %w", err)
	}
	return nil
}
