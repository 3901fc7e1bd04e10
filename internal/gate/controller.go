// Package gate runs the barrier state machines. Each gate owns one motor
// output and two end-position sensors and is driven by a fixed-period poll
// loop; open/close are asynchronous requests the loop acts on.
package gate

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"parkserv/internal/config"
	"parkserv/internal/gpio"
)

type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "ERROR"
	}
}

type Kind int

const (
	Entry Kind = iota
	Exit
)

func (k Kind) String() string {
	if k == Entry {
		return "entry"
	}
	return "exit"
}

const (
	PollInterval = 100 * time.Millisecond
	// MoveTimeout is how long a barrier may stay in motion before the
	// controller declares it jammed.
	MoveTimeout = 5 * time.Second
)

// ErrNotOperable rejects commands sent to a gate sitting in the fault
// state; it needs ResetError first.
var ErrNotOperable = errors.New("gate: not operable until error is reset")

// Controller is one gate's state machine. The mutex is the only writer
// gate for state and the motor bit.
type Controller struct {
	mu sync.Mutex

	kind Kind
	pins config.GatePins
	io   gpio.Port

	state      State
	lastChange time.Time
	ops        uint32

	now func() time.Time
}

func New(kind Kind, pins config.GatePins, io gpio.Port) *Controller {
	c := &Controller{kind: kind, pins: pins, io: io, now: time.Now}
	c.lastChange = c.now()
	return c
}

// Open requests the gate to open. Opening an open gate is a no-op; a gate
// in the fault state rejects the command.
func (c *Controller) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateError:
		return ErrNotOperable
	case StateOpen, StateOpening:
		return nil
	}
	log.Printf("[gate] %s: open requested", c.kind)
	c.state = StateOpening
	c.lastChange = c.now()
	return nil
}

// Close requests the gate to close, symmetric with Open.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateError:
		return ErrNotOperable
	case StateClosed, StateClosing:
		return nil
	}
	log.Printf("[gate] %s: close requested", c.kind)
	c.state = StateClosing
	c.lastChange = c.now()
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Operations counts completed open/close movements.
func (c *Controller) Operations() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops
}

// ResetError re-arms a faulted gate, trusting the end sensors: close sensor
// wins, then open sensor, and with neither asserted the gate is assumed
// closed.
func (c *Controller) ResetError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateError {
		return nil
	}

	open, _ := c.io.ReadBit(c.pins.SensorOpen)
	closed, _ := c.io.ReadBit(c.pins.SensorClose)

	switch {
	case closed:
		c.state = StateClosed
	case open:
		c.state = StateOpen
	default:
		c.state = StateClosed
	}
	c.lastChange = c.now()
	log.Printf("[gate] %s: error reset, now %s", c.kind, c.state)
	return nil
}

// Run drives the state machine until ctx is done, then forces the motor
// off before returning.
func (c *Controller) Run(ctx context.Context) {
	log.Printf("[gate] %s: control loop started", c.kind)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.io.WriteBit(c.pins.Motor, false)
			log.Printf("[gate] %s: control loop stopped", c.kind)
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick is one poll cycle. The motor bit is asserted only while the gate is
// in motion and forced off in every resting state.
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	open, _ := c.io.ReadBit(c.pins.SensorOpen)
	closed, _ := c.io.ReadBit(c.pins.SensorClose)

	switch c.state {
	case StateClosed, StateOpen:
		_ = c.io.WriteBit(c.pins.Motor, false)

	case StateOpening:
		_ = c.io.WriteBit(c.pins.Motor, true)
		if open {
			c.state = StateOpen
			c.lastChange = c.now()
			c.ops++
			_ = c.io.WriteBit(c.pins.Motor, false)
			log.Printf("[gate] %s: OPEN (operation #%d)", c.kind, c.ops)
		} else if c.now().Sub(c.lastChange) > MoveTimeout {
			c.state = StateError
			_ = c.io.WriteBit(c.pins.Motor, false)
			log.Printf("[gate] %s: timeout while opening", c.kind)
		}

	case StateClosing:
		_ = c.io.WriteBit(c.pins.Motor, true)
		if closed {
			c.state = StateClosed
			c.lastChange = c.now()
			c.ops++
			_ = c.io.WriteBit(c.pins.Motor, false)
			log.Printf("[gate] %s: CLOSED (operation #%d)", c.kind, c.ops)
		} else if c.now().Sub(c.lastChange) > MoveTimeout {
			c.state = StateError
			_ = c.io.WriteBit(c.pins.Motor, false)
			log.Printf("[gate] %s: timeout while closing", c.kind)
		}

	case StateError:
		_ = c.io.WriteBit(c.pins.Motor, false)
	}
}

// EmergencyOpenAll requests every gate to open through the normal command
// path. A gate sitting in the fault state therefore stays shut until it is
// reset; whether an emergency should override the fault guard is an open
// operational question (see DESIGN.md).
func EmergencyOpenAll(gates ...*Controller) error {
	var firstErr error
	for _, g := range gates {
		if err := g.Open(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
