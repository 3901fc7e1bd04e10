// Package passage infers vehicle travel direction on the inter-floor ramps
// from two beam sensors. The sensors are unordered: direction follows from
// which one was broken first.
package passage

import (
	"context"
	"log"
	"time"

	"parkserv/internal/gpio"
)

type Direction int

const (
	Up Direction = iota + 1
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Event is emitted once per qualifying crossing and not retained.
type Event struct {
	Direction Direction
	Time      time.Time
}

const (
	SampleInterval = 50 * time.Millisecond
	// staleAfter resets a half-finished sequence: a car that stopped on
	// the ramp or a sensor glitch must not poison the next crossing.
	staleAfter = 5 * time.Second
)

type phase int

const (
	idle phase = iota
	s1Active
	s2Active
	bothActive
)

// Detector is the ramp state machine. The zero direction value makes it
// bidirectional; a one-way detector (topmost floor) emits only its single
// configured direction on the S1-entry pattern.
type Detector struct {
	phase         phase
	enteredFromS1 bool
	lastChange    time.Time

	oneWay Direction

	now func() time.Time
}

func NewDetector() *Detector {
	return &Detector{now: time.Now}
}

// NewOneWay builds the simplified detector for the topmost floor, which has
// only one valid direction to report.
func NewOneWay(dir Direction) *Detector {
	return &Detector{oneWay: dir, now: time.Now}
}

// Step feeds one sensor sample. It returns the detected direction and true
// exactly when a crossing completes.
func (d *Detector) Step(s1, s2 bool) (Direction, bool) {
	now := d.now()
	if d.phase != idle && now.Sub(d.lastChange) > staleAfter {
		d.phase = idle
		d.enteredFromS1 = false
	}

	switch d.phase {
	case idle:
		if s1 && !s2 {
			d.set(s1Active, now)
			d.enteredFromS1 = true
		} else if !s1 && s2 {
			d.set(s2Active, now)
			d.enteredFromS1 = false
		}

	case s1Active:
		if s1 && s2 {
			d.set(bothActive, now)
		} else if !s1 && !s2 {
			d.set(idle, now)
		}

	case s2Active:
		if s1 && s2 {
			d.set(bothActive, now)
		} else if !s1 && !s2 {
			d.set(idle, now)
		}

	case bothActive:
		switch {
		case !s1 && s2 && d.enteredFromS1:
			// entered at S1, leaving past S2
			d.set(s2Active, now)
			if d.oneWay != 0 {
				return d.oneWay, true
			}
			return Up, true
		case s1 && !s2 && !d.enteredFromS1:
			d.set(s1Active, now)
			if d.oneWay != 0 {
				// not the pattern the one-way ramp reports
				return 0, false
			}
			return Down, true
		case !s1 && !s2:
			d.set(idle, now)
		}
	}
	return 0, false
}

func (d *Detector) set(p phase, now time.Time) {
	d.phase = p
	d.lastChange = now
}

// Run samples the two sensors until ctx is done and pushes completed
// crossings into out.
func (d *Detector) Run(ctx context.Context, io gpio.Port, pin1, pin2 uint8, out chan<- Event) {
	log.Printf("[passage] sampling pins %d/%d", pin1, pin2)
	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[passage] sampling stopped")
			return
		case <-ticker.C:
			s1, _ := io.ReadBit(pin1)
			s2, _ := io.ReadBit(pin2)
			if dir, ok := d.Step(s1, s2); ok {
				log.Printf("[passage] vehicle moving %s", dir)
				select {
				case out <- Event{Direction: dir, Time: d.now()}:
				default:
					// consumer is behind; dropping beats stalling the sampler
				}
			}
		}
	}
}
