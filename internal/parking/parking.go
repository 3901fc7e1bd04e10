// Package parking keeps the spot book: which typed spot holds which car on
// which floor. It is rebuilt from the multiplexed sensors every sweep and
// holds nothing across restarts.
package parking

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"parkserv/internal/config"
	"parkserv/internal/display"
	"parkserv/internal/gpio"
)

type SpotClass int

const (
	Accessible SpotClass = iota
	Priority
	Standard
)

func (c SpotClass) String() string {
	switch c {
	case Accessible:
		return "accessible"
	case Priority:
		return "priority"
	default:
		return "standard"
	}
}

type Spot struct {
	Class    SpotClass
	Occupied bool
	Plate    string
	Since    time.Time
}

type FloorStatus struct {
	Spots   []Spot
	Blocked bool
}

// Free counts unoccupied spots per class.
func (f *FloorStatus) Free() (byClass [3]int, total int) {
	for _, s := range f.Spots {
		if !s.Occupied {
			byClass[s.Class]++
			total++
		}
	}
	return byClass, total
}

// Cars counts occupied spots.
func (f *FloorStatus) Cars() int {
	n := 0
	for _, s := range f.Spots {
		if s.Occupied {
			n++
		}
	}
	return n
}

// Status is a deep-copied view handed to callers.
type Status struct {
	Floors    []FloorStatus
	TotalFree int
	Full      bool
	Emergency bool
}

// Lot is the shared spot book of the whole garage. Every node holds one;
// floor nodes fill in only their own floor, central merges reports.
type Lot struct {
	mu        sync.Mutex
	floors    []FloorStatus
	emergency bool
}

// NewLot lays out the typed spots: the first spots of each floor are
// accessible, then priority, the rest standard.
func NewLot(layout []config.FloorConfig) *Lot {
	l := &Lot{floors: make([]FloorStatus, len(layout))}
	for i, fl := range layout {
		spots := make([]Spot, fl.Spots)
		for j := range spots {
			switch {
			case j < fl.Accessible:
				spots[j].Class = Accessible
			case j < fl.Accessible+fl.Priority:
				spots[j].Class = Priority
			default:
				spots[j].Class = Standard
			}
		}
		l.floors[i].Spots = spots
	}
	return l
}

func (l *Lot) Floors() int {
	return len(l.floors)
}

// ScanFloor sweeps the floor's sensor bank through the multiplexer and
// reconciles the spot book. Returns how many spots changed state.
func (l *Lot) ScanFloor(floor int, io gpio.Port, mux gpio.MuxConfig) (int, error) {
	if floor < 0 || floor >= len(l.floors) {
		return 0, fmt.Errorf("scan: no floor %d", floor)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	changes := 0
	for i := range l.floors[floor].Spots {
		if err := io.SetMuxAddress(mux, i); err != nil {
			return changes, fmt.Errorf("scan floor %d spot %d: %w", floor, i, err)
		}
		occupied, err := io.ReadBit(mux.SensorPin)
		if err != nil {
			return changes, fmt.Errorf("scan floor %d spot %d: %w", floor, i, err)
		}

		spot := &l.floors[floor].Spots[i]
		if occupied == spot.Occupied {
			continue
		}
		changes++
		spot.Occupied = occupied
		spot.Since = time.Now()
		if occupied {
			// plate is assigned by the entry flow, if at all
			spot.Plate = ""
			log.Printf("[parking] floor %d spot %d now occupied", floor, i)
		} else {
			if spot.Plate != "" {
				log.Printf("[parking] floor %d spot %d freed (was %s)", floor, i, spot.Plate)
			} else {
				log.Printf("[parking] floor %d spot %d freed", floor, i)
			}
			spot.Plate = ""
		}
	}
	return changes, nil
}

// Allocate books a spot for a plate, preferring the given floor, then any
// floor that is neither blocked nor full. Returns floor and spot index.
func (l *Lot) Allocate(plate string, preferred int) (int, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.totalFree() == 0 {
		log.Printf("[parking] lot full, refusing %s", plate)
		return 0, 0, false
	}

	order := []int{}
	if preferred >= 0 && preferred < len(l.floors) {
		order = append(order, preferred)
	}
	for i := range l.floors {
		if i != preferred {
			order = append(order, i)
		}
	}

	for _, fi := range order {
		fl := &l.floors[fi]
		if fl.Blocked {
			continue
		}
		for si := range fl.Spots {
			if fl.Spots[si].Occupied {
				continue
			}
			fl.Spots[si].Occupied = true
			fl.Spots[si].Plate = plate
			fl.Spots[si].Since = time.Now()
			log.Printf("[parking] %s -> floor %d spot %d (%s)", plate, fi, si, fl.Spots[si].Class)
			return fi, si, true
		}
	}
	log.Printf("[parking] no spot available for %s", plate)
	return 0, 0, false
}

// Release frees the spot holding the plate.
func (l *Lot) Release(plate string) (int, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for fi := range l.floors {
		for si := range l.floors[fi].Spots {
			s := &l.floors[fi].Spots[si]
			if s.Occupied && s.Plate == plate {
				s.Occupied = false
				s.Plate = ""
				s.Since = time.Now()
				log.Printf("[parking] %s left floor %d spot %d", plate, fi, si)
				return fi, si, true
			}
		}
	}
	log.Printf("[parking] plate %s not found on release", plate)
	return 0, 0, false
}

func (l *Lot) SetBlocked(floor int, blocked bool) error {
	if floor < 0 || floor >= len(l.floors) {
		return fmt.Errorf("no floor %d", floor)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.floors[floor].Blocked = blocked
	log.Printf("[parking] floor %d blocked=%v", floor, blocked)
	return nil
}

func (l *Lot) SetEmergency(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emergency = on
}

func (l *Lot) Emergency() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.emergency
}

// ApplyFloor merges a floor report coming in over the relay. Spots unknown
// to the reporting node keep only aggregate truth: occupancy is modeled as
// the first N spots of each class taken.
func (l *Lot) ApplyFloor(floor int, freeByClass [3]int, blocked bool) error {
	if floor < 0 || floor >= len(l.floors) {
		return fmt.Errorf("no floor %d", floor)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fl := &l.floors[floor]
	fl.Blocked = blocked
	remaining := freeByClass
	for i := len(fl.Spots) - 1; i >= 0; i-- {
		s := &fl.Spots[i]
		if remaining[s.Class] > 0 {
			remaining[s.Class]--
			s.Occupied = false
		} else {
			s.Occupied = true
		}
	}
	return nil
}

// Snapshot returns a deep copy of the whole book; callers may keep or
// mutate it freely.
func (l *Lot) Snapshot() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{
		TotalFree: l.totalFree(),
		Emergency: l.emergency,
	}
	st.Full = st.TotalFree == 0
	if err := deepcopy.Copy(&st.Floors, &l.floors); err != nil {
		// copy of plain structs cannot fail; keep the zero view if it does
		log.Printf("[parking] snapshot copy failed: %v", err)
	}
	return st
}

// DisplaySnapshot builds the transient register image for the status board.
func (l *Lot) DisplaySnapshot() display.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	var snap display.Snapshot
	for fi := range l.floors {
		if fi >= display.Floors {
			break
		}
		byClass, _ := l.floors[fi].Free()
		for c := 0; c < 3; c++ {
			snap.Free[fi][c] = uint16(byClass[c])
		}
		snap.Cars[fi] = uint16(l.floors[fi].Cars())
	}
	snap.LotFull = l.totalFree() == 0
	if len(l.floors) > 1 {
		_, free := l.floors[1].Free()
		snap.Floor1Full = l.floors[1].Blocked || free == 0
	}
	if len(l.floors) > 2 {
		_, free := l.floors[2].Free()
		snap.Floor2Full = l.floors[2].Blocked || free == 0
	}
	return snap
}

// totalFree is the lot-wide free count. Caller holds mu.
func (l *Lot) totalFree() int {
	total := 0
	for i := range l.floors {
		_, free := l.floors[i].Free()
		total += free
	}
	return total
}
