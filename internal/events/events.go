// Package events keeps a bounded in-memory trail of what happened in the
// garage, served to operators through the admin API.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindVehicleEntry Kind = "vehicle_entry"
	KindVehicleExit  Kind = "vehicle_exit"
	KindPassage      Kind = "passage"
	KindGate         Kind = "gate"
	KindStatus       Kind = "status"
	KindEmergency    Kind = "emergency"
)

type Event struct {
	ID      string    `json:"id"`
	Node    string    `json:"node"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// New stamps an event with an ID and timestamp.
func New(node string, kind Kind, message string) Event {
	return Event{
		ID:      uuid.NewString(),
		Node:    node,
		Kind:    kind,
		Message: message,
		Time:    time.Now(),
	}
}

type Buffer interface {
	Push(e Event)
	Pull(after time.Time, max int) []Event
}

type ring struct {
	mu   sync.RWMutex
	data []Event
	size int
}

func NewRing(size int) Buffer {
	return &ring{data: make([]Event, 0, size), size: size}
}

func (r *ring) Push(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) == r.size {
		r.data = r.data[1:]
	}
	r.data = append(r.data, e)
}

func (r *ring) Pull(after time.Time, max int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0, max)
	for i := len(r.data) - 1; i >= 0 && len(out) < max; i-- {
		if r.data[i].Time.After(after) {
			out = append(out, r.data[i])
		}
	}
	// oldest first
	for l, rgt := 0, len(out)-1; l < rgt; l, rgt = l+1, rgt-1 {
		out[l], out[rgt] = out[rgt], out[l]
	}
	return out
}
