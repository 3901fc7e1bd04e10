// Package hub queues commands addressed to individual nodes until their
// relay connection picks them up.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type Command struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type nodeState struct {
	q    chan Command
	last time.Time
}

type Hub struct {
	mu  sync.RWMutex
	dev map[string]*nodeState
}

func New() *Hub { return &Hub{dev: map[string]*nodeState{}} }

func (h *Hub) get(id string) *nodeState {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.dev[id]
	if !ok {
		s = &nodeState{q: make(chan Command, 64)}
		h.dev[id] = s
	}
	s.last = time.Now()
	return s
}

func (h *Hub) Enqueue(id string, c Command) {
	s := h.get(id)
	select {
	case s.q <- c:
	default: // queue full, command dropped
	}
}

// Wait blocks until at least one command is queued for the node, then
// drains up to a batch.
func (h *Hub) Wait(ctx context.Context, id string) []Command {
	s := h.get(id)
	select {
	case c := <-s.q:
		cmds := []Command{c}
		for i := 0; i < 31; i++ {
			select {
			case c2 := <-s.q:
				cmds = append(cmds, c2)
			default:
				return cmds
			}
		}
		return cmds
	case <-ctx.Done():
		return nil
	}
}

// Touch records traffic from the node.
func (h *Hub) Touch(id string) { h.get(id) }

func (h *Hub) LastSeen(id string) time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.dev[id]; ok {
		return s.last
	}
	return time.Time{}
}
