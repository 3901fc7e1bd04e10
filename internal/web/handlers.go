package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"parkserv/internal/events"
	"parkserv/internal/hub"
	"parkserv/internal/relay"
)

// /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

// /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"lot":   s.lot.Snapshot(),
		"nodes": s.reg.List(),
	})
}

// /api/v1/events?after=RFC3339&max=N
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	after := time.Time{}
	if v := r.URL.Query().Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad 'after' timestamp"})
			return
		}
		after = t
	}
	max := 100
	if v := r.URL.Query().Get("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			max = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": s.evbuf.Pull(after, max)})
}

// /api/v1/gates/{entry|exit}/{open|close|reset|capture}
func (s *Server) handleGateAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	p := strings.TrimPrefix(r.URL.Path, "/api/v1/gates/")
	parts := strings.SplitN(p, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	gate, action := parts[0], parts[1]
	if gate != "entry" && gate != "exit" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "gate must be 'entry' or 'exit'"})
		return
	}

	var typ relay.MessageType
	switch action {
	case "open", "close", "reset":
		typ = relay.TypeGate
	case "capture":
		typ = relay.TypeCapture
	default:
		http.NotFound(w, r)
		return
	}

	s.enqueue(s.groundNode, typ, relay.GateCommand{Gate: gate, Action: action})
	s.evbuf.Push(events.New("central", events.KindGate, fmt.Sprintf("operator: %s %s gate", action, gate)))
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// /api/v1/floors/{n}/{block|unblock}
func (s *Server) handleFloorAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	p := strings.TrimPrefix(r.URL.Path, "/api/v1/floors/")
	parts := strings.SplitN(p, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	floor, err := strconv.Atoi(parts[0])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad floor number"})
		return
	}

	var blocked bool
	switch parts[1] {
	case "block":
		blocked = true
	case "unblock":
		blocked = false
	default:
		http.NotFound(w, r)
		return
	}

	if err := s.lot.SetBlocked(floor, blocked); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	// the owning node keeps its own book; tell it, or its next status
	// report would undo the block
	for _, n := range s.reg.List() {
		if n.Floor == floor {
			s.enqueue(n.ID, relay.TypeBlock, relay.GateCommand{Floor: floor, Block: blocked})
		}
	}
	s.evbuf.Push(events.New("central", events.KindStatus,
		fmt.Sprintf("operator: floor %d blocked=%v", floor, blocked)))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "floor": floor, "blocked": blocked})
}

// /api/v1/emergency  body: {"on": true|false}
func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	var req struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}

	s.lot.SetEmergency(req.On)
	for _, n := range s.reg.List() {
		s.enqueue(n.ID, relay.TypeEmergency, relay.GateCommand{Block: req.On})
	}
	s.evbuf.Push(events.New("central", events.KindEmergency,
		fmt.Sprintf("operator: emergency=%v", req.On)))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "emergency": req.On})
}

func (s *Server) enqueue(node string, typ relay.MessageType, cmd relay.GateCommand) {
	payload, _ := json.Marshal(cmd)
	s.hub.Enqueue(node, hub.Command{
		ID:      uuid.NewString(),
		Type:    string(typ),
		Payload: payload,
	})
}
