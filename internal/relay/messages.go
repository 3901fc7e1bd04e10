// Package relay moves status and commands between the floor controllers
// and central as JSON lines over TCP.
package relay

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeHello     MessageType = "hello"
	TypeStatus    MessageType = "status"
	TypePassage   MessageType = "passage"
	TypeVehicle   MessageType = "vehicle"
	TypeGate      MessageType = "gate_command"
	TypeDisplay   MessageType = "display"
	TypeEmergency MessageType = "emergency"
	TypeBlock     MessageType = "block"
	TypeCapture   MessageType = "capture"
)

// FloorReport is one floor's aggregate occupancy.
type FloorReport struct {
	Floor          int  `json:"floor"`
	FreeAccessible int  `json:"free_accessible"`
	FreePriority   int  `json:"free_priority"`
	FreeStandard   int  `json:"free_standard"`
	Cars           int  `json:"cars"`
	Blocked        bool `json:"blocked"`
}

type PassageReport struct {
	FromFloor int `json:"from_floor"`
	ToFloor   int `json:"to_floor"`
}

type VehicleReport struct {
	Plate      string `json:"plate"`
	Confidence int    `json:"confidence"`
	Entry      bool   `json:"entry"`
	Floor      int    `json:"floor"`
	Spot       int    `json:"spot"`
	Admitted   bool   `json:"admitted"`
}

// GateCommand travels central -> ground. Gate is "entry" or "exit";
// Action is "open", "close" or "reset". Capture commands reuse Gate to
// pick the camera.
type GateCommand struct {
	Gate   string `json:"gate,omitempty"`
	Action string `json:"action,omitempty"`
	Floor  int    `json:"floor,omitempty"`
	Block  bool   `json:"block,omitempty"`
}

// DisplayReport carries the aggregated board image central pushes down to
// the ground node, which owns the bus.
type DisplayReport struct {
	Free       [3][3]uint16 `json:"free"`
	Cars       [3]uint16    `json:"cars"`
	LotFull    bool         `json:"lot_full"`
	Floor1Full bool         `json:"floor1_full"`
	Floor2Full bool         `json:"floor2_full"`
}

type Message struct {
	ID   string      `json:"id"`
	Type MessageType `json:"type"`
	Node string      `json:"node"`
	Time time.Time   `json:"time"`

	Floor   int            `json:"floor,omitempty"`
	Status  *FloorReport   `json:"status,omitempty"`
	Passage *PassageReport `json:"passage,omitempty"`
	Vehicle *VehicleReport `json:"vehicle,omitempty"`
	Command *GateCommand   `json:"command,omitempty"`
	Display *DisplayReport `json:"display,omitempty"`
}

// NewMessage stamps id, node and time.
func NewMessage(t MessageType, node string) Message {
	return Message{
		ID:   uuid.NewString(),
		Type: t,
		Node: node,
		Time: time.Now(),
	}
}
