// Package lpr drives the license-plate cameras on the bus. A capture is a
// two-phase exchange: trigger, then poll until the camera finished its
// asynchronous recognition, then fetch the plate registers.
package lpr

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"parkserv/internal/modbus"
)

// Camera register map.
const (
	regStatus     = 0
	regTrigger    = 1
	regPlate      = 2
	regConfidence = 6

	plateRegisters = 4 // two characters per register
)

// STATUS register values.
const (
	statusReady      = 0
	statusProcessing = 1
	statusOK         = 2
	statusError      = 3
)

const (
	// MinConfidence is the lowest confidence accepted as a good read.
	MinConfidence = 70
	minPlateLen   = 7

	DefaultTimeout = 2 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// ErrCameraFault means the camera itself reported a failed capture.
var ErrCameraFault = errors.New("lpr: camera reported capture error")

// Reading is one plate capture result. Not retained anywhere; callers own
// the value.
type Reading struct {
	Plate      string
	Confidence int
	Success    bool
	Time       time.Time
}

// Session addresses one camera through a shared bus client.
type Session struct {
	cl   *modbus.Client
	addr byte
	name string

	sleep func(time.Duration)
	now   func() time.Time
}

func NewSession(cl *modbus.Client, addr byte, name string) *Session {
	return &Session{cl: cl, addr: addr, name: name, sleep: time.Sleep, now: time.Now}
}

// CaptureAndRead triggers a capture and returns the decoded reading. A
// timeout <= 0 selects the default budget. The confidence register failing
// degrades the reading instead of discarding the plate text.
func (s *Session) CaptureAndRead(timeout time.Duration) (Reading, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := Reading{Time: s.now()}

	if err := s.cl.WriteRegister(s.addr, regTrigger, 1); err != nil {
		return r, fmt.Errorf("trigger camera %s: %w", s.name, err)
	}

	if err := s.waitCaptured(timeout); err != nil {
		return r, err
	}

	regs, err := s.cl.ReadRegisters(s.addr, regPlate, plateRegisters)
	if err != nil {
		return r, fmt.Errorf("read plate from camera %s: %w", s.name, err)
	}
	r.Plate = decodePlate(regs)

	conf, err := s.cl.ReadRegisters(s.addr, regConfidence, 1)
	if err != nil {
		// degraded read: keep the plate, confidence zero
		log.Printf("[lpr] camera %s: confidence read failed: %v", s.name, err)
		r.Confidence = 0
	} else {
		r.Confidence = int(conf[0])
	}

	r.Success = r.Confidence >= MinConfidence && len(r.Plate) >= minPlateLen
	log.Printf("[lpr] camera %s: plate=%q confidence=%d%% success=%v",
		s.name, r.Plate, r.Confidence, r.Success)
	return r, nil
}

// waitCaptured polls the status register until the camera reports OK.
func (s *Session) waitCaptured(timeout time.Duration) error {
	deadline := s.now().Add(timeout)
	for {
		regs, err := s.cl.ReadRegisters(s.addr, regStatus, 1)
		if err == nil {
			switch regs[0] {
			case statusOK:
				return nil
			case statusError:
				return fmt.Errorf("camera %s: %w", s.name, ErrCameraFault)
			case statusReady, statusProcessing:
				// keep polling
			}
		}
		if !s.now().Add(pollInterval).After(deadline) {
			s.sleep(pollInterval)
			continue
		}
		s.cl.RecordTimeout()
		return fmt.Errorf("camera %s: %w", s.name, modbus.ErrTimeout)
	}
}

// decodePlate unpacks up to 8 characters, high byte of each register first,
// truncating at the first non-printable byte and trimming trailing spaces.
func decodePlate(regs []uint16) string {
	raw := make([]byte, 0, 2*len(regs))
	for _, r := range regs {
		raw = append(raw, byte(r>>8), byte(r))
	}
	n := len(raw)
	for i, b := range raw {
		if b < 32 || b > 126 {
			n = i
			break
		}
	}
	return strings.TrimRight(string(raw[:n]), " ")
}
