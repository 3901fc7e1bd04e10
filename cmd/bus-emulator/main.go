// bus-emulator answers on the other end of a serial pair as the entry
// camera, exit camera and totem display. Pair it with the controller via
// socat:
//
//	socat -d -d pty,raw,echo=0,link=/tmp/ttyV0 pty,raw,echo=0,link=/tmp/ttyV1
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"parkserv/internal/modbus"
)

const (
	regStatus     = 0
	regTrigger    = 1
	regPlateBase  = 2
	regConfidence = 6

	statusReady      = 0
	statusProcessing = 1
	statusOK         = 2
	statusError      = 3

	processingDelay = 300 * time.Millisecond
)

// exception codes per the function code spec
const (
	exIllegalFunction = 1
	exIllegalAddress  = 2
)

// camera emulates one plate reader's register bank.
type camera struct {
	mu          sync.Mutex
	name        string
	status      uint16
	plate       string
	confidence  uint16
	triggeredAt time.Time
	failEvery   int
	captures    int
}

func (c *camera) read(start, count uint16) ([]uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle()

	if int(start)+int(count) > regConfidence+1 {
		return nil, false
	}
	bank := make([]uint16, regConfidence+1)
	bank[regStatus] = c.status
	for i := 0; i < 4; i++ {
		var hi, lo byte = ' ', ' '
		if 2*i < len(c.plate) {
			hi = c.plate[2*i]
		}
		if 2*i+1 < len(c.plate) {
			lo = c.plate[2*i+1]
		}
		bank[regPlateBase+i] = uint16(hi)<<8 | uint16(lo)
	}
	bank[regConfidence] = c.confidence
	return bank[start : start+count], true
}

func (c *camera) write(reg, value uint16) bool {
	if reg != regTrigger {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == 1 {
		c.status = statusProcessing
		c.triggeredAt = time.Now()
		c.captures++
		log.Printf("[%s] capture #%d triggered", c.name, c.captures)
	}
	return true
}

// settle moves PROCESSING to a final status once the fake exposure is done.
func (c *camera) settle() {
	if c.status != statusProcessing || time.Since(c.triggeredAt) < processingDelay {
		return
	}
	if c.failEvery > 0 && c.captures%c.failEvery == 0 {
		c.status = statusError
		log.Printf("[%s] capture failed", c.name)
		return
	}
	c.status = statusOK
	c.plate = randomPlate()
	c.confidence = uint16(60 + rand.Intn(40))
	log.Printf("[%s] captured %s confidence=%d", c.name, c.plate, c.confidence)
}

func randomPlate() string {
	letters := "ABCDEFGHJKLMNPRSTUVWXYZ"
	digits := "0123456789"
	b := make([]byte, 7)
	for i := 0; i < 3; i++ {
		b[i] = letters[rand.Intn(len(letters))]
	}
	for i := 3; i < 7; i++ {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}

// board emulates the totem display's register bank.
type board struct {
	mu   sync.Mutex
	regs [13]uint16
}

func (b *board) read(start, count uint16) ([]uint16, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(start)+int(count) > len(b.regs) {
		return nil, false
	}
	return append([]uint16(nil), b.regs[start:start+count]...), true
}

func (b *board) write(start uint16, values []uint16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(start)+len(values) > len(b.regs) {
		return false
	}
	copy(b.regs[start:], values)
	log.Printf("[display] free=%v cars=%v flags=%#x",
		b.regs[0:9], b.regs[9:12], b.regs[12])
	return true
}

func main() {
	device := flag.String("device", "/tmp/ttyV1", "serial device (socat pty)")
	baud := flag.Int("baud", 115200, "baud rate")
	entryAddr := flag.Int("entry", 0x11, "entry camera bus address")
	exitAddr := flag.Int("exit", 0x12, "exit camera bus address")
	displayAddr := flag.Int("display", 0x20, "display bus address")
	failEvery := flag.Int("fail-every", 0, "every Nth capture reports a camera error (0 = never)")
	flag.Parse()

	tr, err := modbus.Connect(*device, *baud, time.Second, 100*time.Millisecond)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer tr.Close()

	entry := &camera{name: "entry-cam", status: statusReady, failEvery: *failEvery}
	exit := &camera{name: "exit-cam", status: statusReady, failEvery: *failEvery}
	disp := &board{}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	log.Printf("emulating entry=%#x exit=%#x display=%#x on %s", *entryAddr, *exitAddr, *displayAddr, *device)

	for ctx.Err() == nil {
		frame, err := tr.Receive()
		if err != nil {
			if errors.Is(err, modbus.ErrTimeout) {
				continue
			}
			log.Printf("receive: %v", err)
			return
		}

		req, err := modbus.ParseRequest(frame)
		if err != nil {
			// garbled frame, stay silent like a real device would
			log.Printf("bad frame (%d bytes): %v", len(frame), err)
			continue
		}

		var rsp []byte
		switch int(req.Addr) {
		case *entryAddr:
			rsp = serveCamera(entry, req)
		case *exitAddr:
			rsp = serveCamera(exit, req)
		case *displayAddr:
			rsp = serveBoard(disp, req)
		default:
			continue // not ours
		}

		if err := tr.Send(rsp); err != nil {
			log.Printf("send: %v", err)
			return
		}
	}
}

func serveCamera(c *camera, req *modbus.Request) []byte {
	switch req.Function {
	case modbus.FnReadRegisters:
		values, ok := c.read(req.Register, req.Count)
		if !ok {
			return modbus.BuildException(req.Addr, req.Function, exIllegalAddress)
		}
		return modbus.BuildReadResponse(req.Addr, values)
	case modbus.FnWriteRegister:
		if !c.write(req.Register, req.Value) {
			return modbus.BuildException(req.Addr, req.Function, exIllegalAddress)
		}
		return modbus.BuildWriteAck(req)
	default:
		return modbus.BuildException(req.Addr, req.Function, exIllegalFunction)
	}
}

func serveBoard(b *board, req *modbus.Request) []byte {
	switch req.Function {
	case modbus.FnReadRegisters:
		values, ok := b.read(req.Register, req.Count)
		if !ok {
			return modbus.BuildException(req.Addr, req.Function, exIllegalAddress)
		}
		return modbus.BuildReadResponse(req.Addr, values)
	case modbus.FnWriteRegister:
		if !b.write(req.Register, []uint16{req.Value}) {
			return modbus.BuildException(req.Addr, req.Function, exIllegalAddress)
		}
		return modbus.BuildWriteAck(req)
	case modbus.FnWriteRegisters:
		if !b.write(req.Register, req.Values) {
			return modbus.BuildException(req.Addr, req.Function, exIllegalAddress)
		}
		return modbus.BuildWriteAck(req)
	default:
		return modbus.BuildException(req.Addr, req.Function, exIllegalFunction)
	}
}
