package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"parkserv/internal/config"
	"parkserv/internal/discovery"
	"parkserv/internal/display"
	"parkserv/internal/gate"
	"parkserv/internal/gpio"
	"parkserv/internal/lpr"
	"parkserv/internal/modbus"
	"parkserv/internal/parking"
	"parkserv/internal/relay"
)

// ground runs the street-level floor: both barriers, both cameras, the
// totem display and the floor's own occupancy sweep.
type ground struct {
	cfg *config.Config
	io  gpio.Port
	lot *parking.Lot

	entryGate *gate.Controller
	exitGate  *gate.Controller
	entryCam  *lpr.Session
	exitCam   *lpr.Session
	board     *display.Writer

	client *relay.Client
}

func main() {
	cfgPath := flag.String("config", "configs/parkserv.yml", "path to config file")
	gpioDriver := flag.String("gpio", "mem", "pin driver (mem)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	io, err := gpio.Open(*gpioDriver)
	if err != nil {
		log.Fatalf("gpio: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	tr, err := modbus.Connect(cfg.Bus.Device, cfg.Bus.Baud, cfg.Bus.Timeout.D(), cfg.Bus.ByteTimeout.D())
	if err != nil {
		log.Fatalf("bus: %v", err)
	}
	cl, err := modbus.NewClient(tr, cfg.UnitDigits())
	if err != nil {
		log.Fatalf("bus: %v", err)
	}
	defer cl.Close()
	if err := cl.SetRetries(cfg.Bus.MaxRetries); err != nil {
		log.Fatalf("bus: %v", err)
	}
	if err := cl.SetBackoff(cfg.Bus.BackoffBase.D()); err != nil {
		log.Fatalf("bus: %v", err)
	}

	g := &ground{
		cfg:       cfg,
		io:        io,
		lot:       parking.NewLot(cfg.Floors),
		entryGate: gate.New(gate.Entry, cfg.EntryGate, io),
		exitGate:  gate.New(gate.Exit, cfg.ExitGate, io),
		entryCam:  lpr.NewSession(cl, cfg.Bus.CameraEntry, "entry"),
		exitCam:   lpr.NewSession(cl, cfg.Bus.CameraExit, "exit"),
		board:     display.NewWriter(cl, cfg.Bus.Display),
	}

	addr := cfg.Relay.CentralAddr
	if addr == "" && cfg.Discovery.Enabled {
		addr, err = discovery.Locate(ctx, cfg)
		if err != nil {
			log.Fatalf("discovery: %v", err)
		}
	}
	g.client = relay.NewClient(cfg.Node, 0, addr, g.onCommand)

	go g.entryGate.Run(ctx)
	go g.exitGate.Run(ctx)
	go g.scanLoop(ctx)
	go g.statusLoop(ctx)
	go func() {
		if err := g.client.Start(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[ground] relay stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[ground] shutting down, bus stats: %+v", cl.Stats())
}

// scanLoop sweeps the street-level sensor bank.
func (g *ground) scanLoop(ctx context.Context) {
	mux := gpio.MuxConfig{
		AddressPins: g.cfg.Floors[0].AddressPins,
		SensorPin:   g.cfg.Floors[0].SensorPin,
		Spots:       g.cfg.Floors[0].Spots,
	}
	t := time.NewTicker(g.cfg.ScanInterval.D())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if _, err := g.lot.ScanFloor(0, g.io, mux); err != nil {
			log.Printf("[ground] scan: %v", err)
		}
	}
}

// statusLoop pushes the floor report upstream every interval.
func (g *ground) statusLoop(ctx context.Context) {
	t := time.NewTicker(g.cfg.StatusInterval.D())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		st := g.lot.Snapshot()
		free, _ := st.Floors[0].Free()
		m := relay.NewMessage(relay.TypeStatus, g.cfg.Node)
		m.Status = &relay.FloorReport{
			Floor:          0,
			FreeAccessible: free[parking.Accessible],
			FreePriority:   free[parking.Priority],
			FreeStandard:   free[parking.Standard],
			Cars:           st.Floors[0].Cars(),
			Blocked:        st.Floors[0].Blocked,
		}
		g.client.Send(m)
	}
}

// onCommand executes what central pushed down.
func (g *ground) onCommand(msg relay.Message) {
	switch msg.Type {
	case relay.TypeGate:
		if msg.Command == nil {
			return
		}
		ctl := g.entryGate
		if msg.Command.Gate == "exit" {
			ctl = g.exitGate
		}
		var err error
		switch msg.Command.Action {
		case "open":
			err = ctl.Open()
		case "close":
			err = ctl.Close()
		case "reset":
			err = ctl.ResetError()
		}
		if err != nil {
			log.Printf("[ground] gate %s %s: %v", msg.Command.Gate, msg.Command.Action, err)
		}

	case relay.TypeCapture:
		if msg.Command == nil {
			return
		}
		entry := msg.Command.Gate != "exit"
		go g.capture(entry)

	case relay.TypeDisplay:
		if msg.Display == nil {
			return
		}
		d := msg.Display
		snap := display.Snapshot{
			Free:       d.Free,
			Cars:       d.Cars,
			LotFull:    d.LotFull,
			Floor1Full: d.Floor1Full,
			Floor2Full: d.Floor2Full,
		}
		if err := g.board.Write(snap); err != nil {
			log.Printf("[ground] display: %v", err)
		}

	case relay.TypeBlock:
		if msg.Command == nil {
			return
		}
		if err := g.lot.SetBlocked(0, msg.Command.Block); err != nil {
			log.Printf("[ground] block: %v", err)
		}

	case relay.TypeEmergency:
		on := msg.Command != nil && msg.Command.Block
		g.lot.SetEmergency(on)
		if on {
			if err := gate.EmergencyOpenAll(g.entryGate, g.exitGate); err != nil {
				log.Printf("[ground] emergency open: %v", err)
			}
		} else {
			if err := g.entryGate.Close(); err != nil {
				log.Printf("[ground] entry close: %v", err)
			}
			if err := g.exitGate.Close(); err != nil {
				log.Printf("[ground] exit close: %v", err)
			}
		}
	}
}

// capture runs one camera read and reports the plate upstream. Central
// decides admission and sends the gate command back.
func (g *ground) capture(entry bool) {
	cam, which := g.entryCam, "entry"
	if !entry {
		cam, which = g.exitCam, "exit"
	}

	reading, err := cam.CaptureAndRead(0)
	if err != nil {
		log.Printf("[ground] %s camera: %v", which, err)
		return
	}
	log.Printf("[ground] %s camera read %q confidence=%d ok=%v",
		which, reading.Plate, reading.Confidence, reading.Success)

	m := relay.NewMessage(relay.TypeVehicle, g.cfg.Node)
	m.Vehicle = &relay.VehicleReport{
		Plate:      reading.Plate,
		Confidence: reading.Confidence,
		Entry:      entry,
		Admitted:   reading.Success,
	}
	g.client.Send(m)
}
