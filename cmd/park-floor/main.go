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
	"parkserv/internal/gpio"
	"parkserv/internal/parking"
	"parkserv/internal/passage"
	"parkserv/internal/relay"
)

// floorNode runs an upper floor: the occupancy sweep plus the ramp
// crossing detector between this floor and the one below.
type floorNode struct {
	cfg    *config.Config
	floor  int
	io     gpio.Port
	lot    *parking.Lot
	client *relay.Client
}

func main() {
	cfgPath := flag.String("config", "configs/parkserv.yml", "path to config file")
	floor := flag.Int("floor", 1, "floor index this node controls")
	gpioDriver := flag.String("gpio", "mem", "pin driver (mem)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *floor < 1 || *floor >= len(cfg.Floors) {
		log.Fatalf("floor %d out of range (have %d floors)", *floor, len(cfg.Floors))
	}

	io, err := gpio.Open(*gpioDriver)
	if err != nil {
		log.Fatalf("gpio: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	f := &floorNode{
		cfg:   cfg,
		floor: *floor,
		io:    io,
		lot:   parking.NewLot(cfg.Floors),
	}

	addr := cfg.Relay.CentralAddr
	if addr == "" && cfg.Discovery.Enabled {
		addr, err = discovery.Locate(ctx, cfg)
		if err != nil {
			log.Fatalf("discovery: %v", err)
		}
	}
	f.client = relay.NewClient(cfg.Node, *floor, addr, f.onCommand)

	go f.scanLoop(ctx)
	go f.statusLoop(ctx)
	go f.passageLoop(ctx)
	go func() {
		if err := f.client.Start(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[floor%d] relay stopped: %v", f.floor, err)
		}
	}()

	<-ctx.Done()
	log.Printf("[floor%d] shutting down", f.floor)
}

func (f *floorNode) scanLoop(ctx context.Context) {
	fc := f.cfg.Floors[f.floor]
	mux := gpio.MuxConfig{AddressPins: fc.AddressPins, SensorPin: fc.SensorPin, Spots: fc.Spots}
	t := time.NewTicker(f.cfg.ScanInterval.D())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if _, err := f.lot.ScanFloor(f.floor, f.io, mux); err != nil {
			log.Printf("[floor%d] scan: %v", f.floor, err)
		}
	}
}

func (f *floorNode) statusLoop(ctx context.Context) {
	t := time.NewTicker(f.cfg.StatusInterval.D())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		st := f.lot.Snapshot()
		free, _ := st.Floors[f.floor].Free()
		m := relay.NewMessage(relay.TypeStatus, f.cfg.Node)
		m.Status = &relay.FloorReport{
			Floor:          f.floor,
			FreeAccessible: free[parking.Accessible],
			FreePriority:   free[parking.Priority],
			FreeStandard:   free[parking.Standard],
			Cars:           st.Floors[f.floor].Cars(),
			Blocked:        st.Floors[f.floor].Blocked,
		}
		f.client.Send(m)
	}
}

// passageLoop reports ramp crossings. The topmost floor only ever sees
// cars coming down, so its detector is one-way.
func (f *floorNode) passageLoop(ctx context.Context) {
	fc := f.cfg.Floors[f.floor]

	det := passage.NewDetector()
	if f.floor == len(f.cfg.Floors)-1 {
		det = passage.NewOneWay(passage.Down)
	}

	out := make(chan passage.Event, 8)
	go det.Run(ctx, f.io, fc.Passage1, fc.Passage2, out)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-out:
			from, to := f.floor-1, f.floor
			if ev.Direction == passage.Down {
				from, to = f.floor, f.floor-1
			}
			log.Printf("[floor%d] crossing %s: %d -> %d", f.floor, ev.Direction, from, to)

			m := relay.NewMessage(relay.TypePassage, f.cfg.Node)
			m.Passage = &relay.PassageReport{FromFloor: from, ToFloor: to}
			f.client.Send(m)
		}
	}
}

// onCommand: floor nodes only care about emergency and block toggles.
func (f *floorNode) onCommand(msg relay.Message) {
	switch msg.Type {
	case relay.TypeEmergency:
		on := msg.Command != nil && msg.Command.Block
		f.lot.SetEmergency(on)
		log.Printf("[floor%d] emergency=%v", f.floor, on)
	case relay.TypeBlock:
		if msg.Command == nil {
			return
		}
		if err := f.lot.SetBlocked(f.floor, msg.Command.Block); err != nil {
			log.Printf("[floor%d] block: %v", f.floor, err)
		}
	}
}
