package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"parkserv/internal/config"
	"parkserv/internal/discovery"
	"parkserv/internal/events"
	"parkserv/internal/hub"
	"parkserv/internal/lpr"
	"parkserv/internal/parking"
	"parkserv/internal/registry"
	"parkserv/internal/relay"
	"parkserv/internal/web"
)

const groundNode = "ground"

// central aggregates floor reports into the lot book, decides admissions,
// and pushes gate/display commands back down to the ground controller.
type central struct {
	lot   *parking.Lot
	reg   *registry.Store
	evbuf events.Buffer
	hub   *hub.Hub
}

func main() {
	cfgPath := flag.String("config", "configs/parkserv.yml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	c := &central{
		lot:   parking.NewLot(cfg.Floors),
		reg:   registry.NewStore(),
		evbuf: events.NewRing(1024),
		hub:   hub.New(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	errCh := make(chan error, 2)

	srv, err := relay.NewServer(fmt.Sprintf(":%d", cfg.Relay.Port), c.reg, c.hub, c.handle)
	if err != nil {
		log.Fatalf("relay: %v", err)
	}
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	go c.reg.StartMonitoring(ctx, c.hub, 5*time.Second, 15*time.Second)

	if cfg.Discovery.Enabled {
		if err := discovery.Start(ctx, cfg, srv.Addr()); err != nil {
			log.Printf("[discovery] not started: %v", err)
		}
	}

	webSrv := web.New(cfg.Web, c.lot, c.reg, c.evbuf, c.hub, groundNode)
	go func() {
		if err := webSrv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	go c.refreshDisplay(ctx, cfg.StatusInterval.D())

	select {
	case err := <-errCh:
		log.Fatalf("fatal: %v", err)
	case <-ctx.Done():
		log.Printf("[central] shutting down")
	}
}

// handle consumes every message the nodes push up.
func (c *central) handle(msg relay.Message) {
	switch msg.Type {
	case relay.TypeStatus:
		if msg.Status == nil {
			return
		}
		st := msg.Status
		free := [3]int{st.FreeAccessible, st.FreePriority, st.FreeStandard}
		if err := c.lot.ApplyFloor(st.Floor, free, st.Blocked); err != nil {
			log.Printf("[central] status from %s: %v", msg.Node, err)
		}

	case relay.TypePassage:
		if msg.Passage == nil {
			return
		}
		c.evbuf.Push(events.New(msg.Node, events.KindPassage,
			fmt.Sprintf("vehicle moved floor %d -> %d", msg.Passage.FromFloor, msg.Passage.ToFloor)))

	case relay.TypeVehicle:
		if msg.Vehicle == nil {
			return
		}
		if msg.Vehicle.Entry {
			c.admit(msg.Node, msg.Vehicle)
		} else {
			c.releaseAndOpen(msg.Node, msg.Vehicle)
		}

	case relay.TypeEmergency:
		// a node reported the physical emergency signal
		on := msg.Command != nil && msg.Command.Block
		c.lot.SetEmergency(on)
		for _, n := range c.reg.List() {
			c.command(n.ID, relay.TypeEmergency, relay.GateCommand{Block: on})
		}
		c.evbuf.Push(events.New(msg.Node, events.KindEmergency,
			fmt.Sprintf("emergency=%v", on)))
	}
}

// admit decides whether a car at the entry camera gets in.
func (c *central) admit(node string, v *relay.VehicleReport) {
	if c.lot.Emergency() {
		c.evbuf.Push(events.New(node, events.KindVehicleEntry,
			fmt.Sprintf("entry refused (emergency): %s", v.Plate)))
		return
	}
	if !v.Admitted || v.Confidence < lpr.MinConfidence {
		c.evbuf.Push(events.New(node, events.KindVehicleEntry,
			fmt.Sprintf("entry refused (bad read): %q confidence=%d", v.Plate, v.Confidence)))
		return
	}

	floor, spot, ok := c.lot.Allocate(v.Plate, 0)
	if !ok {
		c.evbuf.Push(events.New(node, events.KindVehicleEntry,
			fmt.Sprintf("entry refused (lot full): %s", v.Plate)))
		return
	}

	c.command(groundNode, relay.TypeGate, relay.GateCommand{Gate: "entry", Action: "open"})
	c.evbuf.Push(events.New(node, events.KindVehicleEntry,
		fmt.Sprintf("admitted %s to floor %d spot %d", v.Plate, floor, spot)))
}

// releaseAndOpen always lets the car out; an unknown plate only loses the
// bookkeeping entry, never traps the vehicle.
func (c *central) releaseAndOpen(node string, v *relay.VehicleReport) {
	floor, spot, ok := c.lot.Release(v.Plate)
	c.command(groundNode, relay.TypeGate, relay.GateCommand{Gate: "exit", Action: "open"})
	if ok {
		c.evbuf.Push(events.New(node, events.KindVehicleExit,
			fmt.Sprintf("released %s from floor %d spot %d", v.Plate, floor, spot)))
	} else {
		c.evbuf.Push(events.New(node, events.KindVehicleExit,
			fmt.Sprintf("exit with unknown plate %q", v.Plate)))
	}
}

// refreshDisplay pushes the aggregated board image to the ground node,
// which owns the serial bus.
func (c *central) refreshDisplay(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		snap := c.lot.DisplaySnapshot()
		rep := relay.DisplayReport{
			Free:       snap.Free,
			Cars:       snap.Cars,
			LotFull:    snap.LotFull,
			Floor1Full: snap.Floor1Full,
			Floor2Full: snap.Floor2Full,
		}
		payload, _ := json.Marshal(rep)
		c.hub.Enqueue(groundNode, hub.Command{
			ID:      uuid.NewString(),
			Type:    string(relay.TypeDisplay),
			Payload: payload,
		})
	}
}

func (c *central) command(node string, typ relay.MessageType, cmd relay.GateCommand) {
	payload, _ := json.Marshal(cmd)
	c.hub.Enqueue(node, hub.Command{
		ID:      uuid.NewString(),
		Type:    string(typ),
		Payload: payload,
	})
}
