package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"

	"parkserv/internal/hub"
	"parkserv/internal/registry"
)

// Handler consumes every message a node pushes up.
type Handler func(msg Message)

// Server is the central end of the relay: it accepts node connections,
// feeds inbound messages to the handler and pushes queued hub commands
// back down the same connection.
type Server struct {
	ln      net.Listener
	reg     *registry.Store
	hub     *hub.Hub
	handler Handler
}

func NewServer(addr string, reg *registry.Store, h *hub.Hub, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("relay: listen %s: %w", addr, err)
	}
	return &Server{ln: ln, reg: reg, hub: h, handler: handler}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Start(ctx context.Context) error {
	log.Printf("[relay] listening on %s", s.Addr())

	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[relay] stopped")
				return ctx.Err()
			}
			log.Printf("[relay] accept: %v", err)
			continue
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)

	// first line must identify the node
	var hello Message
	if err := dec.Decode(&hello); err != nil || hello.Type != TypeHello {
		log.Printf("[relay] %s: no hello, dropping", conn.RemoteAddr())
		return
	}
	node := hello.Node
	s.reg.Upsert(registry.Node{ID: node, Floor: hello.Floor, Addr: conn.RemoteAddr().String(), Online: true})
	s.hub.Touch(node)
	log.Printf("[relay] node %s connected from %s", node, conn.RemoteAddr())

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// writer: queued commands for this node go down the same connection
	go func() {
		enc := json.NewEncoder(conn)
		for {
			cmds := s.hub.Wait(connCtx, node)
			if cmds == nil {
				return
			}
			for _, c := range cmds {
				msg := Message{ID: c.ID, Type: MessageType(c.Type), Node: "central"}
				if len(c.Payload) > 0 {
					var gc GateCommand
					if err := json.Unmarshal(c.Payload, &gc); err == nil {
						msg.Command = &gc
					}
					var dr DisplayReport
					if msg.Type == TypeDisplay && json.Unmarshal(c.Payload, &dr) == nil {
						msg.Command = nil
						msg.Display = &dr
					}
				}
				if err := enc.Encode(msg); err != nil {
					log.Printf("[relay] node %s: write: %v", node, err)
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Printf("[relay] node %s disconnected: %v", node, err)
			}
			s.reg.SetOnline(node, false)
			return
		}
		s.hub.Touch(node)
		if s.handler != nil {
			s.handler(msg)
		}
	}
}
