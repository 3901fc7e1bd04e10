package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"time"
)

// Client is the node end of the relay. It keeps one connection to central
// alive with dial backoff, drains the outbound queue, and hands inbound
// commands to the callback.
type Client struct {
	node  string
	floor int
	addr  string

	out       chan Message
	onCommand func(Message)
}

func NewClient(node string, floor int, addr string, onCommand func(Message)) *Client {
	return &Client{
		node:      node,
		floor:     floor,
		addr:      addr,
		out:       make(chan Message, 64),
		onCommand: onCommand,
	}
}

// Send queues a message for central. Never blocks; with central away the
// oldest unsent messages are dropped, status is resent every interval
// anyway.
func (c *Client) Send(m Message) {
	for {
		select {
		case c.out <- m:
			return
		default:
			select {
			case <-c.out:
			default:
			}
		}
	}
}

func (c *Client) Start(ctx context.Context) error {
	var d net.Dialer
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Printf("[relay] %s: cannot reach central at %s: %v", c.node, c.addr, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff < 10*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		log.Printf("[relay] %s: connected to central", c.node)

		c.session(ctx, conn)
		_ = conn.Close()
	}
}

// session runs one connected period: hello, writer, reader.
func (c *Client) session(ctx context.Context, conn net.Conn) {
	enc := json.NewEncoder(conn)

	hello := NewMessage(TypeHello, c.node)
	hello.Floor = c.floor
	if err := enc.Encode(hello); err != nil {
		log.Printf("[relay] %s: hello: %v", c.node, err)
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			select {
			case <-sessCtx.Done():
				return
			case m := <-c.out:
				if err := enc.Encode(m); err != nil {
					log.Printf("[relay] %s: write: %v", c.node, err)
					_ = conn.Close()
					return
				}
			}
		}
	}()

	dec := json.NewDecoder(conn)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if ctx.Err() == nil {
				log.Printf("[relay] %s: connection lost: %v", c.node, err)
			}
			return
		}
		if c.onCommand != nil {
			c.onCommand(msg)
		}
	}
}
