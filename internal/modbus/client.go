package modbus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Stats counts per-client bus activity. Monotonic for the process lifetime
// unless reset explicitly.
type Stats struct {
	RequestsSent      uint64
	ResponsesReceived uint64
	Errors            uint64
	Timeouts          uint64
	CRCErrors         uint64
}

const (
	DefaultRetries = 3
	MaxRetries     = 10
	defaultBackoff = 100 * time.Millisecond
)

// Client runs addressed register operations over one shared half-duplex
// medium. A single mutex serializes every public operation: two frames are
// never in flight at once.
type Client struct {
	mu sync.Mutex

	tr      Transport
	tag     [4]byte
	retries int
	backoff time.Duration
	stats   Stats

	sleep func(time.Duration)
}

// NewClient wraps a transport. unitDigits is the decimal unit ID stamped
// into every outbound frame (at least 4 digits).
func NewClient(tr Transport, unitDigits []byte) (*Client, error) {
	tag, err := UnitTag(unitDigits)
	if err != nil {
		return nil, err
	}
	return &Client{
		tr:      tr,
		tag:     tag,
		retries: DefaultRetries,
		backoff: defaultBackoff,
		sleep:   time.Sleep,
	}, nil
}

// ReadRegisters reads count holding registers starting at start.
func (c *Client) ReadRegisters(addr byte, start, count uint16) ([]uint16, error) {
	if count == 0 || count > 125 {
		return nil, fmt.Errorf("%w: register count %d", ErrInvalidArgument, count)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	req := buildReadRequest(addr, start, count, c.tag)
	var regs []uint16
	err := c.transact(addr, req, func(rsp []byte) error {
		var err error
		regs, err = parseReadResponse(addr, count, rsp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// WriteRegister writes one register.
func (c *Client) WriteRegister(addr byte, reg, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := buildWriteRequest(addr, reg, value, c.tag)
	return c.transact(addr, req, func(rsp []byte) error {
		return checkWriteAck(addr, FnWriteRegister, rsp)
	})
}

// WriteRegisters writes a contiguous register block in one frame.
func (c *Client) WriteRegisters(addr byte, start uint16, values []uint16) error {
	// 121 registers is the largest block whose request frame still fits
	// in maxFrame (13 bytes of framing plus two per register).
	if len(values) == 0 || len(values) > 121 {
		return fmt.Errorf("%w: register count %d", ErrInvalidArgument, len(values))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	req := buildWriteMultipleRequest(addr, start, values, c.tag)
	return c.transact(addr, req, func(rsp []byte) error {
		return checkWriteAck(addr, FnWriteRegisters, rsp)
	})
}

// transact pushes one request through the wire with bounded retry and hands
// each CRC-valid response to decode. Failed attempts stay counted even when
// a later attempt succeeds. Decode failures (device exceptions, a frame from
// the wrong unit, a truncated payload) count as Errors and end the
// operation without another attempt. Caller holds mu.
func (c *Client) transact(addr byte, req []byte, decode func([]byte) error) error {
	attempts := c.retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.sleep(c.backoff << (attempt - 2))
		}

		c.stats.RequestsSent++
		if err := c.tr.Send(req); err != nil {
			c.stats.Errors++
			lastErr = err
			continue
		}

		rsp, err := c.tr.Receive()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				c.stats.Timeouts++
			} else {
				c.stats.Errors++
			}
			lastErr = err
			continue
		}

		if !VerifyCRC(rsp) {
			c.stats.CRCErrors++
			lastErr = ErrCRC
			continue
		}

		c.stats.ResponsesReceived++
		if err := decode(rsp); err != nil {
			c.stats.Errors++
			return err
		}
		return nil
	}

	log.Printf("[modbus] device 0x%02X unreachable after %d attempts: %v", addr, attempts, lastErr)
	return fmt.Errorf("modbus: device 0x%02X: %w", addr, lastErr)
}

// SetTimeout adjusts the response budget of the underlying transport.
func (c *Client) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: timeout %v", ErrInvalidArgument, d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tr.SetTimeout(d)
	return nil
}

// SetRetries sets the total number of attempts per operation, 0..10. A
// value of zero still performs a single attempt.
func (c *Client) SetRetries(n int) error {
	if n < 0 || n > MaxRetries {
		return fmt.Errorf("%w: retries %d", ErrInvalidArgument, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries = n
	return nil
}

// SetBackoff sets the pause before the first retry. Later retries double
// it each time.
func (c *Client) SetBackoff(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: backoff %v", ErrInvalidArgument, d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backoff = d
	return nil
}

// RecordTimeout lets a higher layer count a timeout that spans several
// round trips, like the LPR capture budget running out.
func (c *Client) RecordTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Timeouts++
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.Close()
}
