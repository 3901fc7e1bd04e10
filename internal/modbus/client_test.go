package modbus

import (
	"errors"
	"testing"
	"time"
)

// scriptTransport replays canned receive results and records every frame
// sent through it.
type scriptTransport struct {
	sent    [][]byte
	replies []func(req []byte) ([]byte, error)
	sendErr error
}

func (t *scriptTransport) Send(frame []byte) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), frame...))
	return nil
}

func (t *scriptTransport) Receive() ([]byte, error) {
	if len(t.replies) == 0 {
		return nil, ErrTimeout
	}
	f := t.replies[0]
	t.replies = t.replies[1:]
	return f(t.sent[len(t.sent)-1])
}

func (t *scriptTransport) SetTimeout(time.Duration) {}
func (t *scriptTransport) Close() error             { return nil }

// ackFor builds the matching reply for the last request sent.
func ackFor(req []byte) ([]byte, error) {
	r, err := ParseRequest(req)
	if err != nil {
		return nil, err
	}
	switch r.Function {
	case FnReadRegisters:
		return BuildReadResponse(r.Addr, make([]uint16, r.Count)), nil
	default:
		return BuildWriteAck(r), nil
	}
}

func newTestClient(t *testing.T, tr Transport) *Client {
	t.Helper()
	cl, err := NewClient(tr, []byte("1234"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cl.sleep = func(time.Duration) {}
	return cl
}

func TestClientReadRegisters(t *testing.T) {
	tr := &scriptTransport{replies: []func([]byte) ([]byte, error){
		func([]byte) ([]byte, error) {
			return BuildReadResponse(0x11, []uint16{0x0002, 0x0055}), nil
		},
	}}
	cl := newTestClient(t, tr)

	values, err := cl.ReadRegisters(0x11, 0, 2)
	if err != nil {
		t.Fatalf("ReadRegisters: %v", err)
	}
	if values[0] != 2 || values[1] != 0x55 {
		t.Errorf("values = %v", values)
	}

	st := cl.Stats()
	if st.RequestsSent != 1 || st.ResponsesReceived != 1 || st.Errors != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestClientRetriesThenSucceeds(t *testing.T) {
	tr := &scriptTransport{replies: []func([]byte) ([]byte, error){
		func([]byte) ([]byte, error) { return nil, ErrTimeout },
		func([]byte) ([]byte, error) { return nil, ErrTimeout },
		ackFor,
	}}
	cl := newTestClient(t, tr)

	var pauses []time.Duration
	cl.sleep = func(d time.Duration) { pauses = append(pauses, d) }

	if err := cl.WriteRegister(0x11, 1, 1); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}

	st := cl.Stats()
	if st.RequestsSent != 3 {
		t.Errorf("RequestsSent = %d, want 3", st.RequestsSent)
	}
	if st.Timeouts != 2 {
		t.Errorf("Timeouts = %d, want 2", st.Timeouts)
	}
	if st.ResponsesReceived != 1 {
		t.Errorf("ResponsesReceived = %d, want 1", st.ResponsesReceived)
	}

	// backoff doubles between attempts
	if len(pauses) != 2 || pauses[0] != defaultBackoff || pauses[1] != 2*defaultBackoff {
		t.Errorf("pauses = %v", pauses)
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	tr := &scriptTransport{} // every receive times out
	cl := newTestClient(t, tr)

	_, err := cl.ReadRegisters(0x11, 0, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	st := cl.Stats()
	if st.RequestsSent != DefaultRetries {
		t.Errorf("RequestsSent = %d, want %d", st.RequestsSent, DefaultRetries)
	}
	if st.Timeouts != DefaultRetries {
		t.Errorf("Timeouts = %d, want %d", st.Timeouts, DefaultRetries)
	}
}

func TestClientCountsCRCErrors(t *testing.T) {
	corrupt := func(req []byte) ([]byte, error) {
		rsp, err := ackFor(req)
		if err != nil {
			return nil, err
		}
		rsp[len(rsp)-1] ^= 0xFF
		return rsp, nil
	}
	tr := &scriptTransport{replies: []func([]byte) ([]byte, error){corrupt, ackFor}}
	cl := newTestClient(t, tr)

	if err := cl.WriteRegister(0x11, 1, 1); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if st := cl.Stats(); st.CRCErrors != 1 || st.ResponsesReceived != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestClientSendErrorsCounted(t *testing.T) {
	tr := &scriptTransport{sendErr: errors.New("port gone")}
	cl := newTestClient(t, tr)

	if err := cl.WriteRegister(0x11, 1, 1); err == nil {
		t.Fatal("expected error")
	}
	if st := cl.Stats(); st.Errors != DefaultRetries {
		t.Errorf("Errors = %d, want %d", st.Errors, DefaultRetries)
	}
}

func TestDeviceExceptionCountedNotRetried(t *testing.T) {
	tr := &scriptTransport{replies: []func(req []byte) ([]byte, error){
		func(req []byte) ([]byte, error) {
			return BuildException(0x11, FnReadRegisters, 4), nil
		},
	}}
	cl := newTestClient(t, tr)

	_, err := cl.ReadRegisters(0x11, 6, 1)
	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DeviceError", err)
	}
	st := cl.Stats()
	if st.RequestsSent != 1 {
		t.Errorf("RequestsSent = %d, want 1", st.RequestsSent)
	}
	if st.ResponsesReceived != 1 {
		t.Errorf("ResponsesReceived = %d, want 1", st.ResponsesReceived)
	}
	if st.Errors != 1 {
		t.Errorf("Errors = %d, want 1", st.Errors)
	}
}

func TestWrongUnitReplyCounted(t *testing.T) {
	tr := &scriptTransport{replies: []func(req []byte) ([]byte, error){
		func(req []byte) ([]byte, error) {
			return BuildReadResponse(0x12, []uint16{7}), nil
		},
	}}
	cl := newTestClient(t, tr)

	if _, err := cl.ReadRegisters(0x11, 0, 1); err == nil {
		t.Fatal("expected error for reply from the wrong unit")
	}
	if st := cl.Stats(); st.Errors != 1 || st.Timeouts != 0 || st.CRCErrors != 0 {
		t.Errorf("stats = %+v, want exactly one Error", st)
	}
}

func TestLargestWriteBlockFitsFrame(t *testing.T) {
	cl := newTestClient(t, &scriptTransport{})

	req := buildWriteMultipleRequest(0x20, 0, make([]uint16, 121), cl.tag)
	if len(req) > maxFrame {
		t.Errorf("121-register request is %d bytes, exceeds frame limit %d", len(req), maxFrame)
	}
}

func TestClientArgumentValidation(t *testing.T) {
	cl := newTestClient(t, &scriptTransport{})

	if _, err := cl.ReadRegisters(0x11, 0, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("count 0: err = %v", err)
	}
	if _, err := cl.ReadRegisters(0x11, 0, 126); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("count 126: err = %v", err)
	}
	if err := cl.WriteRegisters(0x11, 0, make([]uint16, 122)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("122 values: err = %v", err)
	}

	if err := cl.SetRetries(MaxRetries + 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetRetries: err = %v", err)
	}
	if err := cl.SetRetries(0); err != nil {
		t.Errorf("SetRetries(0): %v", err)
	}
	if err := cl.SetBackoff(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetBackoff(0): err = %v", err)
	}
}

func TestClientStatsResetAndRecordTimeout(t *testing.T) {
	cl := newTestClient(t, &scriptTransport{})

	cl.RecordTimeout()
	if st := cl.Stats(); st.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", st.Timeouts)
	}
	cl.ResetStats()
	if st := cl.Stats(); st != (Stats{}) {
		t.Errorf("stats after reset = %+v", st)
	}
}
