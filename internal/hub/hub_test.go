package hub

import (
	"context"
	"testing"
	"time"
)

func TestEnqueueAndWait(t *testing.T) {
	h := New()
	h.Enqueue("ground", Command{ID: "1", Type: "gate_command"})
	h.Enqueue("ground", Command{ID: "2", Type: "display"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cmds := h.Wait(ctx, "ground")
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	if cmds[0].ID != "1" || cmds[1].ID != "2" {
		t.Errorf("order = [%s %s]", cmds[0].ID, cmds[1].ID)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	h := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	cmds := h.Wait(ctx, "ground")
	if cmds != nil {
		t.Errorf("got %v from empty queue", cmds)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not honor cancellation")
	}
}

func TestQueueOverflowDrops(t *testing.T) {
	h := New()
	for i := 0; i < 100; i++ {
		h.Enqueue("ground", Command{ID: "x", Type: "gate_command"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	total := 0
	for {
		waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Millisecond)
		cmds := h.Wait(waitCtx, "ground")
		waitCancel()
		if len(cmds) == 0 {
			break
		}
		total += len(cmds)
	}
	if total != 64 {
		t.Errorf("drained %d commands, want the queue capacity of 64", total)
	}
}

func TestLastSeen(t *testing.T) {
	h := New()
	if !h.LastSeen("ghost").IsZero() {
		t.Error("unknown node must report zero time")
	}

	h.Touch("ground")
	first := h.LastSeen("ground")
	if first.IsZero() {
		t.Fatal("touch did not register")
	}

	// reading must not refresh the timestamp
	time.Sleep(5 * time.Millisecond)
	if got := h.LastSeen("ground"); !got.Equal(first) {
		t.Errorf("LastSeen moved from %v to %v without traffic", first, got)
	}
}
