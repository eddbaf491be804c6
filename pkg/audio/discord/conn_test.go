package discord

import (
	"fmt"
	"testing"

	"github.com/voxhound/voxhound/pkg/audio"
)

// orderHandler records the sequence of handler callbacks.
type orderHandler struct {
	calls []string
	ticks []audio.Tick
}

func (h *orderHandler) SpeakingStart(ssrc uint32, userID string) {
	h.calls = append(h.calls, fmt.Sprintf("start:%d:%s", ssrc, userID))
}

func (h *orderHandler) AudioTick(tick audio.Tick) {
	h.calls = append(h.calls, "tick")
	h.ticks = append(h.ticks, tick)
}

func (h *orderHandler) SpeakerDisconnect(userID string) {
	h.calls = append(h.calls, "disconnect:"+userID)
}

func (h *orderHandler) DriverDisconnect(string) { h.calls = append(h.calls, "driver_disconnect") }
func (h *orderHandler) DriverReconnect()        { h.calls = append(h.calls, "driver_reconnect") }

func newTestConn() *Conn {
	return &Conn{
		pending: make(map[uint32][]int16),
		events:  make(chan func(h audio.Handler), eventBuffer),
		done:    make(chan struct{}),
	}
}

func TestDispatchTick_EventBeforeFirstAudio(t *testing.T) {
	t.Parallel()

	c := newTestConn()
	h := &orderHandler{}
	c.SetHandler(h)

	// A speaking update and that speaker's first audio arrive within the
	// same tick window.
	c.post(func(h audio.Handler) { h.SpeakingStart(7, "u1") })
	c.pendingMu.Lock()
	c.pending[7] = []int16{1, 2, 3, 4}
	c.pendingMu.Unlock()

	c.drainEvents()
	c.dispatchTick(map[uint32]bool{})

	if len(h.calls) != 2 || h.calls[0] != "start:7:u1" || h.calls[1] != "tick" {
		t.Fatalf("call order = %v, want [start:7:u1 tick]", h.calls)
	}
	if got := h.ticks[0].Speaking[7]; len(got) != 4 {
		t.Fatalf("tick audio for ssrc 7 = %v, want 4 samples", got)
	}
}

func TestDispatchTick_SilenceDerivation(t *testing.T) {
	t.Parallel()

	c := newTestConn()
	h := &orderHandler{}
	c.SetHandler(h)

	c.pendingMu.Lock()
	c.pending[7] = []int16{1, 2}
	c.pendingMu.Unlock()
	prev := c.dispatchTick(map[uint32]bool{})

	// No audio this tick: ssrc 7 goes silent exactly once.
	prev = c.dispatchTick(prev)
	c.dispatchTick(prev)

	if len(h.ticks) != 2 {
		t.Fatalf("ticks dispatched = %d, want 2 (third window was all-quiet)", len(h.ticks))
	}
	if len(h.ticks[0].Silent) != 0 {
		t.Errorf("first tick silent = %v, want none", h.ticks[0].Silent)
	}
	if len(h.ticks[1].Silent) != 1 || h.ticks[1].Silent[0] != 7 {
		t.Errorf("second tick silent = %v, want [7]", h.ticks[1].Silent)
	}
}

func TestDrainEvents_EmptiesQueueInOrder(t *testing.T) {
	t.Parallel()

	c := newTestConn()
	h := &orderHandler{}
	c.SetHandler(h)

	c.post(func(h audio.Handler) { h.SpeakingStart(1, "u1") })
	c.post(func(h audio.Handler) { h.SpeakerDisconnect("u2") })
	c.post(func(h audio.Handler) { h.DriverReconnect() })

	c.drainEvents()

	want := []string{"start:1:u1", "disconnect:u2", "driver_reconnect"}
	if len(h.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", h.calls, want)
	}
	for i, w := range want {
		if h.calls[i] != w {
			t.Fatalf("calls[%d] = %q, want %q", i, h.calls[i], w)
		}
	}
}
