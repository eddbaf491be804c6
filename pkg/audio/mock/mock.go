// Package mock provides in-memory mock implementations of [audio.Transport]
// and [audio.Conn] for use in unit tests.
//
// All mocks are safe for concurrent use, record method calls, and expose
// exported fields for configuring return values.
package mock

import (
	"context"
	"sync"

	"github.com/voxhound/voxhound/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Transport = (*Transport)(nil)
	_ audio.Conn      = (*Conn)(nil)
)

// JoinCall records the arguments of a single [Transport.Join] invocation.
type JoinCall struct {
	GuildID   string
	ChannelID string
}

// Transport is a mock implementation of [audio.Transport].
type Transport struct {
	mu sync.Mutex

	// JoinError is returned by [Transport.Join]. When set, no Conn is created.
	JoinError error

	// LeaveError is returned by [Transport.Leave].
	LeaveError error

	// JoinCalls records all Join invocations.
	JoinCalls []JoinCall

	// LeaveCalls records the guild IDs passed to Leave.
	LeaveCalls []string

	// Conns records every connection created, in creation order.
	Conns []*Conn

	// current tracks the live channel per guild, mirrored by Current.
	current map[string]string
}

// Join implements [audio.Transport].
func (t *Transport) Join(_ context.Context, guildID, channelID string) (audio.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.JoinCalls = append(t.JoinCalls, JoinCall{GuildID: guildID, ChannelID: channelID})
	if t.JoinError != nil {
		return nil, t.JoinError
	}
	if t.current == nil {
		t.current = make(map[string]string)
	}
	t.current[guildID] = channelID
	conn := &Conn{Channel: channelID}
	t.Conns = append(t.Conns, conn)
	return conn, nil
}

// Leave implements [audio.Transport].
func (t *Transport) Leave(_ context.Context, guildID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LeaveCalls = append(t.LeaveCalls, guildID)
	delete(t.current, guildID)
	return t.LeaveError
}

// Current implements [audio.Transport].
func (t *Transport) Current(guildID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.current[guildID]
	return ch, ok
}

// Conn is a mock implementation of [audio.Conn].
type Conn struct {
	mu sync.Mutex

	// Channel is returned by [Conn.ChannelID].
	Channel string

	// CloseError is returned by the first [Conn.Close] call.
	CloseError error

	// Handler is the last handler registered via SetHandler.
	Handler audio.Handler

	// Played records every clip submitted via Play.
	Played [][]int16

	// Closed reports whether Close was called.
	Closed bool
}

// SetHandler implements [audio.Conn].
func (c *Conn) SetHandler(h audio.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Handler = h
}

// Play implements [audio.Conn]. Clips played after Close are dropped,
// matching the real transport's teardown semantics.
func (c *Conn) Play(pcm []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Closed {
		return
	}
	c.Played = append(c.Played, append([]int16(nil), pcm...))
}

// ChannelID implements [audio.Conn].
func (c *Conn) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Channel
}

// Close implements [audio.Conn]. Subsequent calls return nil.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Closed {
		return nil
	}
	c.Closed = true
	return c.CloseError
}

// PlayedSnapshot returns a copy of the clips played so far.
func (c *Conn) PlayedSnapshot() [][]int16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]int16(nil), c.Played...)
}

// CurrentHandler returns the registered handler for driving events in tests.
func (c *Conn) CurrentHandler() audio.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Handler
}
