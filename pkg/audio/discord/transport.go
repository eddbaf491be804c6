// Package discord provides an [audio.Transport] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// Discord's Opus-based voice transport with the PCM tick stream the
// soundboard core consumes.
//
// The transport requires an active *discordgo.Session (owned by the bot
// layer). Each call to [Transport.Join] joins the specified voice channel
// and returns a [Conn] that demuxes per-speaker audio input and plays clips
// back into the channel.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/voxhound/voxhound/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Transport = (*Transport)(nil)

// Transport implements [audio.Transport] over a shared discordgo session.
// It tracks at most one connection per guild. Safe for concurrent use.
type Transport struct {
	session *discordgo.Session

	mu    sync.Mutex
	conns map[string]*Conn
}

// New creates a Transport over an already-opened session.
func New(session *discordgo.Session) *Transport {
	return &Transport{
		session: session,
		conns:   make(map[string]*Conn),
	}
}

// Join implements [audio.Transport]. A guild with a live connection must
// leave before joining again; moving channels goes through Leave then Join.
func (t *Transport) Join(ctx context.Context, guildID, channelID string) (audio.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	t.mu.Lock()
	if _, exists := t.conns[guildID]; exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("discord: guild %q already has a voice connection", guildID)
	}
	t.mu.Unlock()

	// mute=false (we send clips), deaf=false (we receive audio).
	vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	conn := newConn(vc, t.session, guildID)

	t.mu.Lock()
	t.conns[guildID] = conn
	t.mu.Unlock()

	return conn, nil
}

// Leave implements [audio.Transport].
func (t *Transport) Leave(_ context.Context, guildID string) error {
	t.mu.Lock()
	conn, ok := t.conns[guildID]
	delete(t.conns, guildID)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("discord: guild %q has no voice connection", guildID)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("discord: leave guild %q: %w", guildID, err)
	}
	return nil
}

// Current implements [audio.Transport].
func (t *Transport) Current(guildID string) (string, bool) {
	t.mu.Lock()
	conn, ok := t.conns[guildID]
	t.mu.Unlock()

	if !ok {
		return "", false
	}
	return conn.ChannelID(), true
}
