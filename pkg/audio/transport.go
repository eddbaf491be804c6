package audio

import "context"

// Tick is one 20 ms batch of decoded audio covering every stream that was
// speaking during the period.
type Tick struct {
	// Speaking maps each SSRC that produced audio this period to its decoded
	// interleaved stereo PCM.
	Speaking map[uint32][]int16

	// Silent lists SSRCs that produced audio last period but none this one.
	// A silent SSRC marks speech-end and should be finalized.
	Silent []uint32
}

// Handler receives the event stream of one voice connection. All callbacks
// are invoked from the connection's single dispatch goroutine: no two
// callbacks for the same connection run concurrently, and ticks for one
// connection arrive in order. Handlers must not block.
type Handler interface {
	// SpeakingStart reports that the transport bound an SSRC to a user.
	// Guaranteed to precede any Tick audio for that SSRC.
	SpeakingStart(ssrc uint32, userID string)

	// AudioTick delivers one period's audio batch.
	AudioTick(tick Tick)

	// SpeakerDisconnect reports that a participant left the channel.
	SpeakerDisconnect(userID string)

	// DriverDisconnect reports a transport-level discontinuity such as the
	// bot being moved to another channel. The connection itself stays alive.
	DriverDisconnect(reason string)

	// DriverReconnect reports an unsolicited transport reconnect.
	DriverReconnect()
}

// Conn is an active voice connection.
//
// Implementations must be safe for concurrent use.
type Conn interface {
	// SetHandler registers the event handler. Must be called before audio
	// flows; subsequent calls replace the previous handler.
	SetHandler(h Handler)

	// Play queues interleaved 48 kHz stereo PCM for playback. Fire and
	// forget: calls after Close are silent no-ops.
	Play(pcm []int16)

	// ChannelID returns the channel the connection is currently on.
	ChannelID() string

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Transport joins and leaves voice channels for guilds.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	// Join connects to a voice channel and returns the live connection.
	// Joining a guild that already has a connection moves it, reusing the
	// returned Conn rules of the implementation. The ctx governs connection
	// setup only.
	Join(ctx context.Context, guildID, channelID string) (Conn, error)

	// Leave drops the guild's connection. Unknown guilds are an error.
	Leave(ctx context.Context, guildID string) error

	// Current returns the channel the guild's connection is on, if any.
	Current(guildID string) (string, bool)
}
