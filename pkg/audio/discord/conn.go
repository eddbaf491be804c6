package discord

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/voxhound/voxhound/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Conn = (*Conn)(nil)

const (
	eventBuffer = 64
	playBuffer  = 8

	// clipFrameSamples is the interleaved sample count of one Opus frame.
	clipFrameSamples = audio.FrameSize * audio.Channels
)

// Conn wraps a discordgo.VoiceConnection and adapts it to [audio.Conn].
// It demuxes incoming Opus packets by SSRC, decodes them to PCM, and batches
// the decoded audio into 20 ms ticks. Outgoing clips are encoded to Opus and
// paced by discordgo's sender.
//
// All handler callbacks are invoked from the single dispatch goroutine, so
// speaking events, ticks, and driver events for one connection never race.
//
// Conn is safe for concurrent use.
type Conn struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string
	botID   string

	handlerMu sync.Mutex
	handler   audio.Handler

	// pending accumulates decoded PCM per SSRC between ticks.
	pendingMu sync.Mutex
	pending   map[uint32][]int16

	// events carries speaking and driver notifications into the dispatch
	// goroutine so they interleave with ticks in arrival order.
	events chan func(h audio.Handler)

	play chan []int16

	chanMu    sync.Mutex
	channelID string

	done      chan struct{}
	closeOnce sync.Once

	removeHandlers []func()

	// disconnectVC is called during Close to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConn initialises a Conn for an already-joined voice channel and starts
// its receive, dispatch, and send goroutines.
func newConn(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID string) *Conn {
	c := &Conn{
		vc:           vc,
		session:      session,
		guildID:      guildID,
		pending:      make(map[uint32][]int16),
		events:       make(chan func(h audio.Handler), eventBuffer),
		play:         make(chan []int16, playBuffer),
		channelID:    vc.ChannelID,
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}
	if session.State != nil && session.State.User != nil {
		c.botID = session.State.User.ID
	}

	vc.AddHandler(c.handleSpeakingUpdate)
	c.removeHandlers = append(c.removeHandlers,
		session.AddHandler(c.handleVoiceStateUpdate),
		session.AddHandler(c.handleVoiceServerUpdate),
	)

	go c.recvLoop()
	go c.dispatchLoop()
	go c.sendLoop()

	return c
}

// SetHandler implements [audio.Conn].
func (c *Conn) SetHandler(h audio.Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handler = h
}

// ChannelID implements [audio.Conn]. It tracks bot channel moves.
func (c *Conn) ChannelID() string {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	return c.channelID
}

// Play implements [audio.Conn]. Clips submitted after Close are dropped.
func (c *Conn) Play(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	select {
	case c.play <- pcm:
	case <-c.done:
	default:
		slog.Warn("discord: playback queue full, dropping clip", "guildID", c.guildID)
	}
}

// Close implements [audio.Conn]. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		for _, remove := range c.removeHandlers {
			remove()
		}
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

func (c *Conn) currentHandler() audio.Handler {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	return c.handler
}

// post queues a handler notification for the dispatch goroutine. Events are
// dropped rather than blocking discordgo's event goroutines.
func (c *Conn) post(fn func(h audio.Handler)) {
	select {
	case c.events <- fn:
	case <-c.done:
	default:
		slog.Warn("discord: event queue full, dropping voice event", "guildID", c.guildID)
	}
}

// recvLoop reads Opus packets from the voice connection, decodes them with a
// per-SSRC decoder, and accumulates the PCM for the next tick.
func (c *Conn) recvLoop() {
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			c.pendingMu.Lock()
			c.pending[pkt.SSRC] = append(c.pending[pkt.SSRC], pcm...)
			c.pendingMu.Unlock()
		}
	}
}

// dispatchLoop is the single goroutine that invokes the handler. Every 20 ms
// it flushes the accumulated audio as one tick; SSRCs that spoke last tick
// but not this one are reported silent exactly once. Queued events are
// drained before each tick so a speaking start is always observed before the
// tick carrying that SSRC's first audio.
func (c *Conn) dispatchLoop() {
	ticker := time.NewTicker(audio.FrameSizeMs * time.Millisecond)
	defer ticker.Stop()

	prev := make(map[uint32]bool)

	for {
		select {
		case <-c.done:
			return
		case fn := <-c.events:
			if h := c.currentHandler(); h != nil {
				fn(h)
			}
		case <-ticker.C:
			c.drainEvents()
			prev = c.dispatchTick(prev)
		}
	}
}

// drainEvents processes every queued notification without blocking.
func (c *Conn) drainEvents() {
	for {
		select {
		case fn := <-c.events:
			if h := c.currentHandler(); h != nil {
				fn(h)
			}
		default:
			return
		}
	}
}

// dispatchTick flushes the accumulated audio as one tick and returns the set
// of SSRCs that spoke, for silence derivation on the next tick.
func (c *Conn) dispatchTick(prev map[uint32]bool) map[uint32]bool {
	c.pendingMu.Lock()
	batch := c.pending
	c.pending = make(map[uint32][]int16)
	c.pendingMu.Unlock()

	var silent []uint32
	for ssrc := range prev {
		if _, ok := batch[ssrc]; !ok {
			silent = append(silent, ssrc)
		}
	}
	next := make(map[uint32]bool, len(batch))
	for ssrc := range batch {
		next[ssrc] = true
	}

	if len(batch) > 0 || len(silent) > 0 {
		if h := c.currentHandler(); h != nil {
			h.AudioTick(audio.Tick{Speaking: batch, Silent: silent})
		}
	}
	return next
}

// sendLoop encodes queued clips frame by frame and writes them to the voice
// connection. discordgo paces OpusSend at one frame per 20 ms. The final
// partial frame is padded with silence.
func (c *Conn) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: create opus encoder", "error", err)
		return
	}

	for {
		select {
		case <-c.done:
			return
		case clip := <-c.play:
			c.setSpeaking(true)
			for off := 0; off < len(clip); off += clipFrameSamples {
				frame := clip[off:min(off+clipFrameSamples, len(clip))]
				if len(frame) < clipFrameSamples {
					padded := make([]int16, clipFrameSamples)
					copy(padded, frame)
					frame = padded
				}
				opus, err := enc.encode(frame)
				if err != nil {
					slog.Warn("discord: opus encode error", "error", err)
					break
				}
				select {
				case c.vc.OpusSend <- opus:
				case <-c.done:
					c.setSpeaking(false)
					return
				}
			}
			c.setSpeaking(false)
		}
	}
}

// handleSpeakingUpdate surfaces the transport's SSRC-to-user binding. It is
// the only source of speaker identity for incoming audio.
func (c *Conn) handleSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs == nil || vs.UserID == "" {
		return
	}
	ssrc := uint32(vs.SSRC)
	userID := vs.UserID
	c.post(func(h audio.Handler) {
		h.SpeakingStart(ssrc, userID)
	})
}

// handleVoiceStateUpdate surfaces participant leaves and the bot's own
// channel moves. The bot being removed from voice entirely is left to the
// presence layer, which owns the teardown decision.
func (c *Conn) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}
	current := c.ChannelID()

	if vsu.UserID == c.botID {
		if vsu.ChannelID != "" && vsu.ChannelID != current {
			c.chanMu.Lock()
			c.channelID = vsu.ChannelID
			c.chanMu.Unlock()
			c.post(func(h audio.Handler) {
				h.DriverDisconnect("moved to another channel")
			})
		}
		return
	}

	if vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == current && vsu.ChannelID != current {
		userID := vsu.UserID
		c.post(func(h audio.Handler) {
			h.SpeakerDisconnect(userID)
		})
	}
}

// handleVoiceServerUpdate surfaces voice server endpoint changes mid-session.
// discordgo re-establishes the UDP connection itself; consumers only need to
// know that SSRC assignments may no longer be valid.
func (c *Conn) handleVoiceServerUpdate(_ *discordgo.Session, vsu *discordgo.VoiceServerUpdate) {
	if vsu == nil || vsu.GuildID != c.guildID {
		return
	}
	c.post(func(h audio.Handler) {
		h.DriverReconnect()
	})
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Conn) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
