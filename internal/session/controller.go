// Package session owns the per-guild voice session lifecycle: the state
// machine deciding when to connect, reset, and tear down, and the wiring
// between the voice transport's event stream and the soundboard registry.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxhound/voxhound/internal/observe"
	"github.com/voxhound/voxhound/internal/soundboard"
	"github.com/voxhound/voxhound/internal/store"
	"github.com/voxhound/voxhound/pkg/audio"
	"github.com/voxhound/voxhound/pkg/recognizer"
)

// Sentinel errors reported back to the command surface.
var (
	ErrAlreadyConnected = errors.New("session: already connected to that channel")
	ErrJoinInProgress   = errors.New("session: join already in progress")
	ErrNotConnected     = errors.New("session: not connected")
)

// State is the lifecycle state of one guild's session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateResetting
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateResetting:
		return "RESETTING"
	default:
		return "UNKNOWN"
	}
}

// Occupancy reports voice channel membership. Implemented by the bot layer
// over the gateway state cache; must not take transport locks.
type Occupancy interface {
	// NonBotMembers counts users other than the bot in a voice channel.
	NonBotMembers(guildID, channelID string) (int, error)
}

// VoiceState is one presence event forwarded by the bot layer.
type VoiceState struct {
	GuildID string
	UserID  string

	// ChannelID is the user's new voice channel, empty when they left voice.
	ChannelID string

	// PrevChannelID is the channel the user was on before, if known.
	PrevChannelID string

	// IsSelf marks voice state changes of the bot's own user.
	IsSelf bool
}

// Controller owns every guild's voice session. Sessions are fully
// independent; the controller mutex guards only the session map.
//
// All exported methods are safe for concurrent use.
type Controller struct {
	transport audio.Transport
	store     store.Store
	engine    recognizer.Engine
	occupancy Occupancy
	clipDir   string
	metrics   *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// Config holds all dependencies for a [Controller].
type Config struct {
	Transport audio.Transport
	Store     store.Store
	Engine    recognizer.Engine
	Occupancy Occupancy
	ClipDir   string

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// NewController creates a Controller with the given dependencies.
func NewController(cfg Config) *Controller {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Controller{
		transport: cfg.Transport,
		store:     cfg.Store,
		engine:    cfg.Engine,
		occupancy: cfg.Occupancy,
		clipDir:   cfg.ClipDir,
		metrics:   m,
		sessions:  make(map[string]*Session),
	}
}

// Session is one guild's live voice session. It implements [audio.Handler]
// to consume the transport's event stream.
type Session struct {
	guildID string

	// conn, registry, and player are nil while the voice handshake runs;
	// they are written exactly once, under the controller mutex, and the
	// controller reads them under that same mutex.
	conn     audio.Conn
	registry *soundboard.Registry
	player   *soundboard.Player
	metrics  *observe.Metrics

	stateMu sync.Mutex
	state   State
}

// Compile-time interface assertion.
var _ audio.Handler = (*Session)(nil)

// Join connects a guild to a voice channel, builds the trigger catalog from
// the store rows current at this moment, and installs a fresh speaker
// registry. Joining the channel the session is already on returns
// [ErrAlreadyConnected] without touching the transport; joining while a
// handshake for the guild is still in flight returns [ErrJoinInProgress];
// joining a different channel moves the session by tearing the old one down
// first. Any failure leaves no session behind.
func (c *Controller) Join(ctx context.Context, guildID, channelID string) error {
	c.mu.Lock()
	if existing, ok := c.sessions[guildID]; ok {
		if existing.conn == nil {
			c.mu.Unlock()
			return ErrJoinInProgress
		}
		if existing.conn.ChannelID() == channelID {
			c.mu.Unlock()
			return ErrAlreadyConnected
		}
		c.mu.Unlock()
		if err := c.Leave(ctx, guildID); err != nil && !errors.Is(err, ErrNotConnected) {
			slog.Warn("session: teardown before channel move failed",
				"guildID", guildID, "error", err)
		}
		c.mu.Lock()
	}
	if _, ok := c.sessions[guildID]; ok {
		// Lost a race against a concurrent join.
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	sess := &Session{guildID: guildID, metrics: c.metrics, state: StateConnecting}
	c.sessions[guildID] = sess
	c.mu.Unlock()

	abort := func() {
		c.mu.Lock()
		delete(c.sessions, guildID)
		c.mu.Unlock()
	}

	sounds, err := c.store.ListSounds(ctx, guildID)
	if err != nil {
		abort()
		return fmt.Errorf("session: load sound catalog: %w", err)
	}
	catalog := soundboard.LoadCatalog(sounds, c.clipDir)

	conn, err := c.transport.Join(ctx, guildID, channelID)
	if err != nil {
		abort()
		return fmt.Errorf("session: join voice channel: %w", err)
	}

	// A concurrent leave may have removed the connecting session; do not
	// leave an untracked transport connection behind.
	c.mu.Lock()
	if c.sessions[guildID] != sess {
		c.mu.Unlock()
		if err := c.transport.Leave(ctx, guildID); err != nil {
			slog.Warn("session: teardown of orphaned join failed",
				"guildID", guildID, "error", err)
		}
		return ErrNotConnected
	}
	sess.conn = conn
	sess.registry = soundboard.NewRegistry(c.engine, catalog)
	sess.player = soundboard.NewPlayer(catalog, conn)
	c.mu.Unlock()

	sess.setState(StateConnected)
	conn.SetHandler(sess)

	c.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session connected",
		"guildID", guildID,
		"channelID", channelID,
		"triggers", catalog.Len(),
	)
	return nil
}

// Leave disconnects a guild's session. Transport teardown failures are
// logged; the session is removed locally regardless so a later join can
// recover.
func (c *Controller) Leave(ctx context.Context, guildID string) error {
	c.mu.Lock()
	sess, ok := c.sessions[guildID]
	if !ok {
		c.mu.Unlock()
		return ErrNotConnected
	}
	delete(c.sessions, guildID)
	c.mu.Unlock()

	c.teardown(ctx, sess, "leave request")
	return nil
}

// Current returns the channel a guild's session is connected to.
func (c *Controller) Current(guildID string) (string, bool) {
	conn := c.connOf(guildID)
	if conn == nil {
		return "", false
	}
	return conn.ChannelID(), true
}

// connOf snapshots a session's connection under the controller mutex; nil
// means the guild has no session or its handshake is still in flight.
func (c *Controller) connOf(guildID string) audio.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[guildID]
	if !ok {
		return nil
	}
	return sess.conn
}

// StateOf returns the lifecycle state of a guild's session.
func (c *Controller) StateOf(guildID string) State {
	c.mu.Lock()
	sess, ok := c.sessions[guildID]
	c.mu.Unlock()
	if !ok {
		return StateDisconnected
	}
	return sess.currentState()
}

// HandleVoiceState consumes one presence event. The bot's own membership
// dropping to none forces a teardown. Any other change touching the
// session's channel re-evaluates whether the channel still has non-bot
// members; the emptiness decision is computed from the gateway state cache
// alone, with no session or connection lock held, and the teardown runs
// afterwards (two-phase, avoids lock-ordering against the teardown path).
func (c *Controller) HandleVoiceState(ev VoiceState) {
	conn := c.connOf(ev.GuildID)
	if conn == nil {
		return
	}

	if ev.IsSelf && ev.ChannelID == "" {
		slog.Info("session: externally disconnected from voice", "guildID", ev.GuildID)
		c.forceTeardown(ev.GuildID, "forced disconnect")
		return
	}

	current := conn.ChannelID()
	if ev.ChannelID != current && ev.PrevChannelID != current {
		return
	}

	count, err := c.occupancy.NonBotMembers(ev.GuildID, current)
	if err != nil {
		slog.Warn("session: occupancy check failed",
			"guildID", ev.GuildID, "channelID", current, "error", err)
		return
	}
	if count == 0 {
		slog.Info("session: channel empty, leaving", "guildID", ev.GuildID, "channelID", current)
		c.forceTeardown(ev.GuildID, "empty channel")
	}
}

// Shutdown tears down every session, used during process exit.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	sessions := make(map[string]*Session, len(c.sessions))
	for g, s := range c.sessions {
		sessions[g] = s
	}
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()

	for _, sess := range sessions {
		c.teardown(ctx, sess, "shutdown")
	}
}

// forceTeardown removes and tears down a session outside any other lock.
func (c *Controller) forceTeardown(guildID, reason string) {
	c.mu.Lock()
	sess, ok := c.sessions[guildID]
	if ok {
		delete(c.sessions, guildID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.teardown(context.Background(), sess, reason)
}

// teardown resets the registry, releases recognizer handles, and drops the
// transport connection. The session must already be out of the map.
func (c *Controller) teardown(ctx context.Context, sess *Session, reason string) {
	bound := 0
	if sess.registry != nil {
		bound = sess.registry.Bound()
		sess.registry.ResetAll()
	}
	sess.setState(StateDisconnected)

	if sess.conn != nil {
		if err := c.transport.Leave(ctx, sess.guildID); err != nil {
			slog.Warn("session: transport leave failed",
				"guildID", sess.guildID, "reason", reason, "error", err)
		}
		c.metrics.ActiveSessions.Add(ctx, -1)
	}
	if bound > 0 {
		c.metrics.BoundSpeakers.Add(ctx, int64(-bound))
	}

	slog.Info("session disconnected", "guildID", sess.guildID, "reason", reason)
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

func (s *Session) currentState() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// SpeakingStart implements [audio.Handler]. Binds the SSRC to the user,
// creating recognizer slots; rebinding churns through the registry's evict
// path, so the bound-speaker delta can be zero.
func (s *Session) SpeakingStart(ssrc uint32, userID string) {
	before := s.registry.Bound()
	s.registry.AddSpeaker(ssrc, userID)
	if delta := s.registry.Bound() - before; delta != 0 {
		s.metrics.BoundSpeakers.Add(context.Background(), int64(delta))
	}
}

// AudioTick implements [audio.Handler]. Speaking SSRCs are fed; silent ones
// are finalized and any matches dispatched to playback asynchronously so the
// tick sequence never waits on the transport.
func (s *Session) AudioTick(tick audio.Tick) {
	for ssrc, pcm := range tick.Speaking {
		s.registry.Feed(ssrc, pcm)
	}
	for _, ssrc := range tick.Silent {
		start := time.Now()
		matches := s.registry.Finalize(ssrc)
		s.metrics.RecordFinalize(context.Background(), time.Since(start))
		if len(matches) > 0 {
			go s.dispatch(matches)
		}
	}
}

// dispatch plays every match, fire and forget.
func (s *Session) dispatch(matches []soundboard.Match) {
	ctx := context.Background()
	for _, m := range matches {
		slog.Debug("session: trigger recognized",
			"guildID", s.guildID, "text", m.Text, "language", m.Language)
		s.metrics.RecordTrigger(ctx, m.Language.String())
		if s.player.Play(m.Text, m.Language) {
			s.metrics.Playbacks.Add(ctx, 1)
		}
	}
}

// SpeakerDisconnect implements [audio.Handler]. Unknown users are a no-op;
// disconnects may race binding creation.
func (s *Session) SpeakerDisconnect(userID string) {
	before := s.registry.Bound()
	s.registry.RemoveSpeaker(userID)
	if delta := s.registry.Bound() - before; delta != 0 {
		s.metrics.BoundSpeakers.Add(context.Background(), int64(delta))
	}
}

// DriverDisconnect implements [audio.Handler]. Channel membership changed
// under the connection; stale SSRC bindings must not survive, so the whole
// registry resets while the session stays connected.
func (s *Session) DriverDisconnect(reason string) {
	slog.Info("session: driver disconnect, resetting bindings",
		"guildID", s.guildID, "reason", reason)
	s.reset("driver_disconnect")
}

// DriverReconnect implements [audio.Handler]. Cause not fully characterized
// upstream; treated as a full reset, same as a disconnect.
func (s *Session) DriverReconnect() {
	slog.Warn("session: unsolicited driver reconnect, resetting bindings",
		"guildID", s.guildID)
	s.reset("driver_reconnect")
}

func (s *Session) reset(cause string) {
	bound := s.registry.Bound()
	s.setState(StateResetting)
	s.registry.ResetAll()
	s.setState(StateConnected)

	ctx := context.Background()
	s.metrics.RecordReset(ctx, cause)
	if bound > 0 {
		s.metrics.BoundSpeakers.Add(ctx, int64(-bound))
	}
}
