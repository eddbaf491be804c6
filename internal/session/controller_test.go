package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/voxhound/voxhound/internal/observe"
	"github.com/voxhound/voxhound/internal/store"
	"github.com/voxhound/voxhound/pkg/audio"
	audiomock "github.com/voxhound/voxhound/pkg/audio/mock"
	"github.com/voxhound/voxhound/pkg/recognizer"
	recmock "github.com/voxhound/voxhound/pkg/recognizer/mock"
)

type occupancyStub struct {
	count int
	err   error
}

func (o *occupancyStub) NonBotMembers(_, _ string) (int, error) {
	return o.count, o.err
}

type fixture struct {
	controller *Controller
	transport  *audiomock.Transport
	engine     *recmock.Engine
	store      *store.MemStore
	occupancy  *occupancyStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		transport: &audiomock.Transport{},
		engine:    &recmock.Engine{},
		store:     store.NewMemStore(),
		occupancy: &occupancyStub{count: 1},
	}
	f.controller = NewController(Config{
		Transport: f.transport,
		Store:     f.store,
		Engine:    f.engine,
		Occupancy: f.occupancy,
		ClipDir:   t.TempDir(),
		Metrics:   metrics,
	})
	return f
}

// newFixtureWithSound seeds one dutch "verstappen" sound with a real clip file.
func newFixtureWithSound(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)

	clip := []int16{100, 100, 200, 200}
	if err := os.WriteFile(filepath.Join(f.controller.clipDir, "v.wav"),
		audio.EncodeWAV(clip, audio.SampleRate, audio.Channels), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.store.AddSound(context.Background(), store.Sound{
		GuildID:  "g1",
		Prompt:   "verstappen",
		Language: recognizer.Dutch,
		FileName: "v.wav",
	}); err != nil {
		t.Fatal(err)
	}
	return f
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestJoinConnectsAndRejectsSameChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := f.controller.StateOf("g1"); got != StateConnected {
		t.Fatalf("StateOf = %v, want CONNECTED", got)
	}
	if ch, ok := f.controller.Current("g1"); !ok || ch != "ch1" {
		t.Fatalf("Current = (%q, %v), want (ch1, true)", ch, ok)
	}

	err := f.controller.Join(ctx, "g1", "ch1")
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Join = %v, want ErrAlreadyConnected", err)
	}
	// No second transport call was made.
	if len(f.transport.JoinCalls) != 1 {
		t.Fatalf("transport joins = %d, want 1", len(f.transport.JoinCalls))
	}
}

func TestJoinDifferentChannelMovesSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join ch1: %v", err)
	}
	if err := f.controller.Join(ctx, "g1", "ch2"); err != nil {
		t.Fatalf("Join ch2: %v", err)
	}
	if ch, _ := f.controller.Current("g1"); ch != "ch2" {
		t.Fatalf("Current = %q, want ch2", ch)
	}
	if len(f.transport.LeaveCalls) != 1 || len(f.transport.JoinCalls) != 2 {
		t.Fatalf("transport calls = %d joins %d leaves, want 2/1",
			len(f.transport.JoinCalls), len(f.transport.LeaveCalls))
	}
}

func TestJoinFailureLeavesNoSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transport.JoinError = errors.New("voice gateway unavailable")

	if err := f.controller.Join(context.Background(), "g1", "ch1"); err == nil {
		t.Fatal("Join succeeded despite transport failure")
	}
	if got := f.controller.StateOf("g1"); got != StateDisconnected {
		t.Fatalf("StateOf = %v, want DISCONNECTED", got)
	}
	if _, ok := f.controller.Current("g1"); ok {
		t.Fatal("Current reports a channel after failed join")
	}
}

func TestLeave(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Leave(ctx, "g1"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Leave without session = %v, want ErrNotConnected", err)
	}

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := f.controller.Leave(ctx, "g1"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if got := f.controller.StateOf("g1"); got != StateDisconnected {
		t.Fatalf("StateOf after leave = %v, want DISCONNECTED", got)
	}
}

func TestLeaveTransportErrorStillRemovesSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	f.transport.LeaveError = errors.New("connection already gone")

	if err := f.controller.Leave(ctx, "g1"); err != nil {
		t.Fatalf("Leave = %v, want nil despite transport error", err)
	}
	if got := f.controller.StateOf("g1"); got != StateDisconnected {
		t.Fatalf("StateOf = %v, want DISCONNECTED", got)
	}
	// A later join recovers.
	f.transport.LeaveError = nil
	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("rejoin after failed teardown: %v", err)
	}
}

func TestSpokenTriggerPlaysClip(t *testing.T) {
	t.Parallel()
	f := newFixtureWithSound(t)
	f.engine.Results = map[recognizer.Language]recognizer.Result{
		recognizer.Dutch: {
			Text:  "verstappen",
			Words: []recognizer.WordResult{{Word: "verstappen", Confidence: 1.0}},
		},
	}
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn := f.transport.Conns[0]
	h := conn.CurrentHandler()
	if h == nil {
		t.Fatal("no handler registered on connection")
	}

	h.SpeakingStart(5, "user-a")
	h.AudioTick(audio.Tick{Speaking: map[uint32][]int16{5: {10, 20, 30, 40}}})
	h.AudioTick(audio.Tick{Silent: []uint32{5}})

	// Playback dispatch is asynchronous relative to the tick sequence.
	waitFor(t, func() bool {
		return len(conn.PlayedSnapshot()) == 1
	})
	clips := conn.PlayedSnapshot()
	if len(clips[0]) != 4 {
		t.Fatalf("played clip length = %d, want 4", len(clips[0]))
	}
}

func TestDriverDisconnectResetsBindings(t *testing.T) {
	t.Parallel()
	f := newFixtureWithSound(t)
	f.engine.Results = map[recognizer.Language]recognizer.Result{
		recognizer.Dutch: {
			Text:  "verstappen",
			Words: []recognizer.WordResult{{Word: "verstappen", Confidence: 1.0}},
		},
	}
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn := f.transport.Conns[0]
	h := conn.CurrentHandler()

	h.SpeakingStart(5, "user-a")
	h.SpeakingStart(6, "user-b")
	h.AudioTick(audio.Tick{Speaking: map[uint32][]int16{5: {1, 2}, 6: {3, 4}}})

	h.DriverDisconnect("moved to another channel")

	// Session survives the reset.
	if got := f.controller.StateOf("g1"); got != StateConnected {
		t.Fatalf("StateOf after driver disconnect = %v, want CONNECTED", got)
	}
	// Stale finalize for prior SSRCs yields no playback.
	h.AudioTick(audio.Tick{Silent: []uint32{5, 6}})
	time.Sleep(50 * time.Millisecond)
	if clips := conn.PlayedSnapshot(); len(clips) != 0 {
		t.Fatalf("played %d clips after reset, want 0", len(clips))
	}
}

func TestDriverReconnectResetsBindings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h := f.transport.Conns[0].CurrentHandler()
	h.SpeakingStart(5, "user-a")
	h.DriverReconnect()

	if got := f.controller.StateOf("g1"); got != StateConnected {
		t.Fatalf("StateOf after driver reconnect = %v, want CONNECTED", got)
	}
}

func TestEmptyChannelForcesTeardown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	f.occupancy.count = 0
	f.controller.HandleVoiceState(VoiceState{
		GuildID:       "g1",
		UserID:        "user-a",
		PrevChannelID: "ch1",
	})

	if got := f.controller.StateOf("g1"); got != StateDisconnected {
		t.Fatalf("StateOf after empty channel = %v, want DISCONNECTED", got)
	}
	if len(f.transport.LeaveCalls) != 1 {
		t.Fatalf("transport leaves = %d, want 1", len(f.transport.LeaveCalls))
	}
}

func TestVoiceStateOtherChannelIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	f.occupancy.count = 0
	f.controller.HandleVoiceState(VoiceState{
		GuildID:       "g1",
		UserID:        "user-a",
		ChannelID:     "other",
		PrevChannelID: "other2",
	})
	if got := f.controller.StateOf("g1"); got != StateConnected {
		t.Fatalf("StateOf = %v, want CONNECTED", got)
	}
}

func TestSelfDisconnectForcesTeardown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	f.controller.HandleVoiceState(VoiceState{
		GuildID:       "g1",
		UserID:        "bot",
		ChannelID:     "",
		PrevChannelID: "ch1",
		IsSelf:        true,
	})
	if got := f.controller.StateOf("g1"); got != StateDisconnected {
		t.Fatalf("StateOf after self disconnect = %v, want DISCONNECTED", got)
	}
}

func TestShutdownTearsDownAllSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for _, g := range []string{"g1", "g2", "g3"} {
		if err := f.controller.Join(ctx, g, "ch-"+g); err != nil {
			t.Fatalf("Join %s: %v", g, err)
		}
	}
	f.controller.Shutdown(ctx)
	for _, g := range []string{"g1", "g2", "g3"} {
		if got := f.controller.StateOf(g); got != StateDisconnected {
			t.Fatalf("StateOf(%s) = %v, want DISCONNECTED", g, got)
		}
	}
	if len(f.transport.LeaveCalls) != 3 {
		t.Fatalf("transport leaves = %d, want 3", len(f.transport.LeaveCalls))
	}
}

func TestSessionsAreIndependentAcrossGuilds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Join(ctx, "g1", "ch1"); err != nil {
		t.Fatalf("Join g1: %v", err)
	}
	if err := f.controller.Join(ctx, "g2", "ch1"); err != nil {
		t.Fatalf("Join g2: %v", err)
	}
	if err := f.controller.Leave(ctx, "g1"); err != nil {
		t.Fatalf("Leave g1: %v", err)
	}
	if got := f.controller.StateOf("g2"); got != StateConnected {
		t.Fatalf("StateOf(g2) = %v, want CONNECTED after g1 leave", got)
	}
}

// gatedTransport blocks Join until released, exposing the window where a
// session is tracked but its voice handshake has not completed.
type gatedTransport struct {
	*audiomock.Transport
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTransport) Join(ctx context.Context, guildID, channelID string) (audio.Conn, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Transport.Join(ctx, guildID, channelID)
}

func TestJoinDuringHandshakeReturnsInProgress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gate := &gatedTransport{
		Transport: f.transport,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	f.controller.transport = gate
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() { firstErr <- f.controller.Join(ctx, "g1", "ch1") }()
	<-gate.entered

	// Session is tracked but the handshake is still in flight: a second
	// join must fail fast instead of panicking or blocking.
	if err := f.controller.Join(ctx, "g1", "ch2"); !errors.Is(err, ErrJoinInProgress) {
		t.Fatalf("Join during handshake = %v, want ErrJoinInProgress", err)
	}
	if err := f.controller.Join(ctx, "g1", "ch1"); !errors.Is(err, ErrJoinInProgress) {
		t.Fatalf("Join during handshake (same channel) = %v, want ErrJoinInProgress", err)
	}

	close(gate.release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if ch, ok := f.controller.Current("g1"); !ok || ch != "ch1" {
		t.Fatalf("Current = (%q, %v), want (ch1, true)", ch, ok)
	}
}

func TestReadsDuringHandshakeSeeNoConnection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gate := &gatedTransport{
		Transport: f.transport,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	f.controller.transport = gate
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() { firstErr <- f.controller.Join(ctx, "g1", "ch1") }()
	<-gate.entered

	if ch, ok := f.controller.Current("g1"); ok {
		t.Fatalf("Current during handshake = (%q, true), want no connection", ch)
	}
	if got := f.controller.StateOf("g1"); got != StateConnecting {
		t.Fatalf("StateOf during handshake = %v, want CONNECTING", got)
	}
	// Presence events for a connecting session are dropped, not acted on.
	f.controller.HandleVoiceState(VoiceState{GuildID: "g1", UserID: "u1", ChannelID: "ch1"})

	// Hammer the read paths while the join completes; the race detector
	// verifies the connection fields are published safely.
	readsDone := make(chan struct{})
	go func() {
		defer close(readsDone)
		for range 100 {
			f.controller.Current("g1")
			f.controller.StateOf("g1")
		}
	}()
	close(gate.release)
	<-readsDone

	if err := <-firstErr; err != nil {
		t.Fatalf("first Join: %v", err)
	}
	waitFor(t, func() bool {
		ch, ok := f.controller.Current("g1")
		return ok && ch == "ch1"
	})
}
