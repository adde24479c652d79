package proc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const (
	testGuild   = snowflake.ID(100)
	testChannel = snowflake.ID(200)
	testNotify  = snowflake.ID(300)
)

type fakeConn struct {
	mu      sync.Mutex
	played  []string
	opened  []snowflake.ID
	closed  bool
	playDur time.Duration
	block   map[string]bool
	volume  *atomic.Int32
}

func (c *fakeConn) Open(ctx context.Context, channelID snowflake.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, channelID)
	return nil
}

func (c *fakeConn) Play(ctx context.Context, streamURL string) error {
	c.mu.Lock()
	c.played = append(c.played, streamURL)
	blocking := c.block[streamURL]
	d := c.playDur
	c.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *fakeConn) Close(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) playedList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.played))
	copy(out, c.played)
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeResolver struct {
	mu        sync.Mutex
	streamErr map[string]error
	resolved  []string
}

func (r *fakeResolver) Resolve(ctx context.Context, query string, requester snowflake.ID) ([]Track, error) {
	return nil, ErrNoResults
}

func (r *fakeResolver) ResolveStream(ctx context.Context, pageURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, pageURL)
	if err, ok := r.streamErr[pageURL]; ok {
		return "", err
	}
	return pageURL + "#stream", nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	statuses   []string
	nowPlaying []string
	deleted    []snowflake.ID
	nextID     snowflake.ID
}

func (n *fakeNotifier) Status(channelID snowflake.ID, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, content)
}

func (n *fakeNotifier) NowPlaying(channelID snowflake.ID, t Track, volume int, looping bool) snowflake.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nowPlaying = append(n.nowPlaying, t.Title)
	n.nextID++
	return n.nextID
}

func (n *fakeNotifier) DeleteMessage(channelID, messageID snowflake.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, messageID)
}

func (n *fakeNotifier) statusList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.statuses))
	copy(out, n.statuses)
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	volumes map[snowflake.ID]int
	loops   map[snowflake.ID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{volumes: map[snowflake.ID]int{}, loops: map[snowflake.ID]bool{}}
}

func (s *fakeStore) Load(ctx context.Context, guildID snowflake.ID) (int, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vol, ok := s.volumes[guildID]
	if !ok {
		return 0, false, false, nil
	}
	return vol, s.loops[guildID], true, nil
}

func (s *fakeStore) SaveVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[guildID] = volume
	return nil
}

func (s *fakeStore) SaveLoop(ctx context.Context, guildID snowflake.ID, loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loops[guildID] = loop
	return nil
}

func newTestSystem(t *testing.T, cfg PlayerConfig) (*PlayerSystem, *fakeConn, *fakeResolver, *fakeNotifier, *fakeStore) {
	t.Helper()
	conn := &fakeConn{playDur: 30 * time.Millisecond, block: map[string]bool{}}
	res := &fakeResolver{streamErr: map[string]error{}}
	not := &fakeNotifier{}
	store := newFakeStore()

	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	ps := NewPlayerSystem(ctx, cfg, SystemDeps{
		Resolver: res,
		ConnFactory: func(guildID snowflake.ID, volume *atomic.Int32) AudioConn {
			conn.volume = volume
			return conn
		},
		Notifier: not,
		Store:    store,
	})
	t.Cleanup(func() {
		ps.Shutdown(context.Background())
		cancel()
	})
	return ps, conn, res, not, store
}

func testTrack(name string) Track {
	return Track{
		PageURL:   "https://www.youtube.com/watch?v=" + name,
		StreamURL: "stream://" + name,
		Title:     name,
		Duration:  3 * time.Minute,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func join(t *testing.T, ps *PlayerSystem) *Player {
	t.Helper()
	p, err := ps.Join(context.Background(), testGuild, testChannel, testNotify)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	return p
}

func TestPlaysInQueueOrder(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	p := join(t, ps)

	p.Enqueue([]Track{testTrack("a"), testTrack("b"), testTrack("c")})

	waitFor(t, "all tracks to play", func() bool { return len(conn.playedList()) == 3 })
	waitFor(t, "playback to finish", func() bool { return !p.Playing() })

	want := []string{"stream://a", "stream://b", "stream://c"}
	got := conn.playedList()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("play order[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSkipAdvances(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	conn.block["stream://a"] = true
	p := join(t, ps)

	p.Enqueue([]Track{testTrack("a"), testTrack("b")})
	waitFor(t, "first track to start", func() bool { return len(conn.playedList()) == 1 })

	if err := p.Skip(); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	waitFor(t, "second track to start", func() bool { return len(conn.playedList()) == 2 })
	if got := conn.playedList()[1]; got != "stream://b" {
		t.Errorf("after skip: got %q, want %q", got, "stream://b")
	}
}

func TestSkipWithNothingPlaying(t *testing.T) {
	ps, _, _, _, _ := newTestSystem(t, PlayerConfig{})
	p := join(t, ps)

	if err := p.Skip(); !errors.Is(err, ErrNothingPlaying) {
		t.Errorf("Skip while idle: got %v, want ErrNothingPlaying", err)
	}
}

func TestLoopReplaysCurrentTrack(t *testing.T) {
	ps, conn, _, _, store := newTestSystem(t, PlayerConfig{})
	conn.playDur = 15 * time.Millisecond
	conn.block["stream://a"] = true
	p := join(t, ps)

	p.Enqueue([]Track{testTrack("a"), testTrack("b")})
	waitFor(t, "first track to start", func() bool { return len(conn.playedList()) == 1 })

	// Loop is armed while a is held open, then a skip advances to b, which
	// replays under loop.
	if err := p.SetLoop(true); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}
	if err := p.Skip(); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}

	waitFor(t, "loop replay", func() bool { return len(conn.playedList()) >= 3 })
	for i, url := range conn.playedList()[1:3] {
		if url != "stream://b" {
			t.Errorf("replay %d: got %q, want %q", i, url, "stream://b")
		}
	}

	store.mu.Lock()
	persisted := store.loops[testGuild]
	store.mu.Unlock()
	if !persisted {
		t.Error("loop flag was not persisted")
	}

	// current stays set for the whole of a loop replay.
	if err := p.SetLoop(false); err != nil {
		t.Fatalf("SetLoop(false) failed: %v", err)
	}
	waitFor(t, "playback to stop after loop off", func() bool { return !p.Playing() })
}

func TestSetLoopWithoutTrack(t *testing.T) {
	ps, _, _, _, store := newTestSystem(t, PlayerConfig{})
	p := join(t, ps)

	if err := p.SetLoop(true); !errors.Is(err, ErrNoCurrentTrack) {
		t.Errorf("SetLoop while idle: got %v, want ErrNoCurrentTrack", err)
	}
	store.mu.Lock()
	_, persisted := store.loops[testGuild]
	store.mu.Unlock()
	if persisted {
		t.Error("refused SetLoop must not persist anything")
	}
}

func TestSkipDisablesLoopForOneAdvance(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	conn.block["stream://a"] = true
	conn.block["stream://b"] = true
	p := join(t, ps)

	p.Enqueue([]Track{testTrack("a"), testTrack("b")})
	waitFor(t, "first track to start", func() bool { return len(conn.playedList()) == 1 })
	if err := p.SetLoop(true); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}

	// With loop on, a skip must advance past the current track instead of
	// replaying it.
	if err := p.Skip(); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	waitFor(t, "next track to start", func() bool { return len(conn.playedList()) == 2 })
	if got := conn.playedList()[1]; got != "stream://b" {
		t.Fatalf("after skip with loop on: got %q, want %q", got, "stream://b")
	}

	// Loop stays enabled for the track that follows.
	if !p.Loop() {
		t.Error("loop flag should survive a skip")
	}
	if err := p.Skip(); err != nil {
		t.Fatalf("second Skip failed: %v", err)
	}
	waitFor(t, "playback to drain", func() bool { return !p.Playing() })
}

func TestDoubleSkipConsumesOneTrack(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	conn.block["stream://a"] = true
	conn.block["stream://b"] = true
	p := join(t, ps)

	p.Enqueue([]Track{testTrack("a"), testTrack("b"), testTrack("c")})
	waitFor(t, "first track to start", func() bool { return len(conn.playedList()) == 1 })

	// Two skips before the engine can advance target the same track.
	_ = p.Skip()
	_ = p.Skip()

	waitFor(t, "second track to start", func() bool { return len(conn.playedList()) >= 2 })
	if got := conn.playedList()[1]; got != "stream://b" {
		t.Errorf("after double skip: got %q, want %q", got, "stream://b")
	}
	if p.QueueLen() != 1 {
		t.Errorf("queue length after double skip: got %d, want 1", p.QueueLen())
	}
}

func TestStopTearsDownCompletely(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	conn.block["stream://a"] = true
	join(t, ps)
	p := ps.Get(testGuild)

	p.Enqueue([]Track{testTrack("a"), testTrack("b"), testTrack("c")})
	waitFor(t, "first track to start", func() bool { return len(conn.playedList()) == 1 })

	cleared, err := ps.Stop(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if cleared != 2 {
		t.Errorf("Stop: got %d cleared, want 2", cleared)
	}

	if ps.Get(testGuild) != nil {
		t.Error("player still registered after Stop")
	}
	if !conn.isClosed() {
		t.Error("connection not closed after Stop")
	}
	if got := conn.playedList(); len(got) != 1 {
		t.Errorf("tracks played after Stop: got %d, want 1", len(got))
	}
}

func TestStopWhenNotConnected(t *testing.T) {
	ps, _, _, _, _ := newTestSystem(t, PlayerConfig{})

	if _, err := ps.Stop(context.Background(), testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Stop without a player: got %v, want ErrNotConnected", err)
	}
}

func TestStopWithLoopDoesNotReplay(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	conn.block["stream://a"] = true
	p := join(t, ps)

	p.Enqueue([]Track{testTrack("a")})
	waitFor(t, "track to start", func() bool { return len(conn.playedList()) == 1 })
	if err := p.SetLoop(true); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}

	if _, err := ps.Stop(context.Background(), testGuild); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := conn.playedList(); len(got) != 1 {
		t.Errorf("looped track replayed after Stop: %d plays", len(got))
	}
}

func TestVolumeValidationAndPersistence(t *testing.T) {
	ps, conn, _, _, store := newTestSystem(t, PlayerConfig{VolumeMax: 200})
	p := join(t, ps)

	for _, v := range []int{-1, 201, 1000} {
		if err := p.SetVolume(v); !errors.Is(err, ErrVolumeOutOfRange) {
			t.Errorf("SetVolume(%d): got %v, want ErrVolumeOutOfRange", v, err)
		}
	}

	if err := p.SetVolume(75); err != nil {
		t.Fatalf("SetVolume(75) failed: %v", err)
	}
	if p.Volume() != 75 {
		t.Errorf("Volume: got %d, want 75", p.Volume())
	}
	// The connection reads the same atomic the player writes.
	if conn.volume.Load() != 75 {
		t.Errorf("shared volume: got %d, want 75", conn.volume.Load())
	}

	store.mu.Lock()
	persisted := store.volumes[testGuild]
	store.mu.Unlock()
	if persisted != 75 {
		t.Errorf("persisted volume: got %d, want 75", persisted)
	}
}

func TestSettingsRestoredOnJoin(t *testing.T) {
	ps, _, _, _, store := newTestSystem(t, PlayerConfig{})
	store.mu.Lock()
	store.volumes[testGuild] = 80
	store.loops[testGuild] = true
	store.mu.Unlock()

	p := join(t, ps)
	if p.Volume() != 80 {
		t.Errorf("restored volume: got %d, want 80", p.Volume())
	}
	if !p.Loop() {
		t.Error("restored loop flag: got false, want true")
	}
}

func TestUnresolvableTrackIsSkipped(t *testing.T) {
	ps, conn, res, not, _ := newTestSystem(t, PlayerConfig{})
	p := join(t, ps)

	bad := testTrack("bad")
	bad.StreamURL = ""
	res.mu.Lock()
	res.streamErr[bad.PageURL] = ErrUnavailable
	res.mu.Unlock()

	p.Enqueue([]Track{bad, testTrack("b")})

	waitFor(t, "next track to play", func() bool {
		played := conn.playedList()
		return len(played) == 1 && played[0] == "stream://b"
	})

	waitFor(t, "skip notice", func() bool {
		for _, s := range not.statusList() {
			if strings.Contains(s, "bad") {
				return true
			}
		}
		return false
	})
}

func TestLazyStreamResolution(t *testing.T) {
	ps, conn, res, _, _ := newTestSystem(t, PlayerConfig{})
	p := join(t, ps)

	lazy := testTrack("lazy")
	lazy.StreamURL = ""
	p.Enqueue([]Track{lazy})

	waitFor(t, "resolved stream to play", func() bool {
		played := conn.playedList()
		return len(played) == 1 && played[0] == lazy.PageURL+"#stream"
	})

	res.mu.Lock()
	resolvedCount := len(res.resolved)
	res.mu.Unlock()
	if resolvedCount != 1 {
		t.Errorf("stream resolutions: got %d, want 1", resolvedCount)
	}
}

func TestIdleDisconnect(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{IdleTimeout: 60 * time.Millisecond})
	join(t, ps)

	waitFor(t, "idle teardown", func() bool { return ps.Get(testGuild) == nil })
	waitFor(t, "connection close", func() bool { return conn.isClosed() })
}

func TestEnqueueResetsIdleCountdown(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{IdleTimeout: 150 * time.Millisecond})
	p := join(t, ps)

	time.Sleep(80 * time.Millisecond)
	p.Enqueue([]Track{testTrack("a")})
	waitFor(t, "track to play", func() bool { return len(conn.playedList()) == 1 })

	// A fresh countdown starts after the queue drains; the player must
	// survive past the original deadline.
	time.Sleep(80 * time.Millisecond)
	if ps.Get(testGuild) == nil {
		t.Fatal("player torn down before the fresh idle countdown expired")
	}

	waitFor(t, "eventual idle teardown", func() bool { return ps.Get(testGuild) == nil })
}

func TestJoinBusyElsewhere(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	conn.block["stream://a"] = true
	p := join(t, ps)

	p.Enqueue([]Track{testTrack("a")})
	waitFor(t, "track to start", func() bool { return len(conn.playedList()) == 1 })

	_, err := ps.Join(context.Background(), testGuild, testChannel+1, testNotify)
	if !errors.Is(err, ErrBusyElsewhere) {
		t.Errorf("Join while playing elsewhere: got %v, want ErrBusyElsewhere", err)
	}
}

func TestJoinSameChannelIsIdempotent(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	p1 := join(t, ps)
	p2 := join(t, ps)
	if p1 != p2 {
		t.Error("joining the same channel twice should return the same player")
	}

	conn.mu.Lock()
	opens := len(conn.opened)
	conn.mu.Unlock()
	if opens != 1 {
		t.Errorf("connection opens: got %d, want 1", opens)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	join(t, ps)

	ps.Leave(context.Background(), testGuild, "test")
	if ps.Get(testGuild) != nil {
		t.Fatal("player still registered after Leave")
	}
	if !conn.isClosed() {
		t.Error("connection not closed after Leave")
	}

	// Second leave is a no-op.
	ps.Leave(context.Background(), testGuild, "test")
}

func TestShutdownSweepsAllGuilds(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	join(t, ps)
	if _, err := ps.Join(context.Background(), testGuild+1, testChannel, testNotify); err != nil {
		t.Fatalf("second Join failed: %v", err)
	}

	ps.Shutdown(context.Background())
	if len(ps.GuildIDs()) != 0 {
		t.Errorf("players remaining after Shutdown: %v", ps.GuildIDs())
	}
	if !conn.isClosed() {
		t.Error("connection not closed after Shutdown")
	}
}

func TestFullPlaybackScenario(t *testing.T) {
	ps, conn, _, _, _ := newTestSystem(t, PlayerConfig{})
	conn.block["stream://a"] = true
	conn.block["stream://b"] = true
	p := join(t, ps)

	// Queue three tracks, skip the first.
	p.Enqueue([]Track{testTrack("a"), testTrack("b"), testTrack("c")})
	waitFor(t, "a to start", func() bool { return len(conn.playedList()) == 1 })
	if err := p.Skip(); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	waitFor(t, "b to start", func() bool { return len(conn.playedList()) == 2 })

	// Loop on: skipping b must still advance to c, which then replays.
	if err := p.SetLoop(true); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}
	if err := p.Skip(); err != nil {
		t.Fatalf("second Skip failed: %v", err)
	}
	waitFor(t, "c to replay under loop", func() bool { return len(conn.playedList()) >= 4 })

	got := conn.playedList()
	want := []string{"stream://a", "stream://b", "stream://c", "stream://c"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("play sequence[%d]: got %q, want %q", i, got[i], want[i])
		}
	}

	// Loop off: the current replay finishes and playback drains.
	if err := p.SetLoop(false); err != nil {
		t.Fatalf("SetLoop(false) failed: %v", err)
	}
	waitFor(t, "playback to drain", func() bool { return !p.Playing() })
	if p.QueueLen() != 0 {
		t.Errorf("queue not drained: %d left", p.QueueLen())
	}
}

func TestQueueFinishedNotice(t *testing.T) {
	ps, _, _, not, _ := newTestSystem(t, PlayerConfig{})
	p := join(t, ps)

	p.Enqueue([]Track{testTrack("a")})
	waitFor(t, "queue finished notice", func() bool {
		for _, s := range not.statusList() {
			if strings.Contains(s, "Queue finished") {
				return true
			}
		}
		return false
	})
	if p.Playing() {
		t.Error("player still reports a current track after the queue drained")
	}
}
