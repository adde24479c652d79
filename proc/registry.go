package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/hibiki/sys"
)

// SettingsStore persists per-guild volume and loop preferences across
// restarts.
type SettingsStore interface {
	Load(ctx context.Context, guildID snowflake.ID) (volume int, loop bool, ok bool, err error)
	SaveVolume(ctx context.Context, guildID snowflake.ID, volume int) error
	SaveLoop(ctx context.Context, guildID snowflake.ID, loop bool) error
}

type dbSettingsStore struct{}

func (dbSettingsStore) Load(ctx context.Context, guildID snowflake.ID) (int, bool, bool, error) {
	s, err := sys.GetPlayerSettings(ctx, guildID)
	if err != nil || s == nil {
		return 0, false, false, err
	}
	return s.Volume, s.Loop, true, nil
}

func (dbSettingsStore) SaveVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	return sys.SetPlayerVolume(ctx, guildID, volume)
}

func (dbSettingsStore) SaveLoop(ctx context.Context, guildID snowflake.ID, loop bool) error {
	return sys.SetPlayerLoop(ctx, guildID, loop)
}

// SystemDeps bundles the injectable pieces of the player system.
type SystemDeps struct {
	Resolver    Resolver
	ConnFactory ConnFactory
	Notifier    Notifier
	Store       SettingsStore
}

// PlayerSystem is the guild-to-player registry. All map access goes through
// its mutex; the players themselves synchronize independently.
type PlayerSystem struct {
	mu      sync.Mutex
	players map[snowflake.ID]*Player
	cfg     PlayerConfig
	deps    SystemDeps
	cache   *QueryCache
}

func NewPlayerSystem(ctx context.Context, cfg PlayerConfig, deps SystemDeps) *PlayerSystem {
	ps := &PlayerSystem{
		players: make(map[snowflake.ID]*Player),
		cfg:     cfg.withDefaults(),
		deps:    deps,
		cache:   newQueryCache(),
	}
	sys.SafeGo(func() { ps.cache.gcLoop(ctx) })
	return ps
}

// Get returns the guild's player, or nil when the bot is not connected
// there.
func (ps *PlayerSystem) Get(guildID snowflake.ID) *Player {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.players[guildID]
}

// Join returns the guild's player, connecting to the voice channel first if
// needed. A player already serving another channel is moved when idle and
// refused with ErrBusyElsewhere when mid-playback.
func (ps *PlayerSystem) Join(ctx context.Context, guildID, channelID, notifyChannelID snowflake.ID) (*Player, error) {
	ps.mu.Lock()
	if p, ok := ps.players[guildID]; ok {
		ps.mu.Unlock()
		p.SetNotifyChannel(notifyChannelID)
		if p.ChannelID() == channelID {
			return p, nil
		}
		if p.Playing() || p.QueueLen() > 0 {
			return nil, ErrBusyElsewhere
		}
		octx, ocancel := context.WithTimeout(ctx, ps.cfg.ConnectTimeout)
		defer ocancel()
		if err := p.conn.Open(octx, channelID); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.channelID = channelID
		p.mu.Unlock()
		return p, nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &Player{
		GuildID:         guildID,
		system:          ps,
		resolver:        ps.deps.Resolver,
		notify:          ps.deps.Notifier,
		store:           ps.deps.Store,
		cfg:             ps.cfg,
		queue:           newTrackQueue(ps.cfg.MaxQueueLength),
		channelID:       channelID,
		notifyChannelID: notifyChannelID,
		queueUpdate:     make(chan struct{}, 1),
		cancelCtx:       runCtx,
		cancelFunc:      cancel,
	}
	p.volume.Store(int32(ps.cfg.DefaultVolume))
	p.conn = ps.deps.ConnFactory(guildID, &p.volume)
	ps.players[guildID] = p
	ps.mu.Unlock()

	if ps.deps.Store != nil {
		if vol, loop, ok, err := ps.deps.Store.Load(ctx, guildID); err != nil {
			sys.LogVoice(sys.MsgVoiceSettingsLoadFail, guildID, err)
		} else if ok {
			if vol >= ps.cfg.VolumeMin && vol <= ps.cfg.VolumeMax {
				p.volume.Store(int32(vol))
			}
			// The player is already visible through Get.
			p.mu.Lock()
			p.looping = loop
			p.mu.Unlock()
		}
	}

	octx, ocancel := context.WithTimeout(ctx, ps.cfg.ConnectTimeout)
	defer ocancel()
	if err := p.conn.Open(octx, channelID); err != nil {
		cancel()
		ps.mu.Lock()
		delete(ps.players, guildID)
		ps.mu.Unlock()
		return nil, err
	}

	p.wg.Add(1)
	sys.SafeGo(p.run)
	return p, nil
}

// Leave tears the guild's player down: the run goroutine exits, the voice
// connection closes and the registry entry is removed. Safe to call twice.
func (ps *PlayerSystem) Leave(ctx context.Context, guildID snowflake.ID, reason string) {
	ps.mu.Lock()
	p, ok := ps.players[guildID]
	if ok {
		delete(ps.players, guildID)
	}
	ps.mu.Unlock()
	if !ok {
		return
	}

	p.mu.Lock()
	if p.streamCancel != nil {
		p.streamCancel()
	}
	notifyCh := p.notifyChannelID
	msgID := p.nowPlayingMsg
	p.nowPlayingMsg = 0
	p.mu.Unlock()

	p.cancelFunc()
	p.wg.Wait()

	if msgID != 0 {
		p.notify.DeleteMessage(notifyCh, msgID)
	}
	p.conn.Close(ctx)
	sys.LogVoice(sys.MsgVoiceDisconnected, guildID, reason)
}

// Stop tears the guild's playback down completely: pending tracks are
// dropped, the current stream is aborted and the player leaves the voice
// channel. Returns how many pending tracks were discarded.
func (ps *PlayerSystem) Stop(ctx context.Context, guildID snowflake.ID) (int, error) {
	p := ps.Get(guildID)
	if p == nil {
		return 0, ErrNotConnected
	}
	cleared := p.stop()
	ps.Leave(ctx, guildID, "stop command")
	return cleared, nil
}

// Shutdown disconnects every guild, used on process exit.
func (ps *PlayerSystem) Shutdown(ctx context.Context) {
	ps.mu.Lock()
	ids := make([]snowflake.ID, 0, len(ps.players))
	for id := range ps.players {
		ids = append(ids, id)
	}
	ps.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	sys.LogVoice(sys.MsgVoiceShutdownSweep, len(ids))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		guildID := id
		sys.SafeGo(func() {
			defer wg.Done()
			ps.Leave(ctx, guildID, "shutting down")
		})
	}
	wg.Wait()
}

// Active returns the currently playing track of every guild. Used by the
// status rotator.
func (ps *PlayerSystem) Active() []Track {
	ps.mu.Lock()
	players := make([]*Player, 0, len(ps.players))
	for _, p := range ps.players {
		players = append(players, p)
	}
	ps.mu.Unlock()

	var out []Track
	for _, p := range players {
		if t, ok := p.Current(); ok {
			out = append(out, t)
		}
	}
	return out
}

// ResolveTracks turns a query or URL into playable track descriptors.
func (ps *PlayerSystem) ResolveTracks(ctx context.Context, query string, requester snowflake.ID) ([]Track, error) {
	return ps.deps.Resolver.Resolve(ctx, query, requester)
}

// GuildIDs lists the guilds with an active player.
func (ps *PlayerSystem) GuildIDs() []snowflake.ID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ids := make([]snowflake.ID, 0, len(ps.players))
	for id := range ps.players {
		ids = append(ids, id)
	}
	return ids
}

func (ps *PlayerSystem) handleVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.UserID != event.Client().ID() {
		return
	}
	if event.VoiceState.ChannelID != nil {
		return
	}
	guildID := event.VoiceState.GuildID
	if ps.Get(guildID) == nil {
		return
	}
	sys.LogVoice(sys.MsgVoiceExternalKick, guildID)
	ps.Leave(context.Background(), guildID, "external disconnect")
}

// --- Production wiring ---

var (
	playerSystem   *PlayerSystem
	playerSystemMu sync.RWMutex
)

// GetPlayerManager returns the process-wide player system, nil before the
// gateway is ready.
func GetPlayerManager() *PlayerSystem {
	playerSystemMu.RLock()
	defer playerSystemMu.RUnlock()
	return playerSystem
}

func init() {
	sys.OnClientReady(func(ctx context.Context, client bot.Client) {
		cfg := sys.GlobalConfig
		ps := NewPlayerSystem(ctx, PlayerConfig{
			MaxQueueLength: cfg.MaxQueueLength,
			IdleTimeout:    cfg.IdleTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
			DefaultVolume:  cfg.DefaultVolume,
			VolumeMin:      sys.VolumeMin,
			VolumeMax:      sys.VolumeMax,
		}, SystemDeps{
			Resolver: NewYtdlpResolver(ResolverConfig{
				MaxPlaylistLength: cfg.MaxPlaylistLength,
				MaxTrackDuration:  cfg.MaxTrackDuration,
				AllowPlaylists:    cfg.AllowPlaylists,
			}),
			ConnFactory: NewVoiceConnFactory(client),
			Notifier:    NewDiscordNotifier(client),
			Store:       dbSettingsStore{},
		})
		playerSystemMu.Lock()
		playerSystem = ps
		playerSystemMu.Unlock()
	})

	sys.RegisterVoiceStateUpdateHandler(func(event *events.GuildVoiceStateUpdate) {
		if ps := GetPlayerManager(); ps != nil {
			ps.handleVoiceStateUpdate(event)
		}
	})

	// Sweep active voice connections on process exit.
	sys.RegisterDaemon(sys.LogVoice, func(ctx context.Context) (bool, func(), func()) {
		run := func() { <-ctx.Done() }
		shutdown := func() {
			if ps := GetPlayerManager(); ps != nil {
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				ps.Shutdown(sctx)
			}
		}
		return true, run, shutdown
	})
}
