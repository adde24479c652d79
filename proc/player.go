package proc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/hibiki/sys"
)

// PlayerConfig carries the playback limits. Production wiring derives it
// from the environment; tests construct it directly.
type PlayerConfig struct {
	MaxQueueLength int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	DefaultVolume  int
	VolumeMin      int
	VolumeMax      int
}

func (c PlayerConfig) withDefaults() PlayerConfig {
	if c.MaxQueueLength < 1 {
		c.MaxQueueLength = 50
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.DefaultVolume <= 0 {
		c.DefaultVolume = 50
	}
	if c.VolumeMax <= 0 {
		c.VolumeMax = 200
	}
	return c
}

// Player is the per-guild playback state machine. A single run goroutine
// owns all queue advancement; every external operation only mutates flags,
// signals the queueUpdate channel, or cancels the active stream, so two
// track endings can never race each other into consuming two queue heads.
type Player struct {
	GuildID snowflake.ID

	system   *PlayerSystem
	conn     AudioConn
	resolver Resolver
	notify   Notifier
	store    SettingsStore
	cfg      PlayerConfig

	queue  *trackQueue
	volume atomic.Int32

	mu              sync.Mutex
	channelID       snowflake.ID
	notifyChannelID snowflake.ID
	nowPlayingMsg   snowflake.ID
	current         *Track
	looping         bool
	skipLoop        bool
	playedAny       bool
	streamCancel    context.CancelFunc

	queueUpdate chan struct{}
	cancelCtx   context.Context
	cancelFunc  context.CancelFunc
	wg          sync.WaitGroup
}

func (p *Player) run() {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice("CRITICAL: player run panic recovered: %v", r)
		}
	}()

	for {
		if p.cancelCtx.Err() != nil {
			return
		}

		t, ok := p.nextTrack()
		if !ok {
			if !p.waitOrIdle() {
				return
			}
			continue
		}

		p.playTrack(t)
	}
}

// nextTrack picks the next track to play: the current one again when loop
// replay applies, otherwise the queue head.
func (p *Player) nextTrack() (Track, bool) {
	p.mu.Lock()
	if p.looping && !p.skipLoop && p.current != nil {
		t := *p.current
		p.mu.Unlock()
		return t, true
	}
	p.skipLoop = false
	p.current = nil
	p.mu.Unlock()

	t, ok := p.queue.PopFront()
	if !ok {
		return Track{}, false
	}

	p.mu.Lock()
	tc := t
	p.current = &tc
	p.mu.Unlock()
	return t, true
}

// waitOrIdle blocks until a new track is queued or the idle countdown
// expires. Returns false when the player should exit.
func (p *Player) waitOrIdle() bool {
	p.mu.Lock()
	notifyCh := p.notifyChannelID
	announce := p.playedAny
	p.playedAny = false
	p.mu.Unlock()

	if announce {
		sys.LogVoice(sys.MsgVoiceQueueFinished, p.GuildID)
		p.notify.Status(notifyCh, sys.UserMsgQueueFinished)
	}

	idle := time.NewTimer(p.cfg.IdleTimeout)
	defer idle.Stop()

	select {
	case <-p.queueUpdate:
		return true
	case <-p.cancelCtx.Done():
		return false
	case <-idle.C:
		sys.LogVoice(sys.MsgVoiceIdleDisconnect, p.cfg.IdleTimeout, p.GuildID)
		p.notify.Status(notifyCh, sys.UserMsgIdleDisconnect)
		go p.system.Leave(context.Background(), p.GuildID, "idle timeout")
		return false
	}
}

func (p *Player) playTrack(t Track) {
	p.mu.Lock()
	notifyCh := p.notifyChannelID
	p.mu.Unlock()

	// Stream URLs expire; resolve lazily (playlist entries are queued
	// without one) and give an expired URL one second chance.
	for attempt := 0; attempt < 2; attempt++ {
		if t.StreamURL == "" || attempt > 0 {
			rctx, rcancel := context.WithTimeout(p.cancelCtx, 30*time.Second)
			streamURL, err := p.resolver.ResolveStream(rctx, t.PageURL)
			rcancel()
			if err != nil {
				p.failTrack(t, notifyCh, err)
				return
			}
			t.StreamURL = streamURL
			p.mu.Lock()
			if p.current != nil {
				p.current.StreamURL = streamURL
			}
			p.mu.Unlock()
		}

		streamCtx, cancel := context.WithCancel(p.cancelCtx)
		p.mu.Lock()
		p.streamCancel = cancel
		p.playedAny = true
		p.mu.Unlock()

		sys.LogVoice(sys.MsgVoiceNowPlaying, p.GuildID, t.Title)
		msgID := p.notify.NowPlaying(notifyCh, t, p.Volume(), p.Loop())
		p.mu.Lock()
		p.nowPlayingMsg = msgID
		p.mu.Unlock()

		err := p.conn.Play(streamCtx, t.StreamURL)
		cancel()

		p.mu.Lock()
		p.streamCancel = nil
		msgID = p.nowPlayingMsg
		p.nowPlayingMsg = 0
		p.mu.Unlock()
		if msgID != 0 {
			p.notify.DeleteMessage(notifyCh, msgID)
		}

		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		sys.LogVoice(sys.MsgVoicePlaybackError, p.GuildID, err)
		if attempt == 1 || p.cancelCtx.Err() != nil {
			p.failTrack(t, notifyCh, err)
			return
		}
	}
}

// failTrack reports an unplayable track and makes sure loop replay does not
// resurrect it.
func (p *Player) failTrack(t Track, notifyCh snowflake.ID, err error) {
	sys.LogVoice(sys.MsgVoiceTrackSkipped, p.GuildID, displayTitle(t), err)
	p.notify.Status(notifyCh, fmt.Sprintf(sys.UserMsgTrackUnplayable, displayTitle(t)))
	p.mu.Lock()
	p.skipLoop = true
	p.mu.Unlock()
}

// --- Operations ---

// Enqueue appends tracks up to capacity and reports how many fit. The run
// goroutine is woken if it is parked on an empty queue.
func (p *Player) Enqueue(tracks []Track) int {
	added := p.queue.PushAll(tracks)
	if added > 0 {
		p.signalQueueUpdate()
	}
	return added
}

func (p *Player) signalQueueUpdate() {
	select {
	case p.queueUpdate <- struct{}{}:
	default:
	}
}

// Skip aborts the current track. It also suppresses loop replay for this
// one advancement, so a skipped track is gone even with loop on.
func (p *Player) Skip() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ErrNothingPlaying
	}
	p.skipLoop = true
	if p.streamCancel != nil {
		p.streamCancel()
	}
	return nil
}

// stop aborts playback and drops all pending tracks. Full teardown is the
// registry's job; see PlayerSystem.Stop.
func (p *Player) stop() int {
	cleared := p.queue.Clear()
	p.mu.Lock()
	p.skipLoop = true
	p.playedAny = false
	if p.streamCancel != nil {
		p.streamCancel()
	}
	p.mu.Unlock()
	return cleared
}

// SetLoop toggles single-track repeat. Refused while nothing is playing;
// persisted per guild.
func (p *Player) SetLoop(on bool) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return ErrNoCurrentTrack
	}
	p.looping = on
	p.mu.Unlock()
	if p.store != nil {
		if err := p.store.SaveLoop(context.Background(), p.GuildID, on); err != nil {
			sys.LogVoice(sys.MsgVoiceSettingsSaveFail, p.GuildID, err)
		}
	}
	return nil
}

func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.looping
}

// SetVolume stores the playback volume in percent. The transcoder reads it
// per frame, so the change is audible mid-track.
func (p *Player) SetVolume(v int) error {
	if v < p.cfg.VolumeMin || v > p.cfg.VolumeMax {
		return ErrVolumeOutOfRange
	}
	p.volume.Store(int32(v))
	if p.store != nil {
		if err := p.store.SaveVolume(context.Background(), p.GuildID, v); err != nil {
			sys.LogVoice(sys.MsgVoiceSettingsSaveFail, p.GuildID, err)
		}
	}
	return nil
}

func (p *Player) Volume() int {
	return int(p.volume.Load())
}

// RemoveAt removes the pending track at the given 1-based position. The
// currently playing track is not addressable here.
func (p *Player) RemoveAt(pos int) (Track, error) {
	return p.queue.RemoveAt(pos - 1)
}

// Queue returns a snapshot of the pending tracks in play order.
func (p *Player) Queue() []Track {
	return p.queue.Snapshot()
}

func (p *Player) QueueLen() int {
	return p.queue.Len()
}

func (p *Player) QueueCap() int {
	return p.queue.Cap()
}

// Current returns a copy of the playing track, if any.
func (p *Player) Current() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Track{}, false
	}
	return *p.current, true
}

func (p *Player) Playing() bool {
	_, ok := p.Current()
	return ok
}

func (p *Player) ChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

func (p *Player) NotifyChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notifyChannelID
}

func (p *Player) SetNotifyChannel(channelID snowflake.ID) {
	p.mu.Lock()
	p.notifyChannelID = channelID
	p.mu.Unlock()
}

func displayTitle(t Track) string {
	if t.Title != "" {
		return t.Title
	}
	return t.PageURL
}
