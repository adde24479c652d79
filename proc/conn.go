package proc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/hibiki/sys"
)

// AudioConn is the engine-facing voice transport. The production
// implementation speaks the Discord voice gateway; tests substitute fakes.
type AudioConn interface {
	// Open connects to the given channel, honoring ctx for the connect
	// deadline.
	Open(ctx context.Context, channelID snowflake.ID) error
	// Play streams the given URL until it ends, fails, or ctx is canceled.
	// A ctx cancellation is a clean stop and returns ctx.Err().
	Play(ctx context.Context, streamURL string) error
	// Close disconnects.
	Close(ctx context.Context)
}

// ConnFactory builds an AudioConn for a guild. The volume pointer is shared
// with the player so volume changes apply to frames already in flight.
type ConnFactory func(guildID snowflake.ID, volume *atomic.Int32) AudioConn

// voiceConn streams opus audio over a disgo voice connection.
type voiceConn struct {
	guildID snowflake.ID
	conn    voice.Conn
	volume  *atomic.Int32
}

// NewVoiceConnFactory returns a ConnFactory backed by the client's voice
// manager.
func NewVoiceConnFactory(client bot.Client) ConnFactory {
	return func(guildID snowflake.ID, volume *atomic.Int32) AudioConn {
		return &voiceConn{
			guildID: guildID,
			conn:    client.VoiceManager.CreateConn(guildID),
			volume:  volume,
		}
	}
}

func (c *voiceConn) Open(ctx context.Context, channelID snowflake.ID) error {
	sys.LogVoice(sys.MsgVoiceConnecting, channelID, c.guildID)

	var lastErr error
	for i := range 5 {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 1000 * time.Millisecond
			sys.LogVoice("Retrying voice connection in %v (Attempt %d/5)", backoff, i+1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrConnectTimeout, ctx.Err())
			}
		}
		if err := c.conn.Open(ctx, channelID, false, false); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
			}
			lastErr = err
			continue
		}
		sys.LogVoice(sys.MsgVoiceConnected, channelID, c.guildID)
		return nil
	}

	sys.LogVoice(sys.MsgVoiceConnectFail, channelID, lastErr)
	c.conn.Close(context.Background())
	return fmt.Errorf("%w: %v", ErrConnectFailed, lastErr)
}

func (c *voiceConn) Play(ctx context.Context, streamURL string) error {
	p := NewStreamProvider(ctx)
	done := make(chan struct{})
	p.OnFinish = func() {
		close(done)
	}

	var errMu sync.Mutex
	var transcodeErr error
	setErr := func(err error) {
		errMu.Lock()
		if transcodeErr == nil {
			transcodeErr = err
		}
		errMu.Unlock()
	}

	go func() {
		defer p.PushFrame(nil)
		t := NewOpusTranscoder(c.volume)
		defer t.Close()
		if err := t.OpenInput(streamURL); err != nil {
			sys.LogVoice("Transcoder OpenInput failed: %v", err)
			setErr(err)
			return
		}
		if err := t.SetupDecoder(); err != nil {
			sys.LogVoice("Transcoder SetupDecoder failed: %v", err)
			setErr(err)
			return
		}
		if err := t.SetupEncoder(); err != nil {
			sys.LogVoice("Transcoder SetupEncoder failed: %v", err)
			setErr(err)
			return
		}
		if err := t.Transcode(ctx, p.PushFrame); err != nil && !errors.Is(err, context.Canceled) {
			setErr(err)
		}
	}()

	c.setOpusFrameProviderSafe(ctx, p)
	c.setSpeakingSafe(ctx, voice.SpeakingFlagMicrophone)

	select {
	case <-done:
	case <-ctx.Done():
	}

	c.setOpusFrameProviderSafe(context.Background(), nil)
	c.setSpeakingSafe(context.Background(), 0)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	errMu.Lock()
	defer errMu.Unlock()
	return transcodeErr
}

func (c *voiceConn) Close(ctx context.Context) {
	c.conn.Close(ctx)
}

// The gateway's voice handshake can race provider/speaking updates; retry a
// few times and swallow panics from a connection torn down underneath us.

func (c *voiceConn) setOpusFrameProviderSafe(ctx context.Context, provider voice.OpusFrameProvider) {
	if c.conn == nil || (reflect.ValueOf(c.conn).Kind() == reflect.Ptr && reflect.ValueOf(c.conn).IsNil()) {
		return
	}

	for i := range 3 {
		if c.trySetOpusFrameProvider(provider) {
			return
		}
		if i < 2 {
			select {
			case <-time.After(150 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}
	sys.LogVoice("Exhausted retries for SetOpusFrameProvider in guild %s", c.guildID)
}

func (c *voiceConn) trySetOpusFrameProvider(provider voice.OpusFrameProvider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	c.conn.SetOpusFrameProvider(provider)
	return true
}

func (c *voiceConn) setSpeakingSafe(ctx context.Context, flags voice.SpeakingFlags) {
	if c.conn == nil || (reflect.ValueOf(c.conn).Kind() == reflect.Ptr && reflect.ValueOf(c.conn).IsNil()) {
		return
	}

	for i := 0; i < 3; i++ {
		if c.trySetSpeaking(ctx, flags) {
			return
		}
		if i < 2 {
			select {
			case <-time.After(150 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}
	sys.LogVoice("Exhausted retries for SetSpeaking in guild %s", c.guildID)
}

func (c *voiceConn) trySetSpeaking(ctx context.Context, flags voice.SpeakingFlags) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	c.conn.SetSpeaking(ctx, flags)
	return true
}
