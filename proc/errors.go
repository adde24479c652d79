package proc

import (
	"errors"
	"fmt"
)

// Playback and resolution failure classes. Command handlers match these with
// errors.Is to pick user-facing replies.
var (
	// Voice channel / connection
	ErrUserNotInChannel = errors.New("user is not in a voice channel")
	ErrBusyElsewhere    = errors.New("already playing in another voice channel")
	ErrConnectTimeout   = errors.New("voice connection timed out")
	ErrConnectFailed    = errors.New("voice connection failed")
	ErrNotConnected     = errors.New("not connected to a voice channel")

	// Resolution
	ErrNoResults         = errors.New("no results found")
	ErrUnavailable       = errors.New("video is unavailable")
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrTrackTooLong      = errors.New("track exceeds maximum duration")
	ErrPlaylistsDisabled = errors.New("playlists are disabled")

	// Queue & playback state
	ErrQueueFull        = errors.New("queue is full")
	ErrBadPosition      = errors.New("invalid queue position")
	ErrNothingPlaying   = errors.New("nothing is playing")
	ErrNoCurrentTrack   = errors.New("no current track")
	ErrVolumeOutOfRange = errors.New("volume out of range")
)

// TransientError marks failures worth retrying (network hiccups, timeouts,
// upstream 5xx). Wraps the underlying cause.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
