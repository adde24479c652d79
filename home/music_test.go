package home

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leeineian/hibiki/proc"
	"github.com/leeineian/hibiki/sys"
)

func TestUserErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{proc.ErrUserNotInChannel, sys.UserMsgNotInVoice},
		{proc.ErrBusyElsewhere, sys.UserMsgBusyElsewhere},
		{proc.ErrNotConnected, sys.UserMsgNotConnected},
		{proc.ErrNothingPlaying, sys.UserMsgNothingPlaying},
		{proc.ErrNoCurrentTrack, sys.UserMsgNoCurrentTrack},
		{proc.ErrBadPosition, sys.UserMsgBadPosition},
		{fmt.Errorf("extract: %w", proc.ErrUnavailable), sys.UserMsgUnavailable},
		{errors.New("something else entirely"), sys.UserMsgResolveFail},
	}
	for _, c := range cases {
		if got := userErrorMessage(c.err); got != c.want {
			t.Errorf("userErrorMessage(%v): got %q, want %q", c.err, got, c.want)
		}
	}
}
