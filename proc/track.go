package proc

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track is an immutable descriptor of a playable item. The queue stores
// copies, so a Track handed out via Queue or Current never changes under
// the caller.
type Track struct {
	// PageURL is the canonical watch page. StreamURL is the direct media
	// URL extracted from it; it expires, so it may be empty or stale by the
	// time playback reaches this track.
	PageURL      string
	StreamURL    string
	Title        string
	Uploader     string
	Duration     time.Duration
	ThumbnailURL string
	Requester    snowflake.ID
}

// FormatDuration renders a duration as m:ss or h:mm:ss. Zero means a live
// stream and renders as "LIVE".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "LIVE"
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func TruncateCenter(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	k := (maxLen - 3) / 2
	return string(r[:k]) + "..." + string(r[len(r)-k:])
}

// TruncateWithPreserve truncates text while preserving a prefix and suffix.
func TruncateWithPreserve(text string, maxLen int, prefix, suffix string) string {
	rp, rs := []rune(prefix), []rune(suffix)
	fixedLen := len(rp) + len(rs)
	if fixedLen >= maxLen-10 {
		return TruncateCenter(prefix+text+suffix, maxLen)
	}
	return prefix + TruncateCenter(text, maxLen-fixedLen) + suffix
}

func extractVideoID(u string) string {
	if strings.Contains(u, "v=") {
		parts := strings.Split(u, "v=")
		if len(parts) >= 2 {
			vidParts := strings.Split(parts[1], "&")
			if len(vidParts) > 0 {
				return vidParts[0]
			}
		}
	}
	if strings.Contains(u, "youtu.be/") {
		parts := strings.Split(u, "youtu.be/")
		if len(parts) >= 2 {
			vidParts := strings.Split(parts[1], "?")
			if len(vidParts) > 0 {
				return vidParts[0]
			}
		}
	}
	if strings.Contains(u, "shorts/") {
		parts := strings.Split(u, "shorts/")
		if len(parts) >= 2 {
			vidParts := strings.Split(parts[1], "?")
			if len(vidParts) > 0 {
				return vidParts[0]
			}
		}
	}
	return ""
}

func isYouTubeURL(u string) bool {
	return strings.Contains(u, "youtube.com/") || strings.Contains(u, "youtu.be/")
}
