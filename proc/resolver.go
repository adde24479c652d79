package proc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lrstanley/go-ytdlp"

	"github.com/leeineian/hibiki/sys"
)

// Resolver turns user input into playable tracks. Implementations must be
// safe for concurrent use across guilds.
type Resolver interface {
	// Resolve handles both direct URLs and free-text queries. Free text
	// resolves to the single best match; playlist URLs expand to multiple
	// tracks.
	Resolve(ctx context.Context, query string, requester snowflake.ID) ([]Track, error)
	// ResolveStream re-extracts a direct stream URL from a watch page.
	// Used when a queued track's stream URL has expired.
	ResolveStream(ctx context.Context, pageURL string) (string, error)
}

type ResolverConfig struct {
	MaxPlaylistLength int
	MaxTrackDuration  time.Duration
	AllowPlaylists    bool
}

// YtdlpResolver shells out to yt-dlp for extraction.
type YtdlpResolver struct {
	cfg ResolverConfig
}

func NewYtdlpResolver(cfg ResolverConfig) *YtdlpResolver {
	if cfg.MaxPlaylistLength < 1 {
		cfg.MaxPlaylistLength = 50
	}
	return &YtdlpResolver{cfg: cfg}
}

var (
	jsOnce       sync.Once
	cachedJSArgs []string
)

func newYtdlp() (*ytdlp.Command, func()) {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()

	if proxy := os.Getenv("YOUTUBE_PROXY"); proxy != "" {
		cmd.Proxy(proxy)
	}

	return cmd, func() {}
}

// buildYtdlpArgs returns common args for yt-dlp commands
func buildYtdlpArgs() []string {
	jsOnce.Do(func() {
		for _, rt := range []string{"node", "deno", "quickjs"} {
			if path, err := exec.LookPath(rt); err == nil {
				cachedJSArgs = append(cachedJSArgs, "--js-runtimes", rt+":"+path)
				break
			}
		}
	})

	args := append([]string(nil), cachedJSArgs...)
	args = append(args,
		"--no-check-certificates",
		"--no-warnings",
		"--extractor-args", "youtube:player_client=android,web",
		"--prefer-free-formats",
		"--socket-timeout", "30",
		"--retries", "3",
	)
	return args
}

func isURL(q string) bool {
	return strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://")
}

func isPlaylistURL(u string) bool {
	return strings.Contains(u, "list=") || strings.Contains(u, "/playlist")
}

// classifyExtractError maps yt-dlp failures onto the resolver error set.
func classifyExtractError(err error, stderr string) error {
	msg := strings.ToLower(stderr)
	if msg == "" {
		msg = strings.ToLower(err.Error())
	}
	switch {
	case strings.Contains(msg, "video unavailable"),
		strings.Contains(msg, "private video"),
		strings.Contains(msg, "this video is not available"),
		strings.Contains(msg, "removed by the uploader"),
		strings.Contains(msg, "account associated with this video has been terminated"):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case strings.Contains(msg, "unsupported url"),
		strings.Contains(msg, "drm"):
		return fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	case strings.Contains(msg, "no video results"),
		strings.Contains(msg, "did not get any data blocks"):
		return fmt.Errorf("%w: %v", ErrNoResults, err)
	case strings.Contains(msg, "timed out"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "unable to download"):
		return &TransientError{Err: err}
	}
	return err
}

func (r *YtdlpResolver) Resolve(ctx context.Context, query string, requester snowflake.ID) ([]Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoResults
	}

	if isURL(query) && isPlaylistURL(query) {
		if !r.cfg.AllowPlaylists {
			return nil, ErrPlaylistsDisabled
		}
		return r.resolvePlaylist(ctx, query, requester)
	}

	target := query
	if !isURL(query) {
		target = "ytsearch1:" + query
	}

	t, err := r.extractSingle(ctx, target, requester)
	if err != nil {
		return nil, err
	}
	return []Track{t}, nil
}

func (r *YtdlpResolver) extractSingle(ctx context.Context, target string, requester snowflake.ID) (Track, error) {
	cmd, cleanup := newYtdlp()
	defer cleanup()

	args := buildYtdlpArgs()
	args = append(args, "--no-playlist", "-f", "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best")
	res, err := cmd.
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(webpage_url)s\t%(thumbnail)s").
		NoWarnings().
		IgnoreConfig().
		Run(ctx, append(args, "--skip-download", target)...)

	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		sys.LogResolver(sys.MsgResolverExtractFail, target, err)
		return Track{}, classifyExtractError(err, stderr)
	}

	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 6 {
			continue
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		if r.cfg.MaxTrackDuration > 0 && d > r.cfg.MaxTrackDuration {
			return Track{}, fmt.Errorf("%w: %s", ErrTrackTooLong, FormatDuration(d))
		}
		return Track{
			StreamURL:    ps[0],
			Title:        ps[1],
			Uploader:     nullable(ps[2]),
			Duration:     d,
			PageURL:      ps[4],
			ThumbnailURL: nullable(ps[5]),
			Requester:    requester,
		}, nil
	}
	return Track{}, ErrNoResults
}

func (r *YtdlpResolver) resolvePlaylist(ctx context.Context, u string, requester snowflake.ID) ([]Track, error) {
	cmd, cleanup := newYtdlp()
	defer cleanup()

	args := buildYtdlpArgs()
	res, err := cmd.
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(id)s").
		PlaylistItems(fmt.Sprintf("1-%d", r.cfg.MaxPlaylistLength)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, append(args, u, "--yes-playlist")...)

	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		sys.LogResolver(sys.MsgResolverExtractFail, u, err)
		return nil, classifyExtractError(err, stderr)
	}

	isYouTube := isYouTubeURL(u) || strings.Contains(u, "music.youtube.com")

	var tracks []Track
	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 || ps[1] == "" || ps[1] == "NA" {
			continue
		}
		pageURL := ps[0]
		if isYouTube && len(ps) >= 5 {
			if id := ps[4]; id != "" && id != "NA" {
				pageURL = "https://www.youtube.com/watch?v=" + id
			}
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		if r.cfg.MaxTrackDuration > 0 && d > r.cfg.MaxTrackDuration {
			continue
		}
		// Flat extraction carries no stream URL; it is resolved lazily
		// right before the track plays.
		tracks = append(tracks, Track{
			PageURL:   pageURL,
			Title:     ps[1],
			Uploader:  nullable(ps[2]),
			Duration:  d,
			Requester: requester,
		})
	}

	if len(tracks) == 0 {
		return nil, ErrNoResults
	}
	if len(tracks) == r.cfg.MaxPlaylistLength {
		sys.LogResolver(sys.MsgResolverPlaylistTrunc, r.cfg.MaxPlaylistLength)
	}
	return tracks, nil
}

func (r *YtdlpResolver) ResolveStream(ctx context.Context, pageURL string) (string, error) {
	cmd, cleanup := newYtdlp()
	defer cleanup()

	args := buildYtdlpArgs()
	args = append(args, "--no-playlist", "-f", "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best")
	res, err := cmd.
		Print("%(url)s").
		NoWarnings().
		IgnoreConfig().
		Run(ctx, append(args, "--skip-download", pageURL)...)

	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		sys.LogResolver(sys.MsgResolverExtractFail, pageURL, err)
		return "", classifyExtractError(err, stderr)
	}

	streamURL := strings.TrimSpace(res.Stdout)
	if streamURL == "" || streamURL == "NA" {
		return "", ErrUnavailable
	}
	if i := strings.IndexByte(streamURL, '\n'); i > 0 {
		streamURL = streamURL[:i]
	}
	return streamURL, nil
}

func nullable(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}
