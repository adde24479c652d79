package proc

import (
	"errors"
	"testing"
)

func TestIsPlaylistURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc&list=PL123", true},
		{"https://www.youtube.com/playlist?list=PL123", true},
		{"https://music.youtube.com/playlist?list=OL456", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://youtu.be/abc", false},
	}
	for _, c := range cases {
		if got := isPlaylistURL(c.url); got != c.want {
			t.Errorf("isPlaylistURL(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestIsURL(t *testing.T) {
	if !isURL("https://example.com") || !isURL("http://example.com") {
		t.Error("http(s) prefixes should be detected as URLs")
	}
	if isURL("never gonna give you up") {
		t.Error("free text misdetected as URL")
	}
}

func TestClassifyExtractError(t *testing.T) {
	base := errors.New("yt-dlp exited with code 1")
	cases := []struct {
		stderr string
		want   error
	}{
		{"ERROR: Video unavailable", ErrUnavailable},
		{"ERROR: Private video. Sign in if you've been granted access", ErrUnavailable},
		{"ERROR: This video has been removed by the uploader", ErrUnavailable},
		{"ERROR: Unsupported URL: https://example.com/thing", ErrUnsupportedSource},
		{"ERROR: This video is DRM protected", ErrUnsupportedSource},
		{"ERROR: ytsearch1: no video results", ErrNoResults},
	}
	for _, c := range cases {
		got := classifyExtractError(base, c.stderr)
		if !errors.Is(got, c.want) {
			t.Errorf("classifyExtractError(%q) = %v, want %v", c.stderr, got, c.want)
		}
	}
}

func TestClassifyExtractErrorTransient(t *testing.T) {
	base := errors.New("yt-dlp exited with code 1")
	for _, stderr := range []string{
		"ERROR: Connection reset by peer",
		"ERROR: HTTP Error 503: Service Unavailable",
		"ERROR: Read timed out",
	} {
		got := classifyExtractError(base, stderr)
		if !IsTransient(got) {
			t.Errorf("classifyExtractError(%q) = %v, want transient", stderr, got)
		}
	}
}

func TestClassifyExtractErrorPassthrough(t *testing.T) {
	base := errors.New("something nobody anticipated")
	if got := classifyExtractError(base, "weird output"); got != base {
		t.Errorf("unknown errors should pass through unchanged, got %v", got)
	}
}

func TestResolveEmptyQuery(t *testing.T) {
	r := NewYtdlpResolver(ResolverConfig{AllowPlaylists: true})
	if _, err := r.Resolve(t.Context(), "   ", 1); !errors.Is(err, ErrNoResults) {
		t.Errorf("Resolve(blank) = %v, want ErrNoResults", err)
	}
}

func TestResolvePlaylistsDisabled(t *testing.T) {
	r := NewYtdlpResolver(ResolverConfig{AllowPlaylists: false})
	_, err := r.Resolve(t.Context(), "https://www.youtube.com/playlist?list=PL123", 1)
	if !errors.Is(err, ErrPlaylistsDisabled) {
		t.Errorf("Resolve(playlist) = %v, want ErrPlaylistsDisabled", err)
	}
}
