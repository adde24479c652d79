package proc

import (
	"context"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"

	"github.com/leeineian/hibiki/sys"
)

// SearchResult backs the play-command autocomplete.
type SearchResult struct{ Title, ChannelName, URL string }

type QueryCache struct {
	sync.RWMutex
	items map[string]cachedItem
}

type cachedItem struct {
	results   []SearchResult
	expiresAt time.Time
}

func newQueryCache() *QueryCache {
	return &QueryCache{items: make(map[string]cachedItem)}
}

func (c *QueryCache) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Lock()
			now := time.Now()
			evicted := 0
			for q, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, q)
					evicted++
				}
			}
			c.Unlock()
			if evicted > 0 {
				sys.LogResolver(sys.MsgResolverCacheGC, evicted)
			}
		}
	}
}

// SearchTracks fans out to YouTube and YouTube Music concurrently, merges
// the results (YTM first, deduped by video ID) and caps them at the Discord
// autocomplete choice limit.
func (ps *PlayerSystem) SearchTracks(q string) ([]SearchResult, error) {
	// 1. Check Cache
	ps.cache.RLock()
	if item, ok := ps.cache.items[q]; ok {
		if time.Now().Before(item.expiresAt) {
			ps.cache.RUnlock()
			return item.results, nil
		}
	}
	ps.cache.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2600*time.Millisecond)
	defer cancel()
	resMu := sync.Mutex{}
	var ytm, yt []SearchResult
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		// ytmusic has no ctx support; run it behind a channel so an
		// upstream hang cannot outlive the deadline.
		inner := make(chan []SearchResult, 1)
		go func() {
			var out []SearchResult
			if r, err := ytmusic.TrackSearch(q).Next(); err == nil {
				for _, v := range r.Tracks {
					if v.VideoID == "" {
						continue
					}
					art := ""
					if len(v.Artists) > 0 {
						art = " - " + v.Artists[0].Name
					}
					out = append(out, SearchResult{URL: "https://music.youtube.com/watch?v=" + v.VideoID, Title: TruncateWithPreserve(v.Title, 100, "", art)})
				}
			}
			inner <- out
		}()
		select {
		case res := <-inner:
			resMu.Lock()
			ytm = res
			resMu.Unlock()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, err := c.Search(ctx, q)
		if err != nil {
			return
		}
		var out []SearchResult
		for _, v := range r.Results {
			out = append(out, SearchResult{URL: "https://www.youtube.com/watch?v=" + v.VideoID, Title: TruncateCenter(v.Title, 100)})
		}
		resMu.Lock()
		yt = out
		resMu.Unlock()
	}()
	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-ctx.Done():
	}
	resMu.Lock()
	defer resMu.Unlock()
	fin := mergeSearchResults(ytm, yt)

	// 2. Update Cache (TTL 1 hour)
	if len(fin) > 0 {
		ps.cache.Lock()
		ps.cache.items[q] = cachedItem{results: fin, expiresAt: time.Now().Add(1 * time.Hour)}
		ps.cache.Unlock()
	}

	return fin, nil
}

// mergeSearchResults concatenates the result lists, drops duplicate video
// IDs (first occurrence wins) and caps the merged list at the Discord
// autocomplete choice limit.
func mergeSearchResults(lists ...[]SearchResult) []SearchResult {
	seen := make(map[string]bool)
	var out []SearchResult
	for _, list := range lists {
		for _, r := range list {
			key := extractVideoID(r.URL)
			if key == "" {
				key = r.URL
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	if len(out) > 25 {
		out = out[:25]
	}
	return out
}
