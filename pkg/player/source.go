package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/igolaizola/tunequiz/pkg/youtube"
)

// Streamer is satisfied by *stream.Streamer.
type Streamer interface {
	Stream(ctx context.Context, url string) (io.ReadCloser, error)
}

// StreamSource streams tracks locally.
func StreamSource(s Streamer) Source {
	return func(ctx context.Context, trackID string) (io.ReadCloser, error) {
		return s.Stream(ctx, youtube.WatchURL(trackID))
	}
}

// ProxySource fetches tracks from the audio endpoint of a proxy server.
// Credentials in the proxy url are sent as basic auth.
func ProxySource(client *http.Client, proxy string) Source {
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(proxy, "/")
	return func(ctx context.Context, trackID string) (io.ReadCloser, error) {
		u := fmt.Sprintf("%s/audio?url=%s", base, url.QueryEscape(youtube.WatchURL(trackID)))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("player: couldn't create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("player: couldn't request audio: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("player: proxy returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		return resp.Body, nil
	}
}
