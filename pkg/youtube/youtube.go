package youtube

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/igolaizola/tunequiz/pkg/catalog"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// pageSize is the maximum page size accepted by search.list.
const pageSize = 50

// WatchURL returns the public watch url of a video.
func WatchURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}

type Client struct {
	service *youtube.Service
	debug   bool
}

func New(ctx context.Context, key string, debug bool, opts ...option.ClientOption) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("youtube: %w: api key is missing", catalog.ErrConfiguration)
	}
	opts = append([]option.ClientOption{option.WithAPIKey(key)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: %w: couldn't create service: %v", catalog.ErrConfiguration, err)
	}
	return &Client{
		service: service,
		debug:   debug,
	}, nil
}

// FetchPool searches videos matching the query, following pages until
// the requested number of results is reached.
func (c *Client) FetchPool(ctx context.Context, q catalog.Query) (catalog.Pool, error) {
	// Prepare a search call
	call := c.service.Search.List([]string{"snippet"}).
		Q(q.Keyword).
		Type("video").
		Context(ctx)
	if !q.After.IsZero() {
		call = call.PublishedAfter(q.After.UTC().Format(time.RFC3339))
	}
	if !q.Before.IsZero() {
		call = call.PublishedBefore(q.Before.UTC().Format(time.RFC3339))
	}
	if q.Order != "" {
		call = call.Order(q.Order)
	}

	var pool catalog.Pool
	seen := map[string]struct{}{}
	var pageToken string
	for len(pool) < q.MaxResults {
		size := q.MaxResults - len(pool)
		if size > pageSize {
			size = pageSize
		}
		call = call.MaxResults(int64(size))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("youtube: couldn't fetch videos: %w: %v", catalog.ErrUnavailable, err)
		}
		if c.debug {
			b, _ := resp.MarshalJSON()
			log.Println("youtube:", string(b))
		}

		for _, item := range resp.Items {
			if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
				continue
			}
			if _, ok := seen[item.Id.VideoId]; ok {
				continue
			}
			seen[item.Id.VideoId] = struct{}{}
			pool = append(pool, &catalog.Track{
				ID:         item.Id.VideoId,
				Title:      html.UnescapeString(item.Snippet.Title),
				Thumbnails: toThumbnails(item.Snippet.Thumbnails),
			})
			if len(pool) == q.MaxResults {
				break
			}
		}
		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	return pool, nil
}

func toThumbnails(d *youtube.ThumbnailDetails) catalog.Thumbnails {
	var t catalog.Thumbnails
	if d == nil {
		return t
	}
	if d.Default != nil {
		t.Default = d.Default.Url
	}
	if d.Medium != nil {
		t.Medium = d.Medium.Url
	}
	if d.High != nil {
		t.High = d.High.Url
	}
	return t
}
