package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/igolaizola/tunequiz/pkg/shuffle"
)

var (
	// ErrConfiguration is returned when the catalog can't be queried because
	// of missing credentials or an invalid query.
	ErrConfiguration = errors.New("catalog: configuration error")
	// ErrUnavailable is returned on network, auth or malformed response errors.
	ErrUnavailable = errors.New("catalog: unavailable")
)

// MaxResults is the largest pool that can be requested.
const MaxResults = 100

// Orders supported by the search collaborator.
var Orders = []string{"date", "rating", "relevance", "title", "videoCount", "viewCount"}

type Thumbnails struct {
	Default string `json:"default"`
	Medium  string `json:"medium"`
	High    string `json:"high"`
}

type Track struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Thumbnails Thumbnails `json:"thumbnails"`
}

// Pool is an ordered list of tracks, unique by id.
type Pool []*Track

// Index returns the position of the track with the given id or -1.
func (p Pool) Index(id string) int {
	for i, t := range p {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Shuffle permutes the pool in place.
func (p Pool) Shuffle(f shuffle.Func) {
	f(len(p), func(i, j int) {
		p[i], p[j] = p[j], p[i]
	})
}

// Query defaults, matching a broad search of popular music videos.
const (
	DefaultKeyword = "Music"
	DefaultOrder   = "viewCount"
	DefaultAfter   = "1990-01-01T00:00:00Z"
	DefaultBefore  = "2023-12-31T23:59:59Z"
)

type Query struct {
	Keyword    string
	MaxResults int
	After      time.Time
	Before     time.Time
	Order      string
}

func (q Query) Validate() error {
	if strings.TrimSpace(q.Keyword) == "" {
		return fmt.Errorf("%w: empty search keyword", ErrConfiguration)
	}
	if q.MaxResults < 1 || q.MaxResults > MaxResults {
		return fmt.Errorf("%w: max results %d out of range 1..%d", ErrConfiguration, q.MaxResults, MaxResults)
	}
	if !q.After.IsZero() && !q.Before.IsZero() && q.Before.Before(q.After) {
		return fmt.Errorf("%w: published before %s precedes published after %s", ErrConfiguration,
			q.Before.Format(time.RFC3339), q.After.Format(time.RFC3339))
	}
	if q.Order != "" {
		var ok bool
		for _, o := range Orders {
			if o == q.Order {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: unknown order %q", ErrConfiguration, q.Order)
		}
	}
	return nil
}

// ParseQuery builds a validated query from its text form. Dates are RFC 3339
// timestamps or YYYY-MM-DD days, empty dates are unbounded.
func ParseQuery(keyword string, max int, after, before, order string) (Query, error) {
	q := Query{
		Keyword:    keyword,
		MaxResults: max,
		Order:      order,
	}
	var err error
	if q.After, err = parseTime(after); err != nil {
		return Query{}, fmt.Errorf("%w: invalid published after %q", ErrConfiguration, after)
	}
	if q.Before, err = parseTime(before); err != nil {
		return Query{}, fmt.Errorf("%w: invalid published before %q", ErrConfiguration, before)
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

type Fetcher interface {
	FetchPool(ctx context.Context, q Query) (Pool, error)
}

// Fetch validates the query, fetches the pool and optionally shuffles it.
func Fetch(ctx context.Context, f Fetcher, q Query, s shuffle.Func) (Pool, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: no fetcher", ErrConfiguration)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	pool, err := f.FetchPool(ctx, q)
	if err != nil {
		return nil, err
	}
	if s != nil {
		pool.Shuffle(s)
	}
	return pool, nil
}
