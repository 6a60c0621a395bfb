package round

import (
	"errors"
	"fmt"
	"strings"

	"github.com/igolaizola/tunequiz/pkg/catalog"
	"github.com/igolaizola/tunequiz/pkg/shuffle"
)

// Size is the maximum number of options in a round.
const Size = 4

var (
	ErrInvalidPool   = errors.New("round: empty pool")
	ErrNotInPool     = errors.New("round: track not in pool")
	ErrInvalidOption = errors.New("round: invalid option")
)

type Round struct {
	Number        int            `json:"number"`
	Track         *catalog.Track `json:"-"`
	Options       []string       `json:"options"`
	CorrectAnswer string         `json:"-"`
}

// Derive builds the options for the current track: the correct title plus
// up to three decoys with distinct titles, in random order.
func Derive(pool catalog.Pool, current *catalog.Track, s shuffle.Func, number int) (Round, error) {
	if len(pool) == 0 {
		return Round{}, ErrInvalidPool
	}
	if current == nil || pool.Index(current.ID) < 0 {
		return Round{}, ErrNotInPool
	}
	if s == nil {
		s = shuffle.None
	}

	decoys := make(catalog.Pool, 0, len(pool)-1)
	for _, t := range pool {
		if t.ID != current.ID {
			decoys = append(decoys, t)
		}
	}
	decoys.Shuffle(s)

	// Titles are compared the same way guesses are, so two titles differing
	// only in case count as one.
	seen := map[string]struct{}{key(current.Title): {}}
	options := []string{current.Title}
	for _, t := range decoys {
		if len(options) == Size {
			break
		}
		k := key(t.Title)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		options = append(options, t.Title)
	}
	shuffle.Strings(s, options)

	return Round{
		Number:        number,
		Track:         current,
		Options:       options,
		CorrectAnswer: current.Title,
	}, nil
}

// Check reports whether the guess matches the correct answer, ignoring case.
func (r Round) Check(guess string) bool {
	return key(guess) == key(r.CorrectAnswer)
}

// Option returns the n-th option, starting at 1.
func (r Round) Option(n int) (string, error) {
	if n < 1 || n > len(r.Options) {
		return "", fmt.Errorf("%w: %d not in 1..%d", ErrInvalidOption, n, len(r.Options))
	}
	return r.Options[n-1], nil
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
