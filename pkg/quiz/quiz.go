package quiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/igolaizola/tunequiz/pkg/catalog"
	"github.com/igolaizola/tunequiz/pkg/round"
	"github.com/igolaizola/tunequiz/pkg/shuffle"
	"github.com/igolaizola/tunequiz/pkg/transport"
	"github.com/oklog/ulid/v2"
)

var (
	ErrNotReady  = errors.New("quiz: not ready")
	ErrClosed    = errors.New("quiz: closed")
	ErrStarted   = errors.New("quiz: already started")
	ErrEmptyPool = errors.New("quiz: empty pool")
)

type State int

const (
	Loading State = iota
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transport is the playback surface the engine drives. It is satisfied by
// *transport.Controller.
type Transport interface {
	Bind(trackID string) error
	Unbind()
	Play()
	Pause()
	Seek(seconds float64)
	SeekBy(delta float64)
	SetVolume(volume int)
	State() transport.PlaybackState
	OnEnded(fn func(trackID string))
}

type GuessResult struct {
	Correct bool   `json:"correct"`
	Guess   string `json:"guess"`
	Answer  string `json:"answer"`
	TrackID string `json:"track_id"`
	Round   int    `json:"round"`
}

type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

type View struct {
	Session  string                  `json:"session"`
	State    State                   `json:"state"`
	PoolSize int                     `json:"pool_size"`
	Round    *round.Round            `json:"round,omitempty"`
	Guess    string                  `json:"guess"`
	Score    Score                   `json:"score"`
	Playback transport.PlaybackState `json:"playback"`
}

type Config struct {
	Fetcher   catalog.Fetcher
	Query     catalog.Query
	Transport Transport
	// Shuffle permutes the options of each round. Defaults to a clock
	// seeded shuffle.
	Shuffle shuffle.Func
	// ShufflePool also shuffles the pool once it is fetched.
	ShufflePool bool
	// Notify is called with the result of each guess, before the engine
	// advances. It must not call back into the engine.
	Notify func(GuessResult)
	// Retries is the number of extra fetch attempts when the catalog is
	// unavailable. Zero keeps the engine loading after the first failure.
	Retries   int
	RetryWait time.Duration
	// AutoAdvance skips to the next track when playback ends.
	AutoAdvance bool
	Debug       bool
}

type Engine struct {
	id          string
	fetcher     catalog.Fetcher
	query       catalog.Query
	transport   Transport
	shuffle     shuffle.Func
	shufflePool bool
	notify      func(GuessResult)
	retries     int
	retryWait   time.Duration
	debug       bool

	lock    sync.Mutex
	state   State
	started bool
	cancel  context.CancelFunc
	pool    catalog.Pool
	round   round.Round
	rounds  int
	guess   string
	score   Score
}

func New(cfg *Config) *Engine {
	s := cfg.Shuffle
	if s == nil {
		s = shuffle.New(0)
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = time.Second
	}
	e := &Engine{
		id:          ulid.Make().String(),
		fetcher:     cfg.Fetcher,
		query:       cfg.Query,
		transport:   cfg.Transport,
		shuffle:     s,
		shufflePool: cfg.ShufflePool,
		notify:      cfg.Notify,
		retries:     cfg.Retries,
		retryWait:   wait,
		debug:       cfg.Debug,
		state:       Loading,
	}
	if cfg.AutoAdvance && e.transport != nil {
		e.transport.OnEnded(func(trackID string) {
			go e.skipIfCurrent(trackID)
		})
	}
	return e
}

func (e *Engine) debugf(format string, args ...interface{}) {
	if !e.debug {
		return
	}
	log.Printf("quiz: session %s "+format, append([]interface{}{e.id}, args...)...)
}

// ID returns the session id.
func (e *Engine) ID() string {
	return e.id
}

// Start fetches the pool and sets up the first round. On failure the engine
// stays loading and the error is returned for the caller to report.
func (e *Engine) Start(ctx context.Context) error {
	e.lock.Lock()
	if e.state == Closed {
		e.lock.Unlock()
		return ErrClosed
	}
	if e.started {
		e.lock.Unlock()
		return ErrStarted
	}
	e.started = true
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.lock.Unlock()
	defer cancel()

	pool, err := e.fetch(ctx)

	e.lock.Lock()
	defer e.lock.Unlock()
	if e.state == Closed {
		// Torn down while fetching
		return ErrClosed
	}
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		log.Printf("quiz: session %s got an empty pool, still loading\n", e.id)
		return ErrEmptyPool
	}
	e.pool = pool
	if err := e.setTrack(0); err != nil {
		e.pool = nil
		return err
	}
	e.state = Ready
	log.Printf("quiz: session %s ready (%d tracks)\n", e.id, len(pool))
	return nil
}

func (e *Engine) fetch(ctx context.Context) (catalog.Pool, error) {
	var poolShuffle shuffle.Func
	if e.shufflePool {
		poolShuffle = e.shuffle
	}
	wait := e.retryWait
	for attempt := 0; ; attempt++ {
		pool, err := catalog.Fetch(ctx, e.fetcher, e.query, poolShuffle)
		if err == nil {
			return pool, nil
		}
		log.Printf("quiz: session %s couldn't fetch pool (attempt %d): %v\n", e.id, attempt+1, err)
		if errors.Is(err, catalog.ErrConfiguration) || attempt >= e.retries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// setTrack makes pool[i] the current track, derives its round and binds the
// transport. Must be called with the lock held.
func (e *Engine) setTrack(i int) error {
	track := e.pool[i]
	r, err := round.Derive(e.pool, track, e.shuffle, e.rounds+1)
	if err != nil {
		return fmt.Errorf("quiz: couldn't derive round: %w", err)
	}
	e.rounds++
	e.round = r
	e.guess = ""
	if e.transport != nil {
		if err := e.transport.Bind(track.ID); err != nil {
			log.Printf("quiz: session %s couldn't bind transport to %s: %v\n", e.id, track.ID, err)
		}
	}
	e.debugf("round %d track %s (%d options)", r.Number, track.ID, len(r.Options))
	return nil
}

func (e *Engine) ready() error {
	switch e.state {
	case Ready:
		return nil
	case Closed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// SubmitGuess evaluates the guess against the current round, ignoring case,
// and advances to the next track.
func (e *Engine) SubmitGuess(guess string) (GuessResult, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.ready(); err != nil {
		return GuessResult{}, err
	}
	return e.submit(guess)
}

// SubmitOption submits the n-th option of the current round, starting at 1.
func (e *Engine) SubmitOption(n int) (GuessResult, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.ready(); err != nil {
		return GuessResult{}, err
	}
	option, err := e.round.Option(n)
	if err != nil {
		return GuessResult{}, err
	}
	return e.submit(option)
}

// SetGuess stores the free text guess of the current round.
func (e *Engine) SetGuess(guess string) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	e.guess = guess
	return nil
}

// SubmitCurrentGuess submits the text stored with SetGuess.
func (e *Engine) SubmitCurrentGuess() (GuessResult, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.ready(); err != nil {
		return GuessResult{}, err
	}
	return e.submit(e.guess)
}

func (e *Engine) submit(guess string) (GuessResult, error) {
	result := GuessResult{
		Correct: e.round.Check(guess),
		Guess:   guess,
		Answer:  e.round.CorrectAnswer,
		Round:   e.round.Number,
	}
	if e.round.Track != nil {
		result.TrackID = e.round.Track.ID
	}
	e.score.Total++
	if result.Correct {
		e.score.Correct++
	}
	if e.notify != nil {
		e.notify(result)
	}
	if err := e.advance(); err != nil {
		return result, err
	}
	return result, nil
}

// Advance moves to the next track of the pool, wrapping around at the end.
func (e *Engine) Advance() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	return e.advance()
}

func (e *Engine) advance() error {
	i := e.pool.Index(e.round.Track.ID)
	next := (i + 1) % len(e.pool)
	return e.setTrack(next)
}

func (e *Engine) skipIfCurrent(trackID string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.state != Ready || trackID == "" || e.round.Track.ID != trackID {
		return
	}
	e.debugf("track %s ended, skipping", trackID)
	if err := e.advance(); err != nil {
		log.Printf("quiz: session %s couldn't skip: %v\n", e.id, err)
	}
}

func (e *Engine) Play() error {
	return e.command(func(t Transport) { t.Play() })
}

func (e *Engine) Pause() error {
	return e.command(func(t Transport) { t.Pause() })
}

func (e *Engine) SetVolume(volume int) error {
	return e.command(func(t Transport) { t.SetVolume(volume) })
}

func (e *Engine) Seek(seconds float64) error {
	return e.command(func(t Transport) { t.Seek(seconds) })
}

func (e *Engine) SeekBy(delta float64) error {
	return e.command(func(t Transport) { t.SeekBy(delta) })
}

func (e *Engine) command(fn func(Transport)) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if e.transport != nil {
		fn(e.transport)
	}
	return nil
}

// View returns a consistent snapshot of the engine.
func (e *Engine) View() View {
	e.lock.Lock()
	defer e.lock.Unlock()
	v := View{
		Session:  e.id,
		State:    e.state,
		PoolSize: len(e.pool),
		Guess:    e.guess,
		Score:    e.score,
	}
	if e.state == Ready {
		r := e.round
		r.Options = append([]string(nil), r.Options...)
		v.Round = &r
	}
	if e.transport != nil {
		v.Playback = e.transport.State()
	}
	return v
}

// Close cancels a pending fetch and unbinds the transport.
func (e *Engine) Close() {
	e.lock.Lock()
	if e.state == Closed {
		e.lock.Unlock()
		return
	}
	e.state = Closed
	if e.cancel != nil {
		e.cancel()
	}
	e.lock.Unlock()
	if e.transport != nil {
		e.transport.Unbind()
	}
	log.Printf("quiz: session %s closed\n", e.id)
}
