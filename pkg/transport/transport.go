package transport

import (
	"log"
	"sync"
)

// DefaultVolume is the initial volume of a controller.
const DefaultVolume = 50

// Handle is a backend media handle bound to a single track.
type Handle interface {
	Play()
	Pause()
	Seek(seconds float64)
	SetVolume(volume int)
	Close() error
}

// Events are the callbacks a backend fires for a handle. They may be called
// from any goroutine.
type Events struct {
	Progress func(played, loaded float64)
	Duration func(seconds float64)
	Playing  func(playing bool)
	Ended    func()
}

// Backend opens handles for track ids. Open must return without waiting for
// media to load.
type Backend interface {
	Open(trackID string, events Events) (Handle, error)
}

type PlaybackState struct {
	TrackID  string  `json:"track_id"`
	Playing  bool    `json:"playing"`
	Volume   int     `json:"volume"`
	Played   float64 `json:"played"`
	Loaded   float64 `json:"loaded"`
	Duration float64 `json:"duration"`
}

// Progress returns the played fraction, 0 when the duration is unknown.
func (s PlaybackState) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return s.Played / s.Duration
}

type Controller struct {
	backend Backend
	debug   bool

	lock        sync.Mutex
	handle      Handle
	generation  uint64
	state       PlaybackState
	subscribers map[int]func(PlaybackState)
	nextSub     int
	onEnded     func(trackID string)
}

func NewController(backend Backend, debug bool) *Controller {
	return &Controller{
		backend:     backend,
		debug:       debug,
		state:       PlaybackState{Volume: DefaultVolume},
		subscribers: map[int]func(PlaybackState){},
	}
}

func (c *Controller) debugf(format string, args ...interface{}) {
	if !c.debug {
		return
	}
	log.Printf("transport: "+format, args...)
}

// OnEnded sets a hook called with the id of the bound track when it finishes
// playing.
func (c *Controller) OnEnded(fn func(trackID string)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onEnded = fn
}

// Bind replaces the current handle with a new one for the track. Events
// from previous handles are discarded from here on.
func (c *Controller) Bind(trackID string) error {
	c.lock.Lock()
	c.closeHandle()
	c.generation++
	gen := c.generation
	c.state = PlaybackState{TrackID: trackID, Volume: c.state.Volume}
	state := c.state
	c.lock.Unlock()
	c.notify(state)

	if c.backend == nil {
		return nil
	}
	h, err := c.backend.Open(trackID, c.events(gen))
	if err != nil {
		return err
	}

	c.lock.Lock()
	if gen != c.generation {
		// Rebound or unbound while opening
		c.lock.Unlock()
		_ = h.Close()
		return nil
	}
	c.handle = h
	// Volume may have changed while opening
	h.SetVolume(c.state.Volume)
	c.lock.Unlock()
	c.debugf("bound %s", trackID)
	return nil
}

// Unbind closes the current handle.
func (c *Controller) Unbind() {
	c.lock.Lock()
	c.closeHandle()
	c.generation++
	c.state = PlaybackState{Volume: c.state.Volume}
	state := c.state
	c.lock.Unlock()
	c.notify(state)
}

func (c *Controller) closeHandle() {
	if c.handle == nil {
		return
	}
	if err := c.handle.Close(); err != nil {
		log.Printf("transport: couldn't close handle for %s: %v\n", c.state.TrackID, err)
	}
	c.handle = nil
}

func (c *Controller) Play() {
	c.command("play", func(h Handle, s *PlaybackState) {
		h.Play()
		s.Playing = true
	})
}

func (c *Controller) Pause() {
	c.command("pause", func(h Handle, s *PlaybackState) {
		h.Pause()
		s.Playing = false
	})
}

// Seek moves the playback position. The played position is updated by the
// next progress event.
func (c *Controller) Seek(seconds float64) {
	c.command("seek", func(h Handle, s *PlaybackState) {
		h.Seek(clampSeek(seconds, s.Duration))
	})
}

// SeekBy seeks relative to the last reported position.
func (c *Controller) SeekBy(delta float64) {
	c.command("seek", func(h Handle, s *PlaybackState) {
		h.Seek(clampSeek(s.Played+delta, s.Duration))
	})
}

func clampSeek(seconds, duration float64) float64 {
	if seconds < 0 {
		return 0
	}
	if duration > 0 && seconds > duration {
		return duration
	}
	return seconds
}

// SetVolume clamps the volume to 0..100 and applies it optimistically.
func (c *Controller) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	c.lock.Lock()
	c.state.Volume = volume
	h := c.handle
	state := c.state
	c.lock.Unlock()
	if h != nil {
		h.SetVolume(volume)
	}
	c.notify(state)
}

func (c *Controller) command(name string, fn func(Handle, *PlaybackState)) {
	c.lock.Lock()
	if c.handle == nil {
		c.lock.Unlock()
		c.debugf("%s ignored, no track bound", name)
		return
	}
	fn(c.handle, &c.state)
	state := c.state
	c.lock.Unlock()
	c.notify(state)
}

// State returns a copy of the playback state.
func (c *Controller) State() PlaybackState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Subscribe registers a function called on every state change.
func (c *Controller) Subscribe(fn func(PlaybackState)) (unsubscribe func()) {
	c.lock.Lock()
	defer c.lock.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.lock.Lock()
		defer c.lock.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Controller) notify(state PlaybackState) {
	c.lock.Lock()
	subs := make([]func(PlaybackState), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.lock.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}

func (c *Controller) events(gen uint64) Events {
	update := func(fn func(*PlaybackState)) {
		c.lock.Lock()
		if gen != c.generation {
			c.lock.Unlock()
			return
		}
		fn(&c.state)
		state := c.state
		c.lock.Unlock()
		c.notify(state)
	}
	return Events{
		Progress: func(played, loaded float64) {
			update(func(s *PlaybackState) {
				if played < 0 {
					played = 0
				}
				if s.Duration > 0 && played > s.Duration {
					played = s.Duration
				}
				s.Played = played
				s.Loaded = loaded
			})
		},
		Duration: func(seconds float64) {
			update(func(s *PlaybackState) {
				if seconds < 0 {
					seconds = 0
				}
				s.Duration = seconds
				if seconds > 0 && s.Played > seconds {
					s.Played = seconds
				}
			})
		},
		Playing: func(playing bool) {
			update(func(s *PlaybackState) {
				s.Playing = playing
			})
		},
		Ended: func() {
			var trackID string
			var ended bool
			update(func(s *PlaybackState) {
				s.Playing = false
				trackID = s.TrackID
				ended = true
			})
			if !ended {
				return
			}
			c.lock.Lock()
			fn := c.onEnded
			c.lock.Unlock()
			if fn != nil {
				fn(trackID)
			}
		},
	}
}
