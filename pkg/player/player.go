package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/igolaizola/tunequiz/pkg/transport"
)

const (
	// DefaultInterval is how often progress is reported while playing.
	DefaultInterval = 250 * time.Millisecond

	// 16-bit little endian stereo, as produced by go-mp3
	bytesPerFrame   = 4
	framesPerBuffer = 1024
)

// PCM is decoded 16-bit little endian stereo audio.
type PCM interface {
	io.ReadSeeker
	SampleRate() int
	// Length is the size in bytes, or a negative value when unknown.
	Length() int64
}

// Output is an audio device accepting interleaved stereo samples.
type Output interface {
	Open(sampleRate int) error
	Write(samples []int16) error
	Close() error
}

// Source returns the mp3 bytes of a track.
type Source func(ctx context.Context, trackID string) (io.ReadCloser, error)

type Config struct {
	Source Source
	// Output creates the device for each track. Defaults to portaudio.
	Output func() Output
	// Decode defaults to DecodeMP3.
	Decode   func(r io.ReadSeeker) (PCM, error)
	Interval time.Duration
	Debug    bool
}

// Backend plays tracks on an audio output. It implements transport.Backend.
type Backend struct {
	source   Source
	output   func() Output
	decode   func(r io.ReadSeeker) (PCM, error)
	interval time.Duration
	debug    bool
}

func New(cfg *Config) *Backend {
	b := &Backend{
		source:   cfg.Source,
		output:   cfg.Output,
		decode:   cfg.Decode,
		interval: cfg.Interval,
		debug:    cfg.Debug,
	}
	if b.output == nil {
		b.output = NewPortaudioOutput
	}
	if b.decode == nil {
		b.decode = DecodeMP3
	}
	if b.interval <= 0 {
		b.interval = DefaultInterval
	}
	return b
}

func DecodeMP3(r io.ReadSeeker) (PCM, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("player: couldn't decode mp3: %w", err)
	}
	return d, nil
}

// Open starts loading the track in the background and returns a paused
// handle.
func (b *Backend) Open(trackID string, events transport.Events) (transport.Handle, error) {
	if b.source == nil {
		return nil, errors.New("player: no audio source")
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		id:      trackID,
		backend: b,
		events:  events,
		cancel:  cancel,
		done:    make(chan struct{}),
		volume:  transport.DefaultVolume,
		seekTo:  -1,
	}
	h.cond = sync.NewCond(&h.lock)
	go h.run(ctx)
	return h, nil
}

type handle struct {
	id      string
	backend *Backend
	events  transport.Events
	cancel  context.CancelFunc
	done    chan struct{}

	lock    sync.Mutex
	cond    *sync.Cond
	playing bool
	ended   bool
	closed  bool
	volume  int
	seekTo  float64
}

func (h *handle) debugf(format string, args ...interface{}) {
	if !h.backend.debug {
		return
	}
	log.Printf("player: %s "+format, append([]interface{}{h.id}, args...)...)
}

func (h *handle) Play() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.ended {
		// Replay from the start
		h.ended = false
		h.seekTo = 0
	}
	h.playing = true
	h.cond.Broadcast()
}

func (h *handle) Pause() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.playing = false
}

func (h *handle) Seek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	h.seekTo = seconds
	h.ended = false
	h.cond.Broadcast()
}

func (h *handle) SetVolume(volume int) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.volume = volume
}

// Close stops loading and playback. It doesn't wait for the goroutine to
// exit.
func (h *handle) Close() error {
	h.cancel()
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	h.cond.Broadcast()
	return nil
}

func (h *handle) load(ctx context.Context) (PCM, error) {
	rc, err := h.backend.source(ctx, h.id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("player: couldn't read audio: %w", err)
	}
	h.debugf("loaded %d bytes", len(data))
	return h.backend.decode(bytes.NewReader(data))
}

func (h *handle) run(ctx context.Context) {
	defer close(h.done)

	pcm, err := h.load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("player: couldn't load %s: %v\n", h.id, err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	rate := pcm.SampleRate()
	if rate <= 0 {
		log.Printf("player: invalid sample rate %d for %s\n", rate, h.id)
		return
	}
	bytesPerSecond := float64(rate * bytesPerFrame)
	length := pcm.Length()
	var duration float64
	if length > 0 {
		duration = float64(length) / bytesPerSecond
	}
	h.events.Duration(duration)
	h.events.Progress(0, duration)

	out := h.backend.output()
	if err := out.Open(rate); err != nil {
		log.Printf("player: couldn't open output for %s: %v\n", h.id, err)
		return
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Printf("player: couldn't close output for %s: %v\n", h.id, err)
		}
	}()

	buf := make([]byte, framesPerBuffer*bytesPerFrame)
	samples := make([]int16, len(buf)/2)
	var pos int64
	var last time.Time
	report := func() {
		h.events.Progress(float64(pos)/bytesPerSecond, duration)
		last = time.Now()
	}

	for {
		h.lock.Lock()
		for !h.closed && !h.playing && h.seekTo < 0 {
			h.cond.Wait()
		}
		if h.closed {
			h.lock.Unlock()
			return
		}
		seek := h.seekTo
		h.seekTo = -1
		playing := h.playing
		volume := h.volume
		h.lock.Unlock()

		if seek >= 0 {
			offset := int64(seek*bytesPerSecond) / bytesPerFrame * bytesPerFrame
			if length > 0 && offset > length {
				offset = length
			}
			if _, err := pcm.Seek(offset, io.SeekStart); err != nil {
				log.Printf("player: couldn't seek %s: %v\n", h.id, err)
			} else {
				pos = offset
			}
			report()
		}
		if !playing {
			continue
		}

		n, err := io.ReadFull(pcm, buf)
		if n > 0 {
			k := n / 2
			for i := 0; i < k; i++ {
				s := int16(binary.LittleEndian.Uint16(buf[i*2:]))
				samples[i] = int16(int(s) * volume / 100)
			}
			if err := out.Write(samples[:k]); err != nil {
				// Underflows after a pause are expected
				h.debugf("write: %v", err)
			}
			pos += int64(n)
			if time.Since(last) >= h.backend.interval {
				report()
			}
		}
		switch {
		case err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF):
			report()
			h.lock.Lock()
			if h.seekTo >= 0 || h.closed {
				h.lock.Unlock()
				continue
			}
			h.playing = false
			h.ended = true
			h.lock.Unlock()
			h.debugf("ended")
			h.events.Ended()
		case err != nil:
			log.Printf("player: couldn't decode %s: %v\n", h.id, err)
			return
		}
	}
}
