package play

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/igolaizola/tunequiz/pkg/quiz"
	"github.com/igolaizola/tunequiz/pkg/transport"
	"github.com/igolaizola/tunequiz/pkg/youtube"
	"github.com/pkg/browser"
)

const (
	volumeStep = 10
	seekStep   = 10
)

// ui is a line oriented front end for the engine.
type ui struct {
	engine *quiz.Engine
	out    io.Writer
	open   func(url string) error

	lock     sync.Mutex
	shown    int
	track    string
	loaded   string
	answered string
}

func newUI(out io.Writer) *ui {
	return &ui{out: out, open: browser.OpenURL}
}

func (u *ui) printf(format string, args ...interface{}) {
	u.lock.Lock()
	defer u.lock.Unlock()
	fmt.Fprintf(u.out, format, args...)
}

func (u *ui) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	started := make(chan error, 1)
	go func() {
		started <- u.engine.Start(ctx)
	}()
	u.printf("Loading tracks...\n")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-started:
			started = nil
			if err != nil {
				if ctx.Err() == nil {
					u.printf("Couldn't load tracks: %v\n", err)
				}
				continue
			}
			u.help()
			u.printRound(u.engine.View())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if u.handle(line) {
				return nil
			}
		}
	}
}

// handle executes a command line and reports whether the user quits.
func (u *ui) handle(line string) bool {
	line = strings.TrimSpace(line)
	var err error
	switch line {
	case "":
		return false
	case "q", "quit":
		return true
	case "h", "?", "help":
		u.help()
		return false
	case "p":
		if u.engine.View().Playback.Playing {
			err = u.engine.Pause()
		} else {
			err = u.engine.Play()
		}
	case "+":
		err = u.engine.SetVolume(u.engine.View().Playback.Volume + volumeStep)
	case "-":
		err = u.engine.SetVolume(u.engine.View().Playback.Volume - volumeStep)
	case ">":
		err = u.engine.SeekBy(seekStep)
	case "<":
		err = u.engine.SeekBy(-seekStep)
	case "n":
		err = u.engine.Advance()
	case "i":
		u.status(u.engine.View())
		return false
	case "o":
		u.openAnswered()
		return false
	default:
		if n, convErr := strconv.Atoi(line); convErr == nil {
			_, err = u.engine.SubmitOption(n)
		} else {
			// A leading = forces a free text guess
			_, err = u.engine.SubmitGuess(strings.TrimPrefix(line, "="))
		}
	}
	switch {
	case errors.Is(err, quiz.ErrNotReady):
		u.printf("Still loading tracks\n")
	case err != nil:
		u.printf("Error: %v\n", err)
	default:
		u.printRound(u.engine.View())
	}
	return false
}

func (u *ui) help() {
	u.printf("Commands: p play/pause, +/- volume, >/< seek, n skip, i info, " +
		"o open the last answer, 1-4 pick an option, any other text to guess the title (=text to force it), q quit\n")
}

// openAnswered opens the watch page of the last answered track.
func (u *ui) openAnswered() {
	u.lock.Lock()
	id := u.answered
	u.lock.Unlock()
	if id == "" {
		u.printf("Nothing answered yet\n")
		return
	}
	url := youtube.WatchURL(id)
	if err := u.open(url); err != nil {
		u.printf("Couldn't open %s: %v\n", url, err)
	}
}

// notify is called by the engine with the lock held, so it only prints.
func (u *ui) notify(r quiz.GuessResult) {
	u.lock.Lock()
	u.answered = r.TrackID
	u.lock.Unlock()
	if r.Correct {
		u.printf("Correct!\n")
		return
	}
	u.printf("Incorrect, it was %q\n", r.Answer)
}

// printRound prints the options of a round the first time it is seen.
func (u *ui) printRound(v quiz.View) {
	u.lock.Lock()
	defer u.lock.Unlock()
	if v.Round == nil || v.Round.Number <= u.shown {
		return
	}
	u.shown = v.Round.Number
	fmt.Fprintf(u.out, "\nRound %d (score %d/%d)\n", v.Round.Number, v.Score.Correct, v.Score.Total)
	for i, o := range v.Round.Options {
		fmt.Fprintf(u.out, "  %d) %s\n", i+1, o)
	}
}

func (u *ui) status(v quiz.View) {
	if v.State != quiz.Ready {
		u.printf("Session %s is %s\n", v.Session, v.State)
		return
	}
	p := v.Playback
	state := "paused"
	if p.Playing {
		state = "playing"
	}
	duration := "?"
	if p.Duration > 0 {
		duration = formatTime(p.Duration)
	}
	u.printf("Round %d, score %d/%d, %s %s/%s, volume %d\n", v.Round.Number, v.Score.Correct, v.Score.Total,
		state, formatTime(p.Played), duration, p.Volume)
}

// playback receives controller updates. It may run with the engine lock
// held, so the engine is only queried from a new goroutine.
func (u *ui) playback(s transport.PlaybackState) {
	u.lock.Lock()
	defer u.lock.Unlock()
	if s.TrackID != u.track {
		u.track = s.TrackID
		if s.TrackID != "" {
			// Rounds advanced by the engine itself are printed here
			go func() {
				u.printRound(u.engine.View())
			}()
		}
	}
	if s.TrackID != "" && s.Duration > 0 && s.TrackID != u.loaded {
		u.loaded = s.TrackID
		fmt.Fprintf(u.out, "Track loaded (%s), press p to play\n", formatTime(s.Duration))
	}
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
