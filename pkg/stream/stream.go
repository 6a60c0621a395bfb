package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const DefaultBitrate = "192k"

// waitDelay bounds the wait for the output pipes once a process was killed.
const waitDelay = 2 * time.Second

// Streamer resolves a track url to mp3 bytes, downloading the best audio
// with yt-dlp and transcoding it with ffmpeg.
type Streamer struct {
	ytdlp   string
	ffmpeg  string
	bitrate string
	debug   bool
}

type Config struct {
	YTDLP   string
	FFmpeg  string
	Bitrate string
	Debug   bool
}

func New(cfg *Config) *Streamer {
	s := &Streamer{
		ytdlp:   cfg.YTDLP,
		ffmpeg:  cfg.FFmpeg,
		bitrate: cfg.Bitrate,
		debug:   cfg.Debug,
	}
	if s.ytdlp == "" {
		s.ytdlp = "yt-dlp"
	}
	if s.ffmpeg == "" {
		s.ffmpeg = "ffmpeg"
	}
	if s.bitrate == "" {
		s.bitrate = DefaultBitrate
	}
	return s
}

// Stream starts the download and returns the mp3 output once the first bytes
// are available. Closing the returned reader stops both processes.
func (s *Streamer) Stream(ctx context.Context, url string) (io.ReadCloser, error) {
	if url == "" {
		return nil, errors.New("stream: empty url")
	}
	ctx, cancel := context.WithCancel(ctx)

	dl := command(ctx, s.ytdlp, "--quiet", "--no-warnings", "--no-playlist",
		"-f", "bestaudio", "-o", "-", url)
	conv := command(ctx, s.ffmpeg, "-hide_banner", "-loglevel", "error",
		"-i", "pipe:0", "-vn", "-f", "mp3", "-b:a", s.bitrate, "pipe:1")

	var dlErr, convErr bytes.Buffer
	dl.Stderr = &dlErr
	conv.Stderr = &convErr

	pipe, err := dl.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream: couldn't create pipe: %w", err)
	}
	conv.Stdin = pipe
	out, err := conv.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream: couldn't create pipe: %w", err)
	}

	if err := dl.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("stream: couldn't start yt-dlp: %w", err)
	}
	if err := conv.Start(); err != nil {
		cancel()
		_ = dl.Wait()
		return nil, fmt.Errorf("stream: couldn't start ffmpeg: %w", err)
	}
	// ffmpeg owns the read end now, so yt-dlp stops if ffmpeg exits
	_ = pipe.Close()
	if s.debug {
		log.Printf("stream: %s | %s\n", strings.Join(dl.Args, " "), strings.Join(conv.Args, " "))
	}

	r := &reader{
		Reader: bufio.NewReaderSize(out, 64*1024),
		cancel: cancel,
		dl:     dl,
		conv:   conv,
	}
	// Wait for the first bytes so that failures are reported to the caller
	if _, err := r.Peek(1); err != nil {
		convWait := conv.Wait()
		dlWait := dl.Wait()
		ctxErr := ctx.Err()
		cancel()
		if ctxErr != nil {
			return nil, fmt.Errorf("stream: %w", ctxErr)
		}
		// A failed ffmpeg also breaks the yt-dlp pipe, so check it first
		if convWait != nil {
			return nil, fmt.Errorf("stream: ffmpeg failed: %w: %s", convWait, strings.TrimSpace(convErr.String()))
		}
		if dlWait != nil {
			return nil, fmt.Errorf("stream: yt-dlp failed: %w: %s", dlWait, strings.TrimSpace(dlErr.String()))
		}
		return nil, fmt.Errorf("stream: no audio for %s: %s", url, strings.TrimSpace(dlErr.String()+convErr.String()))
	}
	return r, nil
}

// command creates a process that is killed along with its children when the
// context is done.
func command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	killGroup(cmd)
	cmd.WaitDelay = waitDelay
	return cmd
}

type reader struct {
	*bufio.Reader
	cancel context.CancelFunc
	dl     *exec.Cmd
	conv   *exec.Cmd

	lock   sync.Mutex
	closed bool
}

func (r *reader) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	// Exit errors are expected after cancellation
	_ = r.conv.Wait()
	_ = r.dl.Wait()
	return nil
}
