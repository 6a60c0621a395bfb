package play

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/igolaizola/tunequiz/pkg/catalog"
	"github.com/igolaizola/tunequiz/pkg/player"
	"github.com/igolaizola/tunequiz/pkg/quiz"
	"github.com/igolaizola/tunequiz/pkg/shuffle"
	"github.com/igolaizola/tunequiz/pkg/stream"
	"github.com/igolaizola/tunequiz/pkg/transport"
	"github.com/igolaizola/tunequiz/pkg/youtube"
)

type Config struct {
	Debug      bool
	YouTubeKey string

	Keyword    string
	MaxResults int
	After      string
	Before     string
	Order      string

	ShufflePool bool
	Seed        int64
	Retries     int
	RetryWait   time.Duration
	AutoAdvance bool
	Volume      int

	// Proxy is the base url of a tunequiz server, audio is streamed locally
	// when empty.
	Proxy   string
	YTDLP   string
	FFmpeg  string
	Bitrate string
}

// Run plays the game on the terminal until the user quits or the context
// is done.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("play: game started")
	defer log.Println("play: game ended")

	query, err := catalog.ParseQuery(cfg.Keyword, cfg.MaxResults, cfg.After, cfg.Before, cfg.Order)
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}

	// A missing key keeps the game loading, as any other catalog failure
	var fetcher catalog.Fetcher
	client, err := youtube.New(ctx, cfg.YouTubeKey, cfg.Debug)
	if err != nil {
		log.Println("play:", err)
	} else {
		fetcher = client
	}

	if err := player.Initialize(); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	defer player.Terminate()

	var source player.Source
	if cfg.Proxy != "" {
		source = player.ProxySource(&http.Client{}, cfg.Proxy)
	} else {
		source = player.StreamSource(stream.New(&stream.Config{
			YTDLP:   cfg.YTDLP,
			FFmpeg:  cfg.FFmpeg,
			Bitrate: cfg.Bitrate,
			Debug:   cfg.Debug,
		}))
	}
	backend := player.New(&player.Config{
		Source: source,
		Debug:  cfg.Debug,
	})
	controller := transport.NewController(backend, cfg.Debug)
	controller.SetVolume(cfg.Volume)

	u := newUI(os.Stdout)
	engine := quiz.New(&quiz.Config{
		Fetcher:     fetcher,
		Query:       query,
		Transport:   controller,
		Shuffle:     shuffle.New(cfg.Seed),
		ShufflePool: cfg.ShufflePool,
		Notify:      u.notify,
		Retries:     cfg.Retries,
		RetryWait:   cfg.RetryWait,
		AutoAdvance: cfg.AutoAdvance,
		Debug:       cfg.Debug,
	})
	defer engine.Close()
	u.engine = engine
	unsubscribe := controller.Subscribe(u.playback)
	defer unsubscribe()

	return u.run(ctx, os.Stdin)
}
