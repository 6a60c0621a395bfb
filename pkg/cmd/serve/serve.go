package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/tunequiz/pkg/catalog"
	"github.com/igolaizola/tunequiz/pkg/ngrok"
	"github.com/igolaizola/tunequiz/pkg/shuffle"
	"github.com/igolaizola/tunequiz/pkg/stream"
	"github.com/igolaizola/tunequiz/pkg/youtube"
)

type Config struct {
	Debug bool

	Addr        string
	Credentials map[string]string
	Timeout     time.Duration
	YouTubeKey  string
	// Ngrok exposes the server through an ngrok http tunnel.
	Ngrok    bool
	NgrokBin string

	YTDLP   string
	FFmpeg  string
	Bitrate string
}

// Streamer is satisfied by *stream.Streamer.
type Streamer interface {
	Stream(ctx context.Context, url string) (io.ReadCloser, error)
}

// Serve starts the audio proxy server.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("serve: server started")
	defer log.Println("serve: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamer := stream.New(&stream.Config{
		YTDLP:   cfg.YTDLP,
		FFmpeg:  cfg.FFmpeg,
		Bitrate: cfg.Bitrate,
		Debug:   cfg.Debug,
	})

	var fetcher catalog.Fetcher
	if cfg.YouTubeKey != "" {
		yt, err := youtube.New(ctx, cfg.YouTubeKey, cfg.Debug)
		if err != nil {
			return fmt.Errorf("serve: couldn't create youtube client: %w", err)
		}
		fetcher = yt
	} else {
		log.Println("serve: youtube key is missing, pool endpoint disabled")
	}

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("serve: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("serve: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", host, port),
		Handler: NewHandler(&HandlerConfig{
			Streamer:    streamer,
			Fetcher:     fetcher,
			Credentials: cfg.Credentials,
			Timeout:     cfg.Timeout,
			Debug:       cfg.Debug,
		}),
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("serve: listening on %s\n", note)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("serve: couldn't start server: %v\n", err)
			cancel()
		}
	}()

	if cfg.Ngrok {
		tunnel, err := ngrok.Start(ctx, strconv.Itoa(port), &ngrok.Config{
			Bin:   cfg.NgrokBin,
			Debug: cfg.Debug,
		})
		if err != nil {
			cancel()
			_ = server.Close()
			return fmt.Errorf("serve: %w", err)
		}
		defer tunnel.Close()
		log.Printf("serve: public url %s\n", tunnel.URL)
	}

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: couldn't shutdown server: %w", err)
	}
	return nil
}

type HandlerConfig struct {
	Streamer    Streamer
	Fetcher     catalog.Fetcher
	Credentials map[string]string
	// Timeout applies to api requests, audio streams are not limited.
	Timeout time.Duration
	Debug   bool
}

// NewHandler returns the router of the proxy server.
func NewHandler(cfg *HandlerConfig) http.Handler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	// Create router
	mux := chi.NewRouter()

	// Add middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	if len(cfg.Credentials) > 0 {
		mux.Use(middleware.BasicAuth("tunequiz", cfg.Credentials))
	}
	if cfg.Debug {
		mux.Use(middleware.Logger)
	}

	mux.Get("/audio", func(w http.ResponseWriter, r *http.Request) {
		u := r.URL.Query().Get("url")
		if u == "" {
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		if parsed, err := url.Parse(u); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			http.Error(w, fmt.Sprintf("invalid url: %s", u), http.StatusBadRequest)
			return
		}
		rc, err := cfg.Streamer.Stream(r.Context(), u)
		if err != nil {
			log.Println("serve: couldn't stream audio:", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "audio/mpeg")
		n, err := io.Copy(w, rc)
		if err != nil {
			debug("serve: stream of %s interrupted after %d bytes: %v", u, n, err)
			return
		}
		debug("serve: streamed %d bytes of %s", n, u)
	})

	mux.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})

		r.Get("/api/pool", func(w http.ResponseWriter, r *http.Request) {
			values := r.URL.Query()
			param := func(name, def string) string {
				if _, ok := values[name]; ok {
					return values.Get(name)
				}
				return def
			}

			size := catalog.MaxResults
			if v := values.Get("max"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					http.Error(w, fmt.Sprintf("invalid max: %s", v), http.StatusBadRequest)
					return
				}
				size = n
			}
			query, err := catalog.ParseQuery(param("q", catalog.DefaultKeyword), size,
				param("after", catalog.DefaultAfter), param("before", catalog.DefaultBefore),
				param("order", catalog.DefaultOrder))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			var s shuffle.Func
			if v := values.Get("shuffle"); v != "" {
				ok, err := strconv.ParseBool(v)
				if err != nil {
					http.Error(w, fmt.Sprintf("invalid shuffle: %s", v), http.StatusBadRequest)
					return
				}
				if ok {
					var seed int64
					if v := values.Get("seed"); v != "" {
						seed, err = strconv.ParseInt(v, 10, 64)
						if err != nil {
							http.Error(w, fmt.Sprintf("invalid seed: %s", v), http.StatusBadRequest)
							return
						}
					}
					s = shuffle.New(seed)
				}
			}

			pool, err := catalog.Fetch(r.Context(), cfg.Fetcher, query, s)
			if err != nil {
				log.Println("serve: couldn't fetch pool:", err)
				http.Error(w, fmt.Sprintf("couldn't fetch pool: %v", err), http.StatusInternalServerError)
				return
			}
			if pool == nil {
				pool = catalog.Pool{}
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(pool); err != nil {
				log.Println("serve: couldn't encode pool:", err)
				http.Error(w, fmt.Sprintf("couldn't encode pool: %v", err), http.StatusInternalServerError)
				return
			}
		})
	})
	return mux
}
