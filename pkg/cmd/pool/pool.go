package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/igolaizola/tunequiz/pkg/catalog"
	"github.com/igolaizola/tunequiz/pkg/shuffle"
	"github.com/igolaizola/tunequiz/pkg/youtube"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Debug      bool
	YouTubeKey string

	Keyword    string
	MaxResults int
	After      string
	Before     string
	Order      string

	Shuffle bool
	Seed    int64
	Output  string
	// Format is json, csv or yaml. Defaults to the output extension or json.
	Format string
}

type row struct {
	ID        string `csv:"id"`
	Title     string `csv:"title"`
	URL       string `csv:"url"`
	Thumbnail string `csv:"thumbnail"`
}

// Run fetches a pool and writes it to the configured output.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("pool: process started")
	defer log.Println("pool: process ended")

	client, err := youtube.New(ctx, cfg.YouTubeKey, cfg.Debug)
	if err != nil {
		return fmt.Errorf("pool: couldn't create youtube client: %w", err)
	}

	return export(ctx, cfg, client)
}

// export writes the pool once it has been fetched and encoded, so a failed
// fetch leaves no output file behind.
func export(ctx context.Context, cfg *Config, fetcher catalog.Fetcher) error {
	format, err := outputFormat(cfg.Format, cfg.Output)
	if err != nil {
		return err
	}
	cfg.Format = format

	if cfg.Output == "" {
		return run(ctx, cfg, fetcher, os.Stdout)
	}
	var buf bytes.Buffer
	if err := run(ctx, cfg, fetcher, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("pool: couldn't write output file: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg *Config, fetcher catalog.Fetcher, w io.Writer) error {
	query, err := catalog.ParseQuery(cfg.Keyword, cfg.MaxResults, cfg.After, cfg.Before, cfg.Order)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	var s shuffle.Func
	if cfg.Shuffle {
		s = shuffle.New(cfg.Seed)
	}

	start := time.Now()
	pool, err := catalog.Fetch(ctx, fetcher, query, s)
	if err != nil {
		return fmt.Errorf("pool: couldn't fetch pool: %w", err)
	}
	log.Printf("pool: fetched %d tracks in %s\n", len(pool), time.Since(start).Round(time.Millisecond))
	if pool == nil {
		pool = catalog.Pool{}
	}

	switch cfg.Format {
	case "csv":
		var rows []*row
		for _, t := range pool {
			rows = append(rows, &row{
				ID:        t.ID,
				Title:     t.Title,
				URL:       youtube.WatchURL(t.ID),
				Thumbnail: t.Thumbnails.Default,
			})
		}
		if err := gocsv.Marshal(rows, w); err != nil {
			return fmt.Errorf("pool: couldn't encode csv: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(pool); err != nil {
			return fmt.Errorf("pool: couldn't encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("pool: couldn't encode yaml: %w", err)
		}
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(pool); err != nil {
			return fmt.Errorf("pool: couldn't encode pool: %w", err)
		}
	}
	return nil
}

func outputFormat(format, output string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(output), ".")
	}
	switch format {
	case "", "json":
		return "json", nil
	case "yml", "yaml":
		return "yaml", nil
	case "csv":
		return "csv", nil
	default:
		return "", fmt.Errorf("pool: unsupported output format: %s", format)
	}
}
