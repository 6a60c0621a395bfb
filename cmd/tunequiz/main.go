package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/igolaizola/tunequiz/pkg/cli"
)

// Build flags
var version = ""
var commit = ""
var date = ""

func main() {
	// Create signal based context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Optional .env with TUNEQUIZ_* variables
	if err := cli.LoadEnv(); err != nil {
		log.Fatal(err)
	}

	// Launch command
	cmd := cli.New(version, commit, date)
	if err := cmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
