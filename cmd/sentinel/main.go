package main

import (
	"context"
	"log"

	"github.com/fidlabs/piece-sentinel/internal/lifecycle"
)

func main() {
	ctx := context.Background()

	app, err := lifecycle.New(ctx)
	if err != nil {
		log.Fatalf("piece-sentinel: failed to start: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("piece-sentinel: exited with error: %v", err)
	}
}
