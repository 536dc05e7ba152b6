package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ysocial/internal/config"
)

func main() {
	// setting up config
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(&cli{cfg: cfg})
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
