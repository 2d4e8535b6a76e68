package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	app, err := NewApp()
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}

	// Set DEV_MODE=1 for verbose per-fetch logging
	app.devMode = os.Getenv("DEV_MODE") == "1"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.startup(ctx); err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	log.Printf("timeglobe %s serving on %s", AppVersion, app.ServerURL())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.Shutdown(shutdownCtx)
}
