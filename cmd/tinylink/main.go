package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/vadimbarashkov/tinylink/internal/app"
	"github.com/vadimbarashkov/tinylink/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The .env file is optional, environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
