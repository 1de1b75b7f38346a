package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hindsight/client/internal/app"
	"hindsight/client/internal/config"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}

	flag.StringVar(&settings.URL, "url", settings.URL, "game server websocket url")
	flag.StringVar(&settings.User, "user", settings.User, "user name")
	flag.StringVar(&settings.Auth, "auth", settings.Auth, "auth token")
	flag.StringVar(&settings.Game, "game", settings.Game, "game id")
	flag.BoolVar(&settings.NotifyPending, "notify-pending", settings.NotifyPending, "announce commands that arrive while reviewing history")
	flag.Parse()
	if err := settings.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{Settings: settings}); err != nil {
		log.Fatalf("%v", err)
	}
}
