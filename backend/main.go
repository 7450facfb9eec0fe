package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"rynx/backend/global"
	"rynx/backend/initialize"
	"rynx/backend/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	app, err := initialize.Build(*configPath)
	if err != nil {
		global.Logger.Fatal().Err(err).Msg("initialize failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := app.Cfg.HTTP.Addr()
	global.Logger.Info().Str("addr", addr).Msg("backend listening")
	if err := server.Run(ctx, addr, app.Router); err != nil {
		global.Logger.Error().Err(err).Msg("server stopped")
	}
}
