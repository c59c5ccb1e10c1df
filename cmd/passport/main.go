package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"passport/internal/app"
	"passport/internal/app/interceptors"
	"passport/internal/config"
	"passport/internal/lib/logger/sl"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting application...",
		slog.String("env", cfg.Env),
		slog.String("http", cfg.HTTP.Address),
		slog.Int("grpc_port", cfg.GRPC.Port))

	application, err := app.New(context.Background(), log, cfg)
	if err != nil {
		log.Error("failed to init application", sl.Err(err))
		os.Exit(1)
	}
	defer application.Close()

	go application.HTTPSrv.MustRun()
	go application.GRPCSrv.MustRun()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	sign := <-stop
	if err := application.HTTPSrv.Stop(context.Background()); err != nil {
		log.Error("http shutdown failed", sl.Err(err))
	}
	application.GRPCSrv.Stop()
	log.Info("application stopped.", slog.String("signal", sign.String()))
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case interceptors.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case interceptors.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
