package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"companion/app/api"
	"companion/app/config"
	"companion/app/service/completion"
	"companion/app/service/gateway"
	"companion/app/service/ratelimit"
	"companion/app/service/summary"
	"companion/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer func() {
		if err := di.Shutdown(); err != nil {
			slog.Error("Shutdown failed", slog.Any("error", err))
		}
	}()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, ratelimit.New)
	do.Provide(di, completion.New)
	do.Provide(di, summary.New)
	do.Provide(di, gateway.New)
	do.Provide(di, api.New)

	limiter := do.MustInvoke[*ratelimit.Service](di)
	if err = limiter.Ping(appCtx); err != nil {
		log.Fatalf("rate limiter unavailable: %v", err)
	}

	server := do.MustInvoke[*api.Server](di)

	slog.Info("Service started",
		slog.String("rate_limiter", string(limiter.Driver())),
		slog.String("model", cfg.Provider.Model),
	)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go limiter.RunCleanupLoop(appCtx, cfg.RateLimit.CleanupInterval)

	if err = server.Run(appCtx); err != nil {
		slog.Error("HTTP server stopped", slog.Any("error", err))
	}
}
