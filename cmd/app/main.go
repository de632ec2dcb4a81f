package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"rbot_go/internal/app"
	"rbot_go/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	pprofAddr := flag.String("pprof", "localhost:6060", "pprof listen address; empty disables it")
	flag.Parse()

	// 1. Configuration
	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("path", *configPath), slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap(cfg)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 4. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("Stopped with error", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
