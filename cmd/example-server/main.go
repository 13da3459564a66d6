// Command example-server é um upstream de mentira para exercitar o gateway
// localmente: responde às rotas da API de pombos com dados em memória.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"tauben-gateway/internal/logger"
)

type serverConfig struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3000"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"debug"`
}

func main() {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		slog.Error("config error", logger.Error(err))
		os.Exit(1)
	}

	log, syncLog, err := logger.New(logger.Options{Level: cfg.LogLevel, Service: "example-server"})
	if err != nil {
		slog.Error("logger error", logger.Error(err))
		os.Exit(1)
	}
	defer func() { _ = syncLog() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newAPI(newCatalog(), log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", slog.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", logger.Error(err))
		os.Exit(1)
	}
}
