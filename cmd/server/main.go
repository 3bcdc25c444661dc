package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy6609/roomchat/internal/chat"
	"github.com/andy6609/roomchat/internal/config"
	"github.com/andy6609/roomchat/internal/transport/ws"
)

func main() {
	// A missing .env file is normal; the process environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Environ())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	flag.StringVar(&cfg.ChatAddr, "addr", cfg.ChatAddr, "chat listen address")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "metrics and websocket listen address (empty disables)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(2)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	srv := chat.NewServer(cfg.ChatOptions(), logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/ws", ws.NewHandler(srv, ws.Options{
			AllowedOrigins: cfg.AllowedOrigins(),
			MaxLineLength:  cfg.MaxLineLength,
			WriteTimeout:   cfg.WriteTimeout,
		}, logger))

		httpSrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server started", "addr", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig.String(), "sessions", srv.SessionCount())

	// Chat sessions first: upgraded websocket connections are not tracked
	// by http.Server.Shutdown.
	srv.Stop()

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
}
