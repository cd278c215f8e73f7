// Command devserver serves the API over plain HTTP for local development and
// exposes Prometheus metrics at /metrics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"property-agent/internal/bootstrap"
	"property-agent/internal/observability"
	"property-agent/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.Setup(os.Stdout, envString("LOG_LEVEL", "debug"))
	addr := envString("DEV_ADDR", ":8080")
	cfg := bootstrap.Config{
		StateTable:  mustEnv("STATE_TABLE"),
		ParamPrefix: mustEnv("PARAM_PREFIX"),
		VectorURL:   mustEnv("VECTOR_URL"),
		MailFrom:    mustEnv("MAIL_FROM"),
		Limits: usecase.ChatLimits{
			MaxQuestionLength: envInt("MAX_QUESTION_LENGTH", 300),
			MaxHistoryItems:   envInt("MAX_HISTORY_ITEMS", 20),
			SearchTopK:        envInt("SEARCH_TOP_K", 5),
		},
	}

	awsCfg, err := bootstrap.LoadAWS(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}
	h, err := bootstrap.Handler(awsCfg, cfg)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
	}()

	logger.Info("dev server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
