package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"

	"property-agent/internal/bootstrap"
	"property-agent/internal/observability"
	"property-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	observability.Setup(os.Stdout, os.Getenv("LOG_LEVEL"))
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

	// ---- AWS SDK config ----
	awsCfg, err := bootstrap.LoadAWS(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := bootstrap.Handler(awsCfg, cfg)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
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
