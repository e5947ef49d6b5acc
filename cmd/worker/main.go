// Package main implements the citer ingest worker: it consumes upload
// batches published to NATS and runs them through the same ingestion
// pipeline as the synchronous API path.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/chirag9899/citer/engine/ingest"
	"github.com/chirag9899/citer/engine/semantic"
	"github.com/chirag9899/citer/pkg/gemini"
)

// Config holds all environment-based configuration.
type Config struct {
	NATSURL         string
	GeminiAPIKey    string
	GeminiEmbed     string
	QdrantURL       string
	Collection      string
	EmbedDim        int
	EmbedRatePerSec float64
}

func loadConfig() Config {
	return Config{
		NATSURL:         envOr("NATS_URL", nats.DefaultURL),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiEmbed:     envOr("GEMINI_EMBED_MODEL", "text-embedding-004"),
		QdrantURL:       envOr("QDRANT_URL", "localhost:6334"),
		Collection:      envOr("QDRANT_COLLECTION", "citer"),
		EmbedDim:        envIntOr("EMBED_DIM", 1024),
		EmbedRatePerSec: float64(envIntOr("EMBED_RATE_PER_SEC", 0)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// embedAdapter exposes the gemini client as the document embedder the
// ingest pipeline consumes.
type embedAdapter struct {
	c *gemini.Client
}

func (a *embedAdapter) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return a.c.EmbedContent(ctx, text, gemini.TaskDocument)
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The worker exists to embed and index, so unlike the API a missing
	// credential is fatal here.
	model := gemini.New(cfg.GeminiAPIKey, gemini.WithModels("", cfg.GeminiEmbed))
	if model == nil {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}

	store, err := semantic.New(cfg.QdrantURL, cfg.Collection, cfg.EmbedDim)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("citer-worker"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	svc := ingest.New(&embedAdapter{c: model}, store, ingest.Options{EmbedRate: cfg.EmbedRatePerSec}, logger)

	sub, err := svc.StartConsumer(nc)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ingest.Subject, err)
	}
	defer sub.Unsubscribe()

	logger.Info("ingest worker started", "subject", ingest.Subject, "nats", cfg.NATSURL)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
