// Package main implements the citer API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chirag9899/citer/engine/ingest"
	"github.com/chirag9899/citer/engine/rag"
	"github.com/chirag9899/citer/engine/semantic"
	"github.com/chirag9899/citer/pkg/gemini"
	"github.com/chirag9899/citer/pkg/metrics"
	"github.com/chirag9899/citer/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port            string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiEmbed     string
	QdrantURL       string
	Collection      string
	EmbedDim        int
	CORSOrigin      string
	MaxUploadBytes  int64
	EmbedRatePerSec float64
}

func loadConfig() Config {
	return Config{
		Port:            envOr("PORT", "8080"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     envOr("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiEmbed:     envOr("GEMINI_EMBED_MODEL", "text-embedding-004"),
		QdrantURL:       envOr("QDRANT_URL", "localhost:6334"),
		Collection:      envOr("QDRANT_COLLECTION", "citer"),
		EmbedDim:        envIntOr("EMBED_DIM", 1024),
		CORSOrigin:      envOr("CORS_ORIGIN", "*"),
		MaxUploadBytes:  int64(envIntOr("MAX_UPLOAD_BYTES", 10<<20)),
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

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Missing credential is a degraded mode, not a startup failure:
	// retrieval keeps working and answers fall back to a fixed message.
	model := gemini.New(cfg.GeminiAPIKey, gemini.WithModels(cfg.GeminiModel, cfg.GeminiEmbed))
	if model == nil {
		logger.Warn("GEMINI_API_KEY not set, answer synthesis degraded")
	}
	llm := &geminiAdapter{c: model}

	store, err := semantic.New(cfg.QdrantURL, cfg.Collection, cfg.EmbedDim)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	ingestSvc := ingest.New(llm, store, ingest.Options{EmbedRate: cfg.EmbedRatePerSec}, logger)
	ragSvc := rag.New(llm, store, llm, rag.DefaultOptions(), logger)

	reg := metrics.New()
	app := newApp(ingestSvc, ragSvc, reg, logger)

	mux := app.routes()
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.OTel("citer-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.MaxBody(cfg.MaxUploadBytes),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// geminiAdapter exposes one gemini client under the embedding and
// generation interfaces the services consume. A nil client is the
// degraded no-credential mode.
type geminiAdapter struct {
	c *gemini.Client
}

func (a *geminiAdapter) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return a.c.EmbedContent(ctx, text, gemini.TaskDocument)
}

func (a *geminiAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return a.c.EmbedContent(ctx, text, gemini.TaskQuery)
}

func (a *geminiAdapter) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return a.c.GenerateContent(ctx, prompt)
}

func (a *geminiAdapter) Available() bool {
	return a.c != nil
}
