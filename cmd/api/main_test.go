package main

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.EmbedDim != 1024 {
		t.Fatalf("embed dim = %d", cfg.EmbedDim)
	}
	if cfg.Collection != "citer" {
		t.Fatalf("collection = %q", cfg.Collection)
	}
}

func TestEnvIntOr(t *testing.T) {
	t.Setenv("EMBED_DIM", "768")
	if got := envIntOr("EMBED_DIM", 1024); got != 768 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("EMBED_DIM", "not-a-number")
	if got := envIntOr("EMBED_DIM", 1024); got != 1024 {
		t.Fatalf("got %d", got)
	}
}

func TestGeminiAdapterUnavailableWhenNil(t *testing.T) {
	a := &geminiAdapter{c: nil}
	if a.Available() {
		t.Fatal("nil client must read as unavailable")
	}
}
