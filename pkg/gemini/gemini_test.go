package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_EmptyKeyIsNil(t *testing.T) {
	c := New("")
	if c != nil {
		t.Fatal("empty api key must yield a nil client")
	}
	if c.Available() {
		t.Fatal("nil client must report unavailable")
	}
}

func TestNilClient_Errors(t *testing.T) {
	var c *Client
	if _, err := c.EmbedContent(context.Background(), "x", TaskQuery); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := c.GenerateContent(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestEmbedContent_TaskType(t *testing.T) {
	var gotPath string
	var gotReq embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{0.1, 0.2}},
		})
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL))
	vec, err := c.EmbedContent(context.Background(), "soil fertility", TaskDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("expected 2 components, got %d", len(vec))
	}
	if gotReq.TaskType != TaskDocument {
		t.Errorf("expected RETRIEVAL_DOCUMENT task type, got %s", gotReq.TaskType)
	}
	if !strings.Contains(gotPath, "text-embedding-004:embedContent") {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotReq.Content.Parts[0].Text != "soil fertility" {
		t.Errorf("text not forwarded: %+v", gotReq)
	}
}

func TestEmbedContent_NoVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": map[string]any{}})
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL))
	_, err := c.EmbedContent(context.Background(), "x", TaskQuery)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("empty vector must be ErrUnavailable, got %v", err)
	}
}

func TestEmbedContent_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL))
	_, err := c.EmbedContent(context.Background(), "x", TaskQuery)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestGenerateContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "key" {
			t.Errorf("api key header missing, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "grounded answer"}}}},
				{"content": map[string]any{"parts": []map[string]any{{"text": "second candidate"}}}},
			},
		})
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL), WithModels("gemini-test", ""))
	got, err := c.GenerateContent(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "grounded answer" {
		t.Fatalf("expected first candidate only, got %q", got)
	}
}

func TestGenerateContent_EmptyIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL))
	got, err := c.GenerateContent(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
