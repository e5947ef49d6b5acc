package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chirag9899/citer/engine/domain"
	"github.com/chirag9899/citer/engine/ingest"
	"github.com/chirag9899/citer/engine/rag"
	"github.com/chirag9899/citer/pkg/gemini"
	"github.com/chirag9899/citer/pkg/metrics"
)

// ingester is the upload surface of the ingest service.
type ingester interface {
	IngestBatch(ctx context.Context, chunks []domain.Chunk) (*ingest.Receipt, error)
}

// retriever is the query surface of the rag service.
type retriever interface {
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResponse, error)
	Answer(ctx context.Context, question string, chunks []rag.ContextChunk) (*rag.AnswerResponse, error)
	Summarize(ctx context.Context, ids []string) (*rag.AnswerResponse, error)
	Compare(ctx context.Context, idsA, idsB []string) (*rag.AnswerResponse, error)
	ListJournal(ctx context.Context, journalID string) (*rag.JournalListing, error)
}

type app struct {
	ingest  ingester
	rag     retriever
	logger  *slog.Logger
	latency *metrics.Histogram
	reqs    func(route string) *metrics.Counter
	added   *metrics.Counter
	skipped *metrics.Counter
}

func newApp(ing ingester, r retriever, reg *metrics.Registry, logger *slog.Logger) *app {
	return &app{
		ingest:  ing,
		rag:     r,
		logger:  logger,
		latency: reg.Histogram("citer_request_seconds", "Request latency", nil),
		reqs: func(route string) *metrics.Counter {
			return reg.Counter(metrics.WithLabels("citer_requests_total", "route", route), "Requests by route")
		},
		added:   reg.Counter("citer_chunks_added_total", "Chunks added via upload"),
		skipped: reg.Counter("citer_chunks_skipped_total", "Upload chunks skipped as already indexed"),
	}
}

// routes builds the request mux. /metrics is mounted by the caller so
// the registry handler stays with the registry.
func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /search", a.handleSearch)
	mux.HandleFunc("POST /answer", a.handleAnswer)
	mux.HandleFunc("POST /upload", a.handleUpload)
	mux.HandleFunc("POST /summary", a.handleSummary)
	mux.HandleFunc("POST /compare", a.handleCompare)
	mux.HandleFunc("GET /journal/{journal_id}", a.handleJournal)
	return mux
}

func (a *app) observe(route string, start time.Time) {
	a.reqs(route).Inc()
	a.latency.Since(start)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errStatus maps service errors to HTTP statuses. Internals never leak;
// anything unmapped reads as a generic 500.
func errStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrDuplicateID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, gemini.ErrUnavailable):
		return http.StatusServiceUnavailable, "generation model unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (a *app) fail(w http.ResponseWriter, route string, err error) {
	status, msg := errStatus(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "route", route, "err", err)
	}
	writeError(w, status, msg)
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *app) handleSearch(w http.ResponseWriter, r *http.Request) {
	defer a.observe("search", time.Now())

	var req rag.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := a.rag.Search(r.Context(), req)
	if err != nil {
		a.fail(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// answerRequest uses a pointer slice so an absent contextChunks field is
// distinguishable from an empty one.
type answerRequest struct {
	Question      string              `json:"question"`
	ContextChunks *[]rag.ContextChunk `json:"contextChunks"`
}

func (a *app) handleAnswer(w http.ResponseWriter, r *http.Request) {
	defer a.observe("answer", time.Now())

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContextChunks == nil {
		writeError(w, http.StatusBadRequest, "contextChunks is required and must be an array")
		return
	}

	resp, err := a.rag.Answer(r.Context(), req.Question, *req.ContextChunks)
	if err != nil {
		a.fail(w, "answer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": resp.Answer})
}

func (a *app) handleUpload(w http.ResponseWriter, r *http.Request) {
	defer a.observe("upload", time.Now())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	chunks, err := domain.ParseChunks(body)
	if err != nil {
		a.fail(w, "upload", err)
		return
	}

	receipt, err := a.ingest.IngestBatch(r.Context(), chunks)
	if err != nil {
		a.fail(w, "upload", err)
		return
	}
	a.added.Add(int64(receipt.Added))
	a.skipped.Add(int64(len(receipt.SkippedIDs)))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":      "upload processed",
		"chunks_added": receipt.Added,
		"skipped_ids":  receipt.SkippedIDs,
	})
}

type summaryRequest struct {
	ChunkIDs []string `json:"chunkIds"`
}

func (a *app) handleSummary(w http.ResponseWriter, r *http.Request) {
	defer a.observe("summary", time.Now())

	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := a.rag.Summarize(r.Context(), req.ChunkIDs)
	if err != nil {
		a.fail(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": resp.Answer})
}

type compareRequest struct {
	ChunkIDsA []string `json:"chunkIdsA"`
	ChunkIDsB []string `json:"chunkIdsB"`
}

func (a *app) handleCompare(w http.ResponseWriter, r *http.Request) {
	defer a.observe("compare", time.Now())

	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := a.rag.Compare(r.Context(), req.ChunkIDsA, req.ChunkIDsB)
	if err != nil {
		a.fail(w, "compare", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"comparison": resp.Answer})
}

func (a *app) handleJournal(w http.ResponseWriter, r *http.Request) {
	defer a.observe("journal", time.Now())

	journalID := r.PathValue("journal_id")
	if journalID == "" {
		writeError(w, http.StatusBadRequest, "journal_id is required")
		return
	}

	listing, err := a.rag.ListJournal(r.Context(), journalID)
	if err != nil {
		a.fail(w, "journal", err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}
