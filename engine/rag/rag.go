// Package rag orchestrates retrieval and answer synthesis: it embeds a
// user query, searches the vector index with metadata filters, tracks
// per-chunk usage, and grounds LLM answers in the retrieved context.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chirag9899/citer/engine/domain"
	"github.com/chirag9899/citer/engine/semantic"
	"github.com/chirag9899/citer/pkg/fn"
	"github.com/chirag9899/citer/pkg/resilience"
)

// Embedder converts a search query into an embedding vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index is the slice of the vector store the retrieval path reads from.
type Index interface {
	Query(ctx context.Context, vec []float32, topK int, f semantic.Filter) ([]semantic.SearchResult, error)
	Fetch(ctx context.Context, ids []string) (map[string]map[string]any, error)
	BumpUsage(ctx context.Context, id string, count int) error
	List(ctx context.Context, f semantic.Filter, limit int) ([]map[string]any, error)
}

// Generator is the hosted generation model. Available reports whether a
// credential was configured at all.
type Generator interface {
	Available() bool
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Options tunes the retrieval pipeline.
type Options struct {
	// DefaultK is the result count when the caller doesn't ask for one.
	DefaultK int
	// MaxK caps the requested result count.
	MaxK int
	// UsageWorkers bounds the concurrent usage-count updates per request.
	UsageWorkers int
	// ListCap bounds the journal listing page.
	ListCap int
}

// DefaultOptions returns the deployed defaults.
func DefaultOptions() Options {
	return Options{
		DefaultK:     10,
		MaxK:         100,
		UsageWorkers: 8,
		ListCap:      1000,
	}
}

// Service is the retrieval and synthesis service.
type Service struct {
	embed    Embedder
	index    Index
	generate Generator
	breaker  *resilience.Breaker
	opts     Options
	logger   *slog.Logger
	sleep    func(time.Duration) // test seam for the unavailability delay
}

// New creates a rag Service. generate may wrap a nil client; the service
// degrades to sentinel answers instead of failing.
func New(embed Embedder, index Index, generate Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultOptions().DefaultK
	}
	if opts.MaxK <= 0 {
		opts.MaxK = DefaultOptions().MaxK
	}
	if opts.UsageWorkers <= 0 {
		opts.UsageWorkers = DefaultOptions().UsageWorkers
	}
	if opts.ListCap <= 0 {
		opts.ListCap = DefaultOptions().ListCap
	}
	return &Service{
		embed:    embed,
		index:    index,
		generate: generate,
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerOpts),
		opts:     opts,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// SearchRequest is a retrieval query with optional metadata filters.
// Filters constrain the search itself (pushed into the index as native
// conditions); MinScore is advisory and echoed back, not enforced.
type SearchRequest struct {
	Query       string      `json:"query"`
	K           int         `json:"k"`
	MinScore    float64     `json:"min_score"`
	PublishYear domain.Year `json:"publish_year"`
	Journal     string      `json:"journal"`
	Attributes  []string    `json:"attributes"`
}

// SearchParams echoes the effective query parameters.
type SearchParams struct {
	K           int      `json:"k"`
	MinScore    float64  `json:"min_score"`
	PublishYear string   `json:"publish_year,omitempty"`
	Journal     string   `json:"journal,omitempty"`
	Attributes  []string `json:"attributes,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// SearchResponse is the retrieval result page.
type SearchResponse struct {
	Query        string                  `json:"query"`
	Results      []semantic.SearchResult `json:"results"`
	TotalFound   int                     `json:"total_found"`
	SearchParams SearchParams            `json:"search_params"`
	Embedding    []float32               `json:"embedding"`
}

// Search runs the retrieval pipeline. Embedding failure is fatal to the
// request; usage tracking is best-effort and never affects the response.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required and must be a non-empty string", domain.ErrValidation)
	}

	vec, err := s.embed.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	k := req.K
	if k <= 0 {
		k = s.opts.DefaultK
	}
	if k > s.opts.MaxK {
		k = s.opts.MaxK
	}

	filter := semantic.Filter{
		Journal:     req.Journal,
		PublishYear: req.PublishYear.String(),
		Attributes:  req.Attributes,
	}
	results, err := s.index.Query(ctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	s.logger.Info("rag: search done", "results", len(results), "k", k)

	s.trackUsage(ctx, results)

	return &SearchResponse{
		Query:      req.Query,
		Results:    results,
		TotalFound: len(results),
		SearchParams: SearchParams{
			K:           req.K,
			MinScore:    req.MinScore,
			PublishYear: req.PublishYear.String(),
			Journal:     req.Journal,
			Attributes:  req.Attributes,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		},
		Embedding: vec,
	}, nil
}

// trackUsage bumps usage_count on every returned chunk with bounded
// concurrency. Failures are logged and swallowed per item; usage
// tracking is advisory, not transactional.
func (s *Service) trackUsage(ctx context.Context, results []semantic.SearchResult) {
	fn.ParMap(results, s.opts.UsageWorkers, func(r semantic.SearchResult) struct{} {
		next := semantic.UsageCount(r.Meta) + 1
		if err := s.index.BumpUsage(ctx, r.ID, next); err != nil {
			s.logger.Warn("rag: usage bump failed", "id", r.ID, "error", err)
		}
		return struct{}{}
	})
}

// JournalListing enumerates stored chunks for one journal, or all of
// them capped at ListCap.
type JournalListing struct {
	JournalID  string           `json:"journal_id"`
	TotalFound int              `json:"total_found"`
	Chunks     []map[string]any `json:"chunks"`
}

// ListJournal lists chunk metadata filtered case-insensitively by
// journal name; "all" lists everything under the cap.
func (s *Service) ListJournal(ctx context.Context, journalID string) (*JournalListing, error) {
	var f semantic.Filter
	if journalID != "all" {
		f.Journal = journalID
	}

	metas, err := s.index.List(ctx, f, s.opts.ListCap)
	if err != nil {
		return nil, fmt.Errorf("rag: list journal %s: %w", journalID, err)
	}

	return &JournalListing{
		JournalID:  journalID,
		TotalFound: len(metas),
		Chunks:     metas,
	}, nil
}
