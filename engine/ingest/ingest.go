// Package ingest implements the upload pipeline: structural validation,
// duplicate-id rejection, skip-existing dedup, document-mode embedding,
// and a single batched upsert. Batches are all-or-nothing: one bad chunk
// or one failed embedding aborts the whole batch with nothing written.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chirag9899/citer/engine/domain"
	"github.com/chirag9899/citer/engine/semantic"
	"github.com/chirag9899/citer/pkg/fn"
	"github.com/chirag9899/citer/pkg/resilience"
)

// DefaultEmbedWorkers bounds the per-batch embedding fan-out.
const DefaultEmbedWorkers = 8

// Embedder converts a document passage into an embedding vector.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Store is the slice of the vector store the pipeline writes through.
type Store interface {
	Fetch(ctx context.Context, ids []string) (map[string]map[string]any, error)
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Receipt reports what a batch upload did.
type Receipt struct {
	Added      int      `json:"chunks_added"`
	SkippedIDs []string `json:"skipped_ids"`
}

// Service runs upload batches through the ingestion pipeline.
type Service struct {
	embed   Embedder
	store   Store
	limiter *resilience.Limiter
	workers int
	logger  *slog.Logger
}

// Options tunes the pipeline.
type Options struct {
	// EmbedWorkers bounds concurrent embedding calls per batch.
	EmbedWorkers int
	// EmbedRate throttles embedding calls per second; 0 disables.
	EmbedRate float64
}

// New creates an ingestion Service.
func New(embed Embedder, store Store, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.EmbedWorkers
	if workers <= 0 {
		workers = DefaultEmbedWorkers
	}
	return &Service{
		embed:   embed,
		store:   store,
		limiter: resilience.NewLimiter(opts.EmbedRate, workers),
		workers: workers,
		logger:  logger,
	}
}

// partitioned is a validated batch split into chunks to embed and ids
// already present in the index.
type partitioned struct {
	fresh   []domain.Chunk
	skipped []string
}

// embedded carries the records ready for one batched upsert.
type embedded struct {
	records []semantic.VectorRecord
	skipped []string
}

// IngestBatch runs one upload batch through the pipeline. The input is
// already shape-validated by domain.ParseChunks; this adds the duplicate
// and existing-id checks before embedding.
func (s *Service) IngestBatch(ctx context.Context, chunks []domain.Chunk) (*Receipt, error) {
	pipeline := fn.Then(
		fn.Then(
			fn.Traced("ingest.validate", s.validate),
			fn.Traced("ingest.partition", s.partition),
		),
		fn.Then(
			fn.Traced("ingest.embed", s.embedFresh),
			fn.Traced("ingest.store", s.storeBatch),
		),
	)

	result := pipeline(ctx, chunks)
	receipt, err := result.Unwrap()
	if err != nil {
		return nil, err
	}
	s.logger.Info("ingest: batch done", "added", receipt.Added, "skipped", len(receipt.SkippedIDs))
	return receipt, nil
}

// validate rejects intra-batch duplicate ids. Shape validation already
// happened at parse time; repeating the id check here keeps the pipeline
// safe for callers that construct chunks directly.
func (s *Service) validate(_ context.Context, chunks []domain.Chunk) fn.Result[[]domain.Chunk] {
	for i, c := range chunks {
		if c.ID == "" {
			return fn.Err[[]domain.Chunk](&domain.ValidationError{Index: i, Field: "id", Reason: "must not be empty"})
		}
	}
	if err := domain.CheckDuplicateIDs(chunks); err != nil {
		return fn.Err[[]domain.Chunk](err)
	}
	return fn.Ok(chunks)
}

// partition fetches the submitted ids and drops the ones already
// indexed. An existing id is not an error; it is reported as skipped and
// its stored chunk stays untouched (never re-embedded or overwritten).
func (s *Service) partition(ctx context.Context, chunks []domain.Chunk) fn.Result[partitioned] {
	if len(chunks) == 0 {
		return fn.Ok(partitioned{skipped: []string{}})
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	existing, err := s.store.Fetch(ctx, ids)
	if err != nil {
		return fn.Err[partitioned](fmt.Errorf("ingest: check existing ids: %w", err))
	}

	out := partitioned{skipped: []string{}}
	for _, c := range chunks {
		if _, ok := existing[c.ID]; ok {
			out.skipped = append(out.skipped, c.ID)
			continue
		}
		out.fresh = append(out.fresh, c)
	}
	return fn.Ok(out)
}

// embedFresh embeds the new chunks in DOCUMENT mode with bounded
// concurrency. Any single failure fails the batch; there is no
// partial-batch commit.
func (s *Service) embedFresh(ctx context.Context, p partitioned) fn.Result[embedded] {
	results := fn.ParMapResult(p.fresh, s.workers, func(c domain.Chunk) fn.Result[semantic.VectorRecord] {
		if err := s.limiter.Wait(ctx); err != nil {
			return fn.Err[semantic.VectorRecord](err)
		}
		vec, err := s.embed.EmbedDocument(ctx, c.Text)
		if err != nil {
			return fn.Err[semantic.VectorRecord](fmt.Errorf("ingest: embed chunk %s: %w", c.ID, err))
		}
		return fn.Ok(semantic.VectorRecord{
			ID:        c.ID,
			Embedding: vec,
			Payload:   semantic.PayloadFromChunk(c),
		})
	})

	records, err := fn.Collect(results).Unwrap()
	if err != nil {
		return fn.Err[embedded](err)
	}
	return fn.Ok(embedded{records: records, skipped: p.skipped})
}

// storeBatch performs the single batched upsert.
func (s *Service) storeBatch(ctx context.Context, e embedded) fn.Result[*Receipt] {
	if err := s.store.Upsert(ctx, e.records); err != nil {
		return fn.Err[*Receipt](fmt.Errorf("ingest: upsert: %w", err))
	}
	return fn.Ok(&Receipt{Added: len(e.records), SkippedIDs: e.skipped})
}
