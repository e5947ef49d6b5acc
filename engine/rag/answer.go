package rag

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/chirag9899/citer/engine/domain"
	"github.com/chirag9899/citer/engine/semantic"
	"github.com/chirag9899/citer/pkg/gemini"
)

// Fixed answer strings returned instead of errors on degraded paths.
const (
	// NoContextSentinel is the grounding refusal: the model must emit it
	// verbatim when the context does not contain the answer, and the
	// service emits it directly when retrieval found nothing.
	NoContextSentinel = "No relevant information found in the provided context."

	unavailableAnswer = "Gemini API key is missing or invalid. Please configure it in your environment."
	modelErrorAnswer  = "An error occurred while communicating with the AI model."
	emptyReplyAnswer  = "No response generated"
)

// ContextChunk is one retrieved chunk handed to answer synthesis.
type ContextChunk struct {
	ID    string         `json:"id"`
	Score float64        `json:"score"`
	Meta  map[string]any `json:"metadata"`
}

// AnswerResponse carries the synthesized answer plus the citations it
// was grounded on.
type AnswerResponse struct {
	Answer    string         `json:"answer"`
	Citations []ContextChunk `json:"citations"`
}

// Answer synthesizes a grounded answer from already-retrieved chunks.
// All failure modes of the generation model map to fixed answer strings
// rather than errors so one flaky upstream call never fails a request
// that retrieval already served.
func (s *Service) Answer(ctx context.Context, question string, chunks []ContextChunk) (*AnswerResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required and must be a non-empty string", domain.ErrValidation)
	}

	if len(chunks) == 0 {
		return &AnswerResponse{Answer: NoContextSentinel, Citations: []ContextChunk{}}, nil
	}

	if !s.generate.Available() {
		// Hold the caller briefly so a misconfigured deployment doesn't
		// hammer retry loops at full speed.
		s.sleep(300*time.Millisecond + time.Duration(rand.Int64N(400))*time.Millisecond)
		return &AnswerResponse{Answer: unavailableAnswer, Citations: chunks}, nil
	}

	prompt := answerPrompt(question, chunks)

	var answer string
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var genErr error
		answer, genErr = s.generate.GenerateContent(ctx, prompt)
		return genErr
	})
	if err != nil {
		s.logger.Error("rag: generation failed", "error", err)
		return &AnswerResponse{Answer: modelErrorAnswer, Citations: chunks}, nil
	}
	if strings.TrimSpace(answer) == "" {
		answer = emptyReplyAnswer
	}

	return &AnswerResponse{Answer: answer, Citations: chunks}, nil
}

// answerPrompt renders the grounding prompt: numbered citations with
// their provenance, then the instruction block.
func answerPrompt(question string, chunks []ContextChunk) string {
	blocks := make([]string, 0, len(chunks))
	for i, c := range chunks {
		blocks = append(blocks, fmt.Sprintf("Citation %d (Source Document ID: %s, Section: %q):\n%s",
			i+1,
			semantic.MetaString(c.Meta, "source_doc_id"),
			semantic.MetaString(c.Meta, "section_heading"),
			semantic.MetaString(c.Meta, "text")))
	}
	contextText := strings.Join(blocks, "\n\n---\n\n")

	return fmt.Sprintf(`You are a research assistant. Answer the question using ONLY the information in the numbered citations below. Cite the citations you used by number, like [1] or [2][3]. If the context does not contain the information needed to answer, reply exactly: %q

Context:
%s

Question: %s

Answer:`, NoContextSentinel, contextText, question)
}

// Summarize fetches the named chunks and asks the model to summarize
// them. Unknown ids are skipped; if none resolve the request fails with
// domain.ErrNotFound.
func (s *Service) Summarize(ctx context.Context, ids []string) (*AnswerResponse, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids is required and must be a non-empty array", domain.ErrValidation)
	}

	chunks, err := s.fetchChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks found for the provided ids", domain.ErrNotFound)
	}

	return s.Answer(ctx, "Summarize the following content:", chunks)
}

// Compare fetches two chunk sets and asks the model for a structured
// comparison. Both sides must resolve to at least one chunk.
func (s *Service) Compare(ctx context.Context, idsA, idsB []string) (*AnswerResponse, error) {
	if len(idsA) == 0 || len(idsB) == 0 {
		return nil, fmt.Errorf("%w: ids_a and ids_b are required and must be non-empty arrays", domain.ErrValidation)
	}

	setA, err := s.fetchChunks(ctx, idsA)
	if err != nil {
		return nil, err
	}
	setB, err := s.fetchChunks(ctx, idsB)
	if err != nil {
		return nil, err
	}
	if len(setA) == 0 || len(setB) == 0 {
		return nil, fmt.Errorf("%w: one or both id sets resolved to no chunks", domain.ErrNotFound)
	}

	if !s.generate.Available() {
		return nil, fmt.Errorf("rag: compare: %w", gemini.ErrUnavailable)
	}

	prompt := comparePrompt(setA, setB)

	var answer string
	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		var genErr error
		answer, genErr = s.generate.GenerateContent(ctx, prompt)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("rag: compare: generate: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = emptyReplyAnswer
	}

	citations := make([]ContextChunk, 0, len(setA)+len(setB))
	citations = append(citations, setA...)
	citations = append(citations, setB...)
	return &AnswerResponse{Answer: answer, Citations: citations}, nil
}

func comparePrompt(setA, setB []ContextChunk) string {
	return fmt.Sprintf(`You are a research assistant. Compare and contrast the two document sets below.

SET A:
%s

SET B:
%s

Structure your response with these sections:
1. Similarities: what the two sets agree on.
2. Differences: where they diverge or contradict each other.
3. Key Findings: the most important takeaways from each set.
4. Context: background a reader needs to interpret the comparison.`,
		renderSet(setA), renderSet(setB))
}

func renderSet(chunks []ContextChunk) string {
	blocks := make([]string, 0, len(chunks))
	for _, c := range chunks {
		blocks = append(blocks, fmt.Sprintf("Document %s (Section: %q):\n%s",
			semantic.MetaString(c.Meta, "source_doc_id"),
			semantic.MetaString(c.Meta, "section_heading"),
			semantic.MetaString(c.Meta, "text")))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// fetchChunks resolves chunk ids to context chunks, preserving request
// order and dropping ids the store doesn't know.
func (s *Service) fetchChunks(ctx context.Context, ids []string) ([]ContextChunk, error) {
	metas, err := s.index.Fetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("rag: fetch chunks: %w", err)
	}
	chunks := make([]ContextChunk, 0, len(metas))
	for _, id := range ids {
		meta, ok := metas[id]
		if !ok {
			continue
		}
		chunks = append(chunks, ContextChunk{ID: id, Score: 1, Meta: meta})
	}
	return chunks, nil
}
