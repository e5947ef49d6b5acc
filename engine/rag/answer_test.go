package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chirag9899/citer/engine/domain"
	"github.com/chirag9899/citer/pkg/gemini"
)

func chunkMeta(docID, section, text string) map[string]any {
	return map[string]any{
		"source_doc_id":   docID,
		"section_heading": section,
		"text":            text,
	}
}

func TestAnswerBlankQuestion(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeIndex{}, &fakeGenerator{available: true})

	_, err := s.Answer(context.Background(), "  ", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestAnswerNoContext(t *testing.T) {
	gen := &fakeGenerator{available: true}
	s := newTestService(&fakeEmbedder{}, &fakeIndex{}, gen)

	resp, err := s.Answer(context.Background(), "what is the capacity?", nil)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Answer != NoContextSentinel {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(gen.prompts) != 0 {
		t.Fatal("model must not be called without context")
	}
	if resp.Citations == nil || len(resp.Citations) != 0 {
		t.Fatalf("citations = %v, want empty slice", resp.Citations)
	}
}

func TestAnswerUnavailableReturnsSentinel(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeIndex{}, &fakeGenerator{available: false})

	chunks := []ContextChunk{{ID: "c1", Score: 0.9, Meta: chunkMeta("d1", "Results", "some text")}}
	resp, err := s.Answer(context.Background(), "q", chunks)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Answer != unavailableAnswer {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("citations = %d", len(resp.Citations))
	}
}

func TestAnswerModelFailureReturnsSentinel(t *testing.T) {
	gen := &fakeGenerator{available: true, err: errors.New("upstream 500")}
	s := newTestService(&fakeEmbedder{}, &fakeIndex{}, gen)

	chunks := []ContextChunk{{ID: "c1", Score: 0.9, Meta: chunkMeta("d1", "Results", "text")}}
	resp, err := s.Answer(context.Background(), "q", chunks)
	if err != nil {
		t.Fatalf("model failures must not error the request: %v", err)
	}
	if resp.Answer != modelErrorAnswer {
		t.Fatalf("answer = %q", resp.Answer)
	}
}

func TestAnswerEmptyReply(t *testing.T) {
	gen := &fakeGenerator{available: true, reply: "   "}
	s := newTestService(&fakeEmbedder{}, &fakeIndex{}, gen)

	chunks := []ContextChunk{{ID: "c1", Score: 0.9, Meta: chunkMeta("d1", "Results", "text")}}
	resp, err := s.Answer(context.Background(), "q", chunks)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Answer != emptyReplyAnswer {
		t.Fatalf("answer = %q", resp.Answer)
	}
}

func TestAnswerPromptGrounding(t *testing.T) {
	gen := &fakeGenerator{available: true, reply: "Capacity fades 20% after 500 cycles [1]."}
	s := newTestService(&fakeEmbedder{}, &fakeIndex{}, gen)

	chunks := []ContextChunk{
		{ID: "c1", Score: 0.93, Meta: chunkMeta("doc-7", "Results", "Capacity fell 20% over 500 cycles.")},
		{ID: "c2", Score: 0.88, Meta: chunkMeta("doc-9", "Methods", "Cells were cycled at 1C.")},
	}
	resp, err := s.Answer(context.Background(), "how fast does capacity fade?", chunks)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("generator called %d times", len(gen.prompts))
	}

	prompt := gen.prompts[0]
	for _, want := range []string{
		"Citation 1 (Source Document ID: doc-7, Section: \"Results\"):",
		"Citation 2 (Source Document ID: doc-9, Section: \"Methods\"):",
		"Capacity fell 20% over 500 cycles.",
		NoContextSentinel,
		"Question: how fast does capacity fade?",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("citations = %d", len(resp.Citations))
	}
}

func TestSummarize(t *testing.T) {
	index := &fakeIndex{fetched: map[string]map[string]any{
		"c1": chunkMeta("d1", "Abstract", "We study solid electrolytes."),
	}}
	gen := &fakeGenerator{available: true, reply: "A study of solid electrolytes."}
	s := newTestService(&fakeEmbedder{}, index, gen)

	resp, err := s.Summarize(context.Background(), []string{"c1", "missing"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if resp.Answer != "A study of solid electrolytes." {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].ID != "c1" {
		t.Fatalf("citations = %+v", resp.Citations)
	}
	if !strings.Contains(gen.prompts[0], "Summarize the following content:") {
		t.Fatalf("prompt = %s", gen.prompts[0])
	}
}

func TestSummarizeValidation(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeIndex{}, &fakeGenerator{available: true})

	if _, err := s.Summarize(context.Background(), nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestSummarizeUnknownIDs(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeIndex{fetched: map[string]map[string]any{}}, &fakeGenerator{available: true})

	if _, err := s.Summarize(context.Background(), []string{"ghost"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	index := &fakeIndex{fetched: map[string]map[string]any{
		"a1": chunkMeta("dA", "Results", "Method A achieved 95% retention."),
		"b1": chunkMeta("dB", "Results", "Method B achieved 80% retention."),
	}}
	gen := &fakeGenerator{available: true, reply: "1. Similarities: ..."}
	s := newTestService(&fakeEmbedder{}, index, gen)

	resp, err := s.Compare(context.Background(), []string{"a1"}, []string{"b1"})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("citations = %d", len(resp.Citations))
	}

	prompt := gen.prompts[0]
	for _, want := range []string{"SET A:", "SET B:", "Method A achieved", "Method B achieved", "Similarities", "Differences", "Key Findings"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestCompareValidation(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeIndex{}, &fakeGenerator{available: true})

	if _, err := s.Compare(context.Background(), nil, []string{"b1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestCompareMissingSide(t *testing.T) {
	index := &fakeIndex{fetched: map[string]map[string]any{
		"a1": chunkMeta("dA", "Results", "text"),
	}}
	s := newTestService(&fakeEmbedder{}, index, &fakeGenerator{available: true})

	if _, err := s.Compare(context.Background(), []string{"a1"}, []string{"ghost"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCompareUnavailable(t *testing.T) {
	index := &fakeIndex{fetched: map[string]map[string]any{
		"a1": chunkMeta("dA", "Results", "text"),
		"b1": chunkMeta("dB", "Results", "text"),
	}}
	s := newTestService(&fakeEmbedder{}, index, &fakeGenerator{available: false})

	if _, err := s.Compare(context.Background(), []string{"a1"}, []string{"b1"}); !errors.Is(err, gemini.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}
