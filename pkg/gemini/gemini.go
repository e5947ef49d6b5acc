// Package gemini is an HTTP client for the Gemini embedContent and
// generateContent APIs. Embeddings are asymmetric: documents and queries
// are embedded under different task types and must not be mixed up.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel      = "gemini-2.5-flash"
	defaultEmbedModel = "text-embedding-004"
)

// TaskType conditions the embedding model on how the text will be used.
type TaskType string

const (
	// TaskDocument embeds text that is being indexed.
	TaskDocument TaskType = "RETRIEVAL_DOCUMENT"
	// TaskQuery embeds text that is being used to search.
	TaskQuery TaskType = "RETRIEVAL_QUERY"
)

// ErrUnavailable means the client was never configured (missing
// credential) or the model returned no usable output.
var ErrUnavailable = errors.New("gemini client unavailable")

// Client talks to the Gemini REST API. A nil *Client is the documented
// "unavailable" state: every method returns ErrUnavailable, and callers
// degrade instead of crashing.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	embedModel string
	client     *http.Client
}

// Option tweaks a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithModels overrides the generation and embedding model names.
func WithModels(gen, embed string) Option {
	return func(c *Client) {
		if gen != "" {
			c.model = gen
		}
		if embed != "" {
			c.embedModel = embed
		}
	}
}

// New creates a Gemini client. Returns nil when apiKey is empty.
func New(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		return nil
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		embedModel: defaultEmbedModel,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Available reports whether the client can reach the API at all.
func (c *Client) Available() bool { return c != nil }

type contentPart struct {
	Text string `json:"text"`
}

type requestContent struct {
	Parts []contentPart `json:"parts"`
}

type embedRequest struct {
	Content  requestContent `json:"content"`
	TaskType TaskType       `json:"taskType"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// EmbedContent converts text into an embedding vector under the given
// task type. An empty vector in the response is an error; callers must
// never substitute a zero vector.
func (c *Client) EmbedContent(ctx context.Context, text string, task TaskType) ([]float32, error) {
	if c == nil {
		return nil, ErrUnavailable
	}

	var resp embedResponse
	url := fmt.Sprintf("%s/models/%s:embedContent", c.baseURL, c.embedModel)
	if err := c.post(ctx, url, embedRequest{
		Content:  requestContent{Parts: []contentPart{{Text: text}}},
		TaskType: task,
	}, &resp); err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}

	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini: embed: no vector returned: %w", ErrUnavailable)
	}
	return resp.Embedding.Values, nil
}

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []contentPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateContent sends a prompt to the generation model and returns its
// raw text output. The output may legitimately be empty.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", ErrUnavailable
	}

	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	if err := c.post(ctx, url, generateRequest{
		Contents: []requestContent{{Parts: []contentPart{{Text: prompt}}}},
	}, &resp); err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}

	var out bytes.Buffer
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			out.WriteString(p.Text)
		}
		break // only the first candidate
	}
	return out.String(), nil
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
