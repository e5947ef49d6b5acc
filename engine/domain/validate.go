package domain

import (
	"encoding/json"
	"fmt"
)

// chunkShape mirrors Chunk with pointer fields so that a missing key can
// be told apart from a zero value. Type mismatches surface as JSON
// decoding errors before shape checking runs.
type chunkShape struct {
	ID             *string   `json:"id"`
	SourceDocID    *string   `json:"source_doc_id"`
	SectionHeading *string   `json:"section_heading"`
	Journal        *string   `json:"journal"`
	PublishYear    *Year     `json:"publish_year"`
	UsageCount     *float64  `json:"usage_count"`
	Attributes     *[]string `json:"attributes"`
	Link           *string   `json:"link"`
	Text           *string   `json:"text"`
}

// uploadEnvelope is the alternative {"chunks":[...]} request form.
type uploadEnvelope struct {
	Chunks []json.RawMessage `json:"chunks"`
}

// ParseChunks decodes an upload body, which is either a bare JSON array
// of chunk objects or an object wrapping one under "chunks". Every chunk
// must carry all required fields with the right primitive shapes; any
// violation rejects the whole batch with a ValidationError.
func ParseChunks(body []byte) ([]Chunk, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		var env uploadEnvelope
		if err := json.Unmarshal(body, &env); err != nil || env.Chunks == nil {
			return nil, fmt.Errorf("%w: body must be an array of chunk objects or {\"chunks\": [...]}", ErrValidation)
		}
		raws = env.Chunks
	}

	chunks := make([]Chunk, 0, len(raws))
	for i, raw := range raws {
		c, err := parseChunk(i, raw)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func parseChunk(index int, raw json.RawMessage) (Chunk, error) {
	var s chunkShape
	if err := json.Unmarshal(raw, &s); err != nil {
		return Chunk{}, &ValidationError{Index: index, Field: jsonErrField(err), Reason: err.Error()}
	}

	required := []struct {
		name string
		ok   bool
	}{
		{"id", s.ID != nil},
		{"source_doc_id", s.SourceDocID != nil},
		{"section_heading", s.SectionHeading != nil},
		{"journal", s.Journal != nil},
		{"publish_year", s.PublishYear != nil},
		{"usage_count", s.UsageCount != nil},
		{"attributes", s.Attributes != nil},
		{"link", s.Link != nil},
		{"text", s.Text != nil},
	}
	for _, f := range required {
		if !f.ok {
			return Chunk{}, &ValidationError{Index: index, Field: f.name, Reason: "missing"}
		}
	}
	if *s.ID == "" {
		return Chunk{}, &ValidationError{Index: index, Field: "id", Reason: "must not be empty"}
	}

	return Chunk{
		ID:             *s.ID,
		SourceDocID:    *s.SourceDocID,
		SectionHeading: *s.SectionHeading,
		Journal:        *s.Journal,
		PublishYear:    *s.PublishYear,
		UsageCount:     int(*s.UsageCount),
		Attributes:     *s.Attributes,
		Link:           *s.Link,
		Text:           *s.Text,
	}, nil
}

// jsonErrField pulls the field name out of a json.UnmarshalTypeError, if
// that is what we got.
func jsonErrField(err error) string {
	if te, ok := err.(*json.UnmarshalTypeError); ok && te.Field != "" {
		return te.Field
	}
	return "body"
}

// CheckDuplicateIDs returns a DuplicateIDError if the same id appears
// twice within a single batch.
func CheckDuplicateIDs(chunks []Chunk) error {
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.ID] {
			return &DuplicateIDError{ID: c.ID}
		}
		seen[c.ID] = true
	}
	return nil
}
