// Package domain defines the chunk model shared by the ingestion and
// retrieval pipelines, along with request-shape validation for uploads.
package domain

import (
	"encoding/json"
	"fmt"
)

// Chunk is the atomic retrievable unit: a passage of source text plus
// provenance metadata. Chunks are immutable once indexed except for
// UsageCount, which only the retrieval path increments.
type Chunk struct {
	ID             string   `json:"id"`
	SourceDocID    string   `json:"source_doc_id"`
	SectionHeading string   `json:"section_heading"`
	Journal        string   `json:"journal"`
	PublishYear    Year     `json:"publish_year"`
	UsageCount     int      `json:"usage_count"`
	Attributes     []string `json:"attributes"`
	Link           string   `json:"link"`
	Text           string   `json:"text"`
}

// Year is a publication year that arrives as either a JSON string or a
// JSON number. It is coerced to a string so filters compare exactly.
type Year string

func (y Year) String() string { return string(y) }

// UnmarshalJSON accepts "2022" or 2022.
func (y *Year) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*y = Year(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*y = Year(n.String())
		return nil
	}
	return fmt.Errorf("publish_year must be a string or a number, got %s", data)
}
