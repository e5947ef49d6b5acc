package semantic

// VectorRecord is a single embedded chunk ready for storage.
type VectorRecord struct {
	ID        string // caller-supplied chunk id, not the Qdrant point id
	Embedding []float32
	Payload   map[string]any
}

// SearchResult is a single similarity hit: the chunk id, a similarity
// score (higher is more similar), and the stored metadata.
type SearchResult struct {
	ID    string         `json:"id"`
	Score float32        `json:"score"`
	Meta  map[string]any `json:"metadata"`
}

// Filter restricts a search or listing to chunks with matching
// provenance metadata. Zero values mean "no constraint". All requested
// attributes must be present on a chunk (subset semantics).
type Filter struct {
	Journal     string
	PublishYear string
	Attributes  []string
}

// IsZero reports whether the filter constrains anything.
func (f Filter) IsZero() bool {
	return f.Journal == "" && f.PublishYear == "" && len(f.Attributes) == 0
}
