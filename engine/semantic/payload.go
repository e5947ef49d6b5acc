package semantic

import (
	"encoding/json"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/chirag9899/citer/engine/domain"
)

// journalShadowKey holds a lowercased copy of the journal name so the
// journal filter can be matched natively in Qdrant while staying
// case-insensitive. It never leaves this package.
const journalShadowKey = "journal_lc"

// PayloadFromChunk flattens a chunk into the stored metadata record. The
// chunk id is duplicated into the payload since Qdrant point ids are
// derived UUIDs, not the caller-supplied ids.
func PayloadFromChunk(c domain.Chunk) map[string]any {
	return map[string]any{
		"id":              c.ID,
		"source_doc_id":   c.SourceDocID,
		"section_heading": c.SectionHeading,
		"journal":         c.Journal,
		journalShadowKey:  strings.ToLower(c.Journal),
		"publish_year":    c.PublishYear.String(),
		"usage_count":     c.UsageCount,
		"attributes":      c.Attributes,
		"link":            c.Link,
		"text":            c.Text,
	}
}

// toValues converts a payload map to the Qdrant wire representation.
func toValues(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case []string:
		vals := make([]*pb.Value, len(tv))
		for i, s := range tv {
			vals[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case []any:
		vals := make([]*pb.Value, len(tv))
		for i, e := range tv {
			vals[i] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

// fromValues converts a Qdrant payload back to a metadata map, dropping
// the internal journal shadow key.
func fromValues(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == journalShadowKey {
			continue
		}
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *pb.Value) any {
	switch kv := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kv.StringValue
	case *pb.Value_IntegerValue:
		return int(kv.IntegerValue)
	case *pb.Value_DoubleValue:
		return kv.DoubleValue
	case *pb.Value_BoolValue:
		return kv.BoolValue
	case *pb.Value_ListValue:
		vals := make([]any, len(kv.ListValue.GetValues()))
		for i, e := range kv.ListValue.GetValues() {
			vals[i] = fromValue(e)
		}
		return vals
	default:
		return nil
	}
}

// UsageCount reads the usage counter out of a metadata map, tolerating
// the numeric types a round trip may produce.
func UsageCount(meta map[string]any) int {
	switch n := meta["usage_count"].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Attributes reads the attribute tags out of a metadata map. The value is
// a string list for chunks written by this service, but older records may
// carry a JSON-encoded string instead; both forms are accepted.
func Attributes(meta map[string]any) []string {
	switch av := meta["attributes"].(type) {
	case []string:
		return av
	case []any:
		out := make([]string, 0, len(av))
		for _, e := range av {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(av), &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// MetaString reads a string field from a metadata map.
func MetaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}
