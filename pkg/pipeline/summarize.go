package pipeline

import (
	"encoding/json"
	"fmt"
)

// Metadata summarization caps for audit rows. Full content is kept for
// display; only extreme strings and long lists are reduced.
const (
	metaMaxString    = 10000
	metaMaxItems     = 10
	metaSampleString = 500
	metaSampleKeys   = 15
	metaDictKeys     = 20
)

// summarizeMeta shrinks a step's metadata for the audit log. Strings
// over 10000 chars are cut with a "... (N chars)" marker. Lists collapse
// to {_count, _sample} with at most 10 sampled items; nested maps keep
// a bounded number of keys with capped string values.
func summarizeMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = summarizeValue(v)
	}
	return out
}

func summarizeValue(v any) any {
	switch val := v.(type) {
	case string:
		if len(val) > metaMaxString {
			return fmt.Sprintf("%s... (%d chars)", val[:metaMaxString], len(val))
		}
		return val
	case map[string]any:
		return sampleMap(val, metaDictKeys)
	default:
		if list, ok := toList(v); ok {
			return summarizeList(list)
		}
		if m, ok := toMap(v); ok {
			return sampleMap(m, metaDictKeys)
		}
		return v
	}
}

func summarizeList(list []any) map[string]any {
	sample := list
	if len(sample) > metaMaxItems {
		sample = sample[:metaMaxItems]
	}
	cleaned := make([]any, 0, len(sample))
	for _, item := range sample {
		if m, ok := toMap(item); ok {
			cleaned = append(cleaned, sampleMap(m, metaSampleKeys))
		} else {
			cleaned = append(cleaned, item)
		}
	}
	return map[string]any{"_count": len(list), "_sample": cleaned}
}

// sampleMap keeps at most maxKeys entries with string values capped at
// 500 chars. Key order is whatever JSON re-encoding yields; the sample
// exists for inspection, not round-tripping.
func sampleMap(m map[string]any, maxKeys int) map[string]any {
	out := make(map[string]any, len(m))
	n := 0
	for k, v := range m {
		if n >= maxKeys {
			break
		}
		if s, ok := v.(string); ok && len(s) > metaSampleString {
			out[k] = s[:metaSampleString] + "..."
		} else {
			out[k] = v
		}
		n++
	}
	return out
}

// toList accepts the concrete list shapes steps put in metadata.
// Anything else goes through a JSON round trip, which also normalizes
// typed structs into inspectable maps.
func toList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case nil, string, bool, int, int64, float64:
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

func toMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}
