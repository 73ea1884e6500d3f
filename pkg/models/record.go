package models

import (
	"fmt"
	"strconv"
)

// Record is a schemaless payload from an external provider. Provider
// responses vary between camelCase and snake_case key spellings, so
// accessors take fallback key lists.
type Record map[string]any

// Str returns the first non-empty value among keys, rendered as a
// string. Empty strings, nils, and zero numbers fall through to the
// next key.
func (r Record) Str(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		case int:
			if v != 0 {
				return strconv.Itoa(v)
			}
		case bool, nil:
			// fall through
		default:
			if s := fmt.Sprint(v); s != "" && s != "map[]" && s != "[]" {
				return s
			}
		}
	}
	return ""
}

// Truthy reports whether the value under key is present and non-empty
// in the loose sense providers use: true booleans, non-zero numbers,
// and non-empty strings all count.
func (r Record) Truthy(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// Strings returns the value under key as a string slice, converting
// numeric entries and skipping anything else.
func (r Record) Strings(key string) []string {
	list, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		switch t := v.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		}
	}
	return out
}

// List returns the value under key as a slice of Records, tolerating
// both []any and already-typed []Record values.
func (r Record) List(key string) []Record {
	switch v := r[key].(type) {
	case []Record:
		return v
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, Record(m))
			}
		}
		return out
	default:
		return nil
	}
}
