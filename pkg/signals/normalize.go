package signals

import "github.com/govsignal/scout/pkg/models"

// Opportunities normalizes an opportunity search payload to a record
// list.
func Opportunities(raw any) []models.Record { return itemsUnder(raw, "opportunities") }

// Buyers normalizes a buyer search payload to a record list.
func Buyers(raw any) []models.Record { return itemsUnder(raw, "buyers") }

// Contacts normalizes a contacts payload to a record list.
func Contacts(raw any) []models.Record { return itemsUnder(raw, "contacts") }

// itemsUnder flattens list payloads the provider returns either bare or
// keyed under a collection name, "results", or "data". An empty list
// under one key falls through to the next.
func itemsUnder(raw any, key string) []models.Record {
	switch v := raw.(type) {
	case []any:
		return records(v)
	case map[string]any:
		for _, k := range []string{key, "results", "data"} {
			if list, ok := v[k].([]any); ok && len(list) > 0 {
				return records(list)
			}
		}
	}
	return nil
}

func records(list []any) []models.Record {
	out := make([]models.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, models.Record(m))
		}
	}
	return out
}
