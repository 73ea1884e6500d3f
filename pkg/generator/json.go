package generator

import (
	"encoding/json"
	"regexp"

	"github.com/govsignal/scout/pkg/models"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	braceBlock = regexp.MustCompile(`\{[\s\S]*\}`)
)

// ExtractJSON pulls the first JSON object out of sub-agent text. It
// tries the whole text, then the first fenced code block, then the
// widest brace-delimited span. Prompts that demand JSON still get prose
// around it sometimes; callers supply defaults for missing keys, so an
// empty record is returned rather than an error.
func ExtractJSON(text string) models.Record {
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil && out != nil {
		return out
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &out); err == nil {
			return out
		}
	}
	if m := braceBlock.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &out); err == nil {
			return out
		}
	}
	return models.Record{}
}
