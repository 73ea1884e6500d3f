package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes {{.VAR_NAME}} references in YAML content with
// environment variable values. Template syntax is used instead of $
// expansion so literal dollar signs in values (regex patterns, keys)
// pass through untouched. Missing variables expand to empty strings;
// content that fails to parse as a template is returned unchanged.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("scout").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
