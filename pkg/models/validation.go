package models

// ValidationResult summarizes the report quality gate: hard issues,
// non-fatal warnings, and whether a corrective rewrite was applied.
type ValidationResult struct {
	Passed    bool     `json:"passed"`
	Issues    []string `json:"issues"`
	Warnings  []string `json:"warnings"`
	Fixed     bool     `json:"fixed"`
	CheckedAt string   `json:"checked_at"`
}
