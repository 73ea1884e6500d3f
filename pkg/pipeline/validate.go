package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/publisher"
)

var (
	emptyContactRow = regexp.MustCompile(`\|[^|]+\|[^|]+\|\s*—\s*\|\s*—\s*\|`)
	emailToken      = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)
	strictEmail     = regexp.MustCompile(`^[\w.+-]+@[\w.-]+\.\w{2,}$`)
)

// stepValidate runs the deterministic report checks plus the model
// consistency check, then fixes the report and updates the published
// page when findings exist. Fixer and page-update failures degrade to
// warning rows; only a fact-check transport error fails the run.
func (r *run) stepValidate() Step {
	return Step{
		Name:      "s13_validate",
		SelfAudit: true,
		Run: func(ctx context.Context) (*Delta, error) {
			stepStart := time.Now()
			st := r.state
			report := st.Report

			issues := []string{}
			warnings := []string{}

			if st.FeaturedName != "" && !strings.Contains(clip(report, 500), st.FeaturedName) {
				issues = append(issues, fmt.Sprintf("Header missing featured buyer name '%s'", st.FeaturedName))
			}
			if product := r.webhook.TargetCompany; product != "" &&
				!strings.Contains(strings.ToLower(report), strings.ToLower(product)) {
				issues = append(issues, fmt.Sprintf("Product name '%s' not found in report", product))
			}
			if expected := time.Now().Format("January 2006"); !strings.Contains(report, expected) {
				issues = append(issues, fmt.Sprintf("Footer missing current date '%s'", expected))
			}
			if rows := emptyContactRow.FindAllString(report, -1); len(rows) > 0 {
				issues = append(issues, fmt.Sprintf("%d contact rows with no email AND no phone", len(rows)))
			}
			if len(report) < 500 {
				issues = append(issues, fmt.Sprintf("Report suspiciously short (%d chars)", len(report)))
			}
			for _, email := range emailToken.FindAllString(report, -1) {
				if !strictEmail.MatchString(email) {
					issues = append(issues, fmt.Sprintf("Malformed email '%s' in report", email))
				}
			}
			seen := map[string]struct{}{}
			for _, b := range st.Secondary {
				if _, dup := seen[b.BuyerName]; dup {
					continue
				}
				seen[b.BuyerName] = struct{}{}
				if !strings.Contains(report, b.BuyerName) {
					warnings = append(warnings, fmt.Sprintf("Secondary buyer '%s' not found in report", b.BuyerName))
				}
			}

			// A FAIL verdict is a finding, not an error. Only transport
			// failures abort.
			fcStart := time.Now()
			fcPassed, detail, err := r.writer.FactCheck(ctx, r.factCheckContent(report))
			if err != nil {
				r.p.store.LogStep(context.Background(), r.id, "s13_llm_fact_check",
					models.StepFailure, err.Error(), time.Since(fcStart), nil)
				return nil, err
			}
			fcStatus, fcVerdict := models.StepSuccess, "PASS"
			if !fcPassed {
				warnings = append(warnings, "LLM consistency check: "+detail)
				fcStatus, fcVerdict = models.StepWarning, "FAIL"
			}
			r.p.store.LogStep(ctx, r.id, "s13_llm_fact_check", fcStatus,
				fmt.Sprintf("%s: %s", fcVerdict, clip(detail, 100)), time.Since(fcStart), nil)

			passed := len(issues) == 0

			var fixedReport string
			if len(issues)+len(warnings) > 0 {
				fixedReport = r.fixAndRepublish(ctx, report, issues, warnings)
			}
			fixed := fixedReport != ""

			status, verdict := models.StepSuccess, "PASS"
			if !passed {
				status, verdict = models.StepWarning, "FAIL"
			}
			msg := fmt.Sprintf("%s: %d issues, %d warnings", verdict, len(issues), len(warnings))
			if fixed {
				msg += ", fixed + Notion updated"
			}
			r.p.store.LogStep(ctx, r.id, "s13_validate", status, msg, time.Since(stepStart),
				map[string]any{"issues": issues, "warnings": warnings, "fixed": fixed})

			result := &models.ValidationResult{
				Passed:    passed,
				Issues:    issues,
				Warnings:  warnings,
				Fixed:     fixed,
				CheckedAt: time.Now().UTC().Format(time.RFC3339),
			}
			keys := []string{keyValidation}
			if fixed {
				keys = append(keys, keyFixedReport)
			}
			return &Delta{
				Keys: keys,
				Apply: func(s *State) {
					s.Validation = result
					s.FixedReport = fixedReport
				},
			}, nil
		},
	}
}

// fixAndRepublish asks the fixer to rewrite the report, then pushes the
// corrected content to the already-published page. Returns the fixed
// Markdown, or "" when the fixer failed.
func (r *run) fixAndRepublish(ctx context.Context, report string, issues, warnings []string) string {
	fixStart := time.Now()
	fixedOut, err := r.writer.FixReport(ctx, r.state.FeaturedName, report, issues, warnings)
	if err != nil {
		r.p.store.LogStep(ctx, r.id, "s13_fix_report", models.StepWarning,
			fmt.Sprintf("Fix failed: %v", err), time.Since(fixStart), nil)
		return ""
	}
	fixedReport := blankLines.ReplaceAllString(fixedOut, "\n\n")
	r.p.store.LogStep(ctx, r.id, "s13_fix_report", models.StepSuccess,
		fmt.Sprintf("Fixed %d findings, %d chars", len(issues)+len(warnings), len(fixedReport)),
		time.Since(fixStart), nil)

	if fixedReport == "" || r.state.PageURL == "" {
		return fixedReport
	}
	upStart := time.Now()
	pageID, ok := publisher.PageIDFromURL(r.state.PageURL)
	if !ok {
		r.p.store.LogStep(ctx, r.id, "s13_notion_update", models.StepWarning,
			"Could not extract page ID from Notion URL", time.Since(upStart), nil)
		return fixedReport
	}
	if err := r.p.publisher.UpdatePageContent(ctx, pageID, fixedReport); err != nil {
		r.p.store.LogStep(ctx, r.id, "s13_notion_update", models.StepWarning,
			fmt.Sprintf("Notion update failed: %v", err), time.Since(upStart), nil)
		return fixedReport
	}
	r.p.store.LogStep(ctx, r.id, "s13_notion_update", models.StepSuccess,
		"Notion page updated with fixed report", time.Since(upStart), nil)
	return fixedReport
}

// factCheckContent pairs the report with the source intel the checker
// verifies it against, each source clipped to the validation budget.
func (r *run) factCheckContent(report string) string {
	st := r.state
	limit := r.tun.AIValidationSourceLimit
	var b strings.Builder
	fmt.Fprintf(&b, "REPORT:\n%s\n\n", report)
	fmt.Fprintf(&b, "PROFILE:\n%s\n\n", clip(jsonIndent(st.FeatProfile), limit))
	fmt.Fprintf(&b, "CONTACTS:\n%s\n\n", clip(jsonIndent(st.FeatContacts), limit))
	fmt.Fprintf(&b, "OPPORTUNITIES:\n%s\n\n", clip(jsonIndent(st.FeatOpps), limit))
	fmt.Fprintf(&b, "AI CONTEXT:\n%s\n", clip(st.FeatAIContext, limit))
	return b.String()
}
