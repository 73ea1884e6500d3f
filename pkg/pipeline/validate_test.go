package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govsignal/scout/pkg/generator"
	"github.com/govsignal/scout/pkg/models"
)

const publishedPageURL = "https://www.notion.so/Report-0123456789abcdef0123456789abcdef"
const publishedPageID = "0123456789abcdef0123456789abcdef"

// cleanValidationReport satisfies every deterministic check: featured
// name in the header, product mention, current footer date, length, and
// only well-formed emails.
func cleanValidationReport() string {
	return fmt.Sprintf(
		"# City of Austin Procurement Intelligence\n\nPrepared for **Acme Water**.\n\n"+
			"Jane Rivera (jane.rivera@austin.gov) leads procurement.\n\n%s\n\n"+
			"*Generated %s · GovSignal Procurement Intelligence*",
		strings.Repeat("Further signal detail follows. ", 30),
		time.Now().Format("January 2006"))
}

func validationRun(t *testing.T, report string) (*run, *testEnv, *fakeWriter) {
	t.Helper()
	r, env := newExecRun(t)
	w := &fakeWriter{}
	r.writer = w
	r.state.FeaturedName = "City of Austin"
	r.state.Report = report
	return r, env, w
}

func TestValidatePassesCleanReport(t *testing.T) {
	r, env, w := validationRun(t, cleanValidationReport())

	err := r.exec(context.Background(), r.stepValidate())
	require.NoError(t, err)

	result := r.state.Validation
	require.NotNil(t, result)
	assert.True(t, result.Passed)
	assert.NotNil(t, result.Issues)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.Fixed)
	assert.NotEmpty(t, result.CheckedAt)

	assert.Empty(t, r.state.FixedReport)
	assert.Zero(t, w.fixCalls)

	byStep := env.auditSteps(t, r.id)
	fc, found := byStep["s13_llm_fact_check"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, fc.Status)
	require.NotNil(t, fc.Message)
	assert.Equal(t, "PASS: No inconsistencies found", *fc.Message)

	entry, found := byStep["s13_validate"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Equal(t, "PASS: 0 issues, 0 warnings", *entry.Message)
	assert.NotContains(t, byStep, "s13_fix_report")
}

func TestValidateFlagsIssuesAndFixes(t *testing.T) {
	report := "## Report\n\nNothing here."
	r, env, w := validationRun(t, report)
	r.state.Secondary = []models.ScoredBuyer{{BuyerID: "b2", BuyerName: "Plano ISD"}}

	err := r.exec(context.Background(), r.stepValidate())
	require.NoError(t, err)

	result := r.state.Validation
	require.NotNil(t, result)
	assert.False(t, result.Passed)
	assert.Equal(t, []string{
		"Header missing featured buyer name 'City of Austin'",
		"Product name 'Acme Water' not found in report",
		fmt.Sprintf("Footer missing current date '%s'", time.Now().Format("January 2006")),
		fmt.Sprintf("Report suspiciously short (%d chars)", len(report)),
	}, result.Issues)
	assert.Equal(t, []string{"Secondary buyer 'Plano ISD' not found in report"}, result.Warnings)

	// The default fixer echoed the report back, which counts as fixed.
	assert.True(t, result.Fixed)
	assert.Equal(t, 1, w.fixCalls)
	assert.Equal(t, report, r.state.FixedReport)
	assert.True(t, r.state.has(keyFixedReport))

	byStep := env.auditSteps(t, r.id)
	fix, found := byStep["s13_fix_report"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, fix.Status)
	require.NotNil(t, fix.Message)
	assert.Equal(t, fmt.Sprintf("Fixed 5 findings, %d chars", len(report)), *fix.Message)

	entry, found := byStep["s13_validate"]
	require.True(t, found)
	assert.Equal(t, models.StepWarning, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Equal(t, "FAIL: 4 issues, 1 warnings, fixed + Notion updated", *entry.Message)

	// No page was published, so there is nothing to update.
	assert.NotContains(t, byStep, "s13_notion_update")
}

func TestValidateCatchesEmptyContactRowsAndBadEmails(t *testing.T) {
	report := cleanValidationReport() +
		"\n\n| Sam Ellis | Budget Director | — | — |\nReach the desk at a@b.c for details.\n"
	r, _, _ := validationRun(t, report)

	err := r.exec(context.Background(), r.stepValidate())
	require.NoError(t, err)

	result := r.state.Validation
	require.NotNil(t, result)
	assert.Equal(t, []string{
		"1 contact rows with no email AND no phone",
		"Malformed email 'a@b.c' in report",
	}, result.Issues)
	assert.False(t, result.Passed)
}

func TestValidateFactCheckFailVerdictIsWarning(t *testing.T) {
	r, env, w := validationRun(t, cleanValidationReport())
	w.factCheckFn = func(ctx context.Context, content string) (bool, string, error) {
		return false, "Report claims $12M but profile says $8M", nil
	}
	r.state.PageURL = publishedPageURL

	err := r.exec(context.Background(), r.stepValidate())
	require.NoError(t, err)

	result := r.state.Validation
	require.NotNil(t, result)
	assert.True(t, result.Passed, "a FAIL verdict is a warning, not an issue")
	assert.Equal(t, []string{"LLM consistency check: Report claims $12M but profile says $8M"},
		result.Warnings)
	assert.True(t, result.Fixed)

	byStep := env.auditSteps(t, r.id)
	fc, found := byStep["s13_llm_fact_check"]
	require.True(t, found)
	assert.Equal(t, models.StepWarning, fc.Status)
	require.NotNil(t, fc.Message)
	assert.Equal(t, "FAIL: Report claims $12M but profile says $8M", *fc.Message)

	entry, found := byStep["s13_validate"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Equal(t, "PASS: 0 issues, 1 warnings, fixed + Notion updated", *entry.Message)

	// The fixed report replaced the published page content.
	update, found := byStep["s13_notion_update"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, update.Status)
	require.NotNil(t, update.Message)
	assert.Equal(t, "Notion page updated with fixed report", *update.Message)
	assert.Equal(t, r.state.FixedReport, env.pub.updates[publishedPageID])
}

func TestValidateFactCheckTransportErrorFails(t *testing.T) {
	r, env, w := validationRun(t, cleanValidationReport())
	w.factCheckFn = func(ctx context.Context, content string) (bool, string, error) {
		return false, "", errors.New("model timeout")
	}

	err := r.exec(context.Background(), r.stepValidate())
	var extErr *ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "s13_validate", extErr.Step)

	assert.Nil(t, r.state.Validation)

	byStep := env.auditSteps(t, r.id)
	fc, found := byStep["s13_llm_fact_check"]
	require.True(t, found)
	assert.Equal(t, models.StepFailure, fc.Status)
	require.NotNil(t, fc.Message)
	assert.Equal(t, "model timeout", *fc.Message)
	assert.NotContains(t, byStep, "s13_validate")
}

func TestValidateFixerFailureDegrades(t *testing.T) {
	report := "too short"
	r, env, w := validationRun(t, report)
	w.fixFn = func(ctx context.Context, buyerName, rep string, issues, warnings []string) (string, error) {
		return "", errors.New("fixer crashed")
	}

	err := r.exec(context.Background(), r.stepValidate())
	require.NoError(t, err)

	result := r.state.Validation
	require.NotNil(t, result)
	assert.False(t, result.Passed)
	assert.False(t, result.Fixed)
	assert.Empty(t, r.state.FixedReport)
	assert.False(t, r.state.has(keyFixedReport))

	byStep := env.auditSteps(t, r.id)
	fix, found := byStep["s13_fix_report"]
	require.True(t, found)
	assert.Equal(t, models.StepWarning, fix.Status)
	require.NotNil(t, fix.Message)
	assert.Equal(t, "Fix failed: fixer crashed", *fix.Message)

	entry, found := byStep["s13_validate"]
	require.True(t, found)
	require.NotNil(t, entry.Message)
	assert.NotContains(t, *entry.Message, "fixed")
}

func TestValidateUnparseablePageURL(t *testing.T) {
	r, env, w := validationRun(t, cleanValidationReport())
	w.factCheckFn = func(ctx context.Context, content string) (bool, string, error) {
		return false, "minor inconsistency", nil
	}
	r.state.PageURL = "https://example.com/not-a-notion-page"

	err := r.exec(context.Background(), r.stepValidate())
	require.NoError(t, err)

	require.NotNil(t, r.state.Validation)
	assert.True(t, r.state.Validation.Fixed, "fix survives an unextractable page ID")

	update, found := env.auditSteps(t, r.id)["s13_notion_update"]
	require.True(t, found)
	assert.Equal(t, models.StepWarning, update.Status)
	require.NotNil(t, update.Message)
	assert.Equal(t, "Could not extract page ID from Notion URL", *update.Message)
}

func TestValidatePageUpdateFailureDegrades(t *testing.T) {
	r, env, w := validationRun(t, cleanValidationReport())
	w.factCheckFn = func(ctx context.Context, content string) (bool, string, error) {
		return false, "minor inconsistency", nil
	}
	r.state.PageURL = publishedPageURL
	env.pub.updateErr = errors.New("workspace returned 503")

	err := r.exec(context.Background(), r.stepValidate())
	require.NoError(t, err)

	require.NotNil(t, r.state.Validation)
	assert.True(t, r.state.Validation.Fixed)

	update, found := env.auditSteps(t, r.id)["s13_notion_update"]
	require.True(t, found)
	assert.Equal(t, models.StepWarning, update.Status)
	require.NotNil(t, update.Message)
	assert.Equal(t, "Notion update failed: workspace returned 503", *update.Message)
}

func TestFactCheckContentLayout(t *testing.T) {
	r, _ := newExecRun(t)
	r.tun.AIValidationSourceLimit = 12
	r.state.FeatProfile = map[string]any{"summary": strings.Repeat("p", 100)}
	r.state.FeatContacts = []models.Record{{"name": "Jane Rivera"}}
	r.state.FeatOpps = []models.Record{{"title": "Water metering RFP"}}
	r.state.FeatAIContext = strings.Repeat("c", 100)

	content := r.factCheckContent("REPORT BODY")

	assert.True(t, strings.HasPrefix(content, "REPORT:\nREPORT BODY\n\n"))
	for _, header := range []string{"PROFILE:\n", "CONTACTS:\n", "OPPORTUNITIES:\n", "AI CONTEXT:\n"} {
		assert.Contains(t, content, header)
	}

	// Order is fixed and each source is clipped to the budget.
	assert.Less(t, strings.Index(content, "PROFILE:"), strings.Index(content, "CONTACTS:"))
	assert.Less(t, strings.Index(content, "CONTACTS:"), strings.Index(content, "OPPORTUNITIES:"))
	assert.Less(t, strings.Index(content, "OPPORTUNITIES:"), strings.Index(content, "AI CONTEXT:"))
	assert.Contains(t, content, "AI CONTEXT:\n"+strings.Repeat("c", 12)+"\n")
	assert.NotContains(t, content, strings.Repeat("c", 13))
}

func TestAssembleBuildsInputAndFooter(t *testing.T) {
	r, env := newExecRun(t)
	w := &fakeWriter{
		assembleFn: func(ctx context.Context, in generator.AssembleInput) (string, string, error) {
			return "# Report\n\n\n\nBody", publishedPageURL, nil
		},
	}
	r.writer = w
	r.tun.AIReportSectionCharLimit = 5
	r.state.FeaturedName = "City of Austin"
	r.state.FeaturedType = "City"
	r.state.ExecSummary = strings.Repeat("e", 20)
	r.state.FeaturedSection = strings.Repeat("f", 20)
	r.state.SecondarySection = strings.Repeat("s", 20)
	r.state.CTA = strings.Repeat("t", 20)

	err := r.exec(context.Background(), r.stepAssemble())
	require.NoError(t, err)

	require.NotNil(t, w.assembleInput)
	in := *w.assembleInput
	assert.Equal(t, "Acme Water", in.TargetCompany)
	assert.Equal(t, "City of Austin", in.BuyerName)
	assert.Equal(t, "City", in.BuyerType)
	assert.Equal(t, strings.Repeat("e", 5), in.SectionExecSummary)
	assert.Equal(t, strings.Repeat("f", 5), in.SectionFeatured)
	assert.Equal(t, strings.Repeat("s", 5), in.SectionSecondary)
	assert.Equal(t, strings.Repeat("t", 5), in.SectionCTA)
	assert.Equal(t, "parent-page-id", in.ParentPageID)
	assert.NotEmpty(t, in.PublishTool)
	assert.Contains(t, in.ToolServers, "notion")
	assert.NotEmpty(t, in.AllowedTools)

	// Runs of blank lines collapse before the report is stored.
	assert.Equal(t, "# Report\n\nBody", r.state.Report)
	assert.Equal(t, publishedPageURL, r.state.PageURL)
	assert.Equal(t,
		fmt.Sprintf("*Generated %s · GovSignal Procurement Intelligence*", time.Now().Format("January 2006")),
		r.state.Footer)

	entry, found := env.auditSteps(t, r.id)["s12_assemble"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, entry.Status)
	assert.NotContains(t, env.auditSteps(t, r.id), "s12_assemble_retry")
}
