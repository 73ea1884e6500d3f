package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/govsignal/scout/pkg/generator"
	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/publisher"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// stepAssemble runs the assembler in tool mode: it combines the four
// sections into the final report and publishes the page, returning both
// the Markdown and the page URL. One retry; a fresh model call often
// fixes malformed tool parameters, and the workspace API occasionally
// 500s.
func (r *run) stepAssemble() Step {
	return Step{
		Name:      "s12_assemble",
		SelfAudit: true,
		Run: func(ctx context.Context) (*Delta, error) {
			if r.tun.NotionParentPageID == "" {
				return nil, errors.New("NOTION_PARENT_PAGE_ID not set, cannot publish")
			}

			limit := r.tun.AIReportSectionCharLimit
			in := generator.AssembleInput{
				TargetCompany:      r.webhook.TargetCompany,
				ProductDescription: r.webhook.ProductDescription,
				BuyerName:          r.state.FeaturedName,
				BuyerType:          r.state.FeaturedType,
				SectionExecSummary: clip(r.state.ExecSummary, limit),
				SectionFeatured:    clip(r.state.FeaturedSection, limit),
				SectionSecondary:   clip(r.state.SecondarySection, limit),
				SectionCTA:         clip(r.state.CTA, limit),
				ParentPageID:       r.tun.NotionParentPageID,
				PublishTool:        publisher.ToolCreatePage,
				ToolServers:        r.p.publisher.ToolServers(),
				AllowedTools:       r.p.publisher.AllowedTools(),
			}

			start := time.Now()
			var (
				report  string
				pageURL string
				err     error
			)
			for attempt := 1; attempt <= 2; attempt++ {
				report, pageURL, err = r.writer.AssembleAndPublish(ctx, in)
				if err == nil {
					break
				}
				if attempt == 1 {
					slog.Warn("Assemble attempt failed, retrying",
						"run_id", r.id, "error", err)
					r.p.store.LogStep(ctx, r.id, "s12_assemble_retry", models.StepWarning,
						fmt.Sprintf("Attempt 1 failed: %v, retrying...", err), 0, nil)
				}
			}
			if err != nil {
				return nil, err
			}

			report = blankLines.ReplaceAllString(report, "\n\n")
			footer := fmt.Sprintf("*Generated %s · GovSignal Procurement Intelligence*",
				time.Now().Format("January 2006"))

			r.p.store.LogStep(ctx, r.id, "s12_assemble", models.StepSuccess,
				fmt.Sprintf("%d chars", len(report)), time.Since(start),
				summarizeMeta(map[string]any{keyReport: report, keyPageURL: pageURL}))

			return &Delta{
				Keys: []string{keyReport, keyPageURL, keyFooter},
				Apply: func(s *State) {
					s.Report = report
					s.PageURL = pageURL
					s.Footer = footer
				},
			}, nil
		},
	}
}

// complete persists the finished run, inserts the featured buyer's
// contacts, and builds the success payload. The completion audit row
// carries the whole run's duration, not this step's.
func (r *run) complete(ctx context.Context) (map[string]any, error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	st := r.state

	if err := r.p.store.UpdateRunCompleted(ctx, r.id, st.snapshot()); err != nil {
		return nil, err
	}
	if len(st.FeatContacts) > 0 {
		if err := r.p.store.InsertContacts(ctx, r.id, st.FeaturedID, st.FeatContacts); err != nil {
			return nil, err
		}
	}

	elapsed := time.Since(r.started)
	r.p.store.LogStep(ctx, r.id, "s14_pipeline_complete", models.StepSuccess,
		fmt.Sprintf("total=%.1fs", elapsed.Seconds()), elapsed, map[string]any{
			"total_duration_seconds": roundTenth(elapsed),
			"buyer_name":             st.FeaturedName,
			"notion_url":             st.PageURL,
		})
	slog.Info("Run completed", "run_id", r.id, "buyer", st.FeaturedName, "url", st.PageURL)

	var validation any = map[string]any{}
	if st.Validation != nil {
		validation = st.Validation
	}
	return map[string]any{
		"status":          StatusSuccess,
		"buyer_id":        st.FeaturedID,
		"buyer_name":      st.FeaturedName,
		"report_url":      st.PageURL,
		"report_markdown": st.Report,
		"metadata": map[string]any{
			"profile_available":      st.FeatProfile != nil,
			"contacts_count":         len(st.FeatContacts),
			"opportunities_count":    len(st.FeatOpps),
			"secondary_buyers":       len(st.Secondary),
			"total_signals_scanned":  len(st.SignalsA) + len(st.SignalsB),
			"validation":             validation,
			"generation_timestamp":   time.Now().UTC().Format(time.RFC3339),
			"total_duration_seconds": roundTenth(elapsed),
		},
	}, nil
}
