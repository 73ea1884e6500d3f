package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/generator"
	"github.com/govsignal/scout/pkg/models"
)

// stepExecSummary renders the executive summary from discovery totals.
// Pure template, no model call.
func (r *run) stepExecSummary() Step {
	return Step{
		Name:    "s8_exec_summary",
		Timeout: r.tun.StepTimeout("s8", 300),
		Run: func(ctx context.Context) (*Delta, error) {
			st := r.state
			signalCount := len(st.SignalsA) + len(st.SignalsB)
			buyerCount := len(st.AllScored)
			segStr := segmentLabels(st.Strategy.SLEDSegments, " and ")
			typeLabel := ""
			if st.FeaturedType != "" {
				typeLabel = config.BuyerTypeLabel(st.FeaturedType)
			}

			summary := fmt.Sprintf(
				"We scanned **%d procurement signals** across **%d SLED buyers** in the %s space for **%s**. Leading match: **%s**",
				signalCount, buyerCount, segStr, r.webhook.TargetCompany, st.FeaturedName)
			if typeLabel != "" {
				summary += fmt.Sprintf(" (%s)", typeLabel)
			}
			summary += ", with the strongest combination of signal recency, urgency, and relevance."

			return &Delta{
				Keys:    []string{keyExecSummary},
				Apply:   func(s *State) { s.ExecSummary = summary },
				Message: fmt.Sprintf("%d signals, %d buyers, featured=%s", signalCount, buyerCount, st.FeaturedName),
				Meta:    map[string]any{keyExecSummary: summary},
			}, nil
		},
	}
}

// stepFeaturedSection writes the featured-buyer deep dive. Raw intel is
// serialized and clipped to the snapshot's prompt budgets before it
// reaches the writer.
func (r *run) stepFeaturedSection() Step {
	return Step{
		Name:    "s9_featured_section",
		Timeout: r.tun.StepTimeout("s9", 300),
		Run: func(ctx context.Context) (*Delta, error) {
			st := r.state
			contacts := st.FeatContacts
			if len(contacts) > r.tun.AIContactsMax {
				contacts = contacts[:r.tun.AIContactsMax]
			}
			opps := st.FeatOpps
			if len(opps) > r.tun.AIOppsMax {
				opps = opps[:r.tun.AIOppsMax]
			}

			section, err := r.writer.FeaturedSection(ctx, generator.FeaturedInput{
				BuyerName:          st.FeaturedName,
				BuyerType:          st.FeaturedType,
				Product:            r.webhook.TargetCompany,
				ProductDescription: r.webhook.ProductDescription,
				CampaignSignal:     r.webhook.CampaignID,
				ProfileJSON:        clip(jsonIndent(st.FeatProfile), r.tun.AIProfileCharLimit),
				ContactsJSON:       clip(jsonIndent(contacts), r.tun.AIContactsCharLimit),
				OpportunitiesJSON:  clip(jsonIndent(opps), r.tun.AIOppsCharLimit),
				AIContext:          clip(st.FeatAIContext, r.tun.AIContextCharLimit),
			})
			if err != nil {
				return nil, err
			}
			return &Delta{
				Keys:    []string{keyFeaturedSection},
				Apply:   func(s *State) { s.FeaturedSection = section },
				Message: fmt.Sprintf("%d chars", len(section)),
				Meta:    map[string]any{keyFeaturedSection: section},
			}, nil
		},
	}
}

// stepSecondaryCards writes one compact card per secondary buyer. With
// no secondaries the section stays empty and no audit row is written.
func (r *run) stepSecondaryCards() Step {
	return Step{
		Name:      "s10_secondary_cards",
		SelfAudit: true,
		Run: func(ctx context.Context) (*Delta, error) {
			st := r.state
			secondaries := st.Secondary
			if len(secondaries) == 0 {
				return &Delta{
					Keys:  []string{keySecondarySection},
					Apply: func(s *State) { s.SecondarySection = "" },
				}, nil
			}
			if len(secondaries) > r.tun.MaxSecondaryBuyers {
				secondaries = secondaries[:r.tun.MaxSecondaryBuyers]
			}

			var b strings.Builder
			for i, buyer := range secondaries {
				btype := buyer.BuyerType
				if btype == "" {
					btype = "Unknown"
				}
				fmt.Fprintf(&b, "--- BUYER %d ---\n", i+1)
				fmt.Fprintf(&b, "Name: %s | Type: %s\n", buyer.BuyerName, btype)
				fmt.Fprintf(&b, "Score: %.3f | Signals: %d\n", buyer.Score, buyer.SignalCount)
				fmt.Fprintf(&b, "Top Signal: %s — %s\n", buyer.TopSignalType, buyer.TopSignalSummary)
				if i < len(st.SecProfiles) && st.SecProfiles[i] != nil {
					if pj, err := json.Marshal(st.SecProfiles[i]); err == nil {
						fmt.Fprintf(&b, "Profile: %s\n", clip(string(pj), 800))
					}
				}
				for _, sc := range st.SecContacts {
					if sc.BuyerID != buyer.BuyerID {
						continue
					}
					if len(sc.Contacts) > 0 {
						cons := sc.Contacts
						if len(cons) > 5 {
							cons = cons[:5]
						}
						if cj, err := json.Marshal(cons); err == nil {
							fmt.Fprintf(&b, "Contacts: %s\n", clip(string(cj), 800))
						}
					}
					break
				}
				b.WriteString("\n")
			}

			start := time.Now()
			section, err := r.writer.SecondaryCards(ctx, r.webhook.TargetCompany, r.webhook.ProductDescription, b.String())
			if err != nil {
				r.p.store.LogStep(context.Background(), r.id, "s10_secondary_cards",
					models.StepFailure, err.Error(), time.Since(start), nil)
				return nil, err
			}
			r.p.store.LogStep(ctx, r.id, "s10_secondary_cards", models.StepSuccess,
				fmt.Sprintf("%d chars, %d buyers", len(section), len(secondaries)),
				time.Since(start), summarizeMeta(map[string]any{keySecondarySection: section}))

			return &Delta{
				Keys:  []string{keySecondarySection},
				Apply: func(s *State) { s.SecondarySection = section },
			}, nil
		},
	}
}

// stepCTA renders the closing pitch from platform-wide counts in the
// snapshot. Pure template, no model call.
func (r *run) stepCTA() Step {
	return Step{
		Name:    "s11_cta",
		Timeout: r.tun.StepTimeout("s11", 300),
		Run: func(ctx context.Context) (*Delta, error) {
			st := r.state
			totalSignals := len(st.SignalsA) + len(st.SignalsB)
			buyerCount := len(st.AllScored)
			segStr := segmentLabels(st.Strategy.SLEDSegments, ", ")

			cta := fmt.Sprintf(
				"## What GovSignal Can Do\n\n"+
					"GovSignal monitors **%s government and education buyers** across all 50 states, "+
					"with **%s indexed board meetings and procurement records**. "+
					"For %s targeting %s buyers, we surface:\n\n"+
					"- **Active procurement signals** — RFPs, contract expirations, board discussions, and budget allocations\n"+
					"- **Verified decision-maker contacts** — directors, VPs, superintendents, and budget authorities\n"+
					"- **AI-powered buyer analysis** — strategic context synthesized from public records and FOIA data\n\n"+
					"This scan surfaced **%d signals** across **%d buyers** in the %s space.",
				r.tun.CTABuyersCount, r.tun.CTARecordsCount,
				r.webhook.TargetCompany, segStr, totalSignals, buyerCount, segStr)

			return &Delta{
				Keys:    []string{keyCTA},
				Apply:   func(s *State) { s.CTA = cta },
				Message: fmt.Sprintf("%d signals, %d buyers", totalSignals, buyerCount),
				Meta:    map[string]any{keyCTA: cta},
			}, nil
		},
	}
}

// segmentLabels joins the display labels of up to three segments, or
// "SLED" when the strategy named none.
func segmentLabels(segments []string, sep string) string {
	if len(segments) == 0 {
		return "SLED"
	}
	if len(segments) > 3 {
		segments = segments[:3]
	}
	labels := make([]string, 0, len(segments))
	for _, s := range segments {
		labels = append(labels, config.BuyerTypeLabel(s))
	}
	return strings.Join(labels, sep)
}

// jsonIndent renders v as indented JSON for prompt payloads, matching
// how persisted snapshots serialize. Unmarshalable values become null.
func jsonIndent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(b)
}
