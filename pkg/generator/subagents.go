package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/models"
)

// pageURLDelimiter separates the report body from the page URL in the
// assembler's answer.
const pageURLDelimiter = "===PAGE_URL==="

// RunGenerator binds the client to one run's tunables snapshot so every
// sub-agent call uses the model and limits captured at admission.
type RunGenerator struct {
	client *Client
	tun    *config.Tunables
}

// ForRun returns a generator view bound to a run's snapshot.
func (c *Client) ForRun(tun *config.Tunables) *RunGenerator {
	return &RunGenerator{client: c, tun: tun}
}

func (g *RunGenerator) generate(ctx context.Context, system, user string) (string, error) {
	return g.client.Generate(ctx, Request{
		System:          system,
		User:            user,
		Model:           g.tun.LLMModel,
		MaxOutputTokens: g.tun.LLMMaxOutputTokens,
	})
}

// StrategyInput describes the vendor under analysis.
type StrategyInput struct {
	TargetCompany      string
	TargetDomain       string
	ProductDescription string
	CampaignSignal     string
	PriorRunCount      int
}

// SearchStrategy asks the strategy analyst which segments and keywords
// discovery should search. Missing keys in the answer get deterministic
// fallbacks so discovery always has something to run with.
func (g *RunGenerator) SearchStrategy(ctx context.Context, in StrategyInput) (*models.SearchStrategy, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n", in.TargetCompany)
	fmt.Fprintf(&b, "Domain: %s\n", in.TargetDomain)
	fmt.Fprintf(&b, "Product Description: %s\n", in.ProductDescription)
	fmt.Fprintf(&b, "Campaign Signal: %s\n", in.CampaignSignal)
	if in.PriorRunCount > 0 {
		fmt.Fprintf(&b, "\nPrior runs found for this domain: %d\n%s\n", in.PriorRunCount, diversifyInstruction)
	}

	raw, err := g.generate(ctx, strategySystemPrompt, b.String())
	if err != nil {
		return nil, err
	}
	return strategyFromRecord(ExtractJSON(raw), in), nil
}

func strategyFromRecord(rec models.Record, in StrategyInput) *models.SearchStrategy {
	s := &models.SearchStrategy{
		PrimaryKeywords:   rec.Strings("primary_keywords"),
		AlternateKeywords: rec.Strings("alternate_keywords"),
		MeetingKeywords:   rec.Strings("meeting_keywords"),
		RFPKeywords:       rec.Strings("rfp_keywords"),
		BuyerTypes:        rec.Strings("buyer_types"),
		OpportunityTypes:  rec.Strings("opportunity_types"),
		GeographicHints:   rec.Strings("geographic_hints"),
		SLEDSegments:      rec.Strings("sled_segments"),
		IdealBuyerProfile: rec.Str("ideal_buyer_profile"),
	}
	if len(s.PrimaryKeywords) == 0 {
		fallback := in.CampaignSignal
		if fallback == "" {
			fallback = in.TargetCompany
		}
		s.PrimaryKeywords = []string{fallback}
	}
	if len(s.OpportunityTypes) == 0 {
		s.OpportunityTypes = []string{"Meeting", "Purchase", "RFP", "Contract"}
	}
	if len(s.SLEDSegments) == 0 {
		s.SLEDSegments = append([]string(nil), s.BuyerTypes...)
	}
	if s.IdealBuyerProfile == "" {
		s.IdealBuyerProfile = truncate(in.ProductDescription, 200)
	}
	return s
}

// FeaturedInput carries the featured buyer's source data, already
// truncated to the run's prompt budgets by the caller.
type FeaturedInput struct {
	BuyerName          string
	BuyerType          string
	Product            string
	ProductDescription string
	CampaignSignal     string
	ProfileJSON        string
	ContactsJSON       string
	OpportunitiesJSON  string
	AIContext          string
}

// FeaturedSection writes the featured-buyer deep dive.
func (g *RunGenerator) FeaturedSection(ctx context.Context, in FeaturedInput) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "PROSPECT PRODUCT: %s\n", in.Product)
	fmt.Fprintf(&b, "PRODUCT DESCRIPTION: %s\n", in.ProductDescription)
	fmt.Fprintf(&b, "CAMPAIGN SIGNAL: %s\n\n", in.CampaignSignal)
	fmt.Fprintf(&b, "BUYER: %s\n", in.BuyerName)
	fmt.Fprintf(&b, "BUYER TYPE: %s\n\n", in.BuyerType)
	fmt.Fprintf(&b, "BUYER PROFILE:\n%s\n\n", in.ProfileJSON)
	fmt.Fprintf(&b, "CONTACTS:\n%s\n\n", in.ContactsJSON)
	fmt.Fprintf(&b, "OPPORTUNITIES:\n%s\n\n", in.OpportunitiesJSON)
	if in.AIContext != "" {
		fmt.Fprintf(&b, "AI STRATEGIC CONTEXT:\n%s\n", in.AIContext)
	}
	return g.generate(ctx, featuredSystemPrompt, b.String())
}

// SecondaryCards writes one compact card per secondary buyer.
// buyersContent is the pre-rendered per-buyer data block.
func (g *RunGenerator) SecondaryCards(ctx context.Context, product, productDesc, buyersContent string) (string, error) {
	content := fmt.Sprintf("PROSPECT PRODUCT: %s\nPRODUCT DESCRIPTION: %s\n\n%s",
		product, productDesc, buyersContent)
	return g.generate(ctx, secondarySystemPrompt, content)
}

// AssembleInput carries the pre-generated sections and the publishing
// tool surface for the assembler.
type AssembleInput struct {
	TargetCompany      string
	ProductDescription string
	BuyerName          string
	BuyerType          string
	SectionExecSummary string
	SectionFeatured    string
	SectionSecondary   string
	SectionCTA         string
	ParentPageID       string
	PublishTool        string
	ToolServers        map[string]any
	AllowedTools       []string
}

// AssembleAndPublish runs the assembler in tool mode: it combines the
// sections and publishes the page through the allowed tool, returning
// the assembled report plus the page URL.
func (g *RunGenerator) AssembleAndPublish(ctx context.Context, in AssembleInput) (string, string, error) {
	system := fmt.Sprintf(assembleSystemTemplate,
		time.Now().Format("January 2006"), in.PublishTool, in.ParentPageID, pageURLDelimiter)

	var b strings.Builder
	fmt.Fprintf(&b, "PROSPECT PRODUCT: %s\n", in.TargetCompany)
	fmt.Fprintf(&b, "PRODUCT DESCRIPTION: %s\n", in.ProductDescription)
	fmt.Fprintf(&b, "BUYER: %s\n", in.BuyerName)
	fmt.Fprintf(&b, "BUYER TYPE: %s\n\n", in.BuyerType)
	fmt.Fprintf(&b, "EXECUTIVE SUMMARY:\n%s\n\n", in.SectionExecSummary)
	fmt.Fprintf(&b, "FEATURED SECTION:\n%s\n\n", in.SectionFeatured)
	fmt.Fprintf(&b, "SECONDARY SECTION:\n%s\n\n", in.SectionSecondary)
	fmt.Fprintf(&b, "CALL TO ACTION:\n%s\n", in.SectionCTA)

	out, err := g.client.Generate(ctx, Request{
		System:          system,
		User:            b.String(),
		Model:           g.tun.LLMModel,
		MaxOutputTokens: g.tun.LLMMaxOutputTokens,
		Timeout:         time.Duration(g.tun.LLMToolTimeout) * time.Second,
		ToolServers:     in.ToolServers,
		AllowedTools:    in.AllowedTools,
	})
	if err != nil {
		return "", "", err
	}
	return splitReportAndURL(out)
}

// splitReportAndURL separates the assembler's answer into the report
// body and the published page URL.
func splitReportAndURL(out string) (string, string, error) {
	body, rest, found := strings.Cut(out, pageURLDelimiter)
	if !found {
		return "", "", fmt.Errorf("assembler output missing %s delimiter", pageURLDelimiter)
	}
	report := strings.TrimSpace(body)
	if report == "" {
		return "", "", errors.New("assembler produced no report before the URL delimiter")
	}
	for _, field := range strings.Fields(rest) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return report, field, nil
		}
	}
	return "", "", errors.New("assembler produced no page URL after the delimiter")
}

// FactCheck verifies the report against its source data. A FAIL verdict
// is a finding, not an error; the caller downgrades it to a warning.
func (g *RunGenerator) FactCheck(ctx context.Context, content string) (bool, string, error) {
	result, err := g.generate(ctx, factCheckSystemPrompt, content)
	if err != nil {
		return false, "", err
	}
	if strings.Contains(strings.ToUpper(result), "FAIL") {
		return false, truncate(result, 500), nil
	}
	return true, truncate(result, 200), nil
}

// FixReport rewrites the report to resolve validation findings and
// returns the corrected Markdown.
func (g *RunGenerator) FixReport(ctx context.Context, buyerName, report string, issues, warnings []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "BUYER: %s\n\nISSUES:\n", buyerName)
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	b.WriteString("\nWARNINGS:\n")
	for _, warning := range warnings {
		fmt.Fprintf(&b, "- %s\n", warning)
	}
	fmt.Fprintf(&b, "\nREPORT:\n%s\n", report)
	return g.generate(ctx, fixReportSystemPrompt, b.String())
}
