package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/models"
)

// sectionRun builds a run with post-ranking state, ready for the
// section steps.
func sectionRun(w *fakeWriter) *run {
	webhook := testWebhook()
	r := &run{
		webhook: webhook,
		tun:     config.DefaultTunables(),
		writer:  w,
		state:   newState(webhook, 1),
	}
	r.state.Strategy = testStrategy()
	r.state.SignalsA = []models.Record{{"title": "a"}, {"title": "b"}, {"title": "c"}}
	r.state.SignalsB = []models.Record{{"title": "d"}}
	r.state.AllScored = []models.ScoredBuyer{
		{BuyerID: "b1", BuyerName: "City of Austin", BuyerType: "City"},
		{BuyerID: "b2", BuyerName: "Plano ISD", BuyerType: "SchoolDistrict"},
	}
	r.state.FeaturedID = "b1"
	r.state.FeaturedName = "City of Austin"
	r.state.FeaturedType = "City"
	return r
}

func TestExecSummaryTemplate(t *testing.T) {
	r := sectionRun(&fakeWriter{})

	delta, err := r.stepExecSummary().Run(context.Background())
	require.NoError(t, err)
	r.state.apply(delta)

	assert.Equal(t,
		"We scanned **4 procurement signals** across **2 SLED buyers** in the City and County space "+
			"for **Acme Water**. Leading match: **City of Austin** (City), with the strongest "+
			"combination of signal recency, urgency, and relevance.",
		r.state.ExecSummary)
	assert.Equal(t, "4 signals, 2 buyers, featured=City of Austin", delta.Message)
}

func TestExecSummaryOmitsUnknownTypeLabel(t *testing.T) {
	r := sectionRun(&fakeWriter{})
	r.state.FeaturedType = ""

	delta, err := r.stepExecSummary().Run(context.Background())
	require.NoError(t, err)
	r.state.apply(delta)

	assert.Contains(t, r.state.ExecSummary,
		"Leading match: **City of Austin**, with the strongest")
	assert.NotContains(t, r.state.ExecSummary, "(")
}

func TestSegmentLabels(t *testing.T) {
	assert.Equal(t, "SLED", segmentLabels(nil, " and "))
	assert.Equal(t, "City and County", segmentLabels([]string{"City", "County"}, " and "))
	assert.Equal(t, "School District, Higher Education",
		segmentLabels([]string{"SchoolDistrict", "HigherEducation"}, ", "))

	// Unmapped types pass through raw; only the first three are kept.
	assert.Equal(t, "City, County, Tribal",
		segmentLabels([]string{"City", "County", "Tribal", "Library"}, ", "))
}

func TestCTATemplate(t *testing.T) {
	r := sectionRun(&fakeWriter{})
	r.state.Strategy.SLEDSegments = []string{"City"}

	delta, err := r.stepCTA().Run(context.Background())
	require.NoError(t, err)
	r.state.apply(delta)

	cta := r.state.CTA
	assert.True(t, strings.HasPrefix(cta, "## What GovSignal Can Do\n\n"))
	assert.Contains(t, cta, "**296,000+ government and education buyers** across all 50 states")
	assert.Contains(t, cta, "**107M+ indexed board meetings and procurement records**")
	assert.Contains(t, cta, "For Acme Water targeting City buyers")
	assert.Contains(t, cta, "This scan surfaced **4 signals** across **2 buyers** in the City space.")
	assert.Equal(t, "4 signals, 2 buyers", delta.Message)
}

func TestFeaturedSectionClipsPromptPayloads(t *testing.T) {
	w := &fakeWriter{}
	r := sectionRun(w)
	r.tun.AIProfileCharLimit = 10
	r.tun.AIContextCharLimit = 8
	r.tun.AIContactsMax = 1

	r.state.FeatProfile = map[string]any{"summary": strings.Repeat("p", 50)}
	r.state.FeatContacts = []models.Record{{"name": "Jane Rivera"}, {"name": "Sam Ellis"}}
	r.state.FeatOpps = []models.Record{{"title": "Water metering RFP"}}
	r.state.FeatAIContext = strings.Repeat("c", 50)

	delta, err := r.stepFeaturedSection().Run(context.Background())
	require.NoError(t, err)
	r.state.apply(delta)

	require.NotNil(t, w.featuredInput)
	in := *w.featuredInput
	assert.Equal(t, "City of Austin", in.BuyerName)
	assert.Equal(t, "City", in.BuyerType)
	assert.Equal(t, "Acme Water", in.Product)
	assert.Equal(t, "Smart water metering platform", in.ProductDescription)
	assert.Equal(t, "contract expiring Q3", in.CampaignSignal)

	assert.Len(t, in.ProfileJSON, 10)
	assert.Equal(t, strings.Repeat("c", 8), in.AIContext)

	// Contacts beyond AIContactsMax never reach the prompt.
	assert.Contains(t, in.ContactsJSON, "Jane Rivera")
	assert.NotContains(t, in.ContactsJSON, "Sam Ellis")
	assert.Contains(t, in.OpportunitiesJSON, "Water metering RFP")

	assert.Contains(t, r.state.FeaturedSection, "## Featured Buyer: City of Austin")
}

func TestSecondaryCardsBuildsBuyersContent(t *testing.T) {
	r, env := newExecRun(t)
	w := &fakeWriter{}
	r.writer = w

	r.state.Secondary = []models.ScoredBuyer{
		{BuyerID: "b2", BuyerName: "Plano ISD", BuyerType: "SchoolDistrict",
			Score: 0.1, SignalCount: 1,
			TopSignalType: "board meeting", TopSignalSummary: "Facilities discussion"},
		{BuyerID: "b3", BuyerName: "Travis County"},
	}
	r.state.SecProfiles = []any{
		map[string]any{"summary": strings.Repeat("p", 900)},
		nil,
	}
	contacts := make([]models.Record, 7)
	for i := range contacts {
		contacts[i] = models.Record{"name": "Contact " + string(rune('1'+i))}
	}
	r.state.SecContacts = []models.SecondaryContacts{
		{BuyerID: "b2", BuyerName: "Plano ISD", Contacts: contacts},
	}

	err := r.exec(context.Background(), r.stepSecondaryCards())
	require.NoError(t, err)

	content := w.buyersContent
	assert.Contains(t, content, "--- BUYER 1 ---\nName: Plano ISD | Type: SchoolDistrict\n")
	assert.Contains(t, content, "Score: 0.100 | Signals: 1\n")
	assert.Contains(t, content, "Top Signal: board meeting — Facilities discussion\n")
	assert.Contains(t, content, `Profile: {"summary":"ppp`)

	// Contacts are capped at five per buyer; the sixth never appears.
	assert.Contains(t, content, "Contact 5")
	assert.NotContains(t, content, "Contact 6")
	assert.Equal(t, 1, strings.Count(content, "Contacts: "))

	// Missing type falls back to Unknown.
	assert.Contains(t, content, "--- BUYER 2 ---\nName: Travis County | Type: Unknown\n")

	assert.Equal(t, "## Additional Buyers\n\n"+content, r.state.SecondarySection)

	// The step records its own audit row.
	entry, found := env.auditSteps(t, r.id)["s10_secondary_cards"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Contains(t, *entry.Message, "2 buyers")
}

func TestSecondaryCardsEmptyStaysSilent(t *testing.T) {
	r, env := newExecRun(t)
	w := &fakeWriter{}
	r.writer = w

	err := r.exec(context.Background(), r.stepSecondaryCards())
	require.NoError(t, err)

	assert.True(t, r.state.has(keySecondarySection))
	assert.Empty(t, r.state.SecondarySection)
	assert.Empty(t, w.buyersContent)
	assert.NotContains(t, env.auditSteps(t, r.id), "s10_secondary_cards")
}

func TestSecondaryCardsWriterFailure(t *testing.T) {
	r, env := newExecRun(t)
	w := &fakeWriter{
		secondaryFn: func(ctx context.Context, product, productDesc, buyersContent string) (string, error) {
			return "", errors.New("generator unavailable")
		},
	}
	r.writer = w
	r.state.Secondary = []models.ScoredBuyer{{BuyerID: "b2", BuyerName: "Plano ISD"}}

	err := r.exec(context.Background(), r.stepSecondaryCards())
	var extErr *ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "s10_secondary_cards", extErr.Step)

	entry, found := env.auditSteps(t, r.id)["s10_secondary_cards"]
	require.True(t, found)
	assert.Equal(t, models.StepFailure, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Equal(t, "generator unavailable", *entry.Message)
}

func TestJSONIndent(t *testing.T) {
	assert.Equal(t, "null", jsonIndent(nil))
	assert.Equal(t, "{\n  \"a\": 1\n}", jsonIndent(map[string]any{"a": 1}))
	assert.Equal(t, "null", jsonIndent(func() {}))
}
