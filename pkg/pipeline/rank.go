package pipeline

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/models"
)

// Scoring weights. Type match dominates, then volume and recency,
// urgency, dollars, and keyword overlap.
const (
	weightType    = 0.25
	weightSignals = 0.20
	weightRecency = 0.20
	weightUrgency = 0.15
	weightDollar  = 0.10
	weightKeyword = 0.10
)

var dollarPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// bucket accumulates one buyer's identity and its discovered signals.
type bucket struct {
	id      string
	name    string
	btype   string
	signals []models.Record
}

// stepRankAndSelect merges the four discovery result sets, scores every
// buyer deterministically, and picks the featured buyer plus up to
// MaxSecondaryBuyers runners-up. No model calls; reranking a run with
// the same inputs always selects the same buyer.
func (r *run) stepRankAndSelect() Step {
	return Step{
		Name:    "s4_rank_and_select",
		Timeout: r.tun.StepTimeout("s4", 60),
		Run: func(ctx context.Context) (*Delta, error) {
			st := r.state
			allOpps := append(append([]models.Record{}, st.SignalsA...), st.SignalsB...)
			directBuyers := append(append([]models.Record{}, st.BuyersC...), st.BuyersD...)

			// Group opportunity signals by buyer, insertion order.
			var order []string
			buckets := map[string]*bucket{}
			for _, opp := range allOpps {
				bid := opp.Str("buyerId", "buyer_id", "id")
				if bid == "" {
					continue
				}
				b, ok := buckets[bid]
				if !ok {
					name := opp.Str("buyerName", "buyer_name", "name")
					if name == "" {
						name = "Unknown"
					}
					b = &bucket{id: bid, name: name, btype: opp.Str("buyerType", "buyer_type")}
					buckets[bid] = b
					order = append(order, bid)
				}
				b.signals = append(b.signals, opp)
			}

			// Direct buyer hits may carry zero signals; they only join
			// the pool when discovery did not already surface them.
			for _, b := range directBuyers {
				bid := b.Str("id", "buyerId")
				if bid == "" {
					continue
				}
				if _, ok := buckets[bid]; ok {
					continue
				}
				name := b.Str("name", "buyerName")
				if name == "" {
					name = "Unknown"
				}
				buckets[bid] = &bucket{id: bid, name: name, btype: b.Str("type", "buyerType")}
				order = append(order, bid)
			}

			if len(order) == 0 {
				return nil, ErrNoBuyers
			}

			strategy := st.Strategy
			kwSet := map[string]struct{}{}
			for _, kw := range strategy.PrimaryKeywords {
				for _, w := range strings.Fields(kw) {
					kwSet[strings.ToLower(w)] = struct{}{}
				}
			}
			for _, w := range config.SignificantWords(strategy.IdealBuyerProfile) {
				kwSet[strings.ToLower(w)] = struct{}{}
			}
			targetTypes := map[string]struct{}{}
			for _, t := range strategy.BuyerTypes {
				targetTypes[strings.ToLower(t)] = struct{}{}
			}

			scored := make([]models.ScoredBuyer, 0, len(order))
			sigCounts := make([]float64, 0, len(order))
			recencies := make([]float64, 0, len(order))
			urgencies := make([]float64, 0, len(order))
			dollars := make([]float64, 0, len(order))
			kwHits := make([]float64, 0, len(order))
			typeMatches := make([]float64, 0, len(order))

			for _, bid := range order {
				b := buckets[bid]
				sb := models.ScoredBuyer{
					BuyerID:     b.id,
					BuyerName:   b.name,
					BuyerType:   b.btype,
					SignalCount: len(b.signals),
				}
				if len(b.signals) > 0 {
					top := b.signals[0]
					sb.TopSignalType = top.Str("type")
					sb.TopSignalSummary = clip(top.Str("title", "summary"), 200)
				}
				scored = append(scored, sb)
				sigCounts = append(sigCounts, float64(len(b.signals)))
				recencies = append(recencies, signalRecency(b.signals))
				urgencies = append(urgencies, signalUrgency(b.signals))
				dollars = append(dollars, maxDollar(b.signals))
				kwHits = append(kwHits, float64(keywordHits(b.signals, kwSet)))
				typeMatches = append(typeMatches, typeMatch(b.btype, targetTypes))
			}

			maxSig := maxOrOne(sigCounts)
			maxDol := maxOrOne(dollars)
			maxKw := maxOrOne(kwHits)
			for i := range scored {
				score := weightType*typeMatches[i] +
					weightSignals*(sigCounts[i]/maxSig) +
					weightRecency*recencies[i] +
					weightUrgency*urgencies[i] +
					weightDollar*(dollars[i]/maxDol) +
					weightKeyword*(kwHits[i]/maxKw)
				scored[i].Score = math.Round(score*10000) / 10000
			}

			// Stable sort keeps discovery order for ties.
			sort.SliceStable(scored, func(i, j int) bool {
				return scored[i].Score > scored[j].Score
			})

			featured := scored[0]
			secondary := scored[1:]
			if len(secondary) > r.tun.MaxSecondaryBuyers {
				secondary = secondary[:r.tun.MaxSecondaryBuyers]
			}
			secondary = append([]models.ScoredBuyer{}, secondary...)

			rationale := fmt.Sprintf("Selected %s (score: %.3f) with %d signals. Top signal: %s — %s",
				featured.BuyerName, featured.Score, featured.SignalCount,
				featured.TopSignalType, clip(featured.TopSignalSummary, 100))

			secondaryMeta := make([]map[string]any, 0, len(secondary))
			for _, s := range secondary {
				secondaryMeta = append(secondaryMeta, map[string]any{"name": s.BuyerName, "score": s.Score})
			}

			return &Delta{
				Keys: []string{keyFeaturedID, keyFeaturedName, keyFeaturedType,
					keySecondary, keyRationale, keyAllScored, keyDirectBuyers},
				Apply: func(s *State) {
					s.FeaturedID = featured.BuyerID
					s.FeaturedName = featured.BuyerName
					s.FeaturedType = featured.BuyerType
					s.Secondary = secondary
					s.Rationale = rationale
					s.AllScored = scored
					s.DirectBuyers = dedupeByID(directBuyers)
				},
				Message: fmt.Sprintf("Featured=%s, %d total buyers", featured.BuyerName, len(scored)),
				Meta: map[string]any{
					"FEATURED": map[string]any{
						"name":    featured.BuyerName,
						"id":      featured.BuyerID,
						"score":   featured.Score,
						"signals": featured.SignalCount,
					},
					"SECONDARY_BUYERS": secondaryMeta,
					"TOTAL_SCORED":     len(scored),
				},
			}, nil
		},
	}
}

// stepPersistDiscovery backfills the run row with everything discovery
// produced and inserts one discovery row per scored buyer. After this
// step a crash can no longer lose the selection.
func (r *run) stepPersistDiscovery() Step {
	return Step{
		Name:    "s5_persist_discovery",
		Timeout: r.tun.StepTimeout("s5", 60),
		Run: func(ctx context.Context) (*Delta, error) {
			st := r.state
			if err := r.p.store.UpdateRunDiscovery(ctx, r.id, st.discoverySnapshot()); err != nil {
				return nil, err
			}
			if err := r.p.store.InsertDiscoveries(ctx, r.id, r.webhook.TargetDomain, st.AllScored); err != nil {
				return nil, err
			}
			return &Delta{
				Message: fmt.Sprintf("run_id=%d, %d discoveries", r.id, len(st.AllScored)),
				Meta:    map[string]any{"discoveries": len(st.AllScored), "run_id": r.id},
			}, nil
		},
	}
}

// signalRecency returns the freshness of the newest signal: 1.0 for
// today, fading linearly to zero at a year old. Unparseable dates are
// ignored.
func signalRecency(signals []models.Record) float64 {
	recency := 0.0
	for _, s := range signals {
		raw := s.Str("date", "createdAt", "created_at")
		if raw == "" {
			continue
		}
		dt, ok := parseSignalTime(raw)
		if !ok {
			continue
		}
		ageDays := float64(int(time.Since(dt).Hours() / 24))
		recency = math.Max(recency, math.Max(0, 365-ageDays)/365)
	}
	return recency
}

func parseSignalTime(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if dt, err := time.Parse(layout, raw); err == nil {
			return dt, true
		}
	}
	return time.Time{}, false
}

// signalUrgency is 1 when any signal is an RFP or expiring contract, or
// mentions a deadline in its title.
func signalUrgency(signals []models.Record) float64 {
	for _, s := range signals {
		stype := strings.ToLower(s.Str("type", "opportunityType"))
		if stype == "rfp" || stype == "contract" || stype == "contract expiration" {
			return 1.0
		}
		title := strings.ToLower(s.Str("title", "summary"))
		for _, w := range []string{"deadline", "expir", "due date", "rfp"} {
			if strings.Contains(title, w) {
				return 1.0
			}
		}
	}
	return 0.0
}

// maxDollar scans signal amounts, tolerating numeric values and
// formatted strings like "$1,200,000.50".
func maxDollar(signals []models.Record) float64 {
	best := 0.0
	for _, s := range signals {
		for _, key := range []string{"amount", "value", "contractAmount"} {
			switch v := s[key].(type) {
			case float64:
				best = math.Max(best, v)
			case int:
				best = math.Max(best, float64(v))
			case string:
				for _, m := range dollarPattern.FindAllString(strings.ReplaceAll(v, ",", ""), -1) {
					if n, err := strconv.ParseFloat(m, 64); err == nil {
						best = math.Max(best, n)
					}
				}
			}
		}
	}
	return best
}

// keywordHits counts strategy keywords appearing in signal titles and
// summaries.
func keywordHits(signals []models.Record, kwSet map[string]struct{}) int {
	hits := 0
	for _, s := range signals {
		text := strings.ToLower(fmt.Sprintf("%s %s", s.Str("title"), s.Str("summary")))
		for w := range kwSet {
			if strings.Contains(text, w) {
				hits++
			}
		}
	}
	return hits
}

// typeMatch is 1 when any comma-separated token of the buyer's type is
// one of the strategy's target types.
func typeMatch(buyerType string, targetTypes map[string]struct{}) float64 {
	for _, tok := range strings.Split(strings.ToLower(buyerType), ",") {
		if _, ok := targetTypes[strings.TrimSpace(tok)]; ok {
			return 1.0
		}
	}
	return 0.0
}

func maxOrOne(vals []float64) float64 {
	best := 0.0
	for _, v := range vals {
		best = math.Max(best, v)
	}
	if best == 0 {
		return 1
	}
	return best
}

// dedupeByID collapses direct buyer hits that appeared in both searches,
// keeping first-seen order and the last-seen record.
func dedupeByID(buyers []models.Record) []models.Record {
	out := make([]models.Record, 0, len(buyers))
	index := map[string]int{}
	for _, b := range buyers {
		bid := b.Str("id", "buyerId")
		if i, ok := index[bid]; ok {
			out[i] = b
			continue
		}
		index[bid] = len(out)
		out = append(out, b)
	}
	return out
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
