package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/generator"
	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/signals"
)

// stepSearchStrategy asks the strategy analyst for segments, keywords,
// and opportunity types. Prior runs for the domain push it toward
// unexplored angles.
func (r *run) stepSearchStrategy() Step {
	return Step{
		Name:    "s2_search_strategy",
		Timeout: r.tun.StepTimeout("s2", 300),
		Run: func(ctx context.Context) (*Delta, error) {
			strategy, err := r.writer.SearchStrategy(ctx, generator.StrategyInput{
				TargetCompany:      r.webhook.TargetCompany,
				TargetDomain:       r.webhook.TargetDomain,
				ProductDescription: r.webhook.ProductDescription,
				CampaignSignal:     r.webhook.CampaignID,
				PriorRunCount:      len(r.state.PriorRuns),
			})
			if err != nil {
				return nil, err
			}
			return &Delta{
				Keys:    []string{keyStrategy},
				Apply:   func(s *State) { s.Strategy = strategy },
				Message: fmt.Sprintf("kw=%v, types=%v", strategy.PrimaryKeywords, strategy.OpportunityTypes),
				Meta:    map[string]any{keyStrategy: strategy},
			}, nil
		},
	}
}

// stepPrimarySearch runs the opportunity search over the primary and
// meeting keywords.
func (r *run) stepPrimarySearch() Step {
	return Step{
		Name:    "s3a_primary_search",
		Timeout: r.tun.StepTimeout("s3a", 300),
		Run: func(ctx context.Context) (*Delta, error) {
			strategy := r.state.Strategy
			kw := strings.Join(append(append([]string{}, strategy.PrimaryKeywords...), strategy.MeetingKeywords...), " ")
			raw, err := r.p.signals.OpportunitySearch(ctx, signals.OpportunityQuery{
				SearchQuery: kw,
				Types:       strategy.OpportunityTypes,
				PageSize:    r.tun.OpportunityPageSize,
				SortField:   r.tun.OpportunitySortField,
			})
			if err != nil {
				return nil, err
			}
			opps := signals.Opportunities(raw)
			return &Delta{
				Keys:    []string{keySignalsA},
				Apply:   func(s *State) { s.SignalsA = opps },
				Message: fmt.Sprintf("%d results", len(opps)),
				Meta:    map[string]any{keySignalsA: opps},
			}, nil
		},
	}
}

// stepAlternateSearch runs the opportunity search over the alternate
// and RFP keywords. Skips when the strategy produced neither.
func (r *run) stepAlternateSearch() Step {
	return Step{
		Name:    "s3b_alternate_search",
		Timeout: r.tun.StepTimeout("s3b", 300),
		Run: func(ctx context.Context) (*Delta, error) {
			strategy := r.state.Strategy
			kw := strings.Join(append(append([]string{}, strategy.AlternateKeywords...), strategy.RFPKeywords...), " ")
			if strings.TrimSpace(kw) == "" {
				return Skip("No alternate/rfp keywords",
					func(s *State) { s.SignalsB = []models.Record{} }, keySignalsB), nil
			}
			raw, err := r.p.signals.OpportunitySearch(ctx, signals.OpportunityQuery{
				SearchQuery: kw,
				Types:       strategy.OpportunityTypes,
				PageSize:    r.tun.OpportunityPageSize,
				SortField:   r.tun.OpportunitySortField,
			})
			if err != nil {
				return nil, err
			}
			opps := signals.Opportunities(raw)
			return &Delta{
				Keys:    []string{keySignalsB},
				Apply:   func(s *State) { s.SignalsB = opps },
				Message: fmt.Sprintf("%d results", len(opps)),
				Meta:    map[string]any{keySignalsB: opps},
			}, nil
		},
	}
}

// stepBuyerTypeSearch finds buyers matching the strategy's buyer types,
// narrowed by the first significant word of the ideal buyer profile.
func (r *run) stepBuyerTypeSearch() Step {
	return Step{
		Name:    "s3c_buyer_type_search",
		Timeout: r.tun.StepTimeout("s3c", 300),
		Run: func(ctx context.Context) (*Delta, error) {
			strategy := r.state.Strategy
			if len(strategy.BuyerTypes) == 0 {
				return Skip("No buyer types in strategy",
					func(s *State) { s.BuyersC = []models.Record{} }, keyBuyersC), nil
			}
			var query string
			if words := config.SignificantWords(strategy.IdealBuyerProfile); len(words) > 0 {
				query = words[0]
			}
			raw, err := r.p.signals.BuyerSearch(ctx, signals.BuyerQuery{
				Query:      query,
				BuyerTypes: strategy.BuyerTypes,
				PageSize:   r.tun.BuyerSearchPageSize,
			})
			if err != nil {
				return nil, err
			}
			buyers := signals.Buyers(raw)
			return &Delta{
				Keys:    []string{keyBuyersC},
				Apply:   func(s *State) { s.BuyersC = buyers },
				Message: fmt.Sprintf("%d buyers", len(buyers)),
				Meta:    map[string]any{keyBuyersC: buyers},
			}, nil
		},
	}
}

// stepBuyerGeoSearch finds buyers in the strategy's geographic regions.
// Hints resolve to state codes; unrecognizable hints are dropped, and
// the step skips when none survive.
func (r *run) stepBuyerGeoSearch() Step {
	return Step{
		Name:    "s3d_buyer_geo_search",
		Timeout: r.tun.StepTimeout("s3d", 300),
		Run: func(ctx context.Context) (*Delta, error) {
			strategy := r.state.Strategy
			hints := strategy.GeographicHints
			if len(hints) > 3 {
				hints = hints[:3]
			}
			var states []string
			for _, hint := range hints {
				if code, ok := config.StateCode(hint); ok {
					states = append(states, code)
				}
			}
			if len(states) == 0 {
				return Skip("No geographic hints in strategy",
					func(s *State) { s.BuyersD = []models.Record{} }, keyBuyersD), nil
			}
			raw, err := r.p.signals.BuyerSearch(ctx, signals.BuyerQuery{
				States:   states,
				PageSize: r.tun.BuyerSearchPageSize,
			})
			if err != nil {
				return nil, err
			}
			buyers := signals.Buyers(raw)
			return &Delta{
				Keys:    []string{keyBuyersD},
				Apply:   func(s *State) { s.BuyersD = buyers },
				Message: fmt.Sprintf("%d buyers", len(buyers)),
				Meta:    map[string]any{keyBuyersD: buyers},
			}, nil
		},
	}
}
