package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/signals"
)

// stepFeaturedIntel fetches profile, contacts, and the strategic-context
// chat answer for the featured buyer in parallel. Each fetch owns its
// audit row and its own budget; the chat gets the long one because the
// provider answers it asynchronously. Opportunities are reused from
// discovery rather than re-fetched.
func (r *run) stepFeaturedIntel() Step {
	return Step{
		Name:      "s6_featured_intel",
		SelfAudit: true,
		Run: func(ctx context.Context) (*Delta, error) {
			buyerID := r.state.FeaturedID
			buyerName := r.state.FeaturedName
			question := fmt.Sprintf(
				"What are %s's key strategic priorities, recent technology initiatives, "+
					"major procurement activity, and any leadership changes in the past 12 months? "+
					"Include specific initiative names, dollar amounts, and dates where available.",
				buyerName)

			var (
				profile  any
				contacts []models.Record
				aiCtx    string
			)

			g, gctx := newGroup(ctx, r.tun.MaxWorkersFeatured)
			g.Go(func() error {
				return r.fetchSub(gctx, "s6_buyer_profile", r.tun.StepTimeout("s7", 20),
					func(subCtx context.Context) (string, map[string]any, error) {
						raw, err := r.p.signals.BuyerProfile(subCtx, buyerID)
						if err != nil {
							return "", nil, err
						}
						profile = unwrapProfile(raw)
						return "", map[string]any{keyFeatProfile: profile}, nil
					})
			})
			g.Go(func() error {
				return r.fetchSub(gctx, "s6_buyer_contacts", r.tun.StepTimeout("s7", 20),
					func(subCtx context.Context) (string, map[string]any, error) {
						raw, err := r.p.signals.BuyerContacts(subCtx, buyerID, r.tun.FeaturedContactPageSize)
						if err != nil {
							return "", nil, err
						}
						contacts = signals.Contacts(raw)
						return fmt.Sprintf("%d contacts", len(contacts)),
							map[string]any{keyFeatContacts: contacts}, nil
					})
			})
			g.Go(func() error {
				return r.fetchSub(gctx, "s6_buyer_chat", r.tun.StepTimeout("s6", 330),
					func(subCtx context.Context) (string, map[string]any, error) {
						raw, err := r.p.signals.BuyerChat(subCtx, buyerID, question,
							r.tun.PollInterval(), time.Duration(r.tun.BuyerChatMaxWait)*time.Second)
						if err != nil {
							return "", nil, err
						}
						aiCtx = chatText(raw)
						if aiCtx == "" {
							return "", nil, fmt.Errorf("buyer_chat returned empty response for %s", buyerName)
						}
						return fmt.Sprintf("%d chars", len(aiCtx)),
							map[string]any{keyFeatAI: aiCtx}, nil
					})
			})
			if err := g.Wait(); err != nil {
				return nil, err
			}

			var opps []models.Record
			for _, o := range append(append([]models.Record{}, r.state.SignalsA...), r.state.SignalsB...) {
				if o.Str("buyerId", "buyer_id") == buyerID {
					opps = append(opps, o)
				}
			}

			return &Delta{
				Keys: []string{keyFeatProfile, keyFeatContacts, keyFeatOpps, keyFeatAI},
				Apply: func(s *State) {
					s.FeatProfile = profile
					s.FeatContacts = contacts
					s.FeatOpps = opps
					s.FeatAIContext = aiCtx
				},
			}, nil
		},
	}
}

// fetchSub runs one featured-intel fetch under its own budget and owns
// its audit row. Rows are written with a fresh context so a sibling
// failure cannot drop them; cancellation ripple from a sibling writes
// no row at all.
func (r *run) fetchSub(ctx context.Context, step string, budget time.Duration,
	fetch func(context.Context) (string, map[string]any, error)) error {

	start := time.Now()
	subCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	msg, meta, err := fetch(subCtx)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			terr := &StepTimeoutError{Step: step, Timeout: budget}
			r.p.store.LogStep(context.Background(), r.id, step, models.StepTimeout, terr.Error(), elapsed, nil)
			return terr
		}
		r.p.store.LogStep(context.Background(), r.id, step, models.StepFailure, err.Error(), elapsed, nil)
		return err
	}
	r.p.store.LogStep(context.Background(), r.id, step, models.StepSuccess, msg, elapsed, summarizeMeta(meta))
	return nil
}

// stepSecondaryIntel fetches profile and contacts for each secondary
// buyer, parallel across buyers. With no secondaries the step resolves
// silently and leaves no audit row.
func (r *run) stepSecondaryIntel() Step {
	return Step{
		Name:      "s7_secondary_intel",
		Timeout:   r.tun.StepTimeout("s7", 20),
		SelfAudit: true,
		Run: func(ctx context.Context) (*Delta, error) {
			secondaries := r.state.Secondary
			if len(secondaries) == 0 {
				return &Delta{
					Keys: []string{keySecProfiles, keySecContacts},
					Apply: func(s *State) {
						s.SecProfiles = []any{}
						s.SecContacts = []models.SecondaryContacts{}
					},
				}, nil
			}
			if len(secondaries) > r.tun.MaxSecondaryBuyers {
				secondaries = secondaries[:r.tun.MaxSecondaryBuyers]
			}

			start := time.Now()
			profiles := make([]any, len(secondaries))
			contactSets := make([]models.SecondaryContacts, len(secondaries))

			g, gctx := newGroup(ctx, r.tun.MaxWorkersSecondary)
			for i, buyer := range secondaries {
				g.Go(func() error {
					prof, err := r.p.signals.BuyerProfile(gctx, buyer.BuyerID)
					if err != nil {
						return err
					}
					rawContacts, err := r.p.signals.BuyerContacts(gctx, buyer.BuyerID, r.tun.SecondaryContactPageSize)
					if err != nil {
						return err
					}
					profiles[i] = prof
					contactSets[i] = models.SecondaryContacts{
						BuyerID:   buyer.BuyerID,
						BuyerName: buyer.BuyerName,
						Contacts:  signals.Contacts(rawContacts),
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}

			r.p.store.LogStep(ctx, r.id, "s7_secondary_intel", models.StepSuccess,
				fmt.Sprintf("%d profiles, %d contact sets", len(profiles), len(contactSets)),
				time.Since(start),
				summarizeMeta(map[string]any{keySecProfiles: profiles, keySecContacts: contactSets}))

			return &Delta{
				Keys: []string{keySecProfiles, keySecContacts},
				Apply: func(s *State) {
					s.SecProfiles = profiles
					s.SecContacts = contactSets
				},
			}, nil
		},
	}
}

// unwrapProfile peels the provider's {"profile": {...}} envelope when
// the inner value is non-empty.
func unwrapProfile(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	switch p := m["profile"].(type) {
	case map[string]any:
		if len(p) > 0 {
			return p
		}
	case string:
		if p != "" {
			return p
		}
	case nil:
	default:
		return p
	}
	return m
}

// chatText extracts the answer text from a buyer_chat response, which
// arrives either as a bare string or wrapped under one of several
// envelope keys.
func chatText(raw any) string {
	switch v := raw.(type) {
	case map[string]any:
		for _, key := range []string{"ai_response", "response", "answer"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return ""
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
