// Package pipeline runs the report workflow: webhook fields in, ranked
// buyer intelligence gathered from the signals provider, sections
// written by generator sub-agents, and a published page out. Every step
// leaves an audit row; failures persist whatever state was collected.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/generator"
	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/signals"
	"github.com/govsignal/scout/pkg/store"
)

// SignalsAPI is the slice of the provider client the pipeline calls.
type SignalsAPI interface {
	OpportunitySearch(ctx context.Context, q signals.OpportunityQuery) (any, error)
	BuyerSearch(ctx context.Context, q signals.BuyerQuery) (any, error)
	BuyerProfile(ctx context.Context, buyerID string) (any, error)
	BuyerContacts(ctx context.Context, buyerID string, pageSize int) (any, error)
	BuyerChat(ctx context.Context, buyerID, question string, pollInterval, maxWait time.Duration) (any, error)
}

// SectionWriter is the per-run generator surface, already bound to the
// run's tunables snapshot.
type SectionWriter interface {
	SearchStrategy(ctx context.Context, in generator.StrategyInput) (*models.SearchStrategy, error)
	FeaturedSection(ctx context.Context, in generator.FeaturedInput) (string, error)
	SecondaryCards(ctx context.Context, product, productDesc, buyersContent string) (string, error)
	AssembleAndPublish(ctx context.Context, in generator.AssembleInput) (string, string, error)
	FactCheck(ctx context.Context, content string) (bool, string, error)
	FixReport(ctx context.Context, buyerName, report string, issues, warnings []string) (string, error)
}

// WriterFactory binds a SectionWriter to one run's tunables snapshot.
type WriterFactory func(tun *config.Tunables) SectionWriter

// PublisherAPI is the workspace surface the pipeline needs: the tool
// wiring handed to the assembler and the direct page update used by the
// validator's fix-up.
type PublisherAPI interface {
	ToolServers() map[string]any
	AllowedTools() []string
	UpdatePageContent(ctx context.Context, pageID, content string) error
}

// Pipeline holds the long-lived dependencies shared by all runs.
type Pipeline struct {
	store     *store.Store
	signals   SignalsAPI
	publisher PublisherAPI
	writerFor WriterFactory
}

// New assembles a pipeline from its clients.
func New(st *store.Store, signals SignalsAPI, publisher PublisherAPI, writerFor WriterFactory) *Pipeline {
	return &Pipeline{
		store:     st,
		signals:   signals,
		publisher: publisher,
		writerFor: writerFor,
	}
}

// Input is one admitted run: the pre-created run row, the webhook that
// produced it, and the config snapshot taken at submission.
type Input struct {
	RunID     int64
	Webhook   models.WebhookPayload
	Tunables  config.Tunables
	StartedAt time.Time
}

// Outcome statuses mirror the response payloads.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Outcome is the run's terminal result. Payload is the response body
// shape for the corresponding status; Err is set for error/cancelled.
type Outcome struct {
	Status  string
	Payload map[string]any
	Err     error
}

// run carries one execution's working set.
type run struct {
	p       *Pipeline
	id      int64
	webhook models.WebhookPayload
	tun     config.Tunables
	writer  SectionWriter
	started time.Time
	state   *State
}

// Run executes the full workflow for one admitted run. Cancellation
// arrives through ctx; the run is marked cancelled rather than failed
// when that is what ended it.
func (p *Pipeline) Run(ctx context.Context, in Input) Outcome {
	r := &run{
		p:       p,
		id:      in.RunID,
		webhook: in.Webhook,
		tun:     in.Tunables,
		writer:  p.writerFor(&in.Tunables),
		started: in.StartedAt,
		state:   newState(in.Webhook, in.RunID),
	}
	if r.started.IsZero() {
		r.started = time.Now()
	}

	slog.Info("Pipeline starting",
		"run_id", r.id,
		"target_company", in.Webhook.TargetCompany,
		"target_domain", in.Webhook.TargetDomain)

	payload, err := r.execute(ctx)
	switch {
	case err == nil:
		slog.Info("Pipeline complete", "run_id", r.id,
			"duration", time.Since(r.started).Round(time.Second))
		return Outcome{Status: StatusSuccess, Payload: payload}
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return r.cancelled()
	default:
		return r.failed(err)
	}
}

// execute walks the phases. Phase boundaries double as cancellation
// checks; parallel phases run under errgroups whose limits come from
// the run's snapshot.
func (r *run) execute(ctx context.Context) (map[string]any, error) {
	// Phase I-II: parse + validate, audited retroactively so the rows
	// carry real durations even though they run outside the executor.
	t0 := time.Now()
	if err := r.parseWebhook(); err != nil {
		return nil, err
	}
	r.logRetro(ctx, "s0_parse_webhook",
		"target="+r.webhook.TargetCompany+" ("+r.webhook.TargetDomain+")",
		time.Since(t0), map[string]any{
			"target_company":      r.webhook.TargetCompany,
			"target_domain":       r.webhook.TargetDomain,
			"product_description": r.webhook.ProductDescription,
		})

	t1 := time.Now()
	msg, meta, err := r.validateAndLoad(ctx)
	if err != nil {
		return nil, err
	}
	r.logRetro(ctx, "s1_validate_and_load", msg, time.Since(t1), meta)

	// Phase III: search strategy.
	if err := r.exec(ctx, r.stepSearchStrategy()); err != nil {
		return nil, err
	}

	// Phase IV: discovery fan-out.
	if err := r.discoverPhase(ctx); err != nil {
		return nil, err
	}

	// Phase V: rank + persist.
	if err := r.exec(ctx, r.stepRankAndSelect()); err != nil {
		return nil, err
	}
	if err := r.exec(ctx, r.stepPersistDiscovery()); err != nil {
		return nil, err
	}

	// Phase VI: enrichment and section generation fan-out.
	if err := r.generatePhase(ctx); err != nil {
		return nil, err
	}

	// Phase VII: assemble, validate, complete.
	if err := r.exec(ctx, r.stepAssemble()); err != nil {
		return nil, err
	}
	if err := r.exec(ctx, r.stepValidate()); err != nil {
		return nil, err
	}
	return r.complete(ctx)
}

// discoverPhase runs the four discovery searches in parallel. The two
// buyer searches skip themselves when the strategy gave them nothing.
func (r *run) discoverPhase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	g, gctx := newGroup(ctx, r.tun.MaxWorkersDiscovery)
	g.Go(func() error { return r.exec(gctx, r.stepPrimarySearch()) })
	g.Go(func() error { return r.exec(gctx, r.stepAlternateSearch()) })
	g.Go(func() error { return r.exec(gctx, r.stepBuyerTypeSearch()) })
	g.Go(func() error { return r.exec(gctx, r.stepBuyerGeoSearch()) })
	return g.Wait()
}

// generatePhase runs the four section branches in parallel: the two
// template sections, featured intel feeding the featured section, and
// secondary intel feeding the cards.
func (r *run) generatePhase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	g, gctx := newGroup(ctx, r.tun.MaxWorkersEnrichment)
	g.Go(func() error { return r.exec(gctx, r.stepExecSummary()) })
	g.Go(func() error {
		if err := r.exec(gctx, r.stepFeaturedIntel()); err != nil {
			return err
		}
		return r.exec(gctx, r.stepFeaturedSection())
	})
	g.Go(func() error {
		if err := r.exec(gctx, r.stepSecondaryIntel()); err != nil {
			return err
		}
		return r.exec(gctx, r.stepSecondaryCards())
	})
	g.Go(func() error { return r.exec(gctx, r.stepCTA()) })
	return g.Wait()
}

// logRetro writes an audit row for work that ran outside the executor.
func (r *run) logRetro(ctx context.Context, step, message string, elapsed time.Duration, meta map[string]any) {
	r.p.store.LogStep(ctx, r.id, step, models.StepSuccess, message, elapsed, meta)
}

// cancelled marks the run cancelled and builds the cancelled payload.
// Persistence uses a fresh context: the run's own is already dead.
func (r *run) cancelled() Outcome {
	elapsed := time.Since(r.started)
	slog.Warn("Pipeline cancelled", "run_id", r.id, "after", elapsed.Round(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.p.store.UpdateRunCancelled(ctx, r.id); err != nil {
		slog.Error("Failed to persist cancel state", "run_id", r.id, "error", err)
	}
	r.p.store.LogStep(ctx, r.id, "pipeline_cancelled", models.StepFailure,
		"Cancelled by user", elapsed, map[string]any{"last_keys": r.state.Keys()})

	return Outcome{
		Status: StatusCancelled,
		Err:    ErrCancelled,
		Payload: map[string]any{
			"status": StatusCancelled,
			"run_id": r.id,
			"metadata": map[string]any{
				"generation_timestamp":    time.Now().UTC().Format(time.RFC3339),
				"cancelled_after_seconds": roundTenth(elapsed),
			},
		},
	}
}

// failed persists the partial state and marks the run failed, then
// builds the error payload carrying everything collected so far.
func (r *run) failed(err error) Outcome {
	elapsed := time.Since(r.started)
	slog.Error("Pipeline failed", "run_id", r.id, "error", err,
		"after", elapsed.Round(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if dbErr := r.p.store.UpdateRunFailed(ctx, r.id, err.Error(), r.state.snapshot()); dbErr != nil {
		slog.Error("Failed to persist failure state", "run_id", r.id, "error", dbErr)
	}
	r.p.store.LogStep(ctx, r.id, "pipeline_failed", models.StepFailure,
		err.Error(), elapsed, map[string]any{"last_keys": r.state.Keys()})

	return Outcome{
		Status: StatusError,
		Err:    err,
		Payload: map[string]any{
			"status":        StatusError,
			"error":         err.Error(),
			"run_id":        r.id,
			"partial_state": r.state.Partial(),
			"metadata": map[string]any{
				"generation_timestamp": time.Now().UTC().Format(time.RFC3339),
				"failed_after_seconds": roundTenth(elapsed),
				"last_completed_keys":  r.state.Keys(),
			},
		},
	}
}

func roundTenth(d time.Duration) float64 {
	return math.Round(d.Seconds()*10) / 10
}

// newGroup builds an errgroup bound to ctx with a worker limit. Limits
// below one fall back to unbounded, matching an unset snapshot value.
func newGroup(ctx context.Context, limit int) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return g, gctx
}
