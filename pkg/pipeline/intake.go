package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
)

var domainFormat = regexp.MustCompile(`^[\w.-]+\.\w{2,}$`)

// parseWebhook re-checks the intake contract. The API layer rejects bad
// payloads before a run exists, but batch rows and direct callers still
// pass through here, so the run fails cleanly instead of discovering
// the gap three steps later.
func (r *run) parseWebhook() error {
	if !r.webhook.Valid() {
		return &ValidationError{
			Field:   "target_company",
			Message: "at least one of target_company or target_domain required",
		}
	}
	return nil
}

// validateAndLoad checks the domain format and loads prior completed
// runs for the target domain when dedup is enabled. Prior runs feed the
// strategy prompt so repeat scans explore different angles.
func (r *run) validateAndLoad(ctx context.Context) (string, map[string]any, error) {
	domain := r.webhook.TargetDomain
	if domain != "" && !domainFormat.MatchString(domain) {
		slog.Warn("Domain format suspect", "run_id", r.id, "domain", domain)
	}

	dedup := r.tun.EnablePriorRunDedup
	if dedup && domain != "" {
		prior, err := r.p.store.LoadPriorRuns(ctx, domain, 5)
		if err != nil {
			return "", nil, fmt.Errorf("load prior runs: %w", err)
		}
		r.state.PriorRuns = prior
		if len(prior) > 0 {
			slog.Info("Prior runs found for domain",
				"run_id", r.id, "domain", domain, "count", len(prior))
		}
	}
	r.state.markProduced(keyPriorRuns)

	onOff := "off"
	if dedup {
		onOff = "on"
	}
	msg := fmt.Sprintf("run_id=%d, prior=%d, dedup=%s", r.id, len(r.state.PriorRuns), onOff)
	meta := map[string]any{
		"run_id":        r.id,
		"prior_runs":    len(r.state.PriorRuns),
		"dedup_enabled": dedup,
	}
	return msg, meta, nil
}
