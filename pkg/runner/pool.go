// Package runner admits report runs into a bounded pool of workers.
// Every submission gets its own goroutine; a weighted semaphore gates
// entry into the pipeline so queued runs stay pending in the store.
// Live workers are tracked in a registry so the HTTP surface can
// cancel a single run or a whole batch.
package runner

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/pipeline"
	"github.com/govsignal/scout/pkg/store"
)

const (
	// killJoinWait bounds how long Cancel waits for the worker to
	// acknowledge before marking the run cancelled itself.
	killJoinWait = 5 * time.Second

	// batchJoinWait is the per-run wait used by CancelBatch.
	batchJoinWait = 2 * time.Second
)

// Executor runs one admitted pipeline run to completion. *pipeline.Pipeline
// satisfies it; tests substitute stubs.
type Executor interface {
	Run(ctx context.Context, in pipeline.Input) pipeline.Outcome
}

// runHandle tracks one worker: its cancel function, the batch it
// belongs to, and the terminal error of the worker itself (admission
// failures, not pipeline outcomes; those live on the run row).
type runHandle struct {
	cancel  context.CancelFunc
	batchID *int64
	done    chan struct{}
	err     error
}

// alive reports whether the worker goroutine is still running.
func (h *runHandle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// join waits up to d for the worker to finish.
func (h *runHandle) join(d time.Duration) bool {
	select {
	case <-h.done:
		return true
	case <-time.After(d):
		return false
	}
}

// Err returns the worker error once the handle has finished, nil while
// it is still running. err is written before done closes, so the read
// is ordered.
func (h *runHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Pool admits runs against a fixed concurrency budget. The budget is
// read from the registry once at construction; later config changes
// only affect the batch-local semaphores of subsequently admitted
// batches, mirroring the snapshot rule for every other tunable.
type Pool struct {
	store    *store.Store
	exec     Executor
	registry *config.Registry

	capacity int
	sem      *semaphore.Weighted

	mu           sync.Mutex
	active       map[int64]*runHandle
	batchCounter int64
	stopped      bool
	wg           sync.WaitGroup
}

// New builds a pool sized from the registry's current
// MAX_CONCURRENT_RUNS. Call Start before accepting batches.
func New(st *store.Store, exec Executor, registry *config.Registry) *Pool {
	capacity := registry.Snapshot().MaxConcurrentRuns
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		store:    st,
		exec:     exec,
		registry: registry,
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
		active:   make(map[int64]*runHandle),
	}
}

// Start seeds the batch counter from the store so batch ids stay
// monotonic across restarts.
func (p *Pool) Start(ctx context.Context) error {
	maxID, err := p.store.MaxBatchID(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.batchCounter = maxID
	p.mu.Unlock()
	slog.Info("Run pool started", "capacity", p.capacity, "batch_counter", maxID)
	return nil
}

// Capacity returns the admission limit fixed at construction.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Submit admits one webhook. It pre-creates the run stub so the caller
// gets a run id immediately, then snapshots the config and spawns the
// worker. Returns a CapacityError when as many workers are already
// live as the pool allows.
func (p *Pool) Submit(ctx context.Context, webhook models.WebhookPayload) (int64, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0, ErrStopped
	}
	p.pruneLocked()
	if p.activeCountLocked() >= p.capacity {
		p.mu.Unlock()
		return 0, &CapacityError{Limit: p.capacity}
	}
	p.mu.Unlock()

	runID, err := p.store.InsertRunStub(ctx, webhook, nil)
	if err != nil {
		return 0, err
	}

	p.spawn(runID, webhook, p.registry.Snapshot(), nil, p.sem)
	slog.Info("Run submitted", "run_id", runID,
		"target_company", webhook.TargetCompany, "target_domain", webhook.TargetDomain)
	return runID, nil
}

// SubmitBatch admits a list of webhooks under one batch id. All stubs
// are inserted before any worker starts so the full id list can be
// returned at once. The batch shares a single config snapshot and a
// batch-local semaphore sized from that snapshot; excess runs queue
// as pending until a slot opens. Batches are not subject to the
// single-run capacity rejection.
func (p *Pool) SubmitBatch(ctx context.Context, webhooks []models.WebhookPayload) (int64, []int64, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0, nil, ErrStopped
	}
	p.pruneLocked()
	p.batchCounter++
	batchID := p.batchCounter
	p.mu.Unlock()

	runIDs := make([]int64, 0, len(webhooks))
	for _, webhook := range webhooks {
		runID, err := p.store.InsertRunStub(ctx, webhook, &batchID)
		if err != nil {
			return 0, nil, err
		}
		runIDs = append(runIDs, runID)
	}

	snap := p.registry.Snapshot()
	limit := snap.MaxConcurrentRuns
	if limit < 1 {
		limit = 1
	}
	batchSem := semaphore.NewWeighted(int64(limit))
	for i, webhook := range webhooks {
		p.spawn(runIDs[i], webhook, snap, &batchID, batchSem)
	}

	slog.Info("Batch submitted", "batch_id", batchID, "runs", len(runIDs), "slots", limit)
	return batchID, runIDs, nil
}

// spawn registers a handle and starts the worker goroutine. The worker
// context descends from Background, not from the submitting request:
// runs outlive the HTTP call that created them.
func (p *Pool) spawn(runID int64, webhook models.WebhookPayload, tun config.Tunables, batchID *int64, sem *semaphore.Weighted) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &runHandle{cancel: cancel, batchID: batchID, done: make(chan struct{})}

	p.mu.Lock()
	p.active[runID] = h
	p.mu.Unlock()

	p.wg.Add(1)
	go p.work(ctx, h, runID, webhook, tun, sem)
}

// work acquires a semaphore slot, flips the run to processing, and
// executes the pipeline. A run cancelled while still queued never
// touches the store here; its row stays pending for the kill path.
func (p *Pool) work(ctx context.Context, h *runHandle, runID int64, webhook models.WebhookPayload, tun config.Tunables, sem *semaphore.Weighted) {
	defer p.wg.Done()
	defer close(h.done)
	defer h.cancel()

	started := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		h.err = err
		slog.Info("Queued run cancelled before acquiring a slot", "run_id", runID)
		return
	}
	defer sem.Release(1)

	if err := p.store.MarkRunProcessing(ctx, runID); err != nil {
		h.err = err
		slog.Error("Failed to mark run processing", "run_id", runID, "error", err)
		return
	}

	out := p.exec.Run(ctx, pipeline.Input{
		RunID:     runID,
		Webhook:   webhook,
		Tunables:  tun,
		StartedAt: started,
	})
	slog.Info("Run worker finished", "run_id", runID, "status", out.Status)
}

// Cancel stops one live run: signals its context, waits briefly for
// the pipeline's own cancel handling, then marks the row cancelled if
// it is still pending or processing and writes the kill audit entry.
func (p *Pool) Cancel(ctx context.Context, runID int64) error {
	p.mu.Lock()
	h, ok := p.active[runID]
	p.mu.Unlock()
	if !ok || !h.alive() {
		return ErrNotActive
	}

	h.cancel()
	h.join(killJoinWait)

	changed, err := p.store.UpdateRunCancelled(ctx, runID)
	if err != nil {
		return err
	}
	if changed {
		p.store.LogStep(ctx, runID, "pipeline_killed", models.StepFailure,
			"Killed by user via monitor UI", 0, nil)
	}
	slog.Info("Run killed", "run_id", runID)
	return nil
}

// CancelBatch stops every live run in a batch and returns how many
// workers were signalled. Runs whose workers already persisted their
// own cancelled state are counted but not re-marked.
func (p *Pool) CancelBatch(ctx context.Context, batchID int64) (int, error) {
	type member struct {
		runID int64
		h     *runHandle
	}

	p.mu.Lock()
	members := make([]member, 0)
	for runID, h := range p.active {
		if h.batchID != nil && *h.batchID == batchID && h.alive() {
			members = append(members, member{runID: runID, h: h})
		}
	}
	p.mu.Unlock()
	sort.Slice(members, func(i, j int) bool { return members[i].runID < members[j].runID })

	for _, m := range members {
		m.h.cancel()
	}
	for _, m := range members {
		m.h.join(batchJoinWait)
	}

	killed := 0
	for _, m := range members {
		changed, err := p.store.UpdateRunCancelled(ctx, m.runID)
		if err != nil {
			return killed, err
		}
		if changed {
			p.store.LogStep(ctx, m.runID, "pipeline_killed", models.StepFailure,
				"Killed via batch kill", 0, nil)
		}
		killed++
	}

	slog.Info("Batch killed", "batch_id", batchID, "killed", killed)
	return killed, nil
}

// RunState reports whether a submitted run's worker is still alive and
// any terminal worker error. known is false when the pool has no
// record of the run; finished handles stay visible until a later
// submission prunes them, so pollers still see the final state.
func (p *Pool) RunState(runID int64) (active bool, workerErr error, known bool) {
	p.mu.Lock()
	h, ok := p.active[runID]
	p.mu.Unlock()
	if !ok {
		return false, nil, false
	}
	return h.alive(), h.Err(), true
}

// ActiveCount returns the number of live workers, queued ones included.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeCountLocked()
}

// Stop refuses new submissions, then cancels every live run and waits
// for the workers to drain. Callers bound the wait with their own
// timeout around this call.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	handles := make([]*runHandle, 0, len(p.active))
	for _, h := range p.active {
		if h.alive() {
			handles = append(handles, h)
		}
	}
	p.mu.Unlock()

	if len(handles) > 0 {
		slog.Info("Stopping run pool, cancelling active runs", "count", len(handles))
	}
	for _, h := range handles {
		h.cancel()
	}
	p.wg.Wait()
	slog.Info("Run pool stopped")
}

func (p *Pool) activeCountLocked() int {
	n := 0
	for _, h := range p.active {
		if h.alive() {
			n++
		}
	}
	return n
}

// pruneLocked drops finished handles. Called under mu from the
// submission paths, matching where the registry gets tidied.
func (p *Pool) pruneLocked() {
	for runID, h := range p.active {
		if !h.alive() {
			delete(p.active, runID)
		}
	}
}
