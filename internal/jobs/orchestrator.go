package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"magpie/internal/broadcast"
	"magpie/internal/config"
	"magpie/internal/creds"
	"magpie/internal/faults"
	"magpie/internal/handlers"
	"magpie/internal/ledger"
	"magpie/internal/logging"
	"magpie/internal/platform"
)

// ledgerFlushInterval paces retries for ledger writes that failed at job
// completion.
const ledgerFlushInterval = 5 * time.Second

// Recorder persists terminal job entries. *ledger.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, entry ledger.Entry) error
}

// Orchestrator owns the job lifecycle: resolve, gate, dispatch, progress,
// terminal event, ledger record, eviction. Concurrency is bounded by a slot
// semaphore; Submit blocks until a slot frees.
type Orchestrator struct {
	cfg      *config.Config
	registry *platform.Registry
	creds    *creds.Store
	handlers *handlers.Set
	hub      *broadcast.Hub
	ledger   Recorder
	logger   *slog.Logger

	slots         chan struct{}
	flushInterval time.Duration

	mu   sync.Mutex
	jobs map[string]*jobRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type jobRecord struct {
	job           Job
	cancel        context.CancelCauseFunc
	evictTimer    *time.Timer
	pendingLedger *ledger.Entry
}

// NewOrchestrator wires the engine's collaborators together.
func NewOrchestrator(
	cfg *config.Config,
	registry *platform.Registry,
	credStore *creds.Store,
	handlerSet *handlers.Set,
	hub *broadcast.Hub,
	recorder Recorder,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		registry:      registry,
		creds:         credStore,
		handlers:      handlerSet,
		hub:           hub,
		ledger:        recorder,
		logger:        logging.NewComponentLogger(logger, "orchestrator"),
		slots:         make(chan struct{}, cfg.Downloads.MaxConcurrent),
		flushInterval: ledgerFlushInterval,
		jobs:          make(map[string]*jobRecord),
	}
}

// Start arms the orchestrator. Jobs submitted before Start fail.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx != nil {
		return
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.wg.Add(1)
	go o.flushLoop()
}

// Stop cancels every running job and waits for workers to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	for _, rec := range o.jobs {
		if rec.cancel != nil && !rec.job.State.Terminal() {
			rec.cancel(faults.ErrCancelled)
		}
		if rec.evictTimer != nil {
			rec.evictTimer.Stop()
		}
	}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
}

// Submit creates a job for the URL and blocks until a worker slot is
// available, providing backpressure under load. The returned job snapshot is
// in the Created state; progress flows through the broadcast hub.
func (o *Orchestrator) Submit(ctx context.Context, sourceURL string, opts Options) (Job, error) {
	o.mu.Lock()
	baseCtx := o.ctx
	o.mu.Unlock()
	if baseCtx == nil {
		return Job{}, fmt.Errorf("orchestrator not started")
	}

	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		return Job{}, fmt.Errorf("%w: waiting for worker slot: %w", faults.ErrCancelled, context.Cause(ctx))
	case <-baseCtx.Done():
		return Job{}, fmt.Errorf("%w: orchestrator shutting down", faults.ErrCancelled)
	}

	job := Job{
		ID:        uuid.NewString(),
		SourceURL: sourceURL,
		State:     StateCreated,
		CreatedAt: time.Now().UTC(),
		Options:   opts,
	}

	jobCtx, cancelCause := context.WithCancelCause(baseCtx)
	rec := &jobRecord{job: job, cancel: cancelCause}

	o.mu.Lock()
	o.jobs[job.ID] = rec
	o.mu.Unlock()

	o.logger.Info("job submitted",
		logging.JobID(job.ID),
		logging.String(logging.FieldURL, sourceURL),
		logging.String(logging.FieldEventType, "job_submitted"))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() { <-o.slots }()
		o.run(jobCtx, job.ID)
	}()

	return job, nil
}

// Cancel requests cooperative cancellation. Cancelling a terminal or unknown
// job is a no-op.
func (o *Orchestrator) Cancel(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.jobs[jobID]
	if !ok || rec.job.State.Terminal() {
		return
	}
	rec.cancel(faults.ErrCancelled)
}

// Get returns a snapshot of one job.
func (o *Orchestrator) Get(jobID string) (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return rec.job, true
}

// List returns snapshots of all resident jobs, newest first.
func (o *Orchestrator) List() []Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Job, 0, len(o.jobs))
	for _, rec := range o.jobs {
		out = append(out, rec.job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Stats counts resident jobs by state.
func (o *Orchestrator) Stats() map[State]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	stats := make(map[State]int, len(allStates))
	for _, rec := range o.jobs {
		stats[rec.job.State]++
	}
	return stats
}

func (o *Orchestrator) setState(jobID string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.jobs[jobID]; ok {
		rec.job.State = state
	}
}

func (o *Orchestrator) update(jobID string, fn func(*Job)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.jobs[jobID]; ok {
		fn(&rec.job)
	}
}
