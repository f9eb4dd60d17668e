package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"magpie/internal/broadcast"
	"magpie/internal/config"
	"magpie/internal/faults"
	"magpie/internal/gate"
	"magpie/internal/handlers"
	"magpie/internal/logging"
	"magpie/internal/platform"
)

// run drives one job from resolution to its terminal event. It is the only
// place terminal events are published.
func (o *Orchestrator) run(ctx context.Context, jobID string) {
	job, ok := o.Get(jobID)
	if !ok {
		return
	}

	o.setState(jobID, StateResolving)
	o.publishProgress(jobID, "resolving platform", 0, "", "")

	desc, err := o.registry.Resolve(job.SourceURL)
	if err != nil {
		o.fail(ctx, jobID, err)
		return
	}
	o.update(jobID, func(j *Job) { j.PlatformID = desc.ID })
	o.publishProgress(jobID, "platform resolved", 0, desc.ID, "")

	o.setState(jobID, StateGating)
	decision, err := gate.Authorize(desc, o.creds)
	if err != nil {
		o.fail(ctx, jobID, err)
		return
	}
	if decision.Degraded {
		o.update(jobID, func(j *Job) {
			j.Degraded = true
			j.DegradedReason = decision.Reason
		})
		o.publishProgress(jobID, "degraded: "+decision.Reason, 0, desc.ID, "")
		o.logger.Warn("dispatch degraded",
			logging.JobID(jobID),
			logging.Platform(desc.ID),
			logging.String(logging.FieldEventType, "dispatch_degraded"),
			logging.String("reason", decision.Reason))
	}

	o.setState(jobID, StateDispatching)
	handler := o.handlers.Lookup(desc.ID)
	if !handler.Detect(job.SourceURL) {
		o.fail(ctx, jobID, fmt.Errorf("%w: handler for %s rejected url", faults.ErrInvalidInput, desc.ID))
		return
	}

	outputDir, folder, err := artifactDir(o.cfg, job, desc)
	if err != nil {
		o.fail(ctx, jobID, err)
		return
	}

	o.setState(jobID, StateRunning)
	o.publishProgress(jobID, "running", 0, desc.ID, "")

	idle := time.Duration(o.cfg.Downloads.IdleTimeout) * time.Second
	watchdog := newWatchdog(ctx, idle, func(cause error) {
		o.mu.Lock()
		rec, ok := o.jobs[jobID]
		o.mu.Unlock()
		if ok {
			rec.cancel(cause)
		}
	})
	defer watchdog.stop()

	req := handlers.Request{
		JobID:         jobID,
		URL:           job.SourceURL,
		Platform:      desc,
		Token:         decision.Token,
		Degraded:      decision.Degraded,
		DownloadFiles: job.Options.DownloadFiles,
		OutputDir:     outputDir,
		Progress: func(p handlers.Progress) {
			watchdog.reset()
			o.publishProgress(jobID, p.Status, p.Percent, desc.ID, p.ContentType)
		},
	}

	result, err := o.dispatch(ctx, handler, req)
	if err != nil {
		o.fail(ctx, jobID, err)
		return
	}

	o.complete(ctx, jobID, job, desc, decision.Degraded, folder, outputDir, result)
}

// dispatch invokes the handler with panic containment. A panicking handler
// becomes a handler_fault failure instead of taking the daemon down.
func (o *Orchestrator) dispatch(ctx context.Context, handler handlers.Handler, req handlers.Request) (result handlers.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faults.Wrap(faults.ErrHandlerFault, "orchestrator", "dispatch",
				fmt.Sprintf("handler panicked: %v", r), nil)
			o.logger.Error("handler panic recovered",
				logging.JobID(req.JobID),
				logging.Platform(req.Platform.ID),
				logging.String(logging.FieldEventType, "handler_panic"),
				logging.String("panic", fmt.Sprint(r)))
		}
	}()
	return handler.Download(ctx, req)
}

// fail publishes the job's single terminal error event. Context-driven
// failures are reclassified from the cancel cause so timeouts and
// cancellations surface with their own kinds.
func (o *Orchestrator) fail(ctx context.Context, jobID string, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, faults.ErrTimeout) && !errors.Is(err, faults.ErrCancelled) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
	}
	kind := faults.KindOf(err)

	o.update(jobID, func(j *Job) {
		j.State = StateFailed
		j.CompletedAt = time.Now().UTC()
		j.ErrorKind = kind
		j.ErrorMessage = err.Error()
	})

	job, _ := o.Get(jobID)
	o.hub.Publish(broadcast.Event{
		JobID:     jobID,
		Kind:      broadcast.KindError,
		Platform:  job.PlatformID,
		Message:   err.Error(),
		ErrorKind: string(kind),
	})

	o.logger.Error("job failed",
		logging.JobID(jobID),
		logging.Platform(job.PlatformID),
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String("kind", string(kind)),
		logging.Error(err))

	o.scheduleEviction(jobID)
}

// complete publishes the terminal complete event, writes the sidecar, and
// records the ledger entry. A failed ledger write leaves the job resident
// for the flush loop to retry.
func (o *Orchestrator) complete(ctx context.Context, jobID string, job Job, desc *platform.Descriptor, degraded bool, folder, outputDir string, hres handlers.Result) {
	result := &broadcast.Result{
		Folder:      folder,
		Path:        outputDir,
		Title:       hres.Title,
		Platform:    desc.ID,
		ContentType: hres.ContentType,
		Size:        hres.Size,
		Files:       hres.Files,
		Degraded:    degraded,
	}
	if hres.Files == 0 {
		result.Folder = ""
		result.Path = ""
	}

	completedAt := time.Now().UTC()
	o.update(jobID, func(j *Job) {
		j.State = StateCompleted
		j.CompletedAt = completedAt
		j.Result = result
	})

	o.hub.Publish(broadcast.Event{
		JobID:       jobID,
		Kind:        broadcast.KindComplete,
		Platform:    desc.ID,
		ContentType: hres.ContentType,
		Result:      result,
	})

	o.logger.Info("job completed",
		logging.JobID(jobID),
		logging.Platform(desc.ID),
		logging.String(logging.FieldEventType, "job_completed"),
		logging.String("title", hres.Title),
		logging.Int64("size", hres.Size))

	if hres.Files == 0 {
		o.scheduleEviction(jobID)
		return
	}

	if err := o.writeSidecar(jobID, job, desc, degraded, folder, outputDir, hres, completedAt); err != nil {
		o.logger.Warn("sidecar write failed",
			logging.JobID(jobID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "sidecar_write_failed"),
			logging.String(logging.FieldErrorHint, "artifact folder lacks metadata.json"))
	}

	entry := o.ledgerEntry(folder, outputDir, desc.ID, hres, completedAt)
	if err := o.ledger.Record(ctx, entry); err != nil {
		if permanentLedgerError(err) {
			o.logger.Error("ledger entry dropped",
				logging.JobID(jobID),
				logging.String(logging.FieldFolder, folder),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ledger_entry_dropped"),
				logging.String(logging.FieldErrorHint, "entry was rejected and will not be retried"))
			o.scheduleEviction(jobID)
			return
		}
		o.logger.Warn("ledger record failed, will retry",
			logging.JobID(jobID),
			logging.String(logging.FieldFolder, folder),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_record_failed"))
		o.mu.Lock()
		if rec, ok := o.jobs[jobID]; ok {
			rec.pendingLedger = &entry
		}
		o.mu.Unlock()
		return
	}

	o.scheduleEviction(jobID)
}

func (o *Orchestrator) publishProgress(jobID, status string, percent float64, platformID, contentType string) {
	o.hub.Publish(broadcast.Event{
		JobID:       jobID,
		Kind:        broadcast.KindProgress,
		Status:      status,
		Percent:     percent,
		Platform:    platformID,
		ContentType: contentType,
	})
}

var folderUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// artifactDir picks the artifact folder for a job. The job id suffix keeps
// folder names unique across repeated downloads of the same URL.
func artifactDir(cfg *config.Config, job Job, desc *platform.Descriptor) (dir, folder string, err error) {
	if strings.TrimSpace(job.Options.OutputDir) != "" {
		expanded, err := config.ExpandPath(job.Options.OutputDir)
		if err != nil {
			return "", "", fmt.Errorf("%w: output dir: %s", faults.ErrInvalidInput, err)
		}
		return expanded, filepath.Base(expanded), nil
	}

	short := job.ID
	if len(short) > 8 {
		short = short[:8]
	}
	slug := folderUnsafe.ReplaceAllString(strings.ToLower(desc.ID), "-")
	folder = fmt.Sprintf("%s-%s", slug, short)
	return filepath.Join(cfg.Paths.DownloadDir, folder), folder, nil
}

// watchdog fails a running job when no progress arrives within the idle
// window.
type watchdog struct {
	timer *time.Timer
	idle  time.Duration
}

func newWatchdog(ctx context.Context, idle time.Duration, onExpire func(cause error)) *watchdog {
	w := &watchdog{idle: idle}
	w.timer = time.AfterFunc(idle, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		onExpire(faults.Wrap(faults.ErrTimeout, "orchestrator", "watchdog",
			fmt.Sprintf("no handler progress for %s", idle), nil))
	})
	return w
}

func (w *watchdog) reset() {
	w.timer.Reset(w.idle)
}

func (w *watchdog) stop() {
	w.timer.Stop()
}
