package jobs

import (
	"errors"
	"time"

	"magpie/internal/faults"
	"magpie/internal/handlers"
	"magpie/internal/ledger"
	"magpie/internal/logging"
	"magpie/internal/platform"
)

// flushLoop retries ledger writes that failed when their job completed.
// A job with a pending ledger entry stays resident until the write lands.
func (o *Orchestrator) flushLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.flushPending()
		}
	}
}

func (o *Orchestrator) flushPending() {
	o.mu.Lock()
	type pending struct {
		jobID string
		entry ledger.Entry
	}
	var work []pending
	for id, rec := range o.jobs {
		if rec.pendingLedger != nil {
			work = append(work, pending{jobID: id, entry: *rec.pendingLedger})
		}
	}
	o.mu.Unlock()

	for _, p := range work {
		err := o.ledger.Record(o.ctx, p.entry)
		if err != nil && !permanentLedgerError(err) {
			o.logger.Warn("ledger flush retry failed",
				logging.JobID(p.jobID),
				logging.String(logging.FieldFolder, p.entry.Folder),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ledger_flush_failed"))
			continue
		}
		o.mu.Lock()
		if rec, ok := o.jobs[p.jobID]; ok {
			rec.pendingLedger = nil
		}
		o.mu.Unlock()
		if err != nil {
			o.logger.Error("ledger entry dropped",
				logging.JobID(p.jobID),
				logging.String(logging.FieldFolder, p.entry.Folder),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ledger_entry_dropped"),
				logging.String(logging.FieldErrorHint, "entry was rejected and will not be retried"))
		} else {
			o.logger.Info("ledger flush succeeded",
				logging.JobID(p.jobID),
				logging.String(logging.FieldFolder, p.entry.Folder),
				logging.String(logging.FieldEventType, "ledger_flush_ok"))
		}
		o.scheduleEviction(p.jobID)
	}
}

// permanentLedgerError reports whether a ledger write can never succeed, such
// as a duplicate or invalid entry. Permanent failures are surfaced once and
// the job is released instead of retrying forever.
func permanentLedgerError(err error) bool {
	return errors.Is(err, faults.ErrInvalidInput)
}

// scheduleEviction arms the retention timer for a terminal job. Eviction
// drops the job snapshot and releases its event history.
func (o *Orchestrator) scheduleEviction(jobID string) {
	retention := time.Duration(o.cfg.Downloads.RetentionSeconds) * time.Second

	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.jobs[jobID]
	if !ok || rec.pendingLedger != nil {
		return
	}
	if rec.evictTimer != nil {
		rec.evictTimer.Stop()
	}
	rec.evictTimer = time.AfterFunc(retention, func() {
		o.evict(jobID)
	})
}

func (o *Orchestrator) evict(jobID string) {
	o.mu.Lock()
	rec, ok := o.jobs[jobID]
	if ok && rec.pendingLedger == nil {
		delete(o.jobs, jobID)
	} else {
		ok = false
	}
	o.mu.Unlock()

	if ok {
		o.hub.Release(jobID)
		o.logger.Debug("job evicted", logging.JobID(jobID))
	}
}

func (o *Orchestrator) writeSidecar(jobID string, job Job, desc *platform.Descriptor, degraded bool, folder, outputDir string, hres handlers.Result, completedAt time.Time) error {
	return ledger.WriteSidecar(outputDir, ledger.Metadata{
		JobID:       jobID,
		SourceURL:   job.SourceURL,
		Folder:      folder,
		Title:       hres.Title,
		Platform:    desc.ID,
		ContentType: hres.ContentType,
		Size:        hres.Size,
		CreatedAt:   completedAt,
		Degraded:    degraded,
	})
}

func (o *Orchestrator) ledgerEntry(folder, outputDir, platformID string, hres handlers.Result, completedAt time.Time) ledger.Entry {
	return ledger.Entry{
		Folder:      folder,
		Path:        outputDir,
		CreatedAt:   completedAt,
		Size:        hres.Size,
		Title:       hres.Title,
		Platform:    platformID,
		ContentType: hres.ContentType,
	}
}
