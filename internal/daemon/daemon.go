package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"magpie/internal/broadcast"
	"magpie/internal/config"
	"magpie/internal/creds"
	"magpie/internal/jobs"
	"magpie/internal/ledger"
	"magpie/internal/logging"
	"magpie/internal/platform"
)

// Daemon coordinates the dispatch engine's services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *platform.Registry
	creds    *creds.Store
	ledger   *ledger.Store
	hub      *broadcast.Hub
	orch     *jobs.Orchestrator

	api    *apiServer
	events *broadcast.EventSocket

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LedgerDBPath string
	LockFilePath string
	JobStats     map[jobs.State]int
	LedgerStats  ledger.Stats
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	registry *platform.Registry,
	credStore *creds.Store,
	ledgerStore *ledger.Store,
	hub *broadcast.Hub,
	orch *jobs.Orchestrator,
) (*Daemon, error) {
	if cfg == nil || logger == nil || registry == nil || credStore == nil || ledgerStore == nil || hub == nil || orch == nil {
		return nil, errors.New("daemon requires config, logger, registry, credential store, ledger, hub, and orchestrator")
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "magpied.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		registry: registry,
		creds:    credStore,
		ledger:   ledgerStore,
		hub:      hub,
		orch:     orch,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// EventSocketPath returns the Unix socket carrying the global event stream.
func EventSocketPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "events.sock")
}

// Start acquires the daemon lock and launches the orchestrator, HTTP API,
// and events socket.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another magpie daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.orch.Start(d.ctx)

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.teardownLocked()
			return fmt.Errorf("start api server: %w", err)
		}
	}

	events, err := broadcast.NewEventSocket(d.ctx, EventSocketPath(d.cfg), d.hub, d.logger)
	if err != nil {
		d.teardownLocked()
		return fmt.Errorf("start events socket: %w", err)
	}
	d.events = events
	d.events.Serve()

	d.running.Store(true)
	d.logger.Info("magpie daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.cfg.Paths.APIBind))
	return nil
}

func (d *Daemon) teardownLocked() {
	if d.api != nil {
		d.api.stop()
	}
	d.orch.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	if d.events != nil {
		d.events.Close()
		d.events = nil
	}
	d.orch.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("magpie daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.ledger != nil {
		return d.ledger.Close()
	}
	return nil
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LedgerDBPath: d.ledger.Path(),
		LockFilePath: d.lockPath,
		JobStats:     d.orch.Stats(),
	}
	if stats, err := d.ledger.Stats(ctx); err == nil {
		status.LedgerStats = stats
	}
	return status
}

// Submit forwards a download request to the orchestrator.
func (d *Daemon) Submit(ctx context.Context, url string, opts jobs.Options) (jobs.Job, error) {
	return d.orch.Submit(ctx, url, opts)
}

// CancelJob requests cooperative cancellation of a job.
func (d *Daemon) CancelJob(jobID string) {
	d.orch.Cancel(jobID)
}

// Hub exposes the event hub for stream consumers.
func (d *Daemon) Hub() *broadcast.Hub {
	return d.hub
}

// HistoryList returns ledger entries, newest first.
func (d *Daemon) HistoryList(ctx context.Context) ([]ledger.Entry, error) {
	return d.ledger.List(ctx)
}

// HistoryRemove deletes a ledger entry and its artifact directory.
func (d *Daemon) HistoryRemove(ctx context.Context, folder string) error {
	return d.ledger.Delete(ctx, folder)
}

// CredentialSet stores a credential for a platform.
func (d *Daemon) CredentialSet(platformID, token string, validity creds.Validity) error {
	if _, ok := d.registry.Lookup(platformID); !ok {
		return fmt.Errorf("unknown platform %q", platformID)
	}
	return d.creds.Set(platformID, creds.Record{Token: token, Validity: validity})
}

// CredentialRemove deletes a stored credential.
func (d *Daemon) CredentialRemove(platformID string) error {
	return d.creds.Remove(platformID)
}

// CredentialList returns the platforms with stored credentials.
func (d *Daemon) CredentialList() map[string]creds.Record {
	return d.creds.Snapshot()
}
