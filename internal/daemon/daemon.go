package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/enrichment"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/publisher"
	"curator/internal/queue"
	"curator/internal/scanner"
	"curator/internal/syncer"
	"curator/internal/workflow"
)

// Daemon is the composition root for background processing: it owns the
// workflow manager with all four stage handlers registered, the maintenance
// schedule, and the library watcher, and enforces single-instance execution
// through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	queue    *queue.Store
	catalog  *catalog.Store
	manager  *workflow.Manager
	enricher *enrichment.Handler
	notifier notifications.Service

	schedule *schedule
	watcher  *libraryWatcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New wires the full processing stack from configuration.
func New(cfg *config.Config, queueStore *queue.Store, catalogStore *catalog.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || queueStore == nil || catalogStore == nil {
		return nil, errors.New("daemon requires config and both stores")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	notifier := notifications.NewService(cfg, logger)
	manager := workflow.NewManager(cfg, queueStore, logger, notifier)

	enricher, err := enrichment.NewHandler(cfg, catalogStore, logger, notifier)
	if err != nil {
		return nil, fmt.Errorf("build enrichment handler: %w", err)
	}
	manager.Register(queue.TypeScan, scanner.NewHandler(cfg, catalogStore, queueStore, manager.Chain(), logger, notifier))
	manager.Register(queue.TypeEnrich, enricher)
	manager.Register(queue.TypePublish, publisher.NewHandler(cfg, catalogStore, logger, notifier))
	manager.Register(queue.TypeSync, syncer.NewHandler(cfg, catalogStore, logger, notifier))

	lockPath := filepath.Join(cfg.Paths.LogDir, "curatord.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		queue:    queueStore,
		catalog:  catalogStore,
		manager:  manager,
		enricher: enricher,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.schedule = newSchedule(d)
	d.watcher = newLibraryWatcher(d)
	return d, nil
}

// Start acquires the instance lock and launches workers, the maintenance
// schedule, and the library watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another curator daemon is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	if err := d.schedule.start(runCtx); err != nil {
		d.logger.Warn("maintenance schedule unavailable", logging.Error(err))
	}
	if err := d.watcher.start(runCtx); err != nil {
		d.logger.Warn("library watcher unavailable", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))

	stats, err := d.queue.GetStats(runCtx)
	if err == nil {
		if err := d.notifier.NotifyQueueStarted(runCtx, stats.Pending); err != nil {
			d.logger.Warn("startup notification failed", logging.Error(err))
		}
	}
	return nil
}

// Stop halts workers, the schedule, and the watcher, then releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.watcher.stop()
	d.schedule.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes both stores.
func (d *Daemon) Close() error {
	d.Stop()
	var first error
	if err := d.queue.Close(); err != nil {
		first = err
	}
	if err := d.catalog.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// EnqueueScan schedules a library scan job.
func (d *Daemon) EnqueueScan(ctx context.Context, manual bool) (*queue.Job, error) {
	priority := queue.DefaultPriority
	if manual {
		priority = queue.ManualPriority
	}
	return d.queue.Enqueue(ctx, queue.TypeScan, queue.ScanPayload{Manual: manual}, priority, queue.RetryPolicy{})
}
