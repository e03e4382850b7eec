package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/queue"
	"curator/internal/services"
)

// Manager runs the worker pool: N goroutines polling the queue, dispatching
// claimed jobs to registered stage handlers, and advancing the phase chain on
// success.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	chain    *Chain

	handlers     map[queue.Type]Handler
	workers      int
	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg, logger)
	}
	workers := cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		chain:        NewChain(cfg),
		handlers:     make(map[queue.Type]Handler),
		workers:      workers,
		pollInterval: pollInterval,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// Register binds a handler to a job type. Must be called before Start.
func (m *Manager) Register(jobType queue.Type, handler Handler) {
	m.handlers[jobType] = handler
}

// Chain exposes the stage succession table so handlers that fan out (scan)
// can target the right next stage.
func (m *Manager) Chain() *Chain {
	return m.chain
}

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		return errors.New("no stage handlers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(m.workers)
	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	return nil
}

// Stop cancels the pool and waits for in-flight jobs to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.Claim(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("claim next job failed", logging.Error(err))
			m.sleep(ctx)
			continue
		}
		if job == nil {
			m.sleep(ctx)
			continue
		}

		m.processJob(ctx, logger, job)
	}
}

func (m *Manager) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) processJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithStage(jobCtx, string(job.Type))
	jobCtx = services.WithRequestID(jobCtx, uuid.NewString())
	jobLogger := logging.WithContext(jobCtx, logger)

	// Disabled stages pass through without doing the stage's work; the chain
	// must never silently stop just because a stage is off.
	if !m.chain.Enabled(job.Type) {
		jobLogger.Info("stage disabled, passing through")
		if err := m.store.Complete(jobCtx, job.ID); err != nil {
			jobLogger.Error("complete pass-through job failed", logging.Error(err))
			return
		}
		m.advance(jobCtx, jobLogger, job)
		return
	}

	handler, ok := m.handlers[job.Type]
	if !ok {
		jobLogger.Error("no handler for job type")
		if err := m.store.FailTerminal(jobCtx, job.ID, fmt.Errorf("no handler for job type %s", job.Type)); err != nil {
			jobLogger.Error("record terminal failure failed", logging.Error(err))
		}
		return
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(jobCtx)
	var heartbeatWG sync.WaitGroup
	heartbeatWG.Add(1)
	go m.heartbeat.StartLoop(heartbeatCtx, &heartbeatWG, job.ID)

	jobLogger.Info("job started", logging.String("type", string(job.Type)))
	execErr := handler.Execute(jobCtx, job)

	stopHeartbeat()
	heartbeatWG.Wait()

	switch {
	case execErr == nil:
		if err := m.store.Complete(jobCtx, job.ID); err != nil {
			jobLogger.Error("complete job failed", logging.Error(err))
			return
		}
		jobLogger.Info("job completed")
		m.advance(jobCtx, jobLogger, job)

	case errors.Is(execErr, context.Canceled):
		// Shutdown mid-job: leave the row processing; the stalled-job sweep
		// returns it to pending.
		jobLogger.Info("job interrupted by shutdown")

	case services.IsRecoverable(execErr):
		failed, err := m.store.Fail(jobCtx, job.ID, execErr)
		if err != nil {
			jobLogger.Error("record job failure failed", logging.Error(err))
			return
		}
		if failed.Status == queue.StatusRetrying {
			jobLogger.Warn("job failed, retry scheduled",
				logging.Int("retry_count", failed.RetryCount),
				logging.Error(execErr))
		} else {
			jobLogger.Error("job failed terminally after retries", logging.Error(execErr))
			m.notifyFailure(jobCtx, jobLogger, job, execErr)
		}

	default:
		jobLogger.Error("job failed with unrecoverable error", logging.Error(execErr))
		if err := m.store.FailTerminal(jobCtx, job.ID, execErr); err != nil {
			jobLogger.Error("record terminal failure failed", logging.Error(err))
		}
		m.notifyFailure(jobCtx, jobLogger, job, execErr)
	}
}

func (m *Manager) notifyFailure(ctx context.Context, logger *slog.Logger, job *queue.Job, execErr error) {
	if err := m.notifier.NotifyJobFailed(ctx, string(job.Type), execErr); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}

// advance enqueues the next enabled stage for the entity the finished job was
// working on. Scan jobs fan out one-to-many inside their handler, so they
// never advance here.
func (m *Manager) advance(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	if job.Type == queue.TypeScan {
		return
	}
	entityID, entityType, err := entityRef(job)
	if err != nil {
		logger.Error("decode job payload failed", logging.Error(err))
		return
	}

	next, ok := m.chain.NextEnabled(job.Type)
	if !ok {
		logger.Info("workflow chain complete")
		if err := m.notifier.NotifyChainCompleted(ctx, entityID); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
		return
	}

	payload, err := payloadFor(next, entityID, entityType)
	if err != nil {
		logger.Error("derive follow-up payload failed", logging.Error(err))
		return
	}
	followup, err := m.store.Enqueue(ctx, next, payload, job.Priority, queue.RetryPolicy{})
	if err != nil {
		logger.Error("enqueue next stage failed",
			logging.String("next", string(next)),
			logging.Error(err))
		return
	}
	logger.Info("next stage enqueued",
		logging.String("next", string(next)),
		logging.Int64("next_job_id", followup.ID))
}

func entityRef(job *queue.Job) (string, string, error) {
	decoded, err := queue.DecodePayload(job)
	if err != nil {
		return "", "", err
	}
	switch p := decoded.(type) {
	case queue.EnrichPayload:
		return p.EntityID, p.EntityType, nil
	case queue.PublishPayload:
		return p.EntityID, p.EntityType, nil
	case queue.SyncPayload:
		return p.EntityID, p.EntityType, nil
	default:
		return "", "", fmt.Errorf("no entity reference in %T payload", decoded)
	}
}

// payloadFor carries an entity reference into the named stage's payload.
func payloadFor(stage queue.Type, entityID, entityType string) (any, error) {
	switch stage {
	case queue.TypeEnrich:
		return queue.EnrichPayload{EntityID: entityID, EntityType: entityType}, nil
	case queue.TypePublish:
		return queue.PublishPayload{EntityID: entityID, EntityType: entityType}, nil
	case queue.TypeSync:
		return queue.SyncPayload{EntityID: entityID, EntityType: entityType}, nil
	default:
		return nil, fmt.Errorf("unexpected follow-up stage %s", stage)
	}
}
