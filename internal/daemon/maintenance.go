package daemon

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"curator/internal/logging"
	"curator/internal/workflow"
)

// schedule runs the daemon's recurring maintenance: stalled-job reclaim,
// rate-limiter pruning, temp-file sweeps, completed-job retention, and the
// configured periodic library scan.
type schedule struct {
	daemon *Daemon
	cron   *cron.Cron
}

func newSchedule(d *Daemon) *schedule {
	return &schedule{daemon: d}
}

func (s *schedule) start(ctx context.Context) error {
	d := s.daemon
	heartbeat := workflow.NewHeartbeatMonitor(
		d.queue,
		d.logger,
		time.Duration(d.cfg.Workflow.HeartbeatInterval)*time.Second,
		time.Duration(d.cfg.Workflow.HeartbeatTimeout)*time.Second,
	)

	runner := cron.New()
	jobs := []struct {
		spec string
		name string
		run  func()
	}{
		{"@every 1m", "reclaim-stalled", func() {
			if err := heartbeat.ReclaimStale(ctx); err != nil {
				d.logger.Warn("stalled-job reclaim failed", logging.Error(err))
			}
		}},
		{"@every 5m", "prune-limiters", func() {
			d.enricher.PruneLimiters()
		}},
		{"@every 1h", "sweep-transient", func() {
			removed, err := d.enricher.SweepTransient(2 * time.Hour)
			if err != nil {
				d.logger.Warn("transient sweep failed", logging.Error(err))
				return
			}
			if removed > 0 {
				d.logger.Info("removed leftover downloads", logging.Int("count", removed))
			}
		}},
		{"@daily", "retention", func() {
			retention := time.Duration(d.cfg.Workflow.CompletedRetentionDays) * 24 * time.Hour
			if retention <= 0 {
				return
			}
			removed, err := d.queue.CleanupCompleted(ctx, retention)
			if err != nil {
				d.logger.Warn("completed-job cleanup failed", logging.Error(err))
				return
			}
			if removed > 0 {
				d.logger.Info("pruned completed jobs", logging.Int64("count", removed))
			}
		}},
	}
	for _, job := range jobs {
		if _, err := runner.AddFunc(job.spec, job.run); err != nil {
			return err
		}
	}

	if spec := d.cfg.Workflow.ScanSchedule; spec != "" {
		_, err := runner.AddFunc(spec, func() {
			if _, err := d.EnqueueScan(ctx, false); err != nil {
				d.logger.Warn("scheduled scan enqueue failed", logging.Error(err))
			}
		})
		if err != nil {
			return err
		}
	}

	runner.Start()
	s.cron = runner
	return nil
}

func (s *schedule) stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}
