package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/robfig/cron/v3"
)

// Locker runs fn only while holding a cluster-wide lock. *db.Pool implements it.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context)) (bool, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, minAge time.Duration, batch int) (booking.ReconcileReport, error)
}

// Purger trims published outbox rows.
type Purger interface {
	PurgePublished(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	Schedule        string
	MinAge          time.Duration
	BatchSize       int
	AdvisoryLockKey int64

	PurgeSchedule string
	PurgeAfter    time.Duration
}

// Job periodically settles deposit bookings whose webhook never arrived.
type Job struct {
	locker Locker
	svc    Reconciler
	purger Purger
	logger *slog.Logger
	cfg    Config
}

func New(locker Locker, svc Reconciler, purger Purger, logger *slog.Logger, cfg Config) *Job {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 7310001
	}
	if cfg.PurgeSchedule == "" {
		cfg.PurgeSchedule = "@daily"
	}
	if cfg.PurgeAfter <= 0 {
		cfg.PurgeAfter = 7 * 24 * time.Hour
	}
	return &Job{locker: locker, svc: svc, purger: purger, logger: logger, cfg: cfg}
}

// Run schedules the job and blocks until ctx is done, then waits for a running pass.
func (j *Job) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{j.logger})), cron.WithLogger(cronLogger{j.logger}))
	if _, err := c.AddFunc(j.cfg.Schedule, func() { j.RunOnce(ctx) }); err != nil {
		return err
	}
	if j.purger != nil {
		if _, err := c.AddFunc(j.cfg.PurgeSchedule, func() { j.purge(ctx) }); err != nil {
			return err
		}
	}
	c.Start()
	j.logger.Info("deposit reconciler scheduled", "schedule", j.cfg.Schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// PendingRetention is how long the pending store must keep a deposit booking
// so the reconciler sees it after expiry and cancels its intent. It covers the
// expiry age plus three runs of schedule.
func PendingRetention(expireAfter, minAge time.Duration, schedule string) (time.Duration, error) {
	if schedule == "" {
		schedule = "@every 5m"
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return 0, err
	}
	first := sched.Next(time.Now())
	every := sched.Next(first).Sub(first)
	return max(expireAfter, minAge) + 3*every, nil
}

// RunOnce reconciles one batch if no other instance holds the lock.
func (j *Job) RunOnce(ctx context.Context) {
	ran, err := j.locker.TryAdvisoryLock(ctx, j.cfg.AdvisoryLockKey, func(ctx context.Context) {
		report, err := j.svc.Reconcile(ctx, j.cfg.MinAge, j.cfg.BatchSize)
		if err != nil {
			j.logger.Error("deposit reconcile failed", "err", err)
			return
		}
		if report.Checked > 0 {
			j.logger.Info("deposit reconcile done",
				"checked", report.Checked,
				"confirmed", report.Confirmed,
				"discarded", report.Discarded,
				"pending", report.Pending,
				"failed", report.Failed,
			)
		}
	})
	if err != nil {
		j.logger.Error("deposit reconcile: advisory lock failed", "err", err)
		return
	}
	if !ran {
		j.logger.Debug("deposit reconcile: lock held by another instance", "lock_key", j.cfg.AdvisoryLockKey)
	}
}

func (j *Job) purge(ctx context.Context) {
	n, err := j.purger.PurgePublished(ctx, time.Now().Add(-j.cfg.PurgeAfter))
	if err != nil {
		j.logger.Error("outbox purge failed", "err", err)
		return
	}
	j.logger.Info("outbox purged", "rows", n)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
