package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"maintenance-query-agent/internal/logger"
)

// Snapshotter flushes the vector index to disk when it has changed.
type Snapshotter interface {
	Snapshot() error
}

// HistoryTrimmer removes chat history older than a cutoff.
type HistoryTrimmer interface {
	TrimHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler manages the background maintenance jobs: periodic index
// snapshots and optional history retention.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	ctx       context.Context
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ScheduleSnapshots persists the vector index every period minutes.
func (s *Scheduler) ScheduleSnapshots(index Snapshotter, periodMinutes int) error {
	_, err := s.scheduler.
		Every(time.Duration(periodMinutes) * time.Minute).
		Tag("index-snapshot").
		Do(func() {
			if err := index.Snapshot(); err != nil {
				logger.Error("Scheduled index snapshot failed", "error", err)
			}
		})
	return err
}

// ScheduleHistoryRetention deletes history records older than retentionDays
// once a day. A non-positive retention disables the job.
func (s *Scheduler) ScheduleHistoryRetention(trimmer HistoryTrimmer, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	_, err := s.scheduler.
		Every(24 * time.Hour).
		Tag("history-retention").
		Do(func() {
			cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
			n, err := trimmer.TrimHistoryBefore(s.ctx, cutoff)
			if err != nil {
				logger.Error("History retention job failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("Trimmed old history records", "deleted", n, "cutoff", cutoff)
			}
		})
	return err
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels any running jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}
