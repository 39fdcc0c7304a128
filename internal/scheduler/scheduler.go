package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"problem_fetcher/internal/domain"
)

// Syncer runs one batch for one source.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

// Scheduler runs every registered syncer on a fixed interval. Sources sync
// concurrently; one slow judge does not hold up the others.
type Scheduler struct {
	syncers     []Syncer
	interval    time.Duration
	syncTimeout time.Duration
	logger      *slog.Logger
}

func NewScheduler(syncers []Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncers:     syncers,
		interval:    interval,
		syncTimeout: 30 * time.Minute,
		logger:      logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "sources", len(s.syncers))

	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

// RunOnce syncs every source a single time and returns, for one-shot runs.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runAll(ctx)
}

func (s *Scheduler) runAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, syncer := range s.syncers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runSync(ctx, syncer)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) runSync(ctx context.Context, syncer Syncer) {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	if _, err := syncer.Sync(syncCtx); err != nil {
		s.logger.Error("sync failed", "error", err)
	}
}
