package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"problem_fetcher/internal/config"
	"problem_fetcher/internal/domain"
)

type SyncService struct {
	source    Source
	problems  ProblemStore
	tags      TagStore
	syncState SyncStateStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig
}

func NewSyncService(
	source Source,
	problems ProblemStore,
	tags TagStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:    source,
		problems:  problems,
		tags:      tags,
		syncState: syncState,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
	}
}

// Sync runs one batch for the service's source: discover candidates, fetch
// and store each one, publish the result. A candidate that fails after its
// retry budget is recorded and skipped; only a listing failure or a
// cancelled context aborts the batch.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()
	s.logger.Info("starting sync",
		"source_name", s.source.Name(),
		"max_problems", s.config.MaxProblemsPerSync,
	)

	candidates, err := s.source.ListCandidates(ctx, s.config.MaxProblemsPerSync)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	s.logger.Info("discovered candidates", "count", len(candidates))

	existing, err := s.existingIDs(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("check existing: %w", err)
	}

	stats := &domain.SyncStats{
		SourceID: s.source.ID(),
		Fetched:  len(candidates),
	}

	// One request per RequestDelay keeps us polite with the judge.
	var limiter *rate.Limiter
	if delay := s.source.RequestDelay(); delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	for _, cand := range candidates {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return stats, err
			}
		}

		problem, err := s.source.FetchProblem(ctx, cand)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			s.logger.Warn("candidate failed", "candidate", cand.ID, "error", err)
			stats.Failed++
			stats.Failures = append(stats.Failures, domain.FailedCandidate{
				CandidateID: cand.ID,
				Err:         err,
			})
			continue
		}

		if err := s.saveProblem(ctx, problem); err != nil {
			s.logger.Warn("save failed", "candidate", cand.ID, "error", err)
			stats.Failed++
			stats.Failures = append(stats.Failures, domain.FailedCandidate{
				CandidateID: cand.ID,
				Err:         err,
			})
			continue
		}

		_, isNew := existing[problem.ExternalID]
		isNew = !isNew
		if isNew {
			stats.New++
		} else {
			stats.Updated++
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, problem, isNew); err != nil {
				s.logger.Warn("publish failed", "candidate", cand.ID, "error", err)
			} else {
				stats.Published++
			}
		}
	}

	if err := s.updateSyncState(ctx, stats); err != nil {
		return stats, fmt.Errorf("update sync state: %w", err)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("sync completed",
		"new", stats.New,
		"updated", stats.Updated,
		"failed", stats.Failed,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) existingIDs(ctx context.Context, candidates []domain.Candidate) (map[string]struct{}, error) {
	if len(candidates) == 0 {
		return map[string]struct{}{}, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return s.problems.GetExistingExternalIDs(ctx, s.source.ID(), ids)
}

// saveProblem writes the problem and its tag links in one transaction.
func (s *SyncService) saveProblem(ctx context.Context, problem *domain.Problem) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		problemID, err := s.problems.Upsert(txCtx, problem)
		if err != nil {
			return fmt.Errorf("upsert problem: %w", err)
		}

		if len(problem.Tags) == 0 {
			return nil
		}

		tagIDs, err := s.tags.UpsertBatch(txCtx, problem.Tags)
		if err != nil {
			return fmt.Errorf("upsert tags: %w", err)
		}

		ids := make([]int64, 0, len(tagIDs))
		for _, name := range problem.Tags {
			if id, ok := tagIDs[name]; ok {
				ids = append(ids, id)
			}
		}

		if err := s.tags.LinkToProblem(txCtx, problemID, ids); err != nil {
			return fmt.Errorf("link tags: %w", err)
		}

		return nil
	})
}

func (s *SyncService) updateSyncState(ctx context.Context, stats *domain.SyncStats) error {
	state, err := s.syncState.Get(ctx, s.source.ID())
	if err != nil {
		return err
	}

	state.SourceID = s.source.ID()
	state.LastSyncedAt = time.Now()
	state.TotalSynced += int64(stats.New + stats.Updated)

	return s.syncState.Update(ctx, state)
}
