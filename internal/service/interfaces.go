package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"problem_fetcher/internal/domain"
)

type ProblemStore interface {
	Upsert(ctx context.Context, problem *domain.Problem) (int64, error)
	GetExistingExternalIDs(ctx context.Context, sourceID string, ids []string) (map[string]struct{}, error)
}

type TagStore interface {
	UpsertBatch(ctx context.Context, names []string) (map[string]int64, error)
	LinkToProblem(ctx context.Context, problemID int64, tagIDs []int64) error
}

type SyncStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type Source interface {
	ID() string
	Name() string
	RequestDelay() time.Duration
	ListCandidates(ctx context.Context, limit int) ([]domain.Candidate, error)
	FetchProblem(ctx context.Context, cand domain.Candidate) (*domain.Problem, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, problem *domain.Problem, isNew bool) error
	Close() error
}
