package domain

import "time"

// SyncStats holds statistics about one sync run for one source.
type SyncStats struct {
	SourceID  string
	Fetched   int
	New       int
	Updated   int
	Failed    int
	Published int
	Duration  time.Duration
	Failures  []FailedCandidate
}

// FailedCandidate records a candidate whose fetch exhausted its retry budget.
type FailedCandidate struct {
	CandidateID string
	Err         error
}

// SyncState is the persisted per-source sync bookkeeping.
type SyncState struct {
	ID           int64     `db:"id"`
	SourceID     string    `db:"source_id"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	TotalSynced  int64     `db:"total_synced"`
}
