package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"problem_fetcher/internal/domain"
)

type ProblemStore struct {
	db *sqlx.DB
}

func NewProblemStore(db *sqlx.DB) *ProblemStore {
	return &ProblemStore{db: db}
}

// Upsert inserts or refreshes a problem keyed on (source_id, external_id).
// Nullable content columns keep the previously stored value when the new
// fetch yielded nothing for them, so a degraded re-scrape never erases data.
func (s *ProblemStore) Upsert(ctx context.Context, problem *domain.Problem) (int64, error) {
	samples := problem.Sections.Samples
	if samples == nil {
		samples = []domain.Sample{}
	}
	samplesJSON, err := json.Marshal(samples)
	if err != nil {
		return 0, fmt.Errorf("marshal samples: %w", err)
	}

	query := `
		INSERT INTO problems (
			source_id, external_id, title, url, difficulty,
			time_limit_ms, mem_limit_kb,
			statement_html, input_spec_html, output_spec_html, samples
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			difficulty = COALESCE(EXCLUDED.difficulty, problems.difficulty),
			time_limit_ms = EXCLUDED.time_limit_ms,
			mem_limit_kb = EXCLUDED.mem_limit_kb,
			statement_html = COALESCE(EXCLUDED.statement_html, problems.statement_html),
			input_spec_html = COALESCE(EXCLUDED.input_spec_html, problems.input_spec_html),
			output_spec_html = COALESCE(EXCLUDED.output_spec_html, problems.output_spec_html),
			samples = CASE
				WHEN jsonb_array_length(EXCLUDED.samples) > 0 THEN EXCLUDED.samples
				ELSE problems.samples
			END,
			updated_at = now()
		RETURNING id`

	exec := GetExecutor(ctx, s.db)

	var id int64
	err = exec.QueryRowxContext(ctx, query,
		problem.SourceID,
		problem.ExternalID,
		problem.Title,
		problem.URL,
		problem.Difficulty,
		problem.TimeLimitMs,
		problem.MemLimitKb,
		problem.Sections.StatementHTML,
		problem.Sections.InputSpecHTML,
		problem.Sections.OutputSpecHTML,
		samplesJSON,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetExistingExternalIDs returns which of the given external ids are already
// stored for the source.
func (s *ProblemStore) GetExistingExternalIDs(ctx context.Context, sourceID string, ids []string) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT external_id FROM problems WHERE source_id = $1 AND external_id = ANY($2)`

	exec := GetExecutor(ctx, s.db)
	rows, err := exec.QueryxContext(ctx, query, sourceID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var extID string
		if err := rows.Scan(&extID); err != nil {
			return nil, err
		}
		result[extID] = struct{}{}
	}

	return result, rows.Err()
}
