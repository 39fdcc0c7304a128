package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

// UpsertBatch inserts the tag names that are not yet known and returns the
// ids of all of them.
func (s *TagStore) UpsertBatch(ctx context.Context, names []string) (map[string]int64, error) {
	result := make(map[string]int64)
	if len(names) == 0 {
		return result, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO tags (name) VALUES ")
	valueArgs := make([]interface{}, 0, len(names))
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(")")
		valueArgs = append(valueArgs, name)
	}
	sb.WriteString(" ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id, name")

	exec := GetExecutor(ctx, s.db)
	rows, err := exec.QueryxContext(ctx, sb.String(), valueArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		result[name] = id
	}

	return result, rows.Err()
}

// LinkToProblem replaces the problem's tag links with the given set.
func (s *TagStore) LinkToProblem(ctx context.Context, problemID int64, tagIDs []int64) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM problem_tags WHERE problem_id = $1",
		problemID,
	)
	if err != nil {
		return err
	}

	if len(tagIDs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO problem_tags (problem_id, tag_id) VALUES ")
	valueArgs := make([]interface{}, 0, len(tagIDs)+1)
	valueArgs = append(valueArgs, problemID)
	for i, tagID := range tagIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(i + 2))
		sb.WriteString(")")
		valueArgs = append(valueArgs, tagID)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err = exec.ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

// GetByProblemID returns the tag names linked to a problem.
func (s *TagStore) GetByProblemID(ctx context.Context, problemID int64) ([]string, error) {
	query := `
		SELECT t.name
		FROM tags t
		INNER JOIN problem_tags pt ON pt.tag_id = t.id
		WHERE pt.problem_id = $1
		ORDER BY t.name`

	var names []string
	err := s.db.SelectContext(ctx, &names, query, problemID)
	return names, err
}
