package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mailroom/internal/invoice"
)

// Comparison is one archived invoice comparison.
type Comparison struct {
	ID        int64              `json:"id"`
	LeftPath  string             `json:"left_path"`
	RightPath string             `json:"right_path"`
	Result    invoice.Comparison `json:"result"`
	CreatedAt time.Time          `json:"created_at"`
}

// RecordComparison stores a comparison result and returns its row id.
func (s *Store) RecordComparison(ctx context.Context, leftPath, rightPath string, result invoice.Comparison) (int64, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("encode comparison: %w", err)
	}
	var id int64
	err = retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			"INSERT INTO comparisons (left_path, right_path, result_json, created_at) VALUES (?, ?, ?, ?)",
			leftPath, rightPath, string(encoded), formatTime(time.Now()))
		if execErr != nil {
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("record comparison: %w", err)
	}
	return id, nil
}

// ListComparisons returns stored comparisons newest first.
func (s *Store) ListComparisons(ctx context.Context, limit int) ([]Comparison, error) {
	query := "SELECT id, left_path, right_path, result_json, created_at FROM comparisons ORDER BY created_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comparisons: %w", err)
	}
	defer rows.Close()

	var out []Comparison
	for rows.Next() {
		var (
			c          Comparison
			resultJSON string
			createdRaw string
		)
		if err := rows.Scan(&c.ID, &c.LeftPath, &c.RightPath, &resultJSON, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &c.Result); err != nil {
			return nil, fmt.Errorf("decode comparison %d: %w", c.ID, err)
		}
		c.CreatedAt = parseTime(createdRaw)
		out = append(out, c)
	}
	return out, rows.Err()
}
