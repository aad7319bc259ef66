package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/smukkama/weather-pipeline/internal/weather"
)

const thresholdColumns = `id, city, kind, min_threshold, max_threshold, condition, consecutive_updates`

// ListRules retrieves every rule of a kind ordered by id
func (db *DB) ListRules(ctx context.Context, kind weather.RuleKind) ([]weather.ThresholdRule, error) {
	query := `SELECT ` + thresholdColumns + ` FROM thresholds WHERE kind = $1 ORDER BY id`

	rows, err := db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, &weather.StoreError{Op: "list " + string(kind) + " thresholds", Err: err}
	}
	defer rows.Close()

	var rules []weather.ThresholdRule
	for rows.Next() {
		row, err := scanThreshold(rows)
		if err != nil {
			return nil, &weather.StoreError{Op: "scan threshold", Err: err}
		}
		rules = append(rules, row.toRule())
	}
	if err := rows.Err(); err != nil {
		return nil, &weather.StoreError{Op: "list " + string(kind) + " thresholds", Err: err}
	}
	return rules, nil
}

// GetRule retrieves the rule of a city and kind
func (db *DB) GetRule(ctx context.Context, city string, kind weather.RuleKind) (weather.ThresholdRule, error) {
	query := `SELECT ` + thresholdColumns + ` FROM thresholds WHERE city = $1 AND kind = $2`

	row, err := scanThreshold(db.QueryRowContext(ctx, query, city, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return weather.ThresholdRule{}, &weather.NotFoundError{Resource: string(kind) + " threshold", Key: city}
	}
	if err != nil {
		return weather.ThresholdRule{}, &weather.StoreError{Op: "get " + string(kind) + " threshold", Err: err}
	}
	return row.toRule(), nil
}

// UpsertRule inserts or replaces the rule for (city, kind) and returns it
// with its id
func (db *DB) UpsertRule(ctx context.Context, rule weather.ThresholdRule) (weather.ThresholdRule, error) {
	query := `
		INSERT INTO thresholds (city, kind, min_threshold, max_threshold, condition, consecutive_updates)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (city, kind) DO UPDATE
		SET min_threshold = EXCLUDED.min_threshold,
		    max_threshold = EXCLUDED.max_threshold,
		    condition = EXCLUDED.condition,
		    consecutive_updates = EXCLUDED.consecutive_updates,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	err := db.QueryRowContext(ctx,
		query,
		rule.City,
		string(rule.Kind),
		nullFloat(rule.Min),
		nullFloat(rule.Max),
		nullString(rule.Condition),
		rule.ConsecutiveUpdates,
	).Scan(&rule.ID)
	if err != nil {
		return weather.ThresholdRule{}, &weather.StoreError{Op: "upsert " + string(rule.Kind) + " threshold", Err: err}
	}
	return rule, nil
}

// DeleteRule removes a rule by kind and id
func (db *DB) DeleteRule(ctx context.Context, kind weather.RuleKind, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM thresholds WHERE kind = $1 AND id = $2`, string(kind), id)
	if err != nil {
		return &weather.StoreError{Op: "delete " + string(kind) + " threshold", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &weather.StoreError{Op: "delete " + string(kind) + " threshold", Err: err}
	}
	if n == 0 {
		return &weather.NotFoundError{Resource: string(kind) + " threshold", Key: strconv.FormatInt(id, 10)}
	}
	return nil
}

func scanThreshold(s scanner) (thresholdRow, error) {
	var r thresholdRow
	err := s.Scan(
		&r.ID,
		&r.City,
		&r.Kind,
		&r.MinThreshold,
		&r.MaxThreshold,
		&r.Condition,
		&r.ConsecutiveUpdates,
	)
	return r, err
}
