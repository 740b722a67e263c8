package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// GetSetting returns the stored value for key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	defer observe(ctx, "GetSetting", time.Now())
	q, args, err := dialect.From("settings").Select("value").
		Where(goqu.C("key").Eq(key)).Prepared(true).ToSQL()
	if err != nil {
		return "", fmt.Errorf("catalog: build get setting: %w", err)
	}
	var v string
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("catalog: get setting %s: %w", key, err)
	}
	return v, nil
}

// SetSetting upserts key=value in the settings table (CLI `config set`).
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	defer observe(ctx, "SetSetting", time.Now())
	q, args, err := dialect.Insert("settings").Rows(goqu.Record{"key": key, "value": value}).
		OnConflict(goqu.DoUpdate("key", goqu.Record{"value": value})).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build set setting: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: set setting %s: %w", key, err)
	}
	return nil
}

// ListSettings returns every key/value pair (CLI `config list`).
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	defer observe(ctx, "ListSettings", time.Now())
	q, args, err := dialect.From("settings").Select("key", "value").Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build list settings: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("catalog: scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
