package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/MidnightBSD/mport"
)

// PutScript upserts the lifecycle script body for pkg at slot (Design
// Note §9: "generic 'scripts' table keyed by {pre,post}x{install,
// deinstall}").
func (s *Store) PutScript(ctx context.Context, tx *sql.Tx, pkg string, slot mport.ScriptSlot, body string) error {
	defer observe(ctx, "PutScript", time.Now())
	q, args, err := dialect.Insert("scripts").Rows(goqu.Record{
		"pkg": pkg, "slot": string(slot), "body": body,
	}).OnConflict(goqu.DoUpdate("pkg,slot", goqu.Record{"body": body})).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build put script: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: put script %s/%s: %w", pkg, slot, err)
	}
	return nil
}

// Script returns the body stored for pkg at slot, or ErrNotFound if
// the package carries no script for that slot.
func (s *Store) Script(ctx context.Context, pkg string, slot mport.ScriptSlot) (string, error) {
	defer observe(ctx, "Script", time.Now())
	q, args, err := dialect.From("scripts").Select("body").
		Where(goqu.C("pkg").Eq(pkg), goqu.C("slot").Eq(string(slot))).
		Prepared(true).ToSQL()
	if err != nil {
		return "", fmt.Errorf("catalog: build script query: %w", err)
	}
	var body string
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("catalog: script %s/%s: %w", pkg, slot, err)
	}
	return body, nil
}
