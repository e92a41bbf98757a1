package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/hpungsan/mediamgr/internal/errors"
)

// OriginKey is a persisted per-origin anonymization key.
type OriginKey struct {
	Origin       string
	Key          string
	SecondsStamp int64
}

// Permission states.
const (
	PermissionAllow  = "allow"
	PermissionDeny   = "deny"
	PermissionPrompt = "prompt"
)

// Permission is a remembered decision for one origin and device kind.
type Permission struct {
	Origin    string
	Kind      string
	State     string
	UpdatedAt int64
}

// GetOriginKey returns the stored key for origin.
func GetOriginKey(ctx context.Context, db *sql.DB, origin string) (*OriginKey, error) {
	k := &OriginKey{}
	err := db.QueryRowContext(ctx,
		`SELECT origin, key, seconds_stamp FROM origin_keys WHERE origin = ?`, origin,
	).Scan(&k.Origin, &k.Key, &k.SecondsStamp)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFound("origin key not found", "")
		}
		return nil, errors.NewInternal(err)
	}
	return k, nil
}

// PutOriginKey inserts or replaces the key for k.Origin.
func PutOriginKey(ctx context.Context, db *sql.DB, k *OriginKey) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO origin_keys (origin, key, seconds_stamp) VALUES (?, ?, ?)
		ON CONFLICT(origin) DO UPDATE SET key = excluded.key, seconds_stamp = excluded.seconds_stamp
	`, k.Origin, k.Key, k.SecondsStamp)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteOriginKeysSince removes keys created at or after since (unix seconds).
// since <= 0 removes everything. Returns the number of keys removed.
func DeleteOriginKeysSince(ctx context.Context, db *sql.DB, since int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM origin_keys WHERE seconds_stamp >= ?`, since)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// ListOriginKeys returns all stored keys ordered by origin.
func ListOriginKeys(ctx context.Context, db *sql.DB) ([]OriginKey, error) {
	rows, err := db.QueryContext(ctx, `SELECT origin, key, seconds_stamp FROM origin_keys ORDER BY origin`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var keys []OriginKey
	for rows.Next() {
		var k OriginKey
		if err := rows.Scan(&k.Origin, &k.Key, &k.SecondsStamp); err != nil {
			return nil, errors.NewInternal(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return keys, nil
}

// GetPermission returns the stored state for origin and kind, or
// PermissionPrompt if nothing was remembered.
func GetPermission(ctx context.Context, db *sql.DB, origin, kind string) (string, error) {
	var state string
	err := db.QueryRowContext(ctx,
		`SELECT state FROM permissions WHERE origin = ? AND kind = ?`, origin, kind,
	).Scan(&state)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return PermissionPrompt, nil
		}
		return "", errors.NewInternal(err)
	}
	return state, nil
}

// SetPermission remembers state for origin and kind. Setting PermissionPrompt
// removes the row.
func SetPermission(ctx context.Context, db *sql.DB, origin, kind, state string) error {
	switch state {
	case PermissionPrompt:
		return DeletePermission(ctx, db, origin, kind)
	case PermissionAllow, PermissionDeny:
	default:
		return errors.NewInvalidRequest("permission state must be allow, deny or prompt")
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO permissions (origin, kind, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(origin, kind) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, origin, kind, state, time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeletePermission forgets the decision for origin and kind.
// An empty kind forgets every kind for origin.
func DeletePermission(ctx context.Context, db *sql.DB, origin, kind string) error {
	var err error
	if kind == "" {
		_, err = db.ExecContext(ctx, `DELETE FROM permissions WHERE origin = ?`, origin)
	} else {
		_, err = db.ExecContext(ctx, `DELETE FROM permissions WHERE origin = ? AND kind = ?`, origin, kind)
	}
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListPermissions returns remembered decisions, optionally for one origin.
func ListPermissions(ctx context.Context, db *sql.DB, origin string) ([]Permission, error) {
	query := `SELECT origin, kind, state, updated_at FROM permissions`
	var args []any
	if origin != "" {
		query += ` WHERE origin = ?`
		args = append(args, origin)
	}
	query += ` ORDER BY origin, kind`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Origin, &p.Kind, &p.State, &p.UpdatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return perms, nil
}
