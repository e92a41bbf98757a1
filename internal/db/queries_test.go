package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/hpungsan/mediamgr/internal/errors"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOriginKey_PutGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := PutOriginKey(ctx, db, &OriginKey{Origin: "https://a.example", Key: "k1", SecondsStamp: 100}); err != nil {
		t.Fatalf("PutOriginKey() error = %v", err)
	}

	got, err := GetOriginKey(ctx, db, "https://a.example")
	if err != nil {
		t.Fatalf("GetOriginKey() error = %v", err)
	}
	if got.Key != "k1" || got.SecondsStamp != 100 {
		t.Errorf("GetOriginKey() = %+v", got)
	}

	// Replace keeps one row per origin
	if err := PutOriginKey(ctx, db, &OriginKey{Origin: "https://a.example", Key: "k2", SecondsStamp: 200}); err != nil {
		t.Fatalf("PutOriginKey() error = %v", err)
	}
	keys, err := ListOriginKeys(ctx, db)
	if err != nil {
		t.Fatalf("ListOriginKeys() error = %v", err)
	}
	if len(keys) != 1 || keys[0].Key != "k2" {
		t.Errorf("ListOriginKeys() = %+v, want single k2", keys)
	}
}

func TestOriginKey_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := GetOriginKey(context.Background(), db, "https://missing.example")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetOriginKey() error = %v, want NotFoundError", err)
	}
}

func TestDeleteOriginKeysSince(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i, origin := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		k := &OriginKey{Origin: origin, Key: "k", SecondsStamp: int64(100 * (i + 1))}
		if err := PutOriginKey(ctx, db, k); err != nil {
			t.Fatalf("PutOriginKey() error = %v", err)
		}
	}

	n, err := DeleteOriginKeysSince(ctx, db, 200)
	if err != nil {
		t.Fatalf("DeleteOriginKeysSince() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	keys, _ := ListOriginKeys(ctx, db)
	if len(keys) != 1 || keys[0].Origin != "https://a.example" {
		t.Errorf("remaining = %+v, want only a.example", keys)
	}

	n, err = DeleteOriginKeysSince(ctx, db, 0)
	if err != nil {
		t.Fatalf("DeleteOriginKeysSince() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestPermission_DefaultPrompt(t *testing.T) {
	db := setupTestDB(t)

	state, err := GetPermission(context.Background(), db, "https://a.example", "camera")
	if err != nil {
		t.Fatalf("GetPermission() error = %v", err)
	}
	if state != PermissionPrompt {
		t.Errorf("state = %q, want prompt", state)
	}
}

func TestPermission_SetAndReset(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := SetPermission(ctx, db, "https://a.example", "camera", PermissionAllow); err != nil {
		t.Fatalf("SetPermission() error = %v", err)
	}
	if err := SetPermission(ctx, db, "https://a.example", "microphone", PermissionDeny); err != nil {
		t.Fatalf("SetPermission() error = %v", err)
	}

	state, _ := GetPermission(ctx, db, "https://a.example", "camera")
	if state != PermissionAllow {
		t.Errorf("camera = %q, want allow", state)
	}

	// Overwrite
	if err := SetPermission(ctx, db, "https://a.example", "camera", PermissionDeny); err != nil {
		t.Fatalf("SetPermission() error = %v", err)
	}
	state, _ = GetPermission(ctx, db, "https://a.example", "camera")
	if state != PermissionDeny {
		t.Errorf("camera = %q, want deny", state)
	}

	// prompt removes the row
	if err := SetPermission(ctx, db, "https://a.example", "camera", PermissionPrompt); err != nil {
		t.Fatalf("SetPermission() error = %v", err)
	}
	perms, err := ListPermissions(ctx, db, "https://a.example")
	if err != nil {
		t.Fatalf("ListPermissions() error = %v", err)
	}
	if len(perms) != 1 || perms[0].Kind != "microphone" {
		t.Errorf("ListPermissions() = %+v, want only microphone", perms)
	}
}

func TestPermission_InvalidState(t *testing.T) {
	db := setupTestDB(t)

	err := SetPermission(context.Background(), db, "https://a.example", "camera", "maybe")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("SetPermission() error = %v, want InvalidRequest", err)
	}
}

func TestDeletePermission_AllKinds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, kind := range []string{"camera", "microphone"} {
		if err := SetPermission(ctx, db, "https://a.example", kind, PermissionAllow); err != nil {
			t.Fatalf("SetPermission() error = %v", err)
		}
	}
	if err := SetPermission(ctx, db, "https://b.example", "camera", PermissionAllow); err != nil {
		t.Fatalf("SetPermission() error = %v", err)
	}

	if err := DeletePermission(ctx, db, "https://a.example", ""); err != nil {
		t.Fatalf("DeletePermission() error = %v", err)
	}

	perms, err := ListPermissions(ctx, db, "")
	if err != nil {
		t.Fatalf("ListPermissions() error = %v", err)
	}
	if len(perms) != 1 || perms[0].Origin != "https://b.example" {
		t.Errorf("ListPermissions() = %+v, want only b.example", perms)
	}
}
