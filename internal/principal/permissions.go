package principal

import (
	"context"
	"database/sql"
	"sync"

	"github.com/hpungsan/mediamgr/internal/db"
	"github.com/hpungsan/mediamgr/internal/errors"
)

// Kinds that can carry a remembered decision.
const (
	KindCamera     = "camera"
	KindMicrophone = "microphone"
)

// PermissionStore remembers per-origin camera and microphone decisions.
// With a nil database decisions last for the life of the process.
type PermissionStore struct {
	db *sql.DB

	mu     sync.Mutex
	memory map[[2]string]string
}

// NewPermissionStore returns a store backed by database.
func NewPermissionStore(database *sql.DB) *PermissionStore {
	return &PermissionStore{db: database, memory: make(map[[2]string]string)}
}

// Get returns allow, deny or prompt.
func (p *PermissionStore) Get(ctx context.Context, origin, kind string) (string, error) {
	if p.db != nil {
		return db.GetPermission(ctx, p.db, origin, kind)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok := p.memory[[2]string{origin, kind}]; ok {
		return state, nil
	}
	return db.PermissionPrompt, nil
}

// Set remembers state for origin and kind.
func (p *PermissionStore) Set(ctx context.Context, origin, kind, state string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	if p.db != nil {
		return db.SetPermission(ctx, p.db, origin, kind, state)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch state {
	case db.PermissionPrompt:
		delete(p.memory, [2]string{origin, kind})
	case db.PermissionAllow, db.PermissionDeny:
		p.memory[[2]string{origin, kind}] = state
	default:
		return errors.NewInvalidRequest("permission state must be allow, deny or prompt")
	}
	return nil
}

// Forget drops every decision for origin.
func (p *PermissionStore) Forget(ctx context.Context, origin string) error {
	if p.db != nil {
		return db.DeletePermission(ctx, p.db, origin, "")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.memory {
		if k[0] == origin {
			delete(p.memory, k)
		}
	}
	return nil
}

// List returns the remembered decisions, optionally for one origin.
func (p *PermissionStore) List(ctx context.Context, origin string) ([]db.Permission, error) {
	if p.db != nil {
		return db.ListPermissions(ctx, p.db, origin)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []db.Permission
	for k, state := range p.memory {
		if origin == "" || k[0] == origin {
			out = append(out, db.Permission{Origin: k[0], Kind: k[1], State: state})
		}
	}
	return out, nil
}

func validKind(kind string) error {
	if kind != KindCamera && kind != KindMicrophone {
		return errors.NewInvalidRequest("permission kind must be camera or microphone")
	}
	return nil
}
