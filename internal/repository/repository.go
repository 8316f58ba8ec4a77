// Package repository is the write path used by application code. It assigns
// ids, maintains the sync lifecycle state and wakes the coordinator after
// every mutation; it never talks to the remote store directly.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/local"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// Notifier wakes the sync coordinator. Implemented by coordinator.Coordinator.
type Notifier interface {
	Notify()
}

type Repository[T syncable.Entity] struct {
	store    *local.Store[T]
	notifier Notifier
	owner    string
	device   string
	now      func() time.Time
}

// New binds a repository to the authenticated owner. The device name is
// recorded as deletedBy on tombstones when the caller does not supply one.
func New[T syncable.Entity](store *local.Store[T], notifier Notifier, owner, device string) *Repository[T] {
	return &Repository[T]{store: store, notifier: notifier, owner: owner, device: device, now: time.Now}
}

// Fetch lists the owner's entities, optionally with tombstones included.
func (r *Repository[T]) Fetch(ctx context.Context, includeDeleted bool) ([]T, error) {
	return r.store.FetchAll(ctx, includeDeleted)
}

// Get returns one entity by id, or ErrNotFound.
func (r *Repository[T]) Get(ctx context.Context, id string) (T, error) {
	e, found, err := r.store.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	if !found {
		var zero T
		return zero, fmt.Errorf("%w: %s/%s", common.ErrNotFound, r.store.Table(), id)
	}
	return e, nil
}

// Create persists a new entity. A missing id is assigned here; it is
// immutable afterwards and doubles as the remote document key.
func (r *Repository[T]) Create(ctx context.Context, e T) error {
	m := e.SyncMeta()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.OwnerUserID = r.owner
	m.Status = syncable.StateCreated
	m.Touch(r.now())

	if err := r.store.Save(ctx, e); err != nil {
		return err
	}
	r.notifier.Notify()
	return nil
}

// Update persists an edit. An entity that was created locally and never
// pushed stays in the created state; everything else becomes updated.
func (r *Repository[T]) Update(ctx context.Context, e T) error {
	m := e.SyncMeta()
	if m.IsDeleted {
		return fmt.Errorf("%w: %s/%s", common.ErrEntityDeleted, e.Collection(), m.ID)
	}
	if m.Status != syncable.StateCreated {
		m.Status = syncable.StateUpdated
	}
	m.Touch(r.now())

	if err := r.store.Save(ctx, e); err != nil {
		return err
	}
	r.notifier.Notify()
	return nil
}

// Delete turns the entity into a tombstone. The row survives until the
// deletion has propagated and the retention window has elapsed. An empty
// deletedBy falls back to the repository's device name.
func (r *Repository[T]) Delete(ctx context.Context, e T, deletedBy string) error {
	if deletedBy == "" {
		deletedBy = r.device
	}
	syncable.MarkDeleted(e, r.now(), deletedBy)

	if err := r.store.Save(ctx, e); err != nil {
		return err
	}
	r.notifier.Notify()
	return nil
}
