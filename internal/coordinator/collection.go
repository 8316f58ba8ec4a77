package coordinator

import (
	"context"
	"fmt"

	"github.com/mkorchagin/finsync/internal/dbx"
	"github.com/mkorchagin/finsync/internal/local"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// Collection is the type-erased view of one local collection store. The
// coordinator drives every registered collection through the same cycle
// without knowing the entity types.
type Collection interface {
	Name() string
	Bind(q dbx.DBTX) Collection
	New() syncable.Entity
	Get(ctx context.Context, id string) (syncable.Entity, bool, error)
	FetchDirty(ctx context.Context) ([]syncable.Entity, error)
	FetchAll(ctx context.Context, includeDeleted bool) ([]syncable.Entity, error)
	Save(ctx context.Context, e syncable.Entity) error
	MarkSynced(ctx context.Context, marks []local.Mark) error
	Purge(ctx context.Context, id string) error
}

// Wrap erases the entity type of a local store so it can be registered with
// the coordinator.
func Wrap[T syncable.Entity](s *local.Store[T]) Collection {
	return wrapped[T]{s: s}
}

type wrapped[T syncable.Entity] struct {
	s *local.Store[T]
}

func (w wrapped[T]) Name() string { return w.s.Table() }

func (w wrapped[T]) Bind(q dbx.DBTX) Collection { return wrapped[T]{s: w.s.Bind(q)} }

func (w wrapped[T]) New() syncable.Entity { return w.s.New() }

func (w wrapped[T]) Get(ctx context.Context, id string) (syncable.Entity, bool, error) {
	e, ok, err := w.s.Get(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return e, true, nil
}

func (w wrapped[T]) FetchDirty(ctx context.Context) ([]syncable.Entity, error) {
	items, err := w.s.FetchDirty(ctx)
	if err != nil {
		return nil, err
	}
	return erase(items), nil
}

func (w wrapped[T]) FetchAll(ctx context.Context, includeDeleted bool) ([]syncable.Entity, error) {
	items, err := w.s.FetchAll(ctx, includeDeleted)
	if err != nil {
		return nil, err
	}
	return erase(items), nil
}

func erase[T syncable.Entity](items []T) []syncable.Entity {
	result := make([]syncable.Entity, len(items))
	for i, e := range items {
		result[i] = e
	}
	return result
}

func (w wrapped[T]) Save(ctx context.Context, e syncable.Entity) error {
	t, ok := e.(T)
	if !ok {
		return fmt.Errorf("wrong entity type %T for collection %s", e, w.Name())
	}
	return w.s.Save(ctx, t)
}

func (w wrapped[T]) MarkSynced(ctx context.Context, marks []local.Mark) error {
	return w.s.MarkSynced(ctx, marks)
}

func (w wrapped[T]) Purge(ctx context.Context, id string) error {
	return w.s.Purge(ctx, id)
}
