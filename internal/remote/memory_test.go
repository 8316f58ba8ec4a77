package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/syncable"
)

func doc(id, owner string, updatedAt time.Time) syncable.Document {
	return syncable.Document{
		syncable.KeyID:        id,
		syncable.KeyUserID:    owner,
		syncable.KeyUpdatedAt: updatedAt,
	}
}

func TestMemoryUpsertGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory("u1")

	d := doc("e1", "u1", time.Now())
	d["amount"] = int64(1250)
	require.NoError(t, s.Upsert(ctx, "expenses", "e1", d))

	got, err := s.Get(ctx, "expenses", "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1250), got["amount"])

	// mutating the returned copy must not leak into the store
	got["amount"] = int64(999)
	again, err := s.Get(ctx, "expenses", "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), again["amount"])
}

func TestMemoryGetAbsent(t *testing.T) {
	s := NewMemory("u1")
	got, err := s.Get(context.Background(), "expenses", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryUpsertForeignOwnerDenied(t *testing.T) {
	s := NewMemory("u1")
	err := s.Upsert(context.Background(), "expenses", "e1", doc("e1", "intruder", time.Now()))
	require.ErrorIs(t, err, common.ErrPermissionDenied)
	assert.Equal(t, 0, s.Len("expenses"))
}

func TestMemoryUpsertOverForeignDocumentDenied(t *testing.T) {
	s := NewMemory("u1")
	s.Seed("expenses", "e1", doc("e1", "u2", time.Now()))

	d := doc("e1", "u1", time.Now())
	err := s.Upsert(context.Background(), "expenses", "e1", d)
	require.ErrorIs(t, err, common.ErrPermissionDenied)
}

func TestMemoryChangedSince(t *testing.T) {
	ctx := context.Background()
	s := NewMemory("u1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Seed("expenses", "old", doc("old", "u1", base.Add(-time.Hour)))
	s.Seed("expenses", "boundary", doc("boundary", "u1", base))
	s.Seed("expenses", "fresh", doc("fresh", "u1", base.Add(time.Minute)))
	s.Seed("expenses", "foreign", doc("foreign", "u2", base.Add(time.Minute)))

	tomb := syncable.Document{
		syncable.KeyID:        "gone",
		syncable.KeyUserID:    "u1",
		syncable.KeyDeleted:   true,
		syncable.KeyIsDeleted: true,
		syncable.KeyDeletedAt: base.Add(2 * time.Minute),
		syncable.KeyUpdatedAt: base.Add(2 * time.Minute),
	}
	s.Seed("expenses", "gone", tomb)

	changed, err := s.ChangedSince(ctx, "expenses", base)
	require.NoError(t, err)
	assert.Len(t, changed, 2)
	assert.Contains(t, changed, "fresh")
	assert.Contains(t, changed, "gone")

	all, err := s.ChangedSince(ctx, "expenses", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.NotContains(t, all, "foreign")
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory("u1")
	s.Seed("expenses", "e1", doc("e1", "u1", time.Now()))

	require.NoError(t, s.Delete(ctx, "expenses", "e1"))
	got, err := s.Get(ctx, "expenses", "e1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// deleting an absent document is not an error
	require.NoError(t, s.Delete(ctx, "expenses", "e1"))
}

func TestMemoryTransactionApplied(t *testing.T) {
	ctx := context.Background()
	s := NewMemory("u1")
	s.Seed("expenses", "stale", doc("stale", "u1", time.Now()))

	ops := []Operation{
		UpsertOp("expenses", "e1", doc("e1", "u1", time.Now())),
		UpsertOp("incomes", "i1", doc("i1", "u1", time.Now())),
		DeleteOp("expenses", "stale"),
	}
	require.NoError(t, s.ExecuteTransaction(ctx, ops))

	assert.Equal(t, 1, s.Len("expenses"))
	assert.Equal(t, 1, s.Len("incomes"))
	got, err := s.Get(ctx, "expenses", "stale")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryTransactionAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemory("u1")
	s.Seed("expenses", "keep", doc("keep", "u1", time.Now()))

	ops := []Operation{
		UpsertOp("expenses", "e1", doc("e1", "u1", time.Now())),
		DeleteOp("expenses", "keep"),
		UpsertOp("expenses", "bad", doc("bad", "intruder", time.Now())),
	}
	err := s.ExecuteTransaction(ctx, ops)
	require.ErrorIs(t, err, common.ErrTransactionAborted)

	got, err := s.Get(ctx, "expenses", "keep")
	require.NoError(t, err)
	require.NotNil(t, got, "rejected batch must leave prior state intact")
	gone, err := s.Get(ctx, "expenses", "e1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryFaultInjection(t *testing.T) {
	ctx := context.Background()
	s := NewMemory("u1")
	boom := errors.New("boom")

	s.FailUpsert = boom
	err := s.Upsert(ctx, "expenses", "e1", doc("e1", "u1", time.Now()))
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
	s.FailUpsert = nil

	s.FailChanged = boom
	_, err = s.ChangedSince(ctx, "expenses", time.Time{})
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
	s.FailChanged = nil

	s.FailTx = boom
	err = s.ExecuteTransaction(ctx, []Operation{UpsertOp("expenses", "e1", doc("e1", "u1", time.Now()))})
	require.ErrorIs(t, err, common.ErrTransactionAborted)
	s.FailTx = nil

	require.NoError(t, s.Upsert(ctx, "expenses", "e1", doc("e1", "u1", time.Now())))
}
