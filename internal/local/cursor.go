package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkorchagin/finsync/internal/dbx"
)

// CursorStore persists the pull position per collection per user. The cursor
// is only written after a window has been fully reconciled, so advancing it
// is the pull's commit point.
type CursorStore struct {
	q     dbx.DBTX
	owner string
}

func NewCursorStore(q dbx.DBTX, owner string) *CursorStore {
	return &CursorStore{q: q, owner: owner}
}

// Bind returns a copy running against a different DBTX, so the cursor write
// can join the reconcile transaction.
func (c *CursorStore) Bind(q dbx.DBTX) *CursorStore {
	return &CursorStore{q: q, owner: c.owner}
}

// Get returns the cursor for a collection, or the zero time when this user
// has never pulled the collection.
func (c *CursorStore) Get(ctx context.Context, collection string) (time.Time, error) {
	query := `SELECT pulled_at FROM sync_cursors WHERE owner_user_id = ? AND collection = ?`

	var nano int64
	err := c.q.QueryRowContext(ctx, query, c.owner, collection).Scan(&nano)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read cursor for %s: %w", collection, err)
	}
	return timeFromNano(nano), nil
}

// Put stores the cursor for a collection.
func (c *CursorStore) Put(ctx context.Context, collection string, t time.Time) error {
	query := `INSERT INTO sync_cursors (owner_user_id, collection, pulled_at) VALUES (?, ?, ?)
		ON CONFLICT(owner_user_id, collection) DO UPDATE SET pulled_at = excluded.pulled_at`
	if _, err := c.q.ExecContext(ctx, query, c.owner, collection, nanoFromTime(t)); err != nil {
		return fmt.Errorf("failed to store cursor for %s: %w", collection, err)
	}
	return nil
}
