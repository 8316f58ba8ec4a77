// Package local persists syncable entities in SQLite. Each collection gets
// its own table with the same shape: the sync metadata in queryable columns
// and the entity fields as a JSON body blob.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/dbx"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// Store gives typed access to one collection table using a DBTX
// (either *sql.DB or *sql.Tx).
type Store[T syncable.Entity] struct {
	q       dbx.DBTX
	table   string
	owner   string
	factory func() T
}

// NewStore binds a store to the given DBTX and owner. The table name is the
// entity's collection name.
func NewStore[T syncable.Entity](q dbx.DBTX, owner string, factory func() T) *Store[T] {
	return &Store[T]{q: q, table: factory().Collection(), owner: owner, factory: factory}
}

// Bind returns a copy of the store running against a different DBTX, so a
// sequence of writes can share one transaction.
func (s *Store[T]) Bind(q dbx.DBTX) *Store[T] {
	cp := *s
	cp.q = q
	return &cp
}

// New returns a fresh zero-valued entity for this collection.
func (s *Store[T]) New() T { return s.factory() }

// Table returns the collection's table name.
func (s *Store[T]) Table() string { return s.table }

const metaColumns = `id, owner_user_id, body, last_updated, sync_status, is_deleted, deleted_at, deleted_by`

// Save upserts an entity, metadata columns and body together. Tombstoned
// rows keep an empty body since their fields no longer matter.
func (s *Store[T]) Save(ctx context.Context, e T) error {
	m := e.SyncMeta()

	body := []byte("{}")
	if !m.IsDeleted {
		doc := syncable.Document{}
		if err := e.EncodeFields(doc); err != nil {
			return err
		}
		var err error
		body, err = json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: marshal %s/%s: %v", common.ErrDataCorruption, s.table, m.ID, err)
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_user_id = excluded.owner_user_id,
			body = excluded.body,
			last_updated = excluded.last_updated,
			sync_status = excluded.sync_status,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			deleted_by = excluded.deleted_by
	`, s.table, metaColumns)

	_, err := s.q.ExecContext(ctx, query,
		m.ID, m.OwnerUserID, body, nanoFromTime(m.LastUpdated), string(m.Status),
		boolToInt(m.IsDeleted), nanoFromTimePtr(m.DeletedAt), m.DeletedBy)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", s.table, err)
	}
	return nil
}

// Get returns an entity by id. The second result reports whether the row
// exists; tombstoned rows are returned too, with IsDeleted set.
func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ? AND owner_user_id = ?`, metaColumns, s.table)
	row := s.q.QueryRowContext(ctx, query, id, s.owner)

	e, err := s.scan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return e, true, nil
}

// FetchDirty returns every entity whose state requires a push.
func (s *Store[T]) FetchDirty(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE owner_user_id = ? AND sync_status IN (?, ?, ?)`, metaColumns, s.table)
	return s.fetch(ctx, query, s.owner,
		string(syncable.StateCreated), string(syncable.StateUpdated), string(syncable.StateDeleted))
}

// FetchAll lists the owner's entities, optionally including tombstones.
func (s *Store[T]) FetchAll(ctx context.Context, includeDeleted bool) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_user_id = ?`, metaColumns, s.table)
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	return s.fetch(ctx, query, s.owner)
}

// Mark identifies one pushed row by id and by the timestamp the pushed
// snapshot carried.
type Mark struct {
	ID          string
	LastUpdated time.Time
}

// MarkSynced flips the given rows to the synced state after a successful
// push. The update is guarded by the snapshot timestamp: a row edited while
// the push was in flight no longer matches and stays dirty, so the edit is
// picked up by the next push.
func (s *Store[T]) MarkSynced(ctx context.Context, marks []Mark) error {
	query := fmt.Sprintf(`UPDATE %s SET sync_status = ?
		WHERE id = ? AND owner_user_id = ? AND last_updated = ?`, s.table)

	for _, m := range marks {
		_, err := s.q.ExecContext(ctx, query,
			string(syncable.StateSynced), m.ID, s.owner, nanoFromTime(m.LastUpdated))
		if err != nil {
			return fmt.Errorf("failed to mark %s/%s synced: %w", s.table, m.ID, err)
		}
	}
	return nil
}

// Purge removes a row permanently. Used for tombstone retention cleanup,
// never for user-initiated deletes.
func (s *Store[T]) Purge(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND owner_user_id = ?`, s.table)
	if _, err := s.q.ExecContext(ctx, query, id, s.owner); err != nil {
		return fmt.Errorf("failed to purge %s/%s: %w", s.table, id, err)
	}
	return nil
}

func (s *Store[T]) fetch(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", s.table, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		e, err := s.scan(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store[T]) scan(scan func(...any) error) (T, error) {
	e := s.factory()
	m := e.SyncMeta()

	var body []byte
	var lastUpdated int64
	var status string
	var isDeleted int
	var deletedAt sql.NullInt64
	var deletedBy sql.NullString

	if err := scan(&m.ID, &m.OwnerUserID, &body, &lastUpdated, &status, &isDeleted, &deletedAt, &deletedBy); err != nil {
		var zero T
		return zero, err
	}

	m.LastUpdated = timeFromNano(lastUpdated)
	m.Status = syncable.State(status)
	m.IsDeleted = isDeleted != 0
	if deletedAt.Valid {
		ts := timeFromNano(deletedAt.Int64)
		m.DeletedAt = &ts
	}
	m.DeletedBy = deletedBy.String

	if !m.IsDeleted {
		var doc syncable.Document
		if err := json.Unmarshal(body, &doc); err != nil {
			var zero T
			return zero, fmt.Errorf("%w: unmarshal %s/%s: %v", common.ErrDataCorruption, s.table, m.ID, err)
		}
		if err := e.DecodeFields(doc); err != nil {
			var zero T
			return zero, err
		}
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nanoFromTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanoFromTimePtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanoFromTime(*t), Valid: true}
}

func timeFromNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
