package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/dbx"
	"github.com/mkorchagin/finsync/internal/remote/migrations"
	"github.com/mkorchagin/finsync/internal/syncable"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps every collection in one documents table, the payload
// as JSONB next to the columns the sync queries need (owner scope, update
// marker, tombstone flag).
type PostgresStore struct {
	db    *sql.DB
	owner string
}

// OpenPostgres connects via the pgx stdlib driver and brings the schema up
// to date with the embedded goose migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return db, nil
}

// NewPostgresStore binds a store to the authenticated owner. Every query is
// filtered by that owner; the profile document satisfies the filter because
// its owner key equals its id.
func NewPostgresStore(db *sql.DB, owner string) *PostgresStore {
	return &PostgresStore{db: db, owner: owner}
}

func (s *PostgresStore) Upsert(ctx context.Context, collection, id string, doc syncable.Document) error {
	if err := s.upsert(ctx, s.db, collection, id, doc); err != nil {
		return err
	}
	return nil
}

// upsert runs against either the pool or a transaction handle so the same
// statement serves both the single-document path and batches.
func (s *PostgresStore) upsert(ctx context.Context, q dbx.DBTX, collection, id string, doc syncable.Document) error {
	docOwner, _ := syncable.OptionalString(doc, syncable.KeyUserID)
	if docOwner != s.owner {
		return fmt.Errorf("%w: document %s/%s belongs to %q", common.ErrPermissionDenied, collection, id, docOwner)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal %s/%s: %v", common.ErrDataCorruption, collection, id, err)
	}

	query := `
		INSERT INTO documents (collection, id, owner_user_id, body, updated_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection, id)
		DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at,
			deleted = EXCLUDED.deleted
			WHERE documents.owner_user_id = EXCLUDED.owner_user_id;
	`
	res, err := q.ExecContext(ctx, query,
		collection, id, s.owner, body, syncable.BestTimestamp(doc), syncable.IsTombstone(doc))
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: document %s/%s owned by another user", common.ErrPermissionDenied, collection, id)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (syncable.Document, error) {
	query := `SELECT body FROM documents WHERE collection = $1 AND id = $2 AND owner_user_id = $3`

	var body []byte
	err := s.db.QueryRowContext(ctx, query, collection, id, s.owner).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}

	var doc syncable.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s/%s: %v", common.ErrDataCorruption, collection, id, err)
	}
	return doc, nil
}

func (s *PostgresStore) ChangedSince(ctx context.Context, collection string, since time.Time) (map[string]syncable.Document, error) {
	query := `
		SELECT id, body FROM documents
		WHERE collection = $1 AND owner_user_id = $2 AND updated_at > $3
	`
	rows, err := s.db.QueryContext(ctx, query, collection, s.owner, since)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	result := make(map[string]syncable.Document)
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, unavailable(err)
		}
		var doc syncable.Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("%w: unmarshal %s/%s: %v", common.ErrDataCorruption, collection, id, err)
		}
		result[id] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2 AND owner_user_id = $3`
	if _, err := s.db.ExecContext(ctx, query, collection, id, s.owner); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) ExecuteTransaction(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, op := range ops {
			switch op.Kind {
			case OpUpsert:
				if err := s.upsert(ctx, tx, op.Collection, op.ID, op.Doc); err != nil {
					return err
				}
			case OpDelete:
				query := `DELETE FROM documents WHERE collection = $1 AND id = $2 AND owner_user_id = $3`
				if _, err := tx.ExecContext(ctx, query, op.Collection, op.ID, s.owner); err != nil {
					return unavailable(err)
				}
			default:
				return fmt.Errorf("unknown operation kind %q", op.Kind)
			}
		}
		return nil
	})
	if err != nil {
		// Both marks survive: the abort classification and the cause, so a
		// connectivity failure still reads as transient to the caller.
		return fmt.Errorf("%w: %w", common.ErrTransactionAborted, err)
	}
	return nil
}

// unavailable maps a driver failure to the transient taxonomy unless it is
// already classified.
func unavailable(err error) error {
	if errors.Is(err, common.ErrPermissionDenied) || errors.Is(err, common.ErrDataCorruption) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
}
