package local

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/mkorchagin/finsync/internal/filex"
	"github.com/mkorchagin/finsync/internal/local/migrations"

	_ "modernc.org/sqlite"
)

// Open opens the local database and brings the schema up to date with the
// embedded goose migrations.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn != ":memory:" {
		if err := filex.EnsureParentDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return db, nil
}
