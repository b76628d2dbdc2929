// Package repomanager provides a concrete RepositoryManager for SQLite user
// stores, wiring together repository constructors and schema migrations
// (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/weavesync/internal/dbx"
	"github.com/dmitrijs2005/weavesync/internal/server/migrations"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/collections"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/wbos"
	"github.com/pressly/goose/v3"
)

// SQLiteRepositoryManager vends SQLite-backed repository implementations
// and exposes a schema migration hook.
type SQLiteRepositoryManager struct{}

// Collections returns a collections.Repository bound to the provided DBTX.
func (m *SQLiteRepositoryManager) Collections(db dbx.DBTX) collections.Repository {
	return collections.NewSQLiteRepository(db)
}

// WBOs returns a wbos.Repository bound to the provided DBTX.
func (m *SQLiteRepositoryManager) WBOs(db dbx.DBTX) wbos.Repository {
	return wbos.NewSQLiteRepository(db)
}

// gooseUp is a seam for testing the goose provider.
var gooseUp = func(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

// RunMigrations brings the store schema up to date using the embedded
// migrations.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := gooseUp(ctx, db); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// NewSQLiteRepositoryManager constructs a SQLite-backed RepositoryManager.
func NewSQLiteRepositoryManager() RepositoryManager {
	return &SQLiteRepositoryManager{}
}
