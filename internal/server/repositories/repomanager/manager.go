package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/weavesync/internal/dbx"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/collections"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/wbos"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Collections(db dbx.DBTX) collections.Repository
	WBOs(db dbx.DBTX) wbos.Repository
}
