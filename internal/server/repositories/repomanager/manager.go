package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/heimdallr/internal/dbx"
	"github.com/dmitrijs2005/heimdallr/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to an arbitrary DB handle and
// exposes a schema migration hook. Binding late lets the credential store
// attach a repository to the single connection its worker owns.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
