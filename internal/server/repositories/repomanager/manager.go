package repomanager

import (
	"context"
	"database/sql"

	"github.com/dsantanna/biolock/internal/dbx"
	"github.com/dsantanna/biolock/internal/server/repositories/sessions"
	"github.com/dsantanna/biolock/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a plain connection or a
// transaction, and exposes a schema migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
