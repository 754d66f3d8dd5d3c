// Package journal records vault mutations in a SQL database so operators
// can see who changed what.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
)

// sqlOpen is swapped out in tests.
var sqlOpen = sql.Open

// Journal is the activity log backed by the events repository.
type Journal struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

// Open connects to dsn, applies pending migrations and returns a Journal.
func Open(ctx context.Context, dsn string, logger logging.Logger) (*Journal, error) {
	db, err := sqlOpen(repomanager.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal migrations: %w", err)
	}

	return New(db, repos, logger), nil
}

func New(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *Journal {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Journal{db: db, repos: repos, logger: logger.With("module", "journal")}
}

func (j *Journal) Record(ctx context.Context, e models.Event) error {
	return j.repos.Events(j.db).Record(ctx, e)
}

// Recent returns the newest events under prefix.
func (j *Journal) Recent(ctx context.Context, prefix string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return j.repos.Events(j.db).Recent(ctx, prefix, limit)
}

// Prune deletes events older than maxAge relative to now.
func (j *Journal) Prune(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	var n int64
	err := dbx.WithTx(ctx, j.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = j.repos.Events(tx).Prune(ctx, now.Add(-maxAge))
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info(ctx, "journal pruned", "rows", n)
	}
	return n, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
