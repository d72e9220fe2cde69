// Package repository persists claims, links, milestones and snapshots in
// SQLite or PostgreSQL through sqlx.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/signpost/pkg/logger"
	"github.com/okian/signpost/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the SQL-backed repository. It is safe for concurrent use.
type Store struct {
	db      *sqlx.DB
	driver  string
	logger  logger.Logger
	now     func() time.Time
	maxOpen int
}

// Open connects to the database and verifies it is reachable. It does not
// migrate; call Migrate.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	s := &Store{
		driver:  driver,
		logger:  logger.Get().Named("repository"),
		now:     func() time.Time { return time.Now().UTC() },
		maxOpen: 10,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
			}
		}
	} else {
		db.SetMaxOpenConns(s.maxOpen)
	}
	s.db = db
	s.logger.Info(ctx, "database connected", logger.String("driver", driver))
	return s, nil
}

// Driver returns the database driver name.
func (s *Store) Driver() string { return s.driver }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// observe records latency and failures for one repository operation.
func (s *Store) observe(op string, start time.Time, errp *error) {
	metrics.RecordRepositoryQueryLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err := *errp; err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordRepositoryError(op)
	}
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// audit appends an audit entry inside tx.
func (s *Store) audit(ctx context.Context, tx *sqlx.Tx, entity, entityID, action, actor, detail string) error {
	if actor == "" {
		actor = "system"
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO audit_log (id, entity, entity_id, action, actor, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`), uuid.NewString(), entity, entityID, action, actor, detail, s.now())
	if err != nil {
		return fmt.Errorf("audit %s %s: %w", entity, action, err)
	}
	return nil
}
