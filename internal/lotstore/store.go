package lotstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/pelicanplatform/lotman-go/internal/lotctx"
	"github.com/pelicanplatform/lotman-go/internal/lotkind"
)

// defaultBusyTimeoutMS is the per-connection wait on lock contention
// before a contended write fails with a store-level error (spec.md §5).
const defaultBusyTimeoutMS = 5000

// defaultPoolSize is the bounded connection pool capacity (spec.md §4.1).
const defaultPoolSize = 5

// Store is the persistent relational store: connection pool, prepared
// statement cache, schema creation/migration, all behind a single
// *sql.DB opened against the resolved lot_home database file.
type Store struct {
	db    *sql.DB
	pool  *connPool
	stmts *stmtCache
	path  string
}

// dbPath resolves the SQLite file path as lot_home/.lot/lotman_cpp.sqlite,
// where lot_home is, in priority order: the Context override, the
// LOT_HOME environment variable, or the caller's home directory. Both
// directories are created with mode 0700 if absent.
func dbPath() (string, error) {
	lotHome := lotctx.LotHome()
	if lotHome == "" {
		lotHome = os.Getenv("LOT_HOME")
	}
	if lotHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", lotkind.Wrap(lotkind.StoreError, "could not determine lot home", err)
		}
		lotHome = home
	}
	if lotHome == "" {
		return "", lotkind.New(lotkind.StoreError, "could not get lot home")
	}

	if err := os.MkdirAll(lotHome, 0700); err != nil && !os.IsExist(err) {
		return "", lotkind.Wrap(lotkind.StoreError, fmt.Sprintf("unable to create directory %s", lotHome), err)
	}

	lotDBDir := filepath.Join(lotHome, ".lot")
	if err := os.MkdirAll(lotDBDir, 0700); err != nil && !os.IsExist(err) {
		return "", lotkind.Wrap(lotkind.StoreError, fmt.Sprintf("unable to create directory %s", lotDBDir), err)
	}

	return filepath.Join(lotDBDir, "lotman_cpp.sqlite"), nil
}

// Open resolves the database path, opens (or creates) it, enables WAL
// mode and the busy timeout, applies schema migration, and returns a
// ready Store. Passing an explicit dsn (e.g. ":memory:" or a test temp
// file) bypasses lot_home resolution, for tests.
func Open(ctx context.Context, dsn string) (*Store, error) {
	var path string
	var err error
	if dsn != "" {
		path = dsn
	} else {
		path, err = dbPath()
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, lotkind.Wrap(lotkind.StoreError, "failed to open database", err)
	}

	// Cap the driver's open connections at the same size as the explicit
	// connPool layered on top of it.
	db.SetMaxOpenConns(defaultPoolSize)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeoutMS)); err != nil {
		db.Close()
		return nil, lotkind.Wrap(lotkind.StoreError, "failed to set busy_timeout", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, lotkind.Wrap(lotkind.StoreError, "failed to enable WAL", err)
	}

	s := &Store{db: db, stmts: newStmtCache(), path: path}
	s.pool = newConnPool(db, defaultPoolSize, s.stmts)

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the resolved database file path (or dsn, for in-memory
// stores), mostly useful for diagnostics and tests.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying *sql.DB for simple, non-pooled, non-cached
// reads where the full pool/statement-cache machinery is unnecessary
// overhead (e.g. read-only helper queries within a layer that already
// holds its own transaction elsewhere).
func (s *Store) DB() *sql.DB { return s.db }

// Reset closes every pooled connection and clears the statement cache; the
// next BeginTx opens a new connection. Intended for tests that need a
// clean slate without reopening the file.
func (s *Store) Reset() {
	s.pool.reset()
	s.stmts.clearAll()
}

// Close releases the pool, the statement cache, and the underlying
// *sql.DB.
func (s *Store) Close() error {
	s.pool.reset()
	s.stmts.clearAll()
	return s.db.Close()
}
