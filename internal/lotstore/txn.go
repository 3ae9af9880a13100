package lotstore

import (
	"context"
	"database/sql"
)

// TxKind selects one of the three transaction flavors spec.md §4.1
// exposes: deferred (read-oriented consistency), immediate (write lock
// acquired at begin), and exclusive.
type TxKind int

const (
	TxNone TxKind = iota
	TxDeferred
	TxImmediate
	TxExclusive
)

func (k TxKind) beginStmt() string {
	switch k {
	case TxDeferred:
		return "BEGIN DEFERRED"
	case TxImmediate:
		return "BEGIN IMMEDIATE"
	case TxExclusive:
		return "BEGIN EXCLUSIVE"
	default:
		return ""
	}
}

// Txn is a scoped connection acquisition, optionally holding an open
// transaction. It rolls back on Rollback and is safe to defer
// unconditionally: Commit/Rollback are no-ops once either has run, the
// same "connection and transaction released on every exit path" guarantee
// the original's PooledConnection/ScopedConnection RAII guards provide.
type Txn struct {
	store   *Store
	conn    *sql.Conn
	active  bool // true once a transaction has been begun
	done    bool // true once committed or rolled back
	closeFn func()
}

// BeginTx acquires a pooled connection and, if kind != TxNone, begins a
// transaction of that flavor on it.
func (s *Store) BeginTx(ctx context.Context, kind TxKind) (*Txn, error) {
	conn, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, wrapStoreErr("failed to acquire connection from pool", err)
	}

	t := &Txn{store: s, conn: conn, closeFn: func() { s.pool.release(conn) }}

	if stmt := kind.beginStmt(); stmt != "" {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.closeFn()
			return nil, wrapStoreErr("failed to begin transaction", err)
		}
		t.active = true
	}

	return t, nil
}

// Conn returns the underlying pooled connection for statement execution.
func (t *Txn) Conn() *sql.Conn { return t.conn }

// Commit commits the transaction, if one is open, and releases the
// connection back to the pool. It is a no-op if already committed or
// rolled back.
func (t *Txn) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	defer func() {
		t.done = true
		t.closeFn()
	}()

	if t.active {
		if _, err := t.conn.ExecContext(ctx, "COMMIT"); err != nil {
			return wrapStoreErr("failed to commit transaction", err)
		}
	}
	return nil
}

// Rollback rolls back the transaction, if one is open and not already
// committed, and releases the connection. Safe to call unconditionally
// via defer; a no-op after Commit has succeeded.
func (t *Txn) Rollback(ctx context.Context) {
	if t.done {
		return
	}
	defer func() {
		t.done = true
		t.closeFn()
	}()

	if t.active {
		t.conn.ExecContext(ctx, "ROLLBACK")
	}
}

// GetOrPrepare fetches a cached prepared statement for the transaction's
// connection, or prepares a new one.
func (t *Txn) GetOrPrepare(ctx context.Context, query string) (*sql.Stmt, error) {
	return t.store.stmts.getOrPrepare(ctx, t.conn, query)
}

// PutStmt returns a statement to the cache after a successful use.
func (t *Txn) PutStmt(query string, stmt *sql.Stmt) {
	t.store.stmts.put(t.conn, query, stmt)
}

// DiscardStmt finalizes a statement instead of caching it, after a failed
// use.
func (t *Txn) DiscardStmt(stmt *sql.Stmt) {
	t.store.stmts.discard(stmt)
}
