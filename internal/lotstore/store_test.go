package lotstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesFreshSchemaAtTargetVersion(t *testing.T) {
	s := openTestStore(t)

	var version int
	err := s.DB().QueryRow("SELECT version FROM schema_versions WHERE id = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, TargetSchemaVersion, version)

	for _, table := range append(perLotTables, "schema_versions") {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpenIsIdempotentOnAlreadyCurrentSchema(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// Re-running migrate against an already-current DB must be a no-op.
	require.NoError(t, s.migrate(ctx))

	var version int
	err := s.DB().QueryRow("SELECT version FROM schema_versions WHERE id = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, TargetSchemaVersion, version)
}

func TestMigrateLegacyV0RewritesTrailingSlash(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// Simulate a legacy v0 database: drop schema_versions and insert an
	// un-normalized path row.
	_, err := s.DB().ExecContext(ctx, "DROP TABLE schema_versions")
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, "INSERT INTO paths (path, lot_name, recursive) VALUES ('/a/b', 'lot1', 1)")
	require.NoError(t, err)

	require.NoError(t, s.migrate(ctx))

	var path string
	err = s.DB().QueryRow("SELECT path FROM paths WHERE lot_name = 'lot1'").Scan(&path)
	require.NoError(t, err)
	assert.Equal(t, "/a/b/", path)

	var version int
	err = s.DB().QueryRow("SELECT version FROM schema_versions WHERE id = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, TargetSchemaVersion, version)
}

func TestMigrateRefusesNewerSchema(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.DB().ExecContext(ctx, "UPDATE schema_versions SET version = ? WHERE id = 1", TargetSchemaVersion+1)
	require.NoError(t, err)

	err = s.migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
	assert.Contains(t, err.Error(), "data loss")
}

func TestBeginTxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	txn, err := s.BeginTx(ctx, TxImmediate)
	require.NoError(t, err)
	_, err = txn.Conn().ExecContext(ctx, "INSERT INTO owners (lot_name, owner) VALUES ('x', 'alice')")
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx))

	var owner string
	err = s.DB().QueryRow("SELECT owner FROM owners WHERE lot_name = 'x'").Scan(&owner)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	txn2, err := s.BeginTx(ctx, TxImmediate)
	require.NoError(t, err)
	_, err = txn2.Conn().ExecContext(ctx, "INSERT INTO owners (lot_name, owner) VALUES ('y', 'bob')")
	require.NoError(t, err)
	txn2.Rollback(ctx)

	var count int
	err = s.DB().QueryRow("SELECT COUNT(*) FROM owners WHERE lot_name = 'y'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStmtCacheReusesPreparedStatement(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	txn, err := s.BeginTx(ctx, TxImmediate)
	require.NoError(t, err)
	defer txn.Rollback(ctx)

	stmt, err := txn.GetOrPrepare(ctx, "SELECT 1")
	require.NoError(t, err)
	txn.PutStmt("SELECT 1", stmt)

	stmt2, err := txn.GetOrPrepare(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Same(t, stmt, stmt2)
	txn.PutStmt("SELECT 1", stmt2)
}
