package sqldb_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/compozy/ordertx/engine/infra/sqldb"
	"github.com/compozy/ordertx/engine/txexec"
)

func newSession(t *testing.T) (context.Context, *sqldb.Session) {
	t.Helper()
	ctx := t.Context()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	s, err := sqldb.NewSession(ctx, db, sqldb.OwnDB())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.WithoutCancel(ctx)) })
	run(ctx, t, s, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	return ctx, s
}

func run(ctx context.Context, t *testing.T, s *sqldb.Session, query string, args ...any) int64 {
	t.Helper()
	stmt, err := s.Prepare(ctx, query)
	require.NoError(t, err)
	defer stmt.Close()
	require.NoError(t, stmt.Bind(args...))
	n, err := stmt.ExecUpdate(ctx)
	require.NoError(t, err)
	return n
}

func count(ctx context.Context, t *testing.T, s *sqldb.Session) int {
	t.Helper()
	stmt, err := s.Prepare(ctx, "SELECT COUNT(*) FROM items")
	require.NoError(t, err)
	defer stmt.Close()
	rows, err := stmt.ExecQuery(ctx)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	return n
}

func TestSession_Transactions(t *testing.T) {
	t.Run("Should_commit_statements_issued_in_manual_mode", func(t *testing.T) {
		ctx, s := newSession(t)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		assert.False(t, s.AutoCommit())
		assert.Equal(t, int64(1), run(ctx, t, s, "INSERT INTO items (name) VALUES (?)", "a"))
		require.NoError(t, s.Commit(ctx))
		require.NoError(t, s.SetAutoCommit(ctx, true))
		assert.Equal(t, 1, count(ctx, t, s))
	})

	t.Run("Should_discard_statements_on_rollback", func(t *testing.T) {
		ctx, s := newSession(t)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		run(ctx, t, s, "INSERT INTO items (name) VALUES (?)", "a")
		require.NoError(t, s.Rollback(ctx))
		require.NoError(t, s.SetAutoCommit(ctx, true))
		assert.Equal(t, 0, count(ctx, t, s))
	})

	t.Run("Should_commit_open_transaction_when_auto_commit_is_enabled", func(t *testing.T) {
		ctx, s := newSession(t)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		run(ctx, t, s, "INSERT INTO items (name) VALUES (?)", "a")
		require.NoError(t, s.SetAutoCommit(ctx, true))
		assert.Equal(t, 1, count(ctx, t, s))
	})

	t.Run("Should_reject_commit_in_auto_commit_mode", func(t *testing.T) {
		ctx, s := newSession(t)
		assert.Error(t, s.Commit(ctx))
	})

	t.Run("Should_roll_back_open_transaction_on_close", func(t *testing.T) {
		ctx := t.Context()
		path := t.TempDir() + "/close.db"
		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		s, err := sqldb.NewSession(ctx, db)
		require.NoError(t, err)
		run(ctx, t, s, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
		require.NoError(t, s.SetAutoCommit(ctx, false))
		run(ctx, t, s, "INSERT INTO items (name) VALUES (?)", "a")
		require.NoError(t, s.Close(ctx))

		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n))
		assert.Zero(t, n)
		require.NoError(t, db.Close())
	})
}

func TestSession_Savepoints(t *testing.T) {
	t.Run("Should_undo_work_after_savepoint_and_keep_earlier_work", func(t *testing.T) {
		ctx, s := newSession(t)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		run(ctx, t, s, "INSERT INTO items (name) VALUES (?)", "kept")
		sp, err := s.SetSavepoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sp_1", sp.Name())
		run(ctx, t, s, "INSERT INTO items (name) VALUES (?)", "dropped")
		require.NoError(t, s.RollbackTo(ctx, sp))
		require.NoError(t, s.Commit(ctx))
		require.NoError(t, s.SetAutoCommit(ctx, true))
		assert.Equal(t, 1, count(ctx, t, s))
	})

	t.Run("Should_keep_savepoint_valid_after_rolling_back_to_it", func(t *testing.T) {
		ctx, s := newSession(t)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		sp, err := s.SetSavepoint(ctx)
		require.NoError(t, err)
		require.NoError(t, s.RollbackTo(ctx, sp))
		assert.NoError(t, s.RollbackTo(ctx, sp))
	})

	t.Run("Should_invalidate_later_savepoints_on_rollback", func(t *testing.T) {
		ctx, s := newSession(t)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		first, err := s.SetSavepoint(ctx)
		require.NoError(t, err)
		second, err := s.SetSavepoint(ctx)
		require.NoError(t, err)
		require.NoError(t, s.RollbackTo(ctx, first))
		assert.ErrorIs(t, s.RollbackTo(ctx, second), txexec.ErrInvalidSavepoint)
	})

	t.Run("Should_reject_released_savepoint", func(t *testing.T) {
		ctx, s := newSession(t)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		sp, err := s.SetSavepoint(ctx)
		require.NoError(t, err)
		require.NoError(t, s.ReleaseSavepoint(ctx, sp))
		assert.ErrorIs(t, s.RollbackTo(ctx, sp), txexec.ErrInvalidSavepoint)
	})

	t.Run("Should_reject_savepoint_after_commit", func(t *testing.T) {
		ctx, s := newSession(t)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		sp, err := s.SetSavepoint(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx))
		assert.ErrorIs(t, s.RollbackTo(ctx, sp), txexec.ErrInvalidSavepoint)
	})

	t.Run("Should_refuse_savepoint_in_auto_commit_mode", func(t *testing.T) {
		ctx, s := newSession(t)
		_, err := s.SetSavepoint(ctx)
		assert.Error(t, err)
	})
}
