package postgres

import (
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/ordertx/engine/txexec"
)

const (
	insertOrder = "INSERT INTO orders (product_id,order_date,amount) VALUES ($1,$2,$3)"
	selectTotal = "SELECT total_amount FROM monthly_sales WHERE product_id = $1 AND report_month = $2"
)

func newMockConn(t *testing.T) pgxmock.PgxConnIface {
	t.Helper()
	mock, err := pgxmock.NewConn(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return mock
}

func TestSession_Transactions(t *testing.T) {
	t.Run("Should execute statements inside a transaction and commit", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectExec(insertOrder).
			WithArgs(1, "2024-07-01", "580").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		released := false
		s := NewSession(mock, func() { released = true })
		require.NoError(t, s.SetAutoCommit(ctx, false))
		stmt, err := s.Prepare(ctx, insertOrder)
		require.NoError(t, err)
		require.NoError(t, stmt.Bind(1, "2024-07-01", "580"))
		n, err := stmt.ExecUpdate(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		require.NoError(t, s.Commit(ctx))
		require.NoError(t, stmt.Close())
		require.NoError(t, s.SetAutoCommit(ctx, true))
		require.NoError(t, s.Close(ctx))
		assert.True(t, released)
	})

	t.Run("Should read rows through the open transaction", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectTotal).
			WithArgs(1, 7).
			WillReturnRows(pgxmock.NewRows([]string{"total_amount"}).AddRow(int64(9500)))
		mock.ExpectRollback()

		s := NewSession(mock, nil)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		stmt, err := s.Prepare(ctx, selectTotal)
		require.NoError(t, err)
		require.NoError(t, stmt.Bind(1, 7))
		rows, err := stmt.ExecQuery(ctx)
		require.NoError(t, err)
		require.True(t, rows.Next())
		var total int64
		require.NoError(t, rows.Scan(&total))
		require.NoError(t, rows.Close())
		assert.Equal(t, int64(9500), total)
		require.NoError(t, s.Close(ctx))
	})

	t.Run("Should commit open transaction when auto-commit is re-enabled", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		s := NewSession(mock, nil)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		require.NoError(t, s.SetAutoCommit(ctx, true))
		assert.True(t, s.AutoCommit())
	})

	t.Run("Should stay in auto-commit mode when begin fails", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

		s := NewSession(mock, nil)
		require.Error(t, s.SetAutoCommit(ctx, false))
		assert.True(t, s.AutoCommit())
	})

	t.Run("Should run statements directly in auto-commit mode", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectExec(insertOrder).
			WithArgs(1, "2024-07-01", "580").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		s := NewSession(mock, nil)
		stmt, err := s.Prepare(ctx, insertOrder)
		require.NoError(t, err)
		require.NoError(t, stmt.Bind(1, "2024-07-01", "580"))
		_, err = stmt.ExecUpdate(ctx)
		require.NoError(t, err)
		assert.Error(t, s.Commit(ctx))
	})

	t.Run("Should reject a closed statement", func(t *testing.T) {
		ctx := t.Context()
		s := NewSession(newMockConn(t), nil)
		stmt, err := s.Prepare(ctx, insertOrder)
		require.NoError(t, err)
		require.NoError(t, stmt.Close())
		_, err = stmt.ExecUpdate(ctx)
		assert.ErrorIs(t, err, errStatementClosed)
	})

	t.Run("Should roll back open transaction on close", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		s := NewSession(mock, nil)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		require.NoError(t, s.Close(ctx))
		_, err := s.Prepare(ctx, insertOrder)
		assert.ErrorIs(t, err, errSessionClosed)
	})
}

func TestSession_Savepoints(t *testing.T) {
	t.Run("Should issue savepoint SQL and keep the savepoint after rolling back", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectExec("SAVEPOINT sp_1").WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
		mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_1").WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
		mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_1").WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
		mock.ExpectExec("RELEASE SAVEPOINT sp_1").WillReturnResult(pgxmock.NewResult("RELEASE", 0))
		mock.ExpectCommit()

		s := NewSession(mock, nil)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		sp, err := s.SetSavepoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sp_1", sp.Name())
		require.NoError(t, s.RollbackTo(ctx, sp))
		require.NoError(t, s.RollbackTo(ctx, sp))
		require.NoError(t, s.ReleaseSavepoint(ctx, sp))
		assert.ErrorIs(t, s.RollbackTo(ctx, sp), txexec.ErrInvalidSavepoint)
		require.NoError(t, s.Commit(ctx))
	})

	t.Run("Should invalidate savepoints when the transaction ends", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectExec("SAVEPOINT sp_1").WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
		mock.ExpectRollback()

		s := NewSession(mock, nil)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		sp, err := s.SetSavepoint(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Rollback(ctx))
		var invalid *txexec.InvalidSavepointError
		require.ErrorAs(t, s.RollbackTo(ctx, sp), &invalid)
		assert.Equal(t, "transaction rolled back", invalid.Reason)
	})

	t.Run("Should not record a savepoint the server refused", func(t *testing.T) {
		ctx := t.Context()
		mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectExec("SAVEPOINT sp_1").WillReturnError(errors.New("current transaction is aborted"))

		s := NewSession(mock, nil)
		require.NoError(t, s.SetAutoCommit(ctx, false))
		_, err := s.SetSavepoint(ctx)
		require.Error(t, err)
		assert.Zero(t, s.savepoints.Len())
	})

	t.Run("Should refuse savepoints in auto-commit mode", func(t *testing.T) {
		ctx := t.Context()
		s := NewSession(newMockConn(t), nil)
		_, err := s.SetSavepoint(ctx)
		assert.ErrorIs(t, err, errAutoCommit)
	})
}
