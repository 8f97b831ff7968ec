package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestWithTx_Commit(t *testing.T) {
	mock := newMock(t)
	tm := NewTxManager(mock, 2, time.Millisecond)

	mock.ExpectBeginTx(serializable)
	mock.ExpectExec("UPDATE carts").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := tm.WithTx(context.Background(), func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE carts SET total_price = 0")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	mock := newMock(t)
	tm := NewTxManager(mock, 2, time.Millisecond)
	boom := errors.New("boom")

	mock.ExpectBeginTx(serializable)
	mock.ExpectRollback()

	err := tm.WithTx(context.Background(), func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTxConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	mock := newMock(t)
	tm := NewTxManager(mock, 0, time.Millisecond)

	mock.ExpectBeginTx(serializable)
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = tm.WithTx(context.Background(), func(pgx.Tx) error { panic("kaboom") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RetriesSerializationFailure(t *testing.T) {
	mock := newMock(t)
	tm := NewTxManager(mock, 2, time.Millisecond)

	mock.ExpectBeginTx(serializable)
	mock.ExpectExec("UPDATE carts").WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBeginTx(serializable)
	mock.ExpectExec("UPDATE carts").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	calls := 0
	err := tm.WithTx(context.Background(), func(tx pgx.Tx) error {
		calls++
		_, err := tx.Exec(context.Background(), "UPDATE carts SET total_price = 0")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_ConflictAfterRetriesExhausted(t *testing.T) {
	mock := newMock(t)
	tm := NewTxManager(mock, 1, time.Millisecond)

	for range 2 {
		mock.ExpectBeginTx(serializable)
		mock.ExpectRollback()
	}

	err := tm.WithTx(context.Background(), func(pgx.Tx) error {
		return &pgconn.PgError{Code: "40P01"}
	})
	assert.ErrorIs(t, err, ErrTxConflict)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitConflict(t *testing.T) {
	mock := newMock(t)
	tm := NewTxManager(mock, 0, time.Millisecond)

	mock.ExpectBeginTx(serializable)
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	err := tm.WithTx(context.Background(), func(pgx.Tx) error { return nil })
	assert.ErrorIs(t, err, ErrTxConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_StopsRetryingWhenContextDone(t *testing.T) {
	mock := newMock(t)
	tm := NewTxManager(mock, 3, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	mock.ExpectBeginTx(serializable)
	mock.ExpectRollback()

	err := tm.WithTx(ctx, func(pgx.Tx) error {
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := range 4 {
		d := retryBackoff(base, attempt)
		want := base << attempt
		assert.GreaterOrEqual(t, d, want*3/4)
		assert.LessOrEqual(t, d, want*5/4)
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: "40001"}), ErrTxConflict)
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: "40P01"}), ErrTxConflict)
	assert.NotErrorIs(t, classify(&pgconn.PgError{Code: "23505"}), ErrTxConflict)
	assert.NotErrorIs(t, classify(errors.New("x")), ErrTxConflict)
}
