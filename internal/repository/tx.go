package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flicky/storefront-api/internal/metrics"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrTxConflict = errors.New("transaction conflict")
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DBTX is a Querier that can also open transactions.
type DBTX interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxManager scopes a unit of work to a single database transaction. The
// closure's writes are committed only when it returns nil; any error or panic
// rolls the transaction back before WithTx returns.
type TxManager interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type pgTxManager struct {
	db         DBTX
	maxRetries int
	retryWait  time.Duration
}

// NewTxManager returns a TxManager running SERIALIZABLE transactions. A
// transaction aborted by a serialization failure or a deadlock is retried up to
// maxRetries times with exponential backoff starting at retryWait.
func NewTxManager(db DBTX, maxRetries int, retryWait time.Duration) TxManager {
	return &pgTxManager{db: db, maxRetries: maxRetries, retryWait: retryWait}
}

func (m *pgTxManager) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry tx: %w", ctx.Err())
			case <-time.After(retryBackoff(m.retryWait, attempt-1)):
			}
		}
		err = m.run(ctx, fn)
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		metrics.TxConflictsTotal.Inc()
	}
	return err
}

func (m *pgTxManager) run(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(classify(err), fmt.Errorf("rollback tx: %w", rbErr))
		}
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

// classify tags postgres conflict errors with ErrTxConflict so callers can
// detect them with errors.Is while keeping the original error in the chain.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrTxConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %w", ErrTxConflict, err)
	}
	return err
}

// retryBackoff returns base·2^attempt with ±25% jitter.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base << attempt
	jitter := time.Duration(float64(d) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- jitter only
	return d + jitter
}
