package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Postgres SQLSTATE codes that signal a transaction lost a conflict and can be
// replayed from scratch.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// ErrRetriesExhausted wraps the last conflict error once every attempt failed.
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

// Beginner starts a new database transaction. Satisfied by *pgxpool.Pool.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Runner executes a unit of work inside one transaction.
type Runner struct {
	db         Beginner
	opts       pgx.TxOptions
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

type Option func(*Runner)

// WithBackOff replaces the retry backoff policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(r *Runner) { r.newBackOff = fn }
}

// NewRunner creates a Runner. isolation is one of serializable,
// repeatable_read or read_committed.
func NewRunner(db Beginner, isolation string, maxRetries int, logger *zap.Logger, opts ...Option) (*Runner, error) {
	level, err := ParseIsolation(isolation)
	if err != nil {
		return nil, err
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	r := &Runner{
		db:         db,
		opts:       pgx.TxOptions{IsoLevel: level},
		maxRetries: uint64(maxRetries),
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ParseIsolation maps a config value to a pgx isolation level.
func ParseIsolation(s string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(s) {
	case "", "serializable":
		return pgx.Serializable, nil
	case "repeatable_read":
		return pgx.RepeatableRead, nil
	case "read_committed":
		return pgx.ReadCommitted, nil
	}
	return "", fmt.Errorf("unknown isolation level %q", s)
}

// Do runs fn in a transaction, replaying the whole transaction when Postgres
// reports a serialization failure or deadlock. fn must not have side effects
// outside the transaction since it may run more than once.
func (r *Runner) Do(ctx context.Context, fn func(tx pgx.Tx) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := r.Once(ctx, fn)
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			r.logger.Warn("transaction conflict, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
	err := backoff.Retry(op, b)
	if err != nil && IsRetryable(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
	}
	return err
}

// Once runs fn in a single transaction without retry. The transaction is
// rolled back on any error returned by fn or by commit.
func (r *Runner) Once(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}
