package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iho/walletledger/internal/domain"
)

// Option configures the unit of work shared by the mutating use cases.
type Option func(*unitOfWork)

// WithRetrier retries a whole unit of work while it fails with a retryable error.
func WithRetrier(r Retrier) Option {
	return func(u *unitOfWork) {
		u.retrier = r
	}
}

// WithTxTimeout overrides DefaultTransactionTimeout.
func WithTxTimeout(d time.Duration) Option {
	return func(u *unitOfWork) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// unitOfWork runs one logical operation inside one transaction.
type unitOfWork struct {
	txManager TransactionManager
	retrier   Retrier
	timeout   time.Duration
}

func newUnitOfWork(txManager TransactionManager, opts []Option) unitOfWork {
	u := unitOfWork{
		txManager: txManager,
		timeout:   DefaultTransactionTimeout,
	}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

// run executes fn in a fresh transaction and commits it. Any error rolls the
// transaction back in full. fn may run more than once when a retrier is set, so it
// must not leak state between attempts.
func (u unitOfWork) run(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error {
	attempt := func() error {
		txCtx, cancel := context.WithTimeout(ctx, u.timeout)
		defer cancel()

		tx, err := u.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	}

	if u.retrier == nil {
		return attempt()
	}

	return u.retrier.Retry(ctx, attempt)
}

// withTraceID fills in a trace id when the caller did not supply one.
func withTraceID(meta domain.RequestMeta) domain.RequestMeta {
	if meta.TraceID == "" {
		meta.TraceID = uuid.NewString()
	}
	return meta
}
