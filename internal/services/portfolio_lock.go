package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "tradedesk/internal/errors"
	"tradedesk/internal/models"
)

// DefaultLockTimeout bounds how long an operation waits for a portfolio.
const DefaultLockTimeout = 5 * time.Second

// txWorkTimeout is the budget for the work done while a portfolio is held.
const txWorkTimeout = 30 * time.Second

// PortfolioTxFunc runs inside a database transaction while the portfolio row
// is held exclusively. Every read and write must go through tx.
type PortfolioTxFunc func(tx *gorm.DB, portfolio *models.Portfolio) error

// PortfolioLocker serializes all mutations of a single portfolio.
//
// Two layers are stacked: an in-process gate per portfolio ID bounds the wait
// and keeps one goroutine per portfolio talking to the database, and a
// SELECT ... FOR UPDATE on the portfolio row covers other processes. Both are
// released only after the transaction commits or rolls back.
type PortfolioLocker struct {
	db      *gorm.DB
	timeout time.Duration

	mu    sync.Mutex
	gates map[string]*portfolioGate
}

type portfolioGate struct {
	sem  *semaphore.Weighted
	refs int
}

// NewPortfolioLocker creates a locker. A non-positive timeout selects
// DefaultLockTimeout.
func NewPortfolioLocker(db *gorm.DB, timeout time.Duration) *PortfolioLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &PortfolioLocker{
		db:      db,
		timeout: timeout,
		gates:   make(map[string]*portfolioGate),
	}
}

// Timeout returns the maximum wait for a portfolio.
func (l *PortfolioLocker) Timeout() time.Duration {
	return l.timeout
}

// WithPortfolio runs fn in a transaction holding the portfolio exclusively.
// Waiting longer than the lock timeout fails with ErrPortfolioBusy. If fn
// returns an error nothing it wrote is persisted.
//
// ctx bounds only the wait for the gate. Once the portfolio is held the
// transaction ignores ctx cancellation: it commits, or rolls back on an error
// from fn or from storage.
func (l *PortfolioLocker) WithPortfolio(ctx context.Context, portfolioID string, fn PortfolioTxFunc) error {
	release, err := l.acquire(ctx, portfolioID)
	if err != nil {
		return err
	}
	defer release()

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.txTimeout())
	defer cancel()

	err = l.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		if err := l.applyLockTimeout(tx); err != nil {
			return classifyDBError(err)
		}

		var portfolio models.Portfolio
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", portfolioID).
			First(&portfolio).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrPortfolioNotFound
			}
			return classifyDBError(err)
		}

		return fn(tx, &portfolio)
	})
	return classifyDBError(err)
}

// WithUserPortfolio is WithPortfolio for the portfolio owned by userID.
func (l *PortfolioLocker) WithUserPortfolio(ctx context.Context, userID string, fn PortfolioTxFunc) error {
	portfolioID, err := portfolioIDForUser(l.db.WithContext(ctx), userID)
	if err != nil {
		return err
	}
	return l.WithPortfolio(ctx, portfolioID, fn)
}

func (l *PortfolioLocker) acquire(ctx context.Context, portfolioID string) (func(), error) {
	l.mu.Lock()
	gate, ok := l.gates[portfolioID]
	if !ok {
		gate = &portfolioGate{sem: semaphore.NewWeighted(1)}
		l.gates[portfolioID] = gate
	}
	gate.refs++
	l.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := gate.sem.Acquire(waitCtx, 1); err != nil {
		l.unref(portfolioID, gate)
		return nil, apperrors.Wrap(apperrors.ErrPortfolioBusy, err)
	}

	return func() {
		gate.sem.Release(1)
		l.unref(portfolioID, gate)
	}, nil
}

func (l *PortfolioLocker) unref(portfolioID string, gate *portfolioGate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	gate.refs--
	if gate.refs == 0 {
		delete(l.gates, portfolioID)
	}
}

// applyLockTimeout bounds the row-lock wait on Postgres. SQLite has no row
// locks; the in-process gate is the only guard there.
func (l *PortfolioLocker) applyLockTimeout(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(lockTimeoutStatement(l.timeout)).Error
}

func lockTimeoutStatement(timeout time.Duration) string {
	ms := timeout.Milliseconds()
	if ms < 1 {
		// 0 disables lock_timeout on Postgres.
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}

// txTimeout caps a detached transaction: the row-lock wait plus room for the
// work itself.
func (l *PortfolioLocker) txTimeout() time.Duration {
	return l.timeout + txWorkTimeout
}

// portfolioIDForUser resolves the ID of the portfolio owned by userID.
func portfolioIDForUser(db *gorm.DB, userID string) (string, error) {
	var ids []string
	if err := db.Model(&models.Portfolio{}).
		Where("user_id = ?", userID).
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return "", classifyDBError(err)
	}
	if len(ids) == 0 {
		return "", apperrors.ErrPortfolioNotFound
	}
	return ids[0], nil
}
