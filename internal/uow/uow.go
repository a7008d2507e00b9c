// Package uow runs a group of repository calls in one transaction.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"spycat/internal/db"
	"spycat/internal/events"
	"spycat/internal/metrics"
	"spycat/internal/repo"
)

// ErrScopeClosed is returned by a Scope used after its transaction ended.
var ErrScopeClosed = errors.New("unit of work scope is closed")

type UnitOfWork struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func New(conn *sql.DB, dialect db.Dialect) *UnitOfWork {
	return &UnitOfWork{DB: conn, Dialect: dialect, Now: time.Now, Logger: slog.Default()}
}

// Scope exposes repositories bound to one open transaction.
type Scope struct {
	Cats     repo.CatRepo
	Missions repo.MissionRepo
	Targets  repo.TargetRepo
	Events   events.Writer

	closed *atomic.Bool
}

// Run opens a transaction, calls fn and commits when fn returns nil.
// Otherwise the transaction is rolled back and fn's error is returned
// unchanged. A panic in fn rolls back and propagates.
func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, s *Scope) error) error {
	tx, err := u.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	conn := &scopedTx{tx: tx, closed: &atomic.Bool{}}
	scope := u.newScope(conn)

	defer func() {
		conn.closed.Store(true)
		if p := recover(); p != nil {
			u.rollback(tx)
			u.Metrics.ScopeFinished(metrics.OutcomePanic)
			panic(p)
		}
	}()

	if err := fn(ctx, scope); err != nil {
		u.rollback(tx)
		u.Metrics.ScopeFinished(metrics.OutcomeRollback)
		return err
	}
	if err := tx.Commit(); err != nil {
		u.Metrics.ScopeFinished(metrics.OutcomeRollback)
		return fmt.Errorf("commit transaction: %w", err)
	}
	u.Metrics.ScopeFinished(metrics.OutcomeCommit)
	return nil
}

// Within is Run for functions that produce a value.
func Within[R any](ctx context.Context, u *UnitOfWork, fn func(ctx context.Context, s *Scope) (R, error)) (R, error) {
	var out R
	err := u.Run(ctx, func(ctx context.Context, s *Scope) error {
		var err error
		out, err = fn(ctx, s)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

func (u *UnitOfWork) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		u.logger().Error("rollback failed", "err", err)
	}
}

func (u *UnitOfWork) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

func (u *UnitOfWork) newScope(conn *scopedTx) *Scope {
	now := u.Now
	if now == nil {
		now = time.Now
	}
	targets := repo.NewTargetRepo(conn, u.Dialect, now)
	return &Scope{
		Cats:     repo.NewCatRepo(conn, u.Dialect, now),
		Missions: repo.NewMissionRepo(conn, u.Dialect, now, targets),
		Targets:  targets,
		Events:   events.Writer{DB: conn, Dialect: u.Dialect, Now: now},
		closed:   conn.closed,
	}
}

// LockMission serialises concurrent writers of one mission until the scope
// ends.
func (s *Scope) LockMission(ctx context.Context, id uuid.UUID) error {
	return s.Missions.Lock(ctx, id)
}

// Closed reports whether the scope's transaction has ended.
func (s *Scope) Closed() bool { return s.closed.Load() }

// scopedTx refuses statements once its scope has ended.
type scopedTx struct {
	tx     *sql.Tx
	closed *atomic.Bool
}

func (c *scopedTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.closed.Load() {
		return nil, ErrScopeClosed
	}
	return c.tx.ExecContext(ctx, query, args...)
}

func (c *scopedTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.closed.Load() {
		return nil, ErrScopeClosed
	}
	return c.tx.QueryContext(ctx, query, args...)
}
