package uow_test

import (
	"context"
	"errors"
	"testing"

	"spycat/internal/dbtest"
	"spycat/internal/domain"
	"spycat/internal/metrics"
	"spycat/internal/repo"
	"spycat/internal/uow"
)

func newUoW(t *testing.T) *uow.UnitOfWork {
	t.Helper()
	conn, dialect := dbtest.Open(t)
	u := uow.New(conn, dialect)
	u.Metrics = metrics.New()
	return u
}

var tom = repo.Values{"name": "Tom", "years_of_experience": 2, "breed": "Siamese", "salary": 10.0}

func countCats(t *testing.T, u *uow.UnitOfWork) int {
	t.Helper()
	n, err := uow.Within(context.Background(), u, func(ctx context.Context, s *uow.Scope) (int, error) {
		return s.Cats.Count(ctx, nil)
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestRunCommitsOnSuccess(t *testing.T) {
	u := newUoW(t)
	cat, err := uow.Within(context.Background(), u, func(ctx context.Context, s *uow.Scope) (domain.Cat, error) {
		return s.Cats.Create(ctx, tom)
	})
	if err != nil {
		t.Fatalf("within: %v", err)
	}
	if cat.Name != "Tom" {
		t.Fatalf("unexpected cat %+v", cat)
	}
	if n := countCats(t, u); n != 1 {
		t.Fatalf("expected committed cat, count=%d", n)
	}
}

func TestRunRollsBackAndReturnsSameError(t *testing.T) {
	u := newUoW(t)
	sentinel := errors.New("boom")
	err := u.Run(context.Background(), func(ctx context.Context, s *uow.Scope) error {
		if _, err := s.Cats.Create(ctx, tom); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected the very same error value, got %v", err)
	}
	if n := countCats(t, u); n != 0 {
		t.Fatalf("expected rollback, count=%d", n)
	}
}

func TestRunRollsBackOnPanic(t *testing.T) {
	u := newUoW(t)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("panic was swallowed")
			}
		}()
		_ = u.Run(context.Background(), func(ctx context.Context, s *uow.Scope) error {
			if _, err := s.Cats.Create(ctx, tom); err != nil {
				return err
			}
			panic("kaboom")
		})
	}()
	if n := countCats(t, u); n != 0 {
		t.Fatalf("expected rollback after panic, count=%d", n)
	}
}

func TestScopeUnusableAfterRun(t *testing.T) {
	u := newUoW(t)
	var leaked *uow.Scope
	if err := u.Run(context.Background(), func(ctx context.Context, s *uow.Scope) error {
		leaked = s
		return nil
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !leaked.Closed() {
		t.Fatalf("scope should report closed")
	}
	if _, err := leaked.Cats.Create(context.Background(), tom); !errors.Is(err, uow.ErrScopeClosed) {
		t.Fatalf("expected ErrScopeClosed, got %v", err)
	}
	if err := leaked.Events.Append(context.Background(), "x", "cat", "", nil); !errors.Is(err, uow.ErrScopeClosed) {
		t.Fatalf("expected ErrScopeClosed from events, got %v", err)
	}
}

func TestConnectionsAreReleased(t *testing.T) {
	u := newUoW(t)
	for i := 0; i < 20; i++ {
		_ = u.Run(context.Background(), func(ctx context.Context, s *uow.Scope) error {
			return errors.New("fail")
		})
	}
	if inUse := u.DB.Stats().InUse; inUse != 0 {
		t.Fatalf("expected no connections in use, got %d", inUse)
	}
}
