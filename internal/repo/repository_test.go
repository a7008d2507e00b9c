package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"spycat/internal/apperr"
	"spycat/internal/dbtest"
	"spycat/internal/domain"
	"spycat/internal/repo"
)

type repos struct {
	Cats     repo.CatRepo
	Missions repo.MissionRepo
	Targets  repo.TargetRepo
}

func newRepos(t *testing.T) (repos, context.Context) {
	t.Helper()
	conn, dialect := dbtest.Open(t)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	targets := repo.NewTargetRepo(conn, dialect, now)
	return repos{
		Cats:     repo.NewCatRepo(conn, dialect, now),
		Missions: repo.NewMissionRepo(conn, dialect, now, targets),
		Targets:  targets,
	}, context.Background()
}

func createCat(t *testing.T, ctx context.Context, r repos, name string, years int) domain.Cat {
	t.Helper()
	c, err := r.Cats.Create(ctx, repo.Values{"name": name, "years_of_experience": years, "breed": "Siamese", "salary": 100.5})
	if err != nil {
		t.Fatalf("create cat: %v", err)
	}
	return c
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	r, ctx := newRepos(t)
	c := createCat(t, ctx, r, "Tom", 3)
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Fatalf("id and timestamps not filled: %+v", c)
	}
	got, err := r.Cats.Get(ctx, repo.Filters{"id": c.ID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != c {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", got, c)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	r, ctx := newRepos(t)
	_, err := r.Cats.Get(ctx, repo.Filters{"id": uuid.New()})
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, ok, err := r.Cats.GetOneOrNone(ctx, repo.Filters{"name": "nobody"})
	if err != nil || ok {
		t.Fatalf("expected absent without error, got ok=%v err=%v", ok, err)
	}
}

func TestDuplicateIDIsAlreadyExists(t *testing.T) {
	r, ctx := newRepos(t)
	c := createCat(t, ctx, r, "Tom", 3)
	_, err := r.Cats.Create(ctx, repo.Values{"id": c.ID, "name": "Tim", "years_of_experience": 1, "breed": "Siamese", "salary": 1.0})
	if !apperr.IsKind(err, apperr.AlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestGetMultiPaginatesWithTotal(t *testing.T) {
	r, ctx := newRepos(t)
	for _, n := range []string{"Aaa", "Bbb", "Ccc", "Ddd", "Eee"} {
		createCat(t, ctx, r, n, 1)
	}
	items, total, err := r.Cats.GetMulti(ctx, repo.Page{Offset: 2, Limit: 2, OrderBy: "created_at"}, nil)
	if err != nil {
		t.Fatalf("get multi: %v", err)
	}
	if total != 5 || len(items) != 2 || items[0].Name != "Ccc" || items[1].Name != "Ddd" {
		t.Fatalf("unexpected page: total=%d items=%+v", total, items)
	}
	items, total, err = r.Cats.GetMulti(ctx, repo.Page{Offset: 10, Limit: 2, OrderBy: "created_at"}, nil)
	if err != nil || len(items) != 0 || total != 5 {
		t.Fatalf("past-the-end page: total=%d items=%d err=%v", total, len(items), err)
	}
	items, _, err = r.Cats.GetMulti(ctx, repo.Page{Limit: 1, OrderBy: "-created_at"}, nil)
	if err != nil || items[0].Name != "Eee" {
		t.Fatalf("descending order broken: %+v %v", items, err)
	}
}

func TestFiltersAreConjunctive(t *testing.T) {
	r, ctx := newRepos(t)
	createCat(t, ctx, r, "Tom", 1)
	createCat(t, ctx, r, "Tomas", 5)
	createCat(t, ctx, r, "Jerry", 5)
	items, err := r.Cats.GetMultiWithoutPagination(ctx, "name", repo.Filters{"name__ilike": "tom%", "years_of_experience__gt": 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Tomas" {
		t.Fatalf("expected only Tomas, got %+v", items)
	}
	n, err := r.Cats.Count(ctx, repo.Filters{"years_of_experience": 5})
	if err != nil || n != 2 {
		t.Fatalf("count: %d %v", n, err)
	}
	if _, err := r.Cats.Count(ctx, repo.Filters{"whiskers": 5}); !errors.Is(err, repo.ErrInvalidFilter) {
		t.Fatalf("unknown field must fail, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	r, ctx := newRepos(t)
	c := createCat(t, ctx, r, "Tom", 1)
	updated, err := r.Cats.Update(ctx, repo.Filters{"id": c.ID}, repo.Values{"salary": 250.0})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Salary != 250 || !updated.UpdatedAt.After(c.UpdatedAt) || !updated.CreatedAt.Equal(c.CreatedAt) {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if _, err := r.Cats.Update(ctx, repo.Filters{"id": uuid.New()}, repo.Values{"salary": 1.0}); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("update missing: %v", err)
	}
	if err := r.Cats.Delete(ctx, repo.Filters{"id": c.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.Cats.Delete(ctx, repo.Filters{"id": c.ID}); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
	if err := r.Cats.DeleteMany(ctx, repo.Filters{"name": "nobody"}); err != nil {
		t.Fatalf("delete many with no match: %v", err)
	}
}

func TestUpdateManyReturnsAffectedRows(t *testing.T) {
	r, ctx := newRepos(t)
	createCat(t, ctx, r, "Tom", 1)
	createCat(t, ctx, r, "Tim", 1)
	createCat(t, ctx, r, "Old", 9)
	rows, err := r.Cats.UpdateMany(ctx, repo.Filters{"years_of_experience__lt": 2}, repo.Values{"breed": "Bengal"})
	if err != nil {
		t.Fatalf("update many: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, c := range rows {
		if c.Breed != "Bengal" {
			t.Fatalf("row not updated: %+v", c)
		}
	}
}

func TestUpsertOverwritesOnConflict(t *testing.T) {
	r, ctx := newRepos(t)
	c := createCat(t, ctx, r, "Tom", 1)
	got, err := r.Cats.Upsert(ctx, repo.Values{"id": c.ID, "name": "Tom", "years_of_experience": 4, "breed": "Bengal", "salary": 1.0}, []string{"id"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got.ID != c.ID || got.YearsOfExperience != 4 || got.Breed != "Bengal" || !got.CreatedAt.Equal(c.CreatedAt) {
		t.Fatalf("unexpected upsert result %+v", got)
	}
	fresh, err := r.Cats.Upsert(ctx, repo.Values{"name": "New", "years_of_experience": 0, "breed": "Bengal", "salary": 0.0}, []string{"id"})
	if err != nil || fresh.ID == c.ID {
		t.Fatalf("upsert insert: %+v %v", fresh, err)
	}
}

func TestGetFields(t *testing.T) {
	r, ctx := newRepos(t)
	c := createCat(t, ctx, r, "Tom", 7)
	fields, err := r.Cats.GetFields(ctx, repo.Filters{"id": c.ID}, []string{"name", "years_of_experience", "id"})
	if err != nil {
		t.Fatalf("get fields: %v", err)
	}
	if fields["name"] != "Tom" || fields["years_of_experience"] != int64(7) || fields["id"] != c.ID {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, err := r.Cats.GetFields(ctx, repo.Filters{"id": uuid.New()}, []string{"name"}); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMissionTargetsPreloadInOrderAndCascade(t *testing.T) {
	r, ctx := newRepos(t)
	m, err := r.Missions.Create(ctx, repo.Values{"name": "Op", "complete": false})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if m.CatID != nil {
		t.Fatalf("new mission must be unassigned")
	}
	rows := []repo.Values{
		{"mission_id": m.ID, "name": "B", "country": "UA", "notes": "", "position": 0},
		{"mission_id": m.ID, "name": "A", "country": "PL", "notes": "n", "position": 1},
	}
	if err := r.Targets.CreateMany(ctx, rows); err != nil {
		t.Fatalf("create targets: %v", err)
	}
	got, err := r.Missions.GetWithTargets(ctx, repo.Filters{"id": m.ID})
	if err != nil {
		t.Fatalf("get with targets: %v", err)
	}
	if len(got.Targets) != 2 || got.Targets[0].Name != "B" || got.Targets[1].Name != "A" {
		t.Fatalf("targets not in creation order: %+v", got.Targets)
	}
	if err := r.Missions.Delete(ctx, repo.Filters{"id": m.ID}); err != nil {
		t.Fatalf("delete mission: %v", err)
	}
	n, err := r.Targets.Count(ctx, repo.Filters{"mission_id": m.ID})
	if err != nil || n != 0 {
		t.Fatalf("targets must cascade, count=%d err=%v", n, err)
	}
}

func TestCreateManyRejectsMismatchedRows(t *testing.T) {
	r, ctx := newRepos(t)
	m, _ := r.Missions.Create(ctx, repo.Values{"name": "Op", "complete": false})
	err := r.Targets.CreateMany(ctx, []repo.Values{
		{"mission_id": m.ID, "name": "A", "country": "PL", "notes": ""},
		{"mission_id": m.ID, "name": "B", "country": "PL"},
	})
	if !errors.Is(err, repo.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestDeletingCatClearsMissionAssignment(t *testing.T) {
	r, ctx := newRepos(t)
	c := createCat(t, ctx, r, "Tom", 1)
	m, err := r.Missions.Create(ctx, repo.Values{"name": "Op", "complete": false, "cat_id": c.ID})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if m.CatID == nil || *m.CatID != c.ID {
		t.Fatalf("cat not assigned: %+v", m)
	}
	if err := r.Cats.Delete(ctx, repo.Filters{"id": c.ID}); err != nil {
		t.Fatalf("delete cat: %v", err)
	}
	got, err := r.Missions.Get(ctx, repo.Filters{"id": m.ID})
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if got.CatID != nil {
		t.Fatalf("mission still references deleted cat")
	}
}

func TestLockMissing(t *testing.T) {
	r, ctx := newRepos(t)
	if err := r.Missions.Lock(ctx, uuid.New()); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
