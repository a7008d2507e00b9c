package repo

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"spycat/internal/db"
)

var testFields = Fields{
	"id":     {Kind: UUID},
	"name":   {Kind: String},
	"age":    {Kind: Int},
	"cat_id": {Kind: UUID, Nullable: true},
	"done":   {Kind: Bool},
}

func TestWhereConjunctionIsSortedAndParameterised(t *testing.T) {
	cond, args, err := where(db.SQLite, "t", testFields, Filters{
		"name__ilike": "%tom%",
		"age__ge":     3,
		"done":        true,
	})
	if err != nil {
		t.Fatalf("where: %v", err)
	}
	want := "age >= ? AND done = ? AND name LIKE ?"
	if cond != want {
		t.Fatalf("expected %q, got %q", want, cond)
	}
	if len(args) != 3 || args[0] != int64(3) || args[1] != true || args[2] != "%tom%" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestWhereNilOperands(t *testing.T) {
	cases := map[string]string{
		"cat_id":         "cat_id IS NULL",
		"cat_id__eq":     "cat_id IS NULL",
		"cat_id__ne":     "cat_id IS NOT NULL",
		"cat_id__is_not": "cat_id IS NOT NULL",
	}
	for key, want := range cases {
		cond, args, err := where(db.SQLite, "t", testFields, Filters{key: nil})
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if cond != want || len(args) != 0 {
			t.Fatalf("%s: expected %q, got %q %v", key, want, cond, args)
		}
	}
}

func TestWhereDialectSpecificOperators(t *testing.T) {
	id := uuid.New()
	cond, _, err := where(db.Postgres, "t", testFields, Filters{"cat_id__is_not": id, "name__contains": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if cond != "cat_id IS DISTINCT FROM ? AND strpos(name, ?) > 0" {
		t.Fatalf("unexpected postgres condition %q", cond)
	}
	cond, _, err = where(db.SQLite, "t", testFields, Filters{"cat_id__is_not": id, "name__contains": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if cond != "cat_id IS NOT ? AND instr(name, ?) > 0" {
		t.Fatalf("unexpected sqlite condition %q", cond)
	}
}

func TestWhereListOperands(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	cond, args, err := where(db.SQLite, "t", testFields, Filters{"id__in": []uuid.UUID{a, b}})
	if err != nil {
		t.Fatal(err)
	}
	if cond != "id IN (?,?)" || args[0] != a.String() || args[1] != b.String() {
		t.Fatalf("unexpected in clause %q %v", cond, args)
	}
	if cond, _, _ := where(db.SQLite, "t", testFields, Filters{"id__in": []string{}}); cond != "1=0" {
		t.Fatalf("empty in must match nothing, got %q", cond)
	}
	if cond, _, _ := where(db.SQLite, "t", testFields, Filters{"id__not_in": []string{}}); cond != "1=1" {
		t.Fatalf("empty not_in must match everything, got %q", cond)
	}
}

func TestWhereRejectsUnknownFieldsOperatorsAndTypes(t *testing.T) {
	bad := []Filters{
		{"missing": 1},
		{"name__between": "a"},
		{"age": "three"},
		{"age__contains": "3"},
		{"id__in": "not-a-list"},
		{"age__lt": nil},
		{"id": "not-a-uuid"},
	}
	for _, f := range bad {
		if _, _, err := where(db.SQLite, "t", testFields, f); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("%v: expected ErrInvalidFilter, got %v", f, err)
		}
	}
}

func TestOrderClause(t *testing.T) {
	got, err := orderClause(testFields, "-age")
	if err != nil || got != " ORDER BY age DESC NULLS LAST, id ASC" {
		t.Fatalf("desc: %q %v", got, err)
	}
	got, err = orderClause(testFields, "name")
	if err != nil || got != " ORDER BY name ASC, id ASC" {
		t.Fatalf("asc: %q %v", got, err)
	}
	got, err = orderClause(testFields, "id")
	if err != nil || got != " ORDER BY id ASC" {
		t.Fatalf("id: %q %v", got, err)
	}
	if _, err := orderClause(testFields, "-nope"); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}
