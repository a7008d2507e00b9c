package repo

import (
	"time"

	"spycat/internal/db"
	"spycat/internal/domain"
)

var catTable = Table[domain.Cat]{
	Entity: "Cat",
	Name:   "cats",
	Fields: Fields{
		"id":                  {Kind: UUID},
		"name":                {Kind: String},
		"years_of_experience": {Kind: Int},
		"breed":               {Kind: String},
		"salary":              {Kind: Float},
		"created_at":          {Kind: Time},
		"updated_at":          {Kind: Time},
	},
	Columns:    []string{"id", "name", "years_of_experience", "breed", "salary", "created_at", "updated_at"},
	Scan:       scanCat,
	Timestamps: true,
}

func scanCat(s Scanner, extra ...any) (domain.Cat, error) {
	var (
		c                domain.Cat
		created, updated db.Time
	)
	dest := append([]any{&c.ID, &c.Name, &c.YearsOfExperience, &c.Breed, &c.Salary, &created, &updated}, extra...)
	if err := s.Scan(dest...); err != nil {
		return c, err
	}
	c.CreatedAt, c.UpdatedAt = created.Time, updated.Time
	return c, nil
}

type CatRepo struct {
	Repository[domain.Cat]
}

func NewCatRepo(conn db.DBTX, dialect db.Dialect, now func() time.Time) CatRepo {
	return CatRepo{Repository[domain.Cat]{DB: conn, Dialect: dialect, Table: catTable, Now: now}}
}
