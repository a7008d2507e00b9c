package repo

import (
	"time"

	"spycat/internal/db"
	"spycat/internal/domain"
)

var targetTable = Table[domain.Target]{
	Entity: "Target",
	Name:   "targets",
	Fields: Fields{
		"id":         {Kind: UUID},
		"mission_id": {Kind: UUID},
		"name":       {Kind: String},
		"country":    {Kind: String},
		"notes":      {Kind: String},
		"complete":   {Kind: Bool},
		"position":   {Kind: Int},
		"created_at": {Kind: Time},
		"updated_at": {Kind: Time},
	},
	Columns:    []string{"id", "mission_id", "name", "country", "notes", "complete", "position", "created_at", "updated_at"},
	Scan:       scanTarget,
	Timestamps: true,
}

func scanTarget(s Scanner, extra ...any) (domain.Target, error) {
	var (
		t                domain.Target
		created, updated db.Time
	)
	dest := append([]any{&t.ID, &t.MissionID, &t.Name, &t.Country, &t.Notes, &t.Complete, &t.Position, &created, &updated}, extra...)
	if err := s.Scan(dest...); err != nil {
		return t, err
	}
	t.CreatedAt, t.UpdatedAt = created.Time, updated.Time
	return t, nil
}

type TargetRepo struct {
	Repository[domain.Target]
}

func NewTargetRepo(conn db.DBTX, dialect db.Dialect, now func() time.Time) TargetRepo {
	return TargetRepo{Repository[domain.Target]{DB: conn, Dialect: dialect, Table: targetTable, Now: now}}
}
