package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spycat/internal/db"
	"spycat/internal/domain"
)

var missionTable = Table[domain.Mission]{
	Entity: "Mission",
	Name:   "missions",
	Fields: Fields{
		"id":         {Kind: UUID},
		"name":       {Kind: String},
		"cat_id":     {Kind: UUID, Nullable: true},
		"complete":   {Kind: Bool},
		"created_at": {Kind: Time},
		"updated_at": {Kind: Time},
	},
	Columns:    []string{"id", "name", "cat_id", "complete", "created_at", "updated_at"},
	Scan:       scanMission,
	Timestamps: true,
}

func scanMission(s Scanner, extra ...any) (domain.Mission, error) {
	var (
		m                domain.Mission
		catID            uuid.NullUUID
		created, updated db.Time
	)
	dest := append([]any{&m.ID, &m.Name, &catID, &m.Complete, &created, &updated}, extra...)
	if err := s.Scan(dest...); err != nil {
		return m, err
	}
	if catID.Valid {
		id := catID.UUID
		m.CatID = &id
	}
	m.CreatedAt, m.UpdatedAt = created.Time, updated.Time
	return m, nil
}

type MissionRepo struct {
	Repository[domain.Mission]
	Targets TargetRepo
}

func NewMissionRepo(conn db.DBTX, dialect db.Dialect, now func() time.Time, targets TargetRepo) MissionRepo {
	return MissionRepo{
		Repository: Repository[domain.Mission]{DB: conn, Dialect: dialect, Table: missionTable, Now: now},
		Targets:    targets,
	}
}

// PreloadTargets loads every target of the batch in one query, in creation
// order.
func (r MissionRepo) PreloadTargets(ctx context.Context, missions []domain.Mission) error {
	ids := make([]uuid.UUID, len(missions))
	for i, m := range missions {
		ids[i] = m.ID
	}
	targets, err := r.Targets.GetMultiWithoutPagination(ctx, "position", Filters{"mission_id__in": ids})
	if err != nil {
		return fmt.Errorf("preload targets: %w", err)
	}
	byMission := make(map[uuid.UUID][]domain.Target, len(missions))
	for _, t := range targets {
		byMission[t.MissionID] = append(byMission[t.MissionID], t)
	}
	for i := range missions {
		missions[i].Targets = byMission[missions[i].ID]
		if missions[i].Targets == nil {
			missions[i].Targets = []domain.Target{}
		}
	}
	return nil
}

// GetWithTargets fetches one mission with its targets eagerly loaded.
func (r MissionRepo) GetWithTargets(ctx context.Context, filters Filters) (domain.Mission, error) {
	return r.Get(ctx, filters, r.PreloadTargets)
}

// Lock takes a row lock on the mission for the rest of the transaction and
// returns NotFound when it does not exist.
func (r MissionRepo) Lock(ctx context.Context, id uuid.UUID) error {
	q := `SELECT id FROM missions WHERE id = ?` + r.Dialect.LockSuffix()
	var got string
	if err := db.QueryRow(ctx, r.DB, r.query(q), id.String()).Scan(&got); err != nil {
		return r.readErr("lock", err, Filters{"id": id})
	}
	return nil
}
