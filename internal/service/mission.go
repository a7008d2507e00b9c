package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"spycat/internal/apperr"
	"spycat/internal/domain"
	"spycat/internal/events"
	"spycat/internal/pagination"
	"spycat/internal/repo"
	"spycat/internal/uow"
)

type MissionService struct {
	UoW    *uow.UnitOfWork
	Logger *slog.Logger
}

type TargetCreate struct {
	Name    string
	Country string
	Notes   string
}

type MissionCreate struct {
	Name    string
	Targets []TargetCreate
}

// TargetUpdate carries the optional fields of a target update; nil means
// unchanged.
type TargetUpdate struct {
	Notes       *string
	IsCompleted *bool
}

func (s *MissionService) List(ctx context.Context, opts ListOptions) (pagination.Page[domain.Mission], error) {
	opts = opts.normalize()
	return uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (pagination.Page[domain.Mission], error) {
		missions, total, err := sc.Missions.GetMulti(ctx, opts.page("created_at"), nil)
		if err != nil {
			return pagination.Page[domain.Mission]{}, err
		}
		return pagination.New(missions, total, opts.PerPage), nil
	})
}

// Create inserts the mission and its targets in one transaction. The
// returned mission does not carry its targets.
func (s *MissionService) Create(ctx context.Context, in MissionCreate) (domain.Mission, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Mission{}, apperr.NewBadRequest("mission name must not be empty.")
	}
	mission, err := uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (domain.Mission, error) {
		m, err := sc.Missions.Create(ctx, repo.Values{"name": in.Name, "complete": false})
		if err != nil {
			return domain.Mission{}, err
		}
		rows := make([]repo.Values, len(in.Targets))
		for i, t := range in.Targets {
			rows[i] = repo.Values{
				"mission_id": m.ID,
				"name":       t.Name,
				"country":    t.Country,
				"notes":      t.Notes,
				"complete":   false,
				"position":   i,
			}
		}
		if err := sc.Targets.CreateMany(ctx, rows); err != nil {
			return domain.Mission{}, err
		}
		return m, sc.Events.Append(ctx, "mission.created", events.KindMission, m.ID.String(), events.EventPayload{
			"name":    m.Name,
			"targets": len(rows),
		})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	s.Logger.Info("mission created", "id", mission.ID, "targets", len(in.Targets))
	return mission, nil
}

// Get returns the mission with its targets.
func (s *MissionService) Get(ctx context.Context, id uuid.UUID) (domain.Mission, error) {
	return uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (domain.Mission, error) {
		return sc.Missions.GetWithTargets(ctx, repo.Filters{"id": id})
	})
}

// Delete refuses to remove a mission that has a cat assigned.
func (s *MissionService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.UoW.Run(ctx, func(ctx context.Context, sc *uow.Scope) error {
		m, err := sc.Missions.Get(ctx, repo.Filters{"id": id})
		if err != nil {
			return err
		}
		if m.CatID != nil {
			return apperr.NewBadRequest("Can't delete a mission that has already been assigned to a cat.")
		}
		if err := sc.Missions.Delete(ctx, repo.Filters{"id": id}); err != nil {
			return err
		}
		return sc.Events.Append(ctx, "mission.deleted", events.KindMission, id.String(), nil)
	})
}

// AssignCat sets the mission's cat once; reassignment is rejected.
func (s *MissionService) AssignCat(ctx context.Context, missionID, catID uuid.UUID) (domain.Mission, error) {
	return uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (domain.Mission, error) {
		if err := sc.LockMission(ctx, missionID); err != nil {
			return domain.Mission{}, err
		}
		m, err := sc.Missions.Get(ctx, repo.Filters{"id": missionID})
		if err != nil {
			return domain.Mission{}, err
		}
		if _, err := sc.Cats.Get(ctx, repo.Filters{"id": catID}); err != nil {
			return domain.Mission{}, err
		}
		if m.CatID != nil {
			return domain.Mission{}, apperr.NewBadRequest("Mission %s already has a cat.", missionID)
		}
		m, err = sc.Missions.Update(ctx, repo.Filters{"id": missionID}, repo.Values{"cat_id": catID})
		if err != nil {
			return domain.Mission{}, err
		}
		return m, sc.Events.Append(ctx, "mission.cat_assigned", events.KindMission, missionID.String(), events.EventPayload{
			"cat_id": catID.String(),
		})
	})
}

// UpdateTarget edits a target's notes or completes it, then completes the
// mission once every target is complete. Notes are frozen on a complete
// target, including in the request that completes it.
func (s *MissionService) UpdateTarget(ctx context.Context, missionID, targetID uuid.UUID, in TargetUpdate) (domain.Mission, error) {
	if in.Notes == nil && in.IsCompleted == nil {
		return domain.Mission{}, apperr.NewBadRequest("At least one field (notes or is_completed) must be provided.")
	}
	return uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (domain.Mission, error) {
		if err := sc.LockMission(ctx, missionID); err != nil {
			return domain.Mission{}, err
		}
		filters := repo.Filters{"id": targetID, "mission_id": missionID}
		target, err := sc.Targets.Get(ctx, filters)
		if err != nil {
			return domain.Mission{}, err
		}
		completing := in.IsCompleted != nil && *in.IsCompleted
		if in.Notes != nil && (target.Complete || completing) {
			return domain.Mission{}, apperr.NewBadRequest("Can't update notes for a completed target.")
		}

		updates := repo.Values{}
		if in.Notes != nil {
			updates["notes"] = *in.Notes
		}
		if completing {
			updates["complete"] = true
		}
		if len(updates) > 0 {
			if _, err := sc.Targets.Update(ctx, filters, updates); err != nil {
				return domain.Mission{}, err
			}
			if err := sc.Events.Append(ctx, "target.updated", events.KindTarget, targetID.String(), events.EventPayload(updates)); err != nil {
				return domain.Mission{}, err
			}
		}

		mission, err := sc.Missions.GetWithTargets(ctx, repo.Filters{"id": missionID})
		if err != nil {
			return domain.Mission{}, err
		}
		if mission.AllTargetsComplete() && !mission.Complete {
			updated, err := sc.Missions.Update(ctx, repo.Filters{"id": missionID}, repo.Values{"complete": true})
			if err != nil {
				return domain.Mission{}, err
			}
			updated.Targets = mission.Targets
			mission = updated
			if err := sc.Events.Append(ctx, "mission.completed", events.KindMission, missionID.String(), nil); err != nil {
				return domain.Mission{}, err
			}
			s.Logger.Info("mission completed", "id", missionID)
		}
		return mission, nil
	})
}
