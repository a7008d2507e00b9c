package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"spycat/internal/domain"
	"spycat/internal/pagination"
)

type missionPath struct {
	ID string `path:"id" format:"uuid" doc:"Mission ID"`
}

type missionOutput struct {
	Body domain.Mission `json:"body"`
}

type missionDetailOutput struct {
	Body domain.MissionWithTargets `json:"body"`
}

func (s *server) registerMissions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Tags:        []string{"missions"},
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *pageQuery) (*struct {
		Body pagination.Page[domain.Mission] `json:"body"`
	}, error) {
		page, err := s.svc.Missions.List(ctx, input.toService())
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct {
			Body pagination.Page[domain.Mission] `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/mission",
		Summary:       "Create mission with its targets",
		Tags:          []string{"missions"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*missionOutput, error) {
		mission, err := s.svc.Missions.Create(ctx, input.Body.toService())
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &missionOutput{Body: mission}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/mission/{id}",
		Summary:     "Get mission with targets",
		Tags:        []string{"missions"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *missionPath) (*missionDetailOutput, error) {
		id, err := parseID("id", input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		mission, err := s.svc.Missions.Get(ctx, id)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &missionDetailOutput{Body: mission.Detail()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-mission",
		Method:        http.MethodDelete,
		Path:          "/mission/{id}",
		Summary:       "Delete unassigned mission",
		Tags:          []string{"missions"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *missionPath) (*struct{}, error) {
		id, err := parseID("id", input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		if err := s.svc.Missions.Delete(ctx, id); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-cat",
		Method:      http.MethodPost,
		Path:        "/mission/{id}/assign-cat",
		Summary:     "Assign a cat to a mission",
		Tags:        []string{"missions"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id" format:"uuid" doc:"Mission ID"`
		Body AssignCatRequest `json:"body"`
	}) (*missionOutput, error) {
		missionID, err := parseID("id", input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		catID, err := parseID("cat_id", input.Body.CatID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		mission, err := s.svc.Missions.AssignCat(ctx, missionID, catID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &missionOutput{Body: mission}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-target",
		Method:      http.MethodPatch,
		Path:        "/mission/{id}/target/{target_id}",
		Summary:     "Update target notes or completion",
		Tags:        []string{"missions"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID       string              `path:"id" format:"uuid" doc:"Mission ID"`
		TargetID string              `path:"target_id" format:"uuid" doc:"Target ID"`
		Body     UpdateTargetRequest `json:"body"`
	}) (*missionDetailOutput, error) {
		missionID, err := parseID("id", input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		targetID, err := parseID("target_id", input.TargetID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		mission, err := s.svc.Missions.UpdateTarget(ctx, missionID, targetID, input.Body.toService())
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &missionDetailOutput{Body: mission.Detail()}, nil
	})
}
