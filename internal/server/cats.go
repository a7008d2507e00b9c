package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"spycat/internal/domain"
	"spycat/internal/pagination"
)

type catPath struct {
	ID string `path:"id" format:"uuid" doc:"Cat ID"`
}

func (s *server) registerCats(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-cats",
		Method:      http.MethodGet,
		Path:        "/cats",
		Summary:     "List cats",
		Tags:        []string{"cats"},
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *pageQuery) (*struct {
		Body pagination.Page[domain.Cat] `json:"body"`
	}, error) {
		page, err := s.svc.Cats.List(ctx, input.toService())
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct {
			Body pagination.Page[domain.Cat] `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-cat",
		Method:        http.MethodPost,
		Path:          "/cat",
		Summary:       "Create cat",
		Tags:          []string{"cats"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusServiceUnavailable,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCatRequest `json:"body"`
	}) (*catOutput, error) {
		cat, err := s.svc.Cats.Create(ctx, input.Body.toService())
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &catOutput{Body: cat}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-cat",
		Method:      http.MethodGet,
		Path:        "/cat/{id}",
		Summary:     "Get cat",
		Tags:        []string{"cats"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *catPath) (*catOutput, error) {
		id, err := parseID("id", input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		cat, err := s.svc.Cats.Get(ctx, id)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &catOutput{Body: cat}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-cat",
		Method:      http.MethodPatch,
		Path:        "/cat/{id}",
		Summary:     "Update cat salary",
		Tags:        []string{"cats"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id" format:"uuid" doc:"Cat ID"`
		Body UpdateCatRequest `json:"body"`
	}) (*catOutput, error) {
		id, err := parseID("id", input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		cat, err := s.svc.Cats.UpdateSalary(ctx, id, input.Body.Salary)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &catOutput{Body: cat}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-cat",
		Method:        http.MethodDelete,
		Path:          "/cat/{id}",
		Summary:       "Delete cat",
		Tags:          []string{"cats"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *catPath) (*struct{}, error) {
		id, err := parseID("id", input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		if err := s.svc.Cats.Delete(ctx, id); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

type catOutput struct {
	Body domain.Cat `json:"body"`
}
