// Package service applies the agency's business rules on top of the unit of
// work.
package service

import (
	"context"
	"log/slog"

	"spycat/internal/pagination"
	"spycat/internal/repo"
	"spycat/internal/uow"
)

// BreedValidator checks a breed against the breed registry.
type BreedValidator interface {
	IsValid(ctx context.Context, breed string) (bool, error)
}

// Services bundles the domain services sharing one unit of work.
type Services struct {
	Cats     *CatService
	Missions *MissionService
}

func New(u *uow.UnitOfWork, breeds BreedValidator, logger *slog.Logger) Services {
	if logger == nil {
		logger = slog.Default()
	}
	return Services{
		Cats:     &CatService{UoW: u, Breeds: breeds, Logger: logger},
		Missions: &MissionService{UoW: u, Logger: logger},
	}
}

// ListOptions is a 1-based page request.
type ListOptions struct {
	Page    int
	PerPage int
}

func (o ListOptions) normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = pagination.DefaultPerPage
	}
	return o
}

func (o ListOptions) page(orderBy string) repo.Page {
	return repo.Page{
		Offset:  pagination.Offset(o.Page, o.PerPage),
		Limit:   o.PerPage,
		OrderBy: orderBy,
	}
}
