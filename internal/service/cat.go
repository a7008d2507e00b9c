package service

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"

	"spycat/internal/apperr"
	"spycat/internal/domain"
	"spycat/internal/events"
	"spycat/internal/pagination"
	"spycat/internal/repo"
	"spycat/internal/uow"
)

type CatService struct {
	UoW    *uow.UnitOfWork
	Breeds BreedValidator
	Logger *slog.Logger
}

type CatCreate struct {
	Name              string
	YearsOfExperience int
	Breed             string
	Salary            float64
}

func (c CatCreate) validate() error {
	switch {
	case utf8.RuneCountInString(c.Name) < 3:
		return apperr.NewBadRequest("name must be at least 3 characters.")
	case c.YearsOfExperience < 0:
		return apperr.NewBadRequest("years_of_experience must be greater than or equal to 0.")
	case utf8.RuneCountInString(c.Breed) < 3:
		return apperr.NewBadRequest("breed must be at least 3 characters.")
	case c.Salary < 0:
		return apperr.NewBadRequest("salary must be greater than or equal to 0.")
	}
	return nil
}

func (s *CatService) List(ctx context.Context, opts ListOptions) (pagination.Page[domain.Cat], error) {
	opts = opts.normalize()
	return uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (pagination.Page[domain.Cat], error) {
		cats, total, err := sc.Cats.GetMulti(ctx, opts.page("created_at"), nil)
		if err != nil {
			return pagination.Page[domain.Cat]{}, err
		}
		return pagination.New(cats, total, opts.PerPage), nil
	})
}

// Create validates the breed against the registry before opening a
// transaction.
func (s *CatService) Create(ctx context.Context, in CatCreate) (domain.Cat, error) {
	if err := in.validate(); err != nil {
		return domain.Cat{}, err
	}
	ok, err := s.Breeds.IsValid(ctx, in.Breed)
	if err != nil {
		return domain.Cat{}, err
	}
	if !ok {
		return domain.Cat{}, apperr.NewBadRequest("Invalid breed: %s. Please, check your request.", in.Breed)
	}
	cat, err := uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (domain.Cat, error) {
		cat, err := sc.Cats.Create(ctx, repo.Values{
			"name":                in.Name,
			"years_of_experience": in.YearsOfExperience,
			"breed":               in.Breed,
			"salary":              in.Salary,
		})
		if err != nil {
			return domain.Cat{}, err
		}
		return cat, sc.Events.Append(ctx, "cat.created", events.KindCat, cat.ID.String(), events.EventPayload{
			"name":  cat.Name,
			"breed": cat.Breed,
		})
	})
	if err != nil {
		return domain.Cat{}, err
	}
	s.Logger.Info("cat created", "id", cat.ID, "breed", cat.Breed)
	return cat, nil
}

func (s *CatService) Get(ctx context.Context, id uuid.UUID) (domain.Cat, error) {
	return uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (domain.Cat, error) {
		return sc.Cats.Get(ctx, repo.Filters{"id": id})
	})
}

// UpdateSalary is the only mutation allowed on an existing cat.
func (s *CatService) UpdateSalary(ctx context.Context, id uuid.UUID, salary float64) (domain.Cat, error) {
	if salary < 0 {
		return domain.Cat{}, apperr.NewBadRequest("salary must be greater than or equal to 0.")
	}
	return uow.Within(ctx, s.UoW, func(ctx context.Context, sc *uow.Scope) (domain.Cat, error) {
		cat, err := sc.Cats.Update(ctx, repo.Filters{"id": id}, repo.Values{"salary": salary})
		if err != nil {
			return domain.Cat{}, err
		}
		return cat, sc.Events.Append(ctx, "cat.salary_updated", events.KindCat, id.String(), events.EventPayload{"salary": salary})
	})
}

// Delete removes the cat unconditionally. Missions it was assigned to keep
// existing with no cat.
func (s *CatService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.UoW.Run(ctx, func(ctx context.Context, sc *uow.Scope) error {
		if err := sc.Cats.Delete(ctx, repo.Filters{"id": id}); err != nil {
			return err
		}
		return sc.Events.Append(ctx, "cat.deleted", events.KindCat, id.String(), nil)
	})
}
