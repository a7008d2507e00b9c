package server

import (
	"spycat/internal/service"
)

// Request payloads

type CreateCatRequest struct {
	Name              string  `json:"name" minLength:"3" example:"Tom"`
	YearsOfExperience int     `json:"years_of_experience" minimum:"0" example:"3"`
	Breed             string  `json:"breed" minLength:"3" example:"Siamese"`
	Salary            float64 `json:"salary" minimum:"0" example:"1200.5"`
}

func (r CreateCatRequest) toService() service.CatCreate {
	return service.CatCreate{
		Name:              r.Name,
		YearsOfExperience: r.YearsOfExperience,
		Breed:             r.Breed,
		Salary:            r.Salary,
	}
}

type UpdateCatRequest struct {
	Salary float64 `json:"salary" minimum:"0"`
}

type CreateTargetRequest struct {
	Name    string `json:"name" example:"Jerry"`
	Country string `json:"country" example:"Ukraine"`
	Notes   string `json:"notes" example:"Hides in the pantry"`
}

type CreateMissionRequest struct {
	Name    string                `json:"name" example:"Cheese heist"`
	Targets []CreateTargetRequest `json:"targets"`
}

func (r CreateMissionRequest) toService() service.MissionCreate {
	in := service.MissionCreate{Name: r.Name, Targets: make([]service.TargetCreate, 0, len(r.Targets))}
	for _, t := range r.Targets {
		in.Targets = append(in.Targets, service.TargetCreate{Name: t.Name, Country: t.Country, Notes: t.Notes})
	}
	return in
}

type AssignCatRequest struct {
	CatID string `json:"cat_id" format:"uuid"`
}

// UpdateTargetRequest leaves absent or null fields unchanged.
type UpdateTargetRequest struct {
	Notes       *string `json:"notes,omitempty" nullable:"true"`
	IsCompleted *bool   `json:"is_completed,omitempty" nullable:"true"`
}

func (r UpdateTargetRequest) toService() service.TargetUpdate {
	return service.TargetUpdate{Notes: r.Notes, IsCompleted: r.IsCompleted}
}

// Query parameters

type pageQuery struct {
	Page    int `query:"page" default:"1" minimum:"1" doc:"1-based page number"`
	PerPage int `query:"per_page" default:"10" minimum:"1" doc:"Items per page"`
}

func (q pageQuery) toService() service.ListOptions {
	return service.ListOptions{Page: q.Page, PerPage: q.PerPage}
}
