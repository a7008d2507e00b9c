// Package seed loads YAML fixtures into the database through the services,
// so every fixture passes the same validation as an API request.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"spycat/internal/service"
)

type Fixtures struct {
	Cats     []Cat     `yaml:"cats"`
	Missions []Mission `yaml:"missions"`
}

type Cat struct {
	Name              string  `yaml:"name"`
	YearsOfExperience int     `yaml:"years_of_experience"`
	Breed             string  `yaml:"breed"`
	Salary            float64 `yaml:"salary"`
}

// Mission optionally names a cat from the same file to assign.
type Mission struct {
	Name    string   `yaml:"name"`
	Cat     string   `yaml:"cat"`
	Targets []Target `yaml:"targets"`
}

type Target struct {
	Name     string `yaml:"name"`
	Country  string `yaml:"country"`
	Notes    string `yaml:"notes"`
	Complete bool   `yaml:"complete"`
}

// Result counts what Apply created.
type Result struct {
	Cats     int `json:"cats"`
	Missions int `json:"missions"`
	Targets  int `json:"targets"`
}

// Parse decodes fixtures, rejecting unknown keys.
func Parse(r io.Reader) (Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Fixtures{}, nil
		}
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	return f, nil
}

func LoadFile(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, err
	}
	return Parse(bytes.NewReader(data))
}

// Apply creates cats, then missions with their targets. Missions naming a
// cat get it assigned and targets marked complete are completed in file
// order. Cat references are checked before anything is written; a later
// failure keeps what was created before it.
func Apply(ctx context.Context, svc service.Services, f Fixtures) (Result, error) {
	if err := f.check(); err != nil {
		return Result{}, err
	}
	var res Result
	cats := make(map[string]uuid.UUID, len(f.Cats))
	for i, c := range f.Cats {
		created, err := svc.Cats.Create(ctx, service.CatCreate{
			Name:              c.Name,
			YearsOfExperience: c.YearsOfExperience,
			Breed:             c.Breed,
			Salary:            c.Salary,
		})
		if err != nil {
			return res, fmt.Errorf("cats[%d] %q: %w", i, c.Name, err)
		}
		cats[c.Name] = created.ID
		res.Cats++
	}
	for i, m := range f.Missions {
		if err := applyMission(ctx, svc, m, cats); err != nil {
			return res, fmt.Errorf("missions[%d] %q: %w", i, m.Name, err)
		}
		res.Missions++
		res.Targets += len(m.Targets)
	}
	return res, nil
}

func (f Fixtures) check() error {
	names := make(map[string]bool, len(f.Cats))
	for i, c := range f.Cats {
		if names[c.Name] {
			return fmt.Errorf("cats[%d]: duplicate cat name %q", i, c.Name)
		}
		names[c.Name] = true
	}
	for i, m := range f.Missions {
		if m.Cat != "" && !names[m.Cat] {
			return fmt.Errorf("missions[%d] %q: unknown cat %q", i, m.Name, m.Cat)
		}
	}
	return nil
}

func applyMission(ctx context.Context, svc service.Services, m Mission, cats map[string]uuid.UUID) error {
	in := service.MissionCreate{Name: m.Name, Targets: make([]service.TargetCreate, 0, len(m.Targets))}
	for _, t := range m.Targets {
		in.Targets = append(in.Targets, service.TargetCreate{Name: t.Name, Country: t.Country, Notes: t.Notes})
	}
	created, err := svc.Missions.Create(ctx, in)
	if err != nil {
		return err
	}
	if m.Cat != "" {
		if _, err := svc.Missions.AssignCat(ctx, created.ID, cats[m.Cat]); err != nil {
			return err
		}
	}
	if !anyComplete(m.Targets) {
		return nil
	}
	detail, err := svc.Missions.Get(ctx, created.ID)
	if err != nil {
		return err
	}
	done := true
	for i, t := range m.Targets {
		if !t.Complete {
			continue
		}
		if _, err := svc.Missions.UpdateTarget(ctx, created.ID, detail.Targets[i].ID, service.TargetUpdate{IsCompleted: &done}); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
	}
	return nil
}

func anyComplete(targets []Target) bool {
	for _, t := range targets {
		if t.Complete {
			return true
		}
	}
	return false
}
