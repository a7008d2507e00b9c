package domain

import (
	"time"

	"github.com/google/uuid"
)

type Cat struct {
	ID                uuid.UUID `json:"id" format:"uuid"`
	Name              string    `json:"name"`
	YearsOfExperience int       `json:"years_of_experience"`
	Breed             string    `json:"breed"`
	Salary            float64   `json:"salary"`
	CreatedAt         time.Time `json:"created_at" format:"date-time"`
	UpdatedAt         time.Time `json:"updated_at" format:"date-time"`
}

// Mission serialises without targets. Targets is only populated when eagerly
// loaded; use Detail to expose them.
type Mission struct {
	ID        uuid.UUID  `json:"id" format:"uuid"`
	Name      string     `json:"name"`
	CatID     *uuid.UUID `json:"cat_id" format:"uuid"`
	Complete  bool       `json:"complete"`
	CreatedAt time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt time.Time  `json:"updated_at" format:"date-time"`
	Targets   []Target   `json:"-"`
}

type MissionWithTargets struct {
	Mission
	Targets []Target `json:"targets"`
}

func (m Mission) Detail() MissionWithTargets {
	targets := m.Targets
	if targets == nil {
		targets = []Target{}
	}
	return MissionWithTargets{Mission: m, Targets: targets}
}

type Target struct {
	ID        uuid.UUID `json:"id" format:"uuid"`
	MissionID uuid.UUID `json:"mission_id" format:"uuid"`
	Name      string    `json:"name"`
	Country   string    `json:"country"`
	Notes     string    `json:"notes"`
	Complete  bool      `json:"complete"`
	Position  int       `json:"-"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
	UpdatedAt time.Time `json:"updated_at" format:"date-time"`
}

// AllTargetsComplete reports whether every target is complete. A mission
// without targets is never complete.
func (m Mission) AllTargetsComplete() bool {
	if len(m.Targets) == 0 {
		return false
	}
	for _, t := range m.Targets {
		if !t.Complete {
			return false
		}
	}
	return true
}

type Event struct {
	ID         int64     `json:"id"`
	TS         time.Time `json:"ts" format:"date-time"`
	Type       string    `json:"type"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id,omitempty"`
	Payload    string    `json:"payload_json"`
}
