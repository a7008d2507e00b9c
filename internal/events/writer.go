package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"spycat/internal/db"
	"spycat/internal/domain"
)

const (
	KindCat     = "cat"
	KindMission = "mission"
	KindTarget  = "target"
)

// Writer appends audit events through the connection it is bound to, which
// inside a unit of work is the scope's transaction.
type Writer struct {
	DB      db.DBTX
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?)`),
		w.Dialect.Time(now()), evtType, entityKind, nullable(entityID), string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

// Latest returns up to limit events, newest first.
func (w Writer) Latest(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := w.DB.QueryContext(ctx, w.Dialect.Rebind(`SELECT id,ts,type,entity_kind,entity_id,payload_json FROM events ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var (
			e        domain.Event
			ts       db.Time
			entityID sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.EntityKind, &entityID, &e.Payload); err != nil {
			return nil, err
		}
		e.TS = ts.Time
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
