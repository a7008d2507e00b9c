package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"spycat/internal/dbtest"
	"spycat/internal/events"
)

func TestAppendAndLatest(t *testing.T) {
	conn, dialect := dbtest.Open(t)
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	w := events.Writer{DB: conn, Dialect: dialect, Now: func() time.Time { return clock }}
	ctx := context.Background()

	if err := w.Append(ctx, "cat.created", events.KindCat, "c1", events.EventPayload{"name": "Tom"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(ctx, "mission.deleted", events.KindMission, "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := w.Latest(ctx, 10)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != "mission.deleted" || got[0].EntityID != "" || got[0].Payload != "{}" {
		t.Fatalf("unexpected newest event %+v", got[0])
	}
	if !got[1].TS.Equal(clock) || got[1].EntityID != "c1" {
		t.Fatalf("unexpected oldest event %+v", got[1])
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(got[1].Payload), &payload); err != nil || payload["name"] != "Tom" {
		t.Fatalf("payload not preserved: %s", got[1].Payload)
	}
}
