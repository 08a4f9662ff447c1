package progress

import (
	"testing"
	"time"

	"arcade/progress/internal/db"
)

func timeptr(t time.Time) *time.Time { return &t }

func TestBuildStudentDetailsTotals(t *testing.T) {
	points := 2.0
	attempts := []db.Attempt{
		{UserID: "u1", Mode: strptr("spelling"), IsCorrect: true, Points: &points},
		{UserID: "u1", Mode: strptr("spelling"), IsCorrect: false, Points: &points},
		{UserID: "u1", Mode: strptr("typing"), IsCorrect: true, Points: &points},
		{UserID: "u1", Mode: strptr("typing"), IsCorrect: true},
	}
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	sessions := []db.Session{
		{UserID: "u1", ListName: strptr("animals"), Mode: strptr("spelling"), Summary: []byte(`{"accuracy":0.85}`), StartedAt: timeptr(base), EndedAt: timeptr(base.Add(5 * time.Minute))},
		{UserID: "u1", ListName: strptr("animals"), Mode: strptr("spelling"), Summary: []byte(`{"accuracy":1.0}`), StartedAt: timeptr(base.Add(time.Hour)), EndedAt: timeptr(base.Add(65 * time.Minute))},
		{UserID: "u1", ListName: strptr("food"), Mode: strptr("typing"), Summary: []byte(`{"accuracy":0.5}`), StartedAt: timeptr(base.Add(2 * time.Hour)), EndedAt: timeptr(base.Add(125 * time.Minute))},
	}

	details := BuildStudentDetails(attempts, sessions)
	if details.Totals.Attempts != 4 || details.Totals.Correct != 3 {
		t.Fatalf("unexpected totals: %+v", details.Totals)
	}
	if details.Totals.Points != 6 {
		t.Fatalf("expected 6 points, got %v", details.Totals.Points)
	}
	// Best stars: animals/spelling 5, food/typing 0.
	if details.Totals.Stars != 5 {
		t.Fatalf("expected 5 total stars, got %d", details.Totals.Stars)
	}
	if len(details.Modes) != 2 || details.Modes[0].Total != 2 {
		t.Fatalf("unexpected mode breakdown: %+v", details.Modes)
	}
	if len(details.Lists) != 2 {
		t.Fatalf("expected 2 list-mode combinations, got %d", len(details.Lists))
	}
	if details.Lists[0].ListName != "animals" || details.Lists[0].Count != 2 || details.Lists[0].Stars != 5 {
		t.Fatalf("unexpected top list: %+v", details.Lists[0])
	}
	if details.Recent[0].ListName == nil || *details.Recent[0].ListName != "food" {
		t.Fatalf("expected recent sessions newest first, got %+v", details.Recent[0])
	}
}

func TestBuildStudentDetailsHandlesMissingFields(t *testing.T) {
	sessions := []db.Session{
		{UserID: "u1", Summary: []byte(`{}`)},
	}
	details := BuildStudentDetails(nil, sessions)
	if details.Totals.Accuracy != 0 {
		t.Fatalf("expected zero accuracy with no attempts")
	}
	if len(details.Lists) != 1 || details.Lists[0].ListName != "(Unknown List)" || details.Lists[0].Mode != "unknown" {
		t.Fatalf("expected placeholder list entry, got %+v", details.Lists)
	}
}
