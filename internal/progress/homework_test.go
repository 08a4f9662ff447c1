package progress

import (
	"testing"

	"arcade/progress/internal/db"
)

func TestBuildAssignmentProgressPhonicsScenario(t *testing.T) {
	students := []db.Profile{studentProfile("u1", "Amy", "Boston")}
	sessions := []db.Session{
		endedSession("u1", "phonics/short_a", "spelling_test", `{"accuracy":0.85}`),
		endedSession("u1", "phonics/short_a", "typing", `{"accuracy":0.95}`),
		endedSession("u1", "phonics/short_a", "matching", `{"accuracy":0.9}`),
	}
	rows := BuildAssignmentProgress(students, sessions, 4, AssignmentGoal{Active: true, GoalValue: 20, Category: "phonics"})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	row := rows[0]
	if row.ModesAttempted != 3 || row.ModesTotal != 4 {
		t.Fatalf("expected 3/4 modes, got %d/%d", row.ModesAttempted, row.ModesTotal)
	}
	if row.Completion != 75 {
		t.Fatalf("expected completion 75, got %d", row.Completion)
	}
	if row.Status != "In Progress" {
		t.Fatalf("expected In Progress, got %s", row.Status)
	}
}

func TestBuildAssignmentProgressMergesModeVariants(t *testing.T) {
	students := []db.Profile{studentProfile("u1", "Amy", "Boston")}
	sessions := []db.Session{
		endedSession("u1", "animals", "spelling_test", `{"accuracy":0.6}`),
		endedSession("u1", "animals", "spelling_practice", `{"accuracy":1.0}`),
	}
	rows := BuildAssignmentProgress(students, sessions, 6, AssignmentGoal{Active: true, Category: "vocab"})
	row := rows[0]
	if len(row.Modes) != 1 {
		t.Fatalf("expected spelling variants merged into one mode, got %d", len(row.Modes))
	}
	m := row.Modes[0]
	if m.Mode != "spelling" || m.BestStars != 5 || m.Sessions != 2 {
		t.Fatalf("unexpected merged mode: %+v", m)
	}
}

func TestBuildAssignmentProgressStatus(t *testing.T) {
	students := []db.Profile{studentProfile("u1", "Amy", "Boston")}
	sessions := []db.Session{endedSession("u1", "animals", "spelling", `{"accuracy":1.0}`)}

	rows := BuildAssignmentProgress(students, sessions, 6, AssignmentGoal{Active: true, GoalValue: 5, Category: "vocab"})
	if rows[0].Status != "Completed" {
		t.Fatalf("expected goal-met assignment to be Completed, got %s", rows[0].Status)
	}

	rows = BuildAssignmentProgress(students, sessions, 6, AssignmentGoal{Active: false, GoalValue: 5, Category: "vocab"})
	if rows[0].Status != "Ended" {
		t.Fatalf("expected inactive assignment to be Ended, got %s", rows[0].Status)
	}
}

func TestBuildAssignmentProgressOverallAccuracy(t *testing.T) {
	students := []db.Profile{
		studentProfile("u1", "Amy", "Boston"),
		studentProfile("u2", "Ben", "Boston"),
	}
	sessions := []db.Session{
		endedSession("u1", "animals", "spelling", `{"score":8,"total":10}`),
		endedSession("u1", "animals", "typing", `{"score":10,"total":10}`),
	}
	rows := BuildAssignmentProgress(students, sessions, 6, AssignmentGoal{Active: true, Category: "vocab"})
	if rows[0].AccuracyOverall != 90 {
		t.Fatalf("expected overall accuracy 90, got %d", rows[0].AccuracyOverall)
	}
	if rows[0].AccuracyBest != 100 {
		t.Fatalf("expected best accuracy 100, got %d", rows[0].AccuracyBest)
	}
	if rows[1].Stars != 0 || rows[1].Completion != 0 {
		t.Fatalf("expected idle student zero row, got %+v", rows[1])
	}
}
