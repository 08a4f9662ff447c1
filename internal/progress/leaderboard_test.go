package progress

import (
	"testing"

	"arcade/progress/internal/db"
)

func strptr(s string) *string { return &s }

func studentProfile(id, name, class string) db.Profile {
	return db.Profile{ID: id, Name: strptr(name), Class: strptr(class), Role: "student", Approved: true}
}

func endedSession(userID, list, mode, summary string) db.Session {
	return db.Session{UserID: userID, ListName: strptr(list), Mode: strptr(mode), Summary: []byte(summary)}
}

func TestBestStarsKeepsMaxPerGroup(t *testing.T) {
	profiles := []db.Profile{studentProfile("u1", "Amy", "Boston")}
	forward := []db.Session{
		endedSession("u1", "animals", "spelling", `{"accuracy":0.6}`),
		endedSession("u1", "animals", "spelling", `{"accuracy":0.97}`),
	}
	backward := []db.Session{forward[1], forward[0]}

	a := BuildLeaderboard(profiles, forward, nil)
	b := BuildLeaderboard(profiles, backward, nil)
	if a[0].Stars != 4 || b[0].Stars != 4 {
		t.Fatalf("expected best stars 4 regardless of order, got %d and %d", a[0].Stars, b[0].Stars)
	}
}

func TestBestStarsSkipsAbandonedAndZeroStar(t *testing.T) {
	profiles := []db.Profile{studentProfile("u1", "Amy", "Boston")}
	sessions := []db.Session{
		endedSession("u1", "animals", "spelling", `{"accuracy":1.0,"completed":false}`),
		endedSession("u1", "animals", "spelling", `{"accuracy":0.2}`),
		endedSession("u1", "food", "matching", `{"accuracy":0.92}`),
	}
	entries := BuildLeaderboard(profiles, sessions, nil)
	if entries[0].Stars != 3 {
		t.Fatalf("expected only the food session to count, got %d stars", entries[0].Stars)
	}
}

func TestBuildLeaderboardAggregatesDifferentGroups(t *testing.T) {
	profiles := []db.Profile{studentProfile("u1", "Amy", "Boston")}
	sessions := []db.Session{
		endedSession("u1", "animals", "spelling", `{"accuracy":0.85}`),
		endedSession("u1", "animals", "typing", `{"accuracy":1.0}`),
		endedSession("u1", "food", "spelling", `{"accuracy":0.65}`),
	}
	entries := BuildLeaderboard(profiles, sessions, nil)
	if entries[0].Stars != 2+5+1 {
		t.Fatalf("expected per-group bests to sum to 8, got %d", entries[0].Stars)
	}
}

func TestRankingDeterministicWithTies(t *testing.T) {
	points := 10.0
	profiles := []db.Profile{
		studentProfile("u3", "Cara", "Boston"),
		studentProfile("u1", "Amy", "Boston"),
		studentProfile("u2", "Ben", "Boston"),
	}
	attempts := []db.Attempt{
		{UserID: "u1", IsCorrect: true, Points: &points},
		{UserID: "u2", IsCorrect: true, Points: &points},
		{UserID: "u3", IsCorrect: true, Points: &points},
	}
	entries := BuildLeaderboard(profiles, nil, attempts)

	wantOrder := []string{"Amy", "Ben", "Cara"}
	for i, want := range wantOrder {
		if entries[i].Name != want {
			t.Fatalf("expected position %d to be %s, got %s", i, want, entries[i].Name)
		}
		if entries[i].Rank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, entries[i].Rank)
		}
	}
}

func TestZeroActivityStudentsRankLast(t *testing.T) {
	profiles := []db.Profile{
		studentProfile("u1", "Amy", "Boston"),
		studentProfile("u2", "Ben", "Boston"),
		studentProfile("u3", "Cara", "Boston"),
	}
	sessions := []db.Session{endedSession("u2", "animals", "spelling", `{"accuracy":1.0}`)}
	entries := BuildLeaderboard(profiles, sessions, nil)
	if len(entries) != 3 {
		t.Fatalf("expected all students present, got %d", len(entries))
	}
	if entries[0].Name != "Ben" || entries[0].Rank != 1 {
		t.Fatalf("expected Ben ranked first, got %s rank %d", entries[0].Name, entries[0].Rank)
	}
	if entries[1].Name != "Amy" || entries[2].Name != "Cara" {
		t.Fatalf("expected zero-activity students tie-broken by name, got %s then %s", entries[1].Name, entries[2].Name)
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Fatalf("expected strictly sequential ranks, got %d at %d", e.Rank, i)
		}
	}
}

func TestAttemptAggregation(t *testing.T) {
	p1, p2 := 3.0, 5.0
	profiles := []db.Profile{studentProfile("u1", "Amy", "Boston")}
	attempts := []db.Attempt{
		{UserID: "u1", IsCorrect: true, Points: &p1},
		{UserID: "u1", IsCorrect: false, Points: &p2},
		{UserID: "u1", IsCorrect: true},
	}
	entries := BuildLeaderboard(profiles, nil, attempts)
	e := entries[0]
	if e.Attempts != 3 || e.Points != 8 {
		t.Fatalf("unexpected attempt totals: %+v", e)
	}
	if e.Accuracy != 67 {
		t.Fatalf("expected accuracy 67, got %d", e.Accuracy)
	}
}

func TestShapeForViewer(t *testing.T) {
	entries := make([]Entry, 0, 10)
	for i := 0; i < 10; i++ {
		entries = append(entries, Entry{UserID: string(rune('a' + i)), Rank: i + 1})
	}

	shaped := ShapeForViewer(entries, 5, "h")
	if len(shaped) != 6 {
		t.Fatalf("expected top 5 plus viewer, got %d rows", len(shaped))
	}
	if shaped[5].UserID != "h" || shaped[5].Rank != 8 {
		t.Fatalf("expected viewer row to keep rank 8, got %+v", shaped[5])
	}

	shaped = ShapeForViewer(entries, 5, "c")
	if len(shaped) != 5 {
		t.Fatalf("expected viewer inside top rows to not duplicate, got %d", len(shaped))
	}

	shaped = ShapeForViewer(entries[:3], 5, "zz")
	if len(shaped) != 3 {
		t.Fatalf("expected small boards returned whole, got %d", len(shaped))
	}
}
