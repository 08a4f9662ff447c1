package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arcade/progress/internal/auth"
	"arcade/progress/internal/cache"
	"arcade/progress/internal/config"
	"arcade/progress/internal/db"
	"arcade/progress/internal/match"
	"arcade/progress/internal/progress"
)

func testServer() *Server {
	cfg := config.Config{JWTSecret: "test-secret", JWTIssuer: "arcade-auth"}
	return NewServer(cfg, db.NewStore(nil), cache.New(nil), progress.DefaultModeTable())
}

func signToken(t *testing.T, claims auth.Claims) string {
	t.Helper()
	token, err := auth.NewAccessToken("test-secret", "arcade-auth", time.Hour, claims)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(s *Server, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Success {
		t.Fatalf("expected success=false, body %s", rec.Body.String())
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	rec := doRequest(testServer(), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRejections(t *testing.T) {
	s := testServer()

	rec := doRequest(s, http.MethodGet, "/api/summary?action=classes_list", "", "")
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "missing_token" {
		t.Fatalf("expected missing_token 401, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/summary?action=classes_list", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "invalid_token" {
		t.Fatalf("expected invalid_token 401, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRoleGates(t *testing.T) {
	s := testServer()
	student := signToken(t, auth.Claims{UserID: "8d5c6d20-0000-0000-0000-000000000001", Role: "student", Approved: true, Class: "Boston"})
	unapproved := signToken(t, auth.Claims{UserID: "8d5c6d20-0000-0000-0000-000000000002", Role: "teacher", Approved: false})

	cases := map[string]string{
		"student on classes_list":        "/api/summary?action=classes_list",
		"student on leaderboard":         "/api/summary?action=leaderboard",
		"student on assignment_progress": "/api/homework?action=assignment_progress",
	}
	for name, target := range cases {
		rec := doRequest(s, http.MethodGet, target, student, "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", name, rec.Code)
		}
	}

	rec := doRequest(s, http.MethodGet, "/api/summary?action=classes_list", unapproved, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected unapproved teacher rejected, got %d", rec.Code)
	}

	rec = doRequest(s, http.MethodPost, "/api/summary?action=toggle_class_visibility", student, `{"class":"Boston","hidden":true}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected non-admin toggle rejected, got %d", rec.Code)
	}
}

func TestDispatchValidation(t *testing.T) {
	s := testServer()
	teacher := signToken(t, auth.Claims{UserID: "8d5c6d20-0000-0000-0000-000000000003", Role: "teacher", Approved: true})

	rec := doRequest(s, http.MethodGet, "/api/summary?action=nope", teacher, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_action" {
		t.Fatalf("expected invalid_action, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/summary?action=toggle_class_visibility", teacher, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET toggle, got %d", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/homework?action=assignment_progress", teacher, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_assignment_id" {
		t.Fatalf("expected invalid_assignment_id, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/homework?action=get_run_token", teacher, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "missing_assignment" {
		t.Fatalf("expected missing_assignment, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/homework?action=get_run_token&assignment_id=not-a-uuid", teacher, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_assignment_id" {
		t.Fatalf("expected invalid_assignment_id, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/summary?action=student_details&user_id=abc", teacher, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_user_id" {
		t.Fatalf("expected invalid_user_id, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestStudentDetailsOwnershipGate(t *testing.T) {
	s := testServer()
	student := signToken(t, auth.Claims{UserID: "8d5c6d20-0000-0000-0000-000000000001", Role: "student", Approved: true, Class: "Boston"})

	rec := doRequest(s, http.MethodGet, "/api/summary?action=student_details&user_id=8d5c6d20-0000-0000-0000-000000000099", student, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected students blocked from other drilldowns, got %d", rec.Code)
	}
}

func TestMyLeaderboardScopeValidation(t *testing.T) {
	s := testServer()
	noClass := signToken(t, auth.Claims{UserID: "8d5c6d20-0000-0000-0000-000000000004", Role: "student", Approved: true})

	rec := doRequest(s, http.MethodGet, "/api/summary?action=my_leaderboard", noClass, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "missing_class" {
		t.Fatalf("expected missing_class, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/summary?action=my_leaderboard&scope=galaxy", noClass, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_scope" {
		t.Fatalf("expected invalid_scope, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc": "abc",
		"bearer abc": "abc",
		"Basic abc":  "",
		"abc":        "",
		"":           "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("header %q: expected %q, got %q", header, want, got)
		}
	}
}

func TestFirstParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/homework?id=a1&list_key=foo", nil)
	if got := firstParam(req, "assignment_id", "id"); got != "a1" {
		t.Fatalf("expected fallback to id, got %q", got)
	}
	if got := firstParam(req, "missing"); got != "" {
		t.Fatalf("expected empty for absent params, got %q", got)
	}
}

func TestMatchSessionsMapsCandidates(t *testing.T) {
	list := "animals.json"
	other := "food.json"
	sessions := []db.Session{
		{ID: "s1", ListName: &list, Summary: []byte(`{"assignment_run":"run_x"}`)},
		{ID: "s2", ListName: &other},
		{ID: "s3"},
	}
	matched, tier := matchSessions(match.Assignment{ListKey: "word-lists/animals.json", RunTokens: []string{"run_x"}}, sessions)
	if tier != match.TierRunToken || len(matched) != 1 || matched[0].ID != "s1" {
		t.Fatalf("expected token-linked session, got %v via %q", matched, tier)
	}

	matched, tier = matchSessions(match.Assignment{ListKey: "word-lists/animals.json"}, sessions)
	if tier != match.TierExact || len(matched) != 1 || matched[0].ID != "s1" {
		t.Fatalf("expected exact match, got %v via %q", matched, tier)
	}
}

func TestMapAssignmentDefaultsMeta(t *testing.T) {
	mapped := mapAssignment(db.Assignment{ID: "a1"})
	if string(mapped.ListMeta) != "{}" {
		t.Fatalf("expected empty meta to map to {}, got %s", mapped.ListMeta)
	}
}
