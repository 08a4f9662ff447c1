package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arcade/progress/internal/assign"
	"arcade/progress/internal/auth"
	"arcade/progress/internal/cache"
	"arcade/progress/internal/config"
	"arcade/progress/internal/db"
	"arcade/progress/internal/match"
	"arcade/progress/internal/progress"
)

// Student detail drilldowns page wider than class-wide reads.
const (
	studentSessionBatch = 1000
	studentMaxBatches   = 500
)

type Server struct {
	cfg    config.Config
	store  *db.Store
	cache  *cache.Cache
	ledger *assign.Ledger
	modes  progress.ModeTable
	now    func() time.Time
}

func NewServer(cfg config.Config, store *db.Store, c *cache.Cache, modes progress.ModeTable) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		cache:  c,
		ledger: assign.NewLedger(store),
		modes:  modes,
		now:    time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware).HandleFunc("/api/summary", s.handleSummary)
	r.With(s.authMiddleware).HandleFunc("/api/homework", s.handleHomework)

	return r
}

// Auth

type authKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), authKey{}, auth.NewContext(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func viewerFromContext(ctx context.Context) (auth.Context, bool) {
	viewer, ok := ctx.Value(authKey{}).(auth.Context)
	return viewer, ok
}

// requireViewer loads the verified identity or writes a 401.
func (s *Server) requireViewer(w http.ResponseWriter, r *http.Request) (auth.Context, bool) {
	viewer, ok := viewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
	}
	return viewer, ok
}

// requireManager additionally gates on teacher/admin role and approval.
func (s *Server) requireManager(w http.ResponseWriter, r *http.Request) (auth.Context, bool) {
	viewer, ok := s.requireViewer(w, r)
	if !ok {
		return viewer, false
	}
	if !viewer.CanManageAssignments() {
		writeError(w, http.StatusForbidden, "forbidden")
		return viewer, false
	}
	return viewer, true
}

// Dispatch

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "classes_list":
		s.handleClassesList(w, r)
	case "leaderboard":
		s.handleLeaderboard(w, r)
	case "my_leaderboard":
		s.handleMyLeaderboard(w, r)
	case "student_details":
		s.handleStudentDetails(w, r)
	case "toggle_class_visibility":
		s.handleToggleClassVisibility(w, r)
	default:
		writeError(w, http.StatusBadRequest, "invalid_action")
	}
}

func (s *Server) handleHomework(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "create_assignment":
		s.handleCreateAssignment(w, r)
	case "create_run":
		s.handleCreateRun(w, r)
	case "get_run_token":
		s.handleGetRunToken(w, r)
	case "list_assignments":
		s.handleListAssignments(w, r)
	case "end_assignment":
		s.handleEndAssignment(w, r)
	case "assignment_progress":
		s.handleAssignmentProgress(w, r)
	case "link_sessions":
		s.handleLinkSessions(w, r)
	default:
		writeError(w, http.StatusBadRequest, "invalid_action")
	}
}

// Models

type classEntry struct {
	Name   string `json:"name"`
	Hidden bool   `json:"hidden"`
}

type classesResponse struct {
	Success  bool         `json:"success"`
	Classes  []classEntry `json:"classes"`
	CachedAt time.Time    `json:"cached_at"`
}

type leaderboardResponse struct {
	Success     bool             `json:"success"`
	Class       string           `json:"class"`
	Timeframe   string           `json:"timeframe"`
	Leaderboard []progress.Entry `json:"leaderboard"`
	Truncated   bool             `json:"truncated"`
	CachedAt    time.Time        `json:"cached_at"`
}

type shapedLeaderboardResponse struct {
	Success     bool             `json:"success"`
	Scope       string           `json:"scope"`
	Timeframe   string           `json:"timeframe"`
	Leaderboard []progress.Entry `json:"leaderboard"`
	Truncated   bool             `json:"truncated"`
	CachedAt    time.Time        `json:"cached_at"`
}

type studentRef struct {
	UserID     string  `json:"user_id"`
	Name       string  `json:"name"`
	KoreanName *string `json:"korean_name"`
	Class      string  `json:"class"`
}

type sessionsMeta struct {
	Count     int  `json:"count"`
	Truncated bool `json:"truncated"`
}

type studentDetailsResponse struct {
	Success   bool                     `json:"success"`
	Student   studentRef               `json:"student"`
	Timeframe string                   `json:"timeframe"`
	Totals    progress.StudentTotals   `json:"totals"`
	Modes     []progress.ModeStat      `json:"modes"`
	Lists     []progress.ListStat      `json:"lists"`
	Recent    []progress.RecentSession `json:"recent"`
	Sessions  sessionsMeta             `json:"sessions"`
	Truncated bool                     `json:"truncated"`
	CachedAt  time.Time                `json:"cached_at"`
}

type assignmentResponse struct {
	ID          string          `json:"id"`
	Class       string          `json:"class"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	ListKey     string          `json:"list_key"`
	ListTitle   *string         `json:"list_title"`
	ListMeta    json.RawMessage `json:"list_meta"`
	StartAt     time.Time       `json:"start_at"`
	DueAt       time.Time       `json:"due_at"`
	GoalType    string          `json:"goal_type"`
	GoalValue   int32           `json:"goal_value"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	EndedAt     *time.Time      `json:"ended_at"`
	TeacherName *string         `json:"teacher_name,omitempty"`
}

// Handlers: summary

func (s *Server) handleClassesList(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireManager(w, r); !ok {
		return
	}
	resp, err := s.computeClassesList(r.Context())
	if err != nil {
		writeStoreError(w, "classes_list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireManager(w, r); !ok {
		return
	}
	class := progress.NormalizeClassDisplay(r.URL.Query().Get("class"))
	timeframe := progress.ParseTimeframe(r.URL.Query().Get("timeframe"))
	resp, err := s.computeLeaderboard(r.Context(), class, timeframe)
	if err != nil {
		writeStoreError(w, "leaderboard_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMyLeaderboard(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	timeframe := progress.ParseTimeframe(r.URL.Query().Get("timeframe"))
	scope := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("scope")))
	if scope == "" {
		scope = "class"
	}

	var (
		class string
		topN  int
	)
	switch scope {
	case "class":
		class = viewer.Class
		if class == "" {
			writeError(w, http.StatusBadRequest, "missing_class")
			return
		}
		topN = 5
	case "global":
		topN = 15
	default:
		writeError(w, http.StatusBadRequest, "invalid_scope")
		return
	}

	full, err := s.computeLeaderboard(r.Context(), progress.NormalizeClassDisplay(class), timeframe)
	if err != nil {
		writeStoreError(w, "leaderboard_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, shapedLeaderboardResponse{
		Success:     true,
		Scope:       scope,
		Timeframe:   string(timeframe),
		Leaderboard: progress.ShapeForViewer(full.Leaderboard, topN, viewer.UserID),
		Truncated:   full.Truncated,
		CachedAt:    full.CachedAt,
	})
}

func (s *Server) handleStudentDetails(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = viewer.UserID
	}
	if _, err := uuid.Parse(userID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id")
		return
	}
	// Students may only read their own drilldown.
	if userID != viewer.UserID && !viewer.CanManageAssignments() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	timeframe := progress.ParseTimeframe(r.URL.Query().Get("timeframe"))

	resp, err := s.computeStudentDetails(r.Context(), userID, timeframe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeStoreError(w, "student_details_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggleClassVisibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	viewer, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	if !viewer.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var body struct {
		Class  string `json:"class"`
		Hidden bool   `json:"hidden"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	display := progress.NormalizeClassDisplay(body.Class)
	if display == "" {
		writeError(w, http.StatusBadRequest, "missing_class")
		return
	}
	err := s.store.UpsertClassVisibility(r.Context(), db.UpsertClassVisibilityParams{
		ClassKey:  progress.ClassKey(display),
		ClassName: display,
		Hidden:    body.Hidden,
		UpdatedBy: viewer.UserID,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			writeError(w, http.StatusInternalServerError, "visibility_unavailable")
			return
		}
		writeStoreError(w, "toggle_failed", err)
		return
	}
	s.cache.Delete(r.Context(), cache.ClassesKey())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"class":   display,
		"hidden":  body.Hidden,
	})
}

// Handlers: homework

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	viewer, ok := s.requireManager(w, r)
	if !ok {
		return
	}
	var body struct {
		Class       string          `json:"class"`
		Title       string          `json:"title"`
		Description *string         `json:"description"`
		ListKey     string          `json:"list_key"`
		ListTitle   *string         `json:"list_title"`
		ListMeta    json.RawMessage `json:"list_meta"`
		StartAt     *time.Time      `json:"start_at"`
		DueAt       *time.Time      `json:"due_at"`
		GoalType    string          `json:"goal_type"`
		GoalValue   int32           `json:"goal_value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if body.Class == "" || body.Title == "" || body.ListKey == "" || body.DueAt == nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	now := s.now()
	token := assign.NewAutoToken(now)
	meta, err := assign.InitialMeta(body.ListMeta, assign.RunToken{Token: token, CreatedAt: now, Auto: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_list_meta")
		return
	}
	startAt := now
	if body.StartAt != nil {
		startAt = *body.StartAt
	}
	goalType := body.GoalType
	if goalType == "" {
		goalType = "stars"
	}
	goalValue := body.GoalValue
	if goalValue <= 0 {
		goalValue = 5
	}
	created, err := s.store.InsertAssignment(r.Context(), db.InsertAssignmentParams{
		Class:       body.Class,
		Title:       body.Title,
		Description: body.Description,
		ListKey:     body.ListKey,
		ListTitle:   body.ListTitle,
		ListMeta:    meta,
		StartAt:     startAt,
		DueAt:       *body.DueAt,
		GoalType:    goalType,
		GoalValue:   goalValue,
		CreatedBy:   viewer.UserID,
	})
	if err != nil {
		writeStoreError(w, "create_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"assignment": mapAssignment(created),
		"run_token":  token,
	})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	if _, ok := s.requireManager(w, r); !ok {
		return
	}
	assignment, ok := s.loadAssignmentParam(w, r)
	if !ok {
		return
	}
	token, err := s.ledger.Issue(r.Context(), assignment)
	if err != nil {
		writeStoreError(w, "run_token_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"assignment_id": assignment.ID,
		"run_token":     token,
	})
}

func (s *Server) handleGetRunToken(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	assignmentID := assignmentIDParam(r)
	listKey := firstParam(r, "list_key", "listName", "list_name")
	if assignmentID == "" && listKey == "" {
		writeError(w, http.StatusBadRequest, "missing_assignment")
		return
	}

	var (
		assignment db.Assignment
		err        error
	)
	if assignmentID != "" {
		if _, perr := uuid.Parse(assignmentID); perr != nil {
			writeError(w, http.StatusBadRequest, "invalid_assignment_id")
			return
		}
		assignment, err = s.store.GetAssignment(r.Context(), assignmentID)
	} else {
		assignment, err = s.store.FindActiveAssignmentByListKey(r.Context(), viewer.Class, listKey)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "assignment_not_found")
			return
		}
		writeStoreError(w, "run_token_failed", err)
		return
	}
	// Students can only read tokens for their own class's homework.
	if viewer.IsStudent() && progress.ClassKey(viewer.Class) != progress.ClassKey(assignment.Class) {
		writeError(w, http.StatusForbidden, "not_in_class")
		return
	}

	tokens := assign.TokenStrings(assign.ParseRunTokens(assignment.ListMeta))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"assignment_id": assignment.ID,
		"tokens":        tokens,
	})
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	mode := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))
	if mode == "student" || (mode == "" && viewer.IsStudent()) {
		s.listAssignmentsForStudent(w, r, viewer)
		return
	}
	if !viewer.CanManageAssignments() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var class *string
	if v := strings.TrimSpace(r.URL.Query().Get("class")); v != "" {
		class = &v
	}
	assignments, err := s.store.ListAssignments(r.Context(), class)
	if err != nil {
		writeStoreError(w, "list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"assignments": mapAssignments(assignments),
	})
}

func (s *Server) listAssignmentsForStudent(w http.ResponseWriter, r *http.Request, viewer auth.Context) {
	class := viewer.Class
	if class == "" {
		writeError(w, http.StatusBadRequest, "missing_class")
		return
	}
	assignments, err := s.store.ListActiveAssignmentsForClass(r.Context(), class, s.now())
	if err != nil {
		writeStoreError(w, "list_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"class":        class,
		"student_name": viewer.Name,
		"assignments":  mapAssignments(assignments),
	})
}

func (s *Server) handleEndAssignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	if _, ok := s.requireManager(w, r); !ok {
		return
	}
	assignmentID := assignmentIDParam(r)
	if _, err := uuid.Parse(assignmentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_assignment_id")
		return
	}
	ended, err := s.store.EndAssignment(r.Context(), assignmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "assignment_not_found")
			return
		}
		writeStoreError(w, "end_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"assignment": mapAssignment(ended),
	})
}

func (s *Server) handleAssignmentProgress(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireManager(w, r); !ok {
		return
	}
	assignment, ok := s.loadAssignmentParam(w, r)
	if !ok {
		return
	}
	class := strings.TrimSpace(r.URL.Query().Get("class"))
	if class == "" {
		class = assignment.Class
	}

	tokens := s.ledger.EnsureTokens(r.Context(), &assignment)
	if reqToken := strings.TrimSpace(r.URL.Query().Get("run_token")); reqToken != "" {
		tokens = append([]string{reqToken}, tokens...)
	}

	category := progress.DetectCategory(assignment.ListKey, assignment.Title, deref(assignment.ListTitle))
	expected := s.modes.ExpectedModes(category, assignment.ListKey)
	if override := assign.ModesTotalOverride(assignment.ListMeta); override != nil {
		expected = *override
	}

	students, err := s.store.ListStudentsByClass(r.Context(), class)
	if err != nil {
		writeStoreError(w, "progress_failed", err)
		return
	}
	if len(students) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"assignment_id": assignment.ID,
			"class":         class,
			"category":      category,
			"modes_total":   expected,
			"match_tier":    match.TierNone,
			"progress":      []progress.StudentProgress{},
		})
		return
	}

	sessions, truncated, err := s.loadEndedSessions(r.Context(), profileIDs(students), nil)
	if err != nil {
		writeStoreError(w, "progress_failed", err)
		return
	}
	matched, tier := matchSessions(match.Assignment{
		ListKey:   assignment.ListKey,
		Title:     assignment.Title,
		ListTitle: deref(assignment.ListTitle),
		RunTokens: tokens,
	}, sessions)

	rows := progress.BuildAssignmentProgress(students, matched, expected, progress.AssignmentGoal{
		Active:    assignment.Active,
		GoalValue: int(assignment.GoalValue),
		Category:  category,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"assignment_id": assignment.ID,
		"class":         class,
		"category":      category,
		"modes_total":   expected,
		"match_tier":    tier,
		"progress":      rows,
		"truncated":     truncated,
	})
}

func (s *Server) handleLinkSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	if _, ok := s.requireManager(w, r); !ok {
		return
	}
	assignment, ok := s.loadAssignmentParam(w, r)
	if !ok {
		return
	}
	token, err := s.ledger.EnsureLinkToken(r.Context(), &assignment)
	if err != nil {
		writeStoreError(w, "link_failed", err)
		return
	}
	students, err := s.store.ListStudentsByClass(r.Context(), assignment.Class)
	if err != nil {
		writeStoreError(w, "link_failed", err)
		return
	}
	if len(students) == 0 {
		writeError(w, http.StatusBadRequest, "no_students")
		return
	}
	sessions, _, err := s.loadEndedSessions(r.Context(), profileIDs(students), nil)
	if err != nil {
		writeStoreError(w, "link_failed", err)
		return
	}
	// Fuzzy tiers only: token-linked sessions are exactly the ones that need
	// no linking, so the token tier must not shadow the rest here.
	matched, _ := matchSessions(match.Assignment{
		ListKey:   assignment.ListKey,
		Title:     assignment.Title,
		ListTitle: deref(assignment.ListTitle),
	}, sessions)
	if len(matched) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "No matching sessions found",
			"linked":  0,
		})
		return
	}

	result := s.ledger.LinkSessions(r.Context(), token, matched)
	body := map[string]any{
		"success":        true,
		"linked":         result.Linked,
		"total_found":    result.TotalFound,
		"already_linked": result.AlreadyLinked,
		"run_token":      result.RunToken,
	}
	if result.Linked == 0 && result.AlreadyLinked == result.TotalFound {
		body["message"] = "All matching sessions already linked"
	} else {
		body["message"] = "Linked sessions to assignment"
	}
	if len(result.Errors) > 0 {
		body["errors"] = result.Errors
	}
	writeJSON(w, http.StatusOK, body)
}

// Compute & warm

func (s *Server) computeClassesList(ctx context.Context) (classesResponse, error) {
	var cached classesResponse
	if s.cache.GetJSON(ctx, cache.ClassesKey(), &cached) {
		return cached, nil
	}

	raw, err := s.store.ListStudentClasses(ctx)
	if err != nil {
		return classesResponse{}, err
	}
	visibility, err := s.store.ListClassVisibility(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != "42P01" {
			return classesResponse{}, err
		}
		visibility = nil
	}
	hiddenByKey := make(map[string]bool, len(visibility))
	for _, v := range visibility {
		hiddenByKey[v.ClassKey] = v.Hidden
	}

	classes := make([]classEntry, 0)
	for _, name := range progress.SortClasses(raw) {
		classes = append(classes, classEntry{
			Name:   name,
			Hidden: hiddenByKey[progress.ClassKey(name)],
		})
	}
	resp := classesResponse{Success: true, Classes: classes, CachedAt: s.now().UTC()}
	s.cache.SetJSON(ctx, cache.ClassesKey(), resp, s.cfg.ClassListTTL)
	return resp, nil
}

// computeLeaderboard builds the full ranked board for one class (empty class
// means the global board), read through the cache.
func (s *Server) computeLeaderboard(ctx context.Context, class string, timeframe progress.Timeframe) (leaderboardResponse, error) {
	classKey := "global"
	if class != "" {
		classKey = progress.ClassKey(class)
	}
	key := cache.LeaderboardKey(classKey, string(timeframe))
	var cached leaderboardResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	all, err := s.store.ListStudents(ctx)
	if err != nil {
		return leaderboardResponse{}, err
	}
	profiles := all
	if class != "" {
		profiles = profiles[:0:0]
		for _, p := range all {
			if p.Class != nil && progress.ClassKey(*p.Class) == classKey {
				profiles = append(profiles, p)
			}
		}
	}
	if len(profiles) == 0 {
		resp := leaderboardResponse{
			Success:     true,
			Class:       class,
			Timeframe:   string(timeframe),
			Leaderboard: []progress.Entry{},
			CachedAt:    s.now().UTC(),
		}
		s.cache.SetJSON(ctx, key, resp, s.cfg.LeaderboardTTL)
		return resp, nil
	}

	userIDs := profileIDs(profiles)
	since := timeframe.Since(s.now())
	sessions, sessTruncated, err := s.loadEndedSessions(ctx, userIDs, since)
	if err != nil {
		return leaderboardResponse{}, err
	}
	attempts, attTruncated, err := db.CollectPages(ctx, s.cfg.AttemptBatchSize, s.cfg.MaxBatches,
		func(ctx context.Context, limit, offset int) ([]db.Attempt, error) {
			return s.store.ListAttemptsPage(ctx, db.ListAttemptsParams{
				UserIDs: userIDs, Since: since, Limit: limit, Offset: offset,
			})
		})
	if err != nil {
		return leaderboardResponse{}, err
	}

	resp := leaderboardResponse{
		Success:     true,
		Class:       class,
		Timeframe:   string(timeframe),
		Leaderboard: progress.BuildLeaderboard(profiles, sessions, attempts),
		Truncated:   sessTruncated || attTruncated,
		CachedAt:    s.now().UTC(),
	}
	s.cache.SetJSON(ctx, key, resp, s.cfg.LeaderboardTTL)
	return resp, nil
}

func (s *Server) computeStudentDetails(ctx context.Context, userID string, timeframe progress.Timeframe) (studentDetailsResponse, error) {
	key := cache.StudentKey(userID, string(timeframe))
	var cached studentDetailsResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return studentDetailsResponse{}, err
	}
	since := timeframe.Since(s.now())
	sessions, sessTruncated, err := db.CollectPages(ctx, studentSessionBatch, studentMaxBatches,
		func(ctx context.Context, limit, offset int) ([]db.Session, error) {
			return s.store.ListUserSessionsPage(ctx, db.ListUserSessionsParams{
				UserID: userID, Since: since, Limit: limit, Offset: offset,
			})
		})
	if err != nil {
		return studentDetailsResponse{}, err
	}
	attempts, attTruncated, err := db.CollectPages(ctx, s.cfg.AttemptBatchSize, s.cfg.MaxBatches,
		func(ctx context.Context, limit, offset int) ([]db.Attempt, error) {
			return s.store.ListUserAttemptsPage(ctx, db.ListUserAttemptsParams{
				UserID: userID, Since: since, Limit: limit, Offset: offset,
			})
		})
	if err != nil {
		return studentDetailsResponse{}, err
	}

	details := progress.BuildStudentDetails(attempts, sessions)
	class := ""
	if profile.Class != nil {
		class = progress.NormalizeClassDisplay(*profile.Class)
	}
	resp := studentDetailsResponse{
		Success: true,
		Student: studentRef{
			UserID:     profile.ID,
			Name:       profile.DisplayName(),
			KoreanName: profile.KoreanName,
			Class:      class,
		},
		Timeframe: string(timeframe),
		Totals:    details.Totals,
		Modes:     details.Modes,
		Lists:     details.Lists,
		Recent:    details.Recent,
		Sessions:  sessionsMeta{Count: len(sessions), Truncated: sessTruncated},
		Truncated: sessTruncated || attTruncated,
		CachedAt:  s.now().UTC(),
	}
	s.cache.SetJSON(ctx, key, resp, s.cfg.StudentDetailTTL)
	return resp, nil
}

// WarmSummaries refreshes the class directory and every class leaderboard
// plus the global board. Per-class failures are logged and skipped so one
// bad class cannot starve the rest.
func (s *Server) WarmSummaries(ctx context.Context) error {
	classes, err := s.computeClassesList(ctx)
	if err != nil {
		return err
	}
	if _, err := s.computeLeaderboard(ctx, "", progress.TimeframeAll); err != nil {
		log.Printf("cache warm: global leaderboard: %v", err)
	}
	for _, c := range classes.Classes {
		if _, err := s.computeLeaderboard(ctx, c.Name, progress.TimeframeAll); err != nil {
			log.Printf("cache warm: class %s: %v", c.Name, err)
		}
	}
	return nil
}

// Mapping helpers

func mapAssignment(a db.Assignment) assignmentResponse {
	meta := a.ListMeta
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}
	return assignmentResponse{
		ID:          a.ID,
		Class:       a.Class,
		Title:       a.Title,
		Description: a.Description,
		ListKey:     a.ListKey,
		ListTitle:   a.ListTitle,
		ListMeta:    meta,
		StartAt:     a.StartAt,
		DueAt:       a.DueAt,
		GoalType:    a.GoalType,
		GoalValue:   a.GoalValue,
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
		EndedAt:     a.EndedAt,
		TeacherName: a.TeacherName,
	}
}

func mapAssignments(assignments []db.Assignment) []assignmentResponse {
	out := make([]assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, mapAssignment(a))
	}
	return out
}

func (s *Server) loadAssignmentParam(w http.ResponseWriter, r *http.Request) (db.Assignment, bool) {
	assignmentID := assignmentIDParam(r)
	if _, err := uuid.Parse(assignmentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_assignment_id")
		return db.Assignment{}, false
	}
	assignment, err := s.store.GetAssignment(r.Context(), assignmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "assignment_not_found")
			return db.Assignment{}, false
		}
		writeStoreError(w, "assignment_lookup_failed", err)
		return db.Assignment{}, false
	}
	return assignment, true
}

func (s *Server) loadEndedSessions(ctx context.Context, userIDs []string, since *time.Time) ([]db.Session, bool, error) {
	return db.CollectPages(ctx, s.cfg.SessionBatchSize, s.cfg.MaxBatches,
		func(ctx context.Context, limit, offset int) ([]db.Session, error) {
			return s.store.ListEndedSessionsPage(ctx, db.ListEndedSessionsParams{
				UserIDs: userIDs, Since: since, Limit: limit, Offset: offset,
			})
		})
}

// matchSessions runs the matcher over sessions and returns the winning subset.
func matchSessions(a match.Assignment, sessions []db.Session) ([]db.Session, string) {
	candidates := make([]match.Candidate, len(sessions))
	for i, sess := range sessions {
		c := match.Candidate{RunToken: progress.ParseSummary(sess.Summary).AssignmentRun}
		if sess.ListName != nil {
			c.ListName = *sess.ListName
		}
		candidates[i] = c
	}
	indices, tier := match.Filter(a, candidates)
	matched := make([]db.Session, 0, len(indices))
	for _, i := range indices {
		matched = append(matched, sessions[i])
	}
	return matched, tier
}

func profileIDs(profiles []db.Profile) []string {
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	return ids
}

func assignmentIDParam(r *http.Request) string {
	return firstParam(r, "assignment_id", "id")
}

func firstParam(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Utilities

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"success": false, "error": code})
}

func writeStoreError(w http.ResponseWriter, code string, err error) {
	log.Printf("store error (%s): %v", code, err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   code,
		"detail":  err.Error(),
	})
}
