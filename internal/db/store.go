package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, databaseURL)
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// Profiles

func (s *Store) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	row := s.Pool.QueryRow(ctx, `
		SELECT id::text, name, username, korean_name, class, role, COALESCE(approved, false)
		FROM profiles
		WHERE id = $1
	`, userID)
	err := row.Scan(&p.ID, &p.Name, &p.Username, &p.KoreanName, &p.Class, &p.Role, &p.Approved)
	return p, err
}

func (s *Store) ListStudentsByClass(ctx context.Context, class string) ([]Profile, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text, name, username, korean_name, class, role, COALESCE(approved, false)
		FROM profiles
		WHERE role = 'student' AND COALESCE(approved, false) = true AND class = $1
		ORDER BY name
	`, class)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func (s *Store) ListStudents(ctx context.Context) ([]Profile, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text, name, username, korean_name, class, role, COALESCE(approved, false)
		FROM profiles
		WHERE role = 'student' AND COALESCE(approved, false) = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func (s *Store) ListStudentClasses(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT DISTINCT TRIM(class)
		FROM profiles
		WHERE role = 'student' AND class IS NOT NULL AND TRIM(class) <> ''
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var classes []string
	for rows.Next() {
		var class string
		if err := rows.Scan(&class); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, rows.Err()
}

func scanProfiles(rows pgx.Rows) ([]Profile, error) {
	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Username, &p.KoreanName, &p.Class, &p.Role, &p.Approved); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Class visibility

type UpsertClassVisibilityParams struct {
	ClassKey  string
	ClassName string
	Hidden    bool
	UpdatedBy string
}

func (s *Store) UpsertClassVisibility(ctx context.Context, params UpsertClassVisibilityParams) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO class_visibility (class_key, class_name, hidden, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (class_key)
		DO UPDATE SET class_name = EXCLUDED.class_name, hidden = EXCLUDED.hidden,
			updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`, params.ClassKey, params.ClassName, params.Hidden, params.UpdatedBy, time.Now().UTC())
	return err
}

func (s *Store) ListClassVisibility(ctx context.Context) ([]ClassVisibility, error) {
	rows, err := s.Pool.Query(ctx, `SELECT class_key, class_name, COALESCE(hidden, false) FROM class_visibility`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClassVisibility
	for rows.Next() {
		var v ClassVisibility
		if err := rows.Scan(&v.ClassKey, &v.ClassName, &v.Hidden); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Sessions

type ListEndedSessionsParams struct {
	UserIDs []string
	Since   *time.Time
	Limit   int
	Offset  int
}

// ListEndedSessionsPage returns one page of ended sessions for the given
// users, oldest first. Callers page via CollectPages.
func (s *Store) ListEndedSessionsPage(ctx context.Context, params ListEndedSessionsParams) ([]Session, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text, user_id::text, list_name, mode, summary, list_size, started_at, ended_at
		FROM progress_sessions
		WHERE user_id = ANY($1::uuid[])
		  AND ended_at IS NOT NULL
		  AND ($2::timestamptz IS NULL OR ended_at >= $2)
		ORDER BY ended_at ASC
		LIMIT $3 OFFSET $4
	`, params.UserIDs, params.Since, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

type ListUserSessionsParams struct {
	UserID string
	Since  *time.Time
	Limit  int
	Offset int
}

func (s *Store) ListUserSessionsPage(ctx context.Context, params ListUserSessionsParams) ([]Session, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text, user_id::text, list_name, mode, summary, list_size, started_at, ended_at
		FROM progress_sessions
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR started_at >= $2)
		ORDER BY started_at ASC
		LIMIT $3 OFFSET $4
	`, params.UserID, params.Since, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) UpdateSessionSummary(ctx context.Context, sessionID string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE progress_sessions SET summary = $2 WHERE id = $1`, sessionID, summary)
	return err
}

func scanSessions(rows pgx.Rows) ([]Session, error) {
	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.ListName, &sess.Mode, &sess.Summary, &sess.ListSize, &sess.StartedAt, &sess.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Attempts

type ListAttemptsParams struct {
	UserIDs []string
	Since   *time.Time
	Limit   int
	Offset  int
}

func (s *Store) ListAttemptsPage(ctx context.Context, params ListAttemptsParams) ([]Attempt, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT user_id::text, mode, COALESCE(is_correct, false), points
		FROM progress_attempts
		WHERE user_id = ANY($1::uuid[])
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`, params.UserIDs, params.Since, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

type ListUserAttemptsParams struct {
	UserID string
	Since  *time.Time
	Limit  int
	Offset int
}

func (s *Store) ListUserAttemptsPage(ctx context.Context, params ListUserAttemptsParams) ([]Attempt, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT user_id::text, mode, COALESCE(is_correct, false), points
		FROM progress_attempts
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`, params.UserID, params.Since, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func scanAttempts(rows pgx.Rows) ([]Attempt, error) {
	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.UserID, &a.Mode, &a.IsCorrect, &a.Points); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Assignments

const assignmentColumns = `
	id::text, class, title, description, list_key, list_title, list_meta,
	start_at, due_at, goal_type, goal_value, COALESCE(active, false),
	created_by::text, created_at, ended_at
`

func (s *Store) GetAssignment(ctx context.Context, assignmentID string) (Assignment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM homework_assignments
		WHERE id = $1
	`, assignmentID)
	return scanAssignment(row)
}

type InsertAssignmentParams struct {
	Class       string
	Title       string
	Description *string
	ListKey     string
	ListTitle   *string
	ListMeta    []byte
	StartAt     time.Time
	DueAt       time.Time
	GoalType    string
	GoalValue   int32
	CreatedBy   string
}

func (s *Store) InsertAssignment(ctx context.Context, params InsertAssignmentParams) (Assignment, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO homework_assignments
			(class, title, description, list_key, list_title, list_meta,
			 start_at, due_at, goal_type, goal_value, active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true, $11, $12)
		RETURNING `+assignmentColumns+`
	`, params.Class, params.Title, params.Description, params.ListKey, params.ListTitle,
		params.ListMeta, params.StartAt, params.DueAt, params.GoalType, params.GoalValue,
		params.CreatedBy, time.Now().UTC())
	return scanAssignment(row)
}

func (s *Store) UpdateAssignmentMeta(ctx context.Context, assignmentID string, listMeta []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE homework_assignments SET list_meta = $2 WHERE id = $1`, assignmentID, listMeta)
	return err
}

func (s *Store) EndAssignment(ctx context.Context, assignmentID string) (Assignment, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE homework_assignments
		SET active = false, ended_at = $2
		WHERE id = $1
		RETURNING `+assignmentColumns+`
	`, assignmentID, time.Now().UTC())
	return scanAssignment(row)
}

func (s *Store) ListAssignments(ctx context.Context, class *string) ([]Assignment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM homework_assignments
		WHERE ($1::text IS NULL OR class = $1)
		ORDER BY created_at DESC
	`, class)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// ListActiveAssignmentsForClass returns the student-facing homework view:
// active, already started, soonest due first, with the assigning teacher's name.
func (s *Store) ListActiveAssignmentsForClass(ctx context.Context, class string, now time.Time) ([]Assignment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT a.id::text, a.class, a.title, a.description, a.list_key, a.list_title, a.list_meta,
			a.start_at, a.due_at, a.goal_type, a.goal_value, COALESCE(a.active, false),
			a.created_by::text, a.created_at, a.ended_at, p.name
		FROM homework_assignments a
		LEFT JOIN profiles p ON p.id = a.created_by
		WHERE a.class = $1 AND a.active = true AND a.start_at <= $2
		ORDER BY a.due_at ASC
	`, class, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.Class, &a.Title, &a.Description, &a.ListKey, &a.ListTitle,
			&a.ListMeta, &a.StartAt, &a.DueAt, &a.GoalType, &a.GoalValue, &a.Active,
			&a.CreatedBy, &a.CreatedAt, &a.EndedAt, &a.TeacherName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindActiveAssignmentByListKey locates the newest active assignment for a
// class whose list_key contains the given fragment.
func (s *Store) FindActiveAssignmentByListKey(ctx context.Context, class, listKeyFragment string) (Assignment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM homework_assignments
		WHERE class = $1 AND active = true AND list_key ILIKE '%' || $2 || '%'
		ORDER BY created_at DESC
		LIMIT 1
	`, class, listKeyFragment)
	return scanAssignment(row)
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.Class, &a.Title, &a.Description, &a.ListKey, &a.ListTitle,
		&a.ListMeta, &a.StartAt, &a.DueAt, &a.GoalType, &a.GoalValue, &a.Active,
		&a.CreatedBy, &a.CreatedAt, &a.EndedAt)
	return a, err
}

func scanAssignments(rows pgx.Rows) ([]Assignment, error) {
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
