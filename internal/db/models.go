package db

import "time"

type Profile struct {
	ID         string
	Name       *string
	Username   *string
	KoreanName *string
	Class      *string
	Role       string
	Approved   bool
}

// DisplayName mirrors the fallback chain used across the dashboards.
func (p Profile) DisplayName() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	if p.Username != nil && *p.Username != "" {
		return *p.Username
	}
	return "Unknown"
}

type Session struct {
	ID        string
	UserID    string
	ListName  *string
	Mode      *string
	Summary   []byte
	ListSize  *int32
	StartedAt *time.Time
	EndedAt   *time.Time
}

type Attempt struct {
	UserID    string
	Mode      *string
	IsCorrect bool
	Points    *float64
}

type Assignment struct {
	ID          string
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
	Active      bool
	CreatedBy   *string
	CreatedAt   time.Time
	EndedAt     *time.Time

	// TeacherName is populated only by the student-facing listing join.
	TeacherName *string
}

type ClassVisibility struct {
	ClassKey  string
	ClassName string
	Hidden    bool
}
