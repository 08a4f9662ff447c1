package progress

import (
	"sort"

	"arcade/progress/internal/db"
)

type ModeProgress struct {
	Mode         string `json:"mode"`
	BestStars    int    `json:"bestStars"`
	BestAccuracy int    `json:"bestAccuracy"`
	Sessions     int    `json:"sessions"`
}

type StudentProgress struct {
	UserID          string         `json:"user_id"`
	Name            string         `json:"name"`
	KoreanName      *string        `json:"korean_name"`
	Stars           int            `json:"stars"`
	AccuracyBest    int            `json:"accuracy_best"`
	AccuracyOverall int            `json:"accuracy_overall"`
	Completion      int            `json:"completion"`
	ModesAttempted  int            `json:"modes_attempted"`
	ModesTotal      int            `json:"modes_total"`
	Modes           []ModeProgress `json:"modes"`
	Status          string         `json:"status"`
	Category        string         `json:"category"`
}

type AssignmentGoal struct {
	Active    bool
	GoalValue int
	Category  string
}

// BuildAssignmentProgress folds matched sessions into one per-student row
// against the expected mode count. Students without sessions still appear.
func BuildAssignmentProgress(students []db.Profile, sessions []db.Session, expectedModes int, goal AssignmentGoal) []StudentProgress {
	type studentAcc struct {
		modes map[string]*ModeProgress
		score float64
		total float64
	}
	byStudent := make(map[string]*studentAcc, len(students))
	for _, st := range students {
		byStudent[st.ID] = &studentAcc{modes: make(map[string]*ModeProgress)}
	}

	for _, sess := range sessions {
		acc := byStudent[sess.UserID]
		if acc == nil {
			continue
		}
		summary := ParseSummary(sess.Summary)
		stars := DeriveStars(summary)
		rawMode := "unknown"
		if sess.Mode != nil && *sess.Mode != "" {
			rawMode = *sess.Mode
		}
		modeKey := NormalizeModeName(rawMode)
		if summary.Score != nil && summary.Total != nil && *summary.Total > 0 {
			acc.score += *summary.Score
			acc.total += *summary.Total
		} else if summary.Correct != nil && summary.Total != nil && *summary.Total > 0 {
			acc.score += *summary.Correct
			acc.total += *summary.Total
		}
		accuracy := summary.AccuracyPercent()
		prev := acc.modes[modeKey]
		if prev == nil {
			acc.modes[modeKey] = &ModeProgress{Mode: modeKey, BestStars: stars, BestAccuracy: accuracy, Sessions: 1}
			continue
		}
		if stars > prev.BestStars {
			prev.BestStars = stars
		}
		if accuracy > prev.BestAccuracy {
			prev.BestAccuracy = accuracy
		}
		prev.Sessions++
	}

	goalValue := goal.GoalValue
	if goalValue <= 0 {
		goalValue = 5
	}

	rows := make([]StudentProgress, 0, len(students))
	for _, st := range students {
		acc := byStudent[st.ID]
		modes := make([]ModeProgress, 0, len(acc.modes))
		for _, m := range acc.modes {
			modes = append(modes, *m)
		}
		sort.Slice(modes, func(i, j int) bool { return modes[i].Mode < modes[j].Mode })

		starsEarned := 0
		bestAccuracy := 0
		attempted := 0
		for _, m := range modes {
			starsEarned += m.BestStars
			if m.BestAccuracy > bestAccuracy {
				bestAccuracy = m.BestAccuracy
			}
			if CountsTowardCompletion(m.Mode, m.BestStars) {
				attempted++
			}
		}
		overall := 0
		if acc.total > 0 {
			overall = roundPercent(acc.score / acc.total)
		}
		completion := CompletionPercent(attempted, expectedModes)

		status := "Ended"
		if goal.Active {
			if completion >= 100 || starsEarned >= goalValue {
				status = "Completed"
			} else {
				status = "In Progress"
			}
		}

		rows = append(rows, StudentProgress{
			UserID:          st.ID,
			Name:            st.DisplayName(),
			KoreanName:      st.KoreanName,
			Stars:           starsEarned,
			AccuracyBest:    bestAccuracy,
			AccuracyOverall: overall,
			Completion:      completion,
			ModesAttempted:  attempted,
			ModesTotal:      expectedModes,
			Modes:           modes,
			Status:          status,
			Category:        goal.Category,
		})
	}
	return rows
}
