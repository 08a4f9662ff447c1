package progress

import (
	"sort"
	"strings"
	"time"

	"arcade/progress/internal/db"
)

type StudentTotals struct {
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy int     `json:"accuracy"`
	Points   float64 `json:"points"`
	Stars    int     `json:"stars"`
}

type ModeStat struct {
	Mode     string `json:"mode"`
	Total    int    `json:"total"`
	Correct  int    `json:"correct"`
	Accuracy int    `json:"accuracy"`
}

type ListStat struct {
	ListName   string     `json:"list_name"`
	Mode       string     `json:"mode"`
	ListSize   *int32     `json:"list_size"`
	Count      int        `json:"count"`
	LastPlayed *time.Time `json:"last_played"`
	Stars      int        `json:"stars"`
}

type RecentSession struct {
	Mode      string     `json:"mode"`
	ListName  *string    `json:"list_name"`
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	ListSize  *int32     `json:"list_size"`
}

type StudentDetails struct {
	Totals StudentTotals
	Modes  []ModeStat
	Lists  []ListStat
	Recent []RecentSession
}

// BuildStudentDetails produces the per-student drilldown: attempt totals and
// per-mode accuracy, list-mode play history with best stars, and recent
// sessions newest first.
func BuildStudentDetails(attempts []db.Attempt, sessions []db.Session) StudentDetails {
	var details StudentDetails

	byMode := make(map[string]*ModeStat)
	for _, a := range attempts {
		details.Totals.Attempts++
		if a.IsCorrect {
			details.Totals.Correct++
		}
		if a.Points != nil {
			details.Totals.Points += *a.Points
		}
		mode := "unknown"
		if a.Mode != nil && *a.Mode != "" {
			mode = *a.Mode
		}
		stat := byMode[mode]
		if stat == nil {
			stat = &ModeStat{Mode: mode}
			byMode[mode] = stat
		}
		stat.Total++
		if a.IsCorrect {
			stat.Correct++
		}
	}
	if details.Totals.Attempts > 0 {
		details.Totals.Accuracy = roundPercent(float64(details.Totals.Correct) / float64(details.Totals.Attempts))
	}
	for _, stat := range byMode {
		if stat.Total > 0 {
			stat.Accuracy = roundPercent(float64(stat.Correct) / float64(stat.Total))
		}
		details.Modes = append(details.Modes, *stat)
	}
	sort.Slice(details.Modes, func(i, j int) bool {
		if details.Modes[i].Total != details.Modes[j].Total {
			return details.Modes[i].Total > details.Modes[j].Total
		}
		return details.Modes[i].Mode < details.Modes[j].Mode
	})

	lists := make(map[string]*ListStat)
	var order []string
	bestStars := make(map[string]int)
	for _, sess := range sessions {
		listName := "(Unknown List)"
		if sess.ListName != nil && strings.TrimSpace(*sess.ListName) != "" {
			listName = strings.TrimSpace(*sess.ListName)
		}
		mode := "unknown"
		if sess.Mode != nil && strings.TrimSpace(*sess.Mode) != "" {
			mode = strings.TrimSpace(*sess.Mode)
		}
		key := listName + "\x01" + mode
		ts := sess.EndedAt
		if ts == nil {
			ts = sess.StartedAt
		}
		stat := lists[key]
		if stat == nil {
			stat = &ListStat{ListName: listName, Mode: mode, ListSize: sess.ListSize, LastPlayed: ts}
			lists[key] = stat
			order = append(order, key)
		}
		stat.Count++
		if ts != nil && (stat.LastPlayed == nil || ts.After(*stat.LastPlayed)) {
			stat.LastPlayed = ts
		}
		stars := DeriveStars(ParseSummary(sess.Summary))
		if stars > 0 {
			if stars > stat.Stars {
				stat.Stars = stars
			}
			if stars > bestStars[key] {
				bestStars[key] = stars
			}
		}

		details.Recent = append(details.Recent, RecentSession{
			Mode:      mode,
			ListName:  sess.ListName,
			StartedAt: sess.StartedAt,
			EndedAt:   sess.EndedAt,
			ListSize:  sess.ListSize,
		})
	}
	for _, stars := range bestStars {
		details.Totals.Stars += stars
	}
	for _, key := range order {
		details.Lists = append(details.Lists, *lists[key])
	}
	sort.SliceStable(details.Lists, func(i, j int) bool {
		if details.Lists[i].Count != details.Lists[j].Count {
			return details.Lists[i].Count > details.Lists[j].Count
		}
		return laterTime(details.Lists[i].LastPlayed, details.Lists[j].LastPlayed)
	})
	sort.SliceStable(details.Recent, func(i, j int) bool {
		return laterTime(sessionTime(details.Recent[i]), sessionTime(details.Recent[j]))
	})
	return details
}

func sessionTime(s RecentSession) *time.Time {
	if s.EndedAt != nil {
		return s.EndedAt
	}
	return s.StartedAt
}

func laterTime(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
