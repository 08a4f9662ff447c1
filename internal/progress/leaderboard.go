package progress

import (
	"sort"
	"strings"

	"arcade/progress/internal/db"
)

type Entry struct {
	UserID     string  `json:"user_id"`
	Name       string  `json:"name"`
	KoreanName *string `json:"korean_name"`
	Class      string  `json:"class"`
	Stars      int     `json:"stars"`
	Points     float64 `json:"points"`
	Accuracy   int     `json:"accuracy"`
	Attempts   int     `json:"attempts"`
	Rank       int     `json:"rank"`
}

type attemptStats struct {
	points  float64
	total   int
	correct int
}

// BuildLeaderboard aggregates sessions and attempts into one ranked entry per
// profile. Zero-activity students get zero rows rather than being dropped.
func BuildLeaderboard(profiles []db.Profile, sessions []db.Session, attempts []db.Attempt) []Entry {
	stats := make(map[string]*attemptStats)
	for _, a := range attempts {
		if a.UserID == "" {
			continue
		}
		st := stats[a.UserID]
		if st == nil {
			st = &attemptStats{}
			stats[a.UserID] = st
		}
		st.total++
		if a.IsCorrect {
			st.correct++
		}
		if a.Points != nil {
			st.points += *a.Points
		}
	}

	starsByUser := bestStarsByUser(sessions)

	entries := make([]Entry, 0, len(profiles))
	for _, p := range profiles {
		st := stats[p.ID]
		if st == nil {
			st = &attemptStats{}
		}
		totalStars := 0
		for _, stars := range starsByUser[p.ID] {
			totalStars += stars
		}
		accuracy := 0
		if st.total > 0 {
			accuracy = roundPercent(float64(st.correct) / float64(st.total))
		}
		class := ""
		if p.Class != nil {
			class = NormalizeClassDisplay(*p.Class)
		}
		entries = append(entries, Entry{
			UserID:     p.ID,
			Name:       p.DisplayName(),
			KoreanName: p.KoreanName,
			Class:      class,
			Stars:      totalStars,
			Points:     st.points,
			Accuracy:   accuracy,
			Attempts:   st.total,
		})
	}

	RankEntries(entries)
	return entries
}

// bestStarsByUser keeps the maximum star value per (user, list, mode) group.
// Abandoned sessions (completed:false) and zero-star runs never count, so a
// worse retry cannot lower a prior best.
func bestStarsByUser(sessions []db.Session) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, sess := range sessions {
		if sess.UserID == "" || sess.ListName == nil || sess.Mode == nil {
			continue
		}
		list := strings.TrimSpace(*sess.ListName)
		mode := strings.TrimSpace(*sess.Mode)
		if list == "" || mode == "" {
			continue
		}
		summary := ParseSummary(sess.Summary)
		if summary.Completed != nil && !*summary.Completed {
			continue
		}
		stars := DeriveStars(summary)
		if stars <= 0 {
			continue
		}
		userStars := out[sess.UserID]
		if userStars == nil {
			userStars = make(map[string]int)
			out[sess.UserID] = userStars
		}
		key := list + "||" + mode
		if stars > userStars[key] {
			userStars[key] = stars
		}
	}
	return out
}

// RankEntries sorts by stars desc, points desc, name asc and assigns
// sequential ranks from 1. Ties never share a rank number.
func RankEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Stars != entries[j].Stars {
			return entries[i].Stars > entries[j].Stars
		}
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].Name < entries[j].Name
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// ShapeForViewer trims a ranked leaderboard to its top rows plus the viewer's
// own row when it falls outside.
func ShapeForViewer(entries []Entry, topN int, viewerID string) []Entry {
	if len(entries) <= topN {
		return entries
	}
	shaped := make([]Entry, 0, topN+1)
	shaped = append(shaped, entries[:topN]...)
	for _, e := range entries[topN:] {
		if e.UserID == viewerID {
			shaped = append(shaped, e)
			break
		}
	}
	return shaped
}
