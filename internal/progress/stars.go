package progress

import "encoding/json"

// Summary is the lenient view of a session's summary JSON. Game clients write
// inconsistent shapes, so every field is optional and malformed documents
// decode to the zero value instead of erroring.
type Summary struct {
	Accuracy      *float64
	Score         *float64
	Total         *float64
	Max           *float64
	Correct       *float64
	Stars         *float64
	Completed     *bool
	AssignmentRun string
}

func ParseSummary(raw []byte) Summary {
	var s Summary
	if len(raw) == 0 {
		return s
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return s
	}
	s.Accuracy = numField(doc, "accuracy")
	s.Score = numField(doc, "score")
	s.Total = numField(doc, "total")
	s.Max = numField(doc, "max")
	s.Correct = numField(doc, "correct")
	s.Stars = numField(doc, "stars")
	if v, ok := doc["completed"].(bool); ok {
		s.Completed = &v
	}
	if v, ok := doc["assignment_run"].(string); ok {
		s.AssignmentRun = v
	}
	return s
}

func numField(doc map[string]any, key string) *float64 {
	if v, ok := doc[key].(float64); ok {
		return &v
	}
	return nil
}

// AccuracyRatio resolves the accuracy fallback chain:
// explicit accuracy, then score/total, then score/max.
func (s Summary) AccuracyRatio() (float64, bool) {
	if s.Accuracy != nil {
		return *s.Accuracy, true
	}
	if s.Score != nil && s.Total != nil && *s.Total > 0 {
		return *s.Score / *s.Total, true
	}
	if s.Score != nil && s.Max != nil && *s.Max > 0 {
		return *s.Score / *s.Max, true
	}
	return 0, false
}

// DeriveStars maps a session summary to a 0-5 star rating. Teacher and
// student views share this single implementation so they never disagree on
// the same underlying session.
func DeriveStars(s Summary) int {
	if acc, ok := s.AccuracyRatio(); ok {
		switch {
		case acc >= 1:
			return 5
		case acc >= 0.95:
			return 4
		case acc >= 0.90:
			return 3
		case acc >= 0.80:
			return 2
		case acc >= 0.60:
			return 1
		default:
			return 0
		}
	}
	// Clients have written out-of-range stars values; clamp to the 0-5 scale.
	if s.Stars != nil {
		stars := int(*s.Stars)
		if stars < 0 {
			return 0
		}
		if stars > 5 {
			return 5
		}
		return stars
	}
	return 0
}

// AccuracyPercent is the per-session percentage shown in mode breakdowns.
func (s Summary) AccuracyPercent() int {
	if s.Accuracy != nil {
		return roundPercent(*s.Accuracy)
	}
	if s.Score != nil && s.Total != nil && *s.Total > 0 {
		return roundPercent(*s.Score / *s.Total)
	}
	return 0
}

func roundPercent(ratio float64) int {
	return int(ratio*100 + 0.5)
}
