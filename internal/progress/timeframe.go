package progress

import (
	"strings"
	"time"
)

type Timeframe string

const (
	TimeframeAll   Timeframe = "all"
	TimeframeMonth Timeframe = "month"
)

func ParseTimeframe(value string) Timeframe {
	if strings.ToLower(strings.TrimSpace(value)) == string(TimeframeMonth) {
		return TimeframeMonth
	}
	return TimeframeAll
}

// Since returns the lower bound for timeframe-filtered queries: nil for the
// lifetime view, the start of the current UTC calendar month otherwise.
func (t Timeframe) Since(now time.Time) *time.Time {
	if t != TimeframeMonth {
		return nil
	}
	start := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	return &start
}
