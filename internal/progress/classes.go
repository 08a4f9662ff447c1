package progress

import (
	"sort"
	"strings"
)

// Dashboard dropdown order requested by the school; anything new lands after,
// alphabetically.
var preferredClassOrder = []string{
	"Brown", "Stanford", "Manchester", "Melbourne", "New York", "Hawaii",
	"Boston", "Sydney", "Berkeley", "Chicago", "Cambridge", "Yale",
	"Washington", "Oxford", "MIT", "Dublin", "Harvard",
}

// NormalizeClassDisplay maps legacy class spellings to their display names.
func NormalizeClassDisplay(name string) string {
	raw := strings.TrimSpace(name)
	if raw == "" {
		return ""
	}
	if strings.ToLower(raw) == "ny" {
		return "New York"
	}
	return raw
}

// ClassKey is the canonical cache/storage key for a class name.
func ClassKey(name string) string {
	return strings.ToLower(NormalizeClassDisplay(name))
}

// SortClasses dedupes raw class values into display names, preferred order
// first, remainder alphabetical.
func SortClasses(raw []string) []string {
	seen := make(map[string]bool)
	var normalized []string
	for _, name := range raw {
		display := NormalizeClassDisplay(name)
		if display == "" || seen[display] {
			continue
		}
		seen[display] = true
		normalized = append(normalized, display)
	}
	inSet := make(map[string]bool, len(normalized))
	for _, name := range normalized {
		inSet[name] = true
	}
	var ordered []string
	picked := make(map[string]bool)
	for _, name := range preferredClassOrder {
		if inSet[name] {
			ordered = append(ordered, name)
			picked[name] = true
		}
	}
	var remaining []string
	for _, name := range normalized {
		if !picked[name] {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	return append(ordered, remaining...)
}
