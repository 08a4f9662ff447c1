// Package match pairs practice sessions with homework assignments. List
// names stored by the game clients rarely equal the assignment's list key
// verbatim, so matching runs through a fixed ladder of predicates from
// strictest to loosest and stops at the first tier that produces any hit.
package match

import (
	"strings"
)

// Tier identifiers, ordered strictest first.
const (
	TierRunToken   = "run_token"
	TierExact      = "exact"
	TierSuffix     = "suffix"
	TierSubstring  = "substring"
	TierNormalized = "normalized"
	TierTitleSlug  = "title_slug"
	TierNone       = ""
)

// Assignment carries the matchable fields of a homework assignment.
type Assignment struct {
	ListKey   string
	Title     string
	ListTitle string
	RunTokens []string
}

// Candidate is a session as seen by the matcher: the list name the client
// recorded plus the run token stamped into its summary, if any.
type Candidate struct {
	ListName string
	RunToken string
}

// Filter returns the indices of candidates matched by the strictest tier
// that produces any hit, together with that tier's identifier. A run-token
// hit is authoritative: when at least one candidate carries one of the
// assignment's tokens, only token-linked candidates are returned.
func Filter(a Assignment, cands []Candidate) ([]int, string) {
	for _, tier := range []struct {
		id   string
		pred func(Assignment, Candidate) bool
	}{
		{TierRunToken, matchRunToken},
		{TierExact, matchExact},
		{TierSuffix, matchSuffix},
		{TierSubstring, matchSubstring},
		{TierNormalized, matchNormalized},
		{TierTitleSlug, matchTitleSlug},
	} {
		var hits []int
		for i, c := range cands {
			if tier.pred(a, c) {
				hits = append(hits, i)
			}
		}
		if len(hits) > 0 {
			return hits, tier.id
		}
	}
	return nil, TierNone
}

func matchRunToken(a Assignment, c Candidate) bool {
	if c.RunToken == "" {
		return false
	}
	for _, tok := range a.RunTokens {
		if tok != "" && tok == c.RunToken {
			return true
		}
	}
	return false
}

func matchExact(a Assignment, c Candidate) bool {
	seg := lastSegment(a.ListKey)
	return seg != "" && strings.EqualFold(c.ListName, seg)
}

func matchSuffix(a Assignment, c Candidate) bool {
	seg := strings.ToLower(lastSegment(a.ListKey))
	if seg == "" {
		return false
	}
	name := strings.ToLower(c.ListName)
	return strings.HasSuffix(name, "/"+seg) || strings.HasSuffix(name, "/"+seg+".json")
}

func matchSubstring(a Assignment, c Candidate) bool {
	name := strings.ToLower(c.ListName)
	core := strings.ToLower(coreName(a.ListKey))
	if containsEither(name, core) {
		return true
	}
	nameCore := strings.ToLower(coreName(c.ListName))
	return nameCore != name && containsEither(nameCore, core)
}

func matchNormalized(a Assignment, c Candidate) bool {
	name := NormalizeIdentifier(c.ListName)
	if name == "" {
		return false
	}
	for _, token := range normalizedTokens(a) {
		if containsEither(name, token) {
			return true
		}
	}
	return false
}

func matchTitleSlug(a Assignment, c Candidate) bool {
	name := strings.ToLower(c.ListName)
	for _, title := range []string{a.Title, a.ListTitle} {
		if slug := TitleSlug(title); slug != "" && strings.Contains(name, slug) {
			return true
		}
	}
	return false
}

// NormalizeIdentifier lowercases the value and collapses every non
// alphanumeric run to a single space.
func NormalizeIdentifier(value string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// TitleSlug turns an assignment title into the underscore-joined form the
// game clients use for file-backed list names.
func TitleSlug(title string) string {
	norm := NormalizeIdentifier(title)
	if norm == "" {
		return ""
	}
	return strings.ReplaceAll(norm, " ", "_")
}

func lastSegment(listKey string) string {
	key := strings.TrimSpace(listKey)
	if key == "" {
		return ""
	}
	if i := strings.LastIndex(key, "/"); i >= 0 {
		key = key[i+1:]
	}
	return key
}

func coreName(listKey string) string {
	return strings.TrimSuffix(lastSegment(listKey), ".json")
}

// normalizedTokens derives the fuzzy search phrases from the list key: the
// core file name and the full key path, normalized and deduplicated. Titles
// stay out of this tier so the title-slug fallback keeps its own rung.
// Phrases shorter than three characters are too generic to trust.
func normalizedTokens(a Assignment) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, raw := range []string{
		coreName(a.ListKey),
		a.ListKey,
	} {
		token := NormalizeIdentifier(raw)
		if len(token) < 3 || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return tokens
}

// containsEither reports whether one value contains the other. Fragments
// shorter than three characters match almost anything, so they are ignored.
func containsEither(a, b string) bool {
	if len(a) >= 3 && len(b) >= 3 {
		return strings.Contains(a, b) || strings.Contains(b, a)
	}
	return false
}
