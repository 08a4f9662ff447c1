package progress

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

// Ungraded lessons count toward completion the first time they are touched.
var lessonOnlyPattern = regexp.MustCompile(`(?i)grammar_lesson|lesson`)

// NormalizeModeName folds the mode-name variants that game clients emit into
// canonical buckets.
func NormalizeModeName(mode string) string {
	m := strings.ToLower(strings.TrimSpace(mode))
	if m == "" {
		return "unknown"
	}
	if strings.Contains(m, "spell") {
		return "spelling"
	}
	if strings.Contains(m, "translation") && !strings.Contains(m, "grammar") {
		return "translation"
	}
	if m == "typing" || m == "dictation" {
		return "typing"
	}
	return m
}

// DetectCategory classifies an assignment from its list key and titles.
func DetectCategory(listKey, title, listTitle string) string {
	text := strings.ToLower(listKey + " " + title + " " + listTitle)
	if strings.Contains(text, "phonics") {
		return "phonics"
	}
	if strings.Contains(text, "grammar") {
		return "grammar"
	}
	return "vocab"
}

// KeywordRule maps list_key substrings to an expected mode count.
type KeywordRule struct {
	Contains []string `json:"contains"`
	Modes    int      `json:"modes"`
}

type GrammarRules struct {
	Level1        int           `json:"level1"`
	Level2Default int           `json:"level2_default"`
	Level2Rules   []KeywordRule `json:"level2_rules"`
	Level3        int           `json:"level3"`
}

// ModeTable holds the expected-mode counts per category. The grammar counts
// encode content-owner decisions, so the table is editable configuration
// rather than derived logic.
type ModeTable struct {
	Phonics int          `json:"phonics"`
	Vocab   int          `json:"vocab"`
	Grammar GrammarRules `json:"grammar"`
}

func DefaultModeTable() ModeTable {
	return ModeTable{
		Phonics: 4,
		Vocab:   6,
		Grammar: GrammarRules{
			Level1:        4,
			Level2Default: 5,
			Level2Rules: []KeywordRule{
				{Contains: []string{"prepositions_"}, Modes: 4},
				{Contains: []string{"wh_who_what", "wh_where_when", "wh_how_why"}, Modes: 4},
			},
			Level3: 6,
		},
	}
}

// LoadModeTable reads a JSON override file, falling back to the defaults when
// no path is configured.
func LoadModeTable(path string) (ModeTable, error) {
	table := DefaultModeTable()
	if path == "" {
		return table, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return table, err
	}
	if err := json.Unmarshal(raw, &table); err != nil {
		return DefaultModeTable(), err
	}
	return table, nil
}

// GrammarLevel infers the grammar level from list_key path substrings.
func GrammarLevel(listKey string) int {
	lk := strings.ToLower(listKey)
	if strings.Contains(lk, "level3") {
		return 3
	}
	if strings.Contains(lk, "level2") {
		return 2
	}
	return 1
}

func (t ModeTable) grammarModes(listKey string) int {
	lk := strings.ToLower(listKey)
	switch GrammarLevel(listKey) {
	case 3:
		return t.Grammar.Level3
	case 2:
		for _, rule := range t.Grammar.Level2Rules {
			for _, fragment := range rule.Contains {
				if strings.Contains(lk, fragment) {
					return rule.Modes
				}
			}
		}
		return t.Grammar.Level2Default
	default:
		return t.Grammar.Level1
	}
}

// ExpectedModes resolves the expected mode count for a category and list key.
func (t ModeTable) ExpectedModes(category, listKey string) int {
	switch category {
	case "phonics":
		return t.Phonics
	case "grammar":
		return t.grammarModes(listKey)
	default:
		return t.Vocab
	}
}

// CountsTowardCompletion reports whether a mode is "attempted": graded modes
// need at least one star, lesson-only modes count once touched.
func CountsTowardCompletion(mode string, bestStars int) bool {
	if bestStars >= 1 {
		return true
	}
	return lessonOnlyPattern.MatchString(mode)
}

// CompletionPercent clamps round(100 * attempted / expected) to [0, 100].
func CompletionPercent(distinctAttempted, expectedTotal int) int {
	if expectedTotal <= 0 || distinctAttempted <= 0 {
		return 0
	}
	percent := roundPercent(float64(distinctAttempted) / float64(expectedTotal))
	if percent > 100 {
		return 100
	}
	return percent
}
