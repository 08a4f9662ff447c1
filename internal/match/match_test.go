package match

import (
	"reflect"
	"testing"
)

func TestFilterRunTokenOverridesEverything(t *testing.T) {
	a := Assignment{
		ListKey:   "word-lists/animals.json",
		RunTokens: []string{"run_a1_zz_abc123"},
	}
	cands := []Candidate{
		{ListName: "animals.json"},
		{ListName: "food.json", RunToken: "run_a1_zz_abc123"},
		{ListName: "animals.json", RunToken: "run_other"},
	}
	idx, tier := Filter(a, cands)
	if tier != TierRunToken {
		t.Fatalf("expected run_token tier, got %q", tier)
	}
	if !reflect.DeepEqual(idx, []int{1}) {
		t.Fatalf("expected only the token-linked candidate, got %v", idx)
	}
}

func TestFilterExactLastSegment(t *testing.T) {
	a := Assignment{ListKey: "word-lists/animals.json"}
	cands := []Candidate{
		{ListName: "Animals.JSON"},
		{ListName: "sea_animals.json"},
	}
	idx, tier := Filter(a, cands)
	if tier != TierExact || !reflect.DeepEqual(idx, []int{0}) {
		t.Fatalf("expected exact match on index 0, got %v via %q", idx, tier)
	}
}

func TestFilterPathSuffix(t *testing.T) {
	a := Assignment{ListKey: "word-lists/animals"}
	cands := []Candidate{
		{ListName: "assets/word-lists/animals.json"},
		{ListName: "assets/word-lists/sea_animals"},
		{ListName: "backup/animals"},
	}
	idx, tier := Filter(a, cands)
	if tier != TierSuffix {
		t.Fatalf("expected suffix tier, got %q", tier)
	}
	if !reflect.DeepEqual(idx, []int{0, 2}) {
		t.Fatalf("expected indices [0 2], got %v", idx)
	}
}

func TestFilterCoreNameSubstring(t *testing.T) {
	a := Assignment{ListKey: "phonics/short_a.json"}
	cands := []Candidate{
		{ListName: "phonics_short_a_practice"},
		{ListName: "phonics_long_e"},
	}
	idx, tier := Filter(a, cands)
	if tier != TierSubstring || !reflect.DeepEqual(idx, []int{0}) {
		t.Fatalf("expected substring match on index 0, got %v via %q", idx, tier)
	}
}

func TestFilterNormalizedTokens(t *testing.T) {
	a := Assignment{ListKey: "grammar/level2/wh-where-when.json"}
	cands := []Candidate{
		{ListName: "WH Where When (Level 2)"},
		{ListName: "be_verbs"},
	}
	idx, tier := Filter(a, cands)
	if tier != TierNormalized || !reflect.DeepEqual(idx, []int{0}) {
		t.Fatalf("expected normalized match on index 0, got %v via %q", idx, tier)
	}
}

func TestFilterTitleSlugLastResort(t *testing.T) {
	a := Assignment{ListKey: "uploads/8f2c.json", Title: "Winter Words"}
	cands := []Candidate{
		{ListName: "custom/winter_words_v2"},
		{ListName: "spring_words"},
	}
	idx, tier := Filter(a, cands)
	if tier != TierTitleSlug || !reflect.DeepEqual(idx, []int{0}) {
		t.Fatalf("expected title slug match on index 0, got %v via %q", idx, tier)
	}
}

func TestFilterNoMatch(t *testing.T) {
	a := Assignment{ListKey: "uploads/8f2c.json"}
	idx, tier := Filter(a, []Candidate{{ListName: "totally_unrelated"}})
	if idx != nil || tier != TierNone {
		t.Fatalf("expected no match, got %v via %q", idx, tier)
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	cases := map[string]string{
		"Phonics/Short_A.json": "phonics short a json",
		"  WH--Where  When ":   "wh where when",
		"":                     "",
		"!!!":                  "",
	}
	for input, want := range cases {
		if got := NormalizeIdentifier(input); got != want {
			t.Fatalf("normalize %q: expected %q, got %q", input, want, got)
		}
	}
}

func TestTitleSlug(t *testing.T) {
	if got := TitleSlug("Winter Words!"); got != "winter_words" {
		t.Fatalf("expected winter_words, got %q", got)
	}
	if got := TitleSlug(""); got != "" {
		t.Fatalf("expected empty slug, got %q", got)
	}
}
