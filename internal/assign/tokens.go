// Package assign manages homework assignments' run tokens: the append-only
// list stored under list_meta.run_tokens that links practice sessions to a
// specific assignment run.
package assign

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RunToken is one entry of the list_meta.run_tokens ledger.
type RunToken struct {
	Token      string    `json:"token"`
	CreatedAt  time.Time `json:"created_at"`
	Auto       bool      `json:"auto,omitempty"`
	Backfilled bool      `json:"backfilled,omitempty"`
}

// NewRunToken mints a teacher-issued token for an existing assignment.
func NewRunToken(assignmentID string, now time.Time) string {
	return fmt.Sprintf("run_%s_%s_%s", assignmentID, ts36(now), randSuffix())
}

// NewAutoToken mints the token stamped at assignment creation, before the
// assignment has an id.
func NewAutoToken(now time.Time) string {
	return fmt.Sprintf("run_auto_%s_%s", ts36(now), randSuffix())
}

// NewBackfillToken mints a token for legacy assignments created before the
// ledger existed.
func NewBackfillToken(assignmentID string, now time.Time) string {
	return fmt.Sprintf("run_backfill_%s_%s_%s", assignmentID, ts36(now), randSuffix())
}

// NewLinkToken mints a token minted on demand by the manual link flow.
func NewLinkToken(assignmentID string, now time.Time) string {
	return fmt.Sprintf("run_link_%s_%s_%s", assignmentID, ts36(now), randSuffix())
}

func ts36(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36)
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randSuffix() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Uniqueness still holds through the millisecond timestamp.
		return "000000"
	}
	for i, b := range buf {
		buf[i] = base36[int(b)%len(base36)]
	}
	return string(buf[:])
}

// ParseRunTokens extracts the ledger from raw list_meta JSON. Malformed
// meta or entries are skipped rather than failing the whole read.
func ParseRunTokens(listMeta []byte) []RunToken {
	if len(listMeta) == 0 {
		return nil
	}
	var meta struct {
		RunTokens []json.RawMessage `json:"run_tokens"`
	}
	if err := json.Unmarshal(listMeta, &meta); err != nil {
		return nil
	}
	var tokens []RunToken
	for _, raw := range meta.RunTokens {
		var entry struct {
			Token      string `json:"token"`
			CreatedAt  string `json:"created_at"`
			Auto       bool   `json:"auto"`
			Backfilled bool   `json:"backfilled"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil || entry.Token == "" {
			continue
		}
		tok := RunToken{Token: entry.Token, Auto: entry.Auto, Backfilled: entry.Backfilled}
		if ts, err := time.Parse(time.RFC3339, entry.CreatedAt); err == nil {
			tok.CreatedAt = ts
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// TokenStrings returns the bare token values of a ledger.
func TokenStrings(tokens []RunToken) []string {
	var out []string
	for _, t := range tokens {
		if t.Token != "" {
			out = append(out, t.Token)
		}
	}
	return out
}

// AppendToken adds an entry to the ledger inside raw list_meta, preserving
// every other meta field. Unparseable meta is treated as empty.
func AppendToken(listMeta []byte, tok RunToken) ([]byte, error) {
	meta := metaMap(listMeta)
	var entries []any
	if prev, ok := meta["run_tokens"].([]any); ok {
		entries = prev
	}
	meta["run_tokens"] = append(entries, tokenEntry(tok))
	return json.Marshal(meta)
}

// InitialMeta builds the list_meta for a brand-new assignment: the client
// supplied meta with the ledger seeded to exactly one auto token.
func InitialMeta(listMeta []byte, tok RunToken) ([]byte, error) {
	meta := metaMap(listMeta)
	meta["run_tokens"] = []any{tokenEntry(tok)}
	return json.Marshal(meta)
}

func metaMap(listMeta []byte) map[string]any {
	meta := make(map[string]any)
	if len(listMeta) > 0 {
		if err := json.Unmarshal(listMeta, &meta); err != nil {
			meta = make(map[string]any)
		}
	}
	return meta
}

func tokenEntry(tok RunToken) map[string]any {
	entry := map[string]any{
		"token":      tok.Token,
		"created_at": tok.CreatedAt.UTC().Format(time.RFC3339),
	}
	if tok.Auto {
		entry["auto"] = true
	}
	if tok.Backfilled {
		entry["backfilled"] = true
	}
	return entry
}

// ModesTotalOverride reads an explicit expected-mode count from list_meta,
// honoring both spellings clients have used.
func ModesTotalOverride(listMeta []byte) *int {
	if len(listMeta) == 0 {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(listMeta, &meta); err != nil {
		return nil
	}
	for _, key := range []string{"modes_total", "total_modes"} {
		if v, ok := meta[key].(float64); ok && v > 0 {
			n := int(v)
			return &n
		}
	}
	return nil
}

// LinkSummary stamps a session summary with the run token plus the link
// audit fields, preserving existing summary fields. A summary that cannot
// be parsed is replaced by the stamp alone.
func LinkSummary(raw []byte, token string, now time.Time) ([]byte, error) {
	summary := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &summary); err != nil {
			summary = make(map[string]any)
		}
	}
	summary["assignment_run"] = token
	summary["linked_at"] = now.UTC().Format(time.RFC3339)
	summary["linked_by"] = "teacher_action"
	return json.Marshal(summary)
}
