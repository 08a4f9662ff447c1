package assign

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"arcade/progress/internal/db"
)

// Store is the slice of the database layer the ledger needs.
type Store interface {
	UpdateAssignmentMeta(ctx context.Context, assignmentID string, listMeta []byte) error
	UpdateSessionSummary(ctx context.Context, sessionID string, summary []byte) error
}

// Ledger issues run tokens and links sessions to assignment runs.
type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Issue mints a fresh teacher token, appends it to the assignment's ledger
// and persists the updated meta.
func (l *Ledger) Issue(ctx context.Context, a db.Assignment) (string, error) {
	token := NewRunToken(a.ID, l.now())
	meta, err := AppendToken(a.ListMeta, RunToken{Token: token, CreatedAt: l.now()})
	if err != nil {
		return "", err
	}
	if err := l.store.UpdateAssignmentMeta(ctx, a.ID, meta); err != nil {
		return "", err
	}
	return token, nil
}

// EnsureTokens returns the assignment's token values, backfilling a ledger
// for assignments created before tokens existed. The backfill is best
// effort: if persisting fails the progress computation proceeds without
// tokens instead of failing the request.
func (l *Ledger) EnsureTokens(ctx context.Context, a *db.Assignment) []string {
	if tokens := TokenStrings(ParseRunTokens(a.ListMeta)); len(tokens) > 0 {
		return tokens
	}
	token := NewBackfillToken(a.ID, l.now())
	meta, err := InitialMeta(a.ListMeta, RunToken{Token: token, CreatedAt: l.now(), Auto: true, Backfilled: true})
	if err != nil {
		return nil
	}
	if err := l.store.UpdateAssignmentMeta(ctx, a.ID, meta); err != nil {
		log.Printf("run token backfill failed for assignment %s: %v", a.ID, err)
		return nil
	}
	a.ListMeta = meta
	return []string{token}
}

// EnsureLinkToken returns the token the manual link flow should stamp:
// the oldest existing token, or a freshly minted and persisted one.
func (l *Ledger) EnsureLinkToken(ctx context.Context, a *db.Assignment) (string, error) {
	if tokens := TokenStrings(ParseRunTokens(a.ListMeta)); len(tokens) > 0 {
		return tokens[0], nil
	}
	token := NewLinkToken(a.ID, l.now())
	meta, err := InitialMeta(a.ListMeta, RunToken{Token: token, CreatedAt: l.now(), Auto: true})
	if err != nil {
		return "", err
	}
	if err := l.store.UpdateAssignmentMeta(ctx, a.ID, meta); err != nil {
		return "", err
	}
	a.ListMeta = meta
	return token, nil
}

// LinkError records a session the link pass could not update.
type LinkError struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// LinkResult summarizes one manual link pass.
type LinkResult struct {
	RunToken      string
	TotalFound    int
	AlreadyLinked int
	Linked        int
	Errors        []LinkError
}

// LinkSessions stamps the run token into every candidate session that is
// not linked yet. Sessions whose summary already carries an assignment_run
// are left untouched, which makes the pass idempotent. Per-session update
// failures are collected, not fatal.
func (l *Ledger) LinkSessions(ctx context.Context, token string, sessions []db.Session) LinkResult {
	result := LinkResult{RunToken: token, TotalFound: len(sessions)}
	for _, sess := range sessions {
		if alreadyLinked(sess.Summary) {
			result.AlreadyLinked++
			continue
		}
		summary, err := LinkSummary(sess.Summary, token, l.now())
		if err == nil {
			err = l.store.UpdateSessionSummary(ctx, sess.ID, summary)
		}
		if err != nil {
			result.Errors = append(result.Errors, LinkError{SessionID: sess.ID, Error: err.Error()})
			continue
		}
		result.Linked++
	}
	return result
}

func alreadyLinked(summary []byte) bool {
	if len(summary) == 0 {
		return false
	}
	var s struct {
		AssignmentRun string `json:"assignment_run"`
	}
	if err := json.Unmarshal(summary, &s); err != nil {
		return false
	}
	return s.AssignmentRun != ""
}
