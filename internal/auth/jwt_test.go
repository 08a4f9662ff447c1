package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID:   "user-1",
		Role:     "teacher",
		Approved: true,
		Class:    "Boston",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", "issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "teacher" || !claims.Approved || claims.Class != "Boston" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	token, err := NewAccessToken("secret", "other-issuer", time.Minute, Claims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "issuer", token); err == nil {
		t.Fatalf("expected issuer mismatch to error")
	}
}

func TestCanManageAssignments(t *testing.T) {
	cases := map[string]struct {
		ctx  Context
		want bool
	}{
		"approved teacher": {Context{Role: "teacher", Approved: true}, true},
		"approved admin":   {Context{Role: "admin", Approved: true}, true},
		"unapproved":       {Context{Role: "teacher", Approved: false}, false},
		"student":          {Context{Role: "student", Approved: true}, false},
	}
	for name, tc := range cases {
		if got := tc.ctx.CanManageAssignments(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, got)
		}
	}
}

func TestNewContextNormalizesRole(t *testing.T) {
	ctx := NewContext(&Claims{UserID: "u", Role: " Teacher ", Class: " Boston "})
	if ctx.Role != "teacher" || ctx.Class != "Boston" {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}
