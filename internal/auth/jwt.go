package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity payload minted by the auth service. Role and
// approval gate every teacher-facing action.
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Approved bool   `json:"approved"`
	Class    string `json:"class"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

func NewAccessToken(secret, issuer string, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, issuer, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Context is the verified identity threaded through every handler call.
type Context struct {
	UserID   string
	Role     string
	Approved bool
	Class    string
	Name     string
}

func NewContext(claims *Claims) Context {
	return Context{
		UserID:   claims.UserID,
		Role:     strings.ToLower(strings.TrimSpace(claims.Role)),
		Approved: claims.Approved,
		Class:    strings.TrimSpace(claims.Class),
		Name:     claims.Name,
	}
}

func (c Context) IsAdmin() bool {
	return c.Role == "admin"
}

func (c Context) IsStudent() bool {
	return c.Role == "student"
}

// CanManageAssignments reports whether the caller may create, end, or link
// assignments: teachers and admins only, and only once approved.
func (c Context) CanManageAssignments() bool {
	if c.Role != "teacher" && c.Role != "admin" {
		return false
	}
	return c.Approved
}
