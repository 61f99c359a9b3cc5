package session

import (
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"

	"github.com/saiset-co/sai-food-admin/types"
)

// TokenInspector decides whether a stored token still proves a sign-in.
// It never verifies signatures; the remote API does that on every call.
type TokenInspector struct {
	requireJWT bool
	leeway     time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

var defaultInspector = NewTokenInspector(nil)

func NewTokenInspector(config *types.TokenConfig) *TokenInspector {
	inspector := &TokenInspector{
		now:    time.Now,
		parser: jwt.NewParser(),
	}

	if config != nil {
		inspector.requireJWT = config.RequireJWT
		inspector.leeway = config.Leeway
	}

	return inspector
}

func (i *TokenInspector) WithClock(now func() time.Time) *TokenInspector {
	clone := *i
	clone.now = now
	return &clone
}

// Usable reports false for anything that is not a plausible live token.
func (i *TokenInspector) Usable(token string) bool {
	if token == "" || strings.TrimSpace(token) != token {
		return false
	}

	switch strings.ToLower(token) {
	case "undefined", "null", "false":
		return false
	}

	for _, r := range token {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}

	if strings.Count(token, ".") != 2 {
		return !i.requireJWT
	}

	claims := jwt.MapClaims{}
	if _, _, err := i.parser.ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}

	if exp != nil && i.now().After(exp.Time.Add(i.leeway)) {
		return false
	}

	return true
}

func TokenUsable(token string) bool {
	return defaultInspector.Usable(token)
}
