package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-food-admin/types"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestTokenUsable_RejectsPlaceholders(t *testing.T) {
	for _, token := range []string{"", " ", "undefined", "null", "false", "NULL", " abc", "abc ", "ab c", "ab\tc"} {
		assert.False(t, TokenUsable(token), "token %q", token)
	}
}

func TestTokenUsable_OpaqueTokens(t *testing.T) {
	assert.True(t, TokenUsable("tok"))

	strict := NewTokenInspector(&types.TokenConfig{RequireJWT: true})
	assert.False(t, strict.Usable("tok"))
}

func TestTokenInspector_Expiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inspector := NewTokenInspector(&types.TokenConfig{Leeway: 30 * time.Second}).
		WithClock(func() time.Time { return now })

	live := signToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	assert.True(t, inspector.Usable(live))

	withinLeeway := signToken(t, jwt.MapClaims{"exp": now.Add(-10 * time.Second).Unix()})
	assert.True(t, inspector.Usable(withinLeeway))

	expired := signToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()})
	assert.False(t, inspector.Usable(expired))

	noExpiry := signToken(t, jwt.MapClaims{"sub": "u1"})
	assert.True(t, inspector.Usable(noExpiry))
}

func TestTokenInspector_MalformedJWT(t *testing.T) {
	assert.False(t, TokenUsable("a.b.c"))
}
