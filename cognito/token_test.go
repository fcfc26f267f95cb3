package cognito

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestParseToken(t *testing.T) {
	header := segment(`{"alg":"RS256","kid":"k1"}`)
	payload := segment(`{"sub":"abc","exp":1700000000}`)
	sig := segment("signature")

	tests := []struct {
		name  string
		token string
	}{
		{"not a jwt", "not-a-jwt"},
		{"empty", ""},
		{"two segments", header + "." + payload},
		{"four segments", header + "." + payload + "." + sig + "." + sig},
		{"empty signature", header + "." + payload + "."},
		{"empty header", "." + payload + "." + sig},
		{"padded base64", header + "." + payload + "." + base64.URLEncoding.EncodeToString([]byte("si"))},
		{"invalid base64", header + ".***." + sig},
		{"header not json", segment("nope") + "." + payload + "." + sig},
		{"header is array", segment(`["RS256"]`) + "." + payload + "." + sig},
		{"payload is null", header + "." + segment("null") + "." + sig},
		{"payload trailing data", header + "." + segment(`{"a":1} x`) + "." + sig},
		{"header trailing brace", segment(`{"alg":"RS256","kid":"k1"}}`) + "." + payload + "." + sig},
		{"payload trailing bracket", header + "." + segment(`{"exp":1}]`) + "." + sig},
		{"payload second object", header + "." + segment(`{"exp":1}{"exp":2}`) + "." + sig},
		{"missing kid", segment(`{"alg":"RS256"}`) + "." + payload + "." + sig},
		{"kid not a string", segment(`{"alg":"RS256","kid":7}`) + "." + payload + "." + sig},
		{"missing alg", segment(`{"kid":"k1"}`) + "." + payload + "." + sig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ParseToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidJWT)
			assert.Nil(t, token)
		})
	}
}

func TestParseToken_Valid(t *testing.T) {
	claims := validTestClaims()
	raw := createTestToken(t, "parse-kid", jwt.SigningMethodRS256, claims)

	token, err := ParseToken(raw)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	assert.Equal(t, parts[0]+"."+parts[1], token.SigningInput)
	assert.Equal(t, "parse-kid", token.KeyID())
	assert.Equal(t, "RS256", token.Algorithm())
	assert.Equal(t, raw, token.Raw)
	assert.NotEmpty(t, token.Signature)

	// numbers stay json.Number so integer claims are not rounded
	exp, ok := token.Claims["exp"].(json.Number)
	require.True(t, ok)
	assert.Equal(t, claims["exp"], mustInt64(t, exp))
	assert.Equal(t, "testuser", token.Claims.Username())
}

func TestParseToken_SigningInputIsVerbatim(t *testing.T) {
	// whitespace and key order in the header must survive as sent
	header := segment(`{ "kid" : "k1", "alg" : "RS256" }`)
	payload := segment(`{"b":2,  "a":1}`)
	raw := header + "." + payload + "." + segment("sig")

	token, err := ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, header+"."+payload, token.SigningInput)
}

func mustInt64(t *testing.T, n json.Number) int64 {
	t.Helper()
	v, err := n.Int64()
	require.NoError(t, err)
	return v
}
