package cognito

import (
	"errors"
)

var (
	// ErrInvalidJWT is returned when the token is not a well-formed compact JWT
	ErrInvalidJWT = errors.New("invalid jwt")

	// ErrUnknownKey is returned when no signing key matches the token's kid, even after a refresh
	ErrUnknownKey = errors.New("unknown signing key")

	// ErrKeySetFetch is returned when the JWKS cannot be retrieved or holds no keys
	ErrKeySetFetch = errors.New("failed to fetch JWKS")

	// ErrKeySetParse is returned when the JWKS body does not have the expected key shape
	ErrKeySetParse = errors.New("failed to parse JWKS")

	// ErrSignature is returned on algorithm mismatch or a failed cryptographic check
	ErrSignature = errors.New("signature verification failed")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidTokenUse is returned when token_use does not match the expected value
	ErrInvalidTokenUse = errors.New("invalid token use")

	// ErrInvalidAudience is returned when the token was not issued to the configured client
	ErrInvalidAudience = errors.New("invalid audience")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidJWT, "invalid_jwt"},
	{ErrUnknownKey, "unknown_key"},
	{ErrKeySetFetch, "jwks_fetch"},
	{ErrKeySetParse, "jwks_parse"},
	{ErrSignature, "signature"},
	{ErrTokenExpired, "token_expired"},
	{ErrInvalidIssuer, "invalid_issuer"},
	{ErrInvalidTokenUse, "invalid_token_use"},
	{ErrInvalidAudience, "invalid_audience"},
}

// ErrorKind returns a stable label for the verification error, suitable for
// logs and metric labels. It returns "ok" for nil and "unknown" for errors
// outside the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}

// IsProviderError reports whether err points at the identity provider or the
// local configuration rather than at the presented token.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrKeySetFetch) || errors.Is(err, ErrKeySetParse)
}
