package cognito

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenUseAccess is the token_use value of Cognito access tokens
	TokenUseAccess = "access"
	// TokenUseID is the token_use value of Cognito id tokens
	TokenUseID = "id"
)

// Claims is the decoded payload of a verified token. Claims the accessors do
// not know about pass through untouched.
type Claims map[string]any

// ExpiresAt returns the exp claim, or nil when absent.
func (c Claims) ExpiresAt() (*jwt.NumericDate, error) {
	return jwt.MapClaims(c).GetExpirationTime()
}

// Issuer returns the iss claim.
func (c Claims) Issuer() string {
	iss, _ := c["iss"].(string)
	return iss
}

// TokenUse returns the Cognito token_use claim.
func (c Claims) TokenUse() string {
	use, _ := c["token_use"].(string)
	return use
}

// ClientID returns the client_id claim carried by access tokens.
func (c Claims) ClientID() string {
	id, _ := c["client_id"].(string)
	return id
}

// Subject returns the sub claim.
func (c Claims) Subject() string {
	sub, _ := c["sub"].(string)
	return sub
}

// Username returns the user name, which Cognito puts in "username" for access
// tokens and "cognito:username" for id tokens.
func (c Claims) Username() string {
	if name, ok := c["username"].(string); ok {
		return name
	}
	name, _ := c["cognito:username"].(string)
	return name
}

// Groups returns the cognito:groups claim.
func (c Claims) Groups() []string {
	raw, ok := c["cognito:groups"].([]any)
	if !ok {
		return nil
	}
	groups := make([]string, 0, len(raw))
	for _, g := range raw {
		if s, ok := g.(string); ok {
			groups = append(groups, s)
		}
	}
	return groups
}

// Scopes returns the space-separated scope claim as a slice.
func (c Claims) Scopes() []string {
	scope, _ := c["scope"].(string)
	return strings.Fields(scope)
}

// HasGroup reports whether the user belongs to group.
func (c Claims) HasGroup(group string) bool {
	return slices.Contains(c.Groups(), group)
}

// ClaimsValidator enforces the semantic checks that follow a good signature.
type ClaimsValidator struct {
	Issuer   string
	TokenUse string
	// ClientID, when set, must match client_id (access tokens) or appear in
	// aud (id tokens).
	ClientID string
	Now      func() time.Time
}

// Validate checks exp, iss, token_use and the optional client, in that order,
// stopping at the first failure.
func (v *ClaimsValidator) Validate(claims Claims) (Claims, error) {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	exp, err := claims.ExpiresAt()
	if err != nil {
		return nil, fmt.Errorf("%w: exp: %v", ErrTokenExpired, err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: exp claim missing", ErrTokenExpired)
	}
	if exp.Unix() <= now().Unix() {
		return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, exp.UTC().Format(time.RFC3339))
	}

	if iss := claims.Issuer(); iss != v.Issuer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidIssuer, v.Issuer, iss)
	}

	if use := claims.TokenUse(); use != v.TokenUse {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidTokenUse, v.TokenUse, use)
	}

	if v.ClientID != "" {
		if err := v.validateClient(claims); err != nil {
			return nil, err
		}
	}

	return claims, nil
}

func (v *ClaimsValidator) validateClient(claims Claims) error {
	if claims.TokenUse() == TokenUseAccess {
		if id := claims.ClientID(); id != v.ClientID {
			return fmt.Errorf("%w: client_id %q", ErrInvalidAudience, id)
		}
		return nil
	}

	aud, err := jwt.MapClaims(claims).GetAudience()
	if err != nil {
		return fmt.Errorf("%w: aud: %v", ErrInvalidAudience, err)
	}
	if !slices.Contains(aud, v.ClientID) {
		return fmt.Errorf("%w: aud %v", ErrInvalidAudience, []string(aud))
	}
	return nil
}
