package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/cognito-auth/cognito"
	"github.com/upb/cognito-auth/internal/observability"
	"github.com/upb/cognito-auth/utils"
)

// TokenVerifier verifies a raw token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (cognito.Claims, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

var (
	errMissingAuthorization   = errors.New("authorization header missing")
	errMalformedAuthorization = errors.New("invalid authorization header format")
)

// RequireAuth is a middleware that requires a valid bearer token.
// Provider failures answer 503 so clients can retry; every other failure is 401.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.FromContext(ctx, m.logger)

		token, err := extractBearerToken(r)
		if err != nil {
			logger.Debug("rejecting request", zap.Error(err))
			_ = utils.WriteUnauthorized(w, capitalize(err.Error()))
			return
		}

		claims, err := m.verifier.Verify(ctx, token)
		if err != nil {
			kind := cognito.ErrorKind(err)
			if cognito.IsProviderError(err) {
				logger.Error("identity provider unavailable",
					zap.String("kind", kind),
					zap.Error(err))
				_ = utils.WriteServiceUnavailable(w, "Unable to verify token, try again later")
				return
			}
			logger.Warn("token verification failed",
				zap.String("kind", kind),
				zap.Error(err))
			_ = utils.WriteError(w, http.StatusUnauthorized, rejectionMessage(err),
				map[string]interface{}{"kind": kind})
			return
		}

		ctx = WithClaims(ctx, claims)

		logger.Debug("authentication successful",
			zap.String("sub", claims.Subject()),
			zap.String("username", claims.Username()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireGroup is a middleware that requires membership of a Cognito group.
// It must run after RequireAuth.
func (m *AuthMiddleware) RequireGroup(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := observability.FromContext(ctx, m.logger)

			claims := GetClaimsFromContext(ctx)
			if claims == nil {
				logger.Error("claims not found in context")
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !claims.HasGroup(group) {
				logger.Warn("insufficient permissions",
					zap.String("required_group", group),
					zap.Strings("user_groups", claims.Groups()))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is case-insensitive.
func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingAuthorization
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errMalformedAuthorization
	}

	return parts[1], nil
}

// rejectionMessage maps a verification failure to a client facing message
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, cognito.ErrTokenExpired):
		return "Token has expired"
	case errors.Is(err, cognito.ErrInvalidJWT):
		return "Malformed token"
	case errors.Is(err, cognito.ErrUnknownKey):
		return "Token signed by an unknown key"
	case errors.Is(err, cognito.ErrInvalidIssuer),
		errors.Is(err, cognito.ErrInvalidTokenUse),
		errors.Is(err, cognito.ErrInvalidAudience):
		return "Token not accepted by this service"
	default:
		return "Invalid token"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
