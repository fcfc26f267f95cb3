package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/cognito-auth/cognito"
	"github.com/upb/cognito-auth/utils"
)

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token string) (cognito.Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(cognito.Claims), args.Error(1)
}

func mustNotRun(t *testing.T) http.Handler {
	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid bearer token allows request", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		middleware := NewAuthMiddleware(mockVerifier, logger)

		claims := cognito.Claims{
			"sub":            "user-123",
			"username":       "alice",
			"cognito:groups": []any{"admin"},
		}
		mockVerifier.On("Verify", mock.Anything, "valid-token").Return(claims, nil)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			extracted := GetClaimsFromContext(r.Context())
			require.NotNil(t, extracted)
			assert.Equal(t, "user-123", extracted.Subject())
			assert.Equal(t, claims, extracted)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockVerifier.AssertExpectations(t)
	})

	t.Run("scheme is case-insensitive", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		middleware := NewAuthMiddleware(mockVerifier, logger)
		mockVerifier.On("Verify", mock.Anything, "tok").Return(cognito.Claims{"sub": "u"}, nil)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "bEaReR   tok")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockVerifier.AssertExpectations(t)
	})

	headerCases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "Authorization header missing"},
		{"no scheme", "InvalidFormat", "Invalid authorization header format"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "Invalid authorization header format"},
		{"bearer without token", "Bearer", "Invalid authorization header format"},
		{"extra parts", "Bearer a b", "Invalid authorization header format"},
	}
	for _, tc := range headerCases {
		t.Run(tc.name+" returns 401", func(t *testing.T) {
			mockVerifier := new(MockTokenVerifier)
			middleware := NewAuthMiddleware(mockVerifier, logger)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			middleware.RequireAuth(mustNotRun(t)).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.message, decodeError(t, w).Message)
			mockVerifier.AssertNotCalled(t, "Verify")
		})
	}

	verifyCases := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		message    string
	}{
		{
			name:       "expired token",
			err:        fmt.Errorf("%w: exp passed", cognito.ErrTokenExpired),
			wantStatus: http.StatusUnauthorized,
			wantKind:   "token_expired",
			message:    "Token has expired",
		},
		{
			name:       "malformed token",
			err:        cognito.ErrInvalidJWT,
			wantStatus: http.StatusUnauthorized,
			wantKind:   "invalid_jwt",
			message:    "Malformed token",
		},
		{
			name:       "bad signature",
			err:        cognito.ErrSignature,
			wantStatus: http.StatusUnauthorized,
			wantKind:   "signature",
			message:    "Invalid token",
		},
		{
			name:       "wrong pool",
			err:        cognito.ErrInvalidIssuer,
			wantStatus: http.StatusUnauthorized,
			wantKind:   "invalid_issuer",
			message:    "Token not accepted by this service",
		},
		{
			name:       "unknown key",
			err:        cognito.ErrUnknownKey,
			wantStatus: http.StatusUnauthorized,
			wantKind:   "unknown_key",
			message:    "Token signed by an unknown key",
		},
	}
	for _, tc := range verifyCases {
		t.Run(tc.name+" returns 401", func(t *testing.T) {
			mockVerifier := new(MockTokenVerifier)
			middleware := NewAuthMiddleware(mockVerifier, logger)
			mockVerifier.On("Verify", mock.Anything, "token").Return(nil, tc.err)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", "Bearer token")
			w := httptest.NewRecorder()

			middleware.RequireAuth(mustNotRun(t)).ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tc.message, body.Message)
			assert.Equal(t, tc.wantKind, body.Details["kind"])
			mockVerifier.AssertExpectations(t)
		})
	}

	for _, providerErr := range []error{cognito.ErrKeySetFetch, cognito.ErrKeySetParse} {
		t.Run(cognito.ErrorKind(providerErr)+" returns 503", func(t *testing.T) {
			mockVerifier := new(MockTokenVerifier)
			middleware := NewAuthMiddleware(mockVerifier, logger)
			mockVerifier.On("Verify", mock.Anything, "token").
				Return(nil, fmt.Errorf("%w: upstream", providerErr))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", "Bearer token")
			w := httptest.NewRecorder()

			middleware.RequireAuth(mustNotRun(t)).ServeHTTP(w, req)

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Equal(t, "service_unavailable", decodeError(t, w).Error)
			mockVerifier.AssertExpectations(t)
		})
	}
}

func TestRequireGroup(t *testing.T) {
	logger := zap.NewNop()
	middleware := NewAuthMiddleware(new(MockTokenVerifier), logger)

	t.Run("member passes", func(t *testing.T) {
		handler := middleware.RequireGroup("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req = req.WithContext(WithClaims(req.Context(), cognito.Claims{"cognito:groups": []any{"viewer", "admin"}}))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("non member gets 403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req = req.WithContext(WithClaims(req.Context(), cognito.Claims{"cognito:groups": []any{"viewer"}}))
		w := httptest.NewRecorder()

		middleware.RequireGroup("admin")(mustNotRun(t)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing claims gets 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		middleware.RequireGroup("admin")(mustNotRun(t)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestIDFromContext(ctx))
	assert.Nil(t, GetClaimsFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClaims(ctx, cognito.Claims{"sub": "user-1"})
	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
	assert.Equal(t, "user-1", GetClaimsFromContext(ctx).Subject())
}
