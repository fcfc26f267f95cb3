package cognito

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testRegion     = "us-east-1"
	testUserPoolID = "us-east-1_test123"
	testClientID   = "test-client-id"
)

var testIssuer = IssuerURL(testRegion, testUserPoolID)

var (
	testKeysMu sync.Mutex
	testKeys   = map[string]*rsa.PrivateKey{}
)

// generateTestKey returns an RSA key for kid, reusing keys across tests
func generateTestKey(t *testing.T, kid string) *rsa.PrivateKey {
	t.Helper()
	testKeysMu.Lock()
	defer testKeysMu.Unlock()
	if key, ok := testKeys[kid]; ok {
		return key
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	testKeys[kid] = key
	return key
}

// testJWK converts a public key to its JWK form
func testJWK(kid, alg string, publicKey *rsa.PublicKey) JWK {
	return JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: alg,
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
	}
}

func testJWKSBody(t *testing.T, keys ...JWK) []byte {
	t.Helper()
	body, err := json.Marshal(JWKS{Keys: keys})
	require.NoError(t, err)
	return body
}

func testKeySet(t *testing.T, kids ...string) *KeySet {
	t.Helper()
	keys := make([]*SigningKey, 0, len(kids))
	for _, kid := range kids {
		key, err := testJWK(kid, "RS256", &generateTestKey(t, kid).PublicKey).SigningKey()
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return NewKeySet("test", time.Now(), keys...)
}

// validTestClaims returns access token claims accepted by the default verifier config
func validTestClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":            "6f1c2b1e-4d1a-4b8e-9a57-0d9d2c0b7a11",
		"iss":            testIssuer,
		"client_id":      testClientID,
		"token_use":      "access",
		"scope":          "aws.cognito.signin.user.admin openid",
		"auth_time":      now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"iat":            now.Unix(),
		"jti":            "b8d1e0a4-6c0f-4d55-8bb8-3c6f6f3c2a90",
		"username":       "testuser",
		"cognito:groups": []string{"admin", "developer"},
	}
}

// createTestToken signs claims with the key registered for kid
func createTestToken(t *testing.T, kid string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = kid
	tokenString, err := token.SignedString(generateTestKey(t, kid))
	require.NoError(t, err)
	return tokenString
}

// jwksServer serves a mutable JWKS document and counts requests
type jwksServer struct {
	*httptest.Server
	requests atomic.Int32

	mu     sync.Mutex
	status int
	body   []byte
	delay  time.Duration
}

func newJWKSServer(t *testing.T, keys ...JWK) *jwksServer {
	t.Helper()
	s := &jwksServer{status: http.StatusOK, body: testJWKSBody(t, keys...)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		status, body, delay := s.status, s.body, s.delay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) respond(status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = body
}

func (s *jwksServer) setDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// fakeKeySource hands out key sets from a function and counts calls
type fakeKeySource struct {
	calls atomic.Int32
	fetch func(ctx context.Context, call int32) (*KeySet, error)
}

func (f *fakeKeySource) FetchKeySet(ctx context.Context) (*KeySet, error) {
	return f.fetch(ctx, f.calls.Add(1))
}

func newTestVerifier(t *testing.T, server *jwksServer, cfg KeyStoreConfig) (*Verifier, *KeyStore) {
	t.Helper()
	source, err := NewHTTPKeySource(server.URL, 2*time.Second, nil)
	require.NoError(t, err)
	store := NewKeyStore(source, cfg)
	verifier, err := NewVerifier(store, Config{Region: testRegion, UserPoolID: testUserPoolID})
	require.NoError(t, err)
	return verifier, store
}
