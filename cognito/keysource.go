package cognito

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxJWKSBodySize caps how much of the JWKS response is read.
const maxJWKSBodySize = 1 << 20

// KeySource fetches the provider's current key set.
type KeySource interface {
	FetchKeySet(ctx context.Context) (*KeySet, error)
}

// JWKSURL returns the well-known JWKS location of a Cognito user pool
func JWKSURL(region, userPoolID string) string {
	return IssuerURL(region, userPoolID) + "/.well-known/jwks.json"
}

// IssuerURL returns the iss value Cognito puts in tokens of a user pool
func IssuerURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// HTTPKeySource fetches a JWKS document over HTTP.
type HTTPKeySource struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewHTTPKeySource creates a source for url. A positive timeout is required:
// an unbounded fetch would let a stalled provider hang every request.
func NewHTTPKeySource(url string, timeout time.Duration, logger *zap.Logger) (*HTTPKeySource, error) {
	if url == "" {
		return nil, errors.New("jwks url is required")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("jwks fetch timeout must be positive, got %s", timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPKeySource{
		url:     url,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		now:    time.Now,
	}, nil
}

// URL returns the JWKS endpoint.
func (s *HTTPKeySource) URL() string {
	return s.url
}

// FetchKeySet performs a single GET of the JWKS endpoint. It never retries.
func (s *HTTPKeySource) FetchKeySet(ctx context.Context) (*KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrKeySetFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJWKSBodySize))
		return nil, fmt.Errorf("%w: status code %d", ErrKeySetFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrKeySetFetch, err)
	}

	set, err := ParseKeySet(body, s.url, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("fetched jwks",
		zap.String("jwks_url", s.url),
		zap.Strings("kids", set.KeyIDs()))

	return set, nil
}
