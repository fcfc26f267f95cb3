package cognito

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// KeyResolver resolves a key id to a provider signing key. *KeyStore
// implements it.
type KeyResolver interface {
	Get(ctx context.Context, kid string) (*SigningKey, error)
}

// Config holds configuration for Verifier
type Config struct {
	Region     string
	UserPoolID string
	// Issuer defaults to IssuerURL(Region, UserPoolID).
	Issuer string
	// TokenUse defaults to TokenUseAccess.
	TokenUse string
	// ClientID enables the client/audience check when set.
	ClientID string
}

// Verifier validates Cognito-issued JWTs: structure, signing key, signature
// and claims, in that order.
type Verifier struct {
	keys       KeyResolver
	signatures SignatureVerifier
	claims     *ClaimsValidator
	logger     *zap.Logger
	recorder   Recorder
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithLogger sets the logger used for verification outcomes.
func WithLogger(logger *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithRecorder sets the sink for verification metrics.
func WithRecorder(recorder Recorder) VerifierOption {
	return func(v *Verifier) {
		if recorder != nil {
			v.recorder = recorder
		}
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.claims.Now = now
	}
}

// NewVerifier creates a Verifier that resolves keys through keys.
func NewVerifier(keys KeyResolver, cfg Config, opts ...VerifierOption) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("key resolver is required")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		if cfg.Region == "" || cfg.UserPoolID == "" {
			return nil, errors.New("issuer or region and user pool id are required")
		}
		issuer = IssuerURL(cfg.Region, cfg.UserPoolID)
	}
	tokenUse := cfg.TokenUse
	if tokenUse == "" {
		tokenUse = TokenUseAccess
	}

	v := &Verifier{
		keys: keys,
		claims: &ClaimsValidator{
			Issuer:   issuer,
			TokenUse: tokenUse,
			ClientID: cfg.ClientID,
			Now:      time.Now,
		},
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issuer returns the issuer tokens must carry.
func (v *Verifier) Issuer() string {
	return v.claims.Issuer
}

// Verify returns the token's claims if it is well formed, signed by a current
// provider key and carries the expected exp, iss and token_use. Otherwise the
// error wraps exactly one of the package's sentinel errors.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (claims Claims, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			claims, err = nil, fmt.Errorf("%w: %v", ErrInvalidJWT, r)
		}
		v.recorder.TokenVerified(ErrorKind(err), time.Since(start))
	}()

	token, err := ParseToken(tokenString)
	if err != nil {
		v.logger.Debug("malformed token", zap.Error(err))
		return nil, err
	}

	key, err := v.keys.Get(ctx, token.KeyID())
	if err != nil {
		if !errors.Is(err, ErrUnknownKey) && !IsProviderError(err) {
			err = fmt.Errorf("%w: %v", ErrKeySetFetch, err)
		}
		v.logger.Warn("signing key lookup failed",
			zap.String("kid", token.KeyID()),
			zap.Error(err))
		return nil, err
	}

	if err := v.signatures.Verify(token.SigningInput, token.Signature, token.Algorithm(), key); err != nil {
		v.logger.Warn("token signature rejected",
			zap.String("kid", key.KeyID),
			zap.String("alg", token.Algorithm()),
			zap.Error(err))
		return nil, err
	}

	claims, err = v.claims.Validate(token.Claims)
	if err != nil {
		v.logger.Debug("token claims rejected",
			zap.String("sub", token.Claims.Subject()),
			zap.Error(err))
		return nil, err
	}

	v.logger.Debug("token verified",
		zap.String("sub", claims.Subject()),
		zap.String("kid", key.KeyID))
	return claims, nil
}
