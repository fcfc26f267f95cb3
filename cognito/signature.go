package cognito

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// KeyUseSignature is the JWK "use" value for signing keys.
const KeyUseSignature = "sig"

// supportedAlgorithms lists the asymmetric RSA methods a provider key may declare.
var supportedAlgorithms = map[string]jwt.SigningMethod{
	jwt.SigningMethodRS256.Alg(): jwt.SigningMethodRS256,
	jwt.SigningMethodRS384.Alg(): jwt.SigningMethodRS384,
	jwt.SigningMethodRS512.Alg(): jwt.SigningMethodRS512,
	jwt.SigningMethodPS256.Alg(): jwt.SigningMethodPS256,
	jwt.SigningMethodPS384.Alg(): jwt.SigningMethodPS384,
	jwt.SigningMethodPS512.Alg(): jwt.SigningMethodPS512,
}

func isSupportedAlgorithm(alg string) bool {
	_, ok := supportedAlgorithms[alg]
	return ok
}

// SignatureVerifier checks a token signature against a provider key.
type SignatureVerifier struct{}

// Verify checks signature over signingInput with key. headerAlg is the alg
// from the token header and must equal the algorithm the key declares.
func (SignatureVerifier) Verify(signingInput string, signature []byte, headerAlg string, key *SigningKey) (err error) {
	if key == nil {
		return fmt.Errorf("%w: no key", ErrSignature)
	}
	if key.Use != KeyUseSignature {
		return fmt.Errorf("%w: key %s is not a signing key (use %q)", ErrSignature, key.KeyID, key.Use)
	}
	if headerAlg != key.Algorithm {
		return fmt.Errorf("%w: token alg %q does not match key alg %q", ErrSignature, headerAlg, key.Algorithm)
	}
	method, ok := supportedAlgorithms[key.Algorithm]
	if !ok {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrSignature, key.Algorithm)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSignature, r)
		}
	}()

	if err := method.Verify(signingInput, signature, key.PublicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return nil
}
