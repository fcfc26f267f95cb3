package cognito

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// JWKS represents the JSON Web Key Set document published by the provider
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// SigningKey is a provider public key ready for signature checks.
type SigningKey struct {
	KeyID     string
	Algorithm string
	KeyType   string
	Use       string
	PublicKey crypto.PublicKey
}

// KeySet is an immutable set of signing keys indexed by key id.
type KeySet struct {
	keys      map[string]*SigningKey
	order     []string
	FetchedAt time.Time
	Source    string
}

// Lookup returns the key with the given id.
func (s *KeySet) Lookup(kid string) (*SigningKey, bool) {
	if s == nil {
		return nil, false
	}
	key, ok := s.keys[kid]
	return key, ok
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// KeyIDs returns the key ids in the order the provider published them.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// NewKeySet builds a KeySet from already-constructed keys. Duplicate key ids
// keep the first occurrence.
func NewKeySet(source string, fetchedAt time.Time, keys ...*SigningKey) *KeySet {
	set := &KeySet{
		keys:      make(map[string]*SigningKey, len(keys)),
		order:     make([]string, 0, len(keys)),
		FetchedAt: fetchedAt,
		Source:    source,
	}
	for _, key := range keys {
		if _, dup := set.keys[key.KeyID]; dup {
			continue
		}
		set.keys[key.KeyID] = key
		set.order = append(set.order, key.KeyID)
	}
	return set
}

// ParseKeySet decodes a JWKS document. Transport-level problems are the
// caller's concern; here a body that is not JSON or an entry of the wrong
// shape yields ErrKeySetParse and an empty key list yields ErrKeySetFetch.
func ParseKeySet(body []byte, source string, fetchedAt time.Time) (*KeySet, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrKeySetParse, err)
	}
	if len(doc.Keys) == 0 {
		return nil, fmt.Errorf("%w: the JWKS endpoint does not contain any keys", ErrKeySetFetch)
	}

	keys := make([]*SigningKey, 0, len(doc.Keys))
	for i, raw := range doc.Keys {
		var jwk JWK
		if err := json.Unmarshal(raw, &jwk); err != nil {
			return nil, fmt.Errorf("%w: key %d: %v", ErrKeySetParse, i, err)
		}
		key, err := jwk.SigningKey()
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		keys = append(keys, key)
	}

	return NewKeySet(source, fetchedAt, keys...), nil
}

// SigningKey validates the JWK shape and converts it into a SigningKey
func (j JWK) SigningKey() (*SigningKey, error) {
	required := [...]struct{ name, value string }{
		{"kid", j.Kid}, {"kty", j.Kty}, {"alg", j.Alg}, {"use", j.Use}, {"n", j.N}, {"e", j.E},
	}
	for _, field := range required {
		if field.value == "" {
			return nil, fmt.Errorf("%w: missing %q", ErrKeySetParse, field.name)
		}
	}
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("%w: kid %s: unsupported key type %q", ErrKeySetParse, j.Kid, j.Kty)
	}
	if !isSupportedAlgorithm(j.Alg) {
		return nil, fmt.Errorf("%w: kid %s: unsupported algorithm %q", ErrKeySetParse, j.Kid, j.Alg)
	}

	publicKey, err := j.rsaPublicKey()
	if err != nil {
		return nil, fmt.Errorf("%w: kid %s: %v", ErrKeySetParse, j.Kid, err)
	}

	return &SigningKey{
		KeyID:     j.Kid,
		Algorithm: j.Alg,
		KeyType:   j.Kty,
		Use:       j.Use,
		PublicKey: publicKey,
	}, nil
}

// rsaPublicKey converts the modulus and exponent into an RSA public key
func (j JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(eBytes) > 4 {
		return nil, fmt.Errorf("exponent too large")
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}
	n := new(big.Int).SetBytes(nBytes)
	if n.Sign() <= 0 || e < 3 {
		return nil, fmt.Errorf("invalid modulus or exponent")
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}
