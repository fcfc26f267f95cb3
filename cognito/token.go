package cognito

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Token is a compact JWT split into its decoded parts. SigningInput is the
// exact header.payload prefix of Raw, never a re-encoding.
type Token struct {
	Raw          string
	Header       map[string]any
	Claims       Claims
	Signature    []byte
	SigningInput string
}

// KeyID returns the kid header value.
func (t *Token) KeyID() string {
	kid, _ := t.Header["kid"].(string)
	return kid
}

// Algorithm returns the alg header value.
func (t *Token) Algorithm() string {
	alg, _ := t.Header["alg"].(string)
	return alg
}

// segmentParser decodes unpadded base64url segments, rejecting non-canonical
// encodings. It is safe for concurrent use.
var segmentParser = jwt.NewParser(jwt.WithStrictDecoding())

// ParseToken checks the structure of a compact JWT without verifying it.
// Every failure wraps ErrInvalidJWT.
func ParseToken(raw string) (*Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token has %d segments, want 3", ErrInvalidJWT, len(parts))
	}
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: segment %d is empty", ErrInvalidJWT, i)
		}
	}

	headerBytes, err := segmentParser.DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidJWT, err)
	}
	payloadBytes, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidJWT, err)
	}
	signature, err := segmentParser.DecodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrInvalidJWT, err)
	}

	var header map[string]any
	if err := decodeObject(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidJWT, err)
	}
	var claims Claims
	if err := decodeObject(payloadBytes, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidJWT, err)
	}

	token := &Token{
		Raw:          raw,
		Header:       header,
		Claims:       claims,
		Signature:    signature,
		SigningInput: raw[:len(parts[0])+1+len(parts[1])],
	}
	if token.KeyID() == "" {
		return nil, fmt.Errorf("%w: header has no kid", ErrInvalidJWT)
	}
	if token.Algorithm() == "" {
		return nil, fmt.Errorf("%w: header has no alg", ErrInvalidJWT)
	}

	return token, nil
}

// decodeObject decodes a JSON object, keeping numbers as json.Number so
// large integer claims survive unchanged.
func decodeObject(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// More reports false before a stray '}' or ']', so read to EOF instead
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after JSON object")
	}
	// a bare "null" decodes into a nil map without error
	switch m := v.(type) {
	case *map[string]any:
		if *m == nil {
			return fmt.Errorf("not a JSON object")
		}
	case *Claims:
		if *m == nil {
			return fmt.Errorf("not a JSON object")
		}
	}
	return nil
}
