// Package session implements the signed session token codec of
// spec.md §4.4: an opaque string encoding {user_id, auth_key} under an
// HMAC-SHA256 signature over a server-local signing key.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SigningKeySizeBytes is the size of the server-local HMAC signing key.
const SigningKeySizeBytes = 32

// Claims is the payload carried by a session token.
type Claims struct {
	UserID uint64
	Key    []byte // 32-byte AuthKey
}

// Verification failure reasons, per spec.md §4.4.
var (
	ErrBadSignature     = errors.New("session: bad signature")
	ErrMalformedPayload = errors.New("session: malformed payload")
	ErrBadNumber        = errors.New("session: non-parseable user id")
	ErrBadKey           = errors.New("session: key is not a valid 32-byte base64 value")
)

// Codec issues and verifies session tokens under a single HMAC-SHA256
// signing key.
type Codec struct {
	signingKey []byte
}

// NewCodec constructs a Codec from a 32-byte signing key.
func NewCodec(signingKey []byte) (*Codec, error) {
	if len(signingKey) != SigningKeySizeBytes {
		return nil, fmt.Errorf("session: signing key must be %d bytes, got %d", SigningKeySizeBytes, len(signingKey))
	}
	return &Codec{signingKey: append([]byte(nil), signingKey...)}, nil
}

// payload separator: not base64-alphabet, safe to split on.
const fieldSep = "."

// Issue encodes claims into an opaque signed token. Per spec.md §4.4,
// this only fails on an HMAC misconfiguration, which cannot occur once
// NewCodec has validated the key size — so Issue never returns an error
// in practice, but keeps the return shape symmetric with Verify.
func (c *Codec) Issue(claims Claims) (string, error) {
	idStr := strconv.FormatUint(claims.UserID, 10)
	keyStr := base64.StdEncoding.EncodeToString(claims.Key)
	payload := idStr + fieldSep + keyStr

	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write([]byte(payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	token := base64.RawURLEncoding.EncodeToString([]byte(payload)) + fieldSep + sig
	return token, nil
}

// Verify decodes and signature-checks a token, returning its Claims.
func (c *Codec) Verify(token string) (Claims, error) {
	parts := strings.SplitN(token, fieldSep, 2)
	if len(parts) != 2 {
		return Claims{}, ErrMalformedPayload
	}
	encodedPayload, sig := parts[0], parts[1]

	payloadBytes, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return Claims{}, ErrMalformedPayload
	}

	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write(payloadBytes)
	expectedSig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expectedSig), []byte(sig)) {
		return Claims{}, ErrBadSignature
	}

	payloadParts := strings.SplitN(string(payloadBytes), fieldSep, 2)
	if len(payloadParts) != 2 {
		return Claims{}, ErrMalformedPayload
	}
	idStr, keyStr := payloadParts[0], payloadParts[1]
	if idStr == "" || keyStr == "" {
		return Claims{}, ErrMalformedPayload
	}

	userID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return Claims{}, ErrBadNumber
	}

	key, err := base64.StdEncoding.DecodeString(keyStr)
	if err != nil || len(key) != SigningKeySizeBytes {
		return Claims{}, ErrBadKey
	}

	return Claims{UserID: userID, Key: key}, nil
}
