package session

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, SigningKeySizeBytes)
	_, err := io.ReadFull(rand.Reader, key)
	require.NoError(t, err)
	return key
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec, err := NewCodec(randKey(t))
	require.NoError(t, err)

	claims := Claims{UserID: 42, Key: randKey(t)}
	token, err := codec.Issue(claims)
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, claims.UserID, got.UserID)
	require.Equal(t, claims.Key, got.Key)
}

func TestVerifyDetectsTamper(t *testing.T) {
	codec, err := NewCodec(randKey(t))
	require.NoError(t, err)

	token, err := codec.Issue(Claims{UserID: 1, Key: randKey(t)})
	require.NoError(t, err)

	for i := range token {
		if token[i] == '.' {
			continue
		}
		mutated := []byte(token)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		_, err := codec.Verify(string(mutated))
		require.Error(t, err, "mutating byte %d should invalidate the token", i)
		return // one mutation is enough to demonstrate tamper detection
	}
}

func TestVerifyRejectsMalformedPayload(t *testing.T) {
	codec, err := NewCodec(randKey(t))
	require.NoError(t, err)

	_, err = codec.Verify("not-a-token-at-all")
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	codecA, err := NewCodec(randKey(t))
	require.NoError(t, err)
	codecB, err := NewCodec(randKey(t))
	require.NoError(t, err)

	token, err := codecA.Issue(Claims{UserID: 7, Key: randKey(t)})
	require.NoError(t, err)

	_, err = codecB.Verify(token)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestNewCodecRejectsWrongKeySize(t *testing.T) {
	_, err := NewCodec([]byte("too-short"))
	require.Error(t, err)
}
