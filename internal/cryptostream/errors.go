// Package cryptostream wraps an arbitrary bidirectional byte stream with
// encrypt-on-send / decrypt-on-receive framing. Two wrappers share the
// same contract (length-prefixed frame in, length-prefixed frame out):
// AsymmetricStream (RSA-OAEP, used only for the handshake that transports
// the symmetric key) and SymmetricStream (AES-256-GCM, used for all bulk
// traffic afterwards). See spec.md §4.2/§4.3.
package cryptostream

import "errors"

// StreamError is the typed failure taxonomy shared by both wrappers,
// matching the modes enumerated in spec.md §4.2/§4.3 and
// regisd/src/auth/stream/err.rs in the original source.
type StreamError struct {
	Kind Kind
	Err  error
}

// Kind classifies a StreamError.
type Kind int

const (
	KindEncrypt Kind = iota
	KindDecrypt
	KindIO
	KindSerde
	KindUTF8
	KindInvalidNonceLength
	KindBase64Decode
)

func (k Kind) String() string {
	switch k {
	case KindEncrypt:
		return "encrypt"
	case KindDecrypt:
		return "decrypt"
	case KindIO:
		return "io"
	case KindSerde:
		return "serde"
	case KindUTF8:
		return "utf8"
	case KindInvalidNonceLength:
		return "invalid_nonce_length"
	case KindBase64Decode:
		return "base64_decode"
	default:
		return "unknown"
	}
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return "cryptostream: " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "cryptostream: " + e.Kind.String()
}

func (e *StreamError) Unwrap() error { return e.Err }

func newErr(kind Kind, err error) *StreamError {
	return &StreamError{Kind: kind, Err: err}
}

// ErrInvalidNonceLength is returned (wrapped in a StreamError) when a
// received envelope's nonce does not decode to exactly 12 bytes.
var ErrInvalidNonceLength = errors.New("nonce must be exactly 12 bytes")

// IsKind reports whether err is a *StreamError of the given Kind.
func IsKind(err error, kind Kind) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
