package cryptostream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// SymmetricKeySizeBytes is the AES-256 key size mandated by spec.md §4.3.
const SymmetricKeySizeBytes = 32

// symmetricNonceSizeBytes is the AES-GCM standard nonce size (96 bits).
const symmetricNonceSizeBytes = 12

// symmetricEnvelope is the wire struct spec.md §4.3 mandates: base64
// ciphertext and base64 nonce, JSON-encoded then length-prefixed.
type symmetricEnvelope struct {
	Cipher string `json:"cipher"`
	Nonce  string `json:"nonce"`
}

// GenerateSymmetricKey returns 32 cryptographically random bytes, used
// both for a user's AuthKey (spec.md §3) and for the per-connection
// session key negotiated during the handshake.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySizeBytes)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// SymmetricStream wraps an arbitrary bidirectional byte stream with
// AES-256-GCM authenticated encryption. Every message uses a fresh
// random nonce; nonces are never reused with the same key (spec.md §4.3).
type SymmetricStream struct {
	inner io.ReadWriter
	aead  cipher.AEAD
}

// NewSymmetricStream constructs a wrapper around inner using key (must
// be exactly SymmetricKeySizeBytes long).
func NewSymmetricStream(inner io.ReadWriter, key []byte) (*SymmetricStream, error) {
	if len(key) != SymmetricKeySizeBytes {
		return nil, fmt.Errorf("cryptostream: symmetric key must be %d bytes, got %d", SymmetricKeySizeBytes, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SymmetricStream{inner: inner, aead: aead}, nil
}

// SendBytes encrypts buf under a fresh nonce, builds the envelope, and
// writes it length-prefixed to the underlying stream.
func (s *SymmetricStream) SendBytes(buf []byte) error {
	nonce := make([]byte, symmetricNonceSizeBytes)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return newErr(KindEncrypt, err)
	}
	ciphertext := s.aead.Seal(nil, nonce, buf, nil)

	env := symmetricEnvelope{
		Cipher: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:  base64.StdEncoding.EncodeToString(nonce),
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return newErr(KindSerde, err)
	}
	if err := writeFrame(s.inner, envBytes); err != nil {
		return newErr(KindIO, err)
	}
	return nil
}

// SendString encrypts and sends string s.
func (s *SymmetricStream) SendString(str string) error {
	return s.SendBytes([]byte(str))
}

// SendSerialize JSON-encodes v and sends it.
func (s *SymmetricStream) SendSerialize(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return newErr(KindSerde, err)
	}
	return s.SendBytes(buf)
}

// ReceiveBytes reads one length-prefixed envelope, decodes it, and
// decrypts-and-authenticates the plaintext.
func (s *SymmetricStream) ReceiveBytes() ([]byte, error) {
	frame, err := readFrame(s.inner)
	if err != nil {
		return nil, newErr(KindIO, err)
	}

	var env symmetricEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, newErr(KindSerde, err)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, newErr(KindBase64Decode, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Cipher)
	if err != nil {
		return nil, newErr(KindBase64Decode, err)
	}

	if len(nonce) != symmetricNonceSizeBytes {
		return nil, newErr(KindInvalidNonceLength, ErrInvalidNonceLength)
	}

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, newErr(KindDecrypt, err)
	}
	return plaintext, nil
}

// ReceiveString reads, decrypts, and UTF-8-validates a frame.
func (s *SymmetricStream) ReceiveString() (string, error) {
	buf, err := s.ReceiveBytes()
	if err != nil {
		return "", err
	}
	if !isValidUTF8(buf) {
		return "", newErr(KindUTF8, fmt.Errorf("payload is not valid UTF-8"))
	}
	return string(buf), nil
}

// ReceiveDeserialize reads, decrypts, and JSON-decodes a frame into v.
func (s *SymmetricStream) ReceiveDeserialize(v any) error {
	buf, err := s.ReceiveBytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return newErr(KindSerde, err)
	}
	return nil
}
