package frame

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/tphakala/nirspec-go/internal/errors"
)

const (
	ivSize  = 12
	tagSize = 16
)

// ErrAuthentication is returned when an envelope fails tag verification.
var ErrAuthentication = errors.NewStd("envelope authentication failed")

// DeriveKey derives the AES-128 key from a password: the first 16 bytes of
// its SHA-256 digest.
func DeriveKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:16]
}

// Envelope wraps frame payloads in an authenticated AES-GCM layer.
// Wire layout per sealed message: iv(12) ‖ tag(16) ‖ ciphertext.
type Envelope struct {
	aead cipher.AEAD
}

// NewEnvelope creates an envelope using AES-GCM with the given key.
func NewEnvelope(key []byte) (*Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryValidation).
			Context("key_len", len(key)).
			Build()
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Envelope{aead: aead}, nil
}

// Seal encrypts plaintext and lays the result out as iv ‖ tag ‖ ciphertext.
func (e *Envelope) Seal(plaintext []byte) ([]byte, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategorySystem).
			Build()
	}

	// GCM appends the tag to the ciphertext; the wire layout wants it in
	// front, so split and reorder.
	sealed := e.aead.Seal(nil, iv, plaintext, nil)
	ctLen := len(sealed) - tagSize
	out := make([]byte, 0, ivSize+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed[ctLen:]...)
	out = append(out, sealed[:ctLen]...)
	return out, nil
}

// Open verifies and decrypts an iv ‖ tag ‖ ciphertext message. A tag
// mismatch or truncated message yields ErrAuthentication.
func (e *Envelope) Open(message []byte) ([]byte, error) {
	if len(message) < ivSize+tagSize {
		return nil, errors.New(ErrAuthentication).
			Component("frame").
			Category(errors.CategoryAuth).
			Context("message_len", len(message)).
			Build()
	}

	iv := message[:ivSize]
	tag := message[ivSize : ivSize+tagSize]
	ct := message[ivSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := e.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, errors.New(ErrAuthentication).
			Component("frame").
			Category(errors.CategoryAuth).
			Build()
	}
	return plaintext, nil
}
