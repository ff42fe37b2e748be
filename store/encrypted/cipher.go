package encrypted

import (
	"crypto/cipher"
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	apperrors "github.com/jrsteele09/go-campus-session/internal/errors"
)

// SaltSize is the length of the random salt stored next to sealed data.
const SaltSize = 16

// KDFParams tunes the Argon2id key derivation.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams follows the RFC 9106 second recommended option.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}
}

// Cipher seals values with XChaCha20-Poly1305 under a key derived from a
// passphrase and salt.
type Cipher struct {
	aead cipher.AEAD
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "[NewSalt] failed to generate salt")
	}
	return salt, nil
}

// NewCipher derives the sealing key. An empty passphrase is refused.
func NewCipher(passphrase string, salt []byte, params KDFParams) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidConfig, "[NewCipher] passphrase is required")
	}
	if len(salt) != SaltSize {
		return nil, errors.Wrapf(apperrors.ErrCorruptStore, "[NewCipher] salt must be %d bytes", SaltSize)
	}
	key := argon2.IDKey([]byte(passphrase), salt, params.Time, params.Memory, params.Threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "[NewCipher] failed to create aead")
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext. additional binds the ciphertext to a context such
// as the key name so sealed values cannot be swapped between keys.
func (c *Cipher) Seal(plaintext, additional []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}
	return c.aead.Seal(nonce, nonce, plaintext, additional), nil
}

// Open decrypts data produced by Seal.
func (c *Cipher) Open(sealed, additional []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, apperrors.ErrCorruptStore
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return nil, apperrors.ErrWrongKey
	}
	return plaintext, nil
}
