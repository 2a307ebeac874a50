// Package vault encrypts connector secrets at rest with an authenticated
// symmetric cipher. Envelopes are self-describing: three dot-separated base64
// segments holding nonce, authentication tag and ciphertext.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deskmate/deskmate/internal/domain"
)

const (
	keySize   = 32
	nonceSize = 16
	tagSize   = 16

	envelopeSeparator = "."
	envelopeSegments  = 3
)

// Vault performs AES-256-GCM encryption and decryption of opaque payloads.
// The key is process-wide configuration, read once at startup and used as-is.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a base64-encoded 256-bit key. It fails fast with a
// ConfigurationError when the key is absent or does not decode to 32 bytes.
func New(base64Key string) (*Vault, error) {
	if base64Key == "" {
		return nil, domain.NewConfigurationError("encryption key", "not set")
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, domain.NewConfigurationError("encryption key", "not valid base64")
	}

	if len(key) != keySize {
		return nil, domain.NewConfigurationError("encryption key", fmt.Sprintf("must be %d bytes, got %d", keySize, len(key)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, domain.NewConfigurationError("encryption key", err.Error())
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, domain.NewConfigurationError("encryption key", err.Error())
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random nonce and returns the
// envelope string.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, plaintext, nil)

	// Seal appends the tag to the ciphertext; the envelope carries them as
	// separate segments.
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	segments := []string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}

	return strings.Join(segments, envelopeSeparator), nil
}

// Decrypt opens an envelope. Any malformed envelope or failed tag verification
// yields an IntegrityError; corrupted plaintext is never returned.
func (v *Vault) Decrypt(envelope string) ([]byte, error) {
	segments := strings.Split(envelope, envelopeSeparator)
	if len(segments) != envelopeSegments {
		return nil, domain.NewIntegrityError(fmt.Sprintf("envelope must have %d segments, got %d", envelopeSegments, len(segments)))
	}

	nonce, err := base64.StdEncoding.DecodeString(segments[0])
	if err != nil {
		return nil, domain.NewIntegrityError("nonce is not valid base64")
	}

	if len(nonce) != nonceSize {
		return nil, domain.NewIntegrityError(fmt.Sprintf("nonce must be %d bytes, got %d", nonceSize, len(nonce)))
	}

	tag, err := base64.StdEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, domain.NewIntegrityError("tag is not valid base64")
	}

	if len(tag) != tagSize {
		return nil, domain.NewIntegrityError(fmt.Sprintf("tag must be %d bytes, got %d", tagSize, len(tag)))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, domain.NewIntegrityError("ciphertext is not valid base64")
	}

	plaintext, err := v.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, domain.NewIntegrityError("authentication failed")
	}

	return plaintext, nil
}

// EncryptJSON marshals the value and seals it into an envelope.
func (v *Vault) EncryptJSON(value any) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}

	return v.Encrypt(plaintext)
}

// DecryptJSON opens an envelope and unmarshals the plaintext into out.
func (v *Vault) DecryptJSON(envelope string, out any) error {
	plaintext, err := v.Decrypt(envelope)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("failed to unmarshal decrypted payload: %w", err)
	}

	return nil
}

// GenerateKey returns a fresh base64-encoded 256-bit key.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}
