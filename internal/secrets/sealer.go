// Package secrets seals tenant credentials at rest with AES-256-GCM.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/smallbiznis/stripesync/internal/config"
	"go.uber.org/fx"
)

const sealedPrefix = "enc:v1:"

var (
	ErrKeyMissing    = errors.New("secrets_key_missing")
	ErrInvalidSealed = errors.New("invalid_sealed_value")
)

// Sealer encrypts and decrypts secrets. Values without the sealed prefix are
// treated as plaintext so existing rows keep working.
type Sealer struct {
	key []byte
}

func NewSealer(secret string) *Sealer {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Sealer{}
	}
	sum := sha256.Sum256([]byte(secret))
	return &Sealer{key: sum[:]}
}

func provide(cfg config.Config) *Sealer {
	return NewSealer(cfg.SecretsKey)
}

var Module = fx.Module("secrets",
	fx.Provide(provide),
)

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

func (s *Sealer) Seal(plain string) (string, error) {
	gcm, err := s.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	gcm, err := s.aead()
	if err != nil {
		return "", err
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrInvalidSealed
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrInvalidSealed
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidSealed
	}
	return string(plain), nil
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	if s == nil || len(s.key) == 0 {
		return nil, ErrKeyMissing
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealIfConfigured returns the value unchanged when no key is configured.
func (s *Sealer) SealIfConfigured(value string) (string, error) {
	sealed, err := s.Seal(value)
	if errors.Is(err, ErrKeyMissing) {
		return value, nil
	}
	return sealed, err
}
