// Package secret seals trading account passwords at rest. The bridge needs
// the clear password on every reconnect, so sealing must be reversible.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sbx1:"
	keySize      = 32
	nonceSize    = 24
)

var (
	ErrInvalidKey = errors.New("secret: key must be 64 hex characters")
	ErrCorrupt    = errors.New("secret: sealed value is corrupt")
)

type Store interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// New returns a SecretBox when a key is configured and Plaintext otherwise.
func New(hexKey string) (Store, error) {
	if strings.TrimSpace(hexKey) == "" {
		logger.Warn("CREDENTIALS_KEY not set; account passwords are stored unsealed")
		return Plaintext{}, nil
	}
	return NewSecretBox(hexKey)
}

type SecretBox struct {
	key [keySize]byte
}

func NewSecretBox(hexKey string) (*SecretBox, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}
	sb := &SecretBox{}
	copy(sb.key[:], raw)
	return sb, nil
}

func (s *SecretBox) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(box), nil
}

// Open accepts rows written before sealing was enabled and returns them as is.
func (s *SecretBox) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	box, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", ErrCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	out, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(out), nil
}

type Plaintext struct{}

func (Plaintext) Seal(plaintext string) (string, error) { return plaintext, nil }

func (Plaintext) Open(stored string) (string, error) {
	if strings.HasPrefix(stored, sealedPrefix) {
		return "", fmt.Errorf("%w: no credentials key configured", ErrCorrupt)
	}
	return stored, nil
}
