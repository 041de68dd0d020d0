package capture

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts captured payloads at rest. Guest walls often run on
// shared or kiosk devices; a stolen sqlite file must not leak the
// event's photos.
type Sealer struct {
	key []byte
}

// NewSealer builds a sealer from a hex-encoded 32-byte key
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.New("seal key must be hex encoded")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes (%d hex chars)", chacha20poly1305.KeySize, chacha20poly1305.KeySize*2)
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts plaintext; the random nonce is prepended to the box
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a sealed payload
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("sealed payload too short")
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, box, nil)
}
