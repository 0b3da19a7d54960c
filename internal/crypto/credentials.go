// Package crypto provides authenticated encryption for exchange API credentials
// at rest, keyed by a single deployment master secret (spec.md §3, §6).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// ErrMasterKeyMismatch is returned when a ciphertext fails authentication,
// almost always meaning CRYPTO_MASTER_KEY was rotated or never matched the
// key it was encrypted under.
var ErrMasterKeyMismatch = errors.New("cannot decrypt credential: CRYPTO_MASTER_KEY mismatch")

// Box encrypts and decrypts credential strings with AES-256-GCM under a key
// derived from the deployment's master secret.
type Box struct {
	gcm cipher.AEAD
}

// NewBox builds a Box from the raw CRYPTO_MASTER_KEY value. An empty key is
// tolerated in dev: a random ephemeral key is generated and a warning logged,
// matching the dashboard API's fallback behavior — ciphertexts produced under
// an ephemeral key do not survive a process restart.
func NewBox(masterKey string) (*Box, error) {
	if masterKey == "" {
		ephemeral := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, ephemeral); err != nil {
			return nil, fmt.Errorf("generate ephemeral master key: %w", err)
		}
		log.Warn().Msg("CRYPTO_MASTER_KEY is empty; generated ephemeral key (dev-only, credentials will not decrypt after restart)")
		return newBoxFromKey(ephemeral)
	}

	// Derive a 32-byte AES-256 key from whatever length secret the operator set.
	sum := sha256.Sum256([]byte(masterKey))
	return newBoxFromKey(sum[:])
}

func newBoxFromKey(key []byte) (*Box, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build GCM mode: %w", err)
	}
	return &Box{gcm: gcm}, nil
}

// Encrypt returns the hex-encoded nonce and hex-encoded ciphertext for s.
func (b *Box) Encrypt(s string) (ciphertext, nonce string, err error) {
	n := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.gcm.Seal(nil, n, []byte(s), nil)
	return hex.EncodeToString(sealed), hex.EncodeToString(n), nil
}

// Decrypt reverses Encrypt. A failure here almost always means the
// ciphertext was sealed under a different CRYPTO_MASTER_KEY.
func (b *Box) Decrypt(ciphertext, nonce string) (string, error) {
	ctBytes, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceBytes, err := hex.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	plain, err := b.gcm.Open(nil, nonceBytes, ctBytes, nil)
	if err != nil {
		return "", ErrMasterKeyMismatch
	}
	return string(plain), nil
}

// EncodeBase64 and DecodeBase64 are convenience wrappers used when credential
// blobs travel over the Control Store's JSON API instead of being stored raw.
func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func DecodeBase64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
