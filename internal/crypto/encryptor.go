// Package crypto provides AES-256-GCM encryption and decryption for the
// persisted OAuth credential, so access and refresh tokens never sit on disk
// in plaintext when a passphrase is configured.
//
// AES-256-GCM provides both confidentiality and authenticity. Each encryption
// operation uses a unique random nonce, so encrypting the same credential
// twice produces different ciphertexts.
//
// Example usage:
//
//	encryptor, err := crypto.NewTokenEncryptor(cfg.TokenPassphrase)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	encrypted, err := encryptor.Encrypt(credentialJSON)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	plaintext, err := encryptor.Decrypt(encrypted)
//	if err != nil {
//		log.Fatal(err)
//	}
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
)

// TokenEncryptor handles encryption and decryption of the stored OAuth
// credential using AES-256-GCM. It provides authenticated encryption, which
// means both confidentiality and integrity protection for the stored data.
//
// The encryptor is safe for concurrent use by multiple goroutines.
type TokenEncryptor struct {
	key []byte // 32-byte AES-256 encryption key
}

// NewTokenEncryptor creates a new TokenEncryptor from the provided passphrase.
//
// The passphrase is processed with PBKDF2 key derivation so the resulting key
// is exactly 32 bytes for AES-256 and cryptographically strong regardless of
// input length.
//
// Parameters:
//   - passphrase: The encryption passphrase. Must not be empty.
//
// Returns:
//   - *TokenEncryptor: A new encryptor instance
//   - error: An error if the passphrase is empty
func NewTokenEncryptor(passphrase string) (*TokenEncryptor, error) {
	if passphrase == "" {
		return nil, errors.ValidationError("encryption passphrase cannot be empty")
	}

	// Static salt keeps key derivation deterministic across restarts
	salt := []byte("myob-mcp-token-salt")
	derivedKey := pbkdf2.Key([]byte(passphrase), salt, 10000, 32, sha256.New)

	return &TokenEncryptor{key: derivedKey}, nil
}

// Encrypt encrypts a plaintext string using AES-256-GCM and returns the result
// as a base64-encoded string suitable for writing to the credential file.
//
// A fresh random nonce is generated per call and prepended to the ciphertext
// before encoding. Empty strings are returned as empty strings without
// encryption.
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", errors.InternalError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.InternalError("failed to create GCM", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a base64-encoded ciphertext produced by Encrypt and
// returns the original plaintext string.
//
// GCM performs integrity verification during decryption, so a tampered or
// corrupted credential file, or a wrong passphrase, results in an error
// rather than garbage output. Empty strings are returned as empty strings.
func (e *TokenEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.InternalError("failed to decode ciphertext", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", errors.InternalError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.InternalError("failed to create GCM", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.ValidationError("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", errors.InternalError("failed to decrypt", err)
	}

	return string(plaintext), nil
}

// EncryptJSON marshals v to JSON and encrypts the resulting string.
func (e *TokenEncryptor) EncryptJSON(v interface{}) (string, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return "", errors.InternalError("failed to marshal JSON", err)
	}

	return e.Encrypt(string(jsonBytes))
}

// DecryptJSON decrypts ciphertext produced by EncryptJSON and unmarshals the
// plaintext into v.
func (e *TokenEncryptor) DecryptJSON(ciphertext string, v interface{}) error {
	plaintext, err := e.Decrypt(ciphertext)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(plaintext), v); err != nil {
		return errors.InternalError("failed to unmarshal JSON", err)
	}

	return nil
}
