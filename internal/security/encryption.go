// Package security seals the popularity-index service credentials on
// disk. Sealing uses SCRYPT key derivation with AES-256-GCM, so a
// stolen credentials file is useless without the application salt
// compiled into this binary.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/scrypt"
)

// EncryptionConfig holds the key-derivation and cipher parameters used
// when sealing credentials.
type EncryptionConfig struct {
	// SCRYPT parameters (OWASP recommended minimum)
	SCryptN      int // CPU/memory cost parameter (32768 minimum)
	SCryptR      int // Block size parameter (8 recommended)
	SCryptP      int // Parallelization parameter (1 recommended)
	SCryptKeyLen int // Key length in bytes (32 for AES-256)

	// AES-GCM parameters
	NonceSize int // 96-bit nonce size for GCM
}

// DefaultEncryptionConfig returns OWASP ASVS compliant encryption parameters.
func DefaultEncryptionConfig() *EncryptionConfig {
	return &EncryptionConfig{
		SCryptN:      32768, // OWASP minimum for high security
		SCryptR:      8,     // Recommended block size
		SCryptP:      1,     // Single thread
		SCryptKeyLen: 32,    // AES-256 key size
		NonceSize:    12,    // 96-bit nonce (GCM standard)
	}
}

// ValidateEncryptionConfig rejects parameters weaker than the defaults.
func ValidateEncryptionConfig(config *EncryptionConfig) error {
	if config == nil {
		return errors.New("encryption config cannot be nil")
	}
	if config.SCryptN < 32768 {
		return fmt.Errorf("SCRYPT N parameter too low: %d (minimum 32768)", config.SCryptN)
	}
	if config.SCryptR < 8 {
		return fmt.Errorf("SCRYPT R parameter too low: %d (minimum 8)", config.SCryptR)
	}
	if config.SCryptP < 1 {
		return fmt.Errorf("SCRYPT P parameter too low: %d (minimum 1)", config.SCryptP)
	}
	if config.SCryptKeyLen != 32 {
		return fmt.Errorf("key length must be 32 bytes for AES-256, got %d", config.SCryptKeyLen)
	}
	if config.NonceSize != 12 {
		return fmt.Errorf("nonce size must be 12 bytes for GCM, got %d", config.NonceSize)
	}
	return nil
}

// EncryptedPayload is the JSON document written to the credentials
// file. The GCM authentication tag rides inline at the end of
// Ciphertext, so tampering with any field fails decryption.
type EncryptedPayload struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

const payloadVersion = 1

// SecureCredentials holds decrypted credential bytes and wipes them on
// Clear. Callers must Clear as soon as the plaintext has been used.
type SecureCredentials struct {
	data    []byte
	cleared bool
}

// Data returns the decrypted bytes, or nil after Clear.
func (sc *SecureCredentials) Data() []byte {
	if sc.cleared {
		return nil
	}
	return sc.data
}

// Clear overwrites the plaintext with multiple patterns before
// releasing it. Safe to call more than once.
func (sc *SecureCredentials) Clear() {
	if sc.cleared {
		return
	}

	for i := range sc.data {
		sc.data[i] = 0x00
	}
	for i := range sc.data {
		sc.data[i] = 0xFF
	}
	rand.Read(sc.data)
	zeroBytes(sc.data)

	sc.data = nil
	sc.cleared = true
	runtime.GC()
}

// EncryptCredentials seals plaintext with AES-256-GCM under a key
// derived from the application salt and a fresh random salt.
func EncryptCredentials(plaintext, appSalt []byte, config *EncryptionConfig) (*EncryptedPayload, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}
	if len(appSalt) < 16 {
		return nil, errors.New("application salt must be at least 16 bytes")
	}
	if config == nil {
		config = DefaultEncryptionConfig()
	}
	if err := ValidateEncryptionConfig(config); err != nil {
		return nil, fmt.Errorf("invalid encryption config: %w", err)
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(appSalt, salt, config)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, config.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedPayload{
		Version:    payloadVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// DecryptCredentials unseals a payload produced by EncryptCredentials.
// Any modification of the payload makes GCM authentication fail.
func DecryptCredentials(payload *EncryptedPayload, appSalt []byte, config *EncryptionConfig) (*SecureCredentials, error) {
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}
	if payload.Version != payloadVersion {
		return nil, fmt.Errorf("unsupported payload version: %d", payload.Version)
	}
	if len(appSalt) < 16 {
		return nil, errors.New("application salt must be at least 16 bytes")
	}
	if config == nil {
		config = DefaultEncryptionConfig()
	}

	key, err := deriveKey(appSalt, payload.Salt, config)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(payload.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size: %d", len(payload.Nonce))
	}

	plaintext, err := gcm.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, errors.New("decryption failed: invalid credentials or corrupted data")
	}

	return &SecureCredentials{data: plaintext}, nil
}

// deriveKey stretches the application salt combined with the payload
// salt into an AES-256 key.
func deriveKey(appSalt, salt []byte, config *EncryptionConfig) ([]byte, error) {
	combined := make([]byte, 0, len(appSalt)+len(salt))
	combined = append(combined, appSalt...)
	combined = append(combined, salt...)
	defer zeroBytes(combined)

	key, err := scrypt.Key(combined, salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// SecureCompare reports whether two byte slices are equal in constant
// time.
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
