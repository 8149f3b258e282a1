// Package encryption protects sensitive user fields at rest with AES-256-CBC
// and derives keyed hashes for equality lookups on encrypted values.
package encryption

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"restjam/internal/middleware"
)

// FailurePolicy decides what Decrypt does with a value that looks encrypted
// but cannot be decrypted.
type FailurePolicy int

const (
	// PassThrough logs a warning and returns the stored value unchanged.
	PassThrough FailurePolicy = iota
	// Strict returns ErrDecrypt.
	Strict
)

// ErrDecrypt is returned when an encrypted-looking value fails to decrypt.
var ErrDecrypt = errors.New("encryption: decrypt failed")

var encryptedPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}:[0-9a-fA-F]+$`)

// ParsePolicy maps a config value to a FailurePolicy; unknown values fall back to PassThrough.
func ParsePolicy(s string) FailurePolicy {
	if strings.EqualFold(strings.TrimSpace(s), "strict") {
		return Strict
	}
	return PassThrough
}

func (p FailurePolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "passthrough"
}

// Cipher encrypts and decrypts strings in the "ivHex:cipherHex" format.
type Cipher struct {
	key    []byte
	secret string
	policy FailurePolicy
}

// New derives the AES-256 key as SHA-256(secret).
func New(secret string, policy FailurePolicy) *Cipher {
	sum := sha256.Sum256([]byte(secret))
	return &Cipher{key: sum[:], secret: secret, policy: policy}
}

// Policy reports the configured failure policy.
func (c *Cipher) Policy() FailurePolicy {
	return c.policy
}

// IsEncrypted reports whether value has the "ivHex:cipherHex" shape with a 16-byte IV.
func IsEncrypted(value string) bool {
	return encryptedPattern.MatchString(value)
}

// Encrypt returns hex(iv) + ":" + hex(ciphertext) using a fresh random IV.
// The empty string encrypts to the empty string.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("encryption: new cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("encryption: read iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Values that are not in encrypted form are
// returned unchanged. A failed decryption follows the cipher's policy.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	plain, err := c.decrypt(value)
	if err == nil {
		return plain, nil
	}
	if c.policy == Strict {
		return "", err
	}
	middleware.Logger.WarnContext(context.Background(), "decryption failed, returning stored value", "error", err)
	return value, nil
}

// DecryptStrict is Decrypt with the Strict policy regardless of configuration.
func (c *Cipher) DecryptStrict(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	return c.decrypt(value)
}

func (c *Cipher) decrypt(value string) (string, error) {
	ivHex, dataHex, _ := strings.Cut(value, ":")

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrDecrypt, err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrDecrypt, err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecrypt)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// CreateHash returns hex(SHA-256(text + secret)). The empty string hashes to itself.
func (c *Cipher) CreateHash(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text + c.secret))
	return hex.EncodeToString(sum[:])
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padding length", ErrDecrypt)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
