// Package cipher encrypts message bodies at rest with AES-CBC.
//
// A token is base64(iv || ciphertext) where the plaintext is PKCS#7 padded
// to the AES block size and iv is a fresh random block per call.
package cipher

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/shubham07069/chatgod/internal/apperr"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize          = 32
	PBKDF2Iterations = 100_000
)

// Placeholder replaces message content that could not be decrypted.
const Placeholder = "Error decrypting message"

type Cipher struct {
	block gocipher.Block
}

// New returns a Cipher for an AES-128, AES-192 or AES-256 key.
func New(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("message cipher: %w", err)
	}
	return &Cipher{block: block}, nil
}

// NewRandom returns a Cipher with a key that lives only as long as the
// process. Ciphertext written with it cannot be read after a restart.
func NewRandom() (*Cipher, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("message cipher: generate key: %w", err)
	}
	return New(key)
}

// FromPassphrase derives a 256-bit key with PBKDF2-SHA256.
func FromPassphrase(passphrase string, salt []byte) (*Cipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("message cipher: empty passphrase")
	}
	return New(pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New))
}

// FromBase64Key decodes a standard base64 encoded AES key.
func FromBase64Key(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("message cipher: decode key: %w", err)
	}
	return New(key)
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	bs := c.block.BlockSize()
	padded := pad([]byte(plaintext), bs)

	out := make([]byte, bs+len(padded))
	iv := out[:bs]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("message cipher: generate iv: %w", err)
	}
	gocipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[bs:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Every failure wraps apperr.ErrDecrypt.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrDecrypt, err)
	}
	bs := c.block.BlockSize()
	if len(raw) < 2*bs || len(raw)%bs != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", apperr.ErrDecrypt, len(raw))
	}

	iv, body := raw[:bs], raw[bs:]
	plain := make([]byte, len(body))
	gocipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, body)

	plain, err = unpad(plain, bs)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not valid utf-8", apperr.ErrDecrypt)
	}
	return string(plain), nil
}

// DecryptOrPlaceholder returns Placeholder instead of an error.
func (c *Cipher) DecryptOrPlaceholder(token string) (string, bool) {
	plain, err := c.Decrypt(token)
	if err != nil {
		return Placeholder, false
	}
	return plain, true
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", apperr.ErrDecrypt)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", apperr.ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
