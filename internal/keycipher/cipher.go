// Package keycipher encrypts custodial private-key material under the
// server-held secret. The envelope is base64(salt || iv || ciphertext):
// AES-256-CBC with a fresh random IV per encryption, PKCS#7 padding, and the
// AES key derived from the secret with scrypt over a fresh random salt.
package keycipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"

	xerrors "OxVenta-Custody/internal/errors"
)

const (
	// scrypt parameters sized for a server that derives a key on every
	// signing request. N=2^15 keeps derivation under ~100ms while staying
	// expensive enough against offline brute force of a leaked database.
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// CodeDecryption 表示密文无法在当前密钥下还原。
const CodeDecryption xerrors.Code = "DECRYPTION_FAILED"

// ErrDecryption reports a ciphertext that cannot be recovered under the
// configured secret: wrong secret, truncated envelope, or tampered bytes.
var ErrDecryption = xerrors.New(CodeDecryption, "decryption failed")

func init() {
	xerrors.Register(CodeDecryption, xerrors.Attributes{
		Message:   "decryption failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// Cipher performs symmetric encryption of key material. The secret is held
// for the process lifetime and is never logged.
type Cipher struct {
	secret []byte
}

// New validates the configured secret and returns a ready cipher.
func New(secret string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "custody secret is empty")
	}
	return &Cipher{secret: []byte(secret)}, nil
}

// Encrypt seals plaintext and returns the transport-safe envelope.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	block, err := c.newBlock(salt)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext))
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	envelope := make([]byte, 0, saltLen+aes.BlockSize+len(encrypted))
	envelope = append(envelope, salt...)
	envelope = append(envelope, iv...)
	envelope = append(envelope, encrypted...)
	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt opens an envelope produced by Encrypt. Any structural defect in the
// envelope reports ErrDecryption; a wrong secret surfaces the same way via the
// padding check, and the caller must additionally validate that the recovered
// bytes parse as a private key for the intended network family.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	envelope, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", xerrors.Wrap(CodeDecryption, err, "ciphertext is not valid base64")
	}
	if len(envelope) < saltLen+aes.BlockSize+aes.BlockSize {
		return "", xerrors.New(CodeDecryption, "ciphertext envelope too short")
	}
	salt := envelope[:saltLen]
	iv := envelope[saltLen : saltLen+aes.BlockSize]
	encrypted := envelope[saltLen+aes.BlockSize:]
	if len(encrypted)%aes.BlockSize != 0 {
		return "", xerrors.New(CodeDecryption, "ciphertext length is not a block multiple")
	}

	block, err := c.newBlock(salt)
	if err != nil {
		return "", err
	}

	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)

	plaintext, err := unpad(decrypted)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Cipher) newBlock(salt []byte) (cipher.Block, error) {
	key, err := scrypt.Key(c.secret, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return block, nil
}

// pad appends PKCS#7 padding: n copies of byte value n up to the block size.
func pad(p []byte) []byte {
	n := aes.BlockSize - len(p)%aes.BlockSize
	padded := make([]byte, len(p), len(p)+n)
	copy(padded, p)
	for i := 0; i < n; i++ {
		padded = append(padded, byte(n))
	}
	return padded
}

// unpad trims PKCS#7 padding, rejecting any inconsistency so that tampered
// or wrongly-keyed ciphertexts are not silently accepted.
func unpad(p []byte) ([]byte, error) {
	if len(p) == 0 {
		return nil, xerrors.New(CodeDecryption, "decrypted payload is empty")
	}
	n := int(p[len(p)-1])
	if n < 1 || n > aes.BlockSize || n > len(p) {
		return nil, xerrors.New(CodeDecryption, "invalid padding length")
	}
	for _, b := range p[len(p)-n:] {
		if int(b) != n {
			return nil, xerrors.New(CodeDecryption, "inconsistent padding bytes")
		}
	}
	return p[:len(p)-n], nil
}
