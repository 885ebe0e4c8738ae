// Package crypto seals operator secrets at rest: the exchange password file
// and the key of the encrypted state store.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// ErrDecrypt is returned when a secret cannot be opened, usually because the
// passphrase is wrong.
var ErrDecrypt = errors.New("crypto: decryption failed")

// sealedSecret is the on-disk format of an encrypted secret.
type sealedSecret struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// EncryptSecret seals plaintext under passphrase with PBKDF2-HMAC-SHA256 and
// AES-256-GCM and returns the JSON document to write to disk.
func EncryptSecret(plaintext, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase must not be empty")
	}
	if plaintext == "" {
		return nil, errors.New("crypto: secret must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	return json.MarshalIndent(sealedSecret{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(plaintext), nil)),
	}, "", "  ")
}

// DecryptSecret opens a document produced by EncryptSecret.
func DecryptSecret(sealed []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("crypto: passphrase must not be empty")
	}

	var s sealedSecret
	if err := json.Unmarshal(sealed, &s); err != nil {
		return "", fmt.Errorf("crypto: parsing sealed secret: %w", err)
	}
	if s.Version != currentVersion {
		return "", fmt.Errorf("crypto: unsupported version %d", s.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(s.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: bad nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// LoadSecret returns plain when set, otherwise the secret sealed in the file
// at path.
func LoadSecret(plain, path, passphrase string) (string, error) {
	if plain != "" {
		return plain, nil
	}
	if path == "" {
		return "", errors.New("crypto: no secret configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("crypto: reading sealed secret: %w", err)
	}
	return DecryptSecret(data, passphrase)
}

// DeriveStoreKey expands passphrase into a 32-byte key for the encrypted
// state store. The same passphrase always yields the same key.
func DeriveStoreKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase must not be empty")
	}
	key := make([]byte, aesKeyLen)
	r := hkdf.New(sha256.New, []byte(passphrase), []byte("laybot/state"), []byte("badger encryption key v1"))
	if _, err := r.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: deriving store key: %w", err)
	}
	return key, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
