package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrEncryption is the base failure for every vault operation. Callers match
// it with errors.Is.
var ErrEncryption = errors.New("encryption failure")

// EncryptedKey holds AES-256-CBC output. The IV is fresh per Encrypt call and
// never reused. CBC carries no integrity check: a tampered ciphertext or a
// rotated secret yields garbage or a padding error, nothing stronger.
type EncryptedKey struct {
	IV         []byte
	Ciphertext []byte
}

// Vault encrypts private key material with a process-wide secret. The secret
// is loaded once at startup and is immutable for the process lifetime.
type Vault struct {
	secret []byte
}

// New builds a vault from a hex-encoded 32-byte secret.
func New(secretHex string) (*Vault, error) {
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("%w: secret is not valid hex", ErrEncryption)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("%w: secret must be 32 bytes, got %d", ErrEncryption, len(secret))
	}
	return &Vault{secret: secret}, nil
}

// Encrypt seals key material under a fresh random 16-byte IV.
func (v *Vault) Encrypt(plain []byte) (EncryptedKey, error) {
	block, err := aes.NewCipher(v.secret)
	if err != nil {
		return EncryptedKey{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return EncryptedKey{}, fmt.Errorf("%w: failed to generate iv", ErrEncryption)
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return EncryptedKey{IV: iv, Ciphertext: ciphertext}, nil
}

// Decrypt is the inverse of Encrypt. It fails when the iv or ciphertext have
// an invalid length for the block size, or when padding removal fails because
// the secret changed since encryption.
func (v *Vault) Decrypt(key EncryptedKey) ([]byte, error) {
	if len(key.IV) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrEncryption, aes.BlockSize)
	}
	if len(key.Ciphertext) == 0 || len(key.Ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrEncryption, len(key.Ciphertext))
	}

	block, err := aes.NewCipher(v.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	plain := make([]byte, len(key.Ciphertext))
	cipher.NewCBCDecrypter(block, key.IV).CryptBlocks(plain, key.Ciphertext)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
