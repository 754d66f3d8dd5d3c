// Package cryptox implements the symmetric cipher used for folder
// encryption at rest: AES-256-CBC with PKCS#7 padding and a random IV
// prepended to every blob, keyed by a password-derived key.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

// BlockSize is both the AES block size and the IV length.
const BlockSize = aes.BlockSize

var (
	ErrShortCiphertext = errors.New("ciphertext too short")
	ErrInvalidPadding  = errors.New("invalid padding")
)

// Cipher encrypts and decrypts self-contained blobs (IV || body).
type Cipher struct {
	kdf KeyDeriver
}

// New returns a Cipher deriving keys with kdf; nil means IteratedSHA256.
func New(kdf KeyDeriver) *Cipher {
	if kdf == nil {
		kdf = IteratedSHA256{}
	}
	return &Cipher{kdf: kdf}
}

// Key derives the AES key for passphrase. Callers transforming many files
// derive once and use Seal/Open directly.
func (c *Cipher) Key(passphrase string) []byte {
	return c.kdf.DeriveKey([]byte(passphrase))
}

// KDFName reports which key derivation scheme is in use.
func (c *Cipher) KDFName() string {
	return c.kdf.Name()
}

// Encrypt derives the key for passphrase and seals plaintext.
func (c *Cipher) Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	key := c.Key(passphrase)
	defer common.WipeByteArray(key)
	return Seal(plaintext, key)
}

// Decrypt derives the key for passphrase and opens ciphertext. A wrong key
// almost always fails the padding check; when it does not, the result is garbage.
func (c *Cipher) Decrypt(ciphertext []byte, passphrase string) ([]byte, error) {
	key := c.Key(passphrase)
	defer common.WipeByteArray(key)
	return Open(ciphertext, key)
}

// Seal encrypts plaintext under key with a fresh random IV and returns IV || body.
func Seal(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv, err := common.RandomBytes(BlockSize)
	if err != nil {
		return nil, err
	}

	padded := pad(plaintext)
	out := make([]byte, BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[BlockSize:], padded)

	return out, nil
}

// Open splits the leading IV off data and decrypts the rest under key.
func Open(data, key []byte) ([]byte, error) {
	if len(data) < 2*BlockSize || len(data)%BlockSize != 0 {
		return nil, ErrShortCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv, body := data[:BlockSize], data[BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	return unpad(plain)
}

func pad(b []byte) []byte {
	n := BlockSize - len(b)%BlockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > BlockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
