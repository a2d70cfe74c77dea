package packet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	AlgorithmAESECB            = "aes-ecb"
	AlgorithmXChaCha20Poly1305 = "xchacha20poly1305"
	AlgorithmNone              = "none"
)

// Cipher transforms payload bytes only. Implementations must be safe for concurrent use.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// NewCipher builds the cipher registered under algorithm.
func NewCipher(algorithm string, key []byte) (Cipher, error) {
	switch algorithm {
	case AlgorithmAESECB:
		return NewECBCipher(key)
	case AlgorithmXChaCha20Poly1305:
		return NewAEADCipher(key)
	case AlgorithmNone:
		return NopCipher{}, nil
	default:
		return nil, fmt.Errorf("unknown cipher algorithm %q", algorithm)
	}
}

// ECBCipher is AES in ECB mode with PKCS#7 padding, the scheme legacy peers speak.
type ECBCipher struct {
	block cipher.Block
}

func NewECBCipher(key []byte) (*ECBCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes-ecb: %w", err)
	}
	return &ECBCipher{block: block}, nil
}

func (c *ECBCipher) Encrypt(plaintext []byte) ([]byte, error) {
	size := c.block.BlockSize()
	padding := size - len(plaintext)%size
	out := make([]byte, len(plaintext)+padding)
	copy(out, plaintext)
	copy(out[len(plaintext):], bytes.Repeat([]byte{byte(padding)}, padding))
	for i := 0; i < len(out); i += size {
		c.block.Encrypt(out[i:i+size], out[i:i+size])
	}
	return out, nil
}

func (c *ECBCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	size := c.block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%size != 0 {
		return nil, fmt.Errorf("aes-ecb: ciphertext length %d is not a multiple of %d", len(ciphertext), size)
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(out); i += size {
		c.block.Decrypt(out[i:i+size], ciphertext[i:i+size])
	}
	padding := int(out[len(out)-1])
	if padding == 0 || padding > size {
		return nil, fmt.Errorf("aes-ecb: bad padding")
	}
	for _, b := range out[len(out)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("aes-ecb: bad padding")
		}
	}
	return out[:len(out)-padding], nil
}

// AEADCipher seals payloads with XChaCha20-Poly1305. The random nonce is prepended to the ciphertext.
type AEADCipher struct {
	aead cipher.AEAD
}

func NewAEADCipher(key []byte) (*AEADCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}
	return &AEADCipher{aead: aead}, nil
}

func (c *AEADCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *AEADCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, fmt.Errorf("xchacha20poly1305: ciphertext too short")
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}
	return plaintext, nil
}

type NopCipher struct{}

func (NopCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (NopCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}
