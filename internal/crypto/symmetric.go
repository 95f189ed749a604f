// Package crypto provides the symmetric primitives the ambient services
// build on: sealing blobs before they leave the process. It holds no key
// derivation of its own; internal/ciphersuite's MLS-specific HPKE/HKDF
// surface is the only key derivation here. internal/ciphersuite stays scoped to
// the wire protocol itself; this package is for everything around it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// SymmetricKeySize is the size of symmetric keys (256 bits).
const SymmetricKeySize = 32

// AESGCMNonceSize is the nonce size for AES-GCM.
const AESGCMNonceSize = 12

// XChaCha20NonceSize is the nonce size for XChaCha20-Poly1305.
const XChaCha20NonceSize = 24

// Sealed is a ciphertext plus the nonce it was sealed under.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
}

// GenerateSymmetricKey generates a random 256-bit symmetric key.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("crypto: generate symmetric key: %w", err)
	}
	return key, nil
}

// GenerateNonce generates a random nonce of the given size.
func GenerateNonce(size int) ([]byte, error) {
	nonce := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return nonce, nil
}

// EncryptAESGCM encrypts plaintext using AES-256-GCM under a random nonce.
func EncryptAESGCM(key, plaintext, additionalData []byte) (*Sealed, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("crypto: aes-gcm: invalid key size: expected %d, got %d", SymmetricKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: new gcm: %w", err)
	}
	nonce, err := GenerateNonce(gcm.NonceSize())
	if err != nil {
		return nil, err
	}

	return &Sealed{Ciphertext: gcm.Seal(nil, nonce, plaintext, additionalData), Nonce: nonce}, nil
}

// DecryptAESGCM decrypts ciphertext sealed by EncryptAESGCM.
func DecryptAESGCM(key, ciphertext, nonce, additionalData []byte) ([]byte, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("crypto: aes-gcm: invalid key size: expected %d, got %d", SymmetricKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: new gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: aes-gcm: invalid nonce size: expected %d, got %d", gcm.NonceSize(), len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: open: %w", err)
	}
	return plaintext, nil
}

// EncryptXChaCha20 encrypts plaintext using XChaCha20-Poly1305 under a
// random 24-byte nonce.
func EncryptXChaCha20(key, plaintext, additionalData []byte) (*Sealed, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("crypto: xchacha20: invalid key size: expected %d, got %d", SymmetricKeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: xchacha20: new aead: %w", err)
	}
	nonce, err := GenerateNonce(aead.NonceSize())
	if err != nil {
		return nil, err
	}

	return &Sealed{Ciphertext: aead.Seal(nil, nonce, plaintext, additionalData), Nonce: nonce}, nil
}

// DecryptXChaCha20 decrypts ciphertext sealed by EncryptXChaCha20.
func DecryptXChaCha20(key, ciphertext, nonce, additionalData []byte) ([]byte, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("crypto: xchacha20: invalid key size: expected %d, got %d", SymmetricKeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: xchacha20: new aead: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("crypto: xchacha20: invalid nonce size: expected %d, got %d", aead.NonceSize(), len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("crypto: xchacha20: open: %w", err)
	}
	return plaintext, nil
}
