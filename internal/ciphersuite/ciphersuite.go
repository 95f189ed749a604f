// Package ciphersuite implements the one concrete cipher suite this
// implementation supports: X25519 for Diffie-Hellman, SHA-256 for the
// key-derivation hash, and AES-128-GCM for the record AEAD (wire
// identifier 0x0001).
//
// It also carries the HKDF-based label expansion used throughout the key
// schedule and ratchet tree, and an HPKE wrapper (RFC 9180, via
// cloudflare/circl) used to seal/open the path secrets distributed in
// Update direct paths.
package ciphersuite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// HashSize is the output length, in bytes, of this suite's hash function.
const HashSize = sha256.Size

// Suite is the X25519 / SHA-256 / AES-128-GCM cipher suite. It holds no
// state and is safe for concurrent use.
type Suite struct{}

// New returns the cipher suite.
func New() Suite { return Suite{} }

// Identifier returns this suite's wire identifier.
func (Suite) Identifier() uint16 { return 0x0001 }

// KeyPair is an X25519 key pair as used by the ratchet tree and the key
// schedule.
type KeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

// DeriveKeyPair derives an X25519 key pair from arbitrary key material:
// private_key = SHA-256(material), public_key = X25519(private_key,
// basepoint).
func (Suite) DeriveKeyPair(material []byte) (KeyPair, error) {
	sum := sha256.Sum256(material)

	var kp KeyPair
	kp.PrivateKey = sum
	pub, err := curve25519.X25519(kp.PrivateKey[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("ciphersuite: derive key pair: %w", err)
	}
	copy(kp.PublicKey[:], pub)
	return kp, nil
}

// DH performs the X25519 Diffie-Hellman operation.
func (Suite) DH(privateKey, publicKey [32]byte) ([]byte, error) {
	shared, err := curve25519.X25519(privateKey[:], publicKey[:])
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: dh: %w", err)
	}
	return shared, nil
}

// HkdfExtract is HKDF-Extract(salt, secret).
func (Suite) HkdfExtract(salt, secret []byte) []byte {
	return hkdfExtract(salt, secret)
}

// hkdfExtract runs x/crypto/hkdf's standalone Extract step, which returns
// the HashSize-byte pseudorandom key directly.
func hkdfExtract(salt, secret []byte) []byte {
	return hkdf.Extract(sha256.New, secret, salt)
}

// HkdfLabel is the structured info field fed to HKDF-Expand. The wire
// form is
//
//	groupContextHash ++ byte(length) ++ label ++ context
//
// prefixed by the literal "mls10 " when used to build HKDF's info
// parameter (see HkdfExpandLabel).
type HkdfLabel struct {
	GroupContextHash []byte
	Length           uint8
	Label            []byte
	Context          []byte
}

// Bytes serializes the label.
func (l HkdfLabel) Bytes() []byte {
	out := make([]byte, 0, len(l.GroupContextHash)+1+len(l.Label)+len(l.Context))
	out = append(out, l.GroupContextHash...)
	out = append(out, l.Length)
	out = append(out, l.Label...)
	out = append(out, l.Context...)
	return out
}

// HkdfExpandLabel hashes the group context, builds the "mls10 "-prefixed
// HkdfLabel, and runs HKDF-Expand with that as the info parameter.
func (s Suite) HkdfExpandLabel(secret, label, groupContext []byte) ([]byte, error) {
	contextHash := sha256.Sum256(groupContext)

	hkdfLabel := HkdfLabel{
		GroupContextHash: contextHash[:],
		Length:           HashSize,
		Label:            label,
		Context:          groupContext,
	}

	info := append([]byte("mls10 "), hkdfLabel.Bytes()...)

	reader := hkdf.Expand(sha256.New, secret, info)
	out := make([]byte, HashSize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("ciphersuite: hkdf expand label %q: %w", label, err)
	}
	return out, nil
}

// DeriveSecret is an alias for HkdfExpandLabel under another name.
func (s Suite) DeriveSecret(secret, label, groupContext []byte) ([]byte, error) {
	return s.HkdfExpandLabel(secret, label, groupContext)
}

// Seal AEAD-encrypts plaintext with a 16-byte key and 16-byte nonce using
// AES-128-GCM.
func (Suite) Seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: seal: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: seal: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open reverses Seal.
func (Suite) Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: open: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: open: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: open: %w", err)
	}
	return plaintext, nil
}

// hpkeSuite is the RFC 9180 instantiation used for direct-path secret
// distribution: X25519 KEM, HKDF-SHA256, AES-128-GCM AEAD.
var hpkeSuite = hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_AES128GCM)

func x25519Scheme() kem.Scheme {
	return hpke.KEM_X25519_HKDF_SHA256.Scheme()
}

// HPKESeal encrypts pathSecret to the holder of publicKey, returning the
// HPKE encapsulated key (ephemeral_key) and the AEAD ciphertext
// (cipher_text), matching the two fields of HPKECiphertext.
func (Suite) HPKESeal(publicKey [32]byte, info, pathSecret []byte) (encapsulatedKey, cipherText []byte, err error) {
	pk, err := x25519Scheme().UnmarshalBinaryPublicKey(publicKey[:])
	if err != nil {
		return nil, nil, fmt.Errorf("ciphersuite: hpke seal: unmarshal public key: %w", err)
	}

	sender, err := hpkeSuite.NewSender(pk, info)
	if err != nil {
		return nil, nil, fmt.Errorf("ciphersuite: hpke seal: new sender: %w", err)
	}

	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("ciphersuite: hpke seal: setup: %w", err)
	}

	ct, err := sealer.Seal(pathSecret, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("ciphersuite: hpke seal: %w", err)
	}

	return enc, ct, nil
}

// HPKEOpen reverses HPKESeal, given the recipient's private key.
func (Suite) HPKEOpen(privateKey [32]byte, info, encapsulatedKey, cipherText []byte) ([]byte, error) {
	sk, err := x25519Scheme().UnmarshalBinaryPrivateKey(privateKey[:])
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: hpke open: unmarshal private key: %w", err)
	}

	receiver, err := hpkeSuite.NewReceiver(sk, info)
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: hpke open: new receiver: %w", err)
	}

	opener, err := receiver.Setup(encapsulatedKey)
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: hpke open: setup: %w", err)
	}

	pt, err := opener.Open(cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: hpke open: %w", err)
	}
	return pt, nil
}

// RandomBytes returns n cryptographically random bytes, used for leaf
// secrets and the initial path secret in Update.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("ciphersuite: random bytes: %w", err)
	}
	return buf, nil
}
