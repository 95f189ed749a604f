// Package confirmation supplies the verifiable confirmation value carried
// by an MLSPlaintextHandshake. It provides a Signer/Verifier pair, with
// a default implementation backed by Dilithium3.
package confirmation

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Signer produces a confirmation value over a transcript, typically
// HMAC-equivalent material built from (confirmation_key,
// confirmed_transcript_hash).
type Signer interface {
	Sign(transcript []byte) ([]byte, error)
}

// Verifier checks a confirmation value produced by the matching Signer.
type Verifier interface {
	Verify(transcript, confirmation []byte) (bool, error)
}

// DilithiumKeyPair is a Dilithium3 key pair usable as both a Signer and a
// Verifier.
type DilithiumKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateDilithiumKeyPair creates a fresh Dilithium3 key pair.
func GenerateDilithiumKeyPair() (*DilithiumKeyPair, error) {
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("confirmation: generate dilithium key pair: %w", err)
	}
	return &DilithiumKeyPair{PublicKey: pub.Bytes(), PrivateKey: priv.Bytes()}, nil
}

// Sign implements Signer.
func (k *DilithiumKeyPair) Sign(transcript []byte) ([]byte, error) {
	if len(k.PrivateKey) != mode3.PrivateKeySize {
		return nil, fmt.Errorf("confirmation: invalid private key size: expected %d, got %d", mode3.PrivateKeySize, len(k.PrivateKey))
	}

	var privateKey mode3.PrivateKey
	var privKeyArray [mode3.PrivateKeySize]byte
	copy(privKeyArray[:], k.PrivateKey)
	privateKey.Unpack(&privKeyArray)

	signature := make([]byte, mode3.SignatureSize)
	mode3.SignTo(&privateKey, transcript, signature)
	return signature, nil
}

// Verify implements Verifier.
func (k *DilithiumKeyPair) Verify(transcript, sig []byte) (bool, error) {
	if len(k.PublicKey) != mode3.PublicKeySize {
		return false, fmt.Errorf("confirmation: invalid public key size: expected %d, got %d", mode3.PublicKeySize, len(k.PublicKey))
	}
	if len(sig) != mode3.SignatureSize {
		return false, fmt.Errorf("confirmation: invalid signature size: expected %d, got %d", mode3.SignatureSize, len(sig))
	}

	var publicKey mode3.PublicKey
	var pubKeyArray [mode3.PublicKeySize]byte
	copy(pubKeyArray[:], k.PublicKey)
	publicKey.Unpack(&pubKeyArray)

	return mode3.Verify(&publicKey, transcript, sig), nil
}

// Transcript builds the material a Signer/Verifier operates over: the
// epoch's confirmation_key concatenated with the confirmed transcript
// hash.
func Transcript(confirmationKey, confirmedTranscriptHash []byte) []byte {
	out := make([]byte, 0, len(confirmationKey)+len(confirmedTranscriptHash))
	out = append(out, confirmationKey...)
	out = append(out, confirmedTranscriptHash...)
	return out
}
