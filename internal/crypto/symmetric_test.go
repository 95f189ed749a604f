package crypto

import "testing"

func TestXChaCha20RoundTrips(t *testing.T) {
	key, err := GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey: %v", err)
	}

	sealed, err := EncryptXChaCha20(key, []byte("welcome payload"), []byte("group-id"))
	if err != nil {
		t.Fatalf("EncryptXChaCha20: %v", err)
	}
	if len(sealed.Nonce) != XChaCha20NonceSize {
		t.Fatalf("nonce size = %d, want %d", len(sealed.Nonce), XChaCha20NonceSize)
	}

	plaintext, err := DecryptXChaCha20(key, sealed.Ciphertext, sealed.Nonce, []byte("group-id"))
	if err != nil {
		t.Fatalf("DecryptXChaCha20: %v", err)
	}
	if string(plaintext) != "welcome payload" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "welcome payload")
	}
}

func TestXChaCha20RejectsWrongAssociatedData(t *testing.T) {
	key, _ := GenerateSymmetricKey()
	sealed, err := EncryptXChaCha20(key, []byte("payload"), []byte("group-a"))
	if err != nil {
		t.Fatalf("EncryptXChaCha20: %v", err)
	}

	if _, err := DecryptXChaCha20(key, sealed.Ciphertext, sealed.Nonce, []byte("group-b")); err == nil {
		t.Fatalf("DecryptXChaCha20 should reject mismatched associated data")
	}
}

func TestAESGCMRoundTrips(t *testing.T) {
	key, _ := GenerateSymmetricKey()
	sealed, err := EncryptAESGCM(key, []byte("sealed sender"), nil)
	if err != nil {
		t.Fatalf("EncryptAESGCM: %v", err)
	}
	plaintext, err := DecryptAESGCM(key, sealed.Ciphertext, sealed.Nonce, nil)
	if err != nil {
		t.Fatalf("DecryptAESGCM: %v", err)
	}
	if string(plaintext) != "sealed sender" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "sealed sender")
	}
}
