package ciphersuite

import "testing"

func TestDeriveKeyPairDeterministic(t *testing.T) {
	s := New()
	material := []byte("some shared material")

	kp1, err := s.DeriveKeyPair(material)
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	kp2, err := s.DeriveKeyPair(material)
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}

	if kp1.PublicKey != kp2.PublicKey || kp1.PrivateKey != kp2.PrivateKey {
		t.Fatalf("DeriveKeyPair is not deterministic for identical material")
	}
}

func TestDHAgreement(t *testing.T) {
	s := New()

	a, err := s.DeriveKeyPair([]byte("alice"))
	if err != nil {
		t.Fatalf("DeriveKeyPair(alice): %v", err)
	}
	b, err := s.DeriveKeyPair([]byte("bob"))
	if err != nil {
		t.Fatalf("DeriveKeyPair(bob): %v", err)
	}

	sharedA, err := s.DH(a.PrivateKey, b.PublicKey)
	if err != nil {
		t.Fatalf("DH(a, b): %v", err)
	}
	sharedB, err := s.DH(b.PrivateKey, a.PublicKey)
	if err != nil {
		t.Fatalf("DH(b, a): %v", err)
	}

	if string(sharedA) != string(sharedB) {
		t.Fatalf("DH did not agree: %x != %x", sharedA, sharedB)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	s := New()
	key := make([]byte, 16)
	nonce := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range nonce {
		nonce[i] = byte(i + 1)
	}

	plaintext := []byte("hello mls")
	ct, err := s.Seal(key, nonce, plaintext, nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	pt, err := s.Open(key, nonce, ct, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(pt) != string(plaintext) {
		t.Fatalf("Open() = %q, want %q", pt, plaintext)
	}
}

func TestHkdfExpandLabelDifferentLabelsDiffer(t *testing.T) {
	s := New()
	secret := []byte("epoch secret")
	groupContext := []byte("group context bytes")

	a, err := s.HkdfExpandLabel(secret, []byte("app"), groupContext)
	if err != nil {
		t.Fatalf("HkdfExpandLabel(app): %v", err)
	}
	b, err := s.HkdfExpandLabel(secret, []byte("handshake"), groupContext)
	if err != nil {
		t.Fatalf("HkdfExpandLabel(handshake): %v", err)
	}

	if string(a) == string(b) {
		t.Fatalf("HkdfExpandLabel produced identical output for different labels")
	}
	if len(a) != HashSize || len(b) != HashSize {
		t.Fatalf("HkdfExpandLabel output length = %d/%d, want %d", len(a), len(b), HashSize)
	}
}

func TestHPKESealOpenRoundTrip(t *testing.T) {
	s := New()
	recipient, err := s.DeriveKeyPair([]byte("recipient"))
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}

	pathSecret, err := RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}

	info := []byte("mls path secret")
	enc, ct, err := s.HPKESeal(recipient.PublicKey, info, pathSecret)
	if err != nil {
		t.Fatalf("HPKESeal: %v", err)
	}

	opened, err := s.HPKEOpen(recipient.PrivateKey, info, enc, ct)
	if err != nil {
		t.Fatalf("HPKEOpen: %v", err)
	}
	if string(opened) != string(pathSecret) {
		t.Fatalf("HPKEOpen() = %x, want %x", opened, pathSecret)
	}
}
