package confirmation

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := GenerateDilithiumKeyPair()
	if err != nil {
		t.Fatalf("GenerateDilithiumKeyPair: %v", err)
	}

	transcript := Transcript([]byte("confirmation-key"), []byte("confirmed-transcript-hash"))
	sig, err := key.Sign(transcript)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := key.Verify(transcript, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("Verify() = false, want true for a matching signature")
	}
}

func TestVerifyRejectsTamperedTranscript(t *testing.T) {
	key, err := GenerateDilithiumKeyPair()
	if err != nil {
		t.Fatalf("GenerateDilithiumKeyPair: %v", err)
	}

	transcript := Transcript([]byte("confirmation-key"), []byte("confirmed-transcript-hash"))
	sig, err := key.Sign(transcript)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := Transcript([]byte("confirmation-key"), []byte("different-hash"))
	ok, err := key.Verify(tampered, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("Verify() = true for a tampered transcript, want false")
	}
}
