package keyschedule

import (
	"bytes"
	"testing"

	"github.com/FHMS-ITS/mls-explained/internal/ciphersuite"
)

func TestAdvanceChangesInitSecret(t *testing.T) {
	suite := ciphersuite.New()
	s := New(suite)
	before := append([]byte(nil), s.InitSecret...)

	if err := s.Advance([]byte("update secret"), []byte("group context v0")); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if bytes.Equal(before, s.InitSecret) {
		t.Fatalf("InitSecret did not change after Advance")
	}
}

func TestAdvanceSecretsAreDistinct(t *testing.T) {
	suite := ciphersuite.New()
	s := New(suite)

	if err := s.Advance([]byte("update secret"), []byte("group context v0")); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	secrets := [][]byte{s.SenderDataSecret, s.HandshakeSecret, s.ApplicationSecret, s.ConfirmationKey}
	for i := range secrets {
		for j := i + 1; j < len(secrets); j++ {
			if bytes.Equal(secrets[i], secrets[j]) {
				t.Fatalf("secrets %d and %d are equal after a single advance", i, j)
			}
		}
	}
}

func TestTwoSchedulesAgreeGivenSameInputs(t *testing.T) {
	suite := ciphersuite.New()
	a := New(suite)
	b := New(suite)

	if err := a.Advance([]byte("update secret"), []byte("group context v0")); err != nil {
		t.Fatalf("Advance(a): %v", err)
	}
	if err := b.Advance([]byte("update secret"), []byte("group context v0")); err != nil {
		t.Fatalf("Advance(b): %v", err)
	}

	if !bytes.Equal(a.EpochSecret, b.EpochSecret) {
		t.Fatalf("EpochSecret diverged between two schedules given identical inputs")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	suite := ciphersuite.New()
	s := New(suite)
	if err := s.Advance([]byte("update secret"), []byte("gc")); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	clone := s.Clone()
	if err := clone.Advance([]byte("another secret"), []byte("gc2")); err != nil {
		t.Fatalf("Advance(clone): %v", err)
	}

	if bytes.Equal(s.InitSecret, clone.InitSecret) {
		t.Fatalf("advancing a clone mutated the original")
	}
}
