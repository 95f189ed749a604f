// Package keyschedule implements the per-epoch HKDF ladder that turns an
// update secret into the six secrets every other component consumes.
package keyschedule

import (
	"fmt"

	"github.com/FHMS-ITS/mls-explained/internal/ciphersuite"
)

var (
	labelSenderData = []byte("sender data")
	labelHandshake  = []byte("handshake")
	labelApp        = []byte("app")
	labelConfirm    = []byte("confirm")
	labelInit       = []byte("init")
)

// Schedule holds the six secrets derived for one epoch.
type Schedule struct {
	suite ciphersuite.Suite

	InitSecret        []byte
	EpochSecret       []byte
	SenderDataSecret  []byte
	HandshakeSecret   []byte
	ApplicationSecret []byte
	ConfirmationKey   []byte
}

// New returns a Schedule at epoch 0: init_secret is the all-zero string of
// hash length.
func New(suite ciphersuite.Suite) *Schedule {
	return &Schedule{
		suite:      suite,
		InitSecret: make([]byte, ciphersuite.HashSize),
	}
}

// NewWithInitSecret returns a Schedule seeded with an init secret
// recovered from a Welcome message, set explicitly before any epoch
// advance.
func NewWithInitSecret(suite ciphersuite.Suite, initSecret []byte) *Schedule {
	return &Schedule{suite: suite, InitSecret: initSecret}
}

// Advance derives the next epoch's secrets from updateSecret and the new
// GroupContext's serialized bytes.
func (s *Schedule) Advance(updateSecret, groupContextBytes []byte) error {
	epochSecret := s.suite.HkdfExtract(s.InitSecret, updateSecret)

	senderData, err := s.suite.DeriveSecret(epochSecret, labelSenderData, groupContextBytes)
	if err != nil {
		return fmt.Errorf("keyschedule: derive sender_data_secret: %w", err)
	}
	handshake, err := s.suite.DeriveSecret(epochSecret, labelHandshake, groupContextBytes)
	if err != nil {
		return fmt.Errorf("keyschedule: derive handshake_secret: %w", err)
	}
	application, err := s.suite.DeriveSecret(epochSecret, labelApp, groupContextBytes)
	if err != nil {
		return fmt.Errorf("keyschedule: derive application_secret: %w", err)
	}
	confirmation, err := s.suite.DeriveSecret(epochSecret, labelConfirm, groupContextBytes)
	if err != nil {
		return fmt.Errorf("keyschedule: derive confirmation_key: %w", err)
	}
	nextInit, err := s.suite.DeriveSecret(epochSecret, labelInit, groupContextBytes)
	if err != nil {
		return fmt.Errorf("keyschedule: derive init_secret: %w", err)
	}

	s.EpochSecret = epochSecret
	s.SenderDataSecret = senderData
	s.HandshakeSecret = handshake
	s.ApplicationSecret = application
	s.ConfirmationKey = confirmation
	s.InitSecret = nextInit
	return nil
}

// Clone returns a deep copy, used when a State needs to try an epoch
// advance speculatively (e.g., to validate an incoming Update) without
// committing it until the rest of the operation succeeds.
func (s *Schedule) Clone() *Schedule {
	cp := &Schedule{suite: s.suite}
	cp.InitSecret = append([]byte(nil), s.InitSecret...)
	cp.EpochSecret = append([]byte(nil), s.EpochSecret...)
	cp.SenderDataSecret = append([]byte(nil), s.SenderDataSecret...)
	cp.HandshakeSecret = append([]byte(nil), s.HandshakeSecret...)
	cp.ApplicationSecret = append([]byte(nil), s.ApplicationSecret...)
	cp.ConfirmationKey = append([]byte(nil), s.ConfirmationKey...)
	return cp
}
