// Package session layers MLSPlaintext/MLSCiphertext framing and dispatch
// over internal/state, and binds a State to the Keystore a member uses to
// resolve its own identity within the group.
package session

import (
	"fmt"

	"github.com/FHMS-ITS/mls-explained/internal/ciphersuite"
	"github.com/FHMS-ITS/mls-explained/internal/confirmation"
	"github.com/FHMS-ITS/mls-explained/internal/keystore"
	"github.com/FHMS-ITS/mls-explained/internal/messages"
	"github.com/FHMS-ITS/mls-explained/internal/state"
)

// Handler is the application callback set a Session dispatches to while
// processing an incoming message.
type Handler interface {
	OnApplicationMessage(payload, groupID []byte)
	OnGroupMemberAdded(groupID []byte)
	OnKeysUpdated(groupID []byte)
}

// Session is the façade a client drives: a State plus the Keystore and
// user identity needed to figure out which leaf is "self".
type Session struct {
	state     *state.State
	keystore  keystore.Keystore
	userName  string
	userIndex int // -1 means "not yet known"
	signer    confirmation.Signer
	verifier  confirmation.Verifier
}

const unknownUserIndex = -1

// FromEmpty creates a brand-new single-member group, matching
// Session.from_empty: the creator's own leaf key pair comes from its own
// registered init key via the keystore.
func FromEmpty(suite ciphersuite.Suite, ks keystore.Keystore, userName, groupName string, signer confirmation.Signer, verifier confirmation.Verifier) (*Session, error) {
	publicKey, err := ks.FetchInitKey(userName)
	if err != nil {
		return nil, fmt.Errorf("session: from empty: %w", err)
	}
	privateKey, err := ks.GetPrivateKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("session: from empty: %w", err)
	}
	if privateKey == nil {
		return nil, fmt.Errorf("session: from empty: no private key registered for own init key")
	}

	s := state.FromEmpty(suite, []byte(groupName), publicKey, privateKey)

	return &Session{
		state:     s,
		keystore:  ks,
		userName:  userName,
		userIndex: 0,
		signer:    signer,
		verifier:  verifier,
	}, nil
}

// FromWelcome reconstructs a Session from a peer's WelcomeInfo, matching
// Session.from_welcome. The caller's own leaf index is unknown until the
// corresponding Add arrives and ProcessAdd recognizes its own init key.
func FromWelcome(suite ciphersuite.Suite, welcome *messages.WelcomeInfo, ks keystore.Keystore, userName string, signer confirmation.Signer, verifier confirmation.Verifier) *Session {
	context := &messages.GroupContext{
		GroupID:                 welcome.GroupID,
		Epoch:                   welcome.Epoch,
		TreeHash:                nil,
		ConfirmedTranscriptHash: make([]byte, ciphersuite.HashSize),
	}

	s := state.FromExisting(suite, context, welcome.Nodes)
	s.Schedule.InitSecret = welcome.InitSecret
	s.Context.TreeHash = s.Tree.TreeHash()

	return &Session{
		state:     s,
		keystore:  ks,
		userName:  userName,
		userIndex: unknownUserIndex,
		signer:    signer,
		verifier:  verifier,
	}
}

// State exposes the underlying State, for callers that need direct access
// (e.g. a test harness comparing tree hashes across members).
func (s *Session) State() *state.State { return s.state }

// AddMember fetches userName's published init key from the keystore and
// builds the WelcomeInfo/Add pair an existing member sends to bring them
// in, matching Session.add_member. It does not install the new member into
// this Session's own tree — ProcessAdd does that, on both sides.
func (s *Session) AddMember(userName string, userCredentials []byte) (*messages.WelcomeInfo, *messages.Add, error) {
	initKey, err := s.keystore.FetchInitKey(userName)
	if err != nil {
		return nil, nil, fmt.Errorf("session: add member %q: %w", userName, err)
	}
	return s.state.Add(initKey, userCredentials)
}

// ProcessAdd installs an incoming Add into this Session's tree. If the
// keystore holds the private half of the Add's init key, this process is
// the one joining — its own leaf index is recorded, matching
// Session.process_add's "we possess the private key" branch.
func (s *Session) ProcessAdd(add *messages.Add) error {
	privateKey, err := s.keystore.GetPrivateKey(add.InitKey)
	if err != nil {
		return fmt.Errorf("session: process add: %w", err)
	}

	if privateKey != nil {
		if s.userIndex != unknownUserIndex {
			return fmt.Errorf("session: process add: already a known member, cannot also be the joiner")
		}
		s.userIndex = int(add.Index)
	}

	return s.state.ProcessAdd(add, privateKey)
}

// Update generates a fresh Update for this Session's own leaf.
// Re-sequencing an Update with another handshake operation desynchronizes
// the sender's own view; this is a known limitation, not something this
// method guards against.
func (s *Session) Update() (*messages.Update, error) {
	if s.userIndex == unknownUserIndex {
		return nil, fmt.Errorf("session: update: own leaf index is not yet known")
	}
	return s.state.Update(s.userIndex)
}

// ProcessUpdate applies an incoming Update from leafIndex.
func (s *Session) ProcessUpdate(leafIndex int, update *messages.Update) error {
	return s.state.ProcessUpdate(leafIndex, update)
}

// EncryptApplicationMessage frames payload as application content inside
// an MLSCiphertext. Real AEAD protection of the envelope is left for a
// later iteration; for now it packs the plaintext verbatim into
// CipherText so that change stays local to this method and
// ProcessMessage.
func (s *Session) EncryptApplicationMessage(payload []byte) (*messages.MLSCiphertext, error) {
	if s.userIndex == unknownUserIndex {
		return nil, fmt.Errorf("session: encrypt application message: own leaf index is not yet known")
	}

	plaintext := &messages.MLSPlaintext{
		GroupID:     s.state.Context.GroupID,
		Epoch:       s.state.Context.Epoch,
		Sender:      uint32(s.userIndex),
		ContentType: messages.ContentApplication,
		Content:     payload,
		Signature:   nil,
	}

	return &messages.MLSCiphertext{
		GroupID:             plaintext.GroupID,
		Epoch:               plaintext.Epoch,
		ContentType:         messages.ContentApplication,
		SenderDataNonce:     nil,
		EncryptedSenderData: (&messages.MLSSenderData{Sender: uint32(s.userIndex), Generation: 0}).Pack(),
		CipherText:          plaintext.Pack(),
	}, nil
}

// EncryptHandshakeMessage frames op as handshake content, signing a
// confirmation over the current epoch's confirmation key and confirmed
// transcript hash, matching Session.encrypt_handshake_message.
func (s *Session) EncryptHandshakeMessage(op messages.GroupOperation) (*messages.MLSCiphertext, error) {
	if s.userIndex == unknownUserIndex {
		return nil, fmt.Errorf("session: encrypt handshake message: own leaf index is not yet known")
	}

	var confirmationValue []byte
	if s.signer != nil {
		transcript := confirmation.Transcript(s.state.Schedule.ConfirmationKey, s.state.Context.ConfirmedTranscriptHash)
		sig, err := s.signer.Sign(transcript)
		if err != nil {
			return nil, fmt.Errorf("session: encrypt handshake message: sign confirmation: %w", err)
		}
		confirmationValue = sig
	}

	handshake := &messages.MLSPlaintextHandshake{Confirmation: confirmationValue, Operation: op}
	handshakeBytes, err := handshake.Pack()
	if err != nil {
		return nil, fmt.Errorf("session: encrypt handshake message: %w", err)
	}

	plaintext := &messages.MLSPlaintext{
		GroupID:     s.state.Context.GroupID,
		Epoch:       s.state.Context.Epoch,
		Sender:      uint32(s.userIndex),
		ContentType: messages.ContentHandshake,
		Content:     handshakeBytes,
		Signature:   nil,
	}

	return &messages.MLSCiphertext{
		GroupID:             plaintext.GroupID,
		Epoch:               plaintext.Epoch,
		ContentType:         messages.ContentHandshake,
		SenderDataNonce:     nil,
		EncryptedSenderData: nil,
		CipherText:          plaintext.Pack(),
	}, nil
}

// ProcessMessage dispatches an incoming MLSCiphertext by content type.
// Both encrypt methods above pack a full MLSPlaintext into CipherText,
// so this method always unpacks one first before dispatching on its
// content type.
func (s *Session) ProcessMessage(ciphertext *messages.MLSCiphertext, handler Handler) error {
	plaintext, err := messages.UnpackMLSPlaintext(ciphertext.CipherText)
	if err != nil {
		return fmt.Errorf("session: process message: %w", err)
	}

	if string(plaintext.GroupID) != string(ciphertext.GroupID) ||
		plaintext.Epoch != ciphertext.Epoch ||
		plaintext.ContentType != ciphertext.ContentType {
		return fmt.Errorf("session: process message: plaintext metadata does not match envelope")
	}

	switch ciphertext.ContentType {
	case messages.ContentApplication:
		handler.OnApplicationMessage(plaintext.Content, plaintext.GroupID)
		return nil
	case messages.ContentHandshake:
		return s.processHandshake(plaintext, handler)
	default:
		return fmt.Errorf("session: process message: unknown content type %d", ciphertext.ContentType)
	}
}

func (s *Session) processHandshake(plaintext *messages.MLSPlaintext, handler Handler) error {
	handshake, err := messages.UnpackMLSPlaintextHandshake(plaintext.Content)
	if err != nil {
		return fmt.Errorf("session: process handshake: %w", err)
	}

	if s.verifier != nil {
		transcript := confirmation.Transcript(s.state.Schedule.ConfirmationKey, s.state.Context.ConfirmedTranscriptHash)
		ok, err := s.verifier.Verify(transcript, handshake.Confirmation)
		if err != nil {
			return fmt.Errorf("session: process handshake: verify confirmation: %w", err)
		}
		if !ok {
			return fmt.Errorf("session: process handshake: confirmation does not verify")
		}
	}

	switch handshake.Operation.Type {
	case messages.OperationAdd:
		if err := s.ProcessAdd(handshake.Operation.Add); err != nil {
			return fmt.Errorf("session: process handshake: %w", err)
		}
		handler.OnGroupMemberAdded(plaintext.GroupID)
		return nil
	case messages.OperationUpdate:
		if err := s.ProcessUpdate(int(plaintext.Sender), handshake.Operation.Update); err != nil {
			return fmt.Errorf("session: process handshake: %w", err)
		}
		handler.OnKeysUpdated(plaintext.GroupID)
		return nil
	default:
		return fmt.Errorf("session: process handshake: unsupported operation type %d", handshake.Operation.Type)
	}
}

// GroupIDFromCiphertext extracts a packed MLSCiphertext's group id without
// fully decoding it, matching Session.get_groupid_from_cipher — used by a
// delivery layer to route without unpacking twice.
func GroupIDFromCiphertext(data []byte) ([]byte, error) {
	return messages.GroupIDFromCiphertext(data)
}
