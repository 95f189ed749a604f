package session

import (
	"testing"

	"github.com/FHMS-ITS/mls-explained/internal/ciphersuite"
	"github.com/FHMS-ITS/mls-explained/internal/keystore"
	"github.com/FHMS-ITS/mls-explained/internal/messages"
)

type recordingHandler struct {
	applicationPayloads [][]byte
	membersAdded        int
	keysUpdated         int
}

func (h *recordingHandler) OnApplicationMessage(payload, groupID []byte) {
	h.applicationPayloads = append(h.applicationPayloads, payload)
}
func (h *recordingHandler) OnGroupMemberAdded(groupID []byte) { h.membersAdded++ }
func (h *recordingHandler) OnKeysUpdated(groupID []byte)      { h.keysUpdated++ }

func registerUser(t *testing.T, ks *keystore.Memory, suite ciphersuite.Suite, userName, seed string) {
	t.Helper()
	kp, err := suite.DeriveKeyPair([]byte(seed))
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	ks.RegisterInitKey(userName, kp.PublicKey[:])
	if err := ks.RegisterKeypair(kp.PublicKey[:], kp.PrivateKey[:]); err != nil {
		t.Fatalf("RegisterKeypair: %v", err)
	}
}

func TestAddMemberProcessAddEstablishesJoinerIndex(t *testing.T) {
	suite := ciphersuite.New()
	aliceStore := keystore.NewMemory()
	bobStore := keystore.NewMemory()

	registerUser(t, aliceStore, suite, "alice", "alice-seed")
	registerUser(t, bobStore, suite, "bob", "bob-seed")

	alice, err := FromEmpty(suite, aliceStore, "alice", "group-1", nil, nil)
	if err != nil {
		t.Fatalf("FromEmpty: %v", err)
	}

	bobInitKey, err := bobStore.FetchInitKey("bob")
	if err != nil {
		t.Fatalf("FetchInitKey: %v", err)
	}
	aliceStore.RegisterInitKey("bob", bobInitKey) // alice must know bob's published init key

	welcome, add, err := alice.AddMember("bob", []byte("bob-cred"))
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := alice.ProcessAdd(add); err != nil {
		t.Fatalf("alice ProcessAdd: %v", err)
	}

	bob := FromWelcome(suite, welcome, bobStore, "bob", nil, nil)
	if err := bob.ProcessAdd(add); err != nil {
		t.Fatalf("bob ProcessAdd: %v", err)
	}
	if bob.userIndex != 1 {
		t.Fatalf("bob userIndex = %d, want 1", bob.userIndex)
	}

	if alice.state.Context.Epoch != bob.state.Context.Epoch {
		t.Fatalf("epoch mismatch after add: alice=%d bob=%d", alice.state.Context.Epoch, bob.state.Context.Epoch)
	}
	if string(alice.state.Context.TreeHash) != string(bob.state.Context.TreeHash) {
		t.Fatalf("tree hash mismatch after add")
	}
}

func TestEncryptApplicationMessageRoundTripsThroughProcessMessage(t *testing.T) {
	suite := ciphersuite.New()
	aliceStore := keystore.NewMemory()
	registerUser(t, aliceStore, suite, "alice", "alice-seed")

	alice, err := FromEmpty(suite, aliceStore, "alice", "group-1", nil, nil)
	if err != nil {
		t.Fatalf("FromEmpty: %v", err)
	}

	ciphertext, err := alice.EncryptApplicationMessage([]byte("hello group"))
	if err != nil {
		t.Fatalf("EncryptApplicationMessage: %v", err)
	}

	handler := &recordingHandler{}
	if err := alice.ProcessMessage(ciphertext, handler); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if len(handler.applicationPayloads) != 1 || string(handler.applicationPayloads[0]) != "hello group" {
		t.Fatalf("handler did not receive the application payload: %+v", handler.applicationPayloads)
	}
}

func TestEncryptHandshakeMessageRoundTripsAddThroughProcessMessage(t *testing.T) {
	suite := ciphersuite.New()
	aliceStore := keystore.NewMemory()
	bobStore := keystore.NewMemory()

	registerUser(t, aliceStore, suite, "alice", "alice-seed")
	registerUser(t, bobStore, suite, "bob", "bob-seed")

	alice, err := FromEmpty(suite, aliceStore, "alice", "group-1", nil, nil)
	if err != nil {
		t.Fatalf("FromEmpty: %v", err)
	}

	bobInitKey, err := bobStore.FetchInitKey("bob")
	if err != nil {
		t.Fatalf("FetchInitKey: %v", err)
	}
	aliceStore.RegisterInitKey("bob", bobInitKey)

	_, add, err := alice.AddMember("bob", nil)
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	op := messages.GroupOperation{Type: messages.OperationAdd, Add: add}
	ciphertext, err := alice.EncryptHandshakeMessage(op)
	if err != nil {
		t.Fatalf("EncryptHandshakeMessage: %v", err)
	}

	handler := &recordingHandler{}
	if err := alice.ProcessMessage(ciphertext, handler); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if handler.membersAdded != 1 {
		t.Fatalf("handler.membersAdded = %d, want 1", handler.membersAdded)
	}
	if alice.state.Context.Epoch != 1 {
		t.Fatalf("epoch after processing own handshake = %d, want 1", alice.state.Context.Epoch)
	}
}

func TestProcessMessageRejectsMismatchedEnvelopeMetadata(t *testing.T) {
	suite := ciphersuite.New()
	aliceStore := keystore.NewMemory()
	registerUser(t, aliceStore, suite, "alice", "alice-seed")

	alice, err := FromEmpty(suite, aliceStore, "alice", "group-1", nil, nil)
	if err != nil {
		t.Fatalf("FromEmpty: %v", err)
	}

	ciphertext, err := alice.EncryptApplicationMessage([]byte("hi"))
	if err != nil {
		t.Fatalf("EncryptApplicationMessage: %v", err)
	}
	ciphertext.Epoch = ciphertext.Epoch + 1 // tamper with the envelope

	if err := alice.ProcessMessage(ciphertext, &recordingHandler{}); err == nil {
		t.Fatalf("ProcessMessage should reject envelope/plaintext metadata mismatch")
	}
}
