package state

import (
	"testing"

	"github.com/FHMS-ITS/mls-explained/internal/ciphersuite"
)

func newLeafKeyPair(t *testing.T, suite ciphersuite.Suite, seed string) ciphersuite.KeyPair {
	t.Helper()
	kp, err := suite.DeriveKeyPair([]byte(seed))
	if err != nil {
		t.Fatalf("DeriveKeyPair(%q): %v", seed, err)
	}
	return kp
}

func TestAddProcessAddGrowsTreeAndAdvancesEpoch(t *testing.T) {
	suite := ciphersuite.New()
	alice := newLeafKeyPair(t, suite, "alice")
	bob := newLeafKeyPair(t, suite, "bob")

	creator := FromEmpty(suite, []byte("group"), alice.PublicKey[:], alice.PrivateKey[:])
	if creator.Context.Epoch != 0 {
		t.Fatalf("fresh group epoch = %d, want 0", creator.Context.Epoch)
	}

	welcome, add, err := creator.Add(bob.PublicKey[:], []byte("bob-cred"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if welcome.Epoch != 0 {
		t.Fatalf("welcome epoch = %d, want 0 (pre-add)", welcome.Epoch)
	}
	for i, n := range welcome.Nodes {
		if n != nil && len(n.PrivateKey) != 0 {
			t.Fatalf("welcome node %d leaked a private key", i)
		}
	}

	contextBeforeAdd := *creator.Context

	if err := creator.ProcessAdd(add, nil); err != nil {
		t.Fatalf("creator ProcessAdd: %v", err)
	}
	if creator.Context.Epoch != 1 {
		t.Fatalf("creator epoch after add = %d, want 1", creator.Context.Epoch)
	}
	if creator.Tree.NumLeaves() != 2 {
		t.Fatalf("creator leaf count after add = %d, want 2", creator.Tree.NumLeaves())
	}

	joiner := FromExisting(suite, &contextBeforeAdd, welcome.Nodes)
	joiner.Schedule.InitSecret = welcome.InitSecret
	if err := joiner.ProcessAdd(add, bob.PrivateKey[:]); err != nil {
		t.Fatalf("joiner ProcessAdd: %v", err)
	}

	if joiner.Context.Epoch != creator.Context.Epoch {
		t.Fatalf("epoch mismatch: joiner=%d creator=%d", joiner.Context.Epoch, creator.Context.Epoch)
	}
	if string(joiner.Context.TreeHash) != string(creator.Context.TreeHash) {
		t.Fatalf("tree hash mismatch after add")
	}
	if string(joiner.Schedule.ApplicationSecret) != string(creator.Schedule.ApplicationSecret) {
		t.Fatalf("application secret mismatch after add")
	}
}

func TestProcessAddRejectsNonBlankExistingLeaf(t *testing.T) {
	suite := ciphersuite.New()
	alice := newLeafKeyPair(t, suite, "alice")
	bob := newLeafKeyPair(t, suite, "bob")
	mallory := newLeafKeyPair(t, suite, "mallory")

	s := FromEmpty(suite, []byte("group"), alice.PublicKey[:], alice.PrivateKey[:])
	_, add, err := s.Add(bob.PublicKey[:], nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.ProcessAdd(add, bob.PrivateKey[:]); err != nil {
		t.Fatalf("ProcessAdd: %v", err)
	}

	_, badAdd, err := s.Add(mallory.PublicKey[:], nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	badAdd.Index = 0 // alice's slot is not blank
	if err := s.ProcessAdd(badAdd, nil); err == nil {
		t.Fatalf("ProcessAdd should reject installing over a non-blank leaf")
	}
}

func threeMemberGroup(t *testing.T, suite ciphersuite.Suite) (*State, *State, *State) {
	t.Helper()
	alice := newLeafKeyPair(t, suite, "alice")
	bob := newLeafKeyPair(t, suite, "bob")
	carol := newLeafKeyPair(t, suite, "carol")

	creator := FromEmpty(suite, []byte("group"), alice.PublicKey[:], alice.PrivateKey[:])

	welcomeBob, addBob, err := creator.Add(bob.PublicKey[:], nil)
	if err != nil {
		t.Fatalf("Add bob: %v", err)
	}
	contextAtBobJoin := *creator.Context
	bobState := FromExisting(suite, &contextAtBobJoin, welcomeBob.Nodes)
	bobState.Schedule.InitSecret = welcomeBob.InitSecret

	if err := creator.ProcessAdd(addBob, nil); err != nil {
		t.Fatalf("creator process add bob: %v", err)
	}
	if err := bobState.ProcessAdd(addBob, bob.PrivateKey[:]); err != nil {
		t.Fatalf("bob process add bob: %v", err)
	}

	welcomeCarol, addCarol, err := creator.Add(carol.PublicKey[:], nil)
	if err != nil {
		t.Fatalf("Add carol: %v", err)
	}
	contextAtCarolJoin := *creator.Context
	carolState := FromExisting(suite, &contextAtCarolJoin, welcomeCarol.Nodes)
	carolState.Schedule.InitSecret = welcomeCarol.InitSecret

	if err := creator.ProcessAdd(addCarol, nil); err != nil {
		t.Fatalf("creator process add carol: %v", err)
	}
	if err := bobState.ProcessAdd(addCarol, nil); err != nil {
		t.Fatalf("bob process add carol: %v", err)
	}
	if err := carolState.ProcessAdd(addCarol, carol.PrivateKey[:]); err != nil {
		t.Fatalf("carol process add carol: %v", err)
	}

	return creator, bobState, carolState
}

func TestThreeMemberFanOutAgreesOnKeySchedule(t *testing.T) {
	suite := ciphersuite.New()
	creator, bobState, carolState := threeMemberGroup(t, suite)

	if creator.Tree.NumLeaves() != 3 {
		t.Fatalf("leaf count = %d, want 3", creator.Tree.NumLeaves())
	}

	for _, pair := range [][2]*State{{creator, bobState}, {creator, carolState}} {
		a, b := pair[0], pair[1]
		if a.Context.Epoch != b.Context.Epoch {
			t.Fatalf("epoch mismatch: %d vs %d", a.Context.Epoch, b.Context.Epoch)
		}
		if string(a.Context.TreeHash) != string(b.Context.TreeHash) {
			t.Fatalf("tree hash mismatch between members")
		}
		if string(a.Schedule.ApplicationSecret) != string(b.Schedule.ApplicationSecret) {
			t.Fatalf("application secret mismatch between members")
		}
		if string(a.Schedule.HandshakeSecret) != string(b.Schedule.HandshakeSecret) {
			t.Fatalf("handshake secret mismatch between members")
		}
	}
}

func TestUpdateAndProcessUpdateAgreeOnNewSecrets(t *testing.T) {
	suite := ciphersuite.New()
	creator, bobState, carolState := threeMemberGroup(t, suite)

	preEpoch := creator.Context.Epoch
	update, err := bobState.Update(1)
	if err != nil {
		t.Fatalf("bob Update: %v", err)
	}
	if len(update.DirectPath[0].EncryptedPathSecrets) != 0 {
		t.Fatalf("leading direct path entry must carry no ciphertexts")
	}

	if err := creator.ProcessUpdate(1, update); err != nil {
		t.Fatalf("creator ProcessUpdate: %v", err)
	}
	if err := carolState.ProcessUpdate(1, update); err != nil {
		t.Fatalf("carol ProcessUpdate: %v", err)
	}

	if creator.Context.Epoch != preEpoch+1 {
		t.Fatalf("creator epoch = %d, want %d", creator.Context.Epoch, preEpoch+1)
	}
	if bobState.Context.Epoch != preEpoch+1 {
		t.Fatalf("bob epoch = %d, want %d", bobState.Context.Epoch, preEpoch+1)
	}

	if string(creator.Context.TreeHash) != string(bobState.Context.TreeHash) {
		t.Fatalf("tree hash mismatch creator vs bob after update")
	}
	if string(carolState.Context.TreeHash) != string(bobState.Context.TreeHash) {
		t.Fatalf("tree hash mismatch carol vs bob after update")
	}
	if string(creator.Schedule.ApplicationSecret) != string(bobState.Schedule.ApplicationSecret) {
		t.Fatalf("application secret mismatch creator vs bob after update")
	}
	if string(carolState.Schedule.ApplicationSecret) != string(bobState.Schedule.ApplicationSecret) {
		t.Fatalf("application secret mismatch carol vs bob after update")
	}
}

func TestProcessUpdateRejectsWrongDirectPathLength(t *testing.T) {
	suite := ciphersuite.New()
	creator, bobState, _ := threeMemberGroup(t, suite)

	update, err := bobState.Update(1)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	update.DirectPath = update.DirectPath[:len(update.DirectPath)-1]

	if err := creator.ProcessUpdate(1, update); err == nil {
		t.Fatalf("ProcessUpdate should reject a truncated direct path")
	}
}

func TestProcessUpdateRejectsCiphertextsOnLeadingEntry(t *testing.T) {
	suite := ciphersuite.New()
	creator, bobState, _ := threeMemberGroup(t, suite)

	update, err := bobState.Update(1)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	update.DirectPath[0].EncryptedPathSecrets = append(update.DirectPath[0].EncryptedPathSecrets, update.DirectPath[1].EncryptedPathSecrets...)
	if len(update.DirectPath[0].EncryptedPathSecrets) == 0 {
		t.Skip("fixture has no ciphertexts to graft for this case")
	}

	if err := creator.ProcessUpdate(1, update); err == nil {
		t.Fatalf("ProcessUpdate should reject ciphertexts on the leading direct path entry")
	}
}
