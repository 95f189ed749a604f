// Package state implements State, binding a Tree, GroupContext, and
// KeySchedule together and exposing the Add/ProcessAdd/Update/ProcessUpdate
// operations that drive the group forward one epoch at a time.
//
// Three invariants this package enforces deliberately:
//   - ProcessUpdate writes each recovered node to the node index actually
//     being processed, not unconditionally to the leaf's own node index.
//   - The leading DirectPathNode is required to carry exactly zero
//     ciphertexts, not merely a non-nil (but possibly empty) list.
//   - Path secrets are distributed with real HPKE seal/open
//     (internal/ciphersuite), not a stub ciphertext.
package state

import (
	"bytes"
	"fmt"

	"github.com/FHMS-ITS/mls-explained/internal/ciphersuite"
	"github.com/FHMS-ITS/mls-explained/internal/keyschedule"
	"github.com/FHMS-ITS/mls-explained/internal/messages"
	"github.com/FHMS-ITS/mls-explained/internal/treemath"
	"github.com/FHMS-ITS/mls-explained/internal/tree"
)

var (
	labelNode = []byte("node")
	labelPath = []byte("path")
)

// State owns exactly one Tree, one GroupContext, and one KeySchedule. It
// is mutated only by the four methods below.
type State struct {
	Suite    ciphersuite.Suite
	Tree     *tree.Tree
	Context  *messages.GroupContext
	Schedule *keyschedule.Schedule
}

// FromEmpty creates a brand-new single-member group (L=1, epoch=0).
func FromEmpty(suite ciphersuite.Suite, groupID, leafPublic, leafPrivate []byte) *State {
	t := tree.New()
	t.AddLeaf(&tree.Node{PublicKey: leafPublic, PrivateKey: leafPrivate})

	context := &messages.GroupContext{
		GroupID:                 groupID,
		Epoch:                   0,
		TreeHash:                t.TreeHash(),
		ConfirmedTranscriptHash: make([]byte, ciphersuite.HashSize),
	}

	return &State{
		Suite:    suite,
		Tree:     t,
		Context:  context,
		Schedule: keyschedule.New(suite),
	}
}

// FromExisting reconstructs a State from a Welcome's node list and group
// context. The caller is responsible for seeding Schedule.InitSecret from
// the Welcome's init_secret field afterward.
func FromExisting(suite ciphersuite.Suite, context *messages.GroupContext, nodes []*tree.Node) *State {
	return &State{
		Suite:    suite,
		Tree:     tree.FromNodes(nodes),
		Context:  context,
		Schedule: keyschedule.New(suite),
	}
}

// Add snapshots the current tree into a WelcomeInfo (with every private
// key stripped) and builds an Add naming the next leaf slot. It does not
// mutate State — applying the Add to this State's own tree is a separate
// ProcessAdd call, since both sides then apply the Add independently.
func (s *State) Add(initKey, credential []byte) (*messages.WelcomeInfo, *messages.Add, error) {
	if len(initKey) == 0 {
		return nil, nil, fmt.Errorf("state: add: init key is empty")
	}

	welcome := &messages.WelcomeInfo{
		GroupID:               s.Context.GroupID,
		Epoch:                 s.Context.Epoch,
		Nodes:                 s.Tree.StrippedNodes(),
		InterimTranscriptHash: make([]byte, ciphersuite.HashSize),
		InitSecret:            s.Schedule.InitSecret,
	}

	add := &messages.Add{
		Index:           uint32(s.Tree.NumLeaves()),
		InitKey:         initKey,
		Credential:      credential,
		WelcomeInfoHash: make([]byte, ciphersuite.HashSize),
	}

	return welcome, add, nil
}

// ProcessAdd installs the joiner named by add into the tree and advances
// the epoch with a zero update secret. If ownPrivateKey is
// non-empty, it is stored alongside the new leaf's public key — the caller
// (Session) is responsible for only supplying it when the keystore
// confirms this process holds the matching private key.
func (s *State) ProcessAdd(add *messages.Add, ownPrivateKey []byte) error {
	leafIndex := int(add.Index)
	numLeaves := s.Tree.NumLeaves()

	if leafIndex > numLeaves {
		return fmt.Errorf("state: malformed add: index %d exceeds leaf count %d", leafIndex, numLeaves)
	}
	if leafIndex < numLeaves {
		existing, err := s.Tree.Get(2 * leafIndex)
		if err != nil {
			return fmt.Errorf("state: process add: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("state: malformed add: leaf %d is not blank", leafIndex)
		}
	}

	node := &tree.Node{PublicKey: add.InitKey, Credential: add.Credential}
	if len(ownPrivateKey) > 0 {
		node.PrivateKey = ownPrivateKey
	}
	if err := s.Tree.InstallLeaf(leafIndex, node); err != nil {
		return fmt.Errorf("state: process add: %w", err)
	}

	return s.advanceEpoch(make([]byte, ciphersuite.HashSize))
}

// Update generates a fresh path secret for ownLeafIndex, refreshes the
// sender's own leaf and every ancestor up to the root, and returns the
// resulting direct path.
func (s *State) Update(ownLeafIndex int) (*messages.Update, error) {
	numLeaves := s.Tree.NumLeaves()
	ownNodeIndex := 2 * ownLeafIndex

	pathSecret, err := ciphersuite.RandomBytes(16)
	if err != nil {
		return nil, fmt.Errorf("state: update: %w", err)
	}

	leafKeyPair, err := s.deriveAndInstall(ownNodeIndex, pathSecret)
	if err != nil {
		return nil, fmt.Errorf("state: update: %w", err)
	}

	directPath := []messages.DirectPathNode{
		{PublicKey: leafKeyPair.PublicKey[:], EncryptedPathSecrets: nil},
	}
	updateSecret := append([]byte(nil), pathSecret...)

	// Special case L=1: no copath exists, so the initial path secret is
	// itself the update secret and the direct path carries only the leaf
	// entry.
	if numLeaves > 1 {
		for _, conodeIndex := range treemath.Copath(ownNodeIndex, numLeaves) {
			nodeIndex := treemath.Parent(conodeIndex, numLeaves)

			pathSecret, err = s.Suite.HkdfExpandLabel(pathSecret, labelPath, s.Context.Bytes())
			if err != nil {
				return nil, fmt.Errorf("state: update: derive path secret: %w", err)
			}

			kp, err := s.deriveAndInstall(nodeIndex, pathSecret)
			if err != nil {
				return nil, fmt.Errorf("state: update: %w", err)
			}

			resolution := s.Tree.Resolve(conodeIndex)
			ciphertexts := make([]messages.HPKECiphertext, 0, len(resolution))
			for _, resolutionIndex := range resolution {
				resolutionNode, err := s.Tree.Get(resolutionIndex)
				if err != nil {
					return nil, fmt.Errorf("state: update: %w", err)
				}
				var pub [32]byte
				copy(pub[:], resolutionNode.PublicKey)

				encapsulated, ct, err := s.Suite.HPKESeal(pub, s.Context.Bytes(), pathSecret)
				if err != nil {
					return nil, fmt.Errorf("state: update: hpke seal: %w", err)
				}
				ciphertexts = append(ciphertexts, messages.HPKECiphertext{EncapsulatedKey: encapsulated, CipherText: ct})
			}

			directPath = append(directPath, messages.DirectPathNode{
				PublicKey:            kp.PublicKey[:],
				EncryptedPathSecrets: ciphertexts,
			})
			updateSecret = append([]byte(nil), pathSecret...)
		}
	}

	if err := s.advanceEpoch(updateSecret); err != nil {
		return nil, fmt.Errorf("state: update: %w", err)
	}

	return &messages.Update{DirectPath: directPath}, nil
}

// deriveAndInstall derives a key pair from pathSecret via the "node" label
// and installs it at nodeIndex.
func (s *State) deriveAndInstall(nodeIndex int, pathSecret []byte) (ciphersuite.KeyPair, error) {
	nodeSecret, err := s.Suite.HkdfExpandLabel(pathSecret, labelNode, s.Context.Bytes())
	if err != nil {
		return ciphersuite.KeyPair{}, fmt.Errorf("derive node secret: %w", err)
	}
	kp, err := s.Suite.DeriveKeyPair(nodeSecret)
	if err != nil {
		return ciphersuite.KeyPair{}, fmt.Errorf("derive key pair: %w", err)
	}
	if err := s.Tree.Set(nodeIndex, &tree.Node{PublicKey: kp.PublicKey[:], PrivateKey: kp.PrivateKey[:]}); err != nil {
		return ciphersuite.KeyPair{}, fmt.Errorf("install node %d: %w", nodeIndex, err)
	}
	return kp, nil
}

// ProcessUpdate applies an Update received from leafIndex: it validates
// the direct path's shape, decrypts the one path secret addressed to the
// lowest ancestor whose copath resolution holds a key this recipient owns,
// derives the path secrets above it via the "path" label, takes only the
// public keys of the ancestors below it, and atomically commits every
// staged node to the tree only once the whole walk succeeds.
func (s *State) ProcessUpdate(leafIndex int, update *messages.Update) error {
	numLeaves := s.Tree.NumLeaves()
	ownNodeIndex := 2 * leafIndex

	wantLen := len(treemath.DirectPath(ownNodeIndex, numLeaves)) + 2
	if numLeaves == 1 {
		wantLen = 1
	}
	if len(update.DirectPath) != wantLen {
		return fmt.Errorf("state: malformed update: direct path has %d entries, want %d", len(update.DirectPath), wantLen)
	}
	if len(update.DirectPath[0].EncryptedPathSecrets) != 0 {
		return fmt.Errorf("state: malformed update: leading direct path entry carries ciphertexts")
	}

	staged := s.Tree.Snapshot()
	staged[ownNodeIndex] = &tree.Node{PublicKey: update.DirectPath[0].PublicKey}

	if numLeaves == 1 {
		s.Tree.Restore(staged)
		return s.advanceEpoch(append([]byte(nil), update.DirectPath[0].PublicKey...))
	}

	currentChildIndex := ownNodeIndex
	var pathSecret, updateSecret []byte

	for _, entry := range update.DirectPath[1:] {
		siblingIndex := treemath.Sibling(currentChildIndex, numLeaves)
		targetNodeIndex := treemath.Parent(currentChildIndex, numLeaves)
		currentChildIndex = targetNodeIndex

		resolution := s.Tree.Resolve(siblingIndex)

		var err error
		if pathSecret != nil {
			pathSecret, err = s.Suite.HkdfExpandLabel(pathSecret, labelPath, s.Context.Bytes())
		} else {
			pathSecret, err = s.recoverPathSecret(resolution, entry.EncryptedPathSecrets)
		}
		if err != nil {
			return fmt.Errorf("state: process update: %w", err)
		}
		if pathSecret == nil {
			staged[targetNodeIndex] = &tree.Node{PublicKey: entry.PublicKey}
			continue
		}

		nodeSecret, err := s.Suite.HkdfExpandLabel(pathSecret, labelNode, s.Context.Bytes())
		if err != nil {
			return fmt.Errorf("state: process update: derive node secret: %w", err)
		}
		kp, err := s.Suite.DeriveKeyPair(nodeSecret)
		if err != nil {
			return fmt.Errorf("state: process update: derive key pair: %w", err)
		}
		if !bytes.Equal(kp.PublicKey[:], entry.PublicKey) {
			return fmt.Errorf("state: crypto key mismatch at node %d", targetNodeIndex)
		}

		staged[targetNodeIndex] = &tree.Node{PublicKey: kp.PublicKey[:], PrivateKey: kp.PrivateKey[:]}
		updateSecret = pathSecret
	}
	if updateSecret == nil {
		return fmt.Errorf("state: process update: no private key available to decrypt update path secret")
	}

	s.Tree.Restore(staged)
	return s.advanceEpoch(updateSecret)
}

// recoverPathSecret scans resolution (node indices in the CURRENT,
// pre-commit tree) for the first node this State holds a private key for,
// and decrypts the ciphertext at the same position in ciphertexts. It
// returns nil and no error when this State holds none of those keys.
func (s *State) recoverPathSecret(resolution []int, ciphertexts []messages.HPKECiphertext) ([]byte, error) {
	for pos, resolutionIndex := range resolution {
		resolutionNode, err := s.Tree.Get(resolutionIndex)
		if err != nil {
			return nil, fmt.Errorf("%w", err)
		}
		if !resolutionNode.HasPrivateKey() {
			continue
		}
		if pos >= len(ciphertexts) {
			return nil, fmt.Errorf("no ciphertext at resolution position %d", pos)
		}

		var priv [32]byte
		copy(priv[:], resolutionNode.PrivateKey)

		ct := ciphertexts[pos]
		plaintext, err := s.Suite.HPKEOpen(priv, s.Context.Bytes(), ct.EncapsulatedKey, ct.CipherText)
		if err != nil {
			return nil, fmt.Errorf("hpke open: %w", err)
		}
		return plaintext, nil
	}
	return nil, nil
}

// advanceEpoch recomputes the tree hash, bumps the epoch, and runs the key
// schedule forward.
func (s *State) advanceEpoch(updateSecret []byte) error {
	s.Context.TreeHash = s.Tree.TreeHash()
	s.Context.Epoch++
	if err := s.Schedule.Advance(updateSecret, s.Context.Bytes()); err != nil {
		return fmt.Errorf("advance epoch: %w", err)
	}
	return nil
}
