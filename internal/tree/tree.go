// Package tree implements the ratchet tree: an ordered array of optional
// tree nodes with blank-slot semantics, leaf insertion with path blanking,
// and a Merkle-style tree-hash commitment.
package tree

import (
	"crypto/sha256"
	"fmt"

	"github.com/FHMS-ITS/mls-explained/internal/treemath"
)

// Node is a single slot's contents: a required public key, and optionally
// a private key and a credential. A nil *Node in the tree's node array is a
// blank slot.
//
// Invariant: when PrivateKey is non-empty, PublicKey must be the public
// half of the key pair derived from the same node secret — that invariant
// is enforced by callers deriving both halves together (see
// internal/ciphersuite.DeriveKeyPair), not re-checked here.
type Node struct {
	PublicKey  []byte
	PrivateKey []byte
	Credential []byte
}

// Equal compares nodes by public key only.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return string(n.PublicKey) == string(other.PublicKey)
}

// DeepEqual compares all three fields.
func (n *Node) DeepEqual(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return string(n.PublicKey) == string(other.PublicKey) &&
		string(n.PrivateKey) == string(other.PrivateKey) &&
		string(n.Credential) == string(other.Credential)
}

// HasPrivateKey reports whether this node holds a private key.
func (n *Node) HasPrivateKey() bool {
	return n != nil && len(n.PrivateKey) > 0
}

// StripPrivateKey returns a copy of n with PrivateKey removed, used when
// snapshotting a tree into a Welcome message: WelcomeInfo must not carry
// private keys.
func (n *Node) StripPrivateKey() *Node {
	if n == nil {
		return nil
	}
	return &Node{PublicKey: n.PublicKey, Credential: n.Credential}
}

// Tree is the ratchet tree: a flat array of optional Nodes, leaves at even
// indices, intermediate nodes at odd indices.
type Tree struct {
	nodes []*Node
}

// New returns an empty tree with no leaves.
func New() *Tree {
	return &Tree{}
}

// FromNodes builds a tree from an existing node array, as when
// reconstructing a Session from a Welcome message (State.from_existing).
func FromNodes(nodes []*Node) *Tree {
	cp := make([]*Node, len(nodes))
	copy(cp, nodes)
	return &Tree{nodes: cp}
}

// NumNodes returns the number of array slots in the tree.
func (t *Tree) NumNodes() int {
	return len(t.nodes)
}

// NumLeaves returns the number of leaf slots, L = ceil(N/2).
func (t *Tree) NumLeaves() int {
	return (len(t.nodes) + 1) / 2
}

// Root returns the index of the tree's root node.
func (t *Tree) Root() int {
	return treemath.Root(t.NumLeaves())
}

// Get returns the node at index i, or nil if the slot is blank. It returns
// an error if i is out of range.
func (t *Tree) Get(i int) (*Node, error) {
	if i < 0 || i >= len(t.nodes) {
		return nil, fmt.Errorf("tree: index %d out of range [0, %d)", i, len(t.nodes))
	}
	return t.nodes[i], nil
}

// Set installs node at index i, blanking the slot if node is nil. It
// returns an error if i is out of range.
func (t *Tree) Set(i int, node *Node) error {
	if i < 0 || i >= len(t.nodes) {
		return fmt.Errorf("tree: index %d out of range [0, %d)", i, len(t.nodes))
	}
	t.nodes[i] = node
	return nil
}

// Present implements treemath.Blank: reports whether slot i holds a
// non-blank value.
func (t *Tree) Present(i int) bool {
	if i < 0 || i >= len(t.nodes) {
		return false
	}
	return t.nodes[i] != nil
}

// Resolve returns the resolution of node i (treemath.Resolve bound to this
// tree's leaf count).
func (t *Tree) Resolve(i int) []int {
	return treemath.Resolve(t, i, t.NumLeaves())
}

// AddLeaf appends a new leaf node, extending the array as needed, and
// blanks every strict ancestor of the new leaf. It returns the new leaf's
// node index (always even).
//
// The target width is computed directly rather than appending a
// placeholder blank node first, since Go's nil already represents
// "blank" without needing a sentinel.
func (t *Tree) AddLeaf(node *Node) int {
	if len(t.nodes) == 0 {
		t.nodes = []*Node{node}
		return 0
	}

	leafIndex := t.NumLeaves()
	targetWidth := treemath.NodeWidth(leafIndex + 1)
	for len(t.nodes) < targetWidth {
		t.nodes = append(t.nodes, nil)
	}

	newLeafNodeIndex := 2 * leafIndex
	t.nodes[newLeafNodeIndex] = node

	t.blankPath(newLeafNodeIndex)
	return newLeafNodeIndex
}

// InstallLeaf installs node at leaf position leafIndex (a leaf COUNT, not a
// node index). If leafIndex names the next unused leaf slot, the tree is
// extended exactly as AddLeaf does; if it names an existing leaf slot,
// that slot must already be blank, and only that slot plus its ancestor
// path are touched — the tree is not extended. It returns an error if
// leafIndex is neither the next slot nor an existing blank slot.
func (t *Tree) InstallLeaf(leafIndex int, node *Node) error {
	if leafIndex == t.NumLeaves() {
		t.AddLeaf(node)
		return nil
	}
	if leafIndex > t.NumLeaves() {
		return fmt.Errorf("tree: install leaf %d out of range for current leaf count %d", leafIndex, t.NumLeaves())
	}

	nodeIndex := 2 * leafIndex
	if t.nodes[nodeIndex] != nil {
		return fmt.Errorf("tree: install leaf %d: existing leaf is not blank", leafIndex)
	}
	t.nodes[nodeIndex] = node
	t.blankPath(nodeIndex)
	return nil
}

// blankPath blanks every strict ancestor of nodeIndex, walking parent()
// until the walk fixes at the root.
func (t *Tree) blankPath(nodeIndex int) {
	numLeaves := t.NumLeaves()
	current := nodeIndex
	for {
		next := treemath.Parent(current, numLeaves)
		if next == current {
			return
		}
		t.nodes[next] = nil
		current = next
	}
}

// Snapshot returns a deep copy of the node array, for staged/transactional
// writes: a caller stages changes in a scratch buffer and commits them
// only on success.
func (t *Tree) Snapshot() []*Node {
	cp := make([]*Node, len(t.nodes))
	for i, n := range t.nodes {
		if n == nil {
			continue
		}
		cp[i] = &Node{PublicKey: n.PublicKey, PrivateKey: n.PrivateKey, Credential: n.Credential}
	}
	return cp
}

// Restore replaces the tree's node array wholesale, the commit half of a
// staged write.
func (t *Tree) Restore(nodes []*Node) {
	t.nodes = nodes
}

// StrippedNodes returns a deep copy of the node array with every private
// key removed, for embedding in a WelcomeInfo message.
func (t *Tree) StrippedNodes() []*Node {
	cp := make([]*Node, len(t.nodes))
	for i, n := range t.nodes {
		cp[i] = n.StripPrivateKey()
	}
	return cp
}

const (
	leafHashTag   = 0x00
	parentHashTag = 0x01

	leafAbsentTag  = 0x00
	leafPresentTag = 0x01
)

// TreeHash computes the Merkle-style commitment over the whole tree,
// rooted at t.Root().
//
// Leaf hash input: a blank leaf hashes 0x00 ‖ 0x00 (leaf tag, absent
// tag); a present leaf hashes 0x00 ‖ 0x01 ‖ public_key ‖ credential (leaf
// tag, present tag, then the raw concatenation of public key and
// credential with no length prefixes).
//
// Intermediate hash input: 0x01 ‖ hash(left) ‖ hash(right), with the
// node's own public key appended when the node is non-blank.
func (t *Tree) TreeHash() []byte {
	return t.nodeHash(t.Root())
}

func (t *Tree) nodeHash(i int) []byte {
	if treemath.IsLeaf(i) {
		return t.leafHash(i)
	}
	return t.parentHash(i)
}

func (t *Tree) leafHash(i int) []byte {
	n, _ := t.Get(i)

	h := sha256.New()
	h.Write([]byte{leafHashTag})
	if n == nil {
		h.Write([]byte{leafAbsentTag})
		return h.Sum(nil)
	}

	h.Write([]byte{leafPresentTag})
	h.Write(n.PublicKey)
	h.Write(n.Credential)
	return h.Sum(nil)
}

func (t *Tree) parentHash(i int) []byte {
	numLeaves := t.NumLeaves()
	leftHash := t.nodeHash(treemath.Left(i))
	rightHash := t.nodeHash(treemath.Right(i, numLeaves))

	h := sha256.New()
	h.Write([]byte{parentHashTag})
	h.Write(leftHash)
	h.Write(rightHash)

	n, _ := t.Get(i)
	if n != nil {
		h.Write(n.PublicKey)
	}
	return h.Sum(nil)
}
