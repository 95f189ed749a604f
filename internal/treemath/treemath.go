// Package treemath implements the pure index arithmetic of a left-balanced
// binary tree, represented as a flat array where leaves occupy even indices
// and intermediate nodes occupy odd indices.
//
// RFC Appendix A. Tree Math
// https://tools.ietf.org/html/draft-ietf-mls-protocol-07#appendix-A
//
// One benefit of using left-balanced trees is that they admit a simple flat
// array representation. For example, an 11-leaf tree looks like:
//
//	                                             X
//	                     X
//	         X                       X                       X
//	   X           X           X           X           X
//	X     X     X     X     X     X     X     X     X     X     X
//	0  1  2  3  4  5  6  7  8  9 10 11 12 13 14 15 16 17 18 19 20
//
// Apart from Resolve, which asks a Blank view whether each slot is present,
// none of the functions here touch tree contents; they are a pure mapping
// from leaf counts and node indices to other node indices.
package treemath

// log2 returns the largest power of 2 less than or equal to number,
// expressed as an exponent. log2(0) == 0.
func log2(number int) int {
	if number == 0 {
		return 0
	}

	k := 0
	for (number >> uint(k)) > 0 {
		k++
	}
	return k - 1
}

// Level returns the level of a node in the tree. Leaves are level 0; a
// node's level is one more than the level of its highest child.
func Level(nodeIndex int) int {
	if nodeIndex&0x01 == 0 {
		return 0
	}

	k := 0
	for ((nodeIndex >> uint(k)) & 0x01) == 1 {
		k++
	}
	return k
}

// NodeWidth returns the number of array slots needed to hold a tree with
// numLeaves leaves.
func NodeWidth(numLeaves int) int {
	return 2*(numLeaves-1) + 1
}

// Root returns the index of the root node of a tree with numLeaves leaves.
func Root(numLeaves int) int {
	width := NodeWidth(numLeaves)
	return (1 << uint(log2(width))) - 1
}

// Left returns the left child of an intermediate node. The tree is
// left-balanced, so this has no dependency on tree size. A leaf is its own
// left child.
func Left(nodeIndex int) int {
	level := Level(nodeIndex)
	if level == 0 {
		return nodeIndex
	}
	return nodeIndex ^ (0x01 << uint(level-1))
}

// Right returns the right child of an intermediate node, walking left until
// landing inside the tree if the straightforward computation overshoots. A
// leaf is its own right child.
func Right(nodeIndex, numLeaves int) int {
	level := Level(nodeIndex)
	if level == 0 {
		return nodeIndex
	}

	rightIndex := nodeIndex ^ (0x03 << uint(level-1))
	for rightIndex >= NodeWidth(numLeaves) {
		rightIndex = Left(rightIndex)
	}
	return rightIndex
}

// parentStep returns the immediate parent of a node, which may land outside
// the tree's current width.
func parentStep(nodeIndex int) int {
	level := Level(nodeIndex)
	b := (nodeIndex >> uint(level+1)) & 0x01
	return (nodeIndex | (1 << uint(level))) ^ (b << uint(level+1))
}

// Parent returns the parent of nodeIndex, walking parentStep until the
// result lands inside a tree of numLeaves leaves. The root is its own
// parent.
func Parent(nodeIndex, numLeaves int) int {
	if nodeIndex == Root(numLeaves) {
		return nodeIndex
	}

	parentIndex := parentStep(nodeIndex)
	for parentIndex >= NodeWidth(numLeaves) {
		parentIndex = parentStep(parentIndex)
	}
	return parentIndex
}

// Sibling returns the other child of nodeIndex's parent. The root's sibling
// is itself.
func Sibling(nodeIndex, numLeaves int) int {
	parentIndex := Parent(nodeIndex, numLeaves)
	switch {
	case nodeIndex < parentIndex:
		return Right(parentIndex, numLeaves)
	case nodeIndex > parentIndex:
		return Left(parentIndex)
	default:
		return parentIndex
	}
}

// DirectPath returns the path from the parent of nodeIndex up to, but not
// including, the root, ordered from the bottom up.
func DirectPath(nodeIndex, numLeaves int) []int {
	var path []int
	parentIndex := Parent(nodeIndex, numLeaves)
	rootIndex := Root(numLeaves)
	for parentIndex != rootIndex {
		path = append(path, parentIndex)
		parentIndex = Parent(parentIndex, numLeaves)
	}
	return path
}

// Copath returns the siblings of the nodes on nodeIndex's direct path,
// ordered from leaf upward, including nodeIndex's own sibling first when
// nodeIndex is not the root.
//
// This diverges from the Python reference, which appends the node index
// itself to the path list before mapping to siblings; doing so yields a
// path-then-sibling list ordered root-to-leaf rather than leaf-to-root. We
// prepend nodeIndex to the direct path instead, which yields the
// leaf-upward ordering the RFC text describes.
func Copath(nodeIndex, numLeaves int) []int {
	path := DirectPath(nodeIndex, numLeaves)
	if nodeIndex != Sibling(nodeIndex, numLeaves) {
		path = append([]int{nodeIndex}, path...)
	}

	out := make([]int, len(path))
	for i, y := range path {
		out[i] = Sibling(y, numLeaves)
	}
	return out
}

// Frontier returns the roots of the full subtrees that make up a tree of
// numLeaves leaves, ordered left to right. A balanced tree with n leaves has
// one full subtree for every power of two set in the binary representation
// of n, with the largest subtrees furthest to the left.
func Frontier(numLeaves int) []int {
	var sizes []int
	for k := 0; k <= log2(numLeaves); k++ {
		if numLeaves&(1<<uint(k)) != 0 {
			sizes = append(sizes, 1<<uint(k))
		}
	}
	// reverse so largest subtrees come first
	for i, j := 0, len(sizes)-1; i < j; i, j = i+1, j-1 {
		sizes[i], sizes[j] = sizes[j], sizes[i]
	}

	base := 0
	out := make([]int, 0, len(sizes))
	for _, size := range sizes {
		out = append(out, Root(size)+base)
		base += 2 * size
	}
	return out
}

// Leaves returns the indices of all leaf slots in an array of numNodes
// slots.
func Leaves(numNodes int) []int {
	out := make([]int, 0, (numNodes+1)/2)
	for i := 0; 2*i < numNodes; i++ {
		out = append(out, 2*i)
	}
	return out
}

// IsLeaf reports whether nodeIndex is a leaf slot.
func IsLeaf(nodeIndex int) bool {
	return nodeIndex%2 == 0
}

// Blank is the minimal view of tree contents Resolve needs: whether a slot
// holds a value. Tree implementations satisfy this directly, so
// treemath never depends on the tree package's node type.
type Blank interface {
	// Present reports whether the slot at index i holds a non-blank value.
	Present(i int) bool
}

// Resolve returns the resolution of nodeIndex: if the slot is non-blank,
// []int{nodeIndex}; if it is a blank leaf, an empty slice; otherwise the
// concatenation of the resolutions of its two children.
func Resolve(tree Blank, nodeIndex, numLeaves int) []int {
	if tree.Present(nodeIndex) {
		return []int{nodeIndex}
	}

	if Level(nodeIndex) == 0 {
		return nil
	}

	left := Resolve(tree, Left(nodeIndex), numLeaves)
	right := Resolve(tree, Right(nodeIndex, numLeaves), numLeaves)
	return append(left, right...)
}
