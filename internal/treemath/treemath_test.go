package treemath

import "testing"

func TestRootSingleLeaf(t *testing.T) {
	if got := Root(1); got != 0 {
		t.Fatalf("Root(1) = %d, want 0", got)
	}
}

func TestRootEleven(t *testing.T) {
	// Matches the worked example from the RFC appendix: 11 leaves -> 21 nodes,
	// root at index 15.
	if got := Root(11); got != 15 {
		t.Fatalf("Root(11) = %d, want 15", got)
	}
}

func TestCopathLeafZeroSingleLeafTree(t *testing.T) {
	got := Copath(0, 1)
	if len(got) != 0 {
		t.Fatalf("Copath(0, 1) = %v, want empty", got)
	}
}

func TestParentNeverSelfExceptRoot(t *testing.T) {
	const numLeaves = 9
	root := Root(numLeaves)
	width := NodeWidth(numLeaves)

	for i := 0; i < width; i++ {
		if i == root {
			continue
		}
		p := Parent(i, numLeaves)
		if p == i {
			t.Fatalf("Parent(%d) = %d, expected a different node", i, p)
		}
		if Level(p) <= Level(i) {
			t.Fatalf("Parent(%d)=%d has level %d, not greater than level %d of child", i, p, Level(p), Level(i))
		}
	}
}

func TestSiblingInvolution(t *testing.T) {
	const numLeaves = 7
	width := NodeWidth(numLeaves)
	root := Root(numLeaves)

	for i := 0; i < width; i++ {
		if i == root {
			continue
		}
		s := Sibling(i, numLeaves)
		if got := Sibling(s, numLeaves); got != i {
			t.Fatalf("Sibling(Sibling(%d)) = %d, want %d", i, got, i)
		}
	}
}

func TestDirectPathExcludesRoot(t *testing.T) {
	const numLeaves = 5
	root := Root(numLeaves)
	width := NodeWidth(numLeaves)

	for i := 0; i < width; i++ {
		for _, p := range DirectPath(i, numLeaves) {
			if p == root {
				t.Fatalf("DirectPath(%d) includes root %d", i, root)
			}
		}
	}
}

func TestIsLeaf(t *testing.T) {
	cases := map[int]bool{0: true, 1: false, 2: true, 3: false, 4: true}
	for idx, want := range cases {
		if got := IsLeaf(idx); got != want {
			t.Errorf("IsLeaf(%d) = %v, want %v", idx, got, want)
		}
	}
}

func TestLeaves(t *testing.T) {
	got := Leaves(7) // 4-leaf tree has 7 node slots
	want := []int{0, 2, 4, 6}
	if len(got) != len(want) {
		t.Fatalf("Leaves(7) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Leaves(7) = %v, want %v", got, want)
		}
	}
}

func TestFrontierPowerOfTwo(t *testing.T) {
	// A perfectly-balanced tree of 8 leaves has a single full subtree: its
	// own root.
	got := Frontier(8)
	want := []int{Root(8)}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("Frontier(8) = %v, want %v", got, want)
	}
}

func TestFrontierEleven(t *testing.T) {
	// 11 = 8 + 2 + 1: three full subtrees, largest first.
	got := Frontier(11)
	if len(got) != 3 {
		t.Fatalf("Frontier(11) = %v, want 3 entries", got)
	}
}

type blankSet map[int]bool

func (b blankSet) Present(i int) bool { return b[i] }

func TestResolveAllBlankIsEmpty(t *testing.T) {
	const numLeaves = 4
	blanks := blankSet{}
	root := Root(numLeaves)
	got := Resolve(blanks, root, numLeaves)
	if len(got) != 0 {
		t.Fatalf("Resolve(all-blank root) = %v, want empty", got)
	}
}

func TestResolveNonBlankLeafIsItself(t *testing.T) {
	const numLeaves = 4
	present := blankSet{2: true}
	got := Resolve(present, 2, numLeaves)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("Resolve(present leaf) = %v, want [2]", got)
	}
}

func TestResolveCollectsNonBlankDescendants(t *testing.T) {
	const numLeaves = 4
	// Leaves 0 and 2 present, leaves at indices 4 and 6 blank; root blank so
	// it recurses into children.
	present := blankSet{0: true, 2: true}
	root := Root(numLeaves)
	got := Resolve(present, root, numLeaves)
	if len(got) != 2 {
		t.Fatalf("Resolve(root) = %v, want 2 entries", got)
	}
}
