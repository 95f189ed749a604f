package tree

import "testing"

func leaf(pub string) *Node {
	return &Node{PublicKey: []byte(pub)}
}

func TestAddLeafFirstIsRootAndLeaf(t *testing.T) {
	tr := New()
	tr.AddLeaf(leaf("alice"))

	if tr.NumLeaves() != 1 {
		t.Fatalf("NumLeaves() = %d, want 1", tr.NumLeaves())
	}
	if tr.Root() != 0 {
		t.Fatalf("Root() = %d, want 0", tr.Root())
	}
}

func TestAddLeafBlanksAncestors(t *testing.T) {
	tr := New()
	tr.AddLeaf(leaf("alice"))
	tr.AddLeaf(leaf("bob"))

	// 3-node tree: 0=alice, 1=blank, 2=bob
	if tr.NumNodes() != 3 {
		t.Fatalf("NumNodes() = %d, want 3", tr.NumNodes())
	}
	if tr.Present(1) {
		t.Fatalf("node 1 should be blank after adding a second leaf")
	}
	n0, _ := tr.Get(0)
	n2, _ := tr.Get(2)
	if string(n0.PublicKey) != "alice" || string(n2.PublicKey) != "bob" {
		t.Fatalf("leaf contents wrong: n0=%v n2=%v", n0, n2)
	}
}

func TestAddLeafIncrementsCount(t *testing.T) {
	tr := New()
	for i := 0; i < 5; i++ {
		before := tr.NumLeaves()
		tr.AddLeaf(leaf("x"))
		if tr.NumLeaves() != before+1 {
			t.Fatalf("NumLeaves() = %d, want %d", tr.NumLeaves(), before+1)
		}
	}
}

func TestTreeHashDeterministic(t *testing.T) {
	t1 := New()
	t1.AddLeaf(leaf("alice"))
	t1.AddLeaf(leaf("bob"))

	t2 := New()
	t2.AddLeaf(leaf("alice"))
	t2.AddLeaf(leaf("bob"))

	h1 := t1.TreeHash()
	h2 := t2.TreeHash()
	if string(h1) != string(h2) {
		t.Fatalf("TreeHash mismatch for identically-constructed trees")
	}
}

func TestTreeHashChangesWithContent(t *testing.T) {
	t1 := New()
	t1.AddLeaf(leaf("alice"))
	t1.AddLeaf(leaf("bob"))

	t2 := New()
	t2.AddLeaf(leaf("alice"))
	t2.AddLeaf(leaf("carol"))

	if string(t1.TreeHash()) == string(t2.TreeHash()) {
		t.Fatalf("TreeHash did not change when leaf contents differed")
	}
}

func TestStrippedNodesRemovesPrivateKeys(t *testing.T) {
	tr := New()
	tr.AddLeaf(&Node{PublicKey: []byte("pub"), PrivateKey: []byte("secret")})

	stripped := tr.StrippedNodes()
	if len(stripped[0].PrivateKey) != 0 {
		t.Fatalf("StrippedNodes() left a private key in place")
	}
	if string(stripped[0].PublicKey) != "pub" {
		t.Fatalf("StrippedNodes() lost the public key")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	tr := New()
	tr.AddLeaf(leaf("alice"))
	tr.AddLeaf(leaf("bob"))

	snap := tr.Snapshot()
	snap[2] = leaf("mallory") // mutate the copy only

	n2, _ := tr.Get(2)
	if string(n2.PublicKey) != "bob" {
		t.Fatalf("mutating a snapshot affected the live tree")
	}

	tr.Restore(snap)
	n2, _ = tr.Get(2)
	if string(n2.PublicKey) != "mallory" {
		t.Fatalf("Restore() did not take effect")
	}
}

func TestInstallLeafExtendsAtNextSlot(t *testing.T) {
	tr := New()
	tr.AddLeaf(leaf("alice"))

	if err := tr.InstallLeaf(1, leaf("bob")); err != nil {
		t.Fatalf("InstallLeaf: %v", err)
	}
	if tr.NumLeaves() != 2 {
		t.Fatalf("NumLeaves() = %d, want 2", tr.NumLeaves())
	}
	n2, _ := tr.Get(2)
	if string(n2.PublicKey) != "bob" {
		t.Fatalf("installed leaf contents wrong: %v", n2)
	}
}

func TestInstallLeafRejectsNonBlankExistingSlot(t *testing.T) {
	tr := New()
	tr.AddLeaf(leaf("alice"))
	tr.AddLeaf(leaf("bob"))

	if err := tr.InstallLeaf(1, leaf("mallory")); err == nil {
		t.Fatalf("InstallLeaf should reject overwriting a non-blank leaf")
	}
}

func TestInstallLeafRejectsOutOfRange(t *testing.T) {
	tr := New()
	tr.AddLeaf(leaf("alice"))
	if err := tr.InstallLeaf(5, leaf("x")); err == nil {
		t.Fatalf("InstallLeaf should reject a leaf index far beyond the tree")
	}
}

func TestGetOutOfRangeErrors(t *testing.T) {
	tr := New()
	tr.AddLeaf(leaf("alice"))
	if _, err := tr.Get(99); err == nil {
		t.Fatalf("Get(99) should have errored on an out-of-range index")
	}
}
