package wire

import "testing"

func TestVectorRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutByte(0x07).PutUint32(424242).PutVector([]byte("hello"))

	r := NewReader(w.Bytes())

	b, err := r.Byte()
	if err != nil || b != 0x07 {
		t.Fatalf("Byte() = %v, %v, want 0x07, nil", b, err)
	}

	n, err := r.Uint32()
	if err != nil || n != 424242 {
		t.Fatalf("Uint32() = %v, %v, want 424242, nil", n, err)
	}

	v, err := r.Vector()
	if err != nil {
		t.Fatalf("Vector(): %v", err)
	}
	if string(v) != "hello" {
		t.Fatalf("Vector() = %q, want %q", v, "hello")
	}

	if !r.Done() {
		t.Fatalf("Done() = false, want true after consuming all fields")
	}
}

func TestEmptyVectorRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutVector(nil)

	r := NewReader(w.Bytes())
	v, err := r.Vector()
	if err != nil {
		t.Fatalf("Vector(): %v", err)
	}
	if v == nil {
		t.Fatalf("Vector() = nil, want non-nil empty slice")
	}
	if len(v) != 0 {
		t.Fatalf("Vector() = %v, want empty", v)
	}
}

func TestVectorListRoundTripIncludingEmptyEntry(t *testing.T) {
	w := NewWriter()
	w.PutVectorList([][]byte{[]byte("a"), []byte("bb"), {}})

	r := NewReader(w.Bytes())
	got, err := r.VectorList()
	if err != nil {
		t.Fatalf("VectorList(): %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("VectorList() returned %d entries, want 3", len(got))
	}
	if string(got[0]) != "a" || string(got[1]) != "bb" || len(got[2]) != 0 {
		t.Fatalf("VectorList() = %v, unexpected contents", got)
	}
}

func TestEmptyVectorListRoundTrip(t *testing.T) {
	// Regression for the empty-ciphertext-list case required by the first
	// entry of an Update direct path.
	w := NewWriter()
	w.PutVectorList(nil)

	r := NewReader(w.Bytes())
	got, err := r.VectorList()
	if err != nil {
		t.Fatalf("VectorList(): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("VectorList() = %v, want empty", got)
	}
}

func TestShortBufferErrors(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	if _, err := r.Uint32(); err == nil {
		t.Fatalf("Uint32() on a 2-byte buffer should have errored")
	}
}

func TestVectorLengthExceedsBufferErrors(t *testing.T) {
	w := NewWriter()
	w.PutUint32(100) // claims 100 bytes follow, but none do
	r := NewReader(w.Bytes())
	if _, err := r.Vector(); err == nil {
		t.Fatalf("Vector() with an over-long length prefix should have errored")
	}
}
