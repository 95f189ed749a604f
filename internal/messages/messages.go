// Package messages defines the packed wire types exchanged between group
// members: group context, Welcome, Add, Update and its DirectPathNodes,
// HPKE ciphertexts, and the MLSPlaintext/MLSCiphertext framing layer.
//
// Every type here is a tagged struct with explicit Pack/Unpack methods
// built on internal/wire, so the round-trip invariant is a property of
// each concrete type rather than of a shared base class.
package messages

import (
	"fmt"

	"github.com/FHMS-ITS/mls-explained/internal/tree"
	"github.com/FHMS-ITS/mls-explained/internal/wire"
)

// ContentType tags the payload carried by an MLSPlaintext/MLSCiphertext.
type ContentType uint8

const (
	ContentInvalid     ContentType = 0
	ContentHandshake   ContentType = 1
	ContentApplication ContentType = 2
)

// GroupOperationType tags the handshake operation carried by an
// MLSPlaintextHandshake. Remove is defined for wire compatibility only;
// no Remove payload type or processing exists here.
type GroupOperationType uint8

const (
	OperationInit   GroupOperationType = 0
	OperationAdd    GroupOperationType = 1
	OperationUpdate GroupOperationType = 2
	OperationRemove GroupOperationType = 3
)

// CipherSuiteType is the wire tag for a cipher suite. This implementation
// only ever emits X25519SHA256AES128GCM, but unpacks and rejects the other
// value explicitly so a peer proposing an unsupported suite fails loudly.
type CipherSuiteType uint16

const (
	CipherSuiteP256SHA256AES128GCM   CipherSuiteType = 0
	CipherSuiteX25519SHA256AES128GCM CipherSuiteType = 1
)

// GroupContext is the per-epoch identity of the group: its id, epoch
// counter, tree hash, and confirmed transcript hash. Its serialized form
// is fed to HKDF as context throughout internal/ciphersuite and
// internal/keyschedule.
type GroupContext struct {
	GroupID                 []byte
	Epoch                   uint32
	TreeHash                []byte
	ConfirmedTranscriptHash []byte
}

// Equal compares all four fields, matching GroupContext.__eq__.
func (c *GroupContext) Equal(other *GroupContext) bool {
	if c == nil || other == nil {
		return c == other
	}
	return string(c.GroupID) == string(other.GroupID) &&
		c.Epoch == other.Epoch &&
		string(c.TreeHash) == string(other.TreeHash) &&
		string(c.ConfirmedTranscriptHash) == string(other.ConfirmedTranscriptHash)
}

// Bytes serializes the context for use as HKDF context, using a full
// little-endian uint32 for epoch rather than truncating it to a byte.
func (c *GroupContext) Bytes() []byte {
	w := wire.NewWriter()
	w.PutVector(c.GroupID)
	w.PutUint32(c.Epoch)
	w.PutVector(c.TreeHash)
	w.PutVector(c.ConfirmedTranscriptHash)
	return w.Bytes()
}

// packNode/unpackNode serialize a tree.Node as three vectors: public key,
// private key (empty if absent), credential (empty if absent), treating
// an empty vector as "field absent".
func packNode(w *wire.Writer, n *tree.Node) {
	if n == nil {
		w.PutVector(nil)
		w.PutVector(nil)
		w.PutVector(nil)
		return
	}
	w.PutVector(n.PublicKey)
	w.PutVector(n.PrivateKey)
	w.PutVector(n.Credential)
}

func unpackNode(r *wire.Reader) (*tree.Node, error) {
	pub, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: unpack node public key: %w", err)
	}
	priv, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: unpack node private key: %w", err)
	}
	cred, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: unpack node credential: %w", err)
	}
	if len(pub) == 0 {
		return nil, nil
	}
	n := &tree.Node{PublicKey: pub}
	if len(priv) > 0 {
		n.PrivateKey = priv
	}
	if len(cred) > 0 {
		n.Credential = cred
	}
	return n, nil
}

// WelcomeInfo lets a joining member reconstruct the current tree and group
// context before processing the Add that incorporates them. Its Nodes
// field must not carry private keys — State.Add enforces this by calling
// tree.Tree.StrippedNodes before building one, not by any check here.
type WelcomeInfo struct {
	GroupID               []byte
	Epoch                 uint32
	Nodes                 []*tree.Node
	InterimTranscriptHash []byte
	InitSecret            []byte
}

// Pack serializes a WelcomeInfo.
func (w *WelcomeInfo) Pack() []byte {
	out := wire.NewWriter()
	out.PutVector(w.GroupID)
	out.PutUint32(w.Epoch)
	out.PutUint32(uint32(len(w.Nodes)))
	for _, n := range w.Nodes {
		packNode(out, n)
	}
	out.PutVector(w.InterimTranscriptHash)
	out.PutVector(w.InitSecret)
	return out.Bytes()
}

// UnpackWelcomeInfo decodes a WelcomeInfo, validating that every declared
// node is either blank or present.
func UnpackWelcomeInfo(data []byte) (*WelcomeInfo, error) {
	r := wire.NewReader(data)

	groupID, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: welcome info group_id: %w", err)
	}
	epoch, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: welcome info epoch: %w", err)
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: welcome info node count: %w", err)
	}

	nodes := make([]*tree.Node, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := unpackNode(r)
		if err != nil {
			return nil, fmt.Errorf("messages: welcome info node %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}

	interimHash, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: welcome info interim transcript hash: %w", err)
	}
	initSecret, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: welcome info init secret: %w", err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("messages: welcome info: trailing bytes after decode")
	}

	return &WelcomeInfo{
		GroupID:               groupID,
		Epoch:                 epoch,
		Nodes:                 nodes,
		InterimTranscriptHash: interimHash,
		InitSecret:            initSecret,
	}, nil
}

// Add proposes a new member joining at Index, carrying their init key.
type Add struct {
	Index           uint32
	InitKey         []byte
	Credential      []byte
	WelcomeInfoHash []byte
}

// Pack serializes an Add. It fails validation before serializing if
// InitKey is empty — an Add naming no init key is malformed by
// construction.
func (a *Add) Pack() ([]byte, error) {
	if len(a.InitKey) == 0 {
		return nil, fmt.Errorf("messages: invalid message: Add.InitKey is empty")
	}
	w := wire.NewWriter()
	w.PutUint32(a.Index)
	w.PutVector(a.InitKey)
	w.PutVector(a.Credential)
	w.PutVector(a.WelcomeInfoHash)
	return w.Bytes(), nil
}

// UnpackAdd decodes an Add and validates it.
func UnpackAdd(data []byte) (*Add, error) {
	r := wire.NewReader(data)
	index, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: add index: %w", err)
	}
	initKey, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: add init key: %w", err)
	}
	credential, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: add credential: %w", err)
	}
	welcomeHash, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: add welcome info hash: %w", err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("messages: add: trailing bytes after decode")
	}
	if len(initKey) == 0 {
		return nil, fmt.Errorf("messages: invalid message: Add.InitKey is empty")
	}
	return &Add{Index: index, InitKey: initKey, Credential: credential, WelcomeInfoHash: welcomeHash}, nil
}

// HPKECiphertext is one path secret encrypted to one resolution member's
// public key: the HPKE encapsulated key and the AEAD ciphertext.
type HPKECiphertext struct {
	EncapsulatedKey []byte
	CipherText      []byte
}

func packCiphertext(c HPKECiphertext) []byte {
	w := wire.NewWriter()
	w.PutVector(c.EncapsulatedKey)
	w.PutVector(c.CipherText)
	return w.Bytes()
}

func unpackCiphertext(data []byte) (HPKECiphertext, error) {
	r := wire.NewReader(data)
	enc, err := r.Vector()
	if err != nil {
		return HPKECiphertext{}, fmt.Errorf("messages: ciphertext encapsulated key: %w", err)
	}
	ct, err := r.Vector()
	if err != nil {
		return HPKECiphertext{}, fmt.Errorf("messages: ciphertext payload: %w", err)
	}
	if !r.Done() {
		return HPKECiphertext{}, fmt.Errorf("messages: ciphertext: trailing bytes after decode")
	}
	return HPKECiphertext{EncapsulatedKey: enc, CipherText: ct}, nil
}

// DirectPathNode is one element of an Update's direct path: a node's new
// public key plus one HPKECiphertext per member of the corresponding
// copath node's resolution. The leading entry (the sender's own leaf)
// always carries zero ciphertexts.
type DirectPathNode struct {
	PublicKey            []byte
	EncryptedPathSecrets []HPKECiphertext
}

func (n DirectPathNode) pack(w *wire.Writer) {
	w.PutVector(n.PublicKey)
	cts := make([][]byte, len(n.EncryptedPathSecrets))
	for i, c := range n.EncryptedPathSecrets {
		cts[i] = packCiphertext(c)
	}
	w.PutVectorList(cts)
}

func unpackDirectPathNode(r *wire.Reader) (DirectPathNode, error) {
	pub, err := r.Vector()
	if err != nil {
		return DirectPathNode{}, fmt.Errorf("messages: direct path node public key: %w", err)
	}
	ctBytes, err := r.VectorList()
	if err != nil {
		return DirectPathNode{}, fmt.Errorf("messages: direct path node ciphertexts: %w", err)
	}
	cts := make([]HPKECiphertext, 0, len(ctBytes))
	for i, b := range ctBytes {
		c, err := unpackCiphertext(b)
		if err != nil {
			return DirectPathNode{}, fmt.Errorf("messages: direct path node ciphertext %d: %w", i, err)
		}
		cts = append(cts, c)
	}
	return DirectPathNode{PublicKey: pub, EncryptedPathSecrets: cts}, nil
}

// Update carries a full direct path of fresh public keys and encrypted
// path secrets.
type Update struct {
	DirectPath []DirectPathNode
}

// Pack serializes an Update. Validation that DirectPath[0] carries no
// ciphertexts and that its length matches the sender's position in the
// tree is the state machine's job (it depends on tree shape, which this
// package does not know about), not this method's.
func (u *Update) Pack() []byte {
	w := wire.NewWriter()
	w.PutUint32(uint32(len(u.DirectPath)))
	for _, n := range u.DirectPath {
		n.pack(w)
	}
	return w.Bytes()
}

// UnpackUpdate decodes an Update.
func UnpackUpdate(data []byte) (*Update, error) {
	r := wire.NewReader(data)
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: update direct path count: %w", err)
	}
	path := make([]DirectPathNode, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := unpackDirectPathNode(r)
		if err != nil {
			return nil, fmt.Errorf("messages: update direct path node %d: %w", i, err)
		}
		path = append(path, n)
	}
	if !r.Done() {
		return nil, fmt.Errorf("messages: update: trailing bytes after decode")
	}
	return &Update{DirectPath: path}, nil
}

// GroupOperation is the tagged union of handshake operations: exactly one
// of Add or Update is set, matching the operation's Type.
type GroupOperation struct {
	Type   GroupOperationType
	Add    *Add
	Update *Update
}

// Pack serializes a GroupOperation as a type tag followed by the packed
// payload (empty for Init/Remove, which carry no payload in this
// implementation).
func (g *GroupOperation) Pack() ([]byte, error) {
	w := wire.NewWriter()
	w.PutByte(byte(g.Type))

	switch g.Type {
	case OperationAdd:
		if g.Add == nil {
			return nil, fmt.Errorf("messages: invalid message: GroupOperation type Add with no Add payload")
		}
		payload, err := g.Add.Pack()
		if err != nil {
			return nil, fmt.Errorf("messages: pack group operation: %w", err)
		}
		w.PutVector(payload)
	case OperationUpdate:
		if g.Update == nil {
			return nil, fmt.Errorf("messages: invalid message: GroupOperation type Update with no Update payload")
		}
		w.PutVector(g.Update.Pack())
	case OperationInit, OperationRemove:
		w.PutVector(nil)
	default:
		return nil, fmt.Errorf("messages: invalid message: unknown GroupOperationType %d", g.Type)
	}

	return w.Bytes(), nil
}

// UnpackGroupOperation decodes a GroupOperation.
func UnpackGroupOperation(data []byte) (*GroupOperation, error) {
	r := wire.NewReader(data)
	tagByte, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("messages: group operation type: %w", err)
	}
	payload, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: group operation payload: %w", err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("messages: group operation: trailing bytes after decode")
	}

	g := &GroupOperation{Type: GroupOperationType(tagByte)}
	switch g.Type {
	case OperationAdd:
		add, err := UnpackAdd(payload)
		if err != nil {
			return nil, fmt.Errorf("messages: group operation add payload: %w", err)
		}
		g.Add = add
	case OperationUpdate:
		update, err := UnpackUpdate(payload)
		if err != nil {
			return nil, fmt.Errorf("messages: group operation update payload: %w", err)
		}
		g.Update = update
	case OperationInit, OperationRemove:
		// no payload
	default:
		return nil, fmt.Errorf("messages: invalid message: unknown GroupOperationType %d", g.Type)
	}
	return g, nil
}

// MLSPlaintextHandshake is the handshake-content variant of MLSPlaintext:
// a group operation plus a confirmation value over the epoch's
// confirmation_key and confirmed transcript hash. The confirmation bytes
// are produced/verified by internal/confirmation's pluggable
// Signer/Verifier — this struct only carries the opaque bytes.
type MLSPlaintextHandshake struct {
	Confirmation []byte
	Operation    GroupOperation
}

// Pack serializes an MLSPlaintextHandshake.
func (h *MLSPlaintextHandshake) Pack() ([]byte, error) {
	opBytes, err := h.Operation.Pack()
	if err != nil {
		return nil, fmt.Errorf("messages: pack handshake: %w", err)
	}
	w := wire.NewWriter()
	w.PutVector(h.Confirmation)
	w.PutVector(opBytes)
	return w.Bytes(), nil
}

// UnpackMLSPlaintextHandshake decodes an MLSPlaintextHandshake.
func UnpackMLSPlaintextHandshake(data []byte) (*MLSPlaintextHandshake, error) {
	r := wire.NewReader(data)
	confirmation, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: handshake confirmation: %w", err)
	}
	opBytes, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: handshake operation: %w", err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("messages: handshake: trailing bytes after decode")
	}
	op, err := UnpackGroupOperation(opBytes)
	if err != nil {
		return nil, fmt.Errorf("messages: handshake operation payload: %w", err)
	}
	return &MLSPlaintextHandshake{Confirmation: confirmation, Operation: *op}, nil
}

// MLSPlaintext is the signed, framed payload carried inside an
// MLSCiphertext: either handshake content or raw application bytes,
// tagged by ContentType.
type MLSPlaintext struct {
	GroupID     []byte
	Epoch       uint32
	Sender      uint32
	ContentType ContentType
	Content     []byte // packed MLSPlaintextHandshake, or raw application bytes
	Signature   []byte
}

// Pack serializes an MLSPlaintext.
func (p *MLSPlaintext) Pack() []byte {
	w := wire.NewWriter()
	w.PutVector(p.GroupID)
	w.PutUint32(p.Epoch)
	w.PutUint32(p.Sender)
	w.PutByte(byte(p.ContentType))
	w.PutVector(p.Content)
	w.PutVector(p.Signature)
	return w.Bytes()
}

// UnpackMLSPlaintext decodes an MLSPlaintext.
func UnpackMLSPlaintext(data []byte) (*MLSPlaintext, error) {
	r := wire.NewReader(data)
	groupID, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: plaintext group_id: %w", err)
	}
	epoch, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: plaintext epoch: %w", err)
	}
	sender, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: plaintext sender: %w", err)
	}
	contentTypeByte, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("messages: plaintext content type: %w", err)
	}
	content, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: plaintext content: %w", err)
	}
	signature, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: plaintext signature: %w", err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("messages: plaintext: trailing bytes after decode")
	}

	ct := ContentType(contentTypeByte)
	if ct != ContentHandshake && ct != ContentApplication {
		return nil, fmt.Errorf("messages: invalid message: unknown ContentType %d", contentTypeByte)
	}

	return &MLSPlaintext{
		GroupID:     groupID,
		Epoch:       epoch,
		Sender:      sender,
		ContentType: ct,
		Content:     content,
		Signature:   signature,
	}, nil
}

// MLSSenderData identifies which member and generation produced an
// MLSCiphertext's content.
type MLSSenderData struct {
	Sender     uint32
	Generation uint32
}

// Pack serializes an MLSSenderData.
func (s *MLSSenderData) Pack() []byte {
	w := wire.NewWriter()
	w.PutUint32(s.Sender)
	w.PutUint32(s.Generation)
	return w.Bytes()
}

// UnpackMLSSenderData decodes an MLSSenderData.
func UnpackMLSSenderData(data []byte) (*MLSSenderData, error) {
	r := wire.NewReader(data)
	sender, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: sender data sender: %w", err)
	}
	generation, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: sender data generation: %w", err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("messages: sender data: trailing bytes after decode")
	}
	return &MLSSenderData{Sender: sender, Generation: generation}, nil
}

// MLSCiphertext is the outer envelope exchanged between members: the
// group/epoch/content-type metadata in the clear, the sender data
// (Session puts the packed MLSSenderData here, in the clear, for
// application messages and leaves it empty for handshakes), and the
// content itself.
//
// The content field carries the packed MLSPlaintext verbatim, consistent
// on both the encrypt and decrypt sides. Real AEAD protection of this
// field is left for a later iteration; the structure is kept so adding
// it is local to Pack/Unpack.
type MLSCiphertext struct {
	GroupID             []byte
	Epoch               uint32
	ContentType         ContentType
	SenderDataNonce     []byte
	EncryptedSenderData []byte
	CipherText          []byte
}

// Pack serializes an MLSCiphertext.
func (c *MLSCiphertext) Pack() []byte {
	w := wire.NewWriter()
	w.PutVector(c.GroupID)
	w.PutUint32(c.Epoch)
	w.PutByte(byte(c.ContentType))
	w.PutVector(c.SenderDataNonce)
	w.PutVector(c.EncryptedSenderData)
	w.PutVector(c.CipherText)
	return w.Bytes()
}

// UnpackMLSCiphertext decodes an MLSCiphertext.
func UnpackMLSCiphertext(data []byte) (*MLSCiphertext, error) {
	r := wire.NewReader(data)
	groupID, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: ciphertext group_id: %w", err)
	}
	epoch, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("messages: ciphertext epoch: %w", err)
	}
	contentTypeByte, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("messages: ciphertext content type: %w", err)
	}
	nonce, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: ciphertext sender data nonce: %w", err)
	}
	encSenderData, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: ciphertext encrypted sender data: %w", err)
	}
	body, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: ciphertext body: %w", err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("messages: ciphertext: trailing bytes after decode")
	}

	return &MLSCiphertext{
		GroupID:             groupID,
		Epoch:               epoch,
		ContentType:         ContentType(contentTypeByte),
		SenderDataNonce:     nonce,
		EncryptedSenderData: encSenderData,
		CipherText:          body,
	}, nil
}

// GroupIDFromCiphertext extracts just the group id from a packed
// MLSCiphertext without fully decoding it, so a delivery layer can route
// a ciphertext to the right Session without unpacking it twice.
func GroupIDFromCiphertext(data []byte) ([]byte, error) {
	r := wire.NewReader(data)
	groupID, err := r.Vector()
	if err != nil {
		return nil, fmt.Errorf("messages: group id from ciphertext: %w", err)
	}
	return groupID, nil
}
