package deliveryserver

import (
	"fmt"

	"github.com/FHMS-ITS/mls-explained/internal/blobstore"
	"github.com/FHMS-ITS/mls-explained/internal/wire"
)

// blobReferenceMarker distinguishes a raw MLSCiphertext frame from a blob
// reference frame on the wire. Only Broadcast's offload path writes it on
// purpose, but a packed MLSCiphertext begins with the little-endian length
// of its group id, so a client frame whose group id length has 0xFF as its
// low byte also begins with this value.
const blobReferenceMarker = 0xFF

func encodeBlobReference(ref blobstore.Reference) []byte {
	w := wire.NewWriter()
	w.PutByte(blobReferenceMarker)
	w.PutVector([]byte(ref.StorageKey))
	w.PutVector(ref.Key)
	w.PutVector(ref.Nonce)
	return w.Bytes()
}

// DecodeBlobReference reports whether payload is an offload reference
// rather than a direct frame, and decodes it if so. A delivery client
// uses this to tell an inline MLSCiphertext frame apart from a
// reference it must resolve through blobstore before handing the
// payload to session.ProcessMessage.
func DecodeBlobReference(payload []byte) (blobstore.Reference, bool, error) {
	if len(payload) == 0 || payload[0] != blobReferenceMarker {
		return blobstore.Reference{}, false, nil
	}

	r := wire.NewReader(payload[1:])
	storageKey, err := r.Vector()
	if err != nil {
		return blobstore.Reference{}, false, fmt.Errorf("deliveryserver: decode blob reference: storage key: %w", err)
	}
	key, err := r.Vector()
	if err != nil {
		return blobstore.Reference{}, false, fmt.Errorf("deliveryserver: decode blob reference: key: %w", err)
	}
	nonce, err := r.Vector()
	if err != nil {
		return blobstore.Reference{}, false, fmt.Errorf("deliveryserver: decode blob reference: nonce: %w", err)
	}

	return blobstore.Reference{StorageKey: string(storageKey), Key: key, Nonce: nonce}, true, nil
}
