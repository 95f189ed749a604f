// Package keystore implements a Keystore capability: registering a key
// pair, fetching a user's init key, and looking up the private half of a
// known public key.
//
// Keystore is an explicit interface passed into every Session/State
// constructor rather than a process-wide singleton, so Memory is just one
// implementation among others (see Postgres, in postgres.go) behind it.
package keystore

import "errors"

// ErrNoKeysAvailable is returned by FetchInitKey when a user has no
// registered init key, a distinct error kind an Add caller must be able
// to tell apart from other failures.
var ErrNoKeysAvailable = errors.New("keystore: no keys available")

// Keystore is the capability the core consumes. Concrete implementations
// may back it with local memory (Memory) or a remote directory (Postgres,
// HTTP); the core never depends on which.
type Keystore interface {
	// RegisterKeypair records a key pair this process holds the private
	// half of, so a later GetPrivateKey(public) call can find it.
	RegisterKeypair(public, private []byte) error
	// FetchInitKey returns the init key most recently registered for
	// userName, or ErrNoKeysAvailable if none exists.
	FetchInitKey(userName string) ([]byte, error)
	// GetPrivateKey returns the private half of public if this process
	// holds it, or nil with no error if it does not.
	GetPrivateKey(public []byte) ([]byte, error)
}

// Memory is an in-process Keystore backed by plain maps: a private-key
// map plus a per-user init-key map.
type Memory struct {
	privateKeys map[string][]byte
	initKeys    map[string][]byte
}

// NewMemory returns an empty in-memory keystore.
func NewMemory() *Memory {
	return &Memory{
		privateKeys: make(map[string][]byte),
		initKeys:    make(map[string][]byte),
	}
}

// RegisterKeypair implements Keystore.
func (m *Memory) RegisterKeypair(public, private []byte) error {
	m.privateKeys[string(public)] = private
	return nil
}

// RegisterInitKey associates a user name with an init key it publishes for
// others to Add it with. This has no Python analog (remote_key_store_mock
// bundles user identity into the same dict as private keys); it is split
// out here so Memory can satisfy Keystore without a directory server.
func (m *Memory) RegisterInitKey(userName string, initKey []byte) {
	m.initKeys[userName] = initKey
}

// FetchInitKey implements Keystore.
func (m *Memory) FetchInitKey(userName string) ([]byte, error) {
	key, ok := m.initKeys[userName]
	if !ok {
		return nil, ErrNoKeysAvailable
	}
	return key, nil
}

// GetPrivateKey implements Keystore.
func (m *Memory) GetPrivateKey(public []byte) ([]byte, error) {
	priv, ok := m.privateKeys[string(public)]
	if !ok {
		return nil, nil
	}
	return priv, nil
}
