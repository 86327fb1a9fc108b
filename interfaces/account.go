package interfaces

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Account is the result of one key generation. It identifies the generated
// key by address and carries only non-secret references to the key material:
// a keystore file location for software keys, an object reference for keys
// that never leave a hardware module.
type Account struct {
	// Address is the Ethereum address derived from the generated public key.
	Address common.Address `json:"address"`

	// KeyReference locates the key material, e.g. "keystore:///path/UTC--..."
	// or "pkcs11:slot-id=0;id=...;object=0x...".
	KeyReference string `json:"keyReference"`

	// Backend is the name of the generator backend that produced the account.
	Backend string `json:"backend"`

	CreatedAt time.Time `json:"createdAt"`

	// Metadata holds backend specific, non-secret details.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// KeyGenerator produces new accounts. Implementations must be safe for
// concurrent use.
type KeyGenerator interface {
	Generate() (*Account, error)
}

// GeneratorBackend is a concrete key source (keystore directory, PKCS#11
// token). Backends are not required to be safe for concurrent use: the
// generator.Factory owning a backend serializes every call into it.
type GeneratorBackend interface {
	// Name identifies the backend kind, e.g. "file-based".
	Name() string

	// Open acquires backend resources (directories, driver sessions).
	Open() error

	Generate() (*Account, error)

	// Close releases what Open acquired.
	Close() error
}

// AccountObserver is notified after every successful generation.
type AccountObserver interface {
	AccountGenerated(account *Account)
}
