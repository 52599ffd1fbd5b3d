package keystore

import (
	"context"
	"sync"

	"techpost/internal/encryption"
	"techpost/internal/engage"
)

// MemoryKeystore keeps the credential in memory for the life of the process.
// This implementation is safe for concurrent use.
type MemoryKeystore struct {
	sealer encryption.Sealer

	mu     sync.Mutex
	sealed []byte
}

// NewMemoryKeystore creates an empty keystore. A nil sealer stores values unchanged.
func NewMemoryKeystore(sealer encryption.Sealer) *MemoryKeystore {
	if sealer == nil {
		sealer = encryption.PlainSealer{}
	}
	return &MemoryKeystore{sealer: sealer}
}

func (m *MemoryKeystore) Load(_ context.Context) (engage.Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sealed == nil {
		return "", false, nil
	}
	cred, err := open(m.sealer, m.sealed)
	if err != nil {
		return "", false, err
	}
	return cred, true, nil
}

func (m *MemoryKeystore) Save(_ context.Context, cred engage.Credential) error {
	sealed, err := seal(m.sealer, cred)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = sealed
	return nil
}

func (m *MemoryKeystore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = nil
	return nil
}

var _ engage.CredentialStore = (*MemoryKeystore)(nil)
