// Package keystore persists the single session credential, sealed, under the
// fixed key "token".
package keystore

import (
	"fmt"

	"techpost/internal/encryption"
	"techpost/internal/engage"
)

// Key is the name the credential is stored under in every backend.
const Key = "token"

func seal(sealer encryption.Sealer, cred engage.Credential) ([]byte, error) {
	sealed, err := sealer.Seal([]byte(cred))
	if err != nil {
		return nil, fmt.Errorf("sealing credential: %w", err)
	}
	return sealed, nil
}

func open(sealer encryption.Sealer, sealed []byte) (engage.Credential, error) {
	plain, err := sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("opening credential: %w", err)
	}
	return engage.Credential(plain), nil
}
