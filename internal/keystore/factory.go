package keystore

import (
	"fmt"

	"techpost/internal/config"
	"techpost/internal/encryption"
	"techpost/internal/engage"
)

// NewKeystoreFromConfig creates a CredentialStore based on the session config
// type. rows is only used for type=sqlite.
func NewKeystoreFromConfig(cfg config.SessionConfig, sealer encryption.Sealer, rows CredentialRows) (engage.CredentialStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryKeystore(sealer), nil
	case "filesystem", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("filesystem session store requires data_dir to be set")
		}
		return NewFileSystemKeystore(cfg.DataDir, sealer)
	case "sqlite":
		if rows == nil {
			return nil, fmt.Errorf("sqlite session store requires a database")
		}
		return NewSQLiteKeystore(rows, sealer), nil
	default:
		return nil, fmt.Errorf("unknown session store type: %s", cfg.Type)
	}
}
