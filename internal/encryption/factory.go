package encryption

import (
	"fmt"

	"techpost/internal/config"
)

// NewSealerFromConfig creates a Sealer based on the configuration type.
func NewSealerFromConfig(cfg config.EncryptionConfig) (Sealer, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.RecipientPath == "" || cfg.IdentityPath == "" {
			return nil, fmt.Errorf("age encryption requires recipient_path and identity_path to be set")
		}
		return NewAgeSealer(cfg), nil
	case "test":
		return NewTestSealer(), nil
	case "none":
		return PlainSealer{}, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
