package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"

	"techpost/internal/config"
)

// AgeSealer seals data with filippo.io/age using an X25519 key pair kept on
// disk. The identity file is readable only by the owner. Keys are generated
// the first time something is sealed.
type AgeSealer struct {
	recipientPath string
	identityPath  string

	mu        sync.Mutex
	recipient age.Recipient
	identity  age.Identity
}

var _ Sealer = (*AgeSealer)(nil)

// NewAgeSealer creates an AgeSealer from configuration. No files are touched.
func NewAgeSealer(cfg config.EncryptionConfig) *AgeSealer {
	return &AgeSealer{
		recipientPath: cfg.RecipientPath,
		identityPath:  cfg.IdentityPath,
	}
}

// IsConfigured returns true if both key files exist.
func (s *AgeSealer) IsConfigured() bool {
	if _, err := os.Stat(s.recipientPath); err != nil {
		return false
	}
	if _, err := os.Stat(s.identityPath); err != nil {
		return false
	}
	return true
}

// Setup generates a new X25519 identity and writes the identity and recipient
// files. It refuses to replace existing keys, since anything sealed with them
// would become unreadable.
func (s *AgeSealer) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setupLocked()
}

func (s *AgeSealer) setupLocked() error {
	if s.IsConfigured() {
		return fmt.Errorf("age keys already exist at %s", s.identityPath)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	for _, p := range []string{s.identityPath, s.recipientPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}
	if err := os.WriteFile(s.identityPath, []byte(identity.String()+"\n"), 0600); err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	if err := os.WriteFile(s.recipientPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing recipient: %w", err)
	}

	s.identity = identity
	s.recipient = identity.Recipient()
	return nil
}

// Seal encrypts plaintext to the stored recipient, generating keys if none
// exist yet.
func (s *AgeSealer) Seal(plaintext []byte) ([]byte, error) {
	recipient, err := s.loadRecipient()
	if err != nil {
		return nil, fmt.Errorf("loading recipient: %w", err)
	}

	var out bytes.Buffer
	w, err := age.Encrypt(&out, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return out.Bytes(), nil
}

// Open decrypts data produced by Seal with the stored identity.
func (s *AgeSealer) Open(ciphertext []byte) ([]byte, error) {
	identity, err := s.loadIdentity()
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}

func (s *AgeSealer) loadRecipient() (age.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recipient != nil {
		return s.recipient, nil
	}
	data, err := os.ReadFile(s.recipientPath)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.setupLocked(); err != nil {
			return nil, err
		}
		return s.recipient, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading recipient file: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing recipient: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in %s", s.recipientPath)
	}
	s.recipient = recipients[0]
	return s.recipient, nil
}

func (s *AgeSealer) loadIdentity() (age.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != nil {
		return s.identity, nil
	}
	data, err := os.ReadFile(s.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", s.identityPath)
	}
	s.identity = identities[0]
	return s.identity, nil
}
