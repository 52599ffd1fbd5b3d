package keystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"techpost/internal/encryption"
	"techpost/internal/engage"
)

// FileSystemKeystore stores the sealed credential in <dir>/token, readable
// only by the owner.
type FileSystemKeystore struct {
	dir    string
	path   string
	sealer encryption.Sealer
}

// NewFileSystemKeystore creates the directory if needed.
func NewFileSystemKeystore(dir string, sealer encryption.Sealer) (*FileSystemKeystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileSystemKeystore{
		dir:    dir,
		path:   filepath.Join(dir, Key),
		sealer: sealer,
	}, nil
}

// Path returns the file the credential is stored in.
func (k *FileSystemKeystore) Path() string {
	return k.path
}

func (k *FileSystemKeystore) Load(_ context.Context) (engage.Credential, bool, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading credential file: %w", err)
	}
	cred, err := open(k.sealer, data)
	if err != nil {
		return "", false, err
	}
	return cred, true, nil
}

// Save replaces the credential file atomically (temp file + rename).
func (k *FileSystemKeystore) Save(_ context.Context, cred engage.Credential) error {
	sealed, err := seal(k.sealer, cred)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(k.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	// CreateTemp already uses 0600.
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, k.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func (k *FileSystemKeystore) Delete(_ context.Context) error {
	if err := os.Remove(k.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	return nil
}

var _ engage.CredentialStore = (*FileSystemKeystore)(nil)
