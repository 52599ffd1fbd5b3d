package keystore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"techpost/internal/config"
	"techpost/internal/encryption"
	"techpost/internal/engage"
	"techpost/internal/testutil"
)

func backends(t *testing.T) map[string]engage.CredentialStore {
	t.Helper()

	fs, err := NewFileSystemKeystore(filepath.Join(t.TempDir(), "session"), encryption.NewTestSealer())
	if err != nil {
		t.Fatalf("NewFileSystemKeystore() error = %v", err)
	}
	return map[string]engage.CredentialStore{
		"memory":     NewMemoryKeystore(encryption.NewTestSealer()),
		"filesystem": fs,
		"sqlite":     NewSQLiteKeystore(testutil.NewTestDatabase(t), encryption.NewTestSealer()),
	}
}

func TestKeystore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.Load(ctx); err != nil || ok {
				t.Fatalf("Load() on empty store = ok %v, err %v", ok, err)
			}

			if err := store.Save(ctx, "tok-1"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			cred, ok, err := store.Load(ctx)
			if err != nil || !ok || cred != "tok-1" {
				t.Fatalf("Load() = %q, %v, %v; want tok-1", cred, ok, err)
			}

			if err := store.Save(ctx, "tok-2"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if cred, _, _ := store.Load(ctx); cred != "tok-2" {
				t.Errorf("Load() after overwrite = %q, want tok-2", cred)
			}

			if err := store.Delete(ctx); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, ok, _ := store.Load(ctx); ok {
				t.Error("Load() after Delete reports a credential")
			}
			if err := store.Delete(ctx); err != nil {
				t.Errorf("Delete() of missing credential error = %v", err)
			}
		})
	}
}

func TestFileSystemKeystore_SealedAtRest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sealer := encryption.NewAgeSealer(config.EncryptionConfig{
		RecipientPath: filepath.Join(dir, "keys", "techpost.pub"),
		IdentityPath:  filepath.Join(dir, "keys", "techpost.key"),
	})

	store, err := NewFileSystemKeystore(filepath.Join(dir, "session"), sealer)
	if err != nil {
		t.Fatalf("NewFileSystemKeystore() error = %v", err)
	}
	if err := store.Save(ctx, "secret-token"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("reading credential file: %v", err)
	}
	if bytes.Contains(raw, []byte("secret-token")) {
		t.Error("credential file contains the plaintext token")
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat credential file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credential file mode = %o, want 0600", perm)
	}

	// Survives a restart with fresh instances over the same files.
	reopened, err := NewFileSystemKeystore(filepath.Join(dir, "session"), encryption.NewAgeSealer(config.EncryptionConfig{
		RecipientPath: filepath.Join(dir, "keys", "techpost.pub"),
		IdentityPath:  filepath.Join(dir, "keys", "techpost.key"),
	}))
	if err != nil {
		t.Fatalf("NewFileSystemKeystore() error = %v", err)
	}
	cred, ok, err := reopened.Load(ctx)
	if err != nil || !ok || cred != "secret-token" {
		t.Errorf("Load() after restart = %q, %v, %v", cred, ok, err)
	}
}

func TestFileSystemKeystore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemKeystore(t.TempDir(), encryption.NewTestSealer())
	if err != nil {
		t.Fatalf("NewFileSystemKeystore() error = %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("not sealed"), 0600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, _, err := store.Load(ctx); err == nil {
		t.Error("Load() of an unsealed file succeeded, want error")
	}
}

func TestNewKeystoreFromConfig(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	sealer := encryption.NewTestSealer()

	tests := []struct {
		name    string
		cfg     config.SessionConfig
		rows    CredentialRows
		wantErr bool
	}{
		{name: "memory", cfg: config.SessionConfig{Type: "memory"}},
		{name: "filesystem", cfg: config.SessionConfig{Type: "filesystem", DataDir: t.TempDir()}},
		{name: "filesystem without data_dir", cfg: config.SessionConfig{Type: "filesystem"}, wantErr: true},
		{name: "sqlite", cfg: config.SessionConfig{Type: "sqlite"}, rows: db},
		{name: "sqlite without database", cfg: config.SessionConfig{Type: "sqlite"}, wantErr: true},
		{name: "unknown", cfg: config.SessionConfig{Type: "cookie"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewKeystoreFromConfig(tt.cfg, sealer, tt.rows)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewKeystoreFromConfig() error = %v", err)
			}
			if got == nil {
				t.Fatal("NewKeystoreFromConfig() returned nil")
			}
		})
	}
}
