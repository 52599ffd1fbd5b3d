package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"techpost/internal/config"
)

func newTestAgeSealer(t *testing.T) *AgeSealer {
	t.Helper()
	dir := t.TempDir()
	return NewAgeSealer(config.EncryptionConfig{
		Type:          "age",
		RecipientPath: filepath.Join(dir, "keys", "techpost.pub"),
		IdentityPath:  filepath.Join(dir, "keys", "techpost.key"),
	})
}

func TestAgeSealer_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)
	if s.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeSealer_Setup(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)

	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !s.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}

	info, err := os.Stat(s.identityPath)
	if err != nil {
		t.Fatalf("stat identity: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("identity mode = %o, want 0600", perm)
	}

	if err := s.Setup(); err == nil {
		t.Error("second Setup() succeeded, want error")
	}
}

func TestAgeSealer_SealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "token", input: []byte("eyJhbGciOiJIUzI1NiJ9.eyJ1c2VyX2lkIjoxfQ.sig")},
		{name: "empty", input: []byte{}},
		{name: "binary", input: []byte{0x00, 0xff, 0x01, 0xfe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestAgeSealer(t)

			sealed, err := s.Seal(tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(sealed, tt.input) {
				t.Error("sealed output contains the plaintext")
			}

			opened, err := s.Open(sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(opened, tt.input) {
				t.Errorf("Open() = %q, want %q", opened, tt.input)
			}
		})
	}
}

func TestAgeSealer_SealGeneratesKeys(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)

	if _, err := s.Seal([]byte("x")); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !s.IsConfigured() {
		t.Error("Seal() did not generate keys")
	}
}

func TestAgeSealer_OpenWithFreshInstance(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)

	sealed, err := s.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	// A new sealer over the same files reads the keys from disk.
	other := NewAgeSealer(config.EncryptionConfig{RecipientPath: s.recipientPath, IdentityPath: s.identityPath})
	opened, err := other.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(opened) != "secret" {
		t.Errorf("Open() = %q, want %q", opened, "secret")
	}
}

func TestAgeSealer_OpenWithWrongKey(t *testing.T) {
	t.Parallel()
	a := newTestAgeSealer(t)
	b := newTestAgeSealer(t)

	sealed, err := a.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if err := b.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Error("Open() with another identity succeeded, want error")
	}
}

func TestAgeSealer_OpenWithoutKeys(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)
	if _, err := s.Open([]byte("anything")); err == nil {
		t.Error("Open() without keys succeeded, want error")
	}
}
