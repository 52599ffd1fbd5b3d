package engage_test

import (
	"context"
	"errors"
	"testing"

	"techpost/internal/engage"
	"techpost/internal/keystore"
	"techpost/internal/testutil"
)

// brokenKeystore fails the configured operations.
type brokenKeystore struct {
	loadErr, saveErr error
	deleted          int
}

func (b *brokenKeystore) Load(context.Context) (engage.Credential, bool, error) {
	return "", false, b.loadErr
}
func (b *brokenKeystore) Save(context.Context, engage.Credential) error { return b.saveErr }
func (b *brokenKeystore) Delete(context.Context) error {
	b.deleted++
	return nil
}

func TestSessionStore_Login(t *testing.T) {
	ctx := context.Background()
	api := testutil.NewFakeAPI()
	identity := api.AddUser(testName, testEmail, testPassword)
	keys := keystore.NewMemoryKeystore(nil)
	s := engage.NewSessionStore(api, keys, engage.NewNopLogger())

	var events []bool
	s.Subscribe(func(_ engage.Session, ok bool) { events = append(events, ok) })

	if s.Authenticated() {
		t.Fatal("new SessionStore is authenticated")
	}

	cred := api.IssueToken(testEmail)
	if err := s.Login(ctx, identity, cred); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	sess, ok := s.Current()
	if !ok || sess.Identity != identity || sess.Credential != cred {
		t.Errorf("Current() = %+v, %v", sess, ok)
	}
	stored, ok, err := keys.Load(ctx)
	if err != nil || !ok || stored != cred {
		t.Errorf("persisted credential = %q, %v, %v; want %q", stored, ok, err, cred)
	}
	if len(events) != 1 || !events[0] {
		t.Errorf("events = %v, want [true]", events)
	}
}

func TestSessionStore_LoginEmptyCredential(t *testing.T) {
	s := engage.NewSessionStore(testutil.NewFakeAPI(), keystore.NewMemoryKeystore(nil), engage.NewNopLogger())

	err := s.Login(context.Background(), engage.Identity{ID: 1}, "")
	if !errors.Is(err, engage.ErrInvalidInput) {
		t.Fatalf("Login() error = %v, want ErrInvalidInput", err)
	}
	if s.Authenticated() {
		t.Error("session installed with empty credential")
	}
}

func TestSessionStore_LoginSaveFailure(t *testing.T) {
	keys := &brokenKeystore{saveErr: errors.New("disk full")}
	s := engage.NewSessionStore(testutil.NewFakeAPI(), keys, engage.NewNopLogger())

	err := s.Login(context.Background(), engage.Identity{ID: 1, Name: "Ada"}, "tok")
	if err == nil {
		t.Fatal("Login() error = nil, want persistence error")
	}
	// The session is usable for this process even though it was not saved.
	if !s.Authenticated() {
		t.Error("session not installed after save failure")
	}
}

func TestSessionStore_Logout(t *testing.T) {
	ctx := context.Background()
	keys := keystore.NewMemoryKeystore(nil)
	s := engage.NewSessionStore(testutil.NewFakeAPI(), keys, engage.NewNopLogger())

	if err := s.Login(ctx, engage.Identity{ID: 1}, "tok"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	var events []bool
	s.Subscribe(func(_ engage.Session, ok bool) { events = append(events, ok) })

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if s.Authenticated() {
		t.Error("still authenticated after Logout")
	}
	if _, ok, _ := keys.Load(ctx); ok {
		t.Error("credential still persisted after Logout")
	}
	if len(events) != 1 || events[0] {
		t.Errorf("events = %v, want [false]", events)
	}
}

func TestSessionStore_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	s := engage.NewSessionStore(testutil.NewFakeAPI(), keystore.NewMemoryKeystore(nil), engage.NewNopLogger())

	calls := 0
	unsubscribe := s.Subscribe(func(engage.Session, bool) { calls++ })
	unsubscribe()

	if err := s.Login(ctx, engage.Identity{ID: 1}, "tok"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("unsubscribed callback called %d times", calls)
	}
}

func TestSessionStore_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credential", func(t *testing.T) {
		api := testutil.NewFakeAPI()
		identity := api.AddUser(testName, testEmail, testPassword)
		keys := keystore.NewMemoryKeystore(nil)
		cred := api.IssueToken(testEmail)
		if err := keys.Save(ctx, cred); err != nil {
			t.Fatal(err)
		}

		s := engage.NewSessionStore(api, keys, engage.NewNopLogger())
		if !s.Restore(ctx) {
			t.Fatal("Restore() = false, want true")
		}
		sess, _ := s.Current()
		if sess.Identity != identity || sess.Credential != cred {
			t.Errorf("Current() = %+v", sess)
		}
	})

	t.Run("expired credential is purged", func(t *testing.T) {
		api := testutil.NewFakeAPI()
		api.AddUser(testName, testEmail, testPassword)
		keys := keystore.NewMemoryKeystore(nil)
		cred := api.IssueToken(testEmail)
		api.ExpireToken(cred)
		if err := keys.Save(ctx, cred); err != nil {
			t.Fatal(err)
		}

		s := engage.NewSessionStore(api, keys, engage.NewNopLogger())
		if s.Restore(ctx) {
			t.Fatal("Restore() = true, want false")
		}
		if s.Authenticated() {
			t.Error("authenticated after expired restore")
		}
		if _, ok, _ := keys.Load(ctx); ok {
			t.Error("expired credential not purged")
		}
	})

	t.Run("unreachable server keeps credential", func(t *testing.T) {
		api := testutil.NewFakeAPI()
		api.AddUser(testName, testEmail, testPassword)
		keys := keystore.NewMemoryKeystore(nil)
		cred := api.IssueToken(testEmail)
		if err := keys.Save(ctx, cred); err != nil {
			t.Fatal(err)
		}
		api.FailNext(testutil.OpWhoAmI, testutil.RemoteFailure(testutil.OpWhoAmI, 503))

		s := engage.NewSessionStore(api, keys, engage.NewNopLogger())
		if s.Restore(ctx) {
			t.Fatal("Restore() = true, want false")
		}
		if stored, ok, _ := keys.Load(ctx); !ok || stored != cred {
			t.Error("credential removed after a transient failure")
		}

		// The next start succeeds with the kept credential.
		if !s.Restore(ctx) {
			t.Error("second Restore() = false, want true")
		}
	})

	t.Run("nothing stored", func(t *testing.T) {
		api := testutil.NewFakeAPI()
		s := engage.NewSessionStore(api, keystore.NewMemoryKeystore(nil), engage.NewNopLogger())
		if s.Restore(ctx) {
			t.Fatal("Restore() = true, want false")
		}
		if n := api.Calls(testutil.OpWhoAmI); n != 0 {
			t.Errorf("WhoAmI called %d times, want 0", n)
		}
	})

	t.Run("unreadable store is purged", func(t *testing.T) {
		keys := &brokenKeystore{loadErr: errors.New("bad seal")}
		s := engage.NewSessionStore(testutil.NewFakeAPI(), keys, engage.NewNopLogger())
		if s.Restore(ctx) {
			t.Fatal("Restore() = true, want false")
		}
		if keys.deleted != 1 {
			t.Errorf("Delete called %d times, want 1", keys.deleted)
		}
	})
}
