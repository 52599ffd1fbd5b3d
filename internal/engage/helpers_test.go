package engage_test

import (
	"context"
	"testing"

	"techpost/internal/database"
	"techpost/internal/engage"
	"techpost/internal/keystore"
	"techpost/internal/testutil"
)

const (
	testName     = "Ada"
	testEmail    = "ada@example.com"
	testPassword = "hunter2"
)

type harness struct {
	api      *testutil.FakeAPI
	keys     *keystore.MemoryKeystore
	sessions *engage.SessionStore
	store    *engage.EngagementStore
	prompter *testutil.RecordingPrompter
	db       *database.SQLiteDatabase
	ctrl     *engage.Controller
	identity engage.Identity
}

// newHarness wires the core against FakeAPI with one user and post 1
// (3 likes, commentCount comments) mounted.
func newHarness(t *testing.T, commentCount int) *harness {
	t.Helper()

	h := &harness{
		api:      testutil.NewFakeAPI(),
		keys:     keystore.NewMemoryKeystore(nil),
		prompter: testutil.NewRecordingPrompter(),
		db:       testutil.NewTestDatabase(t),
	}
	h.identity = h.api.AddUser(testName, testEmail, testPassword)

	logger := engage.NewNopLogger()
	h.sessions = engage.NewSessionStore(h.api, h.keys, logger)
	h.store = engage.NewEngagementStore(h.api, engage.DefaultPreviewCount, logger, testutil.FixedClock(), testutil.NewLocalIDs())
	h.sessions.Subscribe(h.store.OnSessionChange)
	h.ctrl = engage.NewController(h.sessions, h.api, h.store, h.prompter, h.db, logger)

	post := testutil.NewPost(1, 3, commentCount)
	h.api.AddPost(post)
	h.store.Mount(post)
	return h
}

// login installs a session for the test user directly.
func (h *harness) login(t *testing.T) engage.Session {
	t.Helper()

	cred := h.api.IssueToken(testEmail)
	if err := h.sessions.Login(context.Background(), h.identity, cred); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	sess, _ := h.sessions.Current()
	return sess
}

func (h *harness) snapshot(t *testing.T) engage.PostSnapshot {
	t.Helper()

	snap, ok := h.store.Snapshot()
	if !ok {
		t.Fatal("Snapshot(): nothing mounted")
	}
	return snap
}
