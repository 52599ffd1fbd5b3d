package engage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// SessionStore holds the current Identity and Credential for the process and
// is the only component that reads or writes the persisted credential.
// Subscribers are notified synchronously on every transition.
// This implementation is safe for concurrent use.
type SessionStore struct {
	gateway AuthGateway
	keys    CredentialStore
	logger  Logger

	mu      sync.Mutex
	current *Session
	subs    map[int]func(Session, bool)
	nextSub int
}

// NewSessionStore creates an anonymous SessionStore. Call Restore to pick up a
// credential persisted by an earlier run.
func NewSessionStore(gateway AuthGateway, keys CredentialStore, logger Logger) *SessionStore {
	return &SessionStore{
		gateway: gateway,
		keys:    keys,
		logger:  logger,
		subs:    make(map[int]func(Session, bool)),
	}
}

// Restore checks for a persisted credential and, if the server still accepts
// it, installs the Identity behind it. It reports whether a session is now
// installed. Restore never fails: every problem downgrades to anonymous.
//
// A credential the server rejects is purged. A credential that could not be
// checked because the server was unreachable is kept for the next start.
func (s *SessionStore) Restore(ctx context.Context) bool {
	cred, ok, err := s.keys.Load(ctx)
	if err != nil {
		s.logger.Warn("stored credential unreadable, discarding", "error", err)
		s.purge(ctx)
		return false
	}
	if !ok || cred == "" {
		return false
	}

	identity, err := s.gateway.WhoAmI(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			s.logger.Info("stored credential rejected, continuing anonymously")
			s.purge(ctx)
		} else {
			s.logger.Warn("could not verify stored credential, continuing anonymously", "error", err)
		}
		return false
	}

	s.install(&Session{Identity: identity, Credential: cred})
	s.logger.Info("session restored", "user_id", identity.ID)
	return true
}

// Login installs identity and cred, persists cred and notifies subscribers.
// The session is installed even if persisting fails; the returned error then
// only means the session will not survive a restart.
func (s *SessionStore) Login(ctx context.Context, identity Identity, cred Credential) error {
	if cred == "" {
		return fmt.Errorf("%w: empty credential", ErrInvalidInput)
	}

	s.install(&Session{Identity: identity, Credential: cred})
	s.logger.Info("logged in", "user_id", identity.ID)

	if err := s.keys.Save(ctx, cred); err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}
	return nil
}

// Logout clears the session, removes the persisted credential and notifies
// subscribers.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.install(nil)
	s.logger.Info("logged out")

	if err := s.keys.Delete(ctx); err != nil {
		return fmt.Errorf("removing credential: %w", err)
	}
	return nil
}

// Current returns the installed session, or ok=false when anonymous.
func (s *SessionStore) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Authenticated reports whether a session is installed.
func (s *SessionStore) Authenticated() bool {
	_, ok := s.Current()
	return ok
}

// Subscribe registers fn to be called after every login or logout with the
// new state. The returned function removes the subscription.
func (s *SessionStore) Subscribe(fn func(sess Session, ok bool)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// install swaps the current session and notifies subscribers outside the lock.
func (s *SessionStore) install(sess *Session) {
	s.mu.Lock()
	s.current = sess
	fns := make([]func(Session, bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	var value Session
	if sess != nil {
		value = *sess
	}
	for _, fn := range fns {
		fn(value, sess != nil)
	}
}

// purge removes the persisted credential, logging rather than returning failures.
func (s *SessionStore) purge(ctx context.Context) {
	if err := s.keys.Delete(ctx); err != nil {
		s.logger.Error("failed to remove stored credential", "error", err)
	}
}
