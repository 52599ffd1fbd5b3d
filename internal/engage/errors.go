package engage

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means a gated action was attempted without an Identity.
	ErrUnauthenticated = errors.New("not logged in")

	// ErrBusy means an identical request is still outstanding for the post.
	ErrBusy = errors.New("request already in progress")

	// ErrInvalidInput means the action was rejected locally before any network call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRemoteFailure covers transport errors and non-2xx responses.
	ErrRemoteFailure = errors.New("remote request failed")

	// ErrSessionExpired means the server rejected the credential.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotMounted means the action targets a post that is not the one being viewed.
	ErrNotMounted = errors.New("post is not loaded")
)

// RemoteError describes a failed call to the remote API.
// It unwraps to ErrSessionExpired for rejected credentials and to
// ErrRemoteFailure for everything else.
type RemoteError struct {
	Op         string
	StatusCode int // 0 for transport failures
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// AuthError is returned by the Auth Gateway when the server refuses a login or
// registration, e.g. bad credentials or an already registered email.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
	}
	return e.Message
}

// IsRetryable reports whether err is a transient failure the user may retry
// by repeating the action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrRemoteFailure)
}
