package engage

import "context"

// AuthGateway exchanges credentials for identities.
// Every method either returns a complete result or fails; there is no partial success.
type AuthGateway interface {
	// Login exchanges email and password for an Identity and Credential.
	// Refused credentials are reported as *AuthError.
	Login(ctx context.Context, email, password string) (Identity, Credential, error)

	// Register creates a new identity. It does not log in.
	Register(ctx context.Context, name, email, password string) error

	// WhoAmI returns the Identity behind cred. A rejected credential is
	// reported as ErrSessionExpired.
	WhoAmI(ctx context.Context, cred Credential) (Identity, error)
}

// EngagementAPI is the remote side of a post's likes and comments.
type EngagementAPI interface {
	// GetPost fetches a single post including its like count.
	GetPost(ctx context.Context, postID int64) (*Post, error)

	// ToggleLike flips the like relation of cred's identity on the post.
	ToggleLike(ctx context.Context, postID int64, cred Credential) (LikeResult, error)

	// CheckLike reports whether cred's identity currently likes the post.
	CheckLike(ctx context.Context, postID int64, cred Credential) (bool, error)

	// AddComment creates a comment and returns the server's copy.
	AddComment(ctx context.Context, postID int64, cred Credential, content string) (Comment, error)

	// ListComments returns the post's comments, newest first.
	ListComments(ctx context.Context, postID int64) ([]Comment, error)
}

// CredentialStore persists the single session credential under a fixed key.
// Only SessionStore uses it.
type CredentialStore interface {
	// Load returns the stored credential, or ok=false if there is none.
	Load(ctx context.Context) (cred Credential, ok bool, err error)

	// Save replaces the stored credential.
	Save(ctx context.Context, cred Credential) error

	// Delete removes the stored credential. Deleting a missing credential is not an error.
	Delete(ctx context.Context) error
}

// Journal records the actions executed by the Controller.
type Journal interface {
	// StartAction records that an action began and returns its journal ID.
	StartAction(kind string, postID int64) (int64, error)

	// FinishAction records the outcome ("success" or "error") of a started action.
	FinishAction(id int64, status string, detail string) error
}

// LoginPrompter surfaces the login UI for a deferred action.
// PromptLogin must not block; the outcome is reported back through
// Controller.Login, Controller.CompleteLogin or Controller.Cancel.
type LoginPrompter interface {
	PromptLogin(action Action, reason PromptReason)
}

// PromptReason says why the login UI is being shown.
type PromptReason int

const (
	// PromptAnonymous means the visitor was never logged in.
	PromptAnonymous PromptReason = iota
	// PromptSessionExpired means the server rejected the credential mid-session.
	PromptSessionExpired
)

func (r PromptReason) String() string {
	switch r {
	case PromptSessionExpired:
		return "session expired"
	default:
		return "login required"
	}
}
