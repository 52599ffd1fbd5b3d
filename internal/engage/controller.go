package engage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ActionKind tags a Deferred Action.
type ActionKind int

const (
	ActionLike ActionKind = iota + 1
	ActionComment
)

func (k ActionKind) String() string {
	switch k {
	case ActionLike:
		return "like"
	case ActionComment:
		return "comment"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is a like or comment intent. When attempted without a session it is
// held by the Controller until login completes.
type Action struct {
	Kind   ActionKind
	PostID int64

	// WantLiked is the like state the visitor asked for (ActionLike only).
	// A replayed like whose post already has this state after login is
	// considered satisfied and not sent.
	WantLiked bool

	// Text is the comment body (ActionComment only).
	Text string
}

// LikeAction returns the intent to move postID to the wantLiked state.
func LikeAction(postID int64, wantLiked bool) Action {
	return Action{Kind: ActionLike, PostID: postID, WantLiked: wantLiked}
}

// CommentAction returns the intent to post text on postID.
func CommentAction(postID int64, text string) Action {
	return Action{Kind: ActionComment, PostID: postID, Text: text}
}

// State is the Controller's position in Idle → PromptingLogin → Executing → Idle.
type State int

const (
	StateIdle State = iota
	StatePromptingLogin
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePromptingLogin:
		return "prompting-login"
	case StateExecuting:
		return "executing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result describes what an Attempt or a login did with the action.
type Result struct {
	// Deferred is set when the action is waiting for a login.
	Deferred bool
	// Reason says why the login UI was shown. Only meaningful when Deferred.
	Reason PromptReason
	// Executed is set when the action was sent to the server.
	Executed bool
	// Satisfied is set when a replayed like was already in the wanted state.
	Satisfied bool

	Action  Action
	Like    LikeState
	Comment Comment
}

// Controller gates likes and comments on the session. An action attempted
// while anonymous is captured, the login UI is shown, and the action is
// replayed with the fresh session once login succeeds. Only one action is
// held at a time; a newer attempt replaces it.
// This implementation is safe for concurrent use.
type Controller struct {
	sessions *SessionStore
	gateway  AuthGateway
	store    *EngagementStore
	prompter LoginPrompter
	journal  Journal
	logger   Logger

	mu      sync.Mutex
	state   State
	pending *Action
}

// NewController wires a Controller. prompter and journal may be nil.
func NewController(sessions *SessionStore, gateway AuthGateway, store *EngagementStore, prompter LoginPrompter, journal Journal, logger Logger) *Controller {
	return &Controller{
		sessions: sessions,
		gateway:  gateway,
		store:    store,
		prompter: prompter,
		journal:  journal,
		logger:   logger,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the action waiting for login, if any.
func (c *Controller) Pending() (Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return Action{}, false
	}
	return *c.pending, true
}

// Attempt runs a like or comment. With a session it executes right away and
// the Controller stays Idle. Without one the action is deferred, the login UI
// is requested and Result.Deferred is set; no error is returned for the
// missing session.
//
// Comments that are empty after trimming fail with ErrInvalidInput before
// anything is deferred or sent.
func (c *Controller) Attempt(ctx context.Context, action Action) (Result, error) {
	if err := validate(action); err != nil {
		return Result{Action: action}, err
	}

	sess, ok := c.sessions.Current()
	if !ok {
		return c.capture(action, PromptAnonymous), nil
	}

	// A session installed outside CompleteLogin leaves an older intent
	// behind; the visitor has moved on from it.
	c.mu.Lock()
	if c.pending != nil {
		c.logger.Info("dropping deferred action superseded by a new attempt", "kind", c.pending.Kind.String(), "post_id", c.pending.PostID)
		c.pending = nil
	}
	c.state = StateIdle
	c.mu.Unlock()

	return c.execute(ctx, action, sess)
}

// Login authenticates through the gateway and, on success, completes the
// login. A refused login leaves the pending action and the prompt in place so
// the visitor can try again or cancel.
func (c *Controller) Login(ctx context.Context, email, password string) (Result, error) {
	identity, cred, err := c.gateway.Login(ctx, email, password)
	if err != nil {
		return Result{Deferred: c.State() == StatePromptingLogin}, fmt.Errorf("logging in: %w", err)
	}
	return c.CompleteLogin(ctx, identity, cred)
}

// CompleteLogin installs a session obtained elsewhere, brings the mounted
// post's like status up to date for the new identity and replays the pending
// action, if any, exactly once with it.
func (c *Controller) CompleteLogin(ctx context.Context, identity Identity, cred Credential) (Result, error) {
	if err := c.sessions.Login(ctx, identity, cred); err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return Result{}, err
		}
		c.logger.Warn("session will not survive restart", "error", err)
	}

	// Read the session back rather than reusing the arguments so the replay
	// runs with whatever is installed now.
	sess, ok := c.sessions.Current()
	var status likeStatus
	if ok {
		status = c.syncLike(ctx, sess)
	}

	c.mu.Lock()
	action := c.pending
	c.pending = nil
	if action == nil {
		c.state = StateIdle
		c.mu.Unlock()
		return Result{}, nil
	}
	c.state = StateExecuting
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.state == StateExecuting {
			c.state = StateIdle
		}
		c.mu.Unlock()
	}()

	if !ok {
		return c.capture(*action, PromptAnonymous), nil
	}

	if action.Kind == ActionLike && status.synced && status.postID == action.PostID && status.liked == action.WantLiked {
		c.logger.Info("deferred like already satisfied", "post_id", action.PostID, "liked", status.liked)
		return Result{Satisfied: true, Action: *action}, nil
	}
	return c.execute(ctx, *action, sess)
}

// Cancel discards the pending action and returns to Idle. It reports whether
// an action was discarded.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	discarded := c.pending != nil
	if discarded {
		c.logger.Info("deferred action cancelled", "kind", c.pending.Kind.String(), "post_id", c.pending.PostID)
	}
	c.pending = nil
	c.state = StateIdle
	return discarded
}

// execute is the single dispatcher for every action, immediate or replayed.
func (c *Controller) execute(ctx context.Context, action Action, sess Session) (Result, error) {
	journalID := c.startJournal(action)

	result := Result{Action: action}
	var err error
	switch action.Kind {
	case ActionLike:
		result.Like, err = c.store.ToggleLike(ctx, action.PostID, &sess)
	case ActionComment:
		result.Comment, err = c.store.AddComment(ctx, action.PostID, &sess, action.Text)
	default:
		err = fmt.Errorf("%w: unknown action %s", ErrInvalidInput, action.Kind)
	}
	c.finishJournal(journalID, err)

	if errors.Is(err, ErrSessionExpired) {
		c.logger.Info("credential rejected during action, asking to log in again", "kind", action.Kind.String())
		if lerr := c.sessions.Logout(ctx); lerr != nil {
			c.logger.Error("failed to clear expired session", "error", lerr)
		}
		return c.capture(action, PromptSessionExpired), nil
	}
	if err != nil {
		return result, err
	}

	result.Executed = true
	return result, nil
}

// capture records action as the pending one (replacing any earlier one) and
// asks for the login UI.
func (c *Controller) capture(action Action, reason PromptReason) Result {
	c.mu.Lock()
	if c.pending != nil {
		c.logger.Debug("replacing deferred action", "old", c.pending.Kind.String(), "new", action.Kind.String())
	}
	a := action
	c.pending = &a
	c.state = StatePromptingLogin
	c.mu.Unlock()

	if c.prompter != nil {
		c.prompter.PromptLogin(action, reason)
	}
	return Result{Deferred: true, Reason: reason, Action: action}
}

type likeStatus struct {
	synced bool
	postID int64
	liked  bool
}

// syncLike refreshes the mounted post's like status for sess. synced is
// false when nothing is mounted or the check failed.
func (c *Controller) syncLike(ctx context.Context, sess Session) likeStatus {
	postID, ok := c.store.MountedPostID()
	if !ok {
		return likeStatus{}
	}
	liked, err := c.store.SyncLikeStatus(ctx, &sess)
	if err != nil {
		c.logger.Warn("could not check like status after login", "post_id", postID, "error", err)
		return likeStatus{}
	}
	return likeStatus{synced: true, postID: postID, liked: liked}
}

func (c *Controller) startJournal(action Action) int64 {
	if c.journal == nil {
		return 0
	}
	id, err := c.journal.StartAction(action.Kind.String(), action.PostID)
	if err != nil {
		c.logger.Warn("failed to journal action", "error", err)
		return 0
	}
	return id
}

func (c *Controller) finishJournal(id int64, actionErr error) {
	if c.journal == nil || id == 0 {
		return
	}
	status, detail := "success", ""
	if actionErr != nil {
		status, detail = "error", actionErr.Error()
	}
	if err := c.journal.FinishAction(id, status, detail); err != nil {
		c.logger.Warn("failed to finish journaled action", "id", id, "error", err)
	}
}

func validate(action Action) error {
	switch action.Kind {
	case ActionLike:
		return nil
	case ActionComment:
		if strings.TrimSpace(action.Text) == "" {
			return fmt.Errorf("%w: comment is empty", ErrInvalidInput)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action %s", ErrInvalidInput, action.Kind)
	}
}
