package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"techpost/internal/engage"
)

// Operation names understood by FakeAPI's call counters and failure hooks.
const (
	OpLogin        = "login"
	OpRegister     = "register"
	OpWhoAmI       = "whoami"
	OpGetPost      = "get_post"
	OpToggleLike   = "toggle_like"
	OpCheckLike    = "check_like"
	OpAddComment   = "add_comment"
	OpListComments = "list_comments"
)

type fakeUser struct {
	identity engage.Identity
	password string
}

type gate struct {
	started chan struct{}
	release chan struct{}
}

// FakeAPI is an in-memory Auth Gateway and Engagement API with the same
// semantics as the TechPost server: toggling likes with one like per
// (user, post), comments listed newest first, tokens that can be expired.
// Calls can be counted, failed once, or held open to test interleavings.
// Safe for concurrent use.
type FakeAPI struct {
	// ReportCounts makes ToggleLike include the new like count in its answer.
	ReportCounts bool

	mu            sync.Mutex
	clock         *Clock
	users         map[string]*fakeUser // by email
	tokens        map[engage.Credential]int64
	posts         map[int64]*engage.Post
	likes         map[int64]map[int64]bool // post -> user -> liked
	comments      map[int64][]engage.Comment
	nextUserID    int64
	nextCommentID int64
	nextToken     int

	calls     map[string]int
	likeCreds []engage.Credential
	failNext  map[string]error
	gates     map[string]*gate
}

// NewFakeAPI creates an empty FakeAPI.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		clock:    FixedClock(),
		users:    make(map[string]*fakeUser),
		tokens:   make(map[engage.Credential]int64),
		posts:    make(map[int64]*engage.Post),
		likes:    make(map[int64]map[int64]bool),
		comments: make(map[int64][]engage.Comment),
		calls:    make(map[string]int),
		failNext: make(map[string]error),
		gates:    make(map[string]*gate),
	}
}

// AddUser registers a user and returns its identity.
func (f *FakeAPI) AddUser(name, email, password string) engage.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(name, email, password)
}

func (f *FakeAPI) addUserLocked(name, email, password string) engage.Identity {
	f.nextUserID++
	identity := engage.Identity{ID: f.nextUserID, Name: name, Email: email}
	f.users[email] = &fakeUser{identity: identity, password: password}
	return identity
}

// IssueToken returns a valid credential for the user with the given email.
func (f *FakeAPI) IssueToken(email string) engage.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked(f.users[email].identity.ID)
}

func (f *FakeAPI) issueLocked(userID int64) engage.Credential {
	f.nextToken++
	cred := engage.Credential(fmt.Sprintf("token-%d-%d", userID, f.nextToken))
	f.tokens[cred] = userID
	return cred
}

// ExpireToken makes the server reject cred from now on.
func (f *FakeAPI) ExpireToken(cred engage.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, cred)
}

// AddPost stores a post; its Comments become the server's comment list,
// which must already be newest first.
func (f *FakeAPI) AddPost(post engage.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()

	comments := append([]engage.Comment(nil), post.Comments...)
	for _, c := range comments {
		if c.ID > f.nextCommentID {
			f.nextCommentID = c.ID
		}
	}
	post.Comments = nil
	f.posts[post.ID] = &post
	f.comments[post.ID] = comments
	if f.likes[post.ID] == nil {
		f.likes[post.ID] = make(map[int64]bool)
	}
}

// SetLiked sets the server-side like relation of (email's user, postID)
// without changing how many other visitors like the post.
func (f *FakeAPI) SetLiked(postID int64, email string, liked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLikedLocked(postID, f.users[email].identity.ID, liked)
}

func (f *FakeAPI) setLikedLocked(postID, userID int64, liked bool) {
	p := f.posts[postID]
	was := f.likes[postID][userID]
	switch {
	case liked && !was:
		p.LikesCount++
	case !liked && was:
		p.LikesCount--
	}
	if liked {
		f.likes[postID][userID] = true
	} else {
		delete(f.likes[postID], userID)
	}
}

// LikesCount returns the server's like count for postID.
func (f *FakeAPI) LikesCount(postID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[postID].LikesCount
}

// ServerComments returns the server's comments for postID, newest first.
func (f *FakeAPI) ServerComments(postID int64) []engage.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engage.Comment(nil), f.comments[postID]...)
}

// Calls returns how many times op was invoked.
func (f *FakeAPI) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// LikeCredentials returns the credentials ToggleLike was called with, in order.
func (f *FakeAPI) LikeCredentials() []engage.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engage.Credential(nil), f.likeCreds...)
}

// FailNext makes the next call to op fail with err before touching any state.
func (f *FakeAPI) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] = err
}

// Hold makes the next call to op block until release is called. started is
// closed once the call is blocked.
func (f *FakeAPI) Hold(op string) (started <-chan struct{}, release func()) {
	g := &gate{started: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.gates[op] = g
	f.mu.Unlock()

	var once sync.Once
	return g.started, func() { once.Do(func() { close(g.release) }) }
}

// RemoteFailure returns the error FakeAPI reports for a server-side failure.
func RemoteFailure(op string, status int) error {
	return &engage.RemoteError{Op: op, StatusCode: status, Message: "internal error", Err: engage.ErrRemoteFailure}
}

// enter records a call to op, honors holds and returns an injected failure.
func (f *FakeAPI) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	g := f.gates[op]
	delete(f.gates, op)
	f.mu.Unlock()

	if g != nil {
		close(g.started)
		select {
		case <-g.release:
		case <-ctx.Done():
			return &engage.RemoteError{Op: op, Err: fmt.Errorf("%w: %v", engage.ErrRemoteFailure, ctx.Err())}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *FakeAPI) userFor(op string, cred engage.Credential) (int64, error) {
	userID, ok := f.tokens[cred]
	if !ok {
		return 0, &engage.RemoteError{Op: op, StatusCode: 401, Message: "Invalid or expired token", Err: engage.ErrSessionExpired}
	}
	return userID, nil
}

func (f *FakeAPI) Login(ctx context.Context, email, password string) (engage.Identity, engage.Credential, error) {
	if err := f.enter(ctx, OpLogin); err != nil {
		return engage.Identity{}, "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[email]
	if !ok || u.password != password {
		return engage.Identity{}, "", &engage.AuthError{StatusCode: 401, Message: "Invalid email or password"}
	}
	return u.identity, f.issueLocked(u.identity.ID), nil
}

func (f *FakeAPI) Register(ctx context.Context, name, email, password string) error {
	if err := f.enter(ctx, OpRegister); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if email == "" || password == "" {
		return &engage.AuthError{StatusCode: 400, Message: "Email and password are required"}
	}
	if _, ok := f.users[email]; ok {
		return &engage.AuthError{StatusCode: 400, Message: "Email already registered"}
	}
	f.addUserLocked(name, email, password)
	return nil
}

func (f *FakeAPI) WhoAmI(ctx context.Context, cred engage.Credential) (engage.Identity, error) {
	if err := f.enter(ctx, OpWhoAmI); err != nil {
		return engage.Identity{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	userID, err := f.userFor(OpWhoAmI, cred)
	if err != nil {
		return engage.Identity{}, err
	}
	for _, u := range f.users {
		if u.identity.ID == userID {
			return u.identity, nil
		}
	}
	return engage.Identity{}, &engage.RemoteError{Op: OpWhoAmI, StatusCode: 500, Err: engage.ErrRemoteFailure}
}

func (f *FakeAPI) GetPost(ctx context.Context, postID int64) (*engage.Post, error) {
	if err := f.enter(ctx, OpGetPost); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.posts[postID]
	if !ok {
		return nil, &engage.RemoteError{Op: OpGetPost, StatusCode: 404, Message: "Post not found", Err: engage.ErrRemoteFailure}
	}
	post := *p
	post.CommentsCount = len(f.comments[postID])
	// The server aggregates comments without ordering them.
	post.Comments = append([]engage.Comment(nil), f.comments[postID]...)
	sort.Slice(post.Comments, func(i, j int) bool { return post.Comments[i].ID < post.Comments[j].ID })
	return &post, nil
}

func (f *FakeAPI) ToggleLike(ctx context.Context, postID int64, cred engage.Credential) (engage.LikeResult, error) {
	f.mu.Lock()
	f.likeCreds = append(f.likeCreds, cred)
	f.mu.Unlock()

	if err := f.enter(ctx, OpToggleLike); err != nil {
		return engage.LikeResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	userID, err := f.userFor(OpToggleLike, cred)
	if err != nil {
		return engage.LikeResult{}, err
	}
	liked := !f.likes[postID][userID]
	f.setLikedLocked(postID, userID, liked)

	res := engage.LikeResult{Liked: liked}
	if f.ReportCounts {
		res.LikesCount = f.posts[postID].LikesCount
		res.HasCount = true
	}
	return res, nil
}

func (f *FakeAPI) CheckLike(ctx context.Context, postID int64, cred engage.Credential) (bool, error) {
	if err := f.enter(ctx, OpCheckLike); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	userID, err := f.userFor(OpCheckLike, cred)
	if err != nil {
		return false, err
	}
	return f.likes[postID][userID], nil
}

func (f *FakeAPI) AddComment(ctx context.Context, postID int64, cred engage.Credential, content string) (engage.Comment, error) {
	if err := f.enter(ctx, OpAddComment); err != nil {
		return engage.Comment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	userID, err := f.userFor(OpAddComment, cred)
	if err != nil {
		return engage.Comment{}, err
	}
	var name string
	for _, u := range f.users {
		if u.identity.ID == userID {
			name = u.identity.Name
		}
	}

	f.nextCommentID++
	c := engage.Comment{
		ID:        f.nextCommentID,
		PostID:    postID,
		Content:   content,
		Author:    engage.Author{Name: name},
		CreatedAt: f.clock.Tick(time.Minute),
	}
	f.comments[postID] = append([]engage.Comment{c}, f.comments[postID]...)
	return c, nil
}

func (f *FakeAPI) ListComments(ctx context.Context, postID int64) ([]engage.Comment, error) {
	if err := f.enter(ctx, OpListComments); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]engage.Comment, len(f.comments[postID]))
	for i, c := range f.comments[postID] {
		c.PostID = 0 // the list endpoint omits post_id
		out[i] = c
	}
	return out, nil
}

var (
	_ engage.AuthGateway   = (*FakeAPI)(nil)
	_ engage.EngagementAPI = (*FakeAPI)(nil)
)
