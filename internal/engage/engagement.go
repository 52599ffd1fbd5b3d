package engage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultPreviewCount is the number of comments visible before "show all".
const DefaultPreviewCount = 2

// EngagementStore is the locally cached view of the mounted post's likes and
// comments, together with the protocol that mutates them.
//
// Mutations apply optimistically and are reconciled when the server answers.
// An answer is applied only if the post it belongs to is still mounted; every
// Mount starts a new generation so answers from an earlier view are dropped.
// This implementation is safe for concurrent use.
type EngagementStore struct {
	api          EngagementAPI
	previewCount int
	logger       Logger
	clock        Clock
	idgen        IDGenerator

	mu              sync.Mutex
	view            *postView
	generation      uint64
	sessionEpoch    uint64 // bumped on every login and logout
	likeInFlight    map[int64]bool
	commentInFlight map[int64]bool
}

// postView is the mutable state of one mounted post.
type postView struct {
	generation uint64
	post       Post
	comments   []Comment
	isLiked    bool
	showAll    bool
	draft      string
}

// PostSnapshot is the view state handed to rendering.
type PostSnapshot struct {
	Post            Post // Comments is nil; see Comments below
	IsLiked         bool
	Comments        []Comment // visible prefix, newest first
	TotalComments   int
	HiddenComments  int
	ShowingAll      bool
	Draft           string
	LikeInFlight    bool
	CommentInFlight bool
}

// NewEngagementStore creates a store with nothing mounted.
// previewCount <= 0 selects DefaultPreviewCount.
func NewEngagementStore(api EngagementAPI, previewCount int, logger Logger, clock Clock, idgen IDGenerator) *EngagementStore {
	if previewCount <= 0 {
		previewCount = DefaultPreviewCount
	}
	return &EngagementStore{
		api:             api,
		previewCount:    previewCount,
		logger:          logger,
		clock:           clock,
		idgen:           idgen,
		likeInFlight:    make(map[int64]bool),
		commentInFlight: make(map[int64]bool),
	}
}

// Mount makes post the viewed post, replacing anything mounted before.
// The comment sequence is taken as given (newest first).
func (s *EngagementStore) Mount(post Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	comments := append([]Comment(nil), post.Comments...)
	post.Comments = nil
	s.view = &postView{
		generation: s.generation,
		post:       post,
		comments:   comments,
	}
	s.logger.Debug("post mounted", "post_id", post.ID, "comments", len(comments))
}

// Unmount drops the viewed post. Answers still in flight for it are discarded.
func (s *EngagementStore) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.view = nil
}

// Load fetches a post, mounts it and brings its comments and (when sess is
// non-nil) the visitor's like status up to date. Only the post fetch can fail
// Load; comment and like-status failures leave the post mounted and are logged.
func (s *EngagementStore) Load(ctx context.Context, postID int64, sess *Session) error {
	post, err := s.api.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("loading post %d: %w", postID, err)
	}
	s.Mount(*post)

	if err := s.RefreshComments(ctx); err != nil {
		s.logger.Warn("failed to fetch comments", "post_id", postID, "error", err)
	}
	if sess != nil {
		if _, err := s.SyncLikeStatus(ctx, sess); err != nil {
			s.logger.Warn("failed to check like status", "post_id", postID, "error", err)
		}
	}
	return nil
}

// MountedPostID returns the ID of the mounted post, or ok=false.
func (s *EngagementStore) MountedPostID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view == nil {
		return 0, false
	}
	return s.view.post.ID, true
}

// ToggleLike flips the visitor's like on the mounted post.
//
// The flip and the ±1 count adjustment are applied before the request is sent.
// On success the server's liked flag, and its count when returned, replace the
// guess. On failure the pre-toggle state is restored and the error returned.
// A second toggle for the same post while one is outstanding fails with
// ErrBusy without touching the network.
func (s *EngagementStore) ToggleLike(ctx context.Context, postID int64, sess *Session) (LikeState, error) {
	if sess == nil || sess.Credential == "" {
		return LikeState{}, ErrUnauthenticated
	}

	s.mu.Lock()
	v, err := s.viewFor(postID)
	if err != nil {
		s.mu.Unlock()
		return LikeState{}, err
	}
	if s.likeInFlight[postID] {
		s.mu.Unlock()
		return LikeState{}, fmt.Errorf("liking post %d: %w", postID, ErrBusy)
	}
	s.likeInFlight[postID] = true

	gen, epoch := v.generation, s.sessionEpoch
	prevLiked, prevCount := v.isLiked, v.post.LikesCount
	v.isLiked = !prevLiked
	v.post.LikesCount = adjustCount(prevCount, v.isLiked)
	optimistic := v.isLiked
	s.mu.Unlock()

	res, err := s.api.ToggleLike(ctx, postID, sess.Credential)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.likeInFlight, postID)

	v = s.viewAt(gen, postID)
	if v == nil {
		s.logger.Debug("discarding like response for unmounted post", "post_id", postID)
		if err != nil {
			return LikeState{}, fmt.Errorf("liking post %d: %w", postID, err)
		}
		return LikeState{PostID: postID, Liked: res.Liked, LikesCount: res.LikesCount}, nil
	}

	if s.sessionEpoch != epoch {
		// The session changed while the request was out. The count is
		// shared by everyone; the liked flag belonged to the old session.
		if err != nil {
			v.post.LikesCount = prevCount
			return v.likeState(), fmt.Errorf("liking post %d: %w", postID, err)
		}
		if res.HasCount {
			v.post.LikesCount = res.LikesCount
		} else {
			v.post.LikesCount = adjustCount(prevCount, res.Liked)
		}
		s.logger.Debug("like answered after session change, keeping liked flag", "post_id", postID)
		return LikeState{PostID: postID, Liked: res.Liked, LikesCount: v.post.LikesCount}, nil
	}

	if err != nil {
		v.isLiked = prevLiked
		v.post.LikesCount = prevCount
		s.logger.Warn("like failed, rolled back", "post_id", postID, "error", err)
		return v.likeState(), fmt.Errorf("liking post %d: %w", postID, err)
	}

	v.isLiked = res.Liked
	if res.HasCount {
		v.post.LikesCount = res.LikesCount
		return v.likeState(), nil
	}
	if res.Liked != optimistic {
		// The server toggled from the other state than the one shown, so the
		// shown count already included the visitor's like (or lacked it).
		s.logger.Info("like state corrected by server", "post_id", postID, "liked", res.Liked)
	}
	v.post.LikesCount = adjustCount(prevCount, res.Liked)
	return v.likeState(), nil
}

// SyncLikeStatus asks the server whether sess's identity likes the mounted
// post and installs the answer.
func (s *EngagementStore) SyncLikeStatus(ctx context.Context, sess *Session) (bool, error) {
	if sess == nil || sess.Credential == "" {
		return false, ErrUnauthenticated
	}

	s.mu.Lock()
	if s.view == nil {
		s.mu.Unlock()
		return false, ErrNotMounted
	}
	gen, epoch, postID := s.view.generation, s.sessionEpoch, s.view.post.ID
	s.mu.Unlock()

	liked, err := s.api.CheckLike(ctx, postID, sess.Credential)
	if err != nil {
		return false, fmt.Errorf("checking like on post %d: %w", postID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.viewAt(gen, postID); v != nil && s.sessionEpoch == epoch {
		v.isLiked = liked
	}
	return liked, nil
}

// Liked reports the visitor's like on the mounted post, if postID is mounted.
func (s *EngagementStore) Liked(postID int64) (liked bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.viewFor(postID)
	if err != nil {
		return false, false
	}
	return v.isLiked, true
}

// AddComment submits text as a comment on the mounted post.
//
// text is trimmed; an empty result fails with ErrInvalidInput and nothing is
// sent. Otherwise a pending placeholder is put at the head of the comments
// and replaced in place by the server's comment. On failure the placeholder
// is removed and text is kept as the draft so it can be resubmitted.
func (s *EngagementStore) AddComment(ctx context.Context, postID int64, sess *Session, text string) (Comment, error) {
	if sess == nil || sess.Credential == "" {
		return Comment{}, ErrUnauthenticated
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return Comment{}, fmt.Errorf("%w: comment is empty", ErrInvalidInput)
	}

	s.mu.Lock()
	v, err := s.viewFor(postID)
	if err != nil {
		s.mu.Unlock()
		return Comment{}, err
	}
	if s.commentInFlight[postID] {
		s.mu.Unlock()
		return Comment{}, fmt.Errorf("commenting on post %d: %w", postID, ErrBusy)
	}
	s.commentInFlight[postID] = true

	gen := v.generation
	pending := Comment{
		LocalID:   s.idgen.New(),
		PostID:    postID,
		Content:   content,
		Author:    Author{Name: sess.Identity.Name},
		CreatedAt: s.clock.Now(),
		Pending:   true,
	}
	v.comments = append([]Comment{pending}, v.comments...)
	v.draft = text
	s.mu.Unlock()

	created, err := s.api.AddComment(ctx, postID, sess.Credential, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.commentInFlight, postID)

	v = s.viewAt(gen, postID)
	if v == nil {
		s.logger.Debug("discarding comment response for unmounted post", "post_id", postID)
		if err != nil {
			return Comment{}, fmt.Errorf("commenting on post %d: %w", postID, err)
		}
		return created, nil
	}

	if err != nil {
		v.comments = removeLocal(v.comments, pending.LocalID)
		s.logger.Warn("comment failed, draft kept", "post_id", postID, "error", err)
		return Comment{}, fmt.Errorf("commenting on post %d: %w", postID, err)
	}

	if created.PostID == 0 {
		created.PostID = postID
	}
	v.comments = settlePending(v.comments, pending.LocalID, created)
	v.post.CommentsCount++
	v.draft = ""
	return created, nil
}

// RefreshComments replaces the mounted post's comments with the server's
// sequence. The server order is kept as is; placeholders still pending stay
// at the head.
func (s *EngagementStore) RefreshComments(ctx context.Context) error {
	s.mu.Lock()
	if s.view == nil {
		s.mu.Unlock()
		return ErrNotMounted
	}
	gen, postID := s.view.generation, s.view.post.ID
	s.mu.Unlock()

	comments, err := s.api.ListComments(ctx, postID)
	if err != nil {
		return fmt.Errorf("fetching comments for post %d: %w", postID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.viewAt(gen, postID)
	if v == nil {
		return nil
	}

	merged := make([]Comment, 0, len(comments)+1)
	for _, c := range v.comments {
		if c.Pending {
			merged = append(merged, c)
		}
	}
	for _, c := range comments {
		if c.PostID == 0 {
			c.PostID = postID
		}
		merged = append(merged, c)
	}
	v.comments = merged
	v.post.CommentsCount = len(comments)
	return nil
}

// ShowAllComments reveals the whole comment sequence for the rest of this view.
// It has no network effect and cannot be undone until the next Mount.
func (s *EngagementStore) ShowAllComments() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view != nil {
		s.view.showAll = true
	}
}

// VisibleComments returns the comments rendering should show.
func (s *EngagementStore) VisibleComments() []Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view == nil {
		return nil
	}
	return s.view.visible(s.previewCount)
}

// HasHiddenComments reports whether "show all" would reveal more comments.
func (s *EngagementStore) HasHiddenComments() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.view != nil && len(s.view.visible(s.previewCount)) < len(s.view.comments)
}

// Draft returns the comment text kept after a failed submission.
func (s *EngagementStore) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view == nil {
		return ""
	}
	return s.view.draft
}

// Snapshot returns the renderable state of the mounted post, or ok=false.
func (s *EngagementStore) Snapshot() (PostSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view
	if v == nil {
		return PostSnapshot{}, false
	}
	visible := v.visible(s.previewCount)
	return PostSnapshot{
		Post:            v.post,
		IsLiked:         v.isLiked,
		Comments:        visible,
		TotalComments:   len(v.comments),
		HiddenComments:  len(v.comments) - len(visible),
		ShowingAll:      v.showAll,
		Draft:           v.draft,
		LikeInFlight:    s.likeInFlight[v.post.ID],
		CommentInFlight: s.commentInFlight[v.post.ID],
	}, true
}

// OnSessionChange is meant to be subscribed to SessionStore. Every login or
// logout clears the like flag, which belongs to the previous identity, and
// invalidates like answers still in flight for it. A new login's status is
// picked up by SyncLikeStatus.
func (s *EngagementStore) OnSessionChange(_ Session, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionEpoch++
	if s.view != nil {
		s.view.isLiked = false
	}
}

// viewFor returns the mounted view if it shows postID. Caller holds s.mu.
func (s *EngagementStore) viewFor(postID int64) (*postView, error) {
	if s.view == nil || s.view.post.ID != postID {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotMounted)
	}
	return s.view, nil
}

// viewAt returns the mounted view only if it is still generation gen of
// postID. Caller holds s.mu.
func (s *EngagementStore) viewAt(gen uint64, postID int64) *postView {
	if s.view == nil || s.view.generation != gen || s.view.post.ID != postID {
		return nil
	}
	return s.view
}

func (v *postView) likeState() LikeState {
	return LikeState{PostID: v.post.ID, Liked: v.isLiked, LikesCount: v.post.LikesCount}
}

func (v *postView) visible(previewCount int) []Comment {
	n := len(v.comments)
	if !v.showAll && n > previewCount {
		n = previewCount
	}
	return append([]Comment(nil), v.comments[:n]...)
}

// adjustCount applies the optimistic ±1 of a like flip without going negative.
func adjustCount(count int, liked bool) int {
	if liked {
		return count + 1
	}
	if count > 0 {
		return count - 1
	}
	return 0
}

func removeLocal(comments []Comment, localID string) []Comment {
	out := comments[:0:0]
	for _, c := range comments {
		if c.Pending && c.LocalID == localID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// settlePending swaps the placeholder for created in place. If created is
// already present (a refresh got there first) the placeholder is dropped.
func settlePending(comments []Comment, localID string, created Comment) []Comment {
	for _, c := range comments {
		if !c.Pending && created.ID != 0 && c.ID == created.ID {
			return removeLocal(comments, localID)
		}
	}
	for i, c := range comments {
		if c.Pending && c.LocalID == localID {
			comments[i] = created
			return comments
		}
	}
	return append([]Comment{created}, comments...)
}
