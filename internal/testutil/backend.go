package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Request is one request received by Backend.
type Request struct {
	Method        string
	Path          string
	Authorization string
}

type backendUser struct {
	id           int64
	email        string
	name         string
	passwordHash []byte
}

type backendPost struct {
	id        int64
	title     string
	excerpt   string
	content   string
	imageURL  string
	category  string
	createdAt time.Time
}

type backendComment struct {
	id        int64
	postID    int64
	userID    int64
	content   string
	createdAt time.Time
}

// Backend is an httptest server speaking the TechPost REST API: bcrypt
// password hashes, HS256 tokens carrying user_id and exp, sent raw in the
// Authorization header, and one like per (user, post).
type Backend struct {
	URL string

	// ReportCounts adds likes_count to like toggle answers.
	ReportCounts bool

	server *httptest.Server
	secret []byte

	mu          sync.Mutex
	now         time.Time
	users       map[string]*backendUser
	posts       map[int64]*backendPost
	likes       map[int64]map[int64]bool // post -> user
	comments    []backendComment
	nextUserID  int64
	nextPostID  int64
	nextComment int64
	requests    []Request
	failNext    map[string]int // "METHOD path" -> status
}

// NewBackend starts a Backend that is closed when the test completes.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		secret:   []byte("test-secret"),
		now:      time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		users:    make(map[string]*backendUser),
		posts:    make(map[int64]*backendPost),
		likes:    make(map[int64]map[int64]bool),
		failNext: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", b.handleRegister)
	mux.HandleFunc("POST /api/login", b.handleLogin)
	mux.HandleFunc("GET /api/me", b.handleMe)
	mux.HandleFunc("POST /api/logout", b.handleLogout)
	mux.HandleFunc("GET /api/posts", b.handleListPosts)
	mux.HandleFunc("GET /api/posts/{id}", b.handleGetPost)
	mux.HandleFunc("POST /api/posts/{id}/like", b.handleLike)
	mux.HandleFunc("GET /api/posts/{id}/check-like", b.handleCheckLike)
	mux.HandleFunc("POST /api/posts/{id}/comment", b.handleAddComment)
	mux.HandleFunc("GET /api/posts/{id}/comments", b.handleListComments)

	b.server = httptest.NewServer(b.record(mux))
	b.URL = b.server.URL
	t.Cleanup(b.server.Close)
	return b
}

// AddUser creates a user and returns its ID.
func (b *Backend) AddUser(name, email, password string) int64 {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("hashing password: %v", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(name, email, hash)
}

func (b *Backend) addUserLocked(name, email string, hash []byte) int64 {
	b.nextUserID++
	b.users[email] = &backendUser{id: b.nextUserID, email: email, name: name, passwordHash: hash}
	return b.nextUserID
}

// AddPost creates a post and returns its ID. Later posts are newer.
func (b *Backend) AddPost(title, category string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextPostID++
	b.now = b.now.Add(time.Hour)
	b.posts[b.nextPostID] = &backendPost{
		id:        b.nextPostID,
		title:     title,
		excerpt:   title + " excerpt",
		content:   title + " content",
		imageURL:  fmt.Sprintf("/images/%d.png", b.nextPostID),
		category:  category,
		createdAt: b.now,
	}
	b.likes[b.nextPostID] = make(map[int64]bool)
	return b.nextPostID
}

// Token mints a token for userID that expires after ttl. A negative ttl
// yields an already expired token.
func (b *Backend) Token(userID int64, ttl time.Duration) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	})
	s, err := token.SignedString(b.secret)
	if err != nil {
		panic(fmt.Sprintf("signing token: %v", err))
	}
	return s
}

// Likes returns the number of likes on postID.
func (b *Backend) Likes(postID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.likes[postID])
}

// Requests returns every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// FailNext makes the next "METHOD path" request answer with status.
func (b *Backend) FailNext(method, path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext[method+" "+path] = status
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		b.mu.Lock()
		b.requests = append(b.requests, Request{Method: r.Method, Path: r.URL.Path, Authorization: r.Header.Get("Authorization")})
		status, fail := b.failNext[key]
		delete(b.failNext, key)
		b.mu.Unlock()

		if fail {
			writeJSON(w, status, map[string]string{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// authenticate returns the user behind the Authorization header or writes a 401.
func (b *Backend) authenticate(w http.ResponseWriter, r *http.Request) (*backendUser, bool) {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "Token is missing")
		return nil, false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return nil, false
	}
	id, ok := claims["user_id"].(float64)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.id == int64(id) {
			return u, true
		}
	}
	writeError(w, http.StatusUnauthorized, "Invalid or expired token")
	return nil, false
}

func postIDFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hashing failed")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[req.Email]; exists {
		writeError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	b.addUserLocked(req.Name, req.Email, hash)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	b.mu.Lock()
	u, ok := b.users[req.Email]
	b.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"token":   b.Token(u.id, 24*time.Hour),
		"user":    map[string]any{"id": u.id, "email": u.email, "name": u.name},
	})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{"id": u.id, "email": u.email, "name": u.name},
	})
}

func (b *Backend) handleLogout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// postJSON renders a post the way Flask's jsonify does: RFC 1123 created_at.
func (b *Backend) postJSON(p *backendPost) map[string]any {
	return map[string]any{
		"id":             p.id,
		"title":          p.title,
		"excerpt":        p.excerpt,
		"content":        p.content,
		"image_url":      p.imageURL,
		"category":       p.category,
		"author":         "TechPost",
		"created_at":     p.createdAt.UTC().Format(http.TimeFormat),
		"likes_count":    len(b.likes[p.id]),
		"comments_count": b.commentCountLocked(p.id),
	}
}

func (b *Backend) commentCountLocked(postID int64) int {
	n := 0
	for _, c := range b.comments {
		if c.postID == postID {
			n++
		}
	}
	return n
}

func (b *Backend) userNameLocked(id int64) string {
	for _, u := range b.users {
		if u.id == id {
			return u.name
		}
	}
	return ""
}

func (b *Backend) handleListPosts(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	posts := make([]*backendPost, 0, len(b.posts))
	for _, p := range b.posts {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].createdAt.After(posts[j].createdAt) })

	out := make([]map[string]any, len(posts))
	for i, p := range posts {
		out[i] = b.postJSON(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postIDFrom(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.posts[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	out := b.postJSON(p)
	// Aggregated in insertion order, not newest first.
	comments := []map[string]any{}
	for _, c := range b.comments {
		if c.postID == id {
			comments = append(comments, map[string]any{
				"id":         c.id,
				"content":    c.content,
				"created_at": c.createdAt.Format("2006-01-02T15:04:05.000000"),
				"author":     map[string]string{"name": b.userNameLocked(c.userID)},
			})
		}
	}
	out["comments"] = comments
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleLike(w http.ResponseWriter, r *http.Request) {
	u, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	id, ok := postIDFrom(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	likes, ok := b.likes[id]
	if !ok {
		writeError(w, http.StatusInternalServerError, "An error occurred while processing your request")
		return
	}
	resp := map[string]any{}
	if likes[u.id] {
		delete(likes, u.id)
		resp["message"], resp["liked"] = "Post unliked", false
	} else {
		likes[u.id] = true
		resp["message"], resp["liked"] = "Post liked", true
	}
	if b.ReportCounts {
		resp["likes_count"] = len(likes)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleCheckLike(w http.ResponseWriter, r *http.Request) {
	u, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	id, ok := postIDFrom(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"liked": b.likes[id][u.id]})
}

func (b *Backend) handleAddComment(w http.ResponseWriter, r *http.Request) {
	u, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	id, ok := postIDFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "Comment content is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextComment++
	b.now = b.now.Add(time.Minute)
	c := backendComment{id: b.nextComment, postID: id, userID: u.id, content: req.Content, createdAt: b.now}
	b.comments = append(b.comments, c)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         c.id,
		"post_id":    c.postID,
		"user_id":    c.userID,
		"content":    c.content,
		"created_at": c.createdAt.Format("2006-01-02T15:04:05.000000"),
		"author":     map[string]string{"name": u.name},
	})
}

func (b *Backend) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := postIDFrom(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := []map[string]any{}
	for i := len(b.comments) - 1; i >= 0; i-- {
		c := b.comments[i]
		if c.postID != id {
			continue
		}
		out = append(out, map[string]any{
			"id":         c.id,
			"content":    c.content,
			"created_at": c.createdAt.Format("2006-01-02T15:04:05.000000"),
			"author":     map[string]string{"name": b.userNameLocked(c.userID)},
		})
	}
	writeJSON(w, http.StatusOK, out)
}
