package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"techpost/internal/engage"
)

// authorJSON accepts both {"name": "..."} and a bare string.
type authorJSON struct {
	Name string `json:"name"`
}

func (a *authorJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.Name)
	}
	type plain authorJSON
	return json.Unmarshal(data, (*plain)(a))
}

type commentJSON struct {
	ID        int64      `json:"id"`
	PostID    int64      `json:"post_id"`
	UserID    int64      `json:"user_id"`
	Content   string     `json:"content"`
	CreatedAt string     `json:"created_at"`
	Author    authorJSON `json:"author"`
}

func (c commentJSON) comment() engage.Comment {
	return engage.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		Content:   c.Content,
		Author:    engage.Author{Name: c.Author.Name},
		CreatedAt: parseTime(c.CreatedAt),
	}
}

type postJSON struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	Excerpt       string        `json:"excerpt"`
	Content       string        `json:"content"`
	ImageURL      string        `json:"image_url"`
	Category      string        `json:"category"`
	Author        authorJSON    `json:"author"`
	CreatedAt     string        `json:"created_at"`
	LikesCount    int           `json:"likes_count"`
	CommentsCount int           `json:"comments_count"`
	Comments      []commentJSON `json:"comments"`
}

func (p postJSON) post() engage.Post {
	post := engage.Post{
		ID:            p.ID,
		Title:         p.Title,
		Excerpt:       p.Excerpt,
		Content:       p.Content,
		ImageURL:      p.ImageURL,
		Category:      p.Category,
		Author:        engage.Author{Name: p.Author.Name},
		CreatedAt:     parseTime(p.CreatedAt),
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
	}
	if len(p.Comments) > 0 {
		post.Comments = make([]engage.Comment, len(p.Comments))
		for i, c := range p.Comments {
			post.Comments[i] = c.comment()
			post.Comments[i].PostID = p.ID
		}
	}
	return post
}

type likeResponse struct {
	Message    string `json:"message"`
	Liked      bool   `json:"liked"`
	LikesCount *int   `json:"likes_count"`
}

type checkLikeResponse struct {
	Liked bool `json:"liked"`
}

type commentRequest struct {
	Content string `json:"content"`
}

// GetPost fetches one post with its counts and aggregated comments. The
// aggregated comments are in no particular order.
func (c *Client) GetPost(ctx context.Context, postID int64) (*engage.Post, error) {
	var resp postJSON
	if err := c.get(ctx, fmt.Sprintf("/api/posts/%d", postID), "", &resp); err != nil {
		return nil, remoteError("get_post", err)
	}
	post := resp.post()
	return &post, nil
}

// ListPosts returns every post, newest first, with counts but no comments.
func (c *Client) ListPosts(ctx context.Context) ([]engage.Post, error) {
	var resp []postJSON
	if err := c.get(ctx, "/api/posts", "", &resp); err != nil {
		return nil, remoteError("list_posts", err)
	}
	posts := make([]engage.Post, len(resp))
	for i, p := range resp {
		posts[i] = p.post()
	}
	return posts, nil
}

func (c *Client) ToggleLike(ctx context.Context, postID int64, cred engage.Credential) (engage.LikeResult, error) {
	var resp likeResponse
	if err := c.post(ctx, fmt.Sprintf("/api/posts/%d/like", postID), cred, nil, &resp); err != nil {
		return engage.LikeResult{}, gatedError("toggle_like", err)
	}
	res := engage.LikeResult{Liked: resp.Liked}
	if resp.LikesCount != nil {
		res.LikesCount = *resp.LikesCount
		res.HasCount = true
	}
	return res, nil
}

func (c *Client) CheckLike(ctx context.Context, postID int64, cred engage.Credential) (bool, error) {
	var resp checkLikeResponse
	if err := c.get(ctx, fmt.Sprintf("/api/posts/%d/check-like", postID), cred, &resp); err != nil {
		return false, gatedError("check_like", err)
	}
	return resp.Liked, nil
}

func (c *Client) AddComment(ctx context.Context, postID int64, cred engage.Credential, content string) (engage.Comment, error) {
	var resp commentJSON
	path := fmt.Sprintf("/api/posts/%d/comment", postID)
	if err := c.post(ctx, path, cred, commentRequest{Content: content}, &resp); err != nil {
		return engage.Comment{}, gatedError("add_comment", err)
	}
	return resp.comment(), nil
}

// ListComments returns the post's comments newest first. The endpoint does
// not echo post_id; callers fill it in.
func (c *Client) ListComments(ctx context.Context, postID int64) ([]engage.Comment, error) {
	var resp []commentJSON
	if err := c.get(ctx, fmt.Sprintf("/api/posts/%d/comments", postID), "", &resp); err != nil {
		return nil, remoteError("list_comments", err)
	}
	comments := make([]engage.Comment, len(resp))
	for i, cj := range resp {
		comments[i] = cj.comment()
	}
	return comments, nil
}

// timeLayouts covers Python isoformat() without a zone (comments), RFC 1123
// as produced by Flask's jsonify (posts) and proper RFC 3339.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05.999999999",
}

// parseTime returns the zero time for a missing or unrecognised value.
// Zone-less values are taken as UTC.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
