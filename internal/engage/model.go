// Package engage holds the engagement synchronization and session core of the
// TechPost client: who the visitor is, what they think a post's likes and
// comments look like, and how a like or comment attempted while anonymous is
// carried across a login.
package engage

import "time"

// Identity is the authenticated user's public profile.
// It is immutable once issued for a session and replaced wholesale on login.
type Identity struct {
	ID    int64
	Name  string
	Email string
}

// Credential is the opaque bearer token proving an Identity to the server.
// Expiry is enforced server-side only.
type Credential string

// Session pairs the installed Identity with the Credential that proves it.
type Session struct {
	Identity   Identity
	Credential Credential
}

// Author is the public byline attached to posts and comments.
type Author struct {
	Name string
}

// Comment is a server-created comment, or a local placeholder for one that is
// still being submitted. Placeholders have Pending set, no ID and a LocalID.
type Comment struct {
	ID        int64
	LocalID   string
	PostID    int64
	Content   string
	Author    Author
	CreatedAt time.Time
	Pending   bool
}

// Post is an article as served by the content API.
// LikesCount is a server-derived aggregate; the client copy lags it and is
// adjusted optimistically between reconciliations.
type Post struct {
	ID            int64
	Title         string
	Excerpt       string
	Content       string
	ImageURL      string
	Category      string
	Author        Author
	CreatedAt     time.Time
	LikesCount    int
	CommentsCount int
	Comments      []Comment
}

// LikeResult is the server's answer to a like toggle.
// LikesCount is only meaningful when HasCount is set.
type LikeResult struct {
	Liked      bool
	LikesCount int
	HasCount   bool
}

// LikeState is the client's current projection of a post's like relation.
type LikeState struct {
	PostID     int64
	Liked      bool
	LikesCount int
}
