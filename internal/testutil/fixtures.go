package testutil

import (
	"fmt"
	"sync"
	"time"

	"techpost/internal/engage"
)

// NewPost returns a post with the given like count and n comments, newest
// first, with comment IDs n down to 1.
func NewPost(id int64, likes, n int) engage.Post {
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	comments := make([]engage.Comment, n)
	for i := range comments {
		cid := int64(n - i)
		comments[i] = engage.Comment{
			ID:        cid,
			PostID:    id,
			Content:   fmt.Sprintf("comment %d", cid),
			Author:    engage.Author{Name: "reader"},
			CreatedAt: base.Add(time.Duration(cid) * time.Hour),
		}
	}
	return engage.Post{
		ID:            id,
		Title:         fmt.Sprintf("Post %d", id),
		Content:       "Body",
		Category:      "tech",
		Author:        engage.Author{Name: "editor"},
		CreatedAt:     base,
		LikesCount:    likes,
		CommentsCount: n,
		Comments:      comments,
	}
}

// FixtureTime is where every fixture Clock starts.
var FixtureTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// Clock is an engage.Clock that only moves on Tick.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func FixedClock() *Clock {
	return &Clock{now: FixtureTime}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Tick moves the clock forward by d and returns the new time.
func (c *Clock) Tick(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// LocalIDs hands out pending comment IDs local-1, local-2, ...
type LocalIDs struct {
	mu sync.Mutex
	n  int
}

func NewLocalIDs() *LocalIDs { return &LocalIDs{} }

func (g *LocalIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("local-%d", g.n)
}

var (
	_ engage.Clock       = (*Clock)(nil)
	_ engage.IDGenerator = (*LocalIDs)(nil)
)
