package feed

import (
	"time"
)

// Post is an item in a zone's bounded feed. Destroyed either by its author
// or by the rolling evictor.
type Post struct {
	ID         string    `json:"id"`
	FeedID     string    `json:"feed_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Likes      []string  `json:"likes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Comment is a sub-resource of a post; deleted together with it.
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
