package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a single post stored in MongoDB.
type Post struct {
	ID        primitive.ObjectID `json:"id"         bson:"_id,omitempty"`
	AuthorID  string             `json:"author_id"  bson:"author_id"`
	Author    string             `json:"author"     bson:"author"`
	Content   string             `json:"content"    bson:"content"`
	MediaKey  string             `json:"media_key,omitempty" bson:"media_key,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// CreatePostRequest is the JSON body for POST /api/posts.
type CreatePostRequest struct {
	Content  string `json:"content"   validate:"required,max=500"`
	MediaKey string `json:"media_key" validate:"omitempty,max=200"`
}

// FeedItem is a post as seen by a particular viewer.
type FeedItem struct {
	Post
	Own bool `json:"own"`
}

// Feed is the response of GET /api/posts.
type Feed struct {
	Viewer string     `json:"viewer,omitempty"`
	Posts  []FeedItem `json:"posts"`
}

// Media describes an uploaded object.
type Media struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}
