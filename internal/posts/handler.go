// Package posts serves the post feed. Writes require an authenticated
// caller; reads work anonymously and are personalised when a caller is known.
package posts

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/auth"
	"github.com/ayush/socialgate/internal/models"
	"github.com/ayush/socialgate/internal/request"
)

// FeedLimit caps the number of posts returned by List.
const FeedLimit = 50

// PostStore defines the interface for post persistence.
type PostStore interface {
	Insert(ctx context.Context, post *models.Post) (string, error)
	ListRecent(ctx context.Context, limit int64) ([]models.Post, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
}

// Handler holds post HTTP handlers.
type Handler struct {
	posts    PostStore
	identity func(ctx context.Context) (auth.Identity, bool)
}

func NewHandler(posts PostStore, identity func(ctx context.Context) (auth.Identity, bool)) *Handler {
	return &Handler{posts: posts, identity: identity}
}

// Create stores a post authored by the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) error {
	caller, ok := h.identity(r.Context())
	if !ok {
		return auth.ErrTokenMissing
	}

	var req models.CreatePostRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	post := &models.Post{
		AuthorID: caller.ID,
		Author:   caller.Username,
		Content:  req.Content,
		MediaKey: req.MediaKey,
	}
	if _, err := h.posts.Insert(r.Context(), post); err != nil {
		return err
	}
	slog.Info("Post created", "user_id", caller.ID, "post_id", post.ID.Hex())

	writeJSON(w, http.StatusCreated, models.FeedItem{Post: *post, Own: true})
	return nil
}

// List returns the most recent posts. Authenticated callers see which posts
// are their own.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) error {
	posts, err := h.posts.ListRecent(r.Context(), FeedLimit)
	if err != nil {
		return err
	}

	caller, known := h.identity(r.Context())
	feed := models.Feed{Posts: make([]models.FeedItem, 0, len(posts))}
	if known {
		feed.Viewer = caller.Username
	}
	for _, p := range posts {
		feed.Posts = append(feed.Posts, models.FeedItem{Post: p, Own: known && p.AuthorID == caller.ID})
	}

	writeJSON(w, http.StatusOK, feed)
	return nil
}

// Get returns a single post.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) error {
	post, err := h.posts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if ae, ok := apperr.As(err); ok && ae.Code == apperr.CodeNotFound {
			return apperr.NotFound("Post not found").Wrap(err)
		}
		return err
	}

	caller, known := h.identity(r.Context())
	writeJSON(w, http.StatusOK, models.FeedItem{Post: *post, Own: known && post.AuthorID == caller.ID})
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
