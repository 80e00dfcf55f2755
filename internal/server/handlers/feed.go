// internal/server/handlers/feed.go

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"geochat/internal/domain/feed"
	"geochat/internal/domain/geo"
	"geochat/internal/domain/world"
)

// FeedStore is the post and comment persistence the feed handler reads.
// Writes of new posts go through the admitter so the cap is enforced.
type FeedStore interface {
	List(ctx context.Context, feedID string) ([]feed.Post, error)
	LikePost(ctx context.Context, postID, userID string) error
	DeletePostAndComments(ctx context.Context, feedID, postID string) error
	InsertComment(ctx context.Context, c feed.Comment) error
	ListComments(ctx context.Context, postID string) ([]feed.Comment, error)
}

// PostAdmitter inserts a post and enforces the feed's size cap.
type PostAdmitter interface {
	Admit(ctx context.Context, post feed.Post) error
}

// ZoneGetter looks up the zone a feed belongs to.
type ZoneGetter interface {
	GetZone(ctx context.Context, id string) (*world.Zone, error)
}

// FeedHandler handles zone feed HTTP requests
type FeedHandler struct {
	store      FeedStore
	admitter   PostAdmitter
	zones      ZoneGetter
	exitBuffer float64
	notify     func(subject string)
}

// NewFeedHandler creates a new feed handler. exitBufferMeters extends the
// zone boundary for the posting guard so users standing on the edge are
// not rejected by GPS jitter.
func NewFeedHandler(
	store FeedStore,
	admitter PostAdmitter,
	zones ZoneGetter,
	exitBufferMeters float64,
	notify func(subject string),
) *FeedHandler {
	return &FeedHandler{
		store:      store,
		admitter:   admitter,
		zones:      zones,
		exitBuffer: exitBufferMeters,
		notify:     notify,
	}
}

// ListPosts returns a zone feed's posts, newest first
func (h *FeedHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "id")
	if zoneID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing zone ID", nil)
		return
	}

	posts, err := h.store.List(r.Context(), zoneID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list posts", err)
		return
	}

	respondWithJSON(w, http.StatusOK, posts)
}

// CreatePost admits a post into a zone feed. The author must be physically
// inside the zone, within the exit buffer.
func (h *FeedHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	zoneID := chi.URLParam(r, "id")
	if zoneID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing zone ID", nil)
		return
	}

	type createPostRequest struct {
		Text     string    `json:"text"`
		Position geo.Point `json:"position"`
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "Missing post text", nil)
		return
	}

	z, err := h.zones.GetZone(r.Context(), zoneID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get zone", err)
		return
	}
	if z == nil {
		respondWithError(w, http.StatusNotFound, "Zone not found", nil)
		return
	}
	if !z.Contains(req.Position, h.exitBuffer) {
		respondWithError(w, http.StatusForbidden, "You must be inside the zone to post", nil)
		return
	}

	p := feed.Post{
		ID:         uuid.New().String(),
		FeedID:     zoneID,
		AuthorID:   userID,
		AuthorName: userName(r),
		Text:       req.Text,
		Likes:      []string{},
		CreatedAt:  time.Now(),
	}

	if err := h.admitter.Admit(r.Context(), p); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create post", err)
		return
	}

	h.notify("feed." + zoneID + ".changed")
	respondWithJSON(w, http.StatusCreated, p)
}

// DeletePost removes a post and its comments
func (h *FeedHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	zoneID := chi.URLParam(r, "id")
	postID := chi.URLParam(r, "postID")
	if zoneID == "" || postID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing zone or post ID", nil)
		return
	}

	if err := h.store.DeletePostAndComments(r.Context(), zoneID, postID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete post", err)
		return
	}

	h.notify("feed." + zoneID + ".changed")
	respondWithJSON(w, http.StatusOK, map[string]string{"deleted": postID})
}

// LikePost records a like on a post, once per user
func (h *FeedHandler) LikePost(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	zoneID := chi.URLParam(r, "id")
	postID := chi.URLParam(r, "postID")
	if postID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing post ID", nil)
		return
	}

	if err := h.store.LikePost(r.Context(), postID, userID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to like post", err)
		return
	}

	h.notify("feed." + zoneID + ".changed")
	respondWithJSON(w, http.StatusOK, map[string]string{"liked": postID})
}

// ListComments returns a post's comments, oldest first
func (h *FeedHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	if postID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing post ID", nil)
		return
	}

	comments, err := h.store.ListComments(r.Context(), postID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list comments", err)
		return
	}

	respondWithJSON(w, http.StatusOK, comments)
}

// CreateComment adds a comment to a post
func (h *FeedHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	zoneID := chi.URLParam(r, "id")
	postID := chi.URLParam(r, "postID")
	if postID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing post ID", nil)
		return
	}

	type createCommentRequest struct {
		Text string `json:"text"`
	}

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "Missing comment text", nil)
		return
	}

	c := feed.Comment{
		ID:         uuid.New().String(),
		PostID:     postID,
		AuthorID:   userID,
		AuthorName: userName(r),
		Text:       req.Text,
		CreatedAt:  time.Now(),
	}

	if err := h.store.InsertComment(r.Context(), c); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create comment", err)
		return
	}

	h.notify("feed." + zoneID + ".changed")
	respondWithJSON(w, http.StatusCreated, c)
}
