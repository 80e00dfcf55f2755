// internal/server/handlers/convo.go

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"geochat/internal/domain/chat"
	"geochat/internal/service/direct"
)

// ConversationLister lists a user's conversations.
type ConversationLister interface {
	ListForUser(ctx context.Context, userID string) ([]chat.Conversation, error)
}

// ConversationHandler handles direct conversation HTTP requests
type ConversationHandler struct {
	service *direct.Service
	lister  ConversationLister
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(service *direct.Service, lister ConversationLister) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		lister:  lister,
	}
}

// ListConversations returns the caller's conversations, most recent first
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	convos, err := h.lister.ListForUser(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list conversations", err)
		return
	}

	respondWithJSON(w, http.StatusOK, convos)
}

// OpenConversation finds or creates the conversation with a peer
func (h *ConversationHandler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	type openRequest struct {
		PeerID string `json:"peer_id"`
		ZoneID string `json:"zone_id"`
	}

	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PeerID == "" || req.PeerID == userID {
		respondWithError(w, http.StatusBadRequest, "Invalid peer ID", nil)
		return
	}

	convo, err := h.service.Open(r.Context(), userID, req.PeerID, req.ZoneID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to open conversation", err)
		return
	}

	respondWithJSON(w, http.StatusOK, convo)
}

// GetMessages returns a conversation's history with the caller's turn state
func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing conversation ID", nil)
		return
	}

	msgs, err := h.service.Messages(r.Context(), id, userID)
	if errors.Is(err, direct.ErrNotParticipant) {
		respondWithError(w, http.StatusForbidden, "Not a participant", nil)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load messages", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"turn":     chat.TurnFor(msgs, userID),
	})
}

// SendMessage appends a message if it is the caller's turn
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing conversation ID", nil)
		return
	}

	type sendRequest struct {
		Text string `json:"text"`
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "Missing message text", nil)
		return
	}

	msg, err := h.service.Send(r.Context(), id, userID, userName(r), req.Text)
	if errors.Is(err, direct.ErrNotYourTurn) {
		respondWithError(w, http.StatusConflict, "Not your turn", nil)
		return
	}
	if errors.Is(err, direct.ErrNotParticipant) {
		respondWithError(w, http.StatusForbidden, "Not a participant", nil)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to send message", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, msg)
}

// DeleteMessage removes a single message from the history
func (h *ConversationHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")
	if id == "" || messageID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing conversation or message ID", nil)
		return
	}

	err := h.service.Delete(r.Context(), id, messageID, userID)
	if errors.Is(err, direct.ErrNotParticipant) {
		respondWithError(w, http.StatusForbidden, "Not a participant", nil)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete message", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"deleted": messageID})
}

// MarkViewed records a read receipt for the caller
func (h *ConversationHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing conversation ID", nil)
		return
	}

	h.service.MarkViewed(id, userID)
	respondWithJSON(w, http.StatusAccepted, map[string]string{"viewed": id})
}
