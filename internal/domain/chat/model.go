package chat

import (
	"sort"
	"strings"
	"time"
)

// Conversation is a two-party private channel. The ID is deterministic so
// reopening a conversation between the same participants never duplicates it.
type Conversation struct {
	ID            string               `json:"id"`
	Participants  []string             `json:"participants"` // sorted
	LastSenderID  string               `json:"last_sender_id"`
	LastMessageAt time.Time            `json:"last_message_at"`
	LastViewed    map[string]time.Time `json:"last_viewed"`
	ZoneID        string               `json:"zone_id,omitempty"`
}

// ConversationID returns the deterministic id for a pair of users.
func ConversationID(uidA, uidB string) string {
	return strings.Join(SortedParticipants(uidA, uidB), "_")
}

// SortedParticipants returns the pair in canonical order.
func SortedParticipants(uidA, uidB string) []string {
	ids := []string{uidA, uidB}
	sort.Strings(ids)
	return ids
}

// Message is an append-only entry in a conversation's ordered stream. Delete
// is the only destructive operation.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
