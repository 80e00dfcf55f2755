// internal/adapter/storage/convo_store.go

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"geochat/internal/domain/chat"
)

// ConversationStore implements storage for conversations and their
// ordered message histories.
type ConversationStore struct {
	db *pgxpool.Pool
}

// NewConversationStore creates a new conversation store.
func NewConversationStore(db *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{db: db}
}

// Get retrieves a conversation by ID, or nil when it does not exist.
func (s *ConversationStore) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	query := `
		SELECT id, participants, last_sender_id, last_message_at, last_viewed, zone_id
		FROM conversations
		WHERE id = $1
	`

	var c chat.Conversation
	var lastViewedJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Participants,
		&c.LastSenderID,
		&c.LastMessageAt,
		&lastViewedJSON,
		&c.ZoneID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}

	if err := json.Unmarshal(lastViewedJSON, &c.LastViewed); err != nil {
		return nil, fmt.Errorf("error unmarshaling read receipts: %w", err)
	}

	return &c, nil
}

// Upsert inserts or replaces a conversation.
func (s *ConversationStore) Upsert(ctx context.Context, c chat.Conversation) error {
	lastViewedJSON, err := json.Marshal(c.LastViewed)
	if err != nil {
		return fmt.Errorf("error marshaling read receipts: %w", err)
	}

	query := `
		INSERT INTO conversations (
			id, participants, last_sender_id, last_message_at, last_viewed, zone_id
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = s.db.Exec(
		ctx,
		query,
		c.ID,
		c.Participants,
		c.LastSenderID,
		c.LastMessageAt,
		lastViewedJSON,
		c.ZoneID,
	)
	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}

	return nil
}

// UpdateMeta records the latest sender and timestamp on the conversation.
func (s *ConversationStore) UpdateMeta(ctx context.Context, id, lastSenderID string, lastMessageAt time.Time) error {
	query := `
		UPDATE conversations
		SET last_sender_id = $2, last_message_at = $3
		WHERE id = $1
	`

	if _, err := s.db.Exec(ctx, query, id, lastSenderID, lastMessageAt); err != nil {
		return fmt.Errorf("error updating conversation meta: %w", err)
	}
	return nil
}

// SetLastViewed merges one user's read receipt into the receipt map.
func (s *ConversationStore) SetLastViewed(ctx context.Context, id, userID string, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_viewed = last_viewed || jsonb_build_object($2::text, $3::timestamptz)
		WHERE id = $1
	`

	if _, err := s.db.Exec(ctx, query, id, userID, at); err != nil {
		return fmt.Errorf("error updating read receipt: %w", err)
	}
	return nil
}

// ListForUser returns a user's conversations, most recently active first.
func (s *ConversationStore) ListForUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	query := `
		SELECT id, participants, last_sender_id, last_message_at, last_viewed, zone_id
		FROM conversations
		WHERE $1 = ANY(participants)
		ORDER BY last_message_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var convos []chat.Conversation
	for rows.Next() {
		var c chat.Conversation
		var lastViewedJSON []byte
		err := rows.Scan(
			&c.ID,
			&c.Participants,
			&c.LastSenderID,
			&c.LastMessageAt,
			&lastViewedJSON,
			&c.ZoneID,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		if err := json.Unmarshal(lastViewedJSON, &c.LastViewed); err != nil {
			return nil, fmt.Errorf("error unmarshaling read receipts: %w", err)
		}
		convos = append(convos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return convos, nil
}

// DeleteForZone removes the conversations attached to a zone, with their
// messages, and returns the removed conversation ids.
func (s *ConversationStore) DeleteForZone(ctx context.Context, zoneID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		DELETE FROM conversations
		WHERE zone_id = $1
		RETURNING id
	`, zoneID)
	if err != nil {
		return nil, fmt.Errorf("error deleting conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	for _, id := range ids {
		if _, err := s.db.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
			return nil, fmt.Errorf("error deleting messages: %w", err)
		}
	}

	return ids, nil
}

// MessageStore implements storage for the ordered message stream.
type MessageStore struct {
	db *pgxpool.Pool
}

// NewMessageStore creates a new message store.
func NewMessageStore(db *pgxpool.Pool) *MessageStore {
	return &MessageStore{db: db}
}

// List returns a conversation's messages, oldest first. The tail of this
// ordering is what turn derivation reads.
func (s *MessageStore) List(ctx context.Context, conversationID string) ([]chat.Message, error) {
	query := `
		SELECT id, sender_id, sender_name, text, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return msgs, nil
}

// Append adds a message to the end of the stream.
func (s *MessageStore) Append(ctx context.Context, conversationID string, m chat.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.Exec(ctx, query, m.ID, conversationID, m.SenderID, m.SenderName, m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}
	return nil
}

// Delete removes a single message.
func (s *MessageStore) Delete(ctx context.Context, conversationID, messageID string) error {
	query := `DELETE FROM messages WHERE conversation_id = $1 AND id = $2`

	if _, err := s.db.Exec(ctx, query, conversationID, messageID); err != nil {
		return fmt.Errorf("error deleting message: %w", err)
	}
	return nil
}
