package direct

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"geochat/internal/domain/chat"
	"geochat/internal/livequery"
)

var (
	// ErrNotYourTurn is returned by Send when the ordered history says the
	// local user spoke last.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrNotParticipant is returned when the caller is not one of the
	// conversation's two participants, or the conversation does not exist.
	ErrNotParticipant = errors.New("not a participant of this conversation")
)

const channelRefreshTimeout = 10 * time.Second

// ConversationStore persists conversation metadata.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*chat.Conversation, error)
	Upsert(ctx context.Context, convo chat.Conversation) error
	UpdateMeta(ctx context.Context, id, lastSenderID string, lastMessageAt time.Time) error
	SetLastViewed(ctx context.Context, id, userID string, at time.Time) error
	ListForUser(ctx context.Context, userID string) ([]chat.Conversation, error)
}

// MessageStore persists the ordered message history of a conversation.
type MessageStore interface {
	List(ctx context.Context, conversationID string) ([]chat.Message, error)
	Append(ctx context.Context, conversationID string, msg chat.Message) error
	Delete(ctx context.Context, conversationID, messageID string) error
}

// Service implements one-to-one conversations whose send permission is
// derived from the message history rather than stored as its own field.
type Service struct {
	convos   ConversationStore
	messages MessageStore
	feed     livequery.ChangeFeed
	notify   func(subject string)
	viewed   *cache.Cache
	log      *logrus.Entry

	mu        sync.Mutex
	sendLocks map[string]*sync.Mutex
}

// NewService creates a conversation service. notify publishes a change
// signal after every mutation so watchers refetch.
func NewService(
	convos ConversationStore,
	messages MessageStore,
	feed livequery.ChangeFeed,
	notify func(subject string),
	log *logrus.Entry,
) *Service {
	return &Service{
		convos:    convos,
		messages:  messages,
		feed:      feed,
		notify:    notify,
		viewed:    cache.New(10*time.Second, time.Minute),
		log:       log,
		sendLocks: make(map[string]*sync.Mutex),
	}
}

// Open finds or creates the conversation between two users. The id is
// derived from the sorted participant pair, so both sides converge on the
// same conversation no matter who opens first.
func (s *Service) Open(ctx context.Context, userID, peerID, zoneID string) (*chat.Conversation, error) {
	id := chat.ConversationID(userID, peerID)

	convo, err := s.convos.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading conversation: %w", err)
	}
	if convo != nil {
		return convo, nil
	}

	created := chat.Conversation{
		ID:           id,
		Participants: chat.SortedParticipants(userID, peerID),
		ZoneID:       zoneID,
		LastViewed:   map[string]time.Time{},
	}
	if err := s.convos.Upsert(ctx, created); err != nil {
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}
	return &created, nil
}

// authorize verifies the user is one of the conversation's participants.
func (s *Service) authorize(ctx context.Context, conversationID, userID string) error {
	convo, err := s.convos.Get(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("error loading conversation: %w", err)
	}
	if convo == nil {
		return ErrNotParticipant
	}
	for _, p := range convo.Participants {
		if p == userID {
			return nil
		}
	}
	return ErrNotParticipant
}

// sendLock returns the per-conversation lock that makes the turn check and
// the append atomic against other in-process sends.
func (s *Service) sendLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sendLocks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.sendLocks[conversationID] = l
	}
	return l
}

// Messages returns the ordered history, oldest first. Only a participant
// may read it.
func (s *Service) Messages(ctx context.Context, conversationID, userID string) ([]chat.Message, error) {
	if err := s.authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.List(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error loading messages: %w", err)
	}
	return msgs, nil
}

// Turn derives whose turn it is from the stored history.
func (s *Service) Turn(ctx context.Context, conversationID, userID string) (chat.TurnState, error) {
	msgs, err := s.Messages(ctx, conversationID, userID)
	if err != nil {
		return "", err
	}
	return chat.TurnFor(msgs, userID), nil
}

// Send appends a message after re-deriving the turn against current
// history. Sends on one conversation are serialized so the turn check and
// the append are atomic: without that, two concurrent sends by the same
// user could both see the turn free and append back to back. The metadata
// update is best effort: the message append is the source of truth and a
// failed meta write never loses a message.
func (s *Service) Send(ctx context.Context, conversationID, senderID, senderName, text string) (*chat.Message, error) {
	if err := s.authorize(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	l := s.sendLock(conversationID)
	l.Lock()
	defer l.Unlock()

	msgs, err := s.messages.List(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error loading messages: %w", err)
	}
	if chat.TurnFor(msgs, senderID) != chat.TurnMine {
		return nil, ErrNotYourTurn
	}

	msg := chat.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		CreatedAt:  time.Now(),
	}
	if err := s.messages.Append(ctx, conversationID, msg); err != nil {
		return nil, fmt.Errorf("error sending message: %w", err)
	}

	if err := s.convos.UpdateMeta(ctx, conversationID, senderID, msg.CreatedAt); err != nil {
		s.log.WithError(err).WithField("conversation", conversationID).
			Warn("error updating conversation meta")
	}

	s.notify(changeSubject(conversationID))
	return &msg, nil
}

// Delete removes a single message from the history. Deleting the tail
// flips the derived turn back to the deleted message's sender.
func (s *Service) Delete(ctx context.Context, conversationID, messageID, userID string) error {
	if err := s.authorize(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.messages.Delete(ctx, conversationID, messageID); err != nil {
		return fmt.Errorf("error deleting message: %w", err)
	}
	s.notify(changeSubject(conversationID))
	return nil
}

// MarkViewed records a read receipt, debounced so a burst of renders
// collapses into one write. The write runs fire and forget: a receipt is
// cosmetic and never blocks or fails the caller.
func (s *Service) MarkViewed(conversationID, userID string) {
	key := conversationID + "|" + userID
	if _, found := s.viewed.Get(key); found {
		return
	}
	s.viewed.SetDefault(key, struct{}{})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.authorize(ctx, conversationID, userID); err != nil {
			s.log.WithError(err).WithField("conversation", conversationID).
				Warn("read receipt rejected")
			return
		}
		if err := s.convos.SetLastViewed(ctx, conversationID, userID, time.Now()); err != nil {
			s.log.WithError(err).WithField("conversation", conversationID).
				Warn("error saving read receipt")
		}
	}()
}

// Watch subscribes to the conversation's change signal.
func (s *Service) Watch(conversationID string, fn func()) (livequery.Subscription, error) {
	return s.feed.Subscribe(changeSubject(conversationID), fn)
}

func changeSubject(conversationID string) string {
	return "convo." + conversationID + ".changed"
}
