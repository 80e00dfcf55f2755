package direct

import (
	"context"
	"sync"

	"geochat/internal/domain/chat"
	"geochat/internal/livequery"
)

// Channel is one user's live session on a conversation. It layers a
// transient "sending" state over the derived turn: after a send the
// channel reports TurnSending until its own message shows up at the tail
// of a fresh snapshot, so the caller never sees a premature "their turn".
type Channel struct {
	service        *Service
	conversationID string
	userID         string
	userName       string

	mu       sync.Mutex
	messages []chat.Message
	sending  bool
	sub      livequery.Subscription
	onChange func()
}

// OpenChannel loads the history and subscribes to the conversation's
// change signal. onChange fires after every refreshed snapshot. A caller
// who is not a participant gets ErrNotParticipant from the initial load.
func (s *Service) OpenChannel(ctx context.Context, conversationID, userID, userName string, onChange func()) (*Channel, error) {
	ch := &Channel{
		service:        s,
		conversationID: conversationID,
		userID:         userID,
		userName:       userName,
		onChange:       onChange,
	}
	if err := ch.refresh(ctx); err != nil {
		return nil, err
	}

	sub, err := s.Watch(conversationID, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), channelRefreshTimeout)
		defer cancel()
		if err := ch.refresh(refreshCtx); err != nil {
			s.log.WithError(err).WithField("conversation", conversationID).
				Warn("error refreshing conversation")
		}
	})
	if err != nil {
		return nil, err
	}
	ch.sub = sub
	return ch, nil
}

// Messages returns the current snapshot, oldest first.
func (c *Channel) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// State returns the effective turn, with the in-flight send overlay.
func (c *Channel) State() chat.TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sending {
		return chat.TurnSending
	}
	return chat.TurnFor(c.messages, c.userID)
}

// Send performs the turn-checked append. The sending overlay is set before
// the write and cleared either by a failed send or by the echo of the
// message in a refreshed snapshot.
func (c *Channel) Send(ctx context.Context, text string) (*chat.Message, error) {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, ErrNotYourTurn
	}
	if chat.TurnFor(c.messages, c.userID) != chat.TurnMine {
		c.mu.Unlock()
		return nil, ErrNotYourTurn
	}
	c.sending = true
	c.mu.Unlock()

	msg, err := c.service.Send(ctx, c.conversationID, c.userID, c.userName, text)
	if err != nil {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		return nil, err
	}
	return msg, nil
}

// MarkViewed records the debounced read receipt for this user.
func (c *Channel) MarkViewed() {
	c.service.MarkViewed(c.conversationID, c.userID)
}

// Close tears down the change subscription.
func (c *Channel) Close() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (c *Channel) refresh(ctx context.Context) error {
	msgs, err := c.service.Messages(ctx, c.conversationID, c.userID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.messages = msgs
	if c.sending && len(msgs) > 0 && msgs[len(msgs)-1].SenderID == c.userID {
		c.sending = false
	}
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}
