// internal/server/handlers/ws_convo.go

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"geochat/internal/service/direct"
)

// convoClient is one user's live session on a conversation.
type convoClient struct {
	conn    *websocket.Conn
	send    chan []byte
	channel *direct.Channel
	log     *logrus.Entry
}

// ConversationWebSocketHandler streams a conversation's snapshot and turn
// state to one participant. Inbound frames carry sends and read receipts.
func ConversationWebSocketHandler(service *direct.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "id")
		if conversationID == "" {
			http.Error(w, "Missing conversation ID", http.StatusBadRequest)
			return
		}
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing user ID", http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("user_name")
		if name == "" {
			name = "anonymous"
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("error upgrading to websocket")
			return
		}

		client := &convoClient{
			conn: conn,
			send: make(chan []byte, 64),
			log:  log.WithFields(logrus.Fields{"conversation": conversationID, "user": userID}),
		}

		openCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		channel, err := service.OpenChannel(openCtx, conversationID, userID, name, func() {
			client.pushSnapshot()
		})
		cancel()
		if errors.Is(err, direct.ErrNotParticipant) {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "not a participant"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}
		if err != nil {
			client.log.WithError(err).Error("error opening channel")
			conn.Close()
			return
		}
		client.channel = channel

		ctx, cancelSession := context.WithCancel(context.Background())
		go client.writePump(ctx)
		go client.readPump(cancelSession)

		client.pushSnapshot()
	}
}

// pushSnapshot sends the current message list and effective turn state.
func (c *convoClient) pushSnapshot() {
	payload := map[string]interface{}{
		"type":     "snapshot",
		"messages": c.channel.Messages(),
		"turn":     c.channel.State(),
		"time":     time.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.WithError(err).Warn("error marshaling snapshot")
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *convoClient) readPump(cancel context.CancelFunc) {
	config := DefaultWebSocketConfig()

	// The send channel stays open; the write pump exits on context cancel
	// and a late snapshot from an in-flight refresh lands harmlessly.
	defer func() {
		cancel()
		c.channel.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket error")
			}
			return
		}

		c.processFrame(message)
	}
}

func (c *convoClient) writePump(ctx context.Context) {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *convoClient) processFrame(message []byte) {
	type frame struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}

	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		c.log.WithError(err).Warn("error parsing frame")
		return
	}

	switch f.Type {
	case "message":
		if f.Text == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := c.channel.Send(ctx, f.Text)
		cancel()
		if errors.Is(err, direct.ErrNotYourTurn) {
			c.pushError("not your turn")
		} else if err != nil {
			c.log.WithError(err).Warn("error sending message")
			c.pushError("send failed")
		}
		// The snapshot refresh triggered by the change signal delivers
		// the echo; sending nothing here keeps one source of truth.

	case "viewed":
		c.channel.MarkViewed()

	default:
		c.log.WithField("type", f.Type).Warn("unknown frame type")
	}
}

func (c *convoClient) pushError(reason string) {
	data, _ := json.Marshal(map[string]interface{}{
		"type":   "error",
		"reason": reason,
		"time":   time.Now(),
	})
	select {
	case c.send <- data:
	default:
	}
}
