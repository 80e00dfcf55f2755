// internal/server/handlers/websocket.go

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"geochat/internal/domain/geo"
	"geochat/internal/domain/item"
	"geochat/internal/domain/world"
	"geochat/internal/livequery"
	"geochat/internal/service/nearby"
	"geochat/internal/service/roam"
)

// NearbySessionDeps wires one websocket connection into a live nearby
// session: per-connection views over the shared store plus a private
// roaming item simulation.
type NearbySessionDeps struct {
	Feed         livequery.ChangeFeed
	ZoneQuerier  livequery.RangeQuerier
	ShoutQuerier livequery.RangeQuerier
	Inventory    roam.Inventory

	ZoneRadiusMeters        float64
	ShoutRadiusMeters       float64
	ShoutLifetime           time.Duration
	RecenterThresholdMeters float64

	RoamConfig roam.Config
	RoamTable  item.Table
	StateStore func(userID string) (roam.StateStore, error)

	Log *logrus.Entry
}

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64

	// Cadence of roaming item position pushes
	RoamPushPeriod time.Duration
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
		RoamPushPeriod: time.Second,
	}
}

// WebSocketUpgrader is used to upgrade HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// nearbyClient is one connected session.
type nearbyClient struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
	svc    *nearby.Service
	sim    *roam.Simulator
	cancel context.CancelFunc
	log    *logrus.Entry
}

// NearbyWebSocketHandler streams live zone, shout, and roaming item state
// to a moving client. Inbound frames carry position fixes, radius changes,
// and collect attempts.
func NearbyWebSocketHandler(deps NearbySessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing user ID", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Log.WithError(err).Warn("error upgrading to websocket")
			return
		}

		log := deps.Log.WithField("user", userID)
		client := &nearbyClient{
			conn:   conn,
			send:   make(chan []byte, 256),
			userID: userID,
			log:    log,
		}

		client.svc = nearby.NewService(
			deps.Feed,
			[]nearby.Source{
				{
					Name:         "zones",
					Subject:      "geo.zones.changed",
					RadiusMeters: deps.ZoneRadiusMeters,
					Querier:      deps.ZoneQuerier,
				},
				{
					Name:         "shouts",
					Subject:      "geo.shouts.changed",
					RadiusMeters: deps.ShoutRadiusMeters,
					Lifetime:     deps.ShoutLifetime,
					Querier:      deps.ShoutQuerier,
				},
			},
			nearby.Config{RecenterThresholdMeters: deps.RecenterThresholdMeters},
			log,
		)
		client.svc.OnUpdate(func(name string, docs []livequery.Document) {
			client.push(map[string]interface{}{
				"type":  name,
				"items": docs,
				"time":  time.Now(),
			})
		})

		state, err := deps.StateStore(userID)
		if err != nil {
			log.WithError(err).Error("error opening roam state")
			conn.Close()
			return
		}

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		sim, err := roam.NewSimulator(
			deps.RoamConfig,
			deps.RoamTable,
			client.currentZones,
			client.svc.Position,
			state,
			deps.Inventory,
			rng,
			log,
		)
		if err != nil {
			log.WithError(err).Error("error creating simulator")
			conn.Close()
			return
		}
		client.sim = sim

		ctx, cancel := context.WithCancel(context.Background())
		client.cancel = cancel
		sim.Start(ctx)

		go client.writePump(ctx)
		go client.roamPump(ctx)
		go client.readPump()

		log.Info("nearby session opened")
	}
}

// currentZones adapts the live zone view into the simulator's forbidden
// circles.
func (c *nearbyClient) currentZones() []world.Zone {
	docs := c.svc.Results("zones")
	zones := make([]world.Zone, 0, len(docs))
	for _, doc := range docs {
		if z, ok := doc.(world.Zone); ok {
			zones = append(zones, z)
		}
	}
	return zones
}

func (c *nearbyClient) push(payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.WithError(err).Warn("error marshaling frame")
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer; drop the frame rather than block the session.
	}
}

// readPump pumps inbound frames into the session
func (c *nearbyClient) readPump() {
	config := DefaultWebSocketConfig()

	defer c.close()

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
			break
		}

		c.processIncomingFrame(message)
	}
}

// writePump pumps outbound frames to the WebSocket connection
func (c *nearbyClient) writePump(ctx context.Context) {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued frames to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// roamPump pushes roaming item positions at a fixed cadence
func (c *nearbyClient) roamPump(ctx context.Context) {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.RoamPushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.sim.Snapshot()
			c.push(map[string]interface{}{
				"type":        "roaming",
				"items":       snap.Items,
				"collectible": snap.Collectible,
				"time":        time.Now(),
			})
		}
	}
}

// processIncomingFrame dispatches an inbound frame by type
func (c *nearbyClient) processIncomingFrame(message []byte) {
	type frame struct {
		Type         string     `json:"type"`
		Position     *geo.Point `json:"position"`
		Source       string     `json:"source"`
		RadiusMeters float64    `json:"radius_meters"`
	}

	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		c.log.WithError(err).Warn("error parsing frame")
		return
	}

	switch f.Type {
	case "position":
		// A null position is a degraded GPS signal, not an error.
		c.svc.SetPosition(f.Position)

	case "radius":
		if f.Source != "" && f.RadiusMeters > 0 {
			c.svc.SetSourceRadius(f.Source, f.RadiusMeters)
		}

	case "collect":
		c.handleCollect()

	default:
		c.log.WithField("type", f.Type).Warn("unknown frame type")
	}
}

// handleCollect attempts to collect the active roaming item
func (c *nearbyClient) handleCollect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collected, err := c.sim.Collect(ctx, c.userID)
	switch {
	case errors.Is(err, roam.ErrNoItem), errors.Is(err, roam.ErrOutOfRange), errors.Is(err, roam.ErrNoPosition):
		c.push(map[string]interface{}{
			"type":   "collect_failed",
			"reason": err.Error(),
			"time":   time.Now(),
		})
	case err != nil:
		c.log.WithError(err).Error("error collecting item")
		c.push(map[string]interface{}{
			"type":   "collect_failed",
			"reason": "internal error",
			"time":   time.Now(),
		})
	default:
		c.push(map[string]interface{}{
			"type": "collected",
			"item": collected,
			"time": time.Now(),
		})
	}
}

// close tears down the session: simulator ticks, live views, connection.
// The send channel is left open; the write pump exits on context cancel
// and late pushes from in-flight callbacks land in a drained channel.
func (c *nearbyClient) close() {
	c.cancel()
	c.svc.Close()
	c.conn.Close()
	c.log.Info("nearby session closed")
}
