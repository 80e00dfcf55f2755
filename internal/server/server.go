// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"geochat/internal/config"
	"geochat/internal/server/handlers"
	"geochat/internal/service/direct"
)

// Deps collects the wired services and stores the router exposes.
type Deps struct {
	Zones        handlers.ZoneStore
	ZoneGetter   handlers.ZoneGetter
	Shouts       handlers.ShoutStore
	Feed         handlers.FeedStore
	FeedCleaner  handlers.ZoneFeedCleaner
	Admitter     handlers.PostAdmitter
	Inventory    handlers.InventoryReader
	Convos       handlers.ConversationLister
	Direct       *direct.Service
	Notify       func(subject string)
	NearbyDeps   handlers.NearbySessionDeps
	NearbyConfig config.NearbyConfig
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Name"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	zoneHandler := handlers.NewZoneHandler(deps.Zones, deps.FeedCleaner, deps.NearbyConfig.ZoneLifetime, deps.Notify)
	shoutHandler := handlers.NewShoutHandler(deps.Shouts, deps.NearbyConfig.ShoutLifetime, deps.Notify)
	feedHandler := handlers.NewFeedHandler(deps.Feed, deps.Admitter, deps.ZoneGetter, deps.NearbyConfig.ZoneExitBufferMeters, deps.Notify)
	convoHandler := handlers.NewConversationHandler(deps.Direct, deps.Convos)
	inventoryHandler := handlers.NewInventoryHandler(deps.Inventory)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			// Zones API
			r.Route("/zones", func(r chi.Router) {
				r.Post("/", zoneHandler.CreateZone)
				r.Get("/{id}", zoneHandler.GetZone)
				r.Delete("/{id}", zoneHandler.DeleteZone)

				// Zone feed
				r.Route("/{id}/posts", func(r chi.Router) {
					r.Get("/", feedHandler.ListPosts)
					r.Post("/", feedHandler.CreatePost)
					r.Delete("/{postID}", feedHandler.DeletePost)
					r.Post("/{postID}/like", feedHandler.LikePost)
					r.Get("/{postID}/comments", feedHandler.ListComments)
					r.Post("/{postID}/comments", feedHandler.CreateComment)
				})
			})

			// Shouts API
			r.Route("/shouts", func(r chi.Router) {
				r.Post("/", shoutHandler.CreateShout)
				r.Delete("/{id}", shoutHandler.DeleteShout)
				r.Post("/{id}/like", shoutHandler.LikeShout)
				r.Delete("/{id}/like", shoutHandler.UnlikeShout)
			})

			// Conversations API
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", convoHandler.ListConversations)
				r.Post("/", convoHandler.OpenConversation)
				r.Get("/{id}/messages", convoHandler.GetMessages)
				r.Post("/{id}/messages", convoHandler.SendMessage)
				r.Delete("/{id}/messages/{messageID}", convoHandler.DeleteMessage)
				r.Post("/{id}/viewed", convoHandler.MarkViewed)
			})

			// Inventory API
			r.Get("/inventory", inventoryHandler.GetInventory)
		})
	})

	// WebSocket endpoints for real-time communications
	router.Get("/ws/nearby", handlers.NearbyWebSocketHandler(deps.NearbyDeps))
	router.Get("/ws/conversations/{id}", handlers.ConversationWebSocketHandler(deps.Direct, deps.NearbyDeps.Log))

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
