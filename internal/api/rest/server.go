// Package rest provides the HTTP and websocket API over the per-user
// sessions.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/osa030/sonora/internal/app/session"
	"github.com/osa030/sonora/internal/app/session/registry"
	"github.com/osa030/sonora/internal/infra/ytbridge"
)

// Config configures the API.
type Config struct {
	JWTSecret      []byte
	AdminToken     string
	AllowedOrigins []string
}

// Server serves the API.
type Server struct {
	config   Config
	registry *registry.Registry
	players  *ytbridge.Hub
	upgrader websocket.Upgrader
}

// New creates a server. players provides the bridge each user's page
// attaches to.
func New(cfg Config, reg *registry.Registry, players *ytbridge.Hub) *Server {
	s := &Server{
		config:   cfg,
		registry: reg,
		players:  players,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(cfg.AllowedOrigins, origin)
		},
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(cors(s.config.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "listeners": s.registry.Count()})
	})

	r.Group(func(r chi.Router) {
		r.Use(optionalAuth(s.config.JWTSecret))

		r.Get("/ws/state", s.handleStateStream)
		r.Get("/ws/player", s.handlePlayerBridge)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", s.handleMe)
			r.Get("/state", s.handleState)

			r.Route("/player", func(r chi.Router) {
				r.Post("/play", s.handlePlay)
				r.Post("/history/{index}/play", s.handlePlayFromHistory)
				r.Post("/toggle", s.command(func(m *session.Manager) error { return m.TogglePlay() }))
				r.Post("/next", s.command(func(m *session.Manager) error { return m.Next() }))
				r.Post("/previous", s.command(func(m *session.Manager) error { return m.Previous() }))
				r.Post("/mute", s.command(func(m *session.Manager) error { m.ToggleMute(); return nil }))
				r.Post("/shuffle", s.command(func(m *session.Manager) error { m.ToggleShuffle(); return nil }))
				r.Post("/repeat", s.command(func(m *session.Manager) error { m.CycleRepeat(); return nil }))
				r.Post("/seek", s.handleSeek)
				r.Put("/volume", s.handleVolume)
			})

			r.Route("/queue", func(r chi.Router) {
				r.Post("/", s.handleEnqueue)
				r.Post("/next", s.handlePlayNext)
				r.Put("/", s.handleReorder)
				r.Delete("/", s.command(func(m *session.Manager) error { m.ClearQueue(); return nil }))
				r.Delete("/{trackID}", s.handleRemoveFromQueue)
			})

			r.Route("/library", func(r chi.Router) {
				r.Get("/", s.handleLibrary)
				r.Post("/tracks", s.handleAddToLibrary)
				r.Delete("/tracks/{trackID}", s.handleDeleteFromLibrary)
				r.Post("/tracks/{trackID}/like", s.handleToggleLike)
			})

			r.Route("/playlists", func(r chi.Router) {
				r.Post("/", s.handleCreatePlaylist)
				r.Delete("/{playlistID}", s.handleDeletePlaylist)
				r.Post("/{playlistID}/tracks", s.handleAddToPlaylist)
				r.Delete("/{playlistID}/tracks/{trackID}", s.handleRemoveFromPlaylist)
			})

			r.Get("/search", s.handleSearch)
			r.Get("/lyrics/{trackID}", s.handleLyrics)
			r.Put("/view", s.handleSetView)
			r.Put("/theme", s.handleSetTheme)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly(s.config.AdminToken))
		r.Get("/listeners", s.handleListListeners)
		r.Delete("/listeners/{userID}", s.handleKickListener)
	})

	return r
}

// session returns the caller's session, starting it on first use.
func (s *Server) session(r *http.Request) (*session.Manager, error) {
	id := identityFrom(r.Context())
	return s.registry.Join(r.Context(), id.UserID, id.Name)
}

// command adapts a session command that returns no payload; the response is
// the resulting state.
func (s *Server) command(fn func(m *session.Manager) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := s.session(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := fn(m); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m.State())
	}
}
