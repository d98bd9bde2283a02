package rest

import (
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/notification"
	"github.com/osa030/sonora/internal/app/session"
	"github.com/osa030/sonora/internal/infra/ytbridge"
)

const wsWriteTimeout = 5 * time.Second

// InitialState is the first message on a state stream.
type InitialState struct {
	State   session.State        `json:"state"`
	Library session.LibraryState `json:"library"`
}

// wsStream adapts a websocket connection to notification.Stream.
type wsStream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(n)
}

// handleStateStream streams the caller's session notifications until the
// client goes away or the session ends.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Debug().Err(err).Msg("rest: state stream upgrade failed")
		return
	}
	defer conn.Close()

	userID := m.UserID()
	if err := s.registry.Connect(userID); err != nil {
		zlog.Warn().Err(err).Msgf("rest: state stream for unknown listener: user=%s", userID)
		return
	}
	defer s.registry.Disconnect(userID)

	notifications := m.Notifications()
	stream := &wsStream{conn: conn}
	subscriptionID := notifications.Subscribe(stream)
	defer notifications.Unsubscribe(subscriptionID)

	initial := &notification.Notification{
		Type:    session.NotificationInitial,
		Payload: InitialState{State: m.State(), Library: m.LibraryState()},
	}
	if err := notifications.Send(subscriptionID, initial); err != nil {
		zlog.Debug().Err(err).Msg("rest: failed to send initial state")
		return
	}

	// Inbound messages are ignored; reading surfaces the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-closed:
	case <-m.Done():
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"),
			time.Now().Add(wsWriteTimeout))
	case <-r.Context().Done():
	}
}

// handlePlayerBridge attaches the caller's embedded player page to its
// session's player bridge.
func (s *Server) handlePlayerBridge(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Debug().Err(err).Msg("rest: player bridge upgrade failed")
		return
	}
	defer conn.Close()

	userID := m.UserID()
	if err := s.registry.Connect(userID); err != nil {
		zlog.Warn().Err(err).Msgf("rest: player bridge for unknown listener: user=%s", userID)
		return
	}
	defer s.registry.Disconnect(userID)

	err = s.players.Get(userID).Attach(r.Context(), conn)
	switch {
	case err == nil:
	case errors.Is(err, ytbridge.ErrReplaced):
		zlog.Debug().Msgf("rest: player page replaced: user=%s", userID)
	default:
		zlog.Info().Err(err).Msgf("rest: player page disconnected: user=%s", userID)
	}
}
