package rest

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// AnonymousListenerID addresses the shared anonymous session in admin paths.
const AnonymousListenerID = "-"

// ListenerInfo describes a live session for administrators.
type ListenerInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Connections int    `json:"connections"`
	JoinedAt    string `json:"joinedAt"`
	LastSeenAt  string `json:"lastSeenAt"`
}

type listenersResponse struct {
	Listeners []ListenerInfo `json:"listeners"`
}

func (s *Server) handleListListeners(w http.ResponseWriter, _ *http.Request) {
	sessions := s.registry.All()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].JoinedAt.Before(sessions[j].JoinedAt) })

	infos := make([]ListenerInfo, len(sessions))
	for i, l := range sessions {
		id := l.UserID
		if l.Anonymous() {
			id = AnonymousListenerID
		}
		infos[i] = ListenerInfo{
			UserID:      id,
			DisplayName: l.DisplayName,
			Connections: l.Connections,
			JoinedAt:    l.JoinedAt.Format(time.RFC3339),
			LastSeenAt:  l.LastSeenAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, listenersResponse{Listeners: infos})
}

func (s *Server) handleKickListener(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == AnonymousListenerID {
		userID = ""
	}
	if err := s.registry.Kick(userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
