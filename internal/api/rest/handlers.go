package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/osa030/sonora/internal/app/session"
	"github.com/osa030/sonora/internal/domain/track"
	"github.com/osa030/sonora/internal/domain/view"
)

type meResponse struct {
	UserID        string `json:"userId"`
	Name          string `json:"name,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

type playRequest struct {
	TrackID string       `json:"trackId"`
	Track   *track.Track `json:"track,omitempty"`
	View    view.View    `json:"view"`
}

type seekRequest struct {
	PositionMs int64 `json:"positionMs"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

type trackRequest struct {
	Track *track.Track `json:"track"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

type playlistRequest struct {
	Name string `json:"name"`
}

type playlistTrackRequest struct {
	TrackID string `json:"trackId"`
}

type viewRequest struct {
	View view.View `json:"view"`
}

type themeRequest struct {
	Theme string `json:"theme"`
}

type likeResponse struct {
	TrackID string `json:"trackId"`
	Liked   bool   `json:"liked"`
}

type searchResponse struct {
	Query   string        `json:"query"`
	Results []track.Track `json:"results"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	writeJSON(w, http.StatusOK, meResponse{UserID: id.UserID, Name: id.Name, Authenticated: id.UserID != ""})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := viewOrDefault(req.View)
	if err != nil {
		writeError(w, err)
		return
	}

	s.command(func(m *session.Manager) error {
		if req.Track != nil {
			if req.Track.ID == "" {
				return badRequest(errors.New("track id is required"))
			}
			return m.PlayTrack(*req.Track, v)
		}
		if req.TrackID == "" {
			return badRequest(errors.New("trackId or track is required"))
		}
		return m.Play(req.TrackID, v)
	})(w, r)
}

func (s *Server) handlePlayFromHistory(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, badRequest(errors.Wrap(err, "invalid history index")))
		return
	}
	s.command(func(m *session.Manager) error {
		if err := m.PlayFromHistory(i); err != nil {
			return badRequest(err)
		}
		return nil
	})(w, r)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PositionMs < 0 {
		writeError(w, badRequest(errors.New("positionMs must not be negative")))
		return
	}
	s.command(func(m *session.Manager) error {
		return m.Seek(time.Duration(req.PositionMs) * time.Millisecond)
	})(w, r)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Volume == nil {
		writeError(w, badRequest(errors.New("volume is required")))
		return
	}
	s.command(func(m *session.Manager) error {
		m.SetVolume(*req.Volume)
		return nil
	})(w, r)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTrack(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.command(func(m *session.Manager) error { return m.Enqueue(t) })(w, r)
}

func (s *Server) handlePlayNext(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTrack(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.command(func(m *session.Manager) error { return m.PlayNext(t) })(w, r)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.command(func(m *session.Manager) error { return m.ReorderQueue(req.IDs) })(w, r)
}

func (s *Server) handleRemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	s.command(func(m *session.Manager) error {
		m.RemoveFromQueue(trackID)
		return nil
	})(w, r)
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.LibraryState())
}

func (s *Server) handleAddToLibrary(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTrack(r)
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	added, err := m.AddToLibrary(t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleDeleteFromLibrary(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := m.DeleteFromLibrary(chi.URLParam(r, "trackID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	trackID := chi.URLParam(r, "trackID")
	liked, err := m.ToggleLike(trackID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{TrackID: trackID, Liked: liked})
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, badRequest(errors.New("name is required")))
		return
	}
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := m.CreatePlaylist(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := m.DeletePlaylist(chi.URLParam(r, "playlistID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddToPlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistTrackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TrackID == "" {
		writeError(w, badRequest(errors.New("trackId is required")))
		return
	}
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := m.AddToPlaylist(chi.URLParam(r, "playlistID"), req.TrackID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.LibraryState())
}

func (s *Server) handleRemoveFromPlaylist(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := m.RemoveFromPlaylist(chi.URLParam(r, "playlistID"), chi.URLParam(r, "trackID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.LibraryState())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: m.Search(r.Context(), query)})
}

func (s *Server) handleLyrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := m.Lyrics(r.Context(), chi.URLParam(r, "trackID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.View.Validate(); err != nil {
		writeError(w, badRequest(err))
		return
	}
	s.command(func(m *session.Manager) error { return m.SetView(req.View) })(w, r)
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	theme, err := session.ParseTheme(req.Theme)
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	s.command(func(m *session.Manager) error { return m.SetTheme(theme) })(w, r)
}

func viewOrDefault(v view.View) (view.View, error) {
	if v.Kind == "" {
		return view.AllSongs, nil
	}
	if err := v.Validate(); err != nil {
		return view.View{}, badRequest(err)
	}
	return v, nil
}

func decodeTrack(r *http.Request) (track.Track, error) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		return track.Track{}, err
	}
	if req.Track == nil || req.Track.ID == "" {
		return track.Track{}, badRequest(errors.New("track with an id is required"))
	}
	return *req.Track, nil
}
