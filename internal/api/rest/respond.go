package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/library"
	"github.com/osa030/sonora/internal/app/queue"
	"github.com/osa030/sonora/internal/app/session/registry"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks client input errors.
var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return errors.Mark(err, errBadRequest)
}

type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, library.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, library.ErrTrackNotFound),
		errors.Is(err, library.ErrPlaylistNotFound),
		errors.Is(err, registry.ErrUnknownListener):
		return http.StatusNotFound
	case errors.Is(err, library.ErrAlreadyInLibrary),
		errors.Is(err, library.ErrAlreadyInPlaylist),
		errors.Is(err, queue.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.Is(err, queue.ErrInvalidReorder), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Err(err).Msg("rest: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Hint: errors.FlattenHints(err)}
	if status == http.StatusInternalServerError {
		zlog.Error().Err(err).Msg("rest: request failed")
		body = errorBody{Error: "internal error"}
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest(errors.Wrap(err, "invalid request body"))
	}
	return nil
}
