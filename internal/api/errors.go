// internal/api/errors.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/polytopelabs/hyperpuzzle-simulator/catalog"
	"github.com/polytopelabs/hyperpuzzle-simulator/core"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/replay"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/sim/session"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

var (
	// ErrSessionNotFound is returned when a session id resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRequest wraps client-side validation failures.
	ErrInvalidRequest = errors.New("invalid request")
)

// statusFromError maps domain errors onto HTTP status codes. Blocked
// twists and exhausted undo/redo map to 409: the request was well-formed
// but the puzzle's current state refuses it.
func statusFromError(err error) int {
	var blocked *core.BlockedTwistError
	switch {
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, catalog.ErrPuzzleNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, model.ErrBadNotation),
		errors.Is(err, core.ErrUnknownTwist),
		errors.Is(err, core.ErrUnknownAxis),
		errors.Is(err, core.ErrUnknownPiece),
		errors.Is(err, catalog.ErrPuzzleInvalid):
		return http.StatusBadRequest

	case errors.As(err, &blocked),
		errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrNothingToRedo),
		errors.Is(err, replay.ErrPuzzleMismatch),
		errors.Is(err, replay.ErrReplayActive):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the JSON error envelope. BlockingPieces is populated
// only for blocked twists.
type errorResponse struct {
	Error          string `json:"error"`
	RequestID      string `json:"request_id,omitempty"`
	BlockingPieces []int  `json:"blocking_pieces,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	resp := errorResponse{
		Error:     err.Error(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
	var blocked *core.BlockedTwistError
	if errors.As(err, &blocked) {
		resp.BlockingPieces = piecesToInts(blocked.Pieces)
	}

	log := s.requestLog(r)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logging.Int("status", status),
			logging.String("error", err.Error()))
	} else {
		log.Debug(r.Context(), "request rejected",
			logging.Int("status", status),
			logging.String("error", err.Error()))
	}
	writeJSON(w, status, resp)
}

func piecesToInts(pieces []model.Piece) []int {
	out := make([]int, len(pieces))
	for i, p := range pieces {
		out[i] = int(p)
	}
	return out
}
