// internal/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/core"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/replay"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
	"github.com/polytopelabs/hyperpuzzle-simulator/timectrl"
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) sessionInfo(stored *StoredSession) SessionInfo {
	sess := stored.Session
	info := SessionInfo{
		ID:         stored.ID,
		Puzzle:     stored.Puzzle,
		CreatedAt:  stored.Created,
		TwistCount: sess.TwistCount(),
		Started:    sess.Started(),
		Solved:     sess.Solved(),
		HasUndo:    sess.HasUndo(),
		HasRedo:    sess.HasRedo(),
	}
	if rec, ok := sess.Scramble(); ok {
		info.Scramble = rec.Notation
	}
	return info
}

func (s *Server) storedSession(r *http.Request) (*StoredSession, error) {
	return s.store.Get(r.PathValue("id"))
}

func (s *Server) handleListPuzzles(w http.ResponseWriter, r *http.Request) {
	names := s.catalog.Names()
	out := make([]PuzzleSummary, 0, len(names))
	for _, name := range names {
		def, err := s.catalog.Get(name)
		if err != nil {
			continue
		}
		out = append(out, puzzleSummary(def))
	}
	writeJSON(w, http.StatusOK, listPuzzlesResponse{Puzzles: out})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	def, err := s.catalog.Get(req.Puzzle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stored := s.store.Create(def, s.sessionOptions(def)...)
	s.requestLog(r).Info(r.Context(), "session created",
		logging.String("session_id", stored.ID),
		logging.String("puzzle", stored.Puzzle))
	writeJSON(w, http.StatusCreated, s.sessionInfo(stored))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	stored := s.store.List()
	out := make([]SessionInfo, 0, len(stored))
	for _, st := range stored {
		out = append(out, s.sessionInfo(st))
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionInfo(stored))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLog(r).Info(r.Context(), "session deleted", logging.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state := stored.Session.State()

	handles := state.TransformHandles()
	transforms := state.PieceTransforms()
	resp := StateResponse{
		Puzzle:     stored.Puzzle,
		Handles:    make([]int, len(handles)),
		Transforms: make([][][]float64, len(transforms)),
		Solved:     state.IsSolved(),
	}
	for i, h := range handles {
		resp.Handles[i] = int(h)
	}
	for i, m := range transforms {
		resp.Transforms[i] = wireMatrix(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTwists(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req TwistRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	twists, err := model.ParseTwists(stored.Session.Definition(), req.Twists)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := stored.Session.ApplyTwists(twists); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionInfo(stored))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := stored.Session.Undo(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionInfo(stored))
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := stored.Session.Redo(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionInfo(stored))
}

func (s *Server) handleScramble(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ScrambleRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	params, err := scrambleParamsFromRequest(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec := stored.Session.ApplyScramble(params)
	s.requestLog(r).Info(r.Context(), "session scrambled",
		logging.String("session_id", stored.ID),
		logging.String("type", params.Type.String()),
		logging.Int("twists", len(rec.Twists)))
	writeJSON(w, http.StatusOK, ScrambleResponse{
		Session:  s.sessionInfo(stored),
		Params:   scrambleParamsDTO(rec.Params),
		Notation: rec.Notation,
		Twists:   len(rec.Twists),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stored.Session.Reset()
	writeJSON(w, http.StatusOK, s.sessionInfo(stored))
}

// handleGrip answers GET .../grip?axis=R&layers=3 with the per-piece cut
// classification for that grip.
func (s *Server) handleGrip(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	def := stored.Session.Definition()

	axisName := r.URL.Query().Get("axis")
	axis, ok := def.AxisByName(axisName)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownAxis, axisName))
		return
	}
	layers := model.DefaultLayerMask
	if raw := r.URL.Query().Get("layers"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: bad layers %q", ErrInvalidRequest, raw))
			return
		}
		layers = model.LayerMask(parsed)
	}

	state := stored.Session.State()
	sides := state.ComputeGrip(axis, layers)
	resp := GripResponse{
		Axis:     axisName,
		Layers:   uint32(layers),
		Sides:    make([]string, len(sides)),
		Gripped:  []int{},
		Blocking: []int{},
	}
	for i, side := range sides {
		resp.Sides[i] = side.String()
		switch side {
		case core.Inside:
			resp.Gripped = append(resp.Gripped, i)
		case core.Split:
			resp.Blocking = append(resp.Blocking, i)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLayers answers GET .../layers?axis=R&piece=4 with the minimal
// layer mask that carries the piece. drag=true uses the drag variant,
// which falls back to reorienting the whole puzzle instead of failing.
func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	def := stored.Session.Definition()

	axisName := r.URL.Query().Get("axis")
	axis, ok := def.AxisByName(axisName)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownAxis, axisName))
		return
	}
	pieceRaw := r.URL.Query().Get("piece")
	pieceIdx, err := strconv.Atoi(pieceRaw)
	if err != nil || pieceIdx < 0 || pieceIdx >= len(def.Pieces) {
		s.writeError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownPiece, pieceRaw))
		return
	}
	piece := model.Piece(pieceIdx)
	drag := false
	if raw := r.URL.Query().Get("drag"); raw != "" {
		drag, err = strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: bad drag %q", ErrInvalidRequest, raw))
			return
		}
	}

	state := stored.Session.State()
	var mask model.LayerMask
	if drag {
		mask, ok = state.MinDragLayerMask(axis, piece)
	} else {
		mask, ok = state.MinLayerMask(axis, piece)
	}
	resp := LayerMaskResponse{OK: ok}
	if ok {
		resp.Mask = uint32(mask)
		resp.Notation = mask.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec := replay.Record(stored.Session)
	writeJSON(w, http.StatusOK, recordingDTO(stored.Session.Definition(), rec))
}

// handleReplay plays an uploaded recording into the session. The events
// run on an accelerated manual clock, so the whole recording completes
// before the response is written.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var dto RecordingDTO
	if err := decodeJSON(r, &dto); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := dto.toRecording(stored.Session.Definition())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	clock := timectrl.NewManualClock(time.Now().UTC())
	sched := replay.NewScheduler(clock)
	player := replay.NewPlayer(stored.Session, sched, replay.WithLogger(s.requestLog(r)))
	end, err := player.Load(clock.Now(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	clock.Advance(end + time.Millisecond)
	sched.RunDue()

	s.requestLog(r).Info(r.Context(), "replay complete",
		logging.String("session_id", stored.ID),
		logging.Int("events", len(rec.Events)))
	writeJSON(w, http.StatusOK, ReplayResponse{
		Session: s.sessionInfo(stored),
		Events:  len(rec.Events),
	})
}
