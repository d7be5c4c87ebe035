// internal/api/ws.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polytopelabs/hyperpuzzle-simulator/core"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsCommand is a client-to-server stream message. Op is one of "twists",
// "undo", "redo", "scramble", or "reset".
type wsCommand struct {
	Op       string           `json:"op"`
	Twists   string           `json:"twists,omitempty"`
	Scramble *ScrambleRequest `json:"scramble,omitempty"`
}

// FramePayload carries one animation frame: a row-major homogeneous
// matrix per piece, as in StateResponse.
type FramePayload struct {
	Transforms [][][]float64 `json:"transforms"`
	Animating  bool          `json:"animating"`
}

// wsEnvelope is a server-to-client stream message. Type selects which of
// the optional fields is populated: "state", "frame", "blocked", "error".
type wsEnvelope struct {
	Type     string        `json:"type"`
	Session  *SessionInfo  `json:"session,omitempty"`
	Frame    *FramePayload `json:"frame,omitempty"`
	Error    string        `json:"error,omitempty"`
	Blocking []int         `json:"blocking_pieces,omitempty"`
	Strength float64       `json:"strength,omitempty"`
}

// handleStream upgrades to a WebSocket and streams animation frames for
// the session while accepting twist commands. The gorilla connection
// allows a single writer, so all writes happen on this goroutine; a
// separate goroutine pumps inbound commands into a channel.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storedSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		s.requestLog(r).Warn(r.Context(), "websocket upgrade failed",
			logging.String("error", err.Error()))
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.StreamConnected()
		defer s.metrics.StreamDisconnected()
	}

	log := s.requestLog(r).With(logging.String("session_id", stored.ID))
	log.Info(r.Context(), "stream opened")
	defer log.Info(r.Context(), "stream closed")

	done := make(chan struct{})
	defer close(done)
	commands := make(chan wsCommand)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				if !websocket.IsCloseError(err,
					websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug(r.Context(), "stream read ended",
						logging.String("error", err.Error()))
				}
				return
			}
			select {
			case commands <- cmd:
			case <-done:
				return
			}
		}
	}()

	sess := stored.Session
	info := s.sessionInfo(stored)
	if err := conn.WriteJSON(wsEnvelope{Type: "state", Session: &info}); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !sess.Step() {
				continue
			}
			frame := framePayload(sess.Frame(), sess.AnimationPending())
			if err := conn.WriteJSON(wsEnvelope{Type: "frame", Frame: &frame}); err != nil {
				return
			}

		case cmd := <-commands:
			env := s.runStreamCommand(stored, cmd)
			if err := conn.WriteJSON(env); err != nil {
				return
			}

		case <-readerDone:
			return
		}
	}
}

func framePayload(frame []pga.Motor, animating bool) FramePayload {
	payload := FramePayload{
		Transforms: make([][][]float64, len(frame)),
		Animating:  animating,
	}
	for i, m := range frame {
		payload.Transforms[i] = wireMatrix(m)
	}
	return payload
}

// runStreamCommand executes one inbound command and builds the response
// envelope. Blocked twists come back as "blocked" with the vetoing piece
// ids and the current flash strength.
func (s *Server) runStreamCommand(stored *StoredSession, cmd wsCommand) wsEnvelope {
	sess := stored.Session
	var err error
	switch cmd.Op {
	case "twists":
		var twists []model.LayeredTwist
		twists, err = model.ParseTwists(sess.Definition(), cmd.Twists)
		if err == nil {
			err = sess.ApplyTwists(twists)
		}
	case "undo":
		err = sess.Undo()
	case "redo":
		err = sess.Redo()
	case "scramble":
		req := ScrambleRequest{}
		if cmd.Scramble != nil {
			req = *cmd.Scramble
		}
		var params core.ScrambleParams
		params, err = scrambleParamsFromRequest(req)
		if err == nil {
			sess.ApplyScramble(params)
		}
	case "reset":
		sess.Reset()
	default:
		err = fmt.Errorf("%w: unknown op %q", ErrInvalidRequest, cmd.Op)
	}

	if err != nil {
		var blocked *core.BlockedTwistError
		if errors.As(err, &blocked) {
			pieces, strength := sess.BlockingPieces()
			return wsEnvelope{
				Type:     "blocked",
				Error:    err.Error(),
				Blocking: piecesToInts(pieces),
				Strength: strength,
			}
		}
		return wsEnvelope{Type: "error", Error: err.Error()}
	}
	info := s.sessionInfo(stored)
	return wsEnvelope{Type: "state", Session: &info}
}
