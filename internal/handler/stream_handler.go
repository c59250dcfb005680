package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/middleware"
	"github.com/certwise/certprep-backend/internal/response"
	"github.com/certwise/certprep-backend/internal/session"
	ws "github.com/certwise/certprep-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamHandler serves the live attempt channel: engine events out, candidate
// actions in, over one WebSocket per attempt.
type StreamHandler struct {
	manager  *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(manager *session.Manager, log zerolog.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		manager:  manager,
		log:      log.With().Str("component", "stream_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// engineErrorCode maps engine errors to wire error codes, mirroring the REST
// envelope taxonomy so clients share one error table.
func engineErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidState):
		return string(response.ErrInvalidState)
	case errors.Is(err, session.ErrOutOfRange):
		return string(response.ErrOutOfRange)
	case session.IsStorageError(err):
		return string(response.ErrStorageUnavailable)
	default:
		return string(response.ErrInternal)
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?token=
// Upgrades to WebSocket. Pushes tick, answer_saved, completed, abandoned and
// error events from the session; accepts answer, flag, select, next,
// previous, submit and ping actions.
func (h *StreamHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	s, ok := h.manager.Get(attemptID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session for this attempt"})
		return
	}
	if s.Candidate().ID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your attempt"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	streamLog := h.log.With().
		Str("attempt_id", attemptID.String()).
		Str("user_id", claims.UserID.String()).
		Logger()

	// The event forwarder and the action pump both write to the socket;
	// gorilla allows one writer at a time.
	var wmu sync.Mutex
	write := func(v interface{}) error {
		wmu.Lock()
		defer wmu.Unlock()
		return ws.WriteTyped(conn, v)
	}
	writeErr := func(code, msg string) {
		wmu.Lock()
		defer wmu.Unlock()
		ws.WriteError(conn, code, msg)
	}

	if err := write(ws.StateMessage{Type: ws.MessageState, State: s.Snapshot()}); err != nil {
		streamLog.Debug().Err(err).Msg("Initial state write failed")
		return
	}

	events := s.Subscribe()
	defer s.Unsubscribe(events)

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			select {
			case ev, open := <-events:
				if !open {
					return
				}
				if err := write(ev); err != nil {
					conn.Close()
					return
				}
			case <-stop:
				return
			}
		}
	}()

	streamLog.Info().Msg("Candidate connected")

	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				streamLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				streamLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			writeErr(string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(s, raw, write, writeErr)
		case ws.ActionFlag:
			h.handleFlag(s, raw, write, writeErr)
		case ws.ActionSelect:
			var req ws.SelectRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				writeErr(string(response.ErrInvalidPayload), "malformed select")
				continue
			}
			if err := s.Select(req.Index); err != nil {
				writeErr(engineErrorCode(err), err.Error())
				continue
			}
			write(ws.StateMessage{Type: ws.MessageState, State: s.Snapshot()})
		case ws.ActionNext:
			if err := s.Next(); err != nil {
				writeErr(engineErrorCode(err), err.Error())
				continue
			}
			write(ws.StateMessage{Type: ws.MessageState, State: s.Snapshot()})
		case ws.ActionPrevious:
			if err := s.Previous(); err != nil {
				writeErr(engineErrorCode(err), err.Error())
				continue
			}
			write(ws.StateMessage{Type: ws.MessageState, State: s.Snapshot()})
		case ws.ActionSubmit:
			// The completed event reaches this client through its
			// subscription once the store confirms.
			if _, err := s.Submit(context.Background()); err != nil {
				writeErr(engineErrorCode(err), err.Error())
			}
		case ws.ActionPing:
			s.Touch()
			write(ws.PongMessage{Type: ws.MessagePong})
		default:
			streamLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			writeErr(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

func (h *StreamHandler) handleAnswer(s *session.Session, raw json.RawMessage, write func(interface{}) error, writeErr func(string, string)) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeErr(string(response.ErrInvalidPayload), "malformed answer")
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		writeErr(string(response.ErrInvalidID), "invalid question_id")
		return
	}
	answerIDs := make([]uuid.UUID, 0, len(req.AnswerIDs))
	for _, rawID := range req.AnswerIDs {
		id, err := uuid.Parse(rawID)
		if err != nil {
			writeErr(string(response.ErrInvalidID), "invalid answer_ids entry")
			return
		}
		answerIDs = append(answerIDs, id)
	}

	if _, err := s.RecordAnswer(context.Background(), questionID, answerIDs, req.TimeSpentSeconds); err != nil {
		writeErr(engineErrorCode(err), err.Error())
		return
	}

	// answer_saved arrives via the subscription; the state refresh keeps
	// counters in sync for clients that only track snapshots.
	write(ws.StateMessage{Type: ws.MessageState, State: s.Snapshot()})
}

func (h *StreamHandler) handleFlag(s *session.Session, raw json.RawMessage, write func(interface{}) error, writeErr func(string, string)) {
	var req ws.FlagRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeErr(string(response.ErrInvalidPayload), "malformed flag")
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		writeErr(string(response.ErrInvalidID), "invalid question_id")
		return
	}

	flagged, err := s.ToggleFlag(questionID)
	if err != nil {
		writeErr(engineErrorCode(err), err.Error())
		return
	}

	write(ws.FlaggedMessage{Type: ws.MessageFlagged, QuestionID: req.QuestionID, Flagged: flagged})
}
