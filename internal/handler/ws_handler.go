package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/service"
	ws "github.com/stemsi/exstem-quiz/internal/websocket"
)

const tickInterval = time.Second

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

// WSHandler streams the countdown of an exam session.
type WSHandler struct {
	flow       *service.ExamFlowService
	log        zerolog.Logger
	upgrader   websocket.Upgrader
	pongWait   time.Duration
	pingPeriod time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(flow *service.ExamFlowService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		flow:       flow,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
		pongWait:   ws.PongWait,
		pingPeriod: ws.PingPeriod,
	}
}

// ExamStream godoc
// WS /ws/v1/exam/stream?token=...
// Pushes a timer tick every second while the exam is in progress, the urgent
// notices, and the report once the attempt is submitted. Clients may also
// answer and submit over the same connection.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sid := claims.SessionID
	wsLog := h.log.With().Str("session_id", sid).Logger()
	wsLog.Info().Msg("Candidate connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ws.KeepAlive(conn, h.pongWait)

	// gorilla allows one concurrent reader and one writer: the reader goroutine
	// only forwards requests, every write happens in the loop below.
	requests := make(chan ws.RequestPayload)
	go func() {
		defer cancel()
		for {
			var msg ws.RequestPayload
			if err := ws.ReadJSON(conn, &msg, h.pongWait); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			select {
			case requests <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	s := &stream{conn: conn, flow: h.flow, sid: sid, log: wsLog}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(h.pingPeriod)
	defer pinger.Stop()

	if err := s.push(ctx); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.push(ctx); err != nil {
				return
			}
		case <-pinger.C:
			if err := ws.WritePing(conn); err != nil {
				wsLog.Debug().Err(err).Msg("Ping failed")
				return
			}
		case msg := <-requests:
			if err := s.handle(ctx, msg); err != nil {
				return
			}
		}
	}
}

// stream is the per-connection state of one countdown stream.
type stream struct {
	conn *websocket.Conn
	flow *service.ExamFlowService
	sid  string
	log  zerolog.Logger
	last model.ScreenKind
}

// push renders the session and emits whatever changed since the last render.
func (s *stream) push(ctx context.Context) error {
	view, err := s.flow.Render(ctx, s.sid)
	if err != nil {
		return s.renderFailed(err)
	}
	return s.emit(view, false)
}

func (s *stream) handle(ctx context.Context, msg ws.RequestPayload) error {
	var (
		view *service.ExamView
		err  error
	)
	switch msg.Action {
	case ws.ActionPing:
		return ws.WriteTyped(s.conn, ws.EventPayload{Event: ws.EventPong})
	case ws.ActionAnswer:
		view, err = s.flow.Answer(ctx, s.sid, msg.Question, model.Option(msg.Option))
	case ws.ActionSubmit:
		view, err = s.flow.SubmitEarly(ctx, s.sid)
	default:
		s.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		return ws.WriteError(s.conn, "unknown action: "+string(msg.Action))
	}

	switch {
	case errors.Is(err, service.ErrInvalidQuestion), errors.Is(err, service.ErrInvalidOption):
		return ws.WriteError(s.conn, err.Error())
	case err != nil:
		return s.renderFailed(err)
	}
	return s.emit(view, true)
}

// emit writes the events of one render. full sends the whole view on a tick
// instead of only the timer.
func (s *stream) emit(view *service.ExamView, full bool) error {
	changed := view.Screen != s.last
	prev := s.last
	s.last = view.Screen

	switch view.Screen {
	case model.ScreenInProgress:
		var data interface{} = view.Timer
		if full || changed {
			data = view
		}
		if err := ws.WriteJSON(s.conn, ws.EventTick, data); err != nil {
			return err
		}
		if view.Notice != "" {
			return ws.WriteJSON(s.conn, ws.EventNotice, ws.NoticeData{Message: view.Notice})
		}

	case model.ScreenSubmitted:
		if !changed && !full {
			return nil
		}
		if prev == model.ScreenInProgress && view.Report != nil && view.Report.Reason == model.SubmitReasonTimeout {
			if err := ws.WriteJSON(s.conn, ws.EventNotice, ws.NoticeData{Message: view.Message}); err != nil {
				return err
			}
		}
		return ws.WriteJSON(s.conn, ws.EventSubmitted, view)

	default:
		if changed || full {
			return ws.WriteJSON(s.conn, ws.EventLogin, view)
		}
	}
	return nil
}

func (s *stream) renderFailed(err error) error {
	if errors.Is(err, service.ErrSessionBusy) || errors.Is(err, context.Canceled) {
		return nil
	}
	s.log.Error().Err(err).Msg("Stream render failed")
	return ws.WriteError(s.conn, "render failed")
}
