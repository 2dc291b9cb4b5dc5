package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

// WSHandler runs the join handshake and bridges an upgraded connection to
// a core.Session.
type WSHandler struct {
	relay           *core.Relay
	auth            *auth.Service
	writeTimeout    time.Duration
	maxMessageBytes int64
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(relay *core.Relay, authService *auth.Service, writeTimeout time.Duration, maxMessageBytes int64, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		relay:           relay,
		auth:            authService,
		writeTimeout:    writeTimeout,
		maxMessageBytes: maxMessageBytes,
		log:             logger,
	}
}

// ServeHTTP handles GET /ws/chat/{room_id}. Every rejection is answered
// with a plain HTTP status before the upgrade.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token, ok := tokenFromRequest(r)
	if !ok {
		h.log.Debug().Msg("missing or malformed credentials")
		writeError(w, stdhttp.StatusUnauthorized, "missing authorization")
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("invalid token")
		writeError(w, stdhttp.StatusUnauthorized, "invalid token")
		return
	}
	roomID, err := strconv.ParseInt(r.PathValue("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		writeError(w, stdhttp.StatusBadRequest, "invalid room id")
		return
	}

	sess, err := h.relay.Connect(r.Context(), claims.Identity(), roomID)
	if err != nil {
		status := connectStatus(err)
		if status == stdhttp.StatusServiceUnavailable {
			h.log.Error().Err(err).Int64("room_id", roomID).Msg("ws handshake failed")
		}
		writeError(w, status, stdhttp.StatusText(status))
		return
	}
	defer sess.Close(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sess.SessionID()).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		h.log.Warn().Err(err).Str("session_id", sess.SessionID()).Msg("ws connection closed with error")
	}
	_ = conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		text, ok := inboundText(data)
		if typ != websocket.MessageText || !ok {
			h.log.Debug().Str("session_id", sess.SessionID()).Msg("malformed inbound frame")
			if err := sess.Notify(core.ErrCodeBadRequest, proto.InvalidFormatText); err != nil {
				return err
			}
			continue
		}

		if err := sess.Send(ctx, text); err != nil {
			if errors.Is(err, core.ErrRateLimited) {
				continue
			}
			if errors.Is(err, core.ErrNotJoined) {
				return err
			}
			// The message was not stored; the connection stays usable.
			h.log.Error().Err(err).Str("session_id", sess.SessionID()).Msg("send message")
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	return sess.WritePump(ctx, func(ctx context.Context, event *core.Event) error {
		if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
			h.log.Error().Err(err).Str("session_id", sess.SessionID()).Msg("write ws event")
			return err
		}
		return nil
	})
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	if h.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, conn, v)
}

func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, core.ErrSlowConsumer):
		return websocket.StatusTryAgainLater, "too slow"
	}
	if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
		return s, "closing"
	}
	return websocket.StatusInternalError, "internal error"
}

func writeError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
