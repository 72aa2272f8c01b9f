package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/stream"
)

const (
	wsReadLimit    = 2 << 20
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsQueueSize    = 256
)

// wsFrame is one outbound websocket message.
type wsFrame struct {
	Type      protocol.EventKind `json:"type"`
	Data      string             `json:"data,omitempty"`
	Code      string             `json:"code,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

type wsRequest struct {
	id  string
	req protocol.ChatRequest
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := *hlog.FromRequest(r)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan wsRequest, wsQueueSize)
	outbound := make(chan wsFrame, wsQueueSize)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(frame); err != nil {
					s.countWS("outbound", "write_error")
					cancel()
					return
				}
				s.countWS("outbound", string(frame.Type))
			}
		}
	}()

	send := func(frame wsFrame) error {
		select {
		case <-ctx.Done():
			return stream.ErrClientGone
		case outbound <- frame:
			return nil
		}
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		for item := range inbound {
			reqLog := logger.With().Str("request_id", item.id).Logger()
			emit := func(ev protocol.Event) error {
				return send(wsFrame{Type: ev.Kind, Data: ev.Text, RequestID: item.id})
			}
			if _, err := s.chat.Chat(reqLog.WithContext(ctx), item.req, emit); err != nil {
				reqLog.Debug().Err(err).Msg("websocket chat ended with error")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		req, err := protocol.ParseChatRequest(data)
		if err != nil {
			s.countWS("inbound", "invalid")
			if send(wsFrame{Type: protocol.EventError, Data: err.Error(), Code: "invalid_request"}) != nil {
				break
			}
			continue
		}
		s.countWS("inbound", "accepted")

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- wsRequest{id: uuid.NewString(), req: req}:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
}

func (s *Server) countWS(direction, status string) {
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(direction, status).Inc()
	}
}
