package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/inamkkkk/take-it-and-go/internal/audit"
	"github.com/inamkkkk/take-it-and-go/internal/auth"
	"github.com/inamkkkk/take-it-and-go/internal/config"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/hub"
	"github.com/inamkkkk/take-it-and-go/internal/metrics"
	"github.com/inamkkkk/take-it-and-go/internal/service"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
	"github.com/inamkkkk/take-it-and-go/pkg/middleware"
	"github.com/inamkkkk/take-it-and-go/pkg/response"
)

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	verifier auth.Verifier
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, verifier auth.Verifier, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		service:  svc,
		verifier: verifier,
		wsCfg:    wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(wsCfg.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin) || lo.Contains(allowed, "*")
	}
}

func (h *WSHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/chat/ws", h.HandleWebSocket)
}

// HandleWebSocket verifies the credential before upgrading. A connection is
// never live without an identity.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader(middleware.AuthHeaderKey))
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		reason := "invalid_token"
		if token == "" {
			reason = "missing_token"
		}
		metrics.ConnectionsRejected.WithLabelValues(reason).Inc()
		audit.LogWithDetail(c.Request.Context(), audit.ActionAuthFailed, "", err.Error(), "websocket handshake rejected")
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues("upgrade").Inc()
		l := log.L()
		l.Warn().Err(err).Str(log.FieldUserID, identity.UserID).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	logger := log.L().With().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldUserID, identity.UserID).
		Str(log.FieldRole, string(identity.Role)).
		Logger()
	ctx := log.WithLogger(client.Context(), logger)

	if err := h.service.HandleConnect(ctx, client, identity); err != nil {
		logger.Error().Err(err).Msg("failed to register connection")
		h.hub.Unregister(client)
		conn.Close()
		return
	}

	go client.WritePump()
	go func() {
		client.ReadPump(func(c *hub.Client, data []byte) {
			h.handleMessage(ctx, c, data)
		})
		h.service.HandleDisconnect(ctx, client)
	}()
}

// handleMessage answers every inbound chat event with exactly one ack.
func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, data []byte) {
	var base domain.BaseMessage

	defer func() {
		if r := recover(); r != nil {
			l := log.Ctx(ctx)
			l.Error().Interface("panic", r).Str(log.FieldEvent, base.Type).Msg("recovered from panic in event handler")
			h.fail(ctx, client, base, errors.New("internal error"))
		}
	}()

	if err := json.Unmarshal(data, &base); err != nil {
		h.reject(ctx, client, base, domain.ErrCodeBadRequest, "invalid message format")
		return
	}

	ctx = log.WithFields(ctx, map[string]string{
		log.FieldEvent: base.Type,
		log.FieldAckID: base.AckID,
	})

	switch base.Type {
	case domain.MsgTypeAuth:
		h.fail(ctx, client, base, h.service.HandleAuth(ctx, client))

	case domain.MsgTypeJoinRoom:
		var msg domain.JoinRoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reject(ctx, client, base, domain.ErrCodeBadRequest, "invalid joinRoom message")
			return
		}
		result, err := h.service.HandleJoinRoom(ctx, client, domain.JoinRequest{
			DeliveryKey: msg.DeliveryKey,
			PeerID:      msg.PeerID,
		})
		if err != nil {
			h.fail(ctx, client, base, err)
			return
		}
		ack := domain.NewOKAck(base)
		ack.Room = result.Room.String()
		h.send(ctx, client, ack)
		h.send(ctx, client, domain.NewChatHistory(result.Room, result.History))

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reject(ctx, client, base, domain.ErrCodeBadRequest, "invalid sendMessage message")
			return
		}
		sent, err := h.service.HandleSendMessage(ctx, client, domain.SendRequest{
			RoomKey:     domain.RoomKey(msg.RoomKey),
			Body:        msg.Body,
			DeliveryKey: msg.DeliveryKey,
			ReceiverID:  msg.ReceiverID,
		})
		if err != nil {
			h.fail(ctx, client, base, err)
			return
		}
		ack := domain.NewOKAck(base)
		ack.MessageID = sent.ID
		if room, err := sent.RoomKey(); err == nil {
			ack.Room = room.String()
		}
		h.send(ctx, client, ack)

	case domain.MsgTypeMarkRead:
		var msg domain.MarkReadMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reject(ctx, client, base, domain.ErrCodeBadRequest, "invalid markRead message")
			return
		}
		receipt, err := h.service.HandleMarkRead(ctx, client, msg.MessageID)
		if err != nil {
			h.fail(ctx, client, base, err)
			return
		}
		ack := domain.NewOKAck(base)
		ack.MessageID = receipt.MessageID
		ack.Room = receipt.Room.String()
		ack.AlreadyRead = lo.ToPtr(receipt.AlreadyRead)
		h.send(ctx, client, ack)

	case domain.MsgTypePing:
		h.send(ctx, client, domain.NewPong())

	default:
		h.reject(ctx, client, base, domain.ErrCodeBadRequest, "unknown message type")
	}
}

// fail sends an error ack for err. A nil err is a no-op.
func (h *WSHandler) fail(ctx context.Context, client *hub.Client, base domain.BaseMessage, err error) {
	if err == nil {
		return
	}
	code := domain.ErrorCode(err)
	message := err.Error()
	if code == domain.ErrCodeInternalError {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("event failed")
		message = "internal error"
	}
	h.reject(ctx, client, base, code, message)
}

func (h *WSHandler) reject(ctx context.Context, client *hub.Client, base domain.BaseMessage, code, message string) {
	metrics.EventErrors.WithLabelValues(base.Type, code).Inc()
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldErrorCode, code).Str("reason", message).Msg("event rejected")
	h.send(ctx, client, domain.NewErrorAck(base, code, message))
}

func (h *WSHandler) send(ctx context.Context, client *hub.Client, frame interface{}) {
	if err := client.SendMessage(frame); err != nil && !errors.Is(err, domain.ErrConnectionClosed) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to queue frame")
	}
}
