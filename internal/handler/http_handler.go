package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/hub"
	"github.com/inamkkkk/take-it-and-go/internal/service"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
	"github.com/inamkkkk/take-it-and-go/pkg/middleware"
	"github.com/inamkkkk/take-it-and-go/pkg/response"
)

type HTTPHandler struct {
	history service.HistoryService
	auth    *middleware.AuthMiddleware
	hub     *hub.Hub
}

func NewHTTPHandler(history service.HistoryService, auth *middleware.AuthMiddleware, h *hub.Hub) *HTTPHandler {
	return &HTTPHandler{
		history: history,
		auth:    auth,
		hub:     h,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.Use(h.auth.RequireAuth())
	{
		api.GET("/chat/history", h.GetHistory)
	}

	r.GET("/health", h.HealthCheck)
}

// GetHistory returns a conversation addressed by deliveryKey, by peerId
// (direct chat with the caller) or by the peerA/peerB pair.
func (h *HTTPHandler) GetHistory(c *gin.Context) {
	caller := domain.Identity{
		UserID: middleware.GetUserID(c),
		Role:   domain.Role(middleware.GetRole(c)),
	}

	deliveryKey := c.Query("deliveryKey")
	peerID := c.Query("peerId")
	peerA, peerB := c.Query("peerA"), c.Query("peerB")

	forms := 0
	var conv domain.Conversation
	if deliveryKey != "" {
		forms++
		conv = domain.DeliveryConversation(deliveryKey)
	}
	if peerID != "" {
		forms++
		conv = domain.DirectConversation(caller.UserID, peerID)
	}
	if peerA != "" || peerB != "" {
		forms++
		conv = domain.DirectConversation(peerA, peerB)
	}
	if forms != 1 {
		response.BadRequest(c, domain.ErrCodeInvalidDescriptor, "exactly one of deliveryKey, peerId or peerA+peerB is required")
		return
	}

	limit := service.DefaultHistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, domain.ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = service.ClampLimit(parsed)
	}

	room, msgs, err := h.history.GetHistory(c.Request.Context(), caller, conv, limit)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidDescriptor):
			response.BadRequest(c, domain.ErrCodeInvalidDescriptor, err.Error())
		case errors.Is(err, domain.ErrAuthorizationDenied):
			response.Forbidden(c, "not a participant of this conversation")
		case errors.Is(err, domain.ErrPersistenceFailure):
			response.ServiceUnavailable(c, "failed to get chat history")
		default:
			l := log.Ctx(c.Request.Context())
			l.Error().Err(err).Msg("failed to get chat history")
			response.InternalError(c, "failed to get chat history")
		}
		return
	}

	response.Success(c, gin.H{
		"room":     room.String(),
		"messages": msgs,
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.hub.ClientCount(),
		"rooms":       h.hub.RoomCount(),
	})
}
