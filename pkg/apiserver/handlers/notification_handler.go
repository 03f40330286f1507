package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/notification"
)

type NotificationHandler struct {
	svc    *notification.Service
	logger *zap.Logger
}

func NewNotificationHandler(svc *notification.Service, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

type notificationResponse struct {
	ID            string  `json:"id"`
	Audience      string  `json:"audience"`
	UserID        *string `json:"userId"`
	ApplicationID string  `json:"applicationId,omitempty"`
	Type          string  `json:"type"`
	Message       string  `json:"message"`
	Read          bool    `json:"read"`
	ReadAt        *string `json:"readAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

func (h *NotificationHandler) ListUnread(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	list, err := h.svc.ListUnreadByUser(c.Request.Context(), caller.UserID, caller.Silo)
	if err != nil {
		respondServiceError(c, h.logger, "failed to list notifications", err)
		return
	}

	response := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		response = append(response, toNotificationResponse(n))
	}
	respondOK(c, response)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid notification id")
		return
	}

	n, err := h.svc.MarkRead(c.Request.Context(), id, caller.UserID, caller.Silo)
	if err != nil {
		respondServiceError(c, h.logger, "failed to mark notification read", err)
		return
	}
	respondOK(c, toNotificationResponse(*n))
}

func toNotificationResponse(n model.Notification) notificationResponse {
	return notificationResponse{
		ID:            n.ID.String(),
		Audience:      string(n.Audience),
		UserID:        n.UserID,
		ApplicationID: n.ApplicationID,
		Type:          n.Type,
		Message:       n.Message,
		Read:          n.Read,
		ReadAt:        formatTime(n.ReadAt),
		CreatedAt:     n.CreatedAt.UTC().Format(timeRFC3339Nano),
	}
}
