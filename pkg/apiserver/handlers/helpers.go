package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/activity"
	"github.com/staffportal/staffportal/pkg/apiserver/middleware"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/notification"
	"github.com/staffportal/staffportal/pkg/pipeline"
	"github.com/staffportal/staffportal/pkg/store"
)

const timeRFC3339Nano = time.RFC3339Nano

func formatTime(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(timeRFC3339Nano)
	return &formatted
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

// respondServiceError maps domain and store errors onto status codes.
// Anything unrecognised is logged and reported as a 500.
func respondServiceError(c *gin.Context, logger *zap.Logger, message string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrMissingField),
		errors.Is(err, pipeline.ErrInvalidStage),
		errors.Is(err, notification.ErrInvalidAudience),
		errors.Is(err, activity.ErrInvalidName),
		errors.Is(err, activity.ErrUnsupportedType),
		errors.Is(err, activity.ErrEmptyMessage):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "not found")
	case errors.Is(err, pipeline.ErrForbidden),
		errors.Is(err, store.ErrForbidden):
		respondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, pipeline.ErrStageConflict),
		errors.Is(err, pipeline.ErrMoveInProgress):
		respondError(c, http.StatusConflict, err.Error())
	default:
		logger.Error(message, zap.Error(err), zap.String("request_id", c.GetString(middleware.RequestIDHeader)))
		respondError(c, http.StatusInternalServerError, message)
	}
}

// actor builds the caller identity from the validated token.
func actor(c *gin.Context) (pipeline.Actor, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing authorization")
		return pipeline.Actor{}, false
	}
	return pipeline.Actor{UserID: claims.UserID, Silo: claims.Silo}, true
}

type cardResponse struct {
	ID            string   `json:"id"`
	ApplicationID string   `json:"applicationId"`
	Silo          string   `json:"silo"`
	StageID       string   `json:"stageId"`
	ApplicantName string   `json:"applicantName,omitempty"`
	BusinessName  string   `json:"businessName,omitempty"`
	Amount        string   `json:"amount"`
	Tags          []string `json:"tags"`
	Version       int64    `json:"version"`
	UpdatedAt     string   `json:"updatedAt"`
}

func toCardResponse(card model.PipelineCard) cardResponse {
	tags := []string(card.Tags)
	if tags == nil {
		tags = []string{}
	}
	return cardResponse{
		ID:            card.ID,
		ApplicationID: card.ApplicationID,
		Silo:          card.Silo,
		StageID:       card.StageID,
		ApplicantName: card.ApplicantName,
		BusinessName:  card.BusinessName,
		Amount:        card.Amount.StringFixed(2),
		Tags:          tags,
		Version:       card.Version,
		UpdatedAt:     card.UpdatedAt.UTC().Format(timeRFC3339Nano),
	}
}
