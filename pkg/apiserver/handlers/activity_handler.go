package handlers

import (
	"bufio"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/activity"
)

type ActivityHandler struct {
	svc            *activity.Service
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewActivityHandler(svc *activity.Service, maxUploadBytes int64, logger *zap.Logger) *ActivityHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 25 << 20
	}
	return &ActivityHandler{svc: svc, maxUploadBytes: maxUploadBytes, logger: logger}
}

type messageRequest struct {
	Msg string `json:"msg"`
}

func (h *ActivityHandler) UploadDocument(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "missing or oversized file")
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "unreadable file")
		return
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		head, _ := reader.Peek(512)
		contentType = activity.DetectContentType(header.Filename, head)
	}

	doc, err := h.svc.UploadDocument(c.Request.Context(), caller, c.Param("id"), header.Filename, contentType, reader)
	if err != nil {
		respondServiceError(c, h.logger, "failed to upload document", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": doc})
}

func (h *ActivityHandler) DeleteDocument(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteDocument(c.Request.Context(), caller, c.Param("id"), c.Param("name")); err != nil {
		respondServiceError(c, h.logger, "failed to delete document", err)
		return
	}
	respondOK(c, gin.H{"deleted": c.Param("name")})
}

func (h *ActivityHandler) PostMessage(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.PostMessage(c.Request.Context(), caller, c.Param("id"), req.Msg); err != nil {
		respondServiceError(c, h.logger, "failed to post message", err)
		return
	}
	respondOK(c, gin.H{"applicationId": c.Param("id")})
}
