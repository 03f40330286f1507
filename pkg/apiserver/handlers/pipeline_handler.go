package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/pipeline"
)

type PipelineHandler struct {
	svc    *pipeline.Service
	logger *zap.Logger
}

func NewPipelineHandler(svc *pipeline.Service, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{svc: svc, logger: logger}
}

type moveRequest struct {
	ApplicationID string `json:"applicationId"`
	FromStage     string `json:"fromStage"`
	ToStage       string `json:"toStage"`
}

type columnResponse struct {
	StageID   string         `json:"stageId"`
	StageName string         `json:"stageName"`
	Cards     []cardResponse `json:"cards"`
}

type stageResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type eventResponse struct {
	ID            string `json:"id"`
	ApplicationID string `json:"applicationId"`
	Type          string `json:"type"`
	FromStage     string `json:"fromStage"`
	ToStage       string `json:"toStage"`
	ActorID       string `json:"actorId,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

func (h *PipelineHandler) Board(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	board, err := h.svc.GetBoard(c.Request.Context(), caller.Silo)
	if err != nil {
		respondServiceError(c, h.logger, "failed to load pipeline board", err)
		return
	}

	columns := make([]columnResponse, 0, len(board))
	for _, column := range board {
		cards := make([]cardResponse, 0, len(column.Cards))
		for _, card := range column.Cards {
			cards = append(cards, toCardResponse(card))
		}
		columns = append(columns, columnResponse{StageID: column.StageID, StageName: column.StageName, Cards: cards})
	}
	respondOK(c, columns)
}

func (h *PipelineHandler) Move(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	card, err := h.svc.MoveCard(c.Request.Context(), pipeline.MoveRequest{
		ApplicationID: req.ApplicationID,
		FromStage:     req.FromStage,
		ToStage:       req.ToStage,
		Actor:         caller,
	})
	if err != nil {
		respondServiceError(c, h.logger, "failed to move card", err)
		return
	}
	respondOK(c, toCardResponse(*card))
}

func (h *PipelineHandler) Stages(c *gin.Context) {
	stages, err := h.svc.Stages().ListStages(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, "failed to list stages", err)
		return
	}

	response := make([]stageResponse, 0, len(stages))
	for _, stage := range stages {
		response = append(response, stageResponse{ID: stage.ID, Name: stage.Name, Order: stage.Order})
	}
	respondOK(c, response)
}

func (h *PipelineHandler) Events(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	events, err := h.svc.ListEvents(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondServiceError(c, h.logger, "failed to list events", err)
		return
	}

	response := make([]eventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, toEventResponse(event))
	}
	respondOK(c, response)
}

// Export writes the caller's board as a spreadsheet, one row per card.
func (h *PipelineHandler) Export(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}

	board, err := h.svc.GetBoard(c.Request.Context(), caller.Silo)
	if err != nil {
		respondServiceError(c, h.logger, "failed to load pipeline board", err)
		return
	}

	f, err := boardWorkbook(board)
	if err != nil {
		respondServiceError(c, h.logger, "failed to build export", err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=pipeline.xlsx")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("failed to write export", zap.Error(err))
	}
}

const exportSheet = "Pipeline"

func boardWorkbook(board []pipeline.BoardColumn) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	headers := []string{"Stage", "Application", "Applicant", "Business", "Amount", "Tags", "Updated"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return nil, err
		}
	}

	row := 2
	for _, column := range board {
		for _, card := range column.Cards {
			values := []interface{}{
				column.StageName,
				card.ApplicationID,
				card.ApplicantName,
				card.BusinessName,
				card.Amount.InexactFloat64(),
				fmt.Sprint([]string(card.Tags)),
				card.UpdatedAt.UTC().Format(timeRFC3339Nano),
			}
			for i, value := range values {
				cell, err := excelize.CoordinatesToCellName(i+1, row)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(exportSheet, cell, value); err != nil {
					return nil, err
				}
			}
			row++
		}
	}
	return f, nil
}

func toEventResponse(event model.PipelineEvent) eventResponse {
	return eventResponse{
		ID:            event.ID.String(),
		ApplicationID: event.ApplicationID,
		Type:          string(event.Type),
		FromStage:     event.FromStage,
		ToStage:       event.ToStage,
		ActorID:       event.ActorID,
		CreatedAt:     event.CreatedAt.UTC().Format(timeRFC3339Nano),
	}
}
