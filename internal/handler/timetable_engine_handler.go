package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-api/internal/dto"
	"github.com/noah-isme/sma-adp-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
	"github.com/noah-isme/sma-adp-api/pkg/response"
)

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	GenerateCycle(ctx context.Context, req dto.CycleGenerateRequest) (*dto.CycleGenerateResponse, error)
	VerifyRun(ctx context.Context, req dto.VerifyTimetableRequest) (*dto.VerifyTimetableResponse, error)
}

// TimetableEngineHandler exposes the constraint-based solver's generate,
// verify, and conflict-decision endpoints.
type TimetableEngineHandler struct {
	service timetableGenerator
}

// NewTimetableEngineHandler constructs the handler.
func NewTimetableEngineHandler(svc timetableGenerator) *TimetableEngineHandler {
	return &TimetableEngineHandler{service: svc}
}

// Generate godoc
// @Summary Generate ranked timetable alternatives for a program/term
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generate timetable payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableEngineHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	resp, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Cycle godoc
// @Summary Chain per-term generations for a program, reserving placed resources across terms
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.CycleGenerateRequest true "Cycle generate payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/cycles [post]
func (h *TimetableEngineHandler) Cycle(c *gin.Context) {
	var req dto.CycleGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cycle payload"))
		return
	}
	resp, err := h.service.GenerateCycle(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Verify godoc
// @Summary Re-validate a persisted run's decoded payload against the publish gate
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.VerifyTimetableRequest true "Verify payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/verify [post]
func (h *TimetableEngineHandler) Verify(c *gin.Context) {
	var req dto.VerifyTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verify payload"))
		return
	}
	resp, err := h.service.VerifyRun(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

type timetableConflictDecider interface {
	ResolveConflict(ctx context.Context, conflictID string) (scheduler.ResolveOutcome, string, error)
	ListOpenConflicts(ctx context.Context, runID string) ([]dto.ConflictListItem, error)
}

// ConflictDecisionHandler drives the auto-resolver for a named conflict on a
// published payload, gated behind an operator's yes/no decision.
type ConflictDecisionHandler struct {
	service timetableConflictDecider
}

// NewConflictDecisionHandler constructs the handler.
func NewConflictDecisionHandler(svc timetableConflictDecider) *ConflictDecisionHandler {
	return &ConflictDecisionHandler{service: svc}
}

// Decide godoc
// @Summary Apply an operator's yes/no decision to resolve one open conflict
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.ConflictDecisionRequest true "Conflict decision payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/conflicts/decide [post]
func (h *ConflictDecisionHandler) Decide(c *gin.Context) {
	var req dto.ConflictDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conflict decision payload"))
		return
	}
	if req.Decision == "no" {
		response.JSON(c, http.StatusOK, dto.ConflictDecisionResponse{Resolved: false, Message: "left open per operator decision"}, nil)
		return
	}

	outcome, version, err := h.service.ResolveConflict(c.Request.Context(), req.ConflictID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ConflictDecisionResponse{Resolved: outcome.Resolved, Message: outcome.Message, NewVersion: version}, nil)
}

// List godoc
// @Summary List the open conflicts for a persisted timetable run
// @Tags Timetable
// @Produce json
// @Param runId path string true "Timetable run ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/runs/{runId}/conflicts [get]
func (h *ConflictDecisionHandler) List(c *gin.Context) {
	runID := c.Param("runId")
	items, err := h.service.ListOpenConflicts(c.Request.Context(), runID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
