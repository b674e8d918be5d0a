package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	"github.com/noah-isme/admission-tracker-api/internal/service"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
	"github.com/noah-isme/admission-tracker-api/pkg/response"
)

// IncentiveHandler exposes payout rule and ledger endpoints.
type IncentiveHandler struct {
	incentives *service.IncentiveService
	reconcile  *service.ReconcileService
}

// NewIncentiveHandler creates a new handler.
func NewIncentiveHandler(incentives *service.IncentiveService, reconcile *service.ReconcileService) *IncentiveHandler {
	return &IncentiveHandler{incentives: incentives, reconcile: reconcile}
}

// ListRules godoc
// @Summary List incentive rules
// @Description List every payout rule, active and retired
// @Tags Incentives
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /incentive-rules [get]
func (h *IncentiveHandler) ListRules(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rules, err := h.incentives.ListRules(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rules, nil)
}

// CreateRule godoc
// @Summary Create incentive rule
// @Description Define a payout amount for a course
// @Tags Incentives
// @Accept json
// @Produce json
// @Param payload body service.CreateRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /incentive-rules [post]
func (h *IncentiveHandler) CreateRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rule payload"))
		return
	}

	rule, err := h.incentives.CreateRule(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, rule)
}

// UpdateRule godoc
// @Summary Update incentive rule
// @Description Rewrite a rule's course, amount or active flag
// @Tags Incentives
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body service.UpdateRuleRequest true "Rule payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /incentive-rules/{id} [put]
func (h *IncentiveHandler) UpdateRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rule payload"))
		return
	}

	rule, err := h.incentives.UpdateRule(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rule, nil)
}

// DeactivateRule godoc
// @Summary Deactivate incentive rule
// @Description Retire a payout rule without touching awarded incentives
// @Tags Incentives
// @Produce json
// @Param id path string true "Rule ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /incentive-rules/{id} [delete]
func (h *IncentiveHandler) DeactivateRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.incentives.DeactivateRule(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Ledger godoc
// @Summary List incentive ledger
// @Description List ledger entries with earned and pending totals
// @Tags Incentives
// @Produce json
// @Param status query string false "Filter by payout status"
// @Param course query string false "Filter by course"
// @Param agent_id query string false "Filter by agent (admin only)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /incentives [get]
func (h *IncentiveHandler) Ledger(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.IncentiveFilter{
		AgentID: c.Query("agent_id"),
		Course:  c.Query("course"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.IncentiveStatus(raw)
		filter.Status = &status
	}
	filter.Page = intQuery(c, "page", 1)
	filter.PageSize = intQuery(c, "page_size", 20)

	page, err := h.incentives.Ledger(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"incentives": page.Incentives, "summary": page.Summary}, page.Pagination)
}

// SetStatus godoc
// @Summary Update incentive payout status
// @Description Flip a ledger entry between unpaid and paid
// @Tags Incentives
// @Accept json
// @Produce json
// @Param id path string true "Incentive ID"
// @Param payload body object true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /incentives/{id}/status [put]
func (h *IncentiveHandler) SetStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status is required"))
		return
	}

	incentive, err := h.incentives.SetStatus(c.Request.Context(), claims, c.Param("id"), models.IncentiveStatus(payload.Status))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, incentive, nil)
}

// Reconcile godoc
// @Summary Reconcile incentive ledger
// @Description Backfill missing ledger entries for approved applications
// @Tags Incentives
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reconcile-incentives [post]
func (h *IncentiveHandler) Reconcile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	report, err := h.reconcile.Run(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, report, nil)
}
