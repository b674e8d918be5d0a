package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-tracker-api/internal/service"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
	"github.com/noah-isme/admission-tracker-api/pkg/response"
)

// DashboardHandler exposes the admin overview endpoint.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Admin godoc
// @Summary Admin dashboard
// @Description Aggregated admission pipeline counts and incentive totals
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/dashboard [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, cached, err := h.service.Admin(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cache": cached})
}
