package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-tracker-api/internal/service"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
	"github.com/noah-isme/admission-tracker-api/pkg/response"
)

// ExportHandler serves rendered receipts and CSV extracts.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Receipt godoc
// @Summary Download admission receipt
// @Description Render the admission receipt PDF for an approved application
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/receipt [get]
func (h *ExportHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	pdfBytes, filename, err := h.service.Receipt(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

// Applications godoc
// @Summary Export applications
// @Description Export applications matching the filters as CSV or PDF
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param status query string false "Filter by status"
// @Param course query string false "Filter by course"
// @Param format query string false "Output format: csv (default) or pdf"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/export/applications [get]
func (h *ExportHandler) Applications(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := parseApplicationFilter(c)

	var (
		body        []byte
		filename    string
		contentType string
		err         error
	)
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		body, filename, err = h.service.ApplicationsCSV(c.Request.Context(), claims, filter)
		contentType = "text/csv"
	case "pdf":
		body, filename, err = h.service.ApplicationsPDF(c.Request.Context(), claims, filter)
		contentType = "application/pdf"
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}
