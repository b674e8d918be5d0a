package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-tracker-api/internal/models"
	"github.com/noah-isme/admission-tracker-api/internal/service"
	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
	"github.com/noah-isme/admission-tracker-api/pkg/response"
)

// ApplicationHandler exposes student application endpoints.
type ApplicationHandler struct {
	applications *service.ApplicationService
	workflow     *service.WorkflowService
}

// NewApplicationHandler creates a new handler.
func NewApplicationHandler(applications *service.ApplicationService, workflow *service.WorkflowService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications, workflow: workflow}
}

// Submit godoc
// @Summary Submit student application
// @Description Register a new student application for the calling agent
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body service.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /students [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}

	app, err := h.applications.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, app)
}

// List godoc
// @Summary List applications
// @Description List applications visible to the caller with filters and paging
// @Tags Applications
// @Produce json
// @Param status query string false "Filter by status"
// @Param course query string false "Filter by course"
// @Param search query string false "Search name or token number"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := parseApplicationFilter(c)
	applications, pagination, err := h.applications.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, applications, pagination)
}

// Get godoc
// @Summary Get application
// @Description Fetch one application by id
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	app, err := h.applications.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, app, nil)
}

// UpdateStatus godoc
// @Summary Update application status
// @Description Move an application through the approval workflow
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/status [put]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	app, err := h.workflow.UpdateStatus(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, app, nil)
}

// AdminApprove godoc
// @Summary Grant final approval
// @Description Approve a coordinator-approved application and award the incentive
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.AdminDecisionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/approve-student/{id} [post]
func (h *ApplicationHandler) AdminApprove(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AdminDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	app, err := h.workflow.AdminApprove(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, app, nil)
}

// AdminReject godoc
// @Summary Reject application
// @Description Reject an application with a mandatory note
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.AdminDecisionRequest true "Rejection notes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reject-student/{id} [post]
func (h *ApplicationHandler) AdminReject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AdminDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	app, err := h.workflow.AdminReject(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, app, nil)
}

// UploadDocument godoc
// @Summary Upload application document
// @Description Attach a JPG, PNG, or PDF document to an application
// @Tags Applications
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Application ID"
// @Param type formData string true "Document type"
// @Param file formData file true "Document file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/documents [post]
func (h *ApplicationHandler) UploadDocument(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	documentType := c.PostForm("type")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "document file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	path, err := h.applications.AttachDocument(c.Request.Context(), claims, c.Param("id"), documentType, fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"type": documentType, "path": path}, nil)
}

// DocumentLink godoc
// @Summary Get document download link
// @Description Issue a signed, expiring download token for a stored document
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Param type path string true "Document type"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/documents/{type}/link [get]
func (h *ApplicationHandler) DocumentLink(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	link, err := h.applications.DocumentLink(c.Request.Context(), claims, c.Param("id"), c.Param("type"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadDocument godoc
// @Summary Download document
// @Description Stream a document referenced by a signed token
// @Tags Applications
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /documents/download [get]
func (h *ApplicationHandler) DownloadDocument(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, filename, err := h.applications.OpenDocument(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", file, nil)
}

func parseApplicationFilter(c *gin.Context) models.ApplicationFilter {
	filter := models.ApplicationFilter{
		Course:    c.Query("course"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ApplicationStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("start_date"); raw != "" {
		if ts, err := time.Parse("2006-01-02", raw); err == nil {
			filter.StartDate = &ts
		}
	}
	if raw := c.Query("end_date"); raw != "" {
		if ts, err := time.Parse("2006-01-02", raw); err == nil {
			filter.EndDate = &ts
		}
	}
	filter.Page = intQuery(c, "page", 1)
	filter.PageSize = intQuery(c, "page_size", 20)
	return filter
}
