package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unidesk/english-proficiency-api/internal/dto"
	"github.com/unidesk/english-proficiency-api/internal/models"
	"github.com/unidesk/english-proficiency-api/internal/service"
	appErrors "github.com/unidesk/english-proficiency-api/pkg/errors"
	"github.com/unidesk/english-proficiency-api/pkg/response"
)

// ApplicationHandler exposes certification application endpoints.
type ApplicationHandler struct {
	applications *service.ApplicationService
	reviews      *service.ReviewService
}

// NewApplicationHandler constructs ApplicationHandler.
func NewApplicationHandler(applications *service.ApplicationService, reviews *service.ReviewService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications, reviews: reviews}
}

// Submit godoc
// @Summary Submit a certification application
// @Tags Applications
// @Accept multipart/form-data
// @Produce json
// @Param certificate_file formData file true "Degree certificate (PDF)"
// @Param payment_receipt_file formData file true "Remita payment receipt (PDF)"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}

	certificate, err := formUpload(c, "certificate_file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrMissingInput, "certificate_file is required"))
		return
	}
	defer certificate.close()

	receipt, err := formUpload(c, "payment_receipt_file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrMissingInput, "payment_receipt_file is required"))
		return
	}
	defer receipt.close()

	detail, err := h.applications.Submit(c.Request.Context(), req, certificate.upload, receipt.upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.applications.WithDocumentLinks(detail))
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Param filters query string false "JSON array of {field,value} filters"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	filter, err := parseApplicationFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	details, pagination, err := h.applications.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	linked := make([]dto.DocumentLinkResponse, len(details))
	for i := range details {
		linked[i] = h.applications.WithDocumentLinks(&details[i])
	}
	response.JSON(c, http.StatusOK, linked, pagination)
}

// Get godoc
// @Summary Get application detail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	detail, err := h.applications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.applications.WithDocumentLinks(detail), nil)
}

// Decide godoc
// @Summary Record a review decision on an application
// @Tags Applications
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Application ID"
// @Param decision formData string true "PRE_APPROVED, APPROVED or REJECTED"
// @Param feedback formData string false "Reason shared with the applicant"
// @Param processed_document formData file false "Finalized certification letter (PDF)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id}/decision [post]
func (h *ApplicationHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	var document *service.DocumentUpload
	upload, err := formUpload(c, "processed_document")
	switch {
	case err == nil:
		defer upload.close()
		document = upload.upload
	case !errors.Is(err, http.ErrMissingFile):
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid processed_document upload"))
		return
	}

	detail, note, err := h.reviews.Decide(c.Request.Context(), c.Param("id"), req, document, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := map[string]interface{}{"notification": note}
	response.JSON(c, http.StatusOK, h.applications.WithDocumentLinks(detail), nil, meta)
}

// Stats godoc
// @Summary Application register statistics
// @Tags Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/stats [get]
func (h *ApplicationHandler) Stats(c *gin.Context) {
	claims := claimsFromContext(c)
	isAdmin := claims != nil && claims.Role == models.RoleAdmin

	stats, err := h.applications.Stats(c.Request.Context(), isAdmin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export the application register
// @Tags Applications
// @Produce text/csv
// @Param format query string false "csv or pdf"
// @Param filters query string false "JSON array of {field,value} filters"
// @Security BearerAuth
// @Router /applications/export [get]
func (h *ApplicationHandler) Export(c *gin.Context) {
	filter, err := parseApplicationFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	payload, contentType, err := h.applications.ExportRegister(c.Request.Context(), filter.Filters, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("applications-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

// DownloadDocument godoc
// @Summary Download a stored document via a signed token
// @Tags Documents
// @Produce application/pdf
// @Param token path string true "Signed document token"
// @Router /documents/{token} [get]
func (h *ApplicationHandler) DownloadDocument(c *gin.Context) {
	download, err := h.applications.OpenDocument(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Content-Type", "application/pdf")
	if _, err := io.Copy(c.Writer, download.File); err != nil {
		// Response already started, nothing safe to send back.
		c.Abort()
	}
}

func parseApplicationFilter(c *gin.Context) (models.ApplicationFilter, error) {
	var filter models.ApplicationFilter

	if raw := strings.TrimSpace(c.Query("filters")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter.Filters); err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "filters must be a JSON array of {field,value} objects")
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("pageSize", "20")); err == nil {
		filter.PageSize = size
	}
	return filter, nil
}

type openedUpload struct {
	upload *service.DocumentUpload
	file   multipart.File
}

func (o *openedUpload) close() {
	if o != nil && o.file != nil {
		o.file.Close()
	}
}

func formUpload(c *gin.Context, field string) (*openedUpload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	return &openedUpload{
		file: file,
		upload: &service.DocumentUpload{
			Filename: header.Filename,
			Size:     header.Size,
			MimeType: header.Header.Get("Content-Type"),
			Content:  file,
		},
	}, nil
}
