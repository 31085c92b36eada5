package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/unidesk/english-proficiency-api/internal/dto"
	"github.com/unidesk/english-proficiency-api/internal/models"
	appErrors "github.com/unidesk/english-proficiency-api/pkg/errors"
	"github.com/unidesk/english-proficiency-api/pkg/export"
	"github.com/unidesk/english-proficiency-api/pkg/storage"
)

const statsCacheKey = "stats:applications"

// pq unique_violation
const pgUniqueViolation = "23505"

type applicationStore interface {
	Create(ctx context.Context, app *models.Application, review *models.ApplicationReview) error
	FindByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	Stats(ctx context.Context) (*models.ApplicationStats, error)
}

type userCounter interface {
	Count(ctx context.Context) (int, error)
}

type documentStorage interface {
	SaveStream(subdir, originalName string, r io.Reader) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
}

type documentSigner interface {
	Generate(applicationID, relPath string) (string, time.Time, error)
	Parse(token string) (applicationID, relPath string, expiresAt time.Time, err error)
}

// DocumentUpload carries one multipart file destined for local storage.
type DocumentUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// DocumentDownload bundles a stored file with response metadata.
type DocumentDownload struct {
	File     *os.File
	Filename string
}

// ApplicationServiceConfig holds upload validation parameters.
type ApplicationServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// ApplicationService owns intake, listing and register aggregates.
type ApplicationService struct {
	repo      applicationStore
	users     userCounter
	storage   documentStorage
	signer    documentSigner
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ApplicationServiceConfig
	statsTTL  time.Duration
}

// NewApplicationService constructs ApplicationService.
func NewApplicationService(repo applicationStore, users userCounter, store documentStorage, signer documentSigner, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg ApplicationServiceConfig, statsTTL time.Duration) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{repo: repo, users: users, storage: store, signer: signer, cache: cache, validator: validate, logger: logger, cfg: cfg, statsTTL: statsTTL}
}

// Submit validates the intake form, stores both PDFs, then creates the
// application and its pending review atomically. Upload failures abort
// before any row is written.
func (s *ApplicationService) Submit(ctx context.Context, req dto.SubmitApplicationRequest, certificate, receipt *DocumentUpload) (*models.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	if req.PostageMode == models.PostageDelivery && strings.TrimSpace(req.PostageAddress) == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingInput, "postage address is required for delivery")
	}
	if req.PostageMode == models.PostageEmail && strings.TrimSpace(req.RecipientEmail) == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingInput, "recipient email is required for email postage")
	}
	if certificate == nil {
		return nil, appErrors.Clone(appErrors.ErrMissingInput, "certificate file is required")
	}
	if receipt == nil {
		return nil, appErrors.Clone(appErrors.ErrMissingInput, "payment receipt file is required")
	}
	if err := s.validateUpload(certificate); err != nil {
		return nil, err
	}
	if err := s.validateUpload(receipt); err != nil {
		return nil, err
	}

	certPath, err := s.storage.SaveStream(storage.SubdirCertificates, certificate.Filename, certificate.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	receiptPath, err := s.storage.SaveStream(storage.SubdirReceipts, receipt.Filename, receipt.Content)
	if err != nil {
		_ = s.storage.Delete(certPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store payment receipt")
	}

	app := &models.Application{
		Email:           req.Email,
		Surname:         req.Surname,
		Firstname:       req.Firstname,
		Middlename:      optionalString(req.Middlename),
		Sex:             req.Sex,
		MatricNumber:    req.MatricNumber,
		Department:      req.Department,
		Faculty:         req.Faculty,
		GraduationYear:  req.GraduationYear,
		DegreeClass:     req.DegreeClass,
		DegreeAwarded:   req.DegreeAwarded,
		ReferenceNumber: optionalString(req.ReferenceNumber),
		PostageAddress:  optionalString(req.PostageAddress),
		PostageMode:     req.PostageMode,
		RecipientEmail:  optionalString(req.RecipientEmail),
		RemitaRRR:       req.RemitaRRR,
		CertificatePath: certPath,
		ReceiptPath:     receiptPath,
	}
	review := &models.ApplicationReview{}

	if err := s.repo.Create(ctx, app, review); err != nil {
		_ = s.storage.Delete(certPath)
		_ = s.storage.Delete(receiptPath)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return nil, appErrors.Clone(appErrors.ErrDuplicateRRR, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, statsCacheKey)
	}

	detail, err := s.repo.FindByID(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load created application")
	}
	return detail, nil
}

// List returns applications with pagination metadata.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total, TotalPages: totalPages(total, size)}
	return rows, pagination, nil
}

// Get fetches a single application with its review state.
func (s *ApplicationService) Get(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return detail, nil
}

// WithDocumentLinks attaches signed download URLs for the stored artifacts.
func (s *ApplicationService) WithDocumentLinks(detail *models.ApplicationDetail) dto.DocumentLinkResponse {
	resp := dto.DocumentLinkResponse{ApplicationDetail: *detail}
	resp.CertificateURL = s.signedURL(detail.ID, detail.CertificatePath)
	resp.ReceiptURL = s.signedURL(detail.ID, detail.ReceiptPath)
	if detail.Review.ProcessedDocumentPath != nil {
		resp.ProcessedDocumentURL = s.signedURL(detail.ID, *detail.Review.ProcessedDocumentPath)
	}
	return resp
}

// Stats returns register counters, cached under a short TTL. TotalUsers is
// attached only for admin callers; the repository stays ignorant of roles.
func (s *ApplicationService) Stats(ctx context.Context, isAdmin bool) (*models.ApplicationStats, error) {
	var stats models.ApplicationStats
	hit, _ := s.cache.Get(ctx, statsCacheKey, &stats)
	if !hit {
		fresh, err := s.repo.Stats(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stats")
		}
		stats = *fresh
		_ = s.cache.Set(ctx, statsCacheKey, stats, s.statsTTL)
	}
	if isAdmin {
		count, err := s.users.Count(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
		}
		stats.TotalUsers = &count
	} else {
		stats.TotalUsers = nil
	}
	return &stats, nil
}

// OpenDocument validates a signed token and opens the referenced artifact.
func (s *ApplicationService) OpenDocument(ctx context.Context, token string) (*DocumentDownload, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired document link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return &DocumentDownload{File: file, Filename: relPath}, nil
}

// ExportRegister renders the filtered application register to CSV or PDF.
func (s *ApplicationService) ExportRegister(ctx context.Context, filters []models.Filter, format string) ([]byte, string, error) {
	dataset := export.Dataset{
		Headers: []string{"Matric Number", "Name", "Faculty", "Department", "Postage", "Remita RRR", "Status", "Submitted", "Decided"},
	}
	filter := models.ApplicationFilter{Filters: filters, Page: 1, PageSize: 100}
	for {
		rows, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load register")
		}
		for _, row := range rows {
			decided := ""
			if row.Review.ReviewedAt != nil {
				decided = row.Review.ReviewedAt.Format("2006-01-02")
			}
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Matric Number": row.MatricNumber,
				"Name":          strings.TrimSpace(row.Firstname + " " + row.Surname),
				"Faculty":       row.Faculty,
				"Department":    row.Department,
				"Postage":       string(row.PostageMode),
				"Remita RRR":    row.RemitaRRR,
				"Status":        string(row.Review.Status),
				"Submitted":     row.CreatedAt.Format("2006-01-02"),
				"Decided":       decided,
			})
		}
		if len(dataset.Rows) >= total || len(rows) == 0 {
			break
		}
		filter.Page++
	}

	switch format {
	case "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "", "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "English Proficiency Certification Register")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", format))
	}
}

func (s *ApplicationService) validateUpload(upload *DocumentUpload) error {
	if upload.Size <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "uploaded file is empty")
	}
	if s.cfg.MaxFileSize > 0 && upload.Size > s.cfg.MaxFileSize {
		return appErrors.Clone(appErrors.ErrValidation, "uploaded file exceeds the size limit")
	}
	if len(s.cfg.AllowedMIMEs) == 0 {
		return nil
	}
	mime := upload.MimeType
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	mime = strings.TrimSpace(mime)
	for _, allowed := range s.cfg.AllowedMIMEs {
		if strings.EqualFold(mime, allowed) {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported file type: %s", mime))
}

func (s *ApplicationService) signedURL(applicationID, relPath string) string {
	if relPath == "" || s.signer == nil {
		return ""
	}
	token, _, err := s.signer.Generate(applicationID, relPath)
	if err != nil {
		s.logger.Warn("failed to sign document link", zap.String("application_id", applicationID), zap.Error(err))
		return ""
	}
	return fmt.Sprintf("%s/documents/%s", s.cfg.APIPrefix, token)
}

func totalPages(total, size int) int {
	if size <= 0 {
		return 0
	}
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return pages
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
