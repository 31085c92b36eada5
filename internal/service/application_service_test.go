package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unidesk/english-proficiency-api/internal/dto"
	"github.com/unidesk/english-proficiency-api/internal/models"
	appErrors "github.com/unidesk/english-proficiency-api/pkg/errors"
)

type mockApplicationStore struct {
	details   map[string]*models.ApplicationDetail
	createErr error
	stats     *models.ApplicationStats
	statsErr  error
	statsHits int
	listRows  []models.ApplicationDetail
	listTotal int
}

func (m *mockApplicationStore) Create(ctx context.Context, app *models.Application, review *models.ApplicationReview) error {
	if m.createErr != nil {
		return m.createErr
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if m.details == nil {
		m.details = make(map[string]*models.ApplicationDetail)
	}
	m.details[app.ID] = &models.ApplicationDetail{
		Application: *app,
		Review: models.ApplicationReview{
			ID:            uuid.NewString(),
			ApplicationID: app.ID,
			Status:        models.ReviewStatusPending,
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		},
	}
	return nil
}

func (m *mockApplicationStore) FindByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, ok := m.details[id]
	if !ok {
		return nil, fmt.Errorf("unexpected lookup: %s", id)
	}
	copy := *detail
	return &copy, nil
}

func (m *mockApplicationStore) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	if filter.Page > 1 {
		return nil, m.listTotal, nil
	}
	return m.listRows, m.listTotal, nil
}

func (m *mockApplicationStore) Stats(ctx context.Context) (*models.ApplicationStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	m.statsHits++
	return m.stats, nil
}

type mockUserCounter struct {
	count int
}

func (m *mockUserCounter) Count(ctx context.Context) (int, error) {
	return m.count, nil
}

type memoryCacheRepo struct {
	entries map[string][]byte
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, key string) error {
	delete(m.entries, key)
	return nil
}

func validSubmitRequest(postage models.PostageMode) dto.SubmitApplicationRequest {
	req := dto.SubmitApplicationRequest{
		Email:          "ada.okafor@example.com",
		Surname:        "Okafor",
		Firstname:      "Ada",
		Sex:            models.SexFemale,
		MatricNumber:   "CSC/2019/001",
		Department:     "Computer Science",
		Faculty:        "Science",
		GraduationYear: "2023",
		DegreeClass:    "First Class",
		DegreeAwarded:  "B.Sc Computer Science",
		PostageMode:    postage,
		RemitaRRR:      "240007777777",
	}
	switch postage {
	case models.PostageDelivery:
		req.PostageAddress = "12 University Road, Nsukka"
	case models.PostageEmail:
		req.RecipientEmail = "admissions@abroad.example.edu"
	}
	return req
}

func pdfUpload(name string) *DocumentUpload {
	return &DocumentUpload{Filename: name, Size: 2048, MimeType: "application/pdf", Content: strings.NewReader("%PDF-1.4")}
}

func newApplicationService(store *mockApplicationStore, storage *mockStorage, cache *CacheService) *ApplicationService {
	cfg := ApplicationServiceConfig{MaxFileSize: 5 << 20, AllowedMIMEs: []string{"application/pdf"}, APIPrefix: "/api/v1"}
	return NewApplicationService(store, &mockUserCounter{count: 4}, storage, &mockSigner{}, cache, nil, nil, cfg, time.Minute)
}

func TestSubmitCreatesPendingReview(t *testing.T) {
	store := &mockApplicationStore{}
	storage := &mockStorage{}
	svc := newApplicationService(store, storage, nil)

	detail, err := svc.Submit(context.Background(), validSubmitRequest(models.PostageHandCollection), pdfUpload("certificate.pdf"), pdfUpload("receipt.pdf"))
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPending, detail.Review.Status)
	assert.Nil(t, detail.Review.ReviewedBy)
	assert.Len(t, storage.saved, 2)
}

func TestSubmitPostageConditionalFields(t *testing.T) {
	svc := newApplicationService(&mockApplicationStore{}, &mockStorage{}, nil)

	delivery := validSubmitRequest(models.PostageDelivery)
	delivery.PostageAddress = ""
	_, err := svc.Submit(context.Background(), delivery, pdfUpload("c.pdf"), pdfUpload("r.pdf"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingInput.Code, appErrors.FromError(err).Code)

	email := validSubmitRequest(models.PostageEmail)
	email.RecipientEmail = ""
	_, err = svc.Submit(context.Background(), email, pdfUpload("c.pdf"), pdfUpload("r.pdf"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingInput.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsOversizedAndNonPDFUploads(t *testing.T) {
	svc := newApplicationService(&mockApplicationStore{}, &mockStorage{}, nil)
	req := validSubmitRequest(models.PostageHandCollection)

	big := pdfUpload("certificate.pdf")
	big.Size = 6 << 20
	_, err := svc.Submit(context.Background(), req, big, pdfUpload("receipt.pdf"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	png := pdfUpload("certificate.png")
	png.MimeType = "image/png"
	_, err = svc.Submit(context.Background(), req, png, pdfUpload("receipt.pdf"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitDuplicateRRRCleansUpStoredFiles(t *testing.T) {
	store := &mockApplicationStore{createErr: &pq.Error{Code: "23505"}}
	storage := &mockStorage{}
	svc := newApplicationService(store, storage, nil)

	_, err := svc.Submit(context.Background(), validSubmitRequest(models.PostageHandCollection), pdfUpload("c.pdf"), pdfUpload("r.pdf"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateRRR.Code, appErrors.FromError(err).Code)
	assert.Len(t, storage.deleted, 2)
}

func TestSubmitReceiptFailureRemovesCertificate(t *testing.T) {
	storage := &mockStorage{}
	svc := newApplicationService(&mockApplicationStore{}, storage, nil)

	req := validSubmitRequest(models.PostageHandCollection)
	certificate := pdfUpload("certificate.pdf")
	receipt := pdfUpload("receipt.pdf")

	// second save fails
	storage.saveErr = nil
	storage.failAfter = 1
	_, err := svc.Submit(context.Background(), req, certificate, receipt)
	require.Error(t, err)
	assert.Equal(t, storage.saved, storage.deleted)
}

func TestListClampsPagination(t *testing.T) {
	store := &mockApplicationStore{listTotal: 45}
	svc := newApplicationService(store, &mockStorage{}, nil)

	_, pagination, err := svc.List(context.Background(), models.ApplicationFilter{Page: -3, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 45, pagination.TotalCount)
	assert.Equal(t, 3, pagination.TotalPages)
}

func TestStatsCachedAndRoleScoped(t *testing.T) {
	store := &mockApplicationStore{stats: &models.ApplicationStats{Total: 10, Pending: 4, Approved: 3}}
	cache := NewCacheService(&memoryCacheRepo{}, nil, time.Minute, nil)
	svc := newApplicationService(store, &mockStorage{}, cache)

	officerStats, err := svc.Stats(context.Background(), false)
	require.NoError(t, err)
	assert.Nil(t, officerStats.TotalUsers)
	assert.Equal(t, 10, officerStats.Total)

	adminStats, err := svc.Stats(context.Background(), true)
	require.NoError(t, err)
	require.NotNil(t, adminStats.TotalUsers)
	assert.Equal(t, 4, *adminStats.TotalUsers)

	// second call served from cache
	assert.Equal(t, 1, store.statsHits)
}

func TestExportRegisterFormats(t *testing.T) {
	reviewedAt := time.Now().UTC()
	store := &mockApplicationStore{
		listRows: []models.ApplicationDetail{
			{
				Application: models.Application{
					MatricNumber: "CSC/2019/001",
					Firstname:    "Ada",
					Surname:      "Okafor",
					Faculty:      "Science",
					Department:   "Computer Science",
					PostageMode:  models.PostageEmail,
					RemitaRRR:    "240007777777",
					CreatedAt:    time.Now().UTC(),
				},
				Review: models.ApplicationReview{Status: models.ReviewStatusApproved, ReviewedAt: &reviewedAt},
			},
		},
		listTotal: 1,
	}
	svc := newApplicationService(store, &mockStorage{}, nil)

	csvPayload, contentType, err := svc.ExportRegister(context.Background(), nil, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(csvPayload), "CSC/2019/001")
	assert.Contains(t, string(csvPayload), "APPROVED")

	pdfPayload, contentType, err := svc.ExportRegister(context.Background(), nil, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, pdfPayload)

	_, _, err = svc.ExportRegister(context.Background(), nil, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWithDocumentLinksSignsStoredArtifacts(t *testing.T) {
	svc := newApplicationService(&mockApplicationStore{}, &mockStorage{}, nil)
	docPath := "processed_documents/letter.pdf"
	detail := &models.ApplicationDetail{
		Application: models.Application{ID: "app-1", CertificatePath: "certificates/c.pdf", ReceiptPath: "receipts/r.pdf"},
		Review:      models.ApplicationReview{ProcessedDocumentPath: &docPath},
	}

	resp := svc.WithDocumentLinks(detail)
	assert.Equal(t, "/api/v1/documents/token-app-1", resp.CertificateURL)
	assert.Equal(t, "/api/v1/documents/token-app-1", resp.ReceiptURL)
	assert.Equal(t, "/api/v1/documents/token-app-1", resp.ProcessedDocumentURL)
}
