package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unidesk/english-proficiency-api/internal/dto"
	"github.com/unidesk/english-proficiency-api/internal/models"
	"github.com/unidesk/english-proficiency-api/internal/repository"
	appErrors "github.com/unidesk/english-proficiency-api/pkg/errors"
)

type mockReviewStore struct {
	details    map[string]*models.ApplicationDetail
	updateErr  error
	lastParams *repository.UpdateReviewParams
}

func (m *mockReviewStore) FindByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, ok := m.details[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *detail
	return &copy, nil
}

func (m *mockReviewStore) UpdateReview(ctx context.Context, params repository.UpdateReviewParams) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.lastParams = &params
	detail := m.details[params.ApplicationID]
	detail.Review.Status = params.Status
	detail.Review.ReviewedBy = params.ReviewedBy
	detail.Review.ReviewedAt = params.ReviewedAt
	detail.Review.Reason = params.Reason
	detail.Review.ProcessedDocumentPath = params.ProcessedDocumentPath
	detail.Review.UpdatedAt = time.Now().UTC()
	return nil
}

type mockStorage struct {
	saved   []string
	deleted []string
	saveErr error
	// failAfter makes SaveStream fail once this many saves succeeded
	failAfter int
}

func (m *mockStorage) SaveStream(subdir, originalName string, r io.Reader) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	if m.failAfter > 0 && len(m.saved) >= m.failAfter {
		return "", fmt.Errorf("disk full")
	}
	path := subdir + "/" + originalName
	m.saved = append(m.saved, path)
	return path, nil
}

func (m *mockStorage) Open(relPath string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (m *mockStorage) Delete(relPath string) error {
	m.deleted = append(m.deleted, relPath)
	return nil
}

type mockSigner struct{}

func (m *mockSigner) Generate(applicationID, relPath string) (string, time.Time, error) {
	return "token-" + applicationID, time.Now().Add(time.Hour), nil
}

func (m *mockSigner) Parse(token string) (string, string, time.Time, error) {
	return "", "", time.Time{}, fmt.Errorf("not implemented")
}

type mockNotifier struct {
	enqueued   []models.ReviewStatus
	enqueueErr error
}

func (m *mockNotifier) EnqueueDecision(detail *models.ApplicationDetail, decision models.ReviewStatus, feedback, documentURL string) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, decision)
	return nil
}

func pendingDetail(id string, postage models.PostageMode) *models.ApplicationDetail {
	return &models.ApplicationDetail{
		Application: models.Application{
			ID:           id,
			Email:        "applicant@example.com",
			Surname:      "Okafor",
			Firstname:    "Ada",
			MatricNumber: "CSC/2019/001",
			PostageMode:  postage,
			CreatedAt:    time.Now().UTC().Add(-time.Hour),
		},
		Review: models.ApplicationReview{
			ID:            "rev-" + id,
			ApplicationID: id,
			Status:        models.ReviewStatusPending,
			CreatedAt:     time.Now().UTC().Add(-time.Hour),
			UpdatedAt:     time.Now().UTC().Add(-time.Hour),
		},
	}
}

func newReviewService(store *mockReviewStore, storage *mockStorage, notifier *mockNotifier) *ReviewService {
	return NewReviewService(store, storage, &mockSigner{}, notifier, nil, nil, nil, nil, "/api/v1")
}

func officerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "officer-1", Role: models.RoleOfficer, Email: "officer@example.com"}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, Email: "admin@example.com"}
}

func TestDecideOfficerPreApprovesDeliveryApplication(t *testing.T) {
	store := &mockReviewStore{details: map[string]*models.ApplicationDetail{
		"app-1": pendingDetail("app-1", models.PostageDelivery),
	}}
	notifier := &mockNotifier{}
	svc := newReviewService(store, &mockStorage{}, notifier)

	detail, note, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusPreApproved}, nil, officerClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPreApproved, detail.Review.Status)
	assert.Equal(t, NotificationQueued, note)
	require.NotNil(t, detail.Review.ReviewedBy)
	assert.Equal(t, "officer-1", *detail.Review.ReviewedBy)
	assert.Equal(t, []models.ReviewStatus{models.ReviewStatusPreApproved}, notifier.enqueued)
}

func TestDecideOfficerCannotApprove(t *testing.T) {
	store := &mockReviewStore{details: map[string]*models.ApplicationDetail{
		"app-1": pendingDetail("app-1", models.PostageDelivery),
	}}
	svc := newReviewService(store, &mockStorage{}, &mockNotifier{})

	_, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusApproved}, nil, officerClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestDecideAdminRatificationRetainsOriginalReviewer(t *testing.T) {
	detail := pendingDetail("app-1", models.PostageDelivery)
	reviewedAt := time.Now().UTC().Add(-30 * time.Minute)
	officerID := "officer-1"
	reason := "documents verified"
	detail.Review.Status = models.ReviewStatusPreApproved
	detail.Review.ReviewedBy = &officerID
	detail.Review.ReviewedAt = &reviewedAt
	detail.Review.Reason = &reason

	store := &mockReviewStore{details: map[string]*models.ApplicationDetail{"app-1": detail}}
	svc := newReviewService(store, &mockStorage{}, &mockNotifier{})

	updated, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusApproved}, nil, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, updated.Review.Status)
	require.NotNil(t, updated.Review.ReviewedBy)
	assert.Equal(t, officerID, *updated.Review.ReviewedBy)
	require.NotNil(t, updated.Review.ReviewedAt)
	assert.True(t, updated.Review.ReviewedAt.Equal(reviewedAt))
	require.NotNil(t, updated.Review.Reason)
	assert.Equal(t, reason, *updated.Review.Reason)

	// terminal: a second decision must be rejected
	_, _, err = svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusRejected}, nil, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestDecideEmailPostageRequiresProcessedDocument(t *testing.T) {
	store := &mockReviewStore{details: map[string]*models.ApplicationDetail{
		"app-1": pendingDetail("app-1", models.PostageEmail),
	}}
	storage := &mockStorage{}
	svc := newReviewService(store, storage, &mockNotifier{})

	_, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusPreApproved}, nil, officerClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingInput.Code, appErrors.FromError(err).Code)

	document := &DocumentUpload{Filename: "letter.pdf", Size: 128, MimeType: "application/pdf", Content: nil}
	detail, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusPreApproved}, document, officerClaims())
	require.NoError(t, err)
	require.NotNil(t, detail.Review.ProcessedDocumentPath)
	assert.Len(t, storage.saved, 1)
}

func TestDecideRejectionClearsProcessedDocument(t *testing.T) {
	detail := pendingDetail("app-1", models.PostageEmail)
	docPath := "processed_documents/letter.pdf"
	officerID := "officer-1"
	reviewedAt := time.Now().UTC()
	detail.Review.Status = models.ReviewStatusPreApproved
	detail.Review.ReviewedBy = &officerID
	detail.Review.ReviewedAt = &reviewedAt
	detail.Review.ProcessedDocumentPath = &docPath

	store := &mockReviewStore{details: map[string]*models.ApplicationDetail{"app-1": detail}}
	svc := newReviewService(store, &mockStorage{}, &mockNotifier{})

	updated, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusRejected, Feedback: "receipt mismatch"}, nil, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusRejected, updated.Review.Status)
	assert.Nil(t, updated.Review.ProcessedDocumentPath)
	require.NotNil(t, updated.Review.Reason)
	assert.Equal(t, "receipt mismatch", *updated.Review.Reason)
}

func TestDecideRejectionDiscardsAttachedDocument(t *testing.T) {
	detail := pendingDetail("app-1", models.PostageEmail)
	store := &mockReviewStore{details: map[string]*models.ApplicationDetail{"app-1": detail}}
	storage := &mockStorage{}
	svc := newReviewService(store, storage, &mockNotifier{})

	updated, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusRejected, Feedback: "forged certificate"}, pdfUpload("letter.pdf"), officerClaims())
	require.NoError(t, err)
	assert.Nil(t, updated.Review.ProcessedDocumentPath)
	assert.Empty(t, storage.saved, "a rejection must not leave a stored document behind")
	assert.Empty(t, storage.deleted)
}

func TestDecideConcurrentModificationConflicts(t *testing.T) {
	store := &mockReviewStore{
		details: map[string]*models.ApplicationDetail{
			"app-1": pendingDetail("app-1", models.PostageDelivery),
		},
		updateErr: repository.ErrReviewStale,
	}
	svc := newReviewService(store, &mockStorage{}, &mockNotifier{})

	_, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusPreApproved}, nil, officerClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrReviewConflict.Code, appErrors.FromError(err).Code)
}

func TestDecideStoredDocumentRemovedWhenUpdateFails(t *testing.T) {
	store := &mockReviewStore{
		details: map[string]*models.ApplicationDetail{
			"app-1": pendingDetail("app-1", models.PostageEmail),
		},
		updateErr: repository.ErrReviewStale,
	}
	storage := &mockStorage{}
	svc := newReviewService(store, storage, &mockNotifier{})

	document := &DocumentUpload{Filename: "letter.pdf", Size: 128, MimeType: "application/pdf"}
	_, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusPreApproved}, document, officerClaims())
	require.Error(t, err)
	assert.Len(t, storage.deleted, 1)
}

func TestDecideNotificationFailureDoesNotRollBack(t *testing.T) {
	store := &mockReviewStore{details: map[string]*models.ApplicationDetail{
		"app-1": pendingDetail("app-1", models.PostageDelivery),
	}}
	notifier := &mockNotifier{enqueueErr: fmt.Errorf("queue full")}
	svc := newReviewService(store, &mockStorage{}, notifier)

	detail, note, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusRejected, Feedback: "incomplete"}, nil, officerClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusRejected, detail.Review.Status)
	assert.Equal(t, NotificationFailed, note)
}

func TestDecideUnknownApplication(t *testing.T) {
	svc := newReviewService(&mockReviewStore{details: map[string]*models.ApplicationDetail{}}, &mockStorage{}, &mockNotifier{})

	_, _, err := svc.Decide(context.Background(), "missing", dto.DecisionRequest{Decision: models.ReviewStatusRejected}, nil, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDecideRequiresAuthenticatedActor(t *testing.T) {
	svc := newReviewService(&mockReviewStore{}, &mockStorage{}, &mockNotifier{})

	_, _, err := svc.Decide(context.Background(), "app-1", dto.DecisionRequest{Decision: models.ReviewStatusRejected}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
