package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unidesk/english-proficiency-api/internal/dto"
	"github.com/unidesk/english-proficiency-api/internal/models"
	"github.com/unidesk/english-proficiency-api/internal/repository"
	appErrors "github.com/unidesk/english-proficiency-api/pkg/errors"
	"github.com/unidesk/english-proficiency-api/pkg/storage"
)

// Notification outcomes surfaced in decision responses. The transition is
// committed either way.
const (
	NotificationQueued = "queued"
	NotificationFailed = "failed"
)

type reviewStore interface {
	FindByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	UpdateReview(ctx context.Context, params repository.UpdateReviewParams) error
}

type decisionNotifier interface {
	EnqueueDecision(detail *models.ApplicationDetail, decision models.ReviewStatus, feedback, documentURL string) error
}

// ReviewService applies reviewer decisions to applications.
type ReviewService struct {
	repo      reviewStore
	storage   documentStorage
	signer    documentSigner
	notifier  decisionNotifier
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	apiPrefix string
	now       func() time.Time
}

// NewReviewService constructs ReviewService.
func NewReviewService(repo reviewStore, store documentStorage, signer documentSigner, notifier decisionNotifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, apiPrefix string) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		repo:      repo,
		storage:   store,
		signer:    signer,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		apiPrefix: apiPrefix,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Decide validates and applies one reviewer decision. It returns the
// refreshed detail and a notification outcome for the response metadata.
func (s *ReviewService) Decide(ctx context.Context, applicationID string, req dto.DecisionRequest, document *DocumentUpload, actor *models.JWTClaims) (*models.ApplicationDetail, string, error) {
	if actor == nil {
		return nil, "", appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	detail, err := s.repo.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	current := detail.Review.Status
	switch EvaluateTransition(current, req.Decision, actor.Role) {
	case VerdictForbidden:
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "only admins can grant final approval")
	case VerdictInvalidTransition:
		return nil, "", appErrors.Clone(appErrors.ErrInvalidTransition, "")
	}

	if DocumentRequired(current, req.Decision, detail.PostageMode) && document == nil {
		return nil, "", appErrors.Clone(appErrors.ErrMissingInput, "a processed document is required for email postage")
	}

	var documentPath *string
	// rejections never carry a document, so don't store one
	if document != nil && !ClearsDocument(current, req.Decision) {
		stored, err := s.storage.SaveStream(storage.SubdirProcessed, document.Filename, document.Content)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store processed document")
		}
		documentPath = &stored
	}

	params := s.buildParams(detail, req, documentPath, actor)
	if err := s.repo.UpdateReview(ctx, params); err != nil {
		if documentPath != nil {
			_ = s.storage.Delete(*documentPath)
		}
		if errors.Is(err, repository.ErrReviewStale) {
			return nil, "", appErrors.Clone(appErrors.ErrReviewConflict, "another decision was recorded for this application")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	s.metrics.RecordDecision(string(req.Decision))
	if s.cache != nil {
		s.cache.Invalidate(ctx, statsCacheKey)
	}

	updated, err := s.repo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload application")
	}

	note := NotificationQueued
	if err := s.notifier.EnqueueDecision(updated, req.Decision, req.Feedback, s.documentURL(updated)); err != nil {
		s.logger.Warn("failed to enqueue decision notification",
			zap.String("application_id", applicationID),
			zap.String("decision", string(req.Decision)),
			zap.Error(err))
		note = NotificationFailed
	}
	return updated, note, nil
}

// buildParams computes the resulting review row for an allowed transition.
func (s *ReviewService) buildParams(detail *models.ApplicationDetail, req dto.DecisionRequest, documentPath *string, actor *models.JWTClaims) repository.UpdateReviewParams {
	now := s.now()
	params := repository.UpdateReviewParams{
		ApplicationID:         detail.ID,
		ExpectedUpdatedAt:     detail.Review.UpdatedAt,
		Status:                req.Decision,
		ReviewedBy:            &actor.UserID,
		ReviewedAt:            &now,
		Reason:                optionalString(req.Feedback),
		ProcessedDocumentPath: documentPath,
	}

	switch {
	case ClearsDocument(detail.Review.Status, req.Decision):
		params.ProcessedDocumentPath = nil
	case req.Decision == models.ReviewStatusApproved && detail.Review.Status == models.ReviewStatusPreApproved:
		// ratification keeps the pre-approval's reviewer, timestamp and
		// document unless the admin attached a replacement
		params.ReviewedBy = detail.Review.ReviewedBy
		params.ReviewedAt = detail.Review.ReviewedAt
		if documentPath == nil {
			params.ProcessedDocumentPath = detail.Review.ProcessedDocumentPath
		}
		if params.Reason == nil {
			params.Reason = detail.Review.Reason
		}
	}
	return params
}

func (s *ReviewService) documentURL(detail *models.ApplicationDetail) string {
	if detail.Review.ProcessedDocumentPath == nil || s.signer == nil {
		return ""
	}
	token, _, err := s.signer.Generate(detail.ID, *detail.Review.ProcessedDocumentPath)
	if err != nil {
		s.logger.Warn("failed to sign processed document link", zap.String("application_id", detail.ID), zap.Error(err))
		return ""
	}
	return s.apiPrefix + "/documents/" + token
}
