package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/unidesk/english-proficiency-api/internal/dto"
	"github.com/unidesk/english-proficiency-api/internal/models"
	appErrors "github.com/unidesk/english-proficiency-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	SetBanned(ctx context.Context, id string, banned bool) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type reviewHistoryStore interface {
	ListReviewedBy(ctx context.Context, reviewerID string) ([]models.ApplicationDetail, error)
}

// UserService handles reviewer account management.
type UserService struct {
	repo      userRepository
	reviews   reviewHistoryStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, reviews reviewHistoryStore, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, reviews: reviews, validator: validate, logger: logger}
}

// List returns paginated reviewer accounts and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
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
	return users, pagination, nil
}

// Get returns a reviewer profile with the applications they processed.
// Officers may only look up their own profile; admins may look up anyone.
func (s *UserService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.UserProfile, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.Role != models.RoleAdmin && actor.UserID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another reviewer's profile")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	reviewed, err := s.reviews.ListReviewedBy(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviewed applications")
	}

	return &models.UserProfile{User: *user, ReviewedApplications: reviewed}, nil
}

// Create provisions a new officer or admin account.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(passwordHash),
		FullName:     req.FullName,
		Role:         req.Role,
		Banned:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("reviewer account created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// Ban disables a reviewer account and revokes its sessions.
func (s *UserService) Ban(ctx context.Context, id string, req dto.BanUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if actor != nil && actor.UserID == id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot ban your own account")
	}
	user, err := s.setBanned(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke refresh tokens for banned user", zap.Error(err), zap.String("user_id", id))
	}
	s.logger.Info("reviewer account banned", zap.String("user_id", id), zap.String("reason", req.Reason))
	return user, nil
}

// Unban re-enables a previously banned reviewer account.
func (s *UserService) Unban(ctx context.Context, id string) (*models.User, error) {
	user, err := s.setBanned(ctx, id, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reviewer account unbanned", zap.String("user_id", id))
	return user, nil
}

func (s *UserService) setBanned(ctx context.Context, id string, banned bool) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.SetBanned(ctx, id, banned); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update ban state")
	}
	user.Banned = banned
	return user, nil
}
