package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unidesk/english-proficiency-api/internal/models"
)

// ErrReviewStale reports that the optimistic guard on a review update did
// not match any row: another decision landed first.
var ErrReviewStale = errors.New("application review modified concurrently")

// predicateBuilder appends the filter value to args and returns the SQL
// condition referencing it. Registering builders here instead of switching on
// field names means unknown filter fields no-op by construction.
type predicateBuilder func(value string, args *[]interface{}) string

var filterPredicates = map[string]predicateBuilder{
	"status": func(v string, args *[]interface{}) string {
		*args = append(*args, v)
		return fmt.Sprintf("r.status = $%d", len(*args))
	},
	"faculty": func(v string, args *[]interface{}) string {
		*args = append(*args, v)
		return fmt.Sprintf("a.faculty = $%d", len(*args))
	},
	"course_of_study": func(v string, args *[]interface{}) string {
		*args = append(*args, v)
		return fmt.Sprintf("a.department = $%d", len(*args))
	},
	// Substring match on either name component. Matching stays
	// case-sensitive to mirror the behaviour the admin UI relies on.
	"applicantName": func(v string, args *[]interface{}) string {
		*args = append(*args, "%"+v+"%")
		return fmt.Sprintf("(a.firstname LIKE $%d OR a.surname LIKE $%d)", len(*args), len(*args))
	},
	"matriculationNumber": func(v string, args *[]interface{}) string {
		*args = append(*args, v)
		return fmt.Sprintf("a.matric_number = $%d", len(*args))
	},
}

const detailColumns = `a.id, a.email, a.surname, a.firstname, a.middlename, a.sex, a.matric_number,
        a.department, a.faculty, a.graduation_year, a.degree_class, a.degree_awarded,
        a.reference_number, a.postage_address, a.postage_mode, a.recipient_email, a.remita_rrr,
        a.certificate_path, a.receipt_path, a.created_at,
        r.id AS "review.id", r.application_id AS "review.application_id", r.status AS "review.status",
        r.processed_document_path AS "review.processed_document_path", r.reviewed_by AS "review.reviewed_by",
        r.reviewed_at AS "review.reviewed_at", r.reason AS "review.reason",
        r.created_at AS "review.created_at", r.updated_at AS "review.updated_at",
        u.full_name AS reviewer_name`

const detailBase = `FROM applications a
        INNER JOIN application_reviews r ON r.application_id = a.id
        LEFT JOIN users u ON u.id = r.reviewed_by`

// UpdateReviewParams carries the full resulting review state for a decision.
// ExpectedUpdatedAt guards against two reviewers racing on the same
// application: the update only lands when the row is unchanged since read.
type UpdateReviewParams struct {
	ApplicationID         string
	ExpectedUpdatedAt     time.Time
	Status                models.ReviewStatus
	ReviewedBy            *string
	ReviewedAt            *time.Time
	Reason                *string
	ProcessedDocumentPath *string
}

// ApplicationRepository owns persistence for applications and their reviews.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs an ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts the application row and its pending review inside one
// transaction. Either both rows exist afterwards or neither does.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application, review *models.ApplicationReview) error {
	now := time.Now().UTC()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	review.ApplicationID = app.ID
	review.Status = models.ReviewStatusPending
	review.CreatedAt = now
	review.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create application: %w", err)
	}

	const insertApplication = `INSERT INTO applications (id, email, surname, firstname, middlename, sex, matric_number,
        department, faculty, graduation_year, degree_class, degree_awarded, reference_number, postage_address,
        postage_mode, recipient_email, remita_rrr, certificate_path, receipt_path, created_at)
        VALUES (:id, :email, :surname, :firstname, :middlename, :sex, :matric_number,
        :department, :faculty, :graduation_year, :degree_class, :degree_awarded, :reference_number, :postage_address,
        :postage_mode, :recipient_email, :remita_rrr, :certificate_path, :receipt_path, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertApplication, app); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert application: %w", err)
	}

	const insertReview = `INSERT INTO application_reviews (id, application_id, status, processed_document_path,
        reviewed_by, reviewed_at, reason, created_at, updated_at)
        VALUES (:id, :application_id, :status, :processed_document_path, :reviewed_by, :reviewed_at, :reason, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertReview, review); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert application review: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create application: %w", err)
	}
	return nil
}

// FindByID fetches an application with its review and reviewer name.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE a.id = $1", detailColumns, detailBase)
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns applications matching the recognized filters, newest review
// first, along with the total count under the same predicate set.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	for _, f := range filter.Filters {
		builder, ok := filterPredicates[f.Field]
		if !ok {
			continue
		}
		conditions = append(conditions, builder(f.Value, &args))
	}

	base := fmt.Sprintf("%s WHERE %s", detailBase, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", detailColumns, base, size, offset)

	var rows []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return rows, total, nil
}

// UpdateReview persists a decision. ErrReviewStale means the guard failed:
// the review changed between read and write.
func (r *ApplicationRepository) UpdateReview(ctx context.Context, params UpdateReviewParams) error {
	const query = `UPDATE application_reviews
        SET status = $1, reviewed_by = $2, reviewed_at = $3, reason = $4, processed_document_path = $5, updated_at = $6
        WHERE application_id = $7 AND updated_at = $8`
	res, err := r.db.ExecContext(ctx, query,
		params.Status,
		params.ReviewedBy,
		params.ReviewedAt,
		params.Reason,
		params.ProcessedDocumentPath,
		time.Now().UTC(),
		params.ApplicationID,
		params.ExpectedUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update application review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application review: %w", err)
	}
	if affected == 0 {
		return ErrReviewStale
	}
	return nil
}

// Stats returns aggregate register counters in a single query.
func (r *ApplicationRepository) Stats(ctx context.Context) (*models.ApplicationStats, error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
        COUNT(*) FILTER (WHERE status = 'APPROVED') AS approved
        FROM application_reviews`
	var stats models.ApplicationStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("application stats: %w", err)
	}
	return &stats, nil
}

// ListReviewedBy returns the applications a reviewer has decided on.
func (r *ApplicationRepository) ListReviewedBy(ctx context.Context, reviewerID string) ([]models.ApplicationDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE r.reviewed_by = $1 ORDER BY r.reviewed_at DESC", detailColumns, detailBase)
	var rows []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &rows, query, reviewerID); err != nil {
		return nil, fmt.Errorf("list reviewed applications: %w", err)
	}
	return rows, nil
}
