package models

import "time"

// Sex enumerates applicant sex as captured on the intake form.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// PostageMode describes how the processed certificate is returned.
type PostageMode string

const (
	PostageEmail          PostageMode = "email"
	PostageHandCollection PostageMode = "hand_collection"
	PostageDelivery       PostageMode = "delivery"
)

// ReviewStatus captures the workflow state of an application review.
type ReviewStatus string

const (
	ReviewStatusPending     ReviewStatus = "PENDING"
	ReviewStatusPreApproved ReviewStatus = "PRE_APPROVED"
	ReviewStatusApproved    ReviewStatus = "APPROVED"
	ReviewStatusRejected    ReviewStatus = "REJECTED"
)

// Application is one applicant's certification request. Rows are immutable
// after creation; only the attached review record changes.
type Application struct {
	ID              string      `db:"id" json:"id"`
	Email           string      `db:"email" json:"email"`
	Surname         string      `db:"surname" json:"surname"`
	Firstname       string      `db:"firstname" json:"firstname"`
	Middlename      *string     `db:"middlename" json:"middlename,omitempty"`
	Sex             Sex         `db:"sex" json:"sex"`
	MatricNumber    string      `db:"matric_number" json:"matric_number"`
	Department      string      `db:"department" json:"department"`
	Faculty         string      `db:"faculty" json:"faculty"`
	GraduationYear  string      `db:"graduation_year" json:"graduation_year"`
	DegreeClass     string      `db:"degree_class" json:"degree_class"`
	DegreeAwarded   string      `db:"degree_awarded" json:"degree_awarded"`
	ReferenceNumber *string     `db:"reference_number" json:"reference_number,omitempty"`
	PostageAddress  *string     `db:"postage_address" json:"postage_address,omitempty"`
	PostageMode     PostageMode `db:"postage_mode" json:"postage_mode"`
	RecipientEmail  *string     `db:"recipient_email" json:"recipient_email,omitempty"`
	RemitaRRR       string      `db:"remita_rrr" json:"remita_rrr"`
	CertificatePath string      `db:"certificate_path" json:"certificate_path"`
	ReceiptPath     string      `db:"receipt_path" json:"receipt_path"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// ApplicationReview is the mutable decision record attached 1:1 to an
// application. It is created in the same transaction as the application row.
type ApplicationReview struct {
	ID                    string       `db:"id" json:"id"`
	ApplicationID         string       `db:"application_id" json:"application_id"`
	Status                ReviewStatus `db:"status" json:"status"`
	ProcessedDocumentPath *string      `db:"processed_document_path" json:"processed_document_path,omitempty"`
	ReviewedBy            *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	Reason                *string      `db:"reason" json:"reason,omitempty"`
	CreatedAt             time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updated_at"`
}

// ApplicationDetail joins an application with its review and, when a
// decision was recorded, the reviewer's display name.
type ApplicationDetail struct {
	Application
	Review       ApplicationReview `db:"review" json:"review"`
	ReviewerName *string           `db:"reviewer_name" json:"reviewer_name,omitempty"`
}

// Filter is one caller-supplied {field,value} pair narrowing a list query.
// Unrecognized fields are dropped by the repository's predicate registry.
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ApplicationFilter constrains and pages the application register.
type ApplicationFilter struct {
	Filters  []Filter
	Page     int
	PageSize int
}

// ApplicationStats aggregates register counters for the dashboard.
// TotalUsers is populated only for admin callers.
type ApplicationStats struct {
	Total      int  `json:"total"`
	Pending    int  `json:"pending"`
	Approved   int  `json:"approved"`
	TotalUsers *int `json:"total_users,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
