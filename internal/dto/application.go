package dto

import "github.com/unidesk/english-proficiency-api/internal/models"

// SubmitApplicationRequest captures the public intake form fields. The two
// PDF uploads travel alongside it as multipart files.
type SubmitApplicationRequest struct {
	Email           string             `form:"email" validate:"required,email"`
	Surname         string             `form:"surname" validate:"required"`
	Firstname       string             `form:"firstname" validate:"required"`
	Middlename      string             `form:"middlename"`
	Sex             models.Sex         `form:"sex" validate:"required,oneof=male female"`
	MatricNumber    string             `form:"matric_number" validate:"required"`
	Department      string             `form:"department" validate:"required"`
	Faculty         string             `form:"faculty" validate:"required"`
	GraduationYear  string             `form:"graduation_year" validate:"required"`
	DegreeClass     string             `form:"degree_class" validate:"required"`
	DegreeAwarded   string             `form:"degree_awarded" validate:"required"`
	ReferenceNumber string             `form:"reference_number"`
	PostageAddress  string             `form:"postage_address"`
	PostageMode     models.PostageMode `form:"postage_mode" validate:"required,oneof=email hand_collection delivery"`
	RecipientEmail  string             `form:"recipient_email" validate:"omitempty,email"`
	RemitaRRR       string             `form:"remita_rrr" validate:"required"`
}

// DecisionRequest carries a reviewer's decision on an application. An
// optional processed document upload accompanies it as a multipart file.
type DecisionRequest struct {
	Decision models.ReviewStatus `form:"decision" validate:"required,oneof=PRE_APPROVED APPROVED REJECTED"`
	Feedback string              `form:"feedback"`
}

// DocumentLinkResponse enriches a detail payload with signed download URLs
// for the stored artifacts.
type DocumentLinkResponse struct {
	models.ApplicationDetail
	CertificateURL       string `json:"certificate_url,omitempty"`
	ReceiptURL           string `json:"receipt_url,omitempty"`
	ProcessedDocumentURL string `json:"processed_document_url,omitempty"`
}
