package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unidesk/english-proficiency-api/internal/models"
	"github.com/unidesk/english-proficiency-api/pkg/jobs"
	"github.com/unidesk/english-proficiency-api/pkg/mail"
)

const jobTypeDecisionMail = "decision_mail"

// DecisionNotification is the payload carried by a queued decision email.
type DecisionNotification struct {
	To            []string
	ApplicantName string
	Decision      models.ReviewStatus
	Feedback      string
	PostageMode   models.PostageMode
	DocumentURL   string
}

type mailSender interface {
	Send(msg mail.Message) error
}

type notificationQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationService composes decision emails and hands them to the
// background queue. Delivery failure never affects the committed decision.
type NotificationService struct {
	queue   notificationQueue
	sender  mailSender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the service. Wire HandleJob as the
// queue handler before starting the queue.
func NewNotificationService(sender mailSender, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{sender: sender, metrics: metrics, logger: logger}
}

// AttachQueue late-binds the queue; the queue itself needs HandleJob first.
func (s *NotificationService) AttachQueue(queue notificationQueue) {
	s.queue = queue
}

// EnqueueDecision schedules a notification for a committed transition.
// Recipients are the applicant, plus the designated recipient when the
// certificate travels by email.
func (s *NotificationService) EnqueueDecision(detail *models.ApplicationDetail, decision models.ReviewStatus, feedback, documentURL string) error {
	if s.queue == nil {
		return fmt.Errorf("notification queue not attached")
	}
	to := []string{detail.Email}
	if detail.PostageMode == models.PostageEmail && detail.RecipientEmail != nil && *detail.RecipientEmail != "" {
		to = append(to, *detail.RecipientEmail)
	}
	payload := DecisionNotification{
		To:            to,
		ApplicantName: strings.TrimSpace(detail.Firstname + " " + detail.Surname),
		Decision:      decision,
		Feedback:      feedback,
		PostageMode:   detail.PostageMode,
		DocumentURL:   documentURL,
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeDecisionMail,
		Payload: payload,
	})
}

// HandleJob delivers one queued notification. Returning an error lets the
// queue retry with backoff.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(DecisionNotification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	msg := mail.Message{
		To:      payload.To,
		Subject: subjectFor(payload.Decision),
		HTML:    renderDecisionBody(payload),
	}
	if err := s.sender.Send(msg); err != nil {
		s.metrics.RecordMailOutcome("failure")
		return err
	}
	s.metrics.RecordMailOutcome("success")
	return nil
}

func subjectFor(decision models.ReviewStatus) string {
	switch decision {
	case models.ReviewStatusPreApproved:
		return "English Proficiency Certification - Request Pre-Approved"
	case models.ReviewStatusApproved:
		return "English Proficiency Certification - Request Approved"
	case models.ReviewStatusRejected:
		return "English Proficiency Certification - Request Rejected"
	default:
		return "English Proficiency Certification - Request Update"
	}
}

func renderDecisionBody(n DecisionNotification) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<p>Dear %s,</p>", html.EscapeString(n.ApplicantName)))
	switch n.Decision {
	case models.ReviewStatusApproved:
		b.WriteString("<p>Your English proficiency certification request has been approved.</p>")
	case models.ReviewStatusPreApproved:
		b.WriteString("<p>Your English proficiency certification request has passed initial review and is awaiting final approval.</p>")
	case models.ReviewStatusRejected:
		b.WriteString("<p>Your English proficiency certification request has been rejected.</p>")
	}
	if n.Feedback != "" {
		b.WriteString(fmt.Sprintf("<p>Reviewer remarks: %s</p>", html.EscapeString(n.Feedback)))
	}
	switch n.PostageMode {
	case models.PostageEmail:
		if n.DocumentURL != "" {
			b.WriteString(fmt.Sprintf(`<p>Your processed certificate is available <a href="%s">here</a>.</p>`, n.DocumentURL))
		}
	case models.PostageHandCollection:
		b.WriteString("<p>Your certificate will be available for collection at the certification desk.</p>")
	case models.PostageDelivery:
		b.WriteString("<p>Your certificate will be dispatched to the postage address you provided.</p>")
	}
	b.WriteString("<p>University Certification Desk</p>")
	return b.String()
}
