package contact

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/thobenayann/hexoprint-sub001/internal/mail"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/requestctx"
)

var (
	// ErrDelivery is returned when either email could not be sent.
	ErrDelivery = errors.New("contact: email delivery failed")
	// ErrMailerMissing signals that no mailer was supplied.
	ErrMailerMissing = errors.New("contact: mailer is not configured")
)

// SubmittedEvent is published after both emails went out.
type SubmittedEvent struct {
	SubmissionID string    `json:"submissionId"`
	MessageID    string    `json:"messageId"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Company      string    `json:"company,omitempty"`
	Budget       string    `json:"budget,omitempty"`
	Deadline     string    `json:"deadline,omitempty"`
	FileCount    int       `json:"fileCount"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// EventPublisher announces accepted submissions.
type EventPublisher interface {
	PublishContactSubmitted(ctx context.Context, event SubmittedEvent) error
}

// Receipt is returned for accepted submissions.
type Receipt struct {
	SubmissionID string
	MessageID    string
}

// ServiceDeps groups constructor parameters for the contact service.
type ServiceDeps struct {
	Mailer          mail.Mailer
	Publisher       EventPublisher
	From            string
	AdminRecipients []string
	CompanyName     string
	Clock           func() time.Time
	Logger          *zap.Logger
}

// Service validates submissions and sends the admin notification and the customer
// confirmation.
type Service struct {
	mailer    mail.Mailer
	publisher EventPublisher
	validator *Validator
	sanitize  sanitizer
	from      string
	admins    []string
	company   string
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the contact service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Mailer == nil {
		return nil, ErrMailerMissing
	}
	admins := make([]string, 0, len(deps.AdminRecipients))
	for _, a := range deps.AdminRecipients {
		if a = strings.TrimSpace(a); a != "" {
			admins = append(admins, a)
		}
	}
	if len(admins) == 0 {
		return nil, errors.New("contact: at least one admin recipient is required")
	}
	if strings.TrimSpace(deps.From) == "" {
		return nil, errors.New("contact: sender address is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	company := strings.TrimSpace(deps.CompanyName)
	if company == "" {
		company = "HexoPrint"
	}
	return &Service{
		mailer:    deps.Mailer,
		publisher: deps.Publisher,
		validator: NewValidator(),
		sanitize:  newSanitizer(),
		from:      deps.From,
		admins:    admins,
		company:   company,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// Submit validates s and sends both emails. It returns a *ValidationError for schema failures
// and ErrDelivery when the provider rejects either message.
func (svc *Service) Submit(ctx context.Context, s Submission) (Receipt, error) {
	s = s.Normalize()
	if err := svc.validator.Validate(s); err != nil {
		return Receipt{}, err
	}

	now := svc.clock()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return Receipt{}, fmt.Errorf("contact: generate id: %w", err)
	}
	data := templateData{
		Submission:  svc.sanitize.submission(s),
		ID:          id.String(),
		ReceivedAt:  formatReceived(now),
		CompanyName: svc.company,
	}

	adminHTML, err := render(adminTemplate, data)
	if err != nil {
		return Receipt{}, err
	}
	customerHTML, err := render(customerTemplate, data)
	if err != nil {
		return Receipt{}, err
	}

	logger := requestctx.Logger(ctx)
	if logger == requestctx.NoopLogger() {
		logger = svc.logger
	}
	logger = logger.With(zap.String("submission_id", data.ID))

	messageID, err := svc.mailer.Send(ctx, mail.Message{
		From:    svc.from,
		To:      svc.admins,
		ReplyTo: s.Email,
		Subject: fmt.Sprintf("Nouvelle demande de devis : %s", data.Name),
		HTML:    adminHTML,
		Text:    plainText(data),
		Tags:    map[string]string{"category": "contact_admin"},
	})
	if err != nil {
		logger.Error("contact: admin notification failed", zap.Error(err))
		return Receipt{}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	if _, err := svc.mailer.Send(ctx, mail.Message{
		From:    svc.from,
		To:      []string{s.Email},
		Subject: fmt.Sprintf("Votre demande a bien été reçue - %s", svc.company),
		HTML:    customerHTML,
		Tags:    map[string]string{"category": "contact_confirmation"},
	}); err != nil {
		logger.Error("contact: customer confirmation failed", zap.Error(err))
		return Receipt{}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	receipt := Receipt{SubmissionID: data.ID, MessageID: messageID}
	logger.Info("contact: submission delivered", zap.String("message_id", messageID), zap.Int("files", len(s.Files)))

	if svc.publisher != nil {
		event := SubmittedEvent{
			SubmissionID: data.ID,
			MessageID:    messageID,
			Type:         s.Type,
			Name:         data.Name,
			Email:        s.Email,
			Company:      data.Company,
			Budget:       s.Budget,
			Deadline:     s.Deadline,
			FileCount:    len(s.Files),
			SubmittedAt:  now,
		}
		if err := svc.publisher.PublishContactSubmitted(ctx, event); err != nil {
			logger.Warn("contact: publish event failed", zap.Error(err))
		}
	}
	return receipt, nil
}
