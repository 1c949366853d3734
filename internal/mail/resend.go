package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer sends email through the Resend API.
type ResendMailer struct {
	emails emailSender
	logger *zap.Logger
}

// ResendOption customises the Resend mailer.
type ResendOption func(*resendOptions)

type resendOptions struct {
	httpClient *http.Client
	logger     *zap.Logger
	sender     emailSender
}

// WithHTTPClient overrides the HTTP client used by the Resend SDK.
func WithHTTPClient(client *http.Client) ResendOption {
	return func(o *resendOptions) {
		o.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ResendOption {
	return func(o *resendOptions) {
		o.logger = logger
	}
}

func withSender(sender emailSender) ResendOption {
	return func(o *resendOptions) {
		o.sender = sender
	}
}

// NewResendMailer builds a mailer authenticated with apiKey.
func NewResendMailer(apiKey string, opts ...ResendOption) (*ResendMailer, error) {
	var o resendOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sender := o.sender
	if sender == nil {
		apiKey = strings.TrimSpace(apiKey)
		if apiKey == "" {
			return nil, errors.New("mail: resend api key is required")
		}
		var client *resend.Client
		if o.httpClient != nil {
			client = resend.NewCustomClient(o.httpClient, apiKey)
		} else {
			client = resend.NewClient(apiKey)
		}
		sender = client.Emails
	}
	return &ResendMailer{emails: sender, logger: logger.Named("mail")}, nil
}

// Send delivers msg and returns the Resend email id.
func (m *ResendMailer) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		Tags:    tags(msg.Tags),
	}
	resp, err := m.emails.SendWithContext(ctx, req)
	if err != nil {
		m.logger.Warn("resend send failed", zap.String("subject", msg.Subject), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if resp == nil || resp.Id == "" {
		return "", fmt.Errorf("%w: empty response", ErrDelivery)
	}
	m.logger.Debug("email sent", zap.String("id", resp.Id), zap.Int("recipients", len(msg.To)))
	return resp.Id, nil
}

func tags(in map[string]string) []resend.Tag {
	if len(in) == 0 {
		return nil
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]resend.Tag, 0, len(in))
	for _, k := range keys {
		out = append(out, resend.Tag{Name: k, Value: in[k]})
	}
	return out
}
