// Package mail delivers transactional email.
package mail

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidMessage is returned for messages missing a sender, recipient or subject.
	ErrInvalidMessage = errors.New("mail: invalid message")
	// ErrDelivery wraps provider failures.
	ErrDelivery = errors.New("mail: delivery failed")
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	Tags    map[string]string
}

// Validate checks the fields every provider requires.
func (m Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("from is required"))
	}
	if len(m.To) == 0 {
		return errors.Join(ErrInvalidMessage, errors.New("at least one recipient is required"))
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return errors.Join(ErrInvalidMessage, errors.New("empty recipient"))
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("subject is required"))
	}
	if m.HTML == "" && m.Text == "" {
		return errors.Join(ErrInvalidMessage, errors.New("body is required"))
	}
	return nil
}

// Mailer sends a message and returns the provider-assigned id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}
