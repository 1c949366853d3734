package mail

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// LogMailer logs messages instead of sending them. It backs local development when no
// provider key is configured.
type LogMailer struct {
	logger *zap.Logger
	clock  func() time.Time
}

// NewLogMailer returns a LogMailer writing to logger.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mail"), clock: time.Now}
}

// Send logs the envelope and returns a generated id.
func (m *LogMailer) Send(_ context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	id, err := ulid.New(ulid.Timestamp(m.clock()), rand.Reader)
	if err != nil {
		return "", err
	}
	m.logger.Info("email not sent (log mailer)",
		zap.String("id", id.String()),
		zap.Strings("to", msg.To),
		zap.String("reply_to", msg.ReplyTo),
		zap.String("subject", msg.Subject),
	)
	return "log-" + id.String(), nil
}
