package otp

import (
	"context"
	"log/slog"
)

// Sender delivers a one-time code through a single outbound channel. The
// recipient is a fully qualified address for that channel: an email address,
// or a phone number already prefixed with its country code.
type Sender interface {
	Send(ctx context.Context, to, code string) error
}

// LogSender writes codes to the structured logger instead of delivering
// them. It backs local development and tests, where no SMTP or SMS provider
// is configured.
type LogSender struct {
	channel string
	logger  *slog.Logger
}

// NewLogSender constructs a logging sender for the named channel.
func NewLogSender(channel string, logger *slog.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

// Send logs the code and succeeds.
func (s *LogSender) Send(_ context.Context, to, code string) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.Info("otp dispatched", "channel", s.channel, "to", to, "code", code)
	return nil
}
