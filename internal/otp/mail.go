package otp

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPSender delivers codes by email over SMTP.
type SMTPSender struct {
	client *mail.Client
	from   string
}

// NewSMTPSender configures the SMTP client used for OTP mail. The client is
// built once at startup and reused for every send.
func NewSMTPSender(host string, port int, username, password, from string) (*SMTPSender, error) {
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username),
		mail.WithPassword(password),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: from}, nil
}

// Send emails the code to the recipient.
func (s *SMTPSender) Send(ctx context.Context, to, code string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject("Welcome to TradeXcel")
	msg.SetBodyString(mail.TypeTextPlain,
		fmt.Sprintf("Your OTP Code for TradeXcel Registration is %s. It is valid for 10 minutes.", code))
	msg.AddAlternativeString(mail.TypeTextHTML,
		fmt.Sprintf("<h3>Your OTP Code for TradeXcel Registration is <b>%s</b>. It is valid for 10 minutes.</h3>", code))

	return s.client.DialAndSendWithContext(ctx, msg)
}
