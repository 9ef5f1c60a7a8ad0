package notifier

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPMailer delivers verification codes over SMTP.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   *zap.Logger
}

var _ Notifier = (*SMTPMailer)(nil)

// NewSMTPMailer constructs a mailer for the given SMTP endpoint.
func NewSMTPMailer(host string, port int, username, password, from string, logger *zap.Logger) *SMTPMailer {
	if logger == nil {
		logger = zap.L()
	}
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		logger:   logger,
	}
}

func (m *SMTPMailer) Deliver(ctx context.Context, target, code string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(target); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject("Your verification code")
	msg.SetBodyString(mail.TypeTextHTML, fmt.Sprintf(
		`<div style="font-family:sans-serif;"><h3>Your verification code:</h3>`+
			`<p style="font-size:20px;font-weight:bold;">%s</p>`+
			`<p>The code expires in a few minutes. Do not share it.</p></div>`, code))

	client, err := mail.NewClient(m.host,
		mail.WithPort(m.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.username),
		mail.WithPassword(m.password),
		mail.WithSSLPort(false),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Warn("verification mail delivery failed",
			zap.String("target", target), zap.Error(err))
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
