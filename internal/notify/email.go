package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/wneessen/go-mail"

	"predictive_alerts/internal/models"
)

var errNoRecipients = errors.New("no recipients")

type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
}

// EmailSender sends plain-text mail through an SMTP relay. Headers are
// encoded by go-mail, so equipment tags never reach the wire raw.
type EmailSender struct {
	cfg  SMTPConfig
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	s := &EmailSender{cfg: cfg}
	s.send = s.dialAndSend
	return s
}

func (s *EmailSender) Channel() Channel { return ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, a models.Alert, recipients []string) error {
	if len(recipients) == 0 {
		return errNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := s.message(a, recipients)
	if err != nil {
		return err
	}
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("send mail for alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *EmailSender) message(a models.Alert, recipients []string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("mail from %q: %w", s.cfg.From, err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("mail recipients: %w", err)
	}
	msg.Subject(subject(a))
	msg.SetBodyString(mail.TypeTextPlain, body(a))
	return msg, nil
}

func (s *EmailSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	host, portStr, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("smtp addr %q: %w", s.cfg.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("smtp port %q: %w", portStr, err)
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
