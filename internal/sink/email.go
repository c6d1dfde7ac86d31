package sink

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/sirupsen/logrus"
)

// SMTPConfig holds the configuration for SMTP email sending
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func validateSMTPConfig(cfg *SMTPConfig) error {
	if cfg.Host == "" || cfg.Port == "" || cfg.From == "" {
		return errors.New("invalid SMTP configuration")
	}
	return nil
}

// SMTPEmail sends notification emails over plain SMTP.
type SMTPEmail struct {
	config *SMTPConfig
	log    *logrus.Entry
}

// NewSMTPEmail creates an SMTP email sink. Returns an error if the
// configuration is incomplete.
func NewSMTPEmail(cfg *SMTPConfig) (*SMTPEmail, error) {
	if err := validateSMTPConfig(cfg); err != nil {
		return nil, err
	}
	return &SMTPEmail{
		config: cfg,
		log:    logrus.WithField("component", "email"),
	}, nil
}

// Send delivers the email best-effort. Returns false on failure.
func (s *SMTPEmail) Send(ctx context.Context, to, subject, body string) bool {
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", to, subject, body))
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	if err := smtp.SendMail(addr, auth, s.config.From, []string{to}, msg); err != nil {
		s.log.WithField("to", to).WithError(err).Error("failed to send email")
		return false
	}

	s.log.WithField("to", to).Info("email sent")
	return true
}

// LogEmail writes emails to the application log instead of sending them.
// Used when no SMTP server is configured.
type LogEmail struct {
	log *logrus.Entry
}

func NewLogEmail() *LogEmail {
	return &LogEmail{log: logrus.WithField("component", "email")}
}

// Send logs the email and reports success.
func (s *LogEmail) Send(ctx context.Context, to, subject, body string) bool {
	s.log.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"body":    body,
	}).Info("email delivery simulated")
	return true
}
