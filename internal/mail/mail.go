// Package mail renders and sends transactional emails.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mailjet/mailjet-apiv3-go/v4"

	"ctonjob/internal/config"
)

// Message 一封待发送的邮件。
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns a Mailjet sender, or a logging sender when keys are absent.
func NewSender(cfg config.MailConfig, logger *slog.Logger) Sender {
	if !cfg.Enabled() {
		return &LogSender{logger: logger}
	}
	return NewMailjetSender(cfg)
}

// MailjetSender 通过 Mailjet v3.1 Send API 发送邮件。
type MailjetSender struct {
	client    *mailjet.Client
	fromEmail string
	fromName  string
}

// NewMailjetSender 构造 Mailjet 发送器。
func NewMailjetSender(cfg config.MailConfig) *MailjetSender {
	return &MailjetSender{
		client:    mailjet.NewMailjetClient(cfg.APIKeyPublic, cfg.APIKeyPrivate),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

// Send implements Sender.
func (s *MailjetSender) Send(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail recipient is empty")
	}
	messages := mailjet.MessagesV31{
		Info: []mailjet.InfoMessagesV31{
			{
				From: &mailjet.RecipientV31{
					Email: s.fromEmail,
					Name:  s.fromName,
				},
				To: &mailjet.RecipientsV31{
					mailjet.RecipientV31{
						Email: msg.To,
						Name:  msg.ToName,
					},
				},
				Subject:  msg.Subject,
				HTMLPart: msg.HTML,
			},
		},
	}
	if _, err := s.client.SendMailV31(&messages); err != nil {
		return fmt.Errorf("mailjet send to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender only logs messages. Used when Mailjet is not configured.
type LogSender struct {
	logger *slog.Logger
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail disabled, message not sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

var freeMailDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"aol.com":        {},
	"icloud.com":     {},
	"protonmail.com": {},
	"mail.com":       {},
	"yandex.com":     {},
}

// IsProfessionalEmail 判断邮箱是否为企业域名（排除常见免费邮箱）。
func IsProfessionalEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	if !strings.Contains(domain, ".") {
		return false
	}
	_, free := freeMailDomains[domain]
	return !free
}
