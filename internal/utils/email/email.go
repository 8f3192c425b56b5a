package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/models"
)

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   sendFunc
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendTransferNotification tells a card owner that a transfer touching their card completed
func (s *Sender) SendTransferNotification(to, username string, t *models.Transfer) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Transfer Completed"

	body := fmt.Sprintf("Dear %s,\n\n", username)
	body += fmt.Sprintf(
		"A transfer of %s from card %s to card %s has been completed.\n"+
			"Transfer ID: %d\n"+
			"Transaction time: %s\n",
		t.Amount.StringFixed(2), t.FromCardMasked, t.ToCardMasked, t.ID, processedTime(t),
	)
	if t.Description != "" {
		body += fmt.Sprintf("Description: %s\n", t.Description)
	}
	body += "\nBest regards,\nBank Service"
	e.Text = []byte(body)

	return s.deliver(e, to)
}

// SendCardBlockedNotification tells a card owner that their card was blocked
func (s *Sender) SendCardBlockedNotification(to, username string, card *models.Card) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Card Blocked"

	body := fmt.Sprintf("Dear %s,\n\n", username)
	body += fmt.Sprintf("Your card %s has been blocked.\n", card.MaskedNumber)
	if card.BlockReason != nil && *card.BlockReason != "" {
		body += fmt.Sprintf("Reason: %s\n", *card.BlockReason)
	}
	body += "If you did not request this, please contact support.\n"
	body += "\nBest regards,\nBank Service"
	e.Text = []byte(body)

	return s.deliver(e, to)
}

// SendBlockRequestNotification confirms that a block request was received
func (s *Sender) SendBlockRequestNotification(to, username string, card *models.Card) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Card Block Request Received"

	body := fmt.Sprintf("Dear %s,\n\n", username)
	body += fmt.Sprintf(
		"We received your request to block card %s.\n"+
			"An administrator will process it shortly.\n",
		card.MaskedNumber,
	)
	body += "\nBest regards,\nBank Service"
	e.Text = []byte(body)

	return s.deliver(e, to)
}

func (s *Sender) deliver(e *email.Email, to string) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

func processedTime(t *models.Transfer) string {
	at := t.CreatedAt
	if t.ProcessedAt != nil {
		at = *t.ProcessedAt
	}
	return at.UTC().Format(time.DateTime)
}
