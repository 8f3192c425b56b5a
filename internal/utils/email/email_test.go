package email

import (
	"errors"
	"io"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/models"
)

type capture struct {
	sent []*email.Email
	addr string
	err  error
}

func newTestSender(c *capture) *Sender {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewSender(&config.Config{
		SMTPHost:    "smtp.example.com",
		SMTPPort:    "2525",
		SenderEmail: "noreply@bank.local",
	}, logger)
	s.send = func(e *email.Email, addr string, _ smtp.Auth) error {
		c.sent = append(c.sent, e)
		c.addr = addr
		return c.err
	}
	return s
}

func TestSendTransferNotification(t *testing.T) {
	c := &capture{}
	s := newTestSender(c)
	processed := time.Date(2024, time.June, 1, 12, 30, 0, 0, time.UTC)

	err := s.SendTransferNotification("alice@example.com", "alice", &models.Transfer{
		ID:             7,
		Amount:         decimal.RequireFromString("30"),
		Description:    "rent",
		FromCardMasked: "**** **** **** 1111",
		ToCardMasked:   "**** **** **** 2222",
		ProcessedAt:    &processed,
	})
	if err != nil {
		t.Fatalf("SendTransferNotification: %v", err)
	}
	if len(c.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(c.sent))
	}
	if c.addr != "smtp.example.com:2525" {
		t.Errorf("addr = %q", c.addr)
	}

	e := c.sent[0]
	if e.To[0] != "alice@example.com" || e.From != "noreply@bank.local" {
		t.Errorf("unexpected envelope %v -> %v", e.From, e.To)
	}
	body := string(e.Text)
	for _, want := range []string{"30.00", "**** **** **** 1111", "2024-06-01 12:30:00", "rent"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestSendCardBlockedNotification(t *testing.T) {
	c := &capture{}
	s := newTestSender(c)
	reason := "suspicious activity"

	if err := s.SendCardBlockedNotification("bob@example.com", "bob", &models.Card{
		MaskedNumber: "**** **** **** 3333",
		BlockReason:  &reason,
	}); err != nil {
		t.Fatalf("SendCardBlockedNotification: %v", err)
	}
	body := string(c.sent[0].Text)
	if !strings.Contains(body, "suspicious activity") || !strings.Contains(body, "3333") {
		t.Errorf("unexpected body:\n%s", body)
	}
}

func TestSendFailureIsReturned(t *testing.T) {
	c := &capture{err: errors.New("connection refused")}
	s := newTestSender(c)

	err := s.SendBlockRequestNotification("bob@example.com", "bob", &models.Card{MaskedNumber: "**** **** **** 3333"})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}
