package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/db"
	"github.com/Dan9191/bank-cards/internal/lock"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *recordingSink) Record(_ context.Context, e models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) byAction(action string) []models.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditEvent
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type recordingNotifier struct {
	mu            sync.Mutex
	transfers     []string
	blocked       []string
	blockRequests []string
}

func (n *recordingNotifier) SendTransferNotification(to, _ string, _ *models.Transfer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transfers = append(n.transfers, to)
	return nil
}

func (n *recordingNotifier) SendCardBlockedNotification(to, _ string, _ *models.Card) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked = append(n.blocked, to)
	return nil
}

func (n *recordingNotifier) SendBlockRequestNotification(to, _ string, _ *models.Card) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blockRequests = append(n.blockRequests, to)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *repository.Repository
	sink     *recordingSink
	notifier *recordingNotifier
	now      time.Time
	seq      int
}

func newFixture(t *testing.T, policy models.TransferPolicy) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cipher, err := utils.NewCardCipher("test-encryption-secret-0123456789")
	if err != nil {
		t.Fatalf("NewCardCipher: %v", err)
	}

	f := &fixture{
		repo:     repository.NewRepository(db.NewTestDB(t), db.SQLite),
		sink:     &recordingSink{},
		notifier: &recordingNotifier{},
		now:      time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, lock.NewLocker(), cipher, logger, Options{
		Policy:      policy,
		LockTimeout: 2 * time.Second,
		Audit:       f.sink,
		Notifier:    f.notifier,
		Now:         func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", CreatedAt: f.now}
	if err := f.repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (f *fixture) card(t *testing.T, ownerID int64, balance string, expiry time.Time, status models.CardStatus) *models.Card {
	t.Helper()
	f.seq++
	c := &models.Card{
		OwnerID:         ownerID,
		MaskedNumber:    fmt.Sprintf("**** **** **** %04d", f.seq),
		EncryptedNumber: "ciphertext",
		NumberHMAC:      fmt.Sprintf("hmac-%d", f.seq),
		ExpiryDate:      expiry,
		Status:          status,
		Balance:         decimal.RequireFromString(balance),
		CreatedAt:       f.now,
		UpdatedAt:       f.now,
	}
	if status == models.CardStatusBlocked {
		reason := "stolen"
		c.BlockedAt = &f.now
		c.BlockReason = &reason
	}
	if err := f.repo.CreateCard(context.Background(), c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	return c
}

func (f *fixture) activeCard(t *testing.T, ownerID int64, balance string) *models.Card {
	t.Helper()
	return f.card(t, ownerID, balance, f.now.AddDate(2, 0, 0), models.CardStatusActive)
}

func (f *fixture) balance(t *testing.T, cardID int64) decimal.Decimal {
	t.Helper()
	c, err := f.repo.GetCard(context.Background(), cardID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	return c.Balance
}

func (f *fixture) transfers(t *testing.T) []models.Transfer {
	t.Helper()
	list, err := f.repo.ListTransfers(context.Background(), repository.TransferFilter{})
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	return list
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertBalance(t *testing.T, f *fixture, cardID int64, want string) {
	t.Helper()
	if got := f.balance(t, cardID); !got.Equal(amount(want)) {
		t.Errorf("card %d balance = %s, want %s", cardID, got, want)
	}
}
