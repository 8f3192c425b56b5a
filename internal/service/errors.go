package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-cards/internal/lock"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
)

// Errors returned by the service. Callers match them with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrAccessDenied           = errors.New("access denied")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTransfer        = errors.New("invalid transfer")
	ErrInvalidInput           = errors.New("invalid input")
	ErrCardNotUsable          = errors.New("card cannot be used")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidStateTransition = errors.New("invalid card state transition")
	ErrTransient              = errors.New("temporarily unavailable, retry")
)

// CardNotUsableError describes why a card failed the usability gate
type CardNotUsableError struct {
	CardID       int64
	MaskedNumber string
	Status       models.CardStatus
	BlockReason  string
	ExpiryDate   time.Time
}

func (e *CardNotUsableError) Error() string {
	switch e.Status {
	case models.CardStatusBlocked:
		if e.BlockReason != "" {
			return fmt.Sprintf("card %s is blocked: %s", e.MaskedNumber, e.BlockReason)
		}
		return fmt.Sprintf("card %s is blocked", e.MaskedNumber)
	case models.CardStatusExpired:
		return fmt.Sprintf("card %s expired on %s", e.MaskedNumber, e.ExpiryDate.Format("2006-01-02"))
	default:
		return fmt.Sprintf("card %s is past its expiry date %s", e.MaskedNumber, e.ExpiryDate.Format("2006-01-02"))
	}
}

func (e *CardNotUsableError) Unwrap() error { return ErrCardNotUsable }

func newCardNotUsableError(card *models.Card) *CardNotUsableError {
	e := &CardNotUsableError{
		CardID:       card.ID,
		MaskedNumber: card.MaskedNumber,
		Status:       card.Status,
		ExpiryDate:   card.ExpiryDate,
	}
	if card.BlockReason != nil {
		e.BlockReason = *card.BlockReason
	}
	return e
}

// InsufficientFundsError carries the balance that was available for a failed debit
type InsufficientFundsError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// storeError translates repository failures into service errors
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, lock.ErrTimeout), repository.IsTransient(err):
		return fmt.Errorf("failed to %s: %w: %w", op, ErrTransient, err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
