package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card
type CardStatus string

// Card statuses. ACTIVE moves to BLOCKED or EXPIRED; EXPIRED is terminal.
const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// Valid reports whether s is a known card status.
func (s CardStatus) Valid() bool {
	switch s {
	case CardStatusActive, CardStatusBlocked, CardStatusExpired:
		return true
	}
	return false
}

// Card represents a bank card
type Card struct {
	ID               int64           `json:"id"`
	OwnerID          int64           `json:"owner_id"`
	MaskedNumber     string          `json:"masked_number"`
	EncryptedNumber  string          `json:"-"` // Never leaves the service
	NumberHMAC       string          `json:"-"`
	ExpiryDate       time.Time       `json:"expiry_date"` // Last day of the expiry month
	Status           CardStatus      `json:"status"`
	Balance          decimal.Decimal `json:"balance"`
	BlockRequestSent bool            `json:"block_request_sent"`
	BlockedAt        *time.Time      `json:"blocked_at,omitempty"`
	BlockReason      *string         `json:"block_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsExpired reports whether the card's expiry date lies before today.
func (c *Card) IsExpired(today time.Time) bool {
	return c.ExpiryDate.Before(DateOf(today))
}

// CanBeUsed reports whether the card may take part in a transfer today.
func (c *Card) CanBeUsed(today time.Time) bool {
	return c.Status == CardStatusActive && !c.IsExpired(today)
}

// DateOf truncates t to a UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last calendar day of the given month.
func EndOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// StartOfMonth returns the first instant of the month containing t, in UTC.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
