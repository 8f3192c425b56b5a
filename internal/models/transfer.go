package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the outcome of a transfer attempt
type TransferStatus string

// Transfer statuses. A transfer never leaves COMPLETED or FAILED.
const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusFailed    TransferStatus = "FAILED"
)

// Transfer represents a money movement between two cards
type Transfer struct {
	ID           int64           `json:"id"`
	FromCardID   int64           `json:"from_card_id"`
	ToCardID     int64           `json:"to_card_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	Status       TransferStatus  `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`

	// Joined fields (not always populated).
	FromCardMasked string `json:"from_card_masked,omitempty"`
	ToCardMasked   string `json:"to_card_masked,omitempty"`
}

// TransferPolicy decides whose cards a user may send money to
type TransferPolicy string

// Transfer policies.
const (
	PolicyOwnToOwnOnly   TransferPolicy = "OWN_TO_OWN_ONLY"
	PolicyAllowCrossUser TransferPolicy = "ALLOW_CROSS_USER"
)

// Valid reports whether p is a known policy.
func (p TransferPolicy) Valid() bool {
	return p == PolicyOwnToOwnOnly || p == PolicyAllowCrossUser
}
