package models

import "time"

// AuditEvent is emitted by the core for every transfer attempt and card status change.
// Sinks fan it out; the core never reads it back.
type AuditEvent struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Audit outcomes.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailed  = "FAILED"
)

// Audit actions.
const (
	ActionTransfer     = "TRANSFER"
	ActionCardIssue    = "CARD_ISSUE"
	ActionCardBlock    = "CARD_BLOCK"
	ActionCardUnblock  = "CARD_UNBLOCK"
	ActionBlockRequest = "CARD_BLOCK_REQUEST"
	ActionCardExpire   = "CARD_EXPIRE"
	ActionCardTopUp    = "CARD_TOPUP"
	ActionExport       = "DATA_EXPORT"
)

// Audit entity types.
const (
	EntityCard     = "CARD"
	EntityTransfer = "TRANSFER"
)
