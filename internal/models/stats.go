package models

import "github.com/shopspring/decimal"

// TransferStats represents transfer statistics for a user
type TransferStats struct {
	TotalTransfers     int64           `json:"total_transfers"`
	TotalAmount        decimal.Decimal `json:"total_amount"`   // COMPLETED only
	AverageAmount      decimal.Decimal `json:"average_amount"` // TotalAmount / TotalTransfers, 0 when empty
	TransfersThisMonth int64           `json:"transfers_this_month"`
	AmountThisMonth    decimal.Decimal `json:"amount_this_month"`
}
