package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
)

// GetStats summarizes the transfers touching any of the user's cards.
// Counts include every status; amounts only COMPLETED transfers.
func (s *Service) GetStats(ctx context.Context, userID int64) (*models.TransferStats, error) {
	rows, err := s.repo.ListTransferAmounts(ctx, userID)
	if err != nil {
		return nil, storeError("load transfer statistics", err)
	}

	now, _ := s.clock()
	return aggregateStats(rows, models.StartOfMonth(now)), nil
}

func aggregateStats(rows []repository.TransferAmount, monthStart time.Time) *models.TransferStats {
	stats := &models.TransferStats{
		TotalAmount:     decimal.Zero,
		AverageAmount:   decimal.Zero,
		AmountThisMonth: decimal.Zero,
	}

	for _, row := range rows {
		stats.TotalTransfers++
		thisMonth := !row.CreatedAt.Before(monthStart)
		if thisMonth {
			stats.TransfersThisMonth++
		}
		if row.Status != models.TransferStatusCompleted {
			continue
		}
		stats.TotalAmount = stats.TotalAmount.Add(row.Amount)
		if thisMonth {
			stats.AmountThisMonth = stats.AmountThisMonth.Add(row.Amount)
		}
	}

	if stats.TotalTransfers > 0 {
		stats.AverageAmount = stats.TotalAmount.Div(decimal.NewFromInt(stats.TotalTransfers)).Round(2)
	}
	return stats
}
