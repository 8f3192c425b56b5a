package service

import (
	"context"
	"fmt"
	"io"

	"github.com/Dan9191/bank-cards/internal/export"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
)

// ListTransfers returns the user's transfer history
func (s *Service) ListTransfers(ctx context.Context, userID int64, filter repository.TransferFilter) ([]models.Transfer, error) {
	switch filter.Status {
	case "", models.TransferStatusPending, models.TransferStatusCompleted, models.TransferStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown transfer status %q", ErrInvalidInput, filter.Status)
	}
	filter.UserID = userID
	transfers, err := s.repo.ListTransfers(ctx, filter)
	if err != nil {
		return nil, storeError("list transfers", err)
	}
	return transfers, nil
}

// GetTransfer returns a transfer if the user owns either of its cards
func (s *Service) GetTransfer(ctx context.Context, userID, transferID int64) (*models.Transfer, error) {
	t, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("load transfer %d", transferID), err)
	}

	for _, cardID := range []int64{t.FromCardID, t.ToCardID} {
		card, err := s.repo.GetCard(ctx, cardID)
		if err != nil {
			return nil, storeError(fmt.Sprintf("load card %d", cardID), err)
		}
		if card.OwnerID == userID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: transfer %d is not visible to user %d", ErrAccessDenied, transferID, userID)
}

// ExportTransfers writes the user's full transfer history to w in the given format
func (s *Service) ExportTransfers(ctx context.Context, userID int64, format export.Format, w io.Writer) error {
	if !format.Valid() {
		return fmt.Errorf("%w: unsupported export format %q", ErrInvalidInput, format)
	}

	transfers, err := s.ListTransfers(ctx, userID, repository.TransferFilter{})
	if err != nil {
		return err
	}

	now, _ := s.clock()
	err = export.Write(w, format, export.Document{UserID: userID, GeneratedAt: now, Transfers: transfers})
	event := models.AuditEvent{
		UserID:     userID,
		Action:     models.ActionExport,
		Outcome:    models.OutcomeSuccess,
		EntityType: models.EntityTransfer,
		Detail:     fmt.Sprintf("exported %d transfers as %s", len(transfers), format),
	}
	if err != nil {
		event.Outcome = models.OutcomeFailed
	}
	s.record(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to export transfers: %w", err)
	}
	return nil
}
