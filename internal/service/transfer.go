package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
)

// MaxDescriptionLength bounds the free-text description of a transfer
const MaxDescriptionLength = 500

// TransferRequest is a request to move money between two cards
type TransferRequest struct {
	FromCardID  int64
	ToCardID    int64
	Amount      decimal.Decimal
	Description string
	RequesterID int64
}

// validateAmount accepts positive amounts with at most two decimal places
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount must have at most 2 decimal places", ErrInvalidAmount)
	}
	return nil
}

// Transfer moves money from one card to another.
//
// Once both cards are loaded and ownership is verified a transfer record is
// written. If the cards turn out unusable or the balance is short, that record
// is committed as FAILED and returned together with the error. Balances are
// only ever changed together with a COMPLETED record.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*models.Transfer, error) {
	transfer, err := s.transfer(ctx, req)

	event := models.AuditEvent{
		UserID:     req.RequesterID,
		Action:     models.ActionTransfer,
		EntityType: models.EntityTransfer,
		Outcome:    models.OutcomeSuccess,
	}
	if transfer != nil {
		event.EntityID = transfer.ID
	}
	fields := logrus.Fields{
		"from_card_id": req.FromCardID,
		"to_card_id":   req.ToCardID,
		"amount":       req.Amount.String(),
		"user_id":      req.RequesterID,
	}
	if err != nil {
		event.Outcome = models.OutcomeFailed
		event.Detail = fmt.Sprintf("transfer of %s from card %d to card %d failed: %v", req.Amount, req.FromCardID, req.ToCardID, err)
		s.record(ctx, event)
		s.log.WithFields(fields).Warnf("Transfer failed: %v", err)
		return transfer, err
	}

	event.Detail = fmt.Sprintf("transfer of %s from card %d to card %d completed", transfer.Amount.StringFixed(2), transfer.FromCardID, transfer.ToCardID)
	s.record(ctx, event)
	s.log.WithFields(fields).Infof("Transfer %d completed", transfer.ID)

	s.notifyTransfer(ctx, transfer)
	return transfer, nil
}

func (s *Service) transfer(ctx context.Context, req TransferRequest) (*models.Transfer, error) {
	if req.FromCardID == req.ToCardID {
		return nil, fmt.Errorf("%w: cannot transfer to the same card", ErrInvalidTransfer)
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if len([]rune(req.Description)) > MaxDescriptionLength {
		return nil, fmt.Errorf("%w: description must not exceed %d characters", ErrInvalidTransfer, MaxDescriptionLength)
	}
	amount := req.Amount.Round(2)

	unlock, err := s.lockCards(ctx, req.FromCardID, req.ToCardID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, storeError("begin transfer", err)
	}
	defer tx.Rollback()

	from, err := tx.GetCardForUpdate(ctx, req.FromCardID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("load card %d", req.FromCardID), err)
	}
	to, err := tx.GetCardForUpdate(ctx, req.ToCardID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("load card %d", req.ToCardID), err)
	}

	if from.OwnerID != req.RequesterID {
		return nil, fmt.Errorf("%w: source card %d does not belong to user %d", ErrAccessDenied, from.ID, req.RequesterID)
	}
	if s.policy == models.PolicyOwnToOwnOnly && to.OwnerID != req.RequesterID {
		return nil, fmt.Errorf("%w: transfers are only allowed between your own cards", ErrAccessDenied)
	}

	now, today := s.clock()
	record := &models.Transfer{
		FromCardID:     from.ID,
		ToCardID:       to.ID,
		Amount:         amount,
		Description:    req.Description,
		Status:         models.TransferStatusPending,
		CreatedAt:      now,
		FromCardMasked: from.MaskedNumber,
		ToCardMasked:   to.MaskedNumber,
	}
	if err := tx.CreateTransfer(ctx, record); err != nil {
		return nil, storeError("create transfer", err)
	}

	if reason := checkTransferable(from, to, amount, today); reason != nil {
		msg := reason.Error()
		if err := tx.UpdateTransferStatus(ctx, record.ID, models.TransferStatusFailed, &msg, now); err != nil {
			return nil, s.abortTransfer(ctx, tx, record, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, s.abortTransfer(ctx, tx, record, err)
		}
		record.Status = models.TransferStatusFailed
		record.ErrorMessage = &msg
		record.ProcessedAt = &now
		return record, reason
	}

	from.Balance = from.Balance.Sub(amount)
	from.UpdatedAt = now
	to.Balance = to.Balance.Add(amount)
	to.UpdatedAt = now

	if err := tx.SaveCard(ctx, from); err != nil {
		return nil, s.abortTransfer(ctx, tx, record, err)
	}
	if err := tx.SaveCard(ctx, to); err != nil {
		return nil, s.abortTransfer(ctx, tx, record, err)
	}
	if err := tx.UpdateTransferStatus(ctx, record.ID, models.TransferStatusCompleted, nil, now); err != nil {
		return nil, s.abortTransfer(ctx, tx, record, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.abortTransfer(ctx, tx, record, err)
	}

	record.Status = models.TransferStatusCompleted
	record.ProcessedAt = &now
	return record, nil
}

// checkTransferable applies the usability gate and the funds check
func checkTransferable(from, to *models.Card, amount decimal.Decimal, today time.Time) error {
	if !from.CanBeUsed(today) {
		return newCardNotUsableError(from)
	}
	if !to.CanBeUsed(today) {
		return newCardNotUsableError(to)
	}
	if from.Balance.LessThan(amount) {
		return &InsufficientFundsError{Available: from.Balance, Requested: amount}
	}
	return nil
}

// abortTransfer rolls back a transfer whose store writes failed and, outside
// the aborted transaction, records the attempt as FAILED
func (s *Service) abortTransfer(ctx context.Context, tx *repository.Repository, pending *models.Transfer, cause error) error {
	if err := tx.Rollback(); err != nil {
		s.log.Errorf("Failed to roll back transfer: %v", err)
	}

	msg := "transfer could not be completed"
	if repository.IsTransient(cause) {
		msg = "transfer aborted by a concurrent update"
	}
	failed := &models.Transfer{
		FromCardID:   pending.FromCardID,
		ToCardID:     pending.ToCardID,
		Amount:       pending.Amount,
		Description:  pending.Description,
		Status:       models.TransferStatusFailed,
		ErrorMessage: &msg,
		CreatedAt:    pending.CreatedAt,
		ProcessedAt:  &pending.CreatedAt,
	}
	if err := s.repo.CreateTransfer(context.WithoutCancel(ctx), failed); err != nil {
		s.log.Errorf("Failed to record failed transfer: %v", err)
	}
	return storeError("complete transfer", cause)
}

func (s *Service) notifyTransfer(ctx context.Context, t *models.Transfer) {
	if s.notifier == nil {
		return
	}
	from, err := s.repo.GetCard(ctx, t.FromCardID)
	if err != nil {
		s.log.Warnf("Failed to load card %d for notification: %v", t.FromCardID, err)
		return
	}
	to, err := s.repo.GetCard(ctx, t.ToCardID)
	if err != nil {
		s.log.Warnf("Failed to load card %d for notification: %v", t.ToCardID, err)
		return
	}

	owners := []int64{from.OwnerID}
	if to.OwnerID != from.OwnerID {
		owners = append(owners, to.OwnerID)
	}
	for _, id := range owners {
		user, ok := s.owner(ctx, id)
		if !ok {
			continue
		}
		if err := s.notifier.SendTransferNotification(user.Email, user.Username, t); err != nil {
			s.log.Warnf("Transfer %d notification to user %d failed: %v", t.ID, id, err)
		}
	}
}

