package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
)

// mutateCard loads a card under its lock inside a transaction, applies fn and saves the result
func (s *Service) mutateCard(ctx context.Context, cardID int64, fn func(card *models.Card, now, today time.Time) error) (*models.Card, error) {
	unlock, err := s.lockCards(ctx, cardID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, storeError("begin card update", err)
	}
	defer tx.Rollback()

	card, err := tx.GetCardForUpdate(ctx, cardID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("load card %d", cardID), err)
	}

	now, today := s.clock()
	if err := fn(card, now, today); err != nil {
		return nil, err
	}
	card.UpdatedAt = now

	if err := tx.SaveCard(ctx, card); err != nil {
		return nil, storeError("save card", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeError("save card", err)
	}
	return card, nil
}

func (s *Service) recordCardEvent(ctx context.Context, actorID, cardID int64, action string, err error, detail string) {
	event := models.AuditEvent{
		UserID:     actorID,
		Action:     action,
		Outcome:    models.OutcomeSuccess,
		EntityType: models.EntityCard,
		EntityID:   cardID,
		Detail:     detail,
	}
	if err != nil {
		event.Outcome = models.OutcomeFailed
		event.Detail = fmt.Sprintf("%s: %v", detail, err)
	}
	s.record(ctx, event)
}

// BlockCard moves an ACTIVE card to BLOCKED
func (s *Service) BlockCard(ctx context.Context, actorID, cardID int64, reason string) (*models.Card, error) {
	card, err := s.mutateCard(ctx, cardID, func(card *models.Card, now, _ time.Time) error {
		if card.Status != models.CardStatusActive {
			return fmt.Errorf("%w: cannot block a card in status %s", ErrInvalidStateTransition, card.Status)
		}
		card.Status = models.CardStatusBlocked
		card.BlockedAt = &now
		if reason != "" {
			card.BlockReason = &reason
		}
		return nil
	})
	s.recordCardEvent(ctx, actorID, cardID, models.ActionCardBlock, err, fmt.Sprintf("block card %d", cardID))
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"card_id": cardID, "actor_id": actorID}).Infof("Card blocked: %s", reason)
	if user, ok := s.owner(ctx, card.OwnerID); ok {
		if err := s.notifier.SendCardBlockedNotification(user.Email, user.Username, card); err != nil {
			s.log.Warnf("Card %d blocked notification failed: %v", cardID, err)
		}
	}
	return card, nil
}

// UnblockCard returns a BLOCKED card to ACTIVE unless it has expired meanwhile
func (s *Service) UnblockCard(ctx context.Context, actorID, cardID int64) (*models.Card, error) {
	card, err := s.mutateCard(ctx, cardID, func(card *models.Card, _, today time.Time) error {
		if card.Status != models.CardStatusBlocked {
			return fmt.Errorf("%w: cannot unblock a card in status %s", ErrInvalidStateTransition, card.Status)
		}
		if card.IsExpired(today) {
			return fmt.Errorf("%w: card expired on %s", ErrInvalidStateTransition, card.ExpiryDate.Format("2006-01-02"))
		}
		card.Status = models.CardStatusActive
		card.BlockedAt = nil
		card.BlockReason = nil
		card.BlockRequestSent = false
		return nil
	})
	s.recordCardEvent(ctx, actorID, cardID, models.ActionCardUnblock, err, fmt.Sprintf("unblock card %d", cardID))
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"card_id": cardID, "actor_id": actorID}).Info("Card unblocked")
	return card, nil
}

// RequestBlock lets an owner ask for their card to be blocked by an administrator
func (s *Service) RequestBlock(ctx context.Context, userID, cardID int64) (*models.Card, error) {
	card, err := s.mutateCard(ctx, cardID, func(card *models.Card, _, _ time.Time) error {
		if card.OwnerID != userID {
			return fmt.Errorf("%w: card %d does not belong to user %d", ErrAccessDenied, cardID, userID)
		}
		if card.Status != models.CardStatusActive {
			return fmt.Errorf("%w: card is %s", ErrInvalidStateTransition, card.Status)
		}
		if card.BlockRequestSent {
			return fmt.Errorf("%w: block request already sent", ErrInvalidStateTransition)
		}
		card.BlockRequestSent = true
		return nil
	})
	s.recordCardEvent(ctx, userID, cardID, models.ActionBlockRequest, err, fmt.Sprintf("block request for card %d", cardID))
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"card_id": cardID, "user_id": userID}).Info("Card block requested")
	if user, ok := s.owner(ctx, card.OwnerID); ok {
		if err := s.notifier.SendBlockRequestNotification(user.Email, user.Username, card); err != nil {
			s.log.Warnf("Card %d block request notification failed: %v", cardID, err)
		}
	}
	return card, nil
}

// SweepExpiredCards moves every ACTIVE card whose expiry date lies before today
// to EXPIRED and returns how many cards changed. Store failures are logged;
// a failed listing counts as no progress and a failed card is skipped.
func (s *Service) SweepExpiredCards(ctx context.Context, today time.Time) int {
	today = models.DateOf(today)

	ids, err := s.repo.FindExpiredActiveCardIDs(ctx, today)
	if err != nil {
		s.log.Errorf("Expiry sweep could not list cards: %v", err)
		return 0
	}

	changed := 0
	for _, id := range ids {
		ok, err := s.expireCard(ctx, id, today)
		if err != nil {
			s.log.WithField("card_id", id).Errorf("Expiry sweep skipped card: %v", err)
			continue
		}
		if !ok {
			continue
		}
		changed++
		s.record(ctx, models.AuditEvent{
			Action:     models.ActionCardExpire,
			Outcome:    models.OutcomeSuccess,
			EntityType: models.EntityCard,
			EntityID:   id,
			Detail:     fmt.Sprintf("card %d expired", id),
		})
	}

	s.log.WithFields(logrus.Fields{
		"date":       today.Format("2006-01-02"),
		"candidates": len(ids),
		"expired":    changed,
	}).Info("Expiry sweep finished")
	return changed
}

func (s *Service) expireCard(ctx context.Context, cardID int64, today time.Time) (bool, error) {
	unlock, err := s.lockCards(ctx, cardID)
	if err != nil {
		return false, err
	}
	defer unlock()

	now, _ := s.clock()
	ok, err := s.repo.ExpireCard(ctx, cardID, today, now)
	if err != nil {
		return false, storeError("expire card", err)
	}
	return ok, nil
}
