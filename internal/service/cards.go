package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
)

const (
	maxCardValidityYears = 10
	issueAttempts        = 3
)

// IssueCardRequest describes a new card
type IssueCardRequest struct {
	OwnerID        int64
	ExpiryMonth    int
	ExpiryYear     int
	InitialBalance decimal.Decimal
}

// IssueCard creates a new ACTIVE card for an existing user
func (s *Service) IssueCard(ctx context.Context, actorID int64, req IssueCardRequest) (*models.Card, error) {
	card, err := s.issueCard(ctx, req)

	var cardID int64
	if card != nil {
		cardID = card.ID
	}
	s.recordCardEvent(ctx, actorID, cardID, models.ActionCardIssue, err, fmt.Sprintf("issue card for user %d", req.OwnerID))
	if err != nil {
		return nil, err
	}

	s.log.Infof("Card %d issued for user %d", card.ID, card.OwnerID)
	return card, nil
}

func (s *Service) issueCard(ctx context.Context, req IssueCardRequest) (*models.Card, error) {
	now, today := s.clock()

	if req.ExpiryMonth < 1 || req.ExpiryMonth > 12 {
		return nil, fmt.Errorf("%w: expiry month must be between 1 and 12", ErrInvalidInput)
	}
	expiry := models.EndOfMonth(req.ExpiryYear, time.Month(req.ExpiryMonth))
	if expiry.Before(today) {
		return nil, fmt.Errorf("%w: expiry date %s is in the past", ErrInvalidInput, utils.FormatExpiry(expiry))
	}
	if expiry.After(today.AddDate(maxCardValidityYears, 0, 0)) {
		return nil, fmt.Errorf("%w: expiry date must be within %d years", ErrInvalidInput, maxCardValidityYears)
	}
	if req.InitialBalance.IsNegative() || !req.InitialBalance.Equal(req.InitialBalance.Round(2)) {
		return nil, fmt.Errorf("%w: initial balance must be non-negative with at most 2 decimal places", ErrInvalidAmount)
	}

	if _, err := s.repo.GetUser(ctx, req.OwnerID); err != nil {
		return nil, storeError(fmt.Sprintf("load user %d", req.OwnerID), err)
	}

	var lastErr error
	for attempt := 0; attempt < issueAttempts; attempt++ {
		number, err := utils.GenerateCardNumber(s.cardBIN)
		if err != nil {
			return nil, fmt.Errorf("failed to generate card number: %w", err)
		}
		encrypted, err := s.cipher.Encrypt(number)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt card number: %w", err)
		}

		card := &models.Card{
			OwnerID:         req.OwnerID,
			MaskedNumber:    utils.MaskCardNumber(number),
			EncryptedNumber: encrypted,
			NumberHMAC:      s.cipher.HMAC(number),
			ExpiryDate:      expiry,
			Status:          models.CardStatusActive,
			Balance:         req.InitialBalance.Round(2),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err = s.repo.CreateCard(ctx, card)
		if err == nil {
			return card, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, storeError("create card", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to generate a unique card number: %w", lastErr)
}

// TopUpCard credits a usable card
func (s *Service) TopUpCard(ctx context.Context, actorID, cardID int64, amount decimal.Decimal) (*models.Card, error) {
	var card *models.Card
	err := validateAmount(amount)
	if err == nil {
		card, err = s.mutateCard(ctx, cardID, func(card *models.Card, _, today time.Time) error {
			if !card.CanBeUsed(today) {
				return newCardNotUsableError(card)
			}
			card.Balance = card.Balance.Add(amount.Round(2))
			return nil
		})
	}
	s.recordCardEvent(ctx, actorID, cardID, models.ActionCardTopUp, err, fmt.Sprintf("top up card %d by %s", cardID, amount))
	if err != nil {
		return nil, err
	}

	s.log.Infof("Card %d topped up by %s", cardID, amount.StringFixed(2))
	return card, nil
}

// ListUsableCards returns the user's cards that can take part in a transfer today
func (s *Service) ListUsableCards(ctx context.Context, ownerID int64) ([]models.Card, error) {
	_, today := s.clock()
	cards, err := s.repo.FindUsableCardsByOwner(ctx, ownerID, today)
	if err != nil {
		return nil, storeError("list usable cards", err)
	}
	return cards, nil
}

// ListCards returns cards for administration
func (s *Service) ListCards(ctx context.Context, filter repository.CardFilter) ([]models.Card, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown card status %q", ErrInvalidInput, filter.Status)
	}
	cards, err := s.repo.ListCards(ctx, filter)
	if err != nil {
		return nil, storeError("list cards", err)
	}
	return cards, nil
}

// GetCard returns a card visible to the user
func (s *Service) GetCard(ctx context.Context, userID, cardID int64) (*models.Card, error) {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("load card %d", cardID), err)
	}
	if card.OwnerID != userID {
		return nil, fmt.Errorf("%w: card %d does not belong to user %d", ErrAccessDenied, cardID, userID)
	}
	return card, nil
}
