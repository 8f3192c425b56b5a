package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
)

const cardColumns = `id, owner_id, masked_number, encrypted_number, number_hmac, expiry_date,
	status, balance, block_request_sent, blocked_at, block_reason, created_at, updated_at`

// CardFilter narrows an admin card listing
type CardFilter struct {
	OwnerID int64
	Status  models.CardStatus
	Search  string // matched against the masked number, e.g. last four digits
	Limit   int
	Offset  int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{}
	var (
		expiry, blockedAt, createdAt, updatedAt dbTime
		blockReason                             sql.NullString
		status                                  string
	)
	err := row.Scan(
		&card.ID, &card.OwnerID, &card.MaskedNumber, &card.EncryptedNumber, &card.NumberHMAC, &expiry,
		&status, &card.Balance, &card.BlockRequestSent, &blockedAt, &blockReason, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	card.ExpiryDate = expiry.date()
	card.Status = models.CardStatus(status)
	card.BlockedAt = blockedAt.ptr()
	if blockReason.Valid {
		reason := blockReason.String
		card.BlockReason = &reason
	}
	card.CreatedAt = createdAt.Time
	card.UpdatedAt = updatedAt.Time
	return card, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateCard inserts a new card and sets its ID
func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO cards (owner_id, masked_number, encrypted_number, number_hmac, expiry_date,
			status, balance, block_request_sent, blocked_at, block_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := r.queryRow(ctx, query,
		card.OwnerID, card.MaskedNumber, card.EncryptedNumber, card.NumberHMAC, formatDate(card.ExpiryDate),
		string(card.Status), card.Balance, card.BlockRequestSent, nullTime(card.BlockedAt), nullString(card.BlockReason),
		card.CreatedAt.UTC(), card.UpdatedAt.UTC(),
	).Scan(&card.ID)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// GetCard retrieves a card by ID
func (r *Repository) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = ?`
	card, err := scanCard(r.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

// GetCardForUpdate retrieves a card and, inside a Postgres transaction, locks its row
func (r *Repository) GetCardForUpdate(ctx context.Context, id int64) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = ?`
	if r.tx != nil {
		query += r.dialect.LockClause()
	}
	card, err := scanCard(r.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card for update: %w", err)
	}
	return card, nil
}

// SaveCard persists the mutable fields of a card
func (r *Repository) SaveCard(ctx context.Context, card *models.Card) error {
	query := `
		UPDATE cards
		SET status = ?, balance = ?, block_request_sent = ?, blocked_at = ?, block_reason = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.exec(ctx, query,
		string(card.Status), card.Balance, card.BlockRequestSent, nullTime(card.BlockedAt), nullString(card.BlockReason),
		card.UpdatedAt.UTC(), card.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindUsableCardsByOwner returns the owner's ACTIVE cards that have not expired by today
func (r *Repository) FindUsableCardsByOwner(ctx context.Context, ownerID int64, today time.Time) ([]models.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE owner_id = ? AND status = ? AND expiry_date >= ?
		ORDER BY id`
	return r.listCards(ctx, query, ownerID, string(models.CardStatusActive), formatDate(today))
}

// ListCards returns cards matching the filter, newest first
func (r *Repository) ListCards(ctx context.Context, filter CardFilter) ([]models.Card, error) {
	var (
		conds []string
		args  []any
	)
	if filter.OwnerID != 0 {
		conds = append(conds, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		conds = append(conds, "masked_number LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}

	query := `SELECT ` + cardColumns + ` FROM cards`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}
	return r.listCards(ctx, query, args...)
}

func (r *Repository) listCards(ctx context.Context, query string, args ...any) ([]models.Card, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// FindExpiredActiveCardIDs returns ACTIVE cards whose expiry date lies before today
func (r *Repository) FindExpiredActiveCardIDs(ctx context.Context, today time.Time) ([]int64, error) {
	query := `
		SELECT id FROM cards
		WHERE status = ? AND expiry_date < ?
		ORDER BY id`
	rows, err := r.query(ctx, query, string(models.CardStatusActive), formatDate(today))
	if err != nil {
		return nil, fmt.Errorf("failed to find expired cards: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find expired cards: %w", err)
	}
	return ids, nil
}

// ExpireCard moves a card from ACTIVE to EXPIRED if it is still ACTIVE and past expiry.
// It returns false when another writer got there first.
func (r *Repository) ExpireCard(ctx context.Context, id int64, today, now time.Time) (bool, error) {
	query := `
		UPDATE cards
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND expiry_date < ?`
	res, err := r.exec(ctx, query,
		string(models.CardStatusExpired), now.UTC(), id, string(models.CardStatusActive), formatDate(today))
	if err != nil {
		return false, fmt.Errorf("failed to expire card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to expire card: %w", err)
	}
	return n > 0, nil
}
