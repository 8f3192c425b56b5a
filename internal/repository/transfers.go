package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-cards/internal/models"
)

// TransferFilter narrows a transfer history query
type TransferFilter struct {
	UserID int64 // transfers where the user owns either card
	CardID int64 // transfers touching this card
	Status models.TransferStatus
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// TransferAmount is the minimal projection the statistics aggregator needs
type TransferAmount struct {
	Amount    decimal.Decimal
	Status    models.TransferStatus
	CreatedAt time.Time
}

const transferSelect = `
	SELECT t.id, t.from_card_id, t.to_card_id, t.amount, t.description, t.status, t.error_message,
		t.created_at, t.processed_at, fc.masked_number, tc.masked_number
	FROM transfers t
	JOIN cards fc ON fc.id = t.from_card_id
	JOIN cards tc ON tc.id = t.to_card_id`

func scanTransfer(row rowScanner) (*models.Transfer, error) {
	t := &models.Transfer{}
	var (
		description, errorMessage sql.NullString
		createdAt, processedAt    dbTime
		status                    string
	)
	err := row.Scan(
		&t.ID, &t.FromCardID, &t.ToCardID, &t.Amount, &description, &status, &errorMessage,
		&createdAt, &processedAt, &t.FromCardMasked, &t.ToCardMasked,
	)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Status = models.TransferStatus(status)
	if errorMessage.Valid {
		msg := errorMessage.String
		t.ErrorMessage = &msg
	}
	t.CreatedAt = createdAt.Time
	t.ProcessedAt = processedAt.ptr()
	return t, nil
}

// CreateTransfer inserts a transfer record and sets its ID
func (r *Repository) CreateTransfer(ctx context.Context, t *models.Transfer) error {
	query := `
		INSERT INTO transfers (from_card_id, to_card_id, amount, description, status, error_message, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := r.queryRow(ctx, query,
		t.FromCardID, t.ToCardID, t.Amount, t.Description, string(t.Status), nullString(t.ErrorMessage),
		t.CreatedAt.UTC(), nullTime(t.ProcessedAt),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

// UpdateTransferStatus finalizes a PENDING transfer. Finalized transfers are never touched again.
func (r *Repository) UpdateTransferStatus(ctx context.Context, id int64, status models.TransferStatus, errorMessage *string, processedAt time.Time) error {
	query := `
		UPDATE transfers
		SET status = ?, error_message = ?, processed_at = ?
		WHERE id = ? AND status = ?`
	res, err := r.exec(ctx, query,
		string(status), nullString(errorMessage), processedAt.UTC(), id, string(models.TransferStatusPending))
	if err != nil {
		return fmt.Errorf("failed to update transfer status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transfer status: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// GetTransfer retrieves a transfer by ID with masked card numbers
func (r *Repository) GetTransfer(ctx context.Context, id int64) (*models.Transfer, error) {
	t, err := scanTransfer(r.queryRow(ctx, transferSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns transfers matching the filter, newest first
func (r *Repository) ListTransfers(ctx context.Context, filter TransferFilter) ([]models.Transfer, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != 0 {
		conds = append(conds, "(fc.owner_id = ? OR tc.owner_id = ?)")
		args = append(args, filter.UserID, filter.UserID)
	}
	if filter.CardID != 0 {
		conds = append(conds, "(t.from_card_id = ? OR t.to_card_id = ?)")
		args = append(args, filter.CardID, filter.CardID)
	}
	if filter.Status != "" {
		conds = append(conds, "t.status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "t.created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conds = append(conds, "t.created_at < ?")
		args = append(args, filter.To.UTC())
	}

	query := transferSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.created_at DESC, t.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return transfers, nil
}

// ListTransferAmounts streams amount, status and creation time of every
// transfer where the user owns either card
func (r *Repository) ListTransferAmounts(ctx context.Context, userID int64) ([]TransferAmount, error) {
	query := `
		SELECT t.amount, t.status, t.created_at
		FROM transfers t
		JOIN cards fc ON fc.id = t.from_card_id
		JOIN cards tc ON tc.id = t.to_card_id
		WHERE fc.owner_id = ? OR tc.owner_id = ?`
	rows, err := r.query(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transfer amounts: %w", err)
	}
	defer rows.Close()

	var amounts []TransferAmount
	for rows.Next() {
		var (
			a         TransferAmount
			status    string
			createdAt dbTime
		)
		if err := rows.Scan(&a.Amount, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer amount: %w", err)
		}
		a.Status = models.TransferStatus(status)
		a.CreatedAt = createdAt.Time
		amounts = append(amounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load transfer amounts: %w", err)
	}
	return amounts, nil
}
