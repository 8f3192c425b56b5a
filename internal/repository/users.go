package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/bank-cards/internal/models"
)

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	query := `
		INSERT INTO users (username, email, role, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`
	err := r.queryRow(ctx, query, user.Username, user.Email, user.Role, user.CreatedAt.UTC()).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	var createdAt dbTime
	query := `
		SELECT id, username, email, role, created_at
		FROM users
		WHERE id = ?`
	err := r.queryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.Email, &user.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = createdAt.Time
	return user, nil
}
