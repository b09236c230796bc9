// Package repository provides data access for the relay's users and editor activity.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uminmay/collaborative-ai-editor/internal/model"
)

// UserRepository provides data access for users.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate returns the user with username, creating it with a palette
// color on first sight.
func (r *UserRepository) GetOrCreate(ctx context.Context, username string) (*model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user := &model.User{Username: username}
	err = tx.QueryRowContext(ctx, `SELECT id, color FROM users WHERE username = ?`, username).
		Scan(&user.ID, &user.Color)
	if err == nil {
		return user, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	result, err := tx.ExecContext(ctx, `INSERT INTO users (username, color) VALUES (?, '')`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}
	user.ID = model.UserID(id)
	user.Color = model.ColorFor(user.ID)

	if _, err := tx.ExecContext(ctx, `UPDATE users SET color = ? WHERE id = ?`, user.Color, id); err != nil {
		return nil, fmt.Errorf("failed to set user color: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by its ID.
func (r *UserRepository) GetByID(ctx context.Context, id model.UserID) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, `SELECT id, username, color FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Username, &user.Color)
	if err == sql.ErrNoRows {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
