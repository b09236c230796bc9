package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/model"
)

// ActivityRepository records which users are active in which files.
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Track records that userID was active in path at the given time.
func (r *ActivityRepository) Track(ctx context.Context, userID model.UserID, path string, at time.Time) error {
	query := `
		INSERT INTO editor_activity (user_id, path, last_active)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, path) DO UPDATE SET last_active = excluded.last_active
	`
	if _, err := r.db.ExecContext(ctx, query, userID, path, at.UTC()); err != nil {
		return fmt.Errorf("failed to track activity: %w", err)
	}
	return nil
}

// Remove deletes the activity record for userID in path.
func (r *ActivityRepository) Remove(ctx context.Context, userID model.UserID, path string) error {
	query := `DELETE FROM editor_activity WHERE user_id = ? AND path = ?`
	if _, err := r.db.ExecContext(ctx, query, userID, path); err != nil {
		return fmt.Errorf("failed to remove activity: %w", err)
	}
	return nil
}

// ListByPath returns the activity records for path, most recent first.
func (r *ActivityRepository) ListByPath(ctx context.Context, path string) ([]model.Activity, error) {
	query := `
		SELECT user_id, path, last_active
		FROM editor_activity
		WHERE path = ?
		ORDER BY last_active DESC
	`

	rows, err := r.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var activity []model.Activity
	for rows.Next() {
		var a model.Activity
		var lastActive sql.NullTime
		if err := rows.Scan(&a.UserID, &a.Path, &lastActive); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if lastActive.Valid {
			a.LastActive = lastActive.Time
		}
		activity = append(activity, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}

	return activity, nil
}
