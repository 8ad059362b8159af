package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

const userColumns = `id, username, first_name, is_admin, score, timezone_offset, current_mode,
	current_set_id, notifications_enabled, last_reminded_at, created_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert registers a user or refreshes the profile fields of an existing one.
// Learning state (score, mode, set, timezone) is only written on insert.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := r.db.Rebind(`
		INSERT INTO users (
			id, username, first_name, is_admin, score, timezone_offset, current_mode,
			current_set_id, notifications_enabled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			is_admin = excluded.is_admin
	`)

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.FirstName,
		user.IsAdmin,
		user.Score,
		user.TimezoneOffset,
		string(user.CurrentMode),
		user.CurrentSetID,
		user.NotificationsEnabled,
		user.CreatedAt,
	)
	if err != nil {
		return mapError("failed to upsert user", err)
	}

	stored, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetByID returns a user by Telegram ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE id = ?")

	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewUserNotFound(id)
	}
	if err != nil {
		return nil, mapError("failed to get user", err)
	}
	return &user, nil
}

// SetMode stores the user's learning mode
func (r *UserRepository) SetMode(ctx context.Context, id int64, mode models.Mode) error {
	return r.updateColumn(ctx, id, "current_mode", string(mode))
}

// SetCurrentSet stores the set the user is learning; nil clears it
func (r *UserRepository) SetCurrentSet(ctx context.Context, id int64, setID *int64) error {
	return r.updateColumn(ctx, id, "current_set_id", setID)
}

// SetTimezone stores the user's UTC offset in hours
func (r *UserRepository) SetTimezone(ctx context.Context, id int64, offsetHours float64) error {
	return r.updateColumn(ctx, id, "timezone_offset", offsetHours)
}

// SetNotifications turns due-card reminders on or off
func (r *UserRepository) SetNotifications(ctx context.Context, id int64, enabled bool) error {
	return r.updateColumn(ctx, id, "notifications_enabled", enabled)
}

// MarkReminded records when the last reminder was sent
func (r *UserRepository) MarkReminded(ctx context.Context, id int64, ts int64) error {
	return r.updateColumn(ctx, id, "last_reminded_at", ts)
}

// UpdateScore overwrites the cumulative score
func (r *UserRepository) UpdateScore(ctx context.Context, id int64, newScore int64) (int64, error) {
	query := r.db.Rebind("UPDATE users SET score = ? WHERE id = ?")
	res, err := r.db.ExecContext(ctx, query, newScore, id)
	if err != nil {
		return 0, mapError("failed to update score", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("failed to update score", err)
	}
	return n, nil
}

// ListForReminders returns users who have notifications enabled
func (r *UserRepository) ListForReminders(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE notifications_enabled = ? ORDER BY id")

	if err := r.db.SelectContext(ctx, &users, query, true); err != nil {
		return nil, mapError("failed to list users for reminders", err)
	}
	return users, nil
}

// updateColumn sets one column of a user row. column is never user input.
func (r *UserRepository) updateColumn(ctx context.Context, id int64, column string, value interface{}) error {
	query, args, err := r.db.sb.Update("users").Set(column, value).Where("id = ?", id).ToSql()
	if err != nil {
		return mapError("failed to build user update", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError("failed to update user "+column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError("failed to update user "+column, err)
	}
	if n == 0 {
		return apperrors.NewUserNotFound(id)
	}
	return nil
}
