package database

import (
	"context"

	"github.com/example/cardbot/pkg/models"
)

// ReviewLogRepository handles the append-only review log
type ReviewLogRepository struct {
	db *DB
}

// NewReviewLogRepository creates a new repository instance
func NewReviewLogRepository(db *DB) *ReviewLogRepository {
	return &ReviewLogRepository{db: db}
}

// Append inserts a log entry and returns its ID
func (r *ReviewLogRepository) Append(ctx context.Context, entry models.ReviewLogEntry) (int64, error) {
	query := r.db.Rebind(`
		INSERT INTO review_log (user_id, flashcard_id, set_id, timestamp, response, score_change)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		entry.UserID,
		entry.FlashcardID,
		entry.SetID,
		entry.Timestamp,
		int(entry.Response),
		entry.ScoreChange,
	).Scan(&id)
	if err != nil {
		return 0, mapError("failed to append review log", err)
	}
	return id, nil
}

// ListByUser returns the most recent entries of a user, newest first
func (r *ReviewLogRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.ReviewLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries := []models.ReviewLogEntry{}
	query := r.db.Rebind(`
		SELECT id, user_id, flashcard_id, set_id, timestamp, response, score_change
		FROM review_log
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`)

	if err := r.db.SelectContext(ctx, &entries, query, userID, limit); err != nil {
		return nil, mapError("failed to list review log", err)
	}
	return entries, nil
}

// CountSince returns how many answers the user logged at or after since
func (r *ReviewLogRepository) CountSince(ctx context.Context, userID int64, since int64) (int, error) {
	var n int
	query := r.db.Rebind("SELECT COUNT(*) FROM review_log WHERE user_id = ? AND timestamp >= ?")

	if err := r.db.GetContext(ctx, &n, query, userID, since); err != nil {
		return 0, mapError("failed to count reviews", err)
	}
	return n, nil
}
