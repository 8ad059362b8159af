package database

import (
	"context"
	"database/sql"

	"github.com/example/cardbot/pkg/models"
)

// StatisticsRepository computes per-user learning statistics
type StatisticsRepository struct {
	db *DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// GetByUser aggregates the user's progress rows and review log.
// Cards with a streak of at least masteredStreak count as mastered.
func (r *StatisticsRepository) GetByUser(ctx context.Context, userID, now, dayStart int64, masteredStreak int) (*models.Statistics, error) {
	users := NewUserRepository(r.db)
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := models.Statistics{UserID: userID, Score: user.Score}

	var agg struct {
		Seen      int           `db:"cards_seen"`
		Learned   sql.NullInt64 `db:"cards_learned"`
		DueNow    sql.NullInt64 `db:"due_now"`
		Skipped   sql.NullInt64 `db:"skipped"`
		Mastered  sql.NullInt64 `db:"mastered"`
		Reviews   sql.NullInt64 `db:"total_reviews"`
		Lapses    sql.NullInt64 `db:"total_lapses"`
		NextDueAt sql.NullInt64 `db:"next_due_time"`
	}
	query := r.db.Rebind(`
		SELECT
			COUNT(*) AS cards_seen,
			SUM(CASE WHEN learned_date IS NOT NULL THEN 1 ELSE 0 END) AS cards_learned,
			SUM(CASE WHEN learned_date IS NOT NULL AND NOT is_skipped AND due_time <= ? THEN 1 ELSE 0 END) AS due_now,
			SUM(CASE WHEN is_skipped THEN 1 ELSE 0 END) AS skipped,
			SUM(CASE WHEN correct_streak >= ? THEN 1 ELSE 0 END) AS mastered,
			SUM(review_count) AS total_reviews,
			SUM(lapse_count) AS total_lapses,
			MIN(CASE WHEN learned_date IS NOT NULL AND NOT is_skipped AND due_time > ? THEN due_time END) AS next_due_time
		FROM card_progress
		WHERE user_id = ?
	`)
	if err := r.db.GetContext(ctx, &agg, query, now, masteredStreak, now, userID); err != nil {
		return nil, mapError("failed to get statistics", err)
	}

	stats.CardsSeen = agg.Seen
	stats.CardsLearned = int(agg.Learned.Int64)
	stats.DueNow = int(agg.DueNow.Int64)
	stats.Skipped = int(agg.Skipped.Int64)
	stats.Mastered = int(agg.Mastered.Int64)
	stats.TotalReviews = int(agg.Reviews.Int64)
	stats.TotalLapses = int(agg.Lapses.Int64)
	stats.NextDueTime = agg.NextDueAt.Int64

	reviews := NewReviewLogRepository(r.db)
	stats.ReviewsToday, err = reviews.CountSince(ctx, userID, dayStart)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
