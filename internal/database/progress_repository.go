package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Masterminds/squirrel"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

const progressColumns = `p.id, p.user_id, p.flashcard_id, p.review_count, p.correct_streak,
	p.correct_count, p.incorrect_count, p.lapse_count, p.due_time, p.learned_date,
	p.last_reviewed, p.is_skipped`

// poolColumns selects a card and its (possibly missing) progress row
var poolColumns = []string{
	"f.id", "f.set_id", "f.front", "f.back", "f.example", "f.created_at",
	"p.id AS p_id", "p.review_count AS p_review_count", "p.correct_streak AS p_correct_streak",
	"p.correct_count AS p_correct_count", "p.incorrect_count AS p_incorrect_count",
	"p.lapse_count AS p_lapse_count", "p.due_time AS p_due_time", "p.learned_date AS p_learned_date",
	"p.last_reviewed AS p_last_reviewed", "p.is_skipped AS p_is_skipped",
}

// poolRow is a flashcard left-joined with the user's progress row
type poolRow struct {
	models.Flashcard
	ProgressID     sql.NullInt64 `db:"p_id"`
	ReviewCount    sql.NullInt64 `db:"p_review_count"`
	CorrectStreak  sql.NullInt64 `db:"p_correct_streak"`
	CorrectCount   sql.NullInt64 `db:"p_correct_count"`
	IncorrectCount sql.NullInt64 `db:"p_incorrect_count"`
	LapseCount     sql.NullInt64 `db:"p_lapse_count"`
	DueTime        sql.NullInt64 `db:"p_due_time"`
	LearnedDate    sql.NullInt64 `db:"p_learned_date"`
	LastReviewed   sql.NullInt64 `db:"p_last_reviewed"`
	IsSkipped      sql.NullBool  `db:"p_is_skipped"`
}

func (row poolRow) toPoolCard(userID int64) models.PoolCard {
	pc := models.PoolCard{Card: row.Flashcard}
	if !row.ProgressID.Valid {
		return pc
	}
	pc.Progress = &models.CardProgress{
		ID:             row.ProgressID.Int64,
		UserID:         userID,
		FlashcardID:    row.Flashcard.ID,
		ReviewCount:    int(row.ReviewCount.Int64),
		CorrectStreak:  int(row.CorrectStreak.Int64),
		CorrectCount:   int(row.CorrectCount.Int64),
		IncorrectCount: int(row.IncorrectCount.Int64),
		LapseCount:     int(row.LapseCount.Int64),
		DueTime:        row.DueTime.Int64,
		LearnedDate:    nullableInt64(row.LearnedDate),
		LastReviewed:   nullableInt64(row.LastReviewed),
		IsSkipped:      row.IsSkipped.Bool,
	}
	return pc
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// ProgressRepository handles database operations for card progress
type ProgressRepository struct {
	db *DB
}

// NewProgressRepository creates a new repository instance
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// GetWithCardInfo returns a progress row joined with its card
func (r *ProgressRepository) GetWithCardInfo(ctx context.Context, id int64) (*models.ProgressWithCard, error) {
	var p models.ProgressWithCard
	query := r.db.Rebind(`
		SELECT ` + progressColumns + `, f.set_id, f.front, f.back
		FROM card_progress p
		JOIN flashcards f ON f.id = p.flashcard_id
		WHERE p.id = ?
	`)

	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewProgressNotFound(id)
	}
	if err != nil {
		return nil, mapError("failed to get progress", err)
	}
	return &p, nil
}

// GetByUserAndCard returns the user's progress row for a card
func (r *ProgressRepository) GetByUserAndCard(ctx context.Context, userID, cardID int64) (*models.CardProgress, error) {
	var p models.CardProgress
	query := r.db.Rebind("SELECT " + progressColumns + " FROM card_progress p WHERE p.user_id = ? AND p.flashcard_id = ?")

	err := r.db.GetContext(ctx, &p, query, userID, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(apperrors.CodeProgressNotFound, "progress for card", cardID)
	}
	if err != nil {
		return nil, mapError("failed to get progress", err)
	}
	return &p, nil
}

// Create starts tracking a card for a user. An existing row is returned unchanged.
func (r *ProgressRepository) Create(ctx context.Context, userID, cardID int64, now int64) (*models.CardProgress, error) {
	query := r.db.Rebind(`
		INSERT INTO card_progress (user_id, flashcard_id, due_time)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, flashcard_id) DO NOTHING
	`)
	if _, err := r.db.ExecContext(ctx, query, userID, cardID, now); err != nil {
		return nil, mapError("failed to create progress", err)
	}
	return r.GetByUserAndCard(ctx, userID, cardID)
}

// UpdateByID writes the set fields of update and returns the number of rows affected
func (r *ProgressRepository) UpdateByID(ctx context.Context, id int64, update models.ProgressUpdate) (int64, error) {
	if update.IsEmpty() {
		return 0, apperrors.NewValidationError("update", "no fields to write")
	}

	query, args, err := r.db.sb.Update("card_progress").
		SetMap(update.Columns()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return 0, mapError("failed to build progress update", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError("failed to update progress", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("failed to update progress", err)
	}
	return n, nil
}

// SetSkipped toggles the skip flag
func (r *ProgressRepository) SetSkipped(ctx context.Context, id int64, skipped bool) error {
	query := r.db.Rebind("UPDATE card_progress SET is_skipped = ? WHERE id = ?")
	res, err := r.db.ExecContext(ctx, query, skipped, id)
	if err != nil {
		return mapError("failed to skip card", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewProgressNotFound(id)
	}
	return nil
}

// DueCards returns learned, non-skipped cards due at now, in insertion order
func (r *ProgressRepository) DueCards(ctx context.Context, userID, setID int64, now int64) ([]models.PoolCard, error) {
	q := r.poolQuery(userID, setID, false).
		Where(squirrel.NotEq{"p.learned_date": nil}).
		Where(squirrel.Eq{"p.is_skipped": false}).
		Where(squirrel.LtOrEq{"p.due_time": now}).
		OrderBy("f.id")
	return r.selectPool(ctx, userID, q, "failed to get due cards")
}

// NewCards returns cards the user has not learned yet, in insertion order
func (r *ProgressRepository) NewCards(ctx context.Context, userID, setID int64) ([]models.PoolCard, error) {
	q := r.poolQuery(userID, setID, true).
		Where(squirrel.Eq{"p.learned_date": nil}).
		OrderBy("f.id")
	return r.selectPool(ctx, userID, q, "failed to get new cards")
}

// LearnedCards returns every learned card, most incorrect answers first
func (r *ProgressRepository) LearnedCards(ctx context.Context, userID, setID int64) ([]models.PoolCard, error) {
	q := r.poolQuery(userID, setID, false).
		Where(squirrel.NotEq{"p.learned_date": nil}).
		OrderBy("p.incorrect_count DESC", "f.id")
	return r.selectPool(ctx, userID, q, "failed to get learned cards")
}

// NextDueTime returns the soonest due time after now, or 0 when nothing is pending
func (r *ProgressRepository) NextDueTime(ctx context.Context, userID, setID int64, now int64) (int64, error) {
	q := r.db.sb.Select("MIN(p.due_time)").
		From("card_progress p").
		Join("flashcards f ON f.id = p.flashcard_id").
		Where(squirrel.Eq{"p.user_id": userID}).
		Where(squirrel.NotEq{"p.learned_date": nil}).
		Where(squirrel.Eq{"p.is_skipped": false}).
		Where(squirrel.Gt{"p.due_time": now})
	if setID != 0 {
		q = q.Where(squirrel.Eq{"f.set_id": setID})
	}

	var next sql.NullInt64
	if err := r.getScalar(ctx, q, &next); err != nil {
		return 0, mapError("failed to get next due time", err)
	}
	return next.Int64, nil
}

// CountDue returns how many cards are due for the user across all sets
func (r *ProgressRepository) CountDue(ctx context.Context, userID int64, now int64) (int, error) {
	q := r.db.sb.Select("COUNT(*)").
		From("card_progress p").
		Where(squirrel.Eq{"p.user_id": userID}).
		Where(squirrel.NotEq{"p.learned_date": nil}).
		Where(squirrel.Eq{"p.is_skipped": false}).
		Where(squirrel.LtOrEq{"p.due_time": now})

	var n int
	if err := r.getScalar(ctx, q, &n); err != nil {
		return 0, mapError("failed to count due cards", err)
	}
	return n, nil
}

// CountLearned returns how many cards in scope the user has learned
func (r *ProgressRepository) CountLearned(ctx context.Context, userID, setID int64) (int, error) {
	q := r.db.sb.Select("COUNT(*)").
		From("card_progress p").
		Join("flashcards f ON f.id = p.flashcard_id").
		Where(squirrel.Eq{"p.user_id": userID}).
		Where(squirrel.NotEq{"p.learned_date": nil})
	if setID != 0 {
		q = q.Where(squirrel.Eq{"f.set_id": setID})
	}

	var n int
	if err := r.getScalar(ctx, q, &n); err != nil {
		return 0, mapError("failed to count learned cards", err)
	}
	return n, nil
}

// CountCards returns the number of cards in a set, or in all sets when setID is 0
func (r *ProgressRepository) CountCards(ctx context.Context, setID int64) (int, error) {
	q := r.db.sb.Select("COUNT(*)").From("flashcards f")
	if setID != 0 {
		q = q.Where(squirrel.Eq{"f.set_id": setID})
	}

	var n int
	if err := r.getScalar(ctx, q, &n); err != nil {
		return 0, mapError("failed to count cards", err)
	}
	return n, nil
}

// ExportRows returns every progress row of the user with card and set names
func (r *ProgressRepository) ExportRows(ctx context.Context, userID int64) ([]models.ProgressExportRow, error) {
	rows := []models.ProgressExportRow{}
	query := r.db.Rebind(`
		SELECT s.name AS set_name, f.front, f.back, p.review_count, p.correct_streak,
			p.correct_count, p.incorrect_count, p.lapse_count, p.due_time, p.learned_date, p.is_skipped
		FROM card_progress p
		JOIN flashcards f ON f.id = p.flashcard_id
		JOIN card_sets s ON s.id = f.set_id
		WHERE p.user_id = ?
		ORDER BY s.name, f.id
	`)

	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, mapError("failed to export progress", err)
	}
	return rows, nil
}

// poolQuery selects cards joined with the user's progress; leftJoin keeps cards without a row.
func (r *ProgressRepository) poolQuery(userID, setID int64, leftJoin bool) squirrel.SelectBuilder {
	q := r.db.sb.Select(poolColumns...).From("flashcards f")
	join := "card_progress p ON p.flashcard_id = f.id AND p.user_id = ?"
	if leftJoin {
		q = q.LeftJoin(join, userID)
	} else {
		q = q.Join(join, userID)
	}
	if setID != 0 {
		q = q.Where(squirrel.Eq{"f.set_id": setID})
	}
	return q
}

func (r *ProgressRepository) selectPool(ctx context.Context, userID int64, q squirrel.SelectBuilder, op string) ([]models.PoolCard, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, mapError(op, err)
	}

	var rows []poolRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(op, err)
	}

	cards := make([]models.PoolCard, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, row.toPoolCard(userID))
	}
	return cards, nil
}

func (r *ProgressRepository) getScalar(ctx context.Context, q squirrel.SelectBuilder, dest interface{}) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return r.db.QueryRowxContext(ctx, query, args...).Scan(dest)
}
