package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

const cardColumns = "id, set_id, front, back, example, created_at"

// CardRepository handles database operations for flashcards
type CardRepository struct {
	db *DB
}

// NewCardRepository creates a new repository instance
func NewCardRepository(db *DB) *CardRepository {
	return &CardRepository{db: db}
}

// Create inserts a new card and fills in its ID
func (r *CardRepository) Create(ctx context.Context, card *models.Flashcard) error {
	if card.CreatedAt == 0 {
		card.CreatedAt = time.Now().Unix()
	}
	query := r.db.Rebind(`
		INSERT INTO flashcards (set_id, front, back, example, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.QueryRowxContext(ctx, query, card.SetID, card.Front, card.Back, card.Example, card.CreatedAt).Scan(&card.ID)
	if err != nil {
		return mapError("failed to create card", err)
	}
	return nil
}

// Upsert creates the card or updates back and example of the card with the same
// front in the same set. It reports whether a new card was created.
func (r *CardRepository) Upsert(ctx context.Context, card *models.Flashcard) (bool, error) {
	var existingID int64
	query := r.db.Rebind("SELECT id FROM flashcards WHERE set_id = ? AND front = ?")
	err := r.db.QueryRowxContext(ctx, query, card.SetID, card.Front).Scan(&existingID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return true, r.Create(ctx, card)
	case err != nil:
		return false, mapError("failed to look up card", err)
	}

	update := r.db.Rebind("UPDATE flashcards SET back = ?, example = ? WHERE id = ?")
	if _, err := r.db.ExecContext(ctx, update, card.Back, card.Example, existingID); err != nil {
		return false, mapError("failed to update card", err)
	}
	card.ID = existingID
	return false, nil
}

// GetByID returns a card by ID
func (r *CardRepository) GetByID(ctx context.Context, id int64) (*models.Flashcard, error) {
	var card models.Flashcard
	query := r.db.Rebind("SELECT " + cardColumns + " FROM flashcards WHERE id = ?")

	err := r.db.GetContext(ctx, &card, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(apperrors.CodeCardNotFound, "card", id)
	}
	if err != nil {
		return nil, mapError("failed to get card", err)
	}
	return &card, nil
}

// ListBySet returns the cards of a set in insertion order
func (r *CardRepository) ListBySet(ctx context.Context, setID int64) ([]models.Flashcard, error) {
	cards := []models.Flashcard{}
	query := r.db.Rebind("SELECT " + cardColumns + " FROM flashcards WHERE set_id = ? ORDER BY id")

	if err := r.db.SelectContext(ctx, &cards, query, setID); err != nil {
		return nil, mapError("failed to list cards", err)
	}
	return cards, nil
}

// CountBySet returns the number of cards in a set
func (r *CardRepository) CountBySet(ctx context.Context, setID int64) (int, error) {
	var n int
	query := r.db.Rebind("SELECT COUNT(*) FROM flashcards WHERE set_id = ?")

	if err := r.db.GetContext(ctx, &n, query, setID); err != nil {
		return 0, mapError("failed to count cards", err)
	}
	return n, nil
}
