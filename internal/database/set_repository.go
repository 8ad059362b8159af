package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

// SetRepository handles database operations for card sets
type SetRepository struct {
	db *DB
}

// NewSetRepository creates a new repository instance
func NewSetRepository(db *DB) *SetRepository {
	return &SetRepository{db: db}
}

// Create inserts a new set and fills in its ID
func (r *SetRepository) Create(ctx context.Context, set *models.CardSet) error {
	if set.CreatedAt == 0 {
		set.CreatedAt = time.Now().Unix()
	}
	query := r.db.Rebind(`
		INSERT INTO card_sets (name, description, created_at)
		VALUES (?, ?, ?)
		RETURNING id
	`)

	err := r.db.QueryRowxContext(ctx, query, set.Name, set.Description, set.CreatedAt).Scan(&set.ID)
	if err != nil {
		return mapError("failed to create set", err)
	}
	return nil
}

// GetByID retrieves a set by its ID
func (r *SetRepository) GetByID(ctx context.Context, id int64) (*models.CardSet, error) {
	var set models.CardSet
	query := r.db.Rebind("SELECT id, name, description, created_at FROM card_sets WHERE id = ?")

	err := r.db.GetContext(ctx, &set, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(apperrors.CodeSetNotFound, "set", id)
	}
	if err != nil {
		return nil, mapError("failed to get set", err)
	}
	return &set, nil
}

// GetByName retrieves a set by its unique name
func (r *SetRepository) GetByName(ctx context.Context, name string) (*models.CardSet, error) {
	var set models.CardSet
	query := r.db.Rebind("SELECT id, name, description, created_at FROM card_sets WHERE name = ?")

	err := r.db.GetContext(ctx, &set, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(apperrors.CodeSetNotFound, "set", name)
	}
	if err != nil {
		return nil, mapError("failed to get set by name", err)
	}
	return &set, nil
}

// GetOrCreate returns the set with the given name, creating it when missing
func (r *SetRepository) GetOrCreate(ctx context.Context, name string) (*models.CardSet, bool, error) {
	set, err := r.GetByName(ctx, name)
	if err == nil {
		return set, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	set = &models.CardSet{Name: name}
	if err := r.Create(ctx, set); err != nil {
		return nil, false, err
	}
	return set, true, nil
}

// List returns all sets ordered by name
func (r *SetRepository) List(ctx context.Context) ([]models.CardSet, error) {
	sets := []models.CardSet{}
	err := r.db.SelectContext(ctx, &sets, "SELECT id, name, description, created_at FROM card_sets ORDER BY name")
	if err != nil {
		return nil, mapError("failed to list sets", err)
	}
	return sets, nil
}
