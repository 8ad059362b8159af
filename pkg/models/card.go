package models

// Flashcard is a single question/answer pair belonging to a set.
// Insertion order (ascending ID) is the sequential learning order.
type Flashcard struct {
	ID        int64  `json:"id" db:"id"`
	SetID     int64  `json:"set_id" db:"set_id"`
	Front     string `json:"front" db:"front"`
	Back      string `json:"back" db:"back"`
	Example   string `json:"example" db:"example"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
}

// CardSet groups flashcards
type CardSet struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	CreatedAt   int64  `json:"created_at" db:"created_at"`
}
