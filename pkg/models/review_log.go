package models

// ReviewLogEntry is an immutable audit record of one scored answer
type ReviewLogEntry struct {
	ID          int64    `json:"id" db:"id"`
	UserID      int64    `json:"user_id" db:"user_id"`
	FlashcardID int64    `json:"flashcard_id" db:"flashcard_id"`
	SetID       int64    `json:"set_id" db:"set_id"`
	Timestamp   int64    `json:"timestamp" db:"timestamp"`
	Response    Response `json:"response" db:"response"`
	ScoreChange int      `json:"score_change" db:"score_change"`
}
