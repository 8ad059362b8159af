package models

// CardProgress tracks a user's scheduling state for one flashcard
type CardProgress struct {
	ID             int64  `json:"id" db:"id"`
	UserID         int64  `json:"user_id" db:"user_id"`
	FlashcardID    int64  `json:"flashcard_id" db:"flashcard_id"`
	ReviewCount    int    `json:"review_count" db:"review_count"`
	CorrectStreak  int    `json:"correct_streak" db:"correct_streak"`
	CorrectCount   int    `json:"correct_count" db:"correct_count"`
	IncorrectCount int    `json:"incorrect_count" db:"incorrect_count"`
	LapseCount     int    `json:"lapse_count" db:"lapse_count"`
	DueTime        int64  `json:"due_time" db:"due_time"`         // Unix seconds
	LearnedDate    *int64 `json:"learned_date" db:"learned_date"` // Start of the user-local day of first exposure
	LastReviewed   *int64 `json:"last_reviewed" db:"last_reviewed"`
	IsSkipped      bool   `json:"is_skipped" db:"is_skipped"`
}

// IsLearned reports whether the card has been acknowledged at least once.
func (p *CardProgress) IsLearned() bool {
	return p.LearnedDate != nil
}

// IsDue reports whether the card is eligible for scheduled review at now.
func (p *CardProgress) IsDue(now int64) bool {
	return p.DueTime <= now
}

// ProgressWithCard is a progress row joined with the card it belongs to
type ProgressWithCard struct {
	CardProgress
	SetID int64  `json:"set_id" db:"set_id"`
	Front string `json:"front" db:"front"`
	Back  string `json:"back" db:"back"`
}

// ProgressUpdate is a partial update of a progress row. Nil fields are left untouched.
type ProgressUpdate struct {
	ReviewCount    *int
	CorrectStreak  *int
	CorrectCount   *int
	IncorrectCount *int
	LapseCount     *int
	DueTime        *int64
	LearnedDate    *int64
	LastReviewed   *int64
}

// Columns returns the column/value pairs set in the update, keyed by column name.
func (u ProgressUpdate) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if u.ReviewCount != nil {
		cols["review_count"] = *u.ReviewCount
	}
	if u.CorrectStreak != nil {
		cols["correct_streak"] = *u.CorrectStreak
	}
	if u.CorrectCount != nil {
		cols["correct_count"] = *u.CorrectCount
	}
	if u.IncorrectCount != nil {
		cols["incorrect_count"] = *u.IncorrectCount
	}
	if u.LapseCount != nil {
		cols["lapse_count"] = *u.LapseCount
	}
	if u.DueTime != nil {
		cols["due_time"] = *u.DueTime
	}
	if u.LearnedDate != nil {
		cols["learned_date"] = *u.LearnedDate
	}
	if u.LastReviewed != nil {
		cols["last_reviewed"] = *u.LastReviewed
	}
	return cols
}

// IsEmpty reports whether the update touches no column.
func (u ProgressUpdate) IsEmpty() bool {
	return len(u.Columns()) == 0
}

// Apply copies every set field of the update onto p.
func (u ProgressUpdate) Apply(p *CardProgress) {
	if u.ReviewCount != nil {
		p.ReviewCount = *u.ReviewCount
	}
	if u.CorrectStreak != nil {
		p.CorrectStreak = *u.CorrectStreak
	}
	if u.CorrectCount != nil {
		p.CorrectCount = *u.CorrectCount
	}
	if u.IncorrectCount != nil {
		p.IncorrectCount = *u.IncorrectCount
	}
	if u.LapseCount != nil {
		p.LapseCount = *u.LapseCount
	}
	if u.DueTime != nil {
		p.DueTime = *u.DueTime
	}
	if u.LearnedDate != nil {
		v := *u.LearnedDate
		p.LearnedDate = &v
	}
	if u.LastReviewed != nil {
		v := *u.LastReviewed
		p.LastReviewed = &v
	}
}

// PoolCard is a candidate served by the card selector. Progress is nil for unseen cards.
type PoolCard struct {
	Card     Flashcard
	Progress *CardProgress
}
