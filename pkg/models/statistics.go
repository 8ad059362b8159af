package models

// Statistics summarizes a user's learning progress
type Statistics struct {
	UserID       int64 `json:"user_id" db:"user_id"`
	Score        int64 `json:"score" db:"score"`
	CardsSeen    int   `json:"cards_seen" db:"cards_seen"`
	CardsLearned int   `json:"cards_learned" db:"cards_learned"`
	DueNow       int   `json:"due_now" db:"due_now"`
	Skipped      int   `json:"skipped" db:"skipped"`
	Mastered     int   `json:"mastered" db:"mastered"` // streak at or above the skip threshold
	TotalReviews int   `json:"total_reviews" db:"total_reviews"`
	TotalLapses  int   `json:"total_lapses" db:"total_lapses"`
	ReviewsToday int   `json:"reviews_today" db:"reviews_today"`
	NextDueTime  int64 `json:"next_due_time" db:"next_due_time"` // 0 when nothing is pending
}

// ProgressExportRow is one line of a user's progress export
type ProgressExportRow struct {
	SetName        string `db:"set_name"`
	Front          string `db:"front"`
	Back           string `db:"back"`
	ReviewCount    int    `db:"review_count"`
	CorrectStreak  int    `db:"correct_streak"`
	CorrectCount   int    `db:"correct_count"`
	IncorrectCount int    `db:"incorrect_count"`
	LapseCount     int    `db:"lapse_count"`
	DueTime        int64  `db:"due_time"`
	LearnedDate    *int64 `db:"learned_date"`
	IsSkipped      bool   `db:"is_skipped"`
}
