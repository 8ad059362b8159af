package models

// User represents a Telegram user learning with the bot
type User struct {
	ID                   int64   `json:"id" db:"id"` // Telegram User ID
	Username             string  `json:"username" db:"username"`
	FirstName            string  `json:"first_name" db:"first_name"`
	IsAdmin              bool    `json:"is_admin" db:"is_admin"`
	Score                int64   `json:"score" db:"score"`
	TimezoneOffset       float64 `json:"timezone_offset" db:"timezone_offset"` // Hours, signed
	CurrentMode          Mode    `json:"current_mode" db:"current_mode"`
	CurrentSetID         *int64  `json:"current_set_id" db:"current_set_id"`
	NotificationsEnabled bool    `json:"notifications_enabled" db:"notifications_enabled"`
	LastRemindedAt       *int64  `json:"last_reminded_at" db:"last_reminded_at"`
	CreatedAt            int64   `json:"created_at" db:"created_at"`
}
