package bot

import (
	"github.com/example/cardbot/pkg/models"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Users allowed to run /import
	AdminIDs []int64
	// Mode for users who never picked one
	DefaultMode models.Mode
	// Timezone offset in hours given to new users
	DefaultTimezone float64
	// Correct streak a card needs before /skip accepts it
	SkipStreakThreshold int
	// Long-polling timeout in seconds
	UpdateTimeout int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		DefaultMode:         models.ModeSequentialInterspersed,
		SkipStreakThreshold: 5,
		UpdateTimeout:       60,
	}
}
