package spaced_repetition

// Settings holds the scheduling and scoring constants. Loaded once at start-up.
type Settings struct {
	// Interval before the next review when the streak is zero
	InitialIntervalHours float64 `mapstructure:"initial_interval_hours" validate:"gt=0"`
	// Upper bound of any computed interval
	MaxIntervalDays int `mapstructure:"max_interval_days" validate:"gt=0"`
	// Retry delays for non-correct answers and first exposures
	RetryWrongMinutes int `mapstructure:"retry_wrong_minutes" validate:"gte=0"`
	RetryHardMinutes  int `mapstructure:"retry_hard_minutes" validate:"gte=0"`
	RetryNewMinutes   int `mapstructure:"retry_new_minutes" validate:"gte=0"`
	// Reward tables
	ScoreCorrect      int `mapstructure:"score_correct"`
	ScoreHard         int `mapstructure:"score_hard"`
	ScoreQuickCorrect int `mapstructure:"score_quick_correct"`
	ScoreQuickHard    int `mapstructure:"score_quick_hard"`
	// Minimum streak before a card may be skipped
	SkipStreakThreshold int `mapstructure:"skip_streak_threshold" validate:"gte=1"`
	// Used for users that never set their own offset
	DefaultTimezoneOffset float64 `mapstructure:"default_timezone_offset" validate:"gte=-12,lte=14"`
	// Probability of serving a due card instead of the next new one in sequential_random_new
	ReviewInjectionRate float64 `mapstructure:"review_injection_rate" validate:"gte=0,lte=1"`
}

// DefaultSettings returns the stock constants
func DefaultSettings() Settings {
	return Settings{
		InitialIntervalHours:  0.5,
		MaxIntervalDays:       30,
		RetryWrongMinutes:     30,
		RetryHardMinutes:      60,
		RetryNewMinutes:       10,
		ScoreCorrect:          5,
		ScoreHard:             1,
		ScoreQuickCorrect:     1,
		ScoreQuickHard:        0,
		SkipStreakThreshold:   5,
		DefaultTimezoneOffset: 0,
		ReviewInjectionRate:   0.3,
	}
}
