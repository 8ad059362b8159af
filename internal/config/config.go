package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/cardbot/internal/spaced_repetition"
	"github.com/example/cardbot/pkg/models"
)

var ErrMissingEnvironmentVariables = errors.New("missing required environment variables")

// Config holds application configuration loaded from .env, config files and environment variables.
type Config struct {
	Env         string                     `mapstructure:"env" validate:"required"`
	LogLevel    string                     `mapstructure:"log_level" validate:"required"`
	DefaultMode string                     `mapstructure:"default_mode" validate:"required"`
	Telegram    Telegram                   `mapstructure:"telegram"`
	Database    Database                   `mapstructure:"database"`
	Reminder    Reminder                   `mapstructure:"reminder"`
	SRS         spaced_repetition.Settings `mapstructure:"srs"`
}

// Telegram contains bot API settings.
type Telegram struct {
	Token         string  `mapstructure:"token" validate:"required"`
	AdminIDsRaw   string  `mapstructure:"admin_user_ids"`
	AdminIDs      []int64 `mapstructure:"-"`
	UpdateTimeout int     `mapstructure:"update_timeout" validate:"gte=1"`
}

// Database selects the driver and where to connect.
type Database struct {
	Type         string `mapstructure:"type" validate:"oneof=sqlite3 postgres"`
	URL          string `mapstructure:"url"`
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
}

// DSN returns the connection string for the configured driver.
func (db Database) DSN() (string, error) {
	if db.Type == "postgres" {
		if db.URL == "" {
			return "", ErrMissingEnvironmentVariables
		}
		return db.URL, nil
	}
	if db.Path == "" {
		return "", ErrMissingEnvironmentVariables
	}
	return db.Path, nil
}

// Reminder configures the due-card notification job.
type Reminder struct {
	Enabled   bool          `mapstructure:"enabled"`
	StartHour int           `mapstructure:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int           `mapstructure:"end_hour" validate:"gte=0,lte=23,gtefield=StartHour"`
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
	MinGap    time.Duration `mapstructure:"min_gap" validate:"gte=0"`
}

// Load reads configuration from an optional .env file, an optional config/config.yaml
// and environment variables, then validates it.
func Load() (*Config, error) {
	// Ignore error so the bot still starts when .env is absent in production.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var fileLookupErr viper.ConfigFileNotFoundError
		if !errors.As(err, &fileLookupErr) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	ids, err := parseAdminIDs(cfg.Telegram.AdminIDsRaw)
	if err != nil {
		return nil, err
	}
	cfg.Telegram.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN: %w", ErrMissingEnvironmentVariables)
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := models.ParseMode(c.DefaultMode); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Database.DSN(); err != nil {
		return fmt.Errorf("database %s: %w", c.Database.Type, err)
	}
	return nil
}

// Mode returns the parsed default learning mode.
func (c *Config) Mode() models.Mode {
	return models.Mode(strings.ToLower(strings.TrimSpace(c.DefaultMode)))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("default_mode", string(models.ModeSequentialInterspersed))

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_ids", "")
	v.SetDefault("telegram.update_timeout", 60)

	v.SetDefault("database.type", "sqlite3")
	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "data/cardbot.db")
	v.SetDefault("database.max_open_conns", 1)

	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.start_hour", 8)
	v.SetDefault("reminder.end_hour", 22)
	v.SetDefault("reminder.interval", "1h")
	v.SetDefault("reminder.min_gap", "12h")

	d := spaced_repetition.DefaultSettings()
	v.SetDefault("srs.initial_interval_hours", d.InitialIntervalHours)
	v.SetDefault("srs.max_interval_days", d.MaxIntervalDays)
	v.SetDefault("srs.retry_wrong_minutes", d.RetryWrongMinutes)
	v.SetDefault("srs.retry_hard_minutes", d.RetryHardMinutes)
	v.SetDefault("srs.retry_new_minutes", d.RetryNewMinutes)
	v.SetDefault("srs.score_correct", d.ScoreCorrect)
	v.SetDefault("srs.score_hard", d.ScoreHard)
	v.SetDefault("srs.score_quick_correct", d.ScoreQuickCorrect)
	v.SetDefault("srs.score_quick_hard", d.ScoreQuickHard)
	v.SetDefault("srs.skip_streak_threshold", d.SkipStreakThreshold)
	v.SetDefault("srs.default_timezone_offset", d.DefaultTimezoneOffset)
	v.SetDefault("srs.review_injection_rate", d.ReviewInjectionRate)
}

// bindEnv maps the historical environment variable names onto config keys.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("env", "APP_ENV")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("default_mode", "DEFAULT_MODE")

	_ = v.BindEnv("telegram.token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.admin_user_ids", "ADMIN_USER_IDS")

	_ = v.BindEnv("database.type", "DB_TYPE")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.path", "DB_PATH")

	_ = v.BindEnv("reminder.enabled", "ENABLE_SCHEDULER")
	_ = v.BindEnv("reminder.start_hour", "NOTIFICATION_START_HOUR")
	_ = v.BindEnv("reminder.end_hour", "NOTIFICATION_END_HOUR")
	_ = v.BindEnv("reminder.interval", "REMINDER_INTERVAL")
	_ = v.BindEnv("reminder.min_gap", "REMINDER_MIN_GAP")

	_ = v.BindEnv("srs.initial_interval_hours", "SRS_INITIAL_INTERVAL_HOURS")
	_ = v.BindEnv("srs.max_interval_days", "SRS_MAX_INTERVAL_DAYS")
	_ = v.BindEnv("srs.retry_wrong_minutes", "RETRY_INTERVAL_WRONG_MIN")
	_ = v.BindEnv("srs.retry_hard_minutes", "RETRY_INTERVAL_HARD_MIN")
	_ = v.BindEnv("srs.retry_new_minutes", "RETRY_INTERVAL_NEW_MIN")
	_ = v.BindEnv("srs.score_correct", "SCORE_INCREASE_CORRECT")
	_ = v.BindEnv("srs.score_hard", "SCORE_INCREASE_HARD")
	_ = v.BindEnv("srs.score_quick_correct", "SCORE_INCREASE_QUICK_REVIEW_CORRECT")
	_ = v.BindEnv("srs.score_quick_hard", "SCORE_INCREASE_QUICK_REVIEW_HARD")
	_ = v.BindEnv("srs.skip_streak_threshold", "SKIP_STREAK_THRESHOLD")
	_ = v.BindEnv("srs.default_timezone_offset", "DEFAULT_TIMEZONE_OFFSET")
	_ = v.BindEnv("srs.review_injection_rate", "REVIEW_INJECTION_RATE")
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, idStr := range strings.Split(raw, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin user ID %q: %w", idStr, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
