// Package config provides configuration loading, validation, and defaults
// for the ArxivPusherBot application. Values come from config.yaml and
// BOT_* environment variables layered over programmatic defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Arxiv     ArxivConfig     `mapstructure:"arxiv"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Session   SessionConfig   `mapstructure:"session"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and runtime bot identity.
type TelegramConfig struct {
	Token       string `mapstructure:"token"        validate:"required"`
	AdminUserID int64  `mapstructure:"admin_user_id" validate:"required,gt=0"`

	// ChannelChatID is the optional destination for the daily channel
	// digest task. Zero disables the digest.
	ChannelChatID int64 `mapstructure:"channel_chat_id"`

	// BotInfo is filled at startup from GetMe, not from the config file.
	BotInfo *models.User `mapstructure:"-"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ArxivConfig holds paper-index API settings.
type ArxivConfig struct {
	BaseURL            string        `mapstructure:"base_url"             validate:"required,url"`
	MaxResults         int           `mapstructure:"max_results"          validate:"min=1,max=100"`
	FetchIntervalHours int           `mapstructure:"fetch_interval_hours" validate:"min=1,max=168"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"      validate:"min=1s,max=5m"`
	DefaultCategories  []string      `mapstructure:"default_categories"`
}

// LLMConfig holds generation service settings, including the explicit
// retry policy applied to every generation request.
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"     validate:"required"`
	Model       string  `mapstructure:"model"       validate:"required"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`

	MaxAttempts     int           `mapstructure:"max_attempts"     validate:"min=1,max=10"`
	BaseDelay       time.Duration `mapstructure:"base_delay"       validate:"min=100ms,max=1m"`
	BackoffMultiple float64       `mapstructure:"backoff_multiple" validate:"min=1,max=10"`

	MaxTags     int   `mapstructure:"max_tags"    validate:"min=1,max=20"`
	Concurrency int64 `mapstructure:"concurrency" validate:"min=1,max=50"`
}

// SessionConfig controls interactive session expiry.
type SessionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"        validate:"min=10s,max=1h"`
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"min=500ms,max=1m"`
}

// TaskConfig configures one scheduled task. Either Interval or a cron
// Schedule must be set for an enabled task.
type TaskConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Schedule string        `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// MessagesConfig holds the user-facing message templates.
type MessagesConfig struct {
	Welcome        string `mapstructure:"welcome"         validate:"required"`
	Help           string `mapstructure:"help"            validate:"required"`
	NoQueries      string `mapstructure:"no_queries"      validate:"required"`
	QueriesHeader  string `mapstructure:"queries_header"  validate:"required"`
	PromptQuery    string `mapstructure:"prompt_query"    validate:"required"`
	PromptMax      string `mapstructure:"prompt_max"      validate:"required"`
	PromptDelete   string `mapstructure:"prompt_delete"   validate:"required"`
	EmptyQuery     string `mapstructure:"empty_query"     validate:"required"`
	InvalidNumber  string `mapstructure:"invalid_number"  validate:"required"`
	OutOfRange     string `mapstructure:"out_of_range"    validate:"required"`
	DuplicateQuery string `mapstructure:"duplicate_query" validate:"required"`
	InvalidIndex   string `mapstructure:"invalid_index"   validate:"required"`
	QueryAdded     string `mapstructure:"query_added"     validate:"required"`
	QueryDeleted   string `mapstructure:"query_deleted"   validate:"required"`
	Cancelled      string `mapstructure:"cancelled"       validate:"required"`
	SessionExpired string `mapstructure:"session_expired" validate:"required"`
	NoFlowHint     string `mapstructure:"no_flow_hint"    validate:"required"`
	GeneralError   string `mapstructure:"general_error"   validate:"required"`
	Unauthorized   string `mapstructure:"unauthorized"    validate:"required"`
	FetchStarted   string `mapstructure:"fetch_started"   validate:"required"`
	FetchDone      string `mapstructure:"fetch_done"      validate:"required"`
}

// Load reads configuration from the given YAML file and BOT_*
// environment variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; env vars and defaults apply.
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// The sweep interval follows the arXiv fetch interval unless the
	// task carries its own override.
	if t, ok := cfg.Scheduler.Tasks["fetch_sweep"]; ok && t.Interval == 0 && t.Schedule == "" {
		t.Interval = time.Duration(cfg.Arxiv.FetchIntervalHours) * time.Hour
		cfg.Scheduler.Tasks["fetch_sweep"] = t
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}
