package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for optional configuration parameters.
const (
	DefaultLogLevel = "info"

	DefaultDBPath = "storage.db"

	DefaultArxivBaseURL        = "https://export.arxiv.org/api/query"
	DefaultArxivMaxResults     = 20
	DefaultFetchIntervalHours  = 6
	DefaultArxivRequestTimeout = 30 * time.Second

	DefaultLLMModel           = "gemini-2.0-flash"
	DefaultLLMTemperature     = 0.7
	DefaultLLMMaxAttempts     = 3
	DefaultLLMBaseDelay       = 2 * time.Second
	DefaultLLMBackoffMultiple = 2.0
	DefaultLLMMaxTags         = 5
	DefaultLLMConcurrency     = 5

	DefaultSessionTimeout       = 180 * time.Second
	DefaultSessionCheckInterval = 2 * time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("arxiv.base_url", DefaultArxivBaseURL)
	v.SetDefault("arxiv.max_results", DefaultArxivMaxResults)
	v.SetDefault("arxiv.fetch_interval_hours", DefaultFetchIntervalHours)
	v.SetDefault("arxiv.request_timeout", DefaultArxivRequestTimeout)
	v.SetDefault("arxiv.default_categories", []string{"cs.CL", "cs.CV", "cs.LG"})

	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.temperature", DefaultLLMTemperature)
	v.SetDefault("llm.max_attempts", DefaultLLMMaxAttempts)
	v.SetDefault("llm.base_delay", DefaultLLMBaseDelay)
	v.SetDefault("llm.backoff_multiple", DefaultLLMBackoffMultiple)
	v.SetDefault("llm.max_tags", DefaultLLMMaxTags)
	v.SetDefault("llm.concurrency", DefaultLLMConcurrency)

	v.SetDefault("session.timeout", DefaultSessionTimeout)
	v.SetDefault("session.check_interval", DefaultSessionCheckInterval)

	v.SetDefault("scheduler.tasks.fetch_sweep.enabled", true)
	v.SetDefault("scheduler.tasks.channel_digest.enabled", false)
	v.SetDefault("scheduler.tasks.channel_digest.schedule", "0 0 9 * * *")
	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 4 * * *")

	v.SetDefault("messages.welcome", "Hello! I push new arXiv papers matching your saved search queries. Use /set_keywords to register one; the fetch interval is %d hours. Example query: cat:cs.CV AND (all:\"object detection\")")
	v.SetDefault("messages.help", "/show — list your queries\n/set_keywords — add or delete a query\n/fetch_now — run your queries immediately\n/cancel — abort the current dialog")
	v.SetDefault("messages.no_queries", "You have no search queries yet. Use /set_keywords to add one.")
	v.SetDefault("messages.queries_header", "Your current search queries:")
	v.SetDefault("messages.prompt_query", "Please enter the search query to add:")
	v.SetDefault("messages.prompt_max", "Query: %s\nEnter the result limit (1-%d):")
	v.SetDefault("messages.prompt_delete", "Reply with the number of the query to delete:")
	v.SetDefault("messages.empty_query", "The query cannot be empty. Please enter it again:")
	v.SetDefault("messages.invalid_number", "Please enter a valid number:")
	v.SetDefault("messages.out_of_range", "Please enter a number between 1 and %d:")
	v.SetDefault("messages.duplicate_query", "That query already exists. Please enter a different one:")
	v.SetDefault("messages.invalid_index", "Invalid number. Please reply with a listed index:")
	v.SetDefault("messages.query_added", "Added: %s (limit %d). You now have %d queries.")
	v.SetDefault("messages.query_deleted", "Deleted: %s. %d queries remain.")
	v.SetDefault("messages.cancelled", "Operation cancelled.")
	v.SetDefault("messages.session_expired", "Dialog timed out and was cancelled.")
	v.SetDefault("messages.no_flow_hint", "No dialog in progress. Use /set_keywords to manage your queries.")
	v.SetDefault("messages.general_error", "Something went wrong. Please try again later.")
	v.SetDefault("messages.unauthorized", "You are not authorized to use this command.")
	v.SetDefault("messages.fetch_started", "Fetching papers for: %s")
	v.SetDefault("messages.fetch_done", "Done. All matching papers were delivered.")
}
