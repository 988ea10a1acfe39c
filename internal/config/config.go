package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// NLUProvider selects which natural-language-understanding backend is active.
type NLUProvider string

const (
	ProviderOpenAI     NLUProvider = "openai"
	ProviderLocal      NLUProvider = "local"
	ProviderRules      NLUProvider = "rules"
	ProviderGoogle     NLUProvider = "google"
	ProviderDialogflow NLUProvider = "dialogflow"
)

type Config struct {
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/tripeak.db"`

	// LINE messaging credentials
	LineChannelSecret      string `env:"LINE_CHANNEL_SECRET,required"`
	LineChannelAccessToken string `env:"LINE_CHANNEL_ACCESS_TOKEN,required"`

	// NLU settings
	NLUProvider   NLUProvider   `env:"NLU_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	OpenAIModel   string        `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAITimeout time.Duration `env:"OPENAI_TIMEOUT" envDefault:"30s"`

	LocalNLUBaseURL string        `env:"LOCAL_NLU_BASE_URL" envDefault:"http://localhost:11434"`
	LocalNLUModel   string        `env:"LOCAL_NLU_MODEL" envDefault:"llama3.1"`
	LocalNLUTimeout time.Duration `env:"LOCAL_NLU_TIMEOUT" envDefault:"30s"`
	LocalNLURetries int           `env:"LOCAL_NLU_RETRIES" envDefault:"3"`
	NLUCacheSize    int           `env:"NLU_CACHE_SIZE" envDefault:"128"`

	// Conversation settings
	HistoryLimit      int           `env:"CONVERSATION_HISTORY_LIMIT" envDefault:"50"`
	StaleWaitingAfter time.Duration `env:"STALE_WAITING_AFTER" envDefault:"30m"`
	ReaperSchedule    string        `env:"REAPER_SCHEDULE" envDefault:"*/10 * * * *"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
