// Package config resolves the tasktalk home directory and loads server
// settings from config.yaml plus TASKTALK_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds everything the server and CLI need at startup. Values come
// from config.yaml in the tasktalk home, overridable via TASKTALK_* env vars
// (TASKTALK_SERVER_ADDR, TASKTALK_MODEL_PROVIDER, ...).
type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Database DatabaseSettings `mapstructure:"database"`
	Model    ModelSettings    `mapstructure:"model"`
	Agent    AgentSettings    `mapstructure:"agent"`
}

type ServerSettings struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseSettings struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is required for postgres; ignored for sqlite (which lives in home).
	DSN string `mapstructure:"dsn"`
}

type ModelSettings struct {
	// Provider is "openai", "anthropic", or "scripted".
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type AgentSettings struct {
	// HistoryWindow is how many recent messages accompany each classification.
	HistoryWindow int `mapstructure:"history_window"`
	// AmbiguityMargin is the score gap under which two candidate intents tie.
	AmbiguityMargin float64 `mapstructure:"ambiguity_margin"`
	// SuggestionLimit caps the recent tasks offered on a failed lookup.
	SuggestionLimit int `mapstructure:"suggestion_limit"`
	// ConfirmCreates gates task creation behind a confirmation turn.
	ConfirmCreates bool          `mapstructure:"confirm_creates"`
	StoreTimeout   time.Duration `mapstructure:"store_timeout"`
}

// Load reads settings from home/config.yaml, applying defaults and env
// overrides. A missing config file is not an error.
func Load(home string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(home, "config.yaml"))
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TASKTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("model.provider", "scripted")
	v.SetDefault("model.model", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.timeout", 30*time.Second)
	v.SetDefault("agent.history_window", 20)
	v.SetDefault("agent.ambiguity_margin", 0.15)
	v.SetDefault("agent.suggestion_limit", 5)
	v.SetDefault("agent.confirm_creates", false)
	v.SetDefault("agent.store_timeout", 5*time.Second)
}
