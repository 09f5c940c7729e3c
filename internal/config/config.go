package config

import (
	"errors"
	"os"
	"strings"
)

const (
	EnvAPIKey  = "BATCHSCRIBE_API_KEY"
	EnvSource  = "BATCHSCRIBE_AUDIO_SOURCE"
	EnvBaseURL = "BATCHSCRIBE_BASE_URL"

	DefaultBaseURL        = "https://api.sarvam.ai"
	DefaultDestinationDir = "output"
)

// Config is built once at process start and passed into the orchestrator and
// the job client. Nothing below the CLI layer reads the environment.
type Config struct {
	APIKey         string
	BaseURL        string
	Source         string
	DestinationDir string
}

// FromEnv reads the environment-backed settings. Flag values, applied by the
// CLI layer afterwards, take precedence over these.
func FromEnv() Config {
	return fromGetenv(os.Getenv)
}

func fromGetenv(getenv func(string) string) Config {
	cfg := Config{
		APIKey:         strings.TrimSpace(getenv(EnvAPIKey)),
		BaseURL:        strings.TrimSpace(getenv(EnvBaseURL)),
		Source:         strings.TrimSpace(getenv(EnvSource)),
		DestinationDir: DefaultDestinationDir,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("API key is not set; export " + EnvAPIKey)
	}
	if c.Source == "" {
		return errors.New("no audio source given; pass --source or export " + EnvSource)
	}
	return nil
}
