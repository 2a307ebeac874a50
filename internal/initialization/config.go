package initialization

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all deskmate configuration.
type Config struct {
	HTTPAddress string

	// EncryptionKey is the base64 encoded 32 byte vault key.
	EncryptionKey string

	// DatabaseURL switches persistence to Postgres when set; otherwise the
	// in-memory stores are used.
	DatabaseURL string

	// CallbackBaseURL is the externally reachable base of this server.
	CallbackBaseURL string

	// SettingsRedirectURL is where OAuth callbacks land in the UI.
	SettingsRedirectURL string

	// LLM settings. Provider is "anthropic" or "openai".
	LLMProvider     string
	LLMModel        string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	MaxToolSteps    int

	CacheSweepSchedule string
	PreloadOnStart     bool

	// OAuth application credentials. The Google credentials are shared by
	// every Google connector.
	GoogleClientID      string
	GoogleClientSecret  string
	OutlookClientID     string
	OutlookClientSecret string
	YahooClientID       string
	YahooClientSecret   string
}

// LoadConfig loads configuration from config files and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"HTTPAddress":         "HTTP_ADDRESS",
		"EncryptionKey":       "DESKMATE_ENCRYPTION_KEY",
		"DatabaseURL":         "DATABASE_URL",
		"CallbackBaseURL":     "CALLBACK_BASE_URL",
		"SettingsRedirectURL": "SETTINGS_REDIRECT_URL",
		"LLMProvider":         "LLM_PROVIDER",
		"LLMModel":            "LLM_MODEL",
		"AnthropicAPIKey":     "ANTHROPIC_API_KEY",
		"OpenAIAPIKey":        "OPENAI_API_KEY",
		"MaxToolSteps":        "MAX_TOOL_STEPS",
		"CacheSweepSchedule":  "CACHE_SWEEP_SCHEDULE",
		"PreloadOnStart":      "PRELOAD_ON_START",
		"GoogleClientID":      "GOOGLE_CLIENT_ID",
		"GoogleClientSecret":  "GOOGLE_CLIENT_SECRET",
		"OutlookClientID":     "OUTLOOK_CLIENT_ID",
		"OutlookClientSecret": "OUTLOOK_CLIENT_SECRET",
		"YahooClientID":       "YAHOO_CLIENT_ID",
		"YahooClientSecret":   "YAHOO_CLIENT_SECRET",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("deskmate_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.deskmate")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":8080")
	v.SetDefault("CallbackBaseURL", "http://localhost:8080")
	v.SetDefault("SettingsRedirectURL", "http://localhost:3000/settings")
	v.SetDefault("LLMProvider", "anthropic")
	v.SetDefault("MaxToolSteps", 5)
	v.SetDefault("CacheSweepSchedule", "@every 10m")
}

func validateConfig(config *Config) error {
	var missingVars []string

	if config.EncryptionKey == "" {
		missingVars = append(missingVars, "DESKMATE_ENCRYPTION_KEY")
	}

	switch config.LLMProvider {
	case "anthropic":
		if config.AnthropicAPIKey == "" {
			missingVars = append(missingVars, "ANTHROPIC_API_KEY")
		}
	case "openai":
		if config.OpenAIAPIKey == "" {
			missingVars = append(missingVars, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q, expected anthropic or openai", config.LLMProvider)
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %s\n\nGenerate an encryption key with: deskmate generate-key",
			strings.Join(missingVars, ", "))
	}

	return nil
}
