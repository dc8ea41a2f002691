// Package config loads tool configuration from file, environment and
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full tool configuration.
type Config struct {
	// Profile selects the active profile by name.
	Profile  string             `mapstructure:"profile"  yaml:"profile"`
	Profiles map[string]Profile `mapstructure:"profiles" yaml:"profiles"`
	State    StateConfig        `mapstructure:"state"    yaml:"state"`
	Bulk     BulkConfig         `mapstructure:"bulk"     yaml:"bulk"`
	Log      LogConfig          `mapstructure:"log"      yaml:"log"`
}

// Profile is one named upstream environment.
type Profile struct {
	// BaseURL is the API endpoint.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// AccountID is the default account operated on.
	AccountID string `mapstructure:"account_id" yaml:"account_id"`
	// TokenEnv names the environment variable holding the access token.
	TokenEnv string `mapstructure:"token_env" yaml:"token_env"`
}

// StateConfig controls operation state persistence.
type StateConfig struct {
	// Dir overrides the state directory; empty selects the platform
	// default.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// AuditLog overrides the audit log path; empty selects raps/audit.log
	// under the user configuration directory.
	AuditLog string `mapstructure:"audit_log" yaml:"audit_log"`
}

// BulkConfig carries the default execution knobs for bulk commands.
type BulkConfig struct {
	Concurrency     int           `mapstructure:"concurrency"      yaml:"concurrency"`
	MaxRetries      int           `mapstructure:"max_retries"      yaml:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	ContinueOnError bool          `mapstructure:"continue_on_error" yaml:"continue_on_error"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultProfileName is used when no profile is selected.
const DefaultProfileName = "default"

// Load reads configuration from the given file (optional), standard
// locations and RAPS_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RAPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("raps")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "raps"))
		}
		// Config file is optional in the standard locations.
		_ = v.ReadInConfig()
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", DefaultProfileName)
	v.SetDefault("bulk.concurrency", 10)
	v.SetDefault("bulk.max_retries", 5)
	v.SetDefault("bulk.retry_base_delay", time.Second)
	v.SetDefault("bulk.continue_on_error", true)
	v.SetDefault("log.level", "info")
}

// Validate checks the configuration for inconsistencies.
func Validate(config *Config) error {
	if config.Bulk.Concurrency < 0 {
		return fmt.Errorf("bulk.concurrency must not be negative")
	}
	if config.Bulk.MaxRetries < 0 {
		return fmt.Errorf("bulk.max_retries must not be negative")
	}
	if config.Bulk.RetryBaseDelay < 0 {
		return fmt.Errorf("bulk.retry_base_delay must not be negative")
	}
	switch strings.ToLower(config.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", config.Log.Level)
	}
	if config.Profile != "" && len(config.Profiles) > 0 {
		if _, ok := config.Profiles[config.Profile]; !ok {
			return fmt.Errorf("selected profile %q is not defined", config.Profile)
		}
	}
	return nil
}

// ActiveProfile resolves the selected profile. An undeclared selection
// yields a zero profile so the tool can still run on flags and env alone.
func (c *Config) ActiveProfile() Profile {
	if profile, ok := c.Profiles[c.Profile]; ok {
		return profile
	}
	return Profile{}
}

// WriteStarter writes a starter configuration file. It refuses
// to overwrite an existing file.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	starter := Config{
		Profile: DefaultProfileName,
		Profiles: map[string]Profile{
			DefaultProfileName: {
				BaseURL:   "https://developer.api.autodesk.com",
				AccountID: "",
				TokenEnv:  "RAPS_ACCESS_TOKEN",
			},
		},
		Bulk: BulkConfig{
			Concurrency:     10,
			MaxRetries:      5,
			RetryBaseDelay:  time.Second,
			ContinueOnError: true,
		},
		Log: LogConfig{Level: "info"},
	}

	data, err := yaml.Marshal(&starter)
	if err != nil {
		return fmt.Errorf("encoding starter config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing starter config: %w", err)
	}
	return nil
}
