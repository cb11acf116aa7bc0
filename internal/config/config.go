// Package config loads the agent's runtime configuration through viper
// (file + environment + flag precedence) and applies ${env://VAR:-default}
// substitution to string values after unmarshaling, so secrets and
// per-deployment values never need to be baked into the config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the agent's top-level runtime configuration.
type Config struct {
	Locale string `mapstructure:"locale"`

	Session struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"session"`

	Prefs struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"prefs"`

	FAQ struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"faq"`

	NLU struct {
		Model  string `mapstructure:"model"`
		APIKey string `mapstructure:"api_key"`
		Demo   bool   `mapstructure:"demo"`
	} `mapstructure:"nlu"`

	Debug bool `mapstructure:"debug"`
}

// Defaults populates v with the values Load falls back to when neither a
// config file nor an environment variable nor a flag supplies one.
func Defaults(v *viper.Viper) {
	v.SetDefault("locale", "en")
	v.SetDefault("session.path", "")
	v.SetDefault("prefs.path", "")
	v.SetDefault("faq.dir", "")
	v.SetDefault("nlu.demo", true)
	v.SetDefault("debug", false)
}

// Load reads configuration from configFile (if non-empty), environment
// variables prefixed DIALOGIA_, and whatever v already has bound from flags,
// in viper's usual precedence order (flag > env > file > default). String
// fields are then passed through ${env://VAR:-default} substitution so a
// checked-in config file never needs to carry a literal secret.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	Defaults(v)
	v.SetEnvPrefix("DIALOGIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	sub := &EnvSubstituter{}
	for _, field := range []*string{&cfg.Locale, &cfg.Session.Path, &cfg.Prefs.Path, &cfg.FAQ.Dir, &cfg.NLU.Model, &cfg.NLU.APIKey} {
		if !HasEnvVars(*field) {
			continue
		}
		resolved, err := sub.SubstituteEnvVars(*field)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		*field = resolved
	}

	return &cfg, nil
}
