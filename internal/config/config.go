package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/efebarandurmaz/smupload/internal/observability"
	"github.com/efebarandurmaz/smupload/internal/options"
	"github.com/efebarandurmaz/smupload/internal/secrets"
)

// EnvPrefix is prepended to every environment override, e.g.
// SMUPLOAD_ACCESS_TOKEN or SMUPLOAD_LOG_LEVEL.
const EnvPrefix = "SMUPLOAD"

// Config holds all CLI configuration.
type Config struct {
	options.Options `mapstructure:",squash"`

	Timeout time.Duration               `mapstructure:"timeout"`
	Log     observability.LogConfig     `mapstructure:"log"`
	Tracing observability.TracingConfig `mapstructure:"tracing"`
	Secrets secrets.Config              `mapstructure:"secrets"`
}

// FlagKeys maps CLI flag names to configuration keys.
var FlagKeys = map[string]string{
	"access-token":      "access_token",
	"access-token-file": "secrets.file",
	"version":           "version",
	"public-path":       "public_path",
	"include-chunk":     "include_chunks",
	"retries":           "retries",
	"retry-interval":    "retry_interval",
	"silent":            "silent",
	"ignore-errors":     "ignore_errors",
	"endpoint":          "endpoint",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

func setDefaults(v *viper.Viper) {
	d := options.Defaults()
	tracing := observability.DefaultTracingConfig()

	v.SetDefault("access_token", "")
	v.SetDefault("version", "")
	v.SetDefault("public_path", "")
	v.SetDefault("include_chunks", []string{})
	v.SetDefault("silent", false)
	v.SetDefault("retries", d.Retries)
	v.SetDefault("retry_interval", d.RetryInterval)
	v.SetDefault("ignore_errors", false)
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.service_name", tracing.ServiceName)
	v.SetDefault("tracing.service_version", tracing.ServiceVersion)
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", tracing.SampleRate)
	v.SetDefault("secrets.provider", "")
	v.SetDefault("secrets.file", "")
	v.SetDefault("secrets.env_prefix", secrets.DefaultConfig().EnvPrefix)
}

// Warnings reports settings that are accepted but probably unintended.
// Missing required options are left to options.Validate.
func (c *Config) Warnings() []string {
	var warnings []string

	if u, err := url.Parse(c.Endpoint); err != nil || u.Host == "" {
		warnings = append(warnings, fmt.Sprintf("endpoint %q is not an absolute URL", c.Endpoint))
	} else if u.Scheme == "http" {
		warnings = append(warnings, fmt.Sprintf("endpoint %q sends the access token over plain http", c.Endpoint))
	}

	if c.Timeout <= 0 {
		warnings = append(warnings, "timeout is not positive, requests will never time out")
	}

	if c.Retries > 10 {
		warnings = append(warnings, fmt.Sprintf("retries %d is high, a failing build will wait on every attempt", c.Retries))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from an optional file, the environment and any
// changed flags, in increasing order of precedence. An empty path skips the
// file.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	for _, warning := range cfg.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	return &cfg, nil
}
