package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/engine"
)

// EnvPrefix is the prefix of environment overrides, e.g. WHITEBOX_SERVER_ADDR.
const EnvPrefix = "WHITEBOX"

// Config is the complete service configuration.
type Config struct {
	Engine        EngineConfig  `mapstructure:"engine"`
	Source        SourceConfig  `mapstructure:"source"`
	Server        ServerConfig  `mapstructure:"server"`
	Logging       LoggingConfig `mapstructure:"logging"`
	Retention     time.Duration `mapstructure:"retention"`
	CleanInterval time.Duration `mapstructure:"clean_interval"`
	// ReasonCodes optionally points at a YAML file that extends the
	// built-in reason-code catalog.
	ReasonCodes string `mapstructure:"reason_codes"`
}

// EngineConfig holds the correlation policy.
type EngineConfig struct {
	Threshold  float64 `mapstructure:"threshold"`
	TopN       int     `mapstructure:"top_n"`
	HoursBack  int     `mapstructure:"hours_back"`
	DateLayout string  `mapstructure:"date_layout"`
	Timezone   string  `mapstructure:"timezone"`
}

// SourceConfig locates the trace log.
type SourceConfig struct {
	Path        string `mapstructure:"path"`
	ArchiveDir  string `mapstructure:"archive_dir"`
	MaxLines    int    `mapstructure:"max_lines"`
	RecentLimit int    `mapstructure:"recent_limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	// TokenHash is a bcrypt hash; when set every /api route needs the
	// matching bearer token.
	TokenHash string `mapstructure:"token_hash"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.threshold", engine.DefaultThreshold)
	v.SetDefault("engine.top_n", engine.DefaultTopN)
	v.SetDefault("engine.hours_back", engine.DefaultHoursBack)
	v.SetDefault("engine.date_layout", engine.DefaultDateLayout)
	v.SetDefault("engine.timezone", "Local")

	v.SetDefault("source.path", "whitebox.log")
	v.SetDefault("source.archive_dir", "archive")
	v.SetDefault("source.max_lines", 100000)
	v.SetDefault("source.recent_limit", engine.DefaultRecentLimit)

	v.SetDefault("server.addr", ":8088")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.token_hash", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("retention", "168h")
	v.SetDefault("clean_interval", "1h")
	v.SetDefault("reason_codes", "")
}

// Load reads configuration into v and decodes it. An explicit path must
// exist; without one, whitebox.yaml is looked up in the working
// directory and its absence is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("whitebox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Engine.Threshold < 0 || c.Engine.Threshold > 1:
		return &Error{Field: "engine.threshold", Message: "must be within [0,1]"}
	case c.Engine.TopN <= 0:
		return &Error{Field: "engine.top_n", Message: "must be positive"}
	case c.Engine.HoursBack <= 0:
		return &Error{Field: "engine.hours_back", Message: "must be positive"}
	case c.Source.Path == "":
		return &Error{Field: "source.path", Message: "must not be empty"}
	case c.Source.MaxLines < 0:
		return &Error{Field: "source.max_lines", Message: "must not be negative"}
	case c.Retention < 0:
		return &Error{Field: "retention", Message: "must not be negative"}
	case c.CleanInterval <= 0:
		return &Error{Field: "clean_interval", Message: "must be positive"}
	}
	if _, err := c.Location(); err != nil {
		return &Error{Field: "engine.timezone", Message: err.Error()}
	}
	return nil
}

// Location resolves engine.timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Engine.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(c.Engine.Timezone)
}

// EngineOptions converts the engine section into correlation options.
func (c *Config) EngineOptions() (engine.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Threshold:  c.Engine.Threshold,
		TopN:       c.Engine.TopN,
		HoursBack:  c.Engine.HoursBack,
		Location:   loc,
		DateLayout: c.Engine.DateLayout,
	}, nil
}

// QueryEngineConfig builds the QueryEngine configuration.
func (c *Config) QueryEngineConfig() (engine.Config, error) {
	opts, err := c.EngineOptions()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Options:     opts,
		RecentLimit: c.Source.RecentLimit,
		Retention:   c.Retention,
	}, nil
}

// Error reports an invalid configuration field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
