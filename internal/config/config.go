package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Graph    GraphConfig
	Logging  LoggingConfig
	EnviPath EnviPathConfig
	Rules    RulesConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int `validate:"min=1,max=65535"`
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MetricsEnabled    bool
	AllowedOriginsCSV string
}

// GraphConfig describes connectivity to the Neo4j database holding the rule catalogue.
type GraphConfig struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
	AcquireTimeout time.Duration
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `validate:"omitempty,oneof=debug info warn warning error"`
	Format        string `validate:"omitempty,oneof=text json"`
	IncludeCaller bool
}

// EnviPathConfig describes the prediction service and how it is polled.
type EnviPathConfig struct {
	BaseURL        string `validate:"required,url"`
	PackageID      string `validate:"required"`
	Username       string
	Password       string
	PollInterval   time.Duration `validate:"gt=0"`
	PollTimeout    time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	NodeLimit      int           `validate:"oneof=16 32 64 128"`
	LookupWorkers  int           `validate:"min=1,max=64"`
}

// Rule catalogue sources.
const (
	RulesSourceFile  = "file"
	RulesSourceGraph = "graph"
	RulesSourceNone  = "none"
)

// RulesConfig selects where the rule catalogue is loaded from.
type RulesConfig struct {
	Source string `validate:"oneof=file graph none"`
	Path   string `validate:"required_if=Source file"`
}

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Minute
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
	defaultGraphMaxSessions = 10
	defaultGraphAcquire     = 30 * time.Second
	defaultEnviPathURL      = "https://envipath.org/"
	defaultEnviPathPackage  = "650babc9-9d68-4b73-9332-11972ca26f7b"
	defaultPollInterval     = 10 * time.Second
	defaultPollTimeout      = 10 * time.Minute
	defaultRequestTimeout   = 30 * time.Second
	defaultNodeLimit        = 16
	defaultLookupWorkers    = 8
	defaultRulesSource      = RulesSourceFile
	defaultRulesPath        = "rules.yaml"
)

var validate = validator.New()

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host:            valueOrDefault("SERVER_HOST", defaultHost),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
		Graph: GraphConfig{
			URI:            os.Getenv("GRAPH_URI"),
			Database:       valueOrDefault("GRAPH_DATABASE", ""),
			Username:       os.Getenv("GRAPH_USERNAME"),
			Password:       os.Getenv("GRAPH_PASSWORD"),
			MaxConnections: parseIntWithDefault("GRAPH_MAX_CONNECTIONS", defaultGraphMaxSessions),
		},
		EnviPath: EnviPathConfig{
			BaseURL:       valueOrDefault("ENVIPATH_URL", defaultEnviPathURL),
			PackageID:     valueOrDefault("ENVIPATH_PACKAGE", defaultEnviPathPackage),
			Username:      os.Getenv("ENVIPATH_USERNAME"),
			Password:      os.Getenv("ENVIPATH_PASSWORD"),
			NodeLimit:     parseIntWithDefault("ENVIPATH_NODE_LIMIT", defaultNodeLimit),
			LookupWorkers: parseIntWithDefault("RULE_LOOKUP_WORKERS", defaultLookupWorkers),
		},
		Rules: RulesConfig{
			Source: strings.ToLower(valueOrDefault("RULES_SOURCE", defaultRulesSource)),
			Path:   valueOrDefault("RULES_PATH", defaultRulesPath),
		},
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key      string
		target   *time.Duration
		fallback time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout, defaultReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout, defaultWriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout, defaultIdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout, defaultShutdownTimeout},
		{"GRAPH_ACQUIRE_TIMEOUT", &cfg.Graph.AcquireTimeout, defaultGraphAcquire},
		{"ENVIPATH_POLL_INTERVAL", &cfg.EnviPath.PollInterval, defaultPollInterval},
		{"ENVIPATH_POLL_TIMEOUT", &cfg.EnviPath.PollTimeout, defaultPollTimeout},
		{"ENVIPATH_REQUEST_TIMEOUT", &cfg.EnviPath.RequestTimeout, defaultRequestTimeout},
	}
	for _, d := range durations {
		value, err := parseDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.target = value
	}

	cfg.HTTP.MetricsEnabled = parseBoolWithDefault("SERVER_METRICS_ENABLED", false)
	cfg.HTTP.AllowedOriginsCSV = os.Getenv("SERVER_ALLOWED_ORIGINS")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the assembled configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Rules.Source == RulesSourceGraph && c.Graph.URI == "" {
		return fmt.Errorf("invalid configuration: RULES_SOURCE=graph requires GRAPH_URI")
	}
	return nil
}

// AllowedOrigins splits the CSV origin list, dropping blanks.
func (c HTTPConfig) AllowedOrigins() []string {
	if c.AllowedOriginsCSV == "" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(c.AllowedOriginsCSV, ",") {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
