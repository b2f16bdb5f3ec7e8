package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"server"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Logging   LoggingConfig   `mapstructure:"log"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string        `mapstructure:"host" validate:"required"`
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"min=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
	AllowedOriginsCSV string        `mapstructure:"allowed_origins"`
	AllowCredentials  bool          `mapstructure:"allow_credentials"`
}

// AllowedOrigins splits AllowedOriginsCSV into trimmed, non-empty origins.
func (c HTTPConfig) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOriginsCSV, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// GraphConfig describes connectivity to the Neo4j server.
type GraphConfig struct {
	URI            string        `mapstructure:"uri" validate:"required"`
	Database       string        `mapstructure:"database" validate:"required"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	MaxConnections int           `mapstructure:"max_connections" validate:"min=1"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"min=0"`
	TxTimeout      time.Duration `mapstructure:"tx_timeout" validate:"min=0"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format        string `mapstructure:"format" validate:"oneof=text json"`
	IncludeCaller bool   `mapstructure:"include_caller"`
}

// BootstrapConfig locates the scripts loaded by the setup workflow.
type BootstrapConfig struct {
	SchemaFile    string `mapstructure:"schema_file" validate:"required"`
	DataFile      string `mapstructure:"data_file" validate:"required"`
	ExpectedCount int64  `mapstructure:"expected_count" validate:"min=0"`
}

// RetryConfig bounds retries of the initial connection.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=1"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"min=0"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed" validate:"min=0"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name" validate:"required"`
	Insecure    bool   `mapstructure:"insecure"`
}

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
	defaultGraphURI         = "bolt://localhost:7687"
	defaultGraphDatabase    = "sample-app-db"
	defaultGraphMaxSessions = 10
	defaultConnectTimeout   = 10 * time.Second
	defaultSchemaFile       = "data/iam-schema.cypher"
	defaultDataFile         = "data/iam-data.cypher"
	defaultExpectedCount    = 3
	defaultRetryAttempts    = 5
	defaultRetryInitial     = 500 * time.Millisecond
	defaultRetryMaxElapsed  = 30 * time.Second
	defaultServiceName      = "iamgraph"
)

// envBindings maps configuration keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.host":              "SERVER_HOST",
	"server.port":              "SERVER_PORT",
	"server.read_timeout":      "SERVER_READ_TIMEOUT",
	"server.write_timeout":     "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":      "SERVER_IDLE_TIMEOUT",
	"server.shutdown_timeout":  "SERVER_SHUTDOWN_TIMEOUT",
	"server.allowed_origins":   "SERVER_ALLOWED_ORIGINS",
	"server.allow_credentials": "SERVER_ALLOW_CREDENTIALS",
	"graph.uri":                "GRAPH_URI",
	"graph.database":           "GRAPH_DATABASE",
	"graph.username":           "GRAPH_USERNAME",
	"graph.password":           "GRAPH_PASSWORD",
	"graph.max_connections":    "GRAPH_MAX_CONNECTIONS",
	"graph.connect_timeout":    "GRAPH_CONNECT_TIMEOUT",
	"graph.tx_timeout":         "GRAPH_TX_TIMEOUT",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
	"log.include_caller":       "LOG_INCLUDE_CALLER",
	"bootstrap.schema_file":    "BOOTSTRAP_SCHEMA_FILE",
	"bootstrap.data_file":      "BOOTSTRAP_DATA_FILE",
	"bootstrap.expected_count": "BOOTSTRAP_EXPECTED_COUNT",
	"retry.max_attempts":       "RETRY_MAX_ATTEMPTS",
	"retry.initial_interval":   "RETRY_INITIAL_INTERVAL",
	"retry.max_elapsed":        "RETRY_MAX_ELAPSED",
	"tracing.endpoint":         "TRACING_ENDPOINT",
	"tracing.service_name":     "TRACING_SERVICE_NAME",
	"tracing.insecure":         "TRACING_INSECURE",
}

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", defaultHost)
	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("server.allow_credentials", false)
	v.SetDefault("graph.uri", defaultGraphURI)
	v.SetDefault("graph.database", defaultGraphDatabase)
	v.SetDefault("graph.username", "")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.max_connections", defaultGraphMaxSessions)
	v.SetDefault("graph.connect_timeout", defaultConnectTimeout)
	v.SetDefault("graph.tx_timeout", time.Duration(0))
	v.SetDefault("log.level", defaultLoggingLevel)
	v.SetDefault("log.format", defaultLoggingFormat)
	v.SetDefault("log.include_caller", false)
	v.SetDefault("bootstrap.schema_file", defaultSchemaFile)
	v.SetDefault("bootstrap.data_file", defaultDataFile)
	v.SetDefault("bootstrap.expected_count", defaultExpectedCount)
	v.SetDefault("retry.max_attempts", defaultRetryAttempts)
	v.SetDefault("retry.initial_interval", defaultRetryInitial)
	v.SetDefault("retry.max_elapsed", defaultRetryMaxElapsed)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", defaultServiceName)
	v.SetDefault("tracing.insecure", true)
}

// Load reads configuration from defaults, the optional YAML file at path and the
// environment, in increasing order of precedence, then validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateHTTP, HTTPConfig{})
	return v
}

// validateHTTP rejects credentialed CORS for a wildcard origin.
func validateHTTP(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(HTTPConfig)
	if !cfg.AllowCredentials {
		return
	}
	for _, origin := range cfg.AllowedOrigins() {
		if origin == "*" {
			sl.ReportError(cfg.AllowCredentials, "AllowCredentials", "AllowCredentials", "nowildcard", "")
			return
		}
	}
}

// Validate checks struct constraints and reports every failing field.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, formatValidationError(e))
	}
	return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(messages, "\n  - "))
}

func formatValidationError(e validator.FieldError) string {
	field := formatFieldPath(e.Namespace())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, e.Param(), e.Value())
	case "nowildcard":
		return fmt.Sprintf("%s requires explicit allowed origins, not *", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", field, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", field, e.Tag(), e.Value())
	}
}

// formatFieldPath turns "Config.Graph.MaxConnections" into "graph.max_connections".
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return namespace
	}
	out := make([]string, 0, len(parts)-1)
	for _, part := range parts[1:] {
		out = append(out, camelToSnake(part))
	}
	return strings.Join(out, ".")
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
			b.WriteRune('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
