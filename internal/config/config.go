package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"
	"github.com/nomadictuba2005/claude-code-api/infrastructure/claudecli"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig                   `yaml:"server"`
	CLI            CLIConfig                      `yaml:"cli"`
	Database       DatabaseConfig                 `yaml:"database"`
	Logging        LoggingConfig                  `yaml:"logging"`
	CircuitBreaker claudecli.CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	CorsOrigins []string `yaml:"cors_origins"`
}

// CLIConfig describes the wrapped executable. Models are added to the
// built-in alias table and override entries with the same id.
type CLIConfig struct {
	Command         string            `yaml:"command"`
	Args            []string          `yaml:"args"`
	Timeout         time.Duration     `yaml:"timeout"`
	WorkDir         string            `yaml:"workdir"`
	SkipPermissions bool              `yaml:"skip_permissions"`
	DefaultModel    string            `yaml:"default_model"`
	Env             map[string]string `yaml:"env"`
	Models          []chat.ModelAlias `yaml:"models"`
	ProbeTTL        time.Duration     `yaml:"probe_ttl"`
}

type DatabaseConfig struct {
	EnablePersistence bool   `yaml:"enable_persistence"`
	Driver            string `yaml:"driver"`
	URL               string `yaml:"url"`
	Workers           int    `yaml:"workers"`
	BufferSize        int    `yaml:"buffer_size"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Debug("Config file not found, using defaults and environment variables")
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	cli := claudecli.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8000",
			CorsOrigins: []string{"*"},
		},
		CLI: CLIConfig{
			Command:         cli.Command,
			Args:            cli.Args,
			Timeout:         cli.Timeout,
			WorkDir:         cli.WorkDir,
			SkipPermissions: cli.SkipPermissions,
			DefaultModel:    chat.DefaultModelAlias,
			ProbeTTL:        claudecli.DefaultProbeTTL,
		},
		Database: DatabaseConfig{
			EnablePersistence: false,
			Driver:            "sqlite",
			URL:               "claude-code-api.db",
			Workers:           2,
			BufferSize:        1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		CircuitBreaker: claudecli.DefaultCircuitBreakerConfig(),
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config.
// Unparseable numbers and booleans are ignored; an unparseable timeout is an
// error because it bounds every request.
func applyEnvironmentOverrides(config *Config) error {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = splitList(val)
	}

	// CLI overrides
	if val := os.Getenv("CLI_COMMAND"); val != "" {
		config.CLI.Command = val
	}
	if val := os.Getenv("CLI_ARGS"); val != "" {
		config.CLI.Args = splitList(val)
	}
	if val := os.Getenv("CLI_TIMEOUT"); val != "" {
		d, err := ParseTimeout(val)
		if err != nil {
			return fmt.Errorf("CLI_TIMEOUT: %w", err)
		}
		config.CLI.Timeout = d
	}
	if val := os.Getenv("CLI_WORKDIR"); val != "" {
		config.CLI.WorkDir = val
	}
	if val := os.Getenv("CLI_SKIP_PERMISSIONS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CLI.SkipPermissions = b
		}
	}
	if val := os.Getenv("DEFAULT_MODEL"); val != "" {
		config.CLI.DefaultModel = val
	}

	// Database overrides
	if val := os.Getenv("ENABLE_PERSISTENCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Database.EnablePersistence = b
		}
	}
	if val := os.Getenv("DATABASE_DRIVER"); val != "" {
		config.Database.Driver = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		config.Database.URL = val
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	return nil
}

// ParseTimeout accepts a Go duration ("90s", "5m") or a whole number of seconds
func ParseTimeout(val string) (time.Duration, error) {
	val = strings.TrimSpace(val)
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: use a duration like 300s or a number of seconds", val)
	}
	return d, nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validateConfig validates the configuration and returns errors for invalid values
func validateConfig(config *Config) error {
	var errors []string

	if config.Server.Port == "" {
		errors = append(errors, "server port is required")
	} else if port, err := strconv.Atoi(config.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a number between 1 and 65535 (current: %q)", config.Server.Port))
	}

	if strings.TrimSpace(config.CLI.Command) == "" {
		errors = append(errors, "CLI_COMMAND must not be empty")
	}

	if config.CLI.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("CLI_TIMEOUT must be positive (current: %s)", config.CLI.Timeout))
	}

	if _, err := config.Catalog(); err != nil {
		errors = append(errors, err.Error())
	}

	if config.Database.EnablePersistence {
		switch config.Database.Driver {
		case "sqlite", "postgres":
		default:
			errors = append(errors, fmt.Sprintf("DATABASE_DRIVER must be sqlite or postgres (current: %q)", config.Database.Driver))
		}
		if config.Database.URL == "" {
			errors = append(errors, "DATABASE_URL is required when persistence is enabled")
		}
	}

	if config.CircuitBreaker.Enabled && config.CircuitBreaker.FailureThreshold == 0 {
		errors = append(errors, "circuit breaker failure_threshold must be at least 1")
	}

	if _, err := logrus.ParseLevel(config.Logging.Level); err != nil {
		logrus.WithField("level", config.Logging.Level).Warn("Unknown log level, falling back to info")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Catalog builds the model alias catalog from the built-in table plus
// configured aliases
func (c *Config) Catalog() (*chat.Catalog, error) {
	aliases := append(chat.DefaultModelAliases(), c.CLI.Models...)
	return chat.NewCatalog(aliases, c.CLI.DefaultModel)
}

// InvokerConfig returns the settings for the CLI invoker
func (c *Config) InvokerConfig() claudecli.Config {
	return claudecli.Config{
		Command:         c.CLI.Command,
		Args:            c.CLI.Args,
		Timeout:         c.CLI.Timeout,
		WorkDir:         c.CLI.WorkDir,
		SkipPermissions: c.CLI.SkipPermissions,
		Env:             c.CLI.Env,
	}
}

// Address is the listen address for the HTTP server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
