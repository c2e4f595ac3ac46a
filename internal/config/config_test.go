package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideVars = []string{
	"HOST", "PORT", "CORS_ORIGINS",
	"CLI_COMMAND", "CLI_ARGS", "CLI_TIMEOUT", "CLI_WORKDIR", "CLI_SKIP_PERMISSIONS", "DEFAULT_MODEL",
	"ENABLE_PERSISTENCE", "DATABASE_DRIVER", "DATABASE_URL",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_REPORT_CALLER",
	"CIRCUIT_BREAKER_ENABLED", "CIRCUIT_BREAKER_FAILURE_THRESHOLD", "CIRCUIT_BREAKER_TIMEOUT", "CIRCUIT_BREAKER_MAX_REQUESTS",
}

// clearEnv blanks every override so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range overrideVars {
		t.Setenv(key, "")
	}
}

func missingConfigPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.yaml")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	config, err := LoadYAML(missingConfigPath(t))
	require.NoError(t, err)

	assert.Equal(t, "8000", config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, []string{"*"}, config.Server.CorsOrigins)
	assert.Equal(t, "claude", config.CLI.Command)
	assert.Equal(t, []string{"--print"}, config.CLI.Args)
	assert.Equal(t, 300*time.Second, config.CLI.Timeout)
	assert.True(t, config.CLI.SkipPermissions)
	assert.Equal(t, "claude-sonnet-4", config.CLI.DefaultModel)
	assert.False(t, config.Database.EnablePersistence)
	assert.Equal(t, "info", config.Logging.Level)
	assert.True(t, config.CircuitBreaker.Enabled)
	assert.Equal(t, uint32(5), config.CircuitBreaker.FailureThreshold)
	assert.Equal(t, "0.0.0.0:8000", config.Address())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	envVars := map[string]string{
		"PORT":                    "3000",
		"HOST":                    "localhost",
		"CORS_ORIGINS":            "https://example.com, https://test.com,   https://dev.com",
		"CLI_COMMAND":             "/usr/local/bin/claude",
		"CLI_ARGS":                "--print, --verbose",
		"CLI_TIMEOUT":             "90",
		"CLI_WORKDIR":             "/tmp",
		"CLI_SKIP_PERMISSIONS":    "false",
		"DEFAULT_MODEL":           "claude-opus-4",
		"LOG_LEVEL":               "debug",
		"LOG_FORMAT":              "json",
		"CIRCUIT_BREAKER_TIMEOUT": "10s",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	config, err := LoadYAML(missingConfigPath(t))
	require.NoError(t, err)

	assert.Equal(t, "3000", config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, []string{"https://example.com", "https://test.com", "https://dev.com"}, config.Server.CorsOrigins)
	assert.Equal(t, "/usr/local/bin/claude", config.CLI.Command)
	assert.Equal(t, []string{"--print", "--verbose"}, config.CLI.Args)
	assert.Equal(t, 90*time.Second, config.CLI.Timeout)
	assert.Equal(t, "/tmp", config.CLI.WorkDir)
	assert.False(t, config.CLI.SkipPermissions)
	assert.Equal(t, "claude-opus-4", config.CLI.DefaultModel)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, 10*time.Second, config.CircuitBreaker.Timeout)

	invoker := config.InvokerConfig()
	assert.Equal(t, "/usr/local/bin/claude", invoker.Command)
	assert.Equal(t, 90*time.Second, invoker.Timeout)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_CLI_WORKDIR", "/srv/work")

	path := writeConfig(t, `
server:
  port: "9000"
cli:
  timeout: 2m
  workdir: ${TEST_CLI_WORKDIR}
  env:
    ANTHROPIC_LOG: error
  models:
    - id: sonnet-latest
      cli_model: claude-sonnet-4-20250514
      listed: true
database:
  enable_persistence: true
  driver: postgres
  url: postgres://localhost/claude
`)

	config, err := LoadYAML(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host, "unset keys keep defaults")
	assert.Equal(t, 2*time.Minute, config.CLI.Timeout)
	assert.Equal(t, "/srv/work", config.CLI.WorkDir)
	assert.Equal(t, map[string]string{"ANTHROPIC_LOG": "error"}, config.CLI.Env)
	assert.Equal(t, "postgres", config.Database.Driver)

	catalog, err := config.Catalog()
	require.NoError(t, err)
	alias, err := catalog.Resolve("sonnet-latest")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", alias.CLIModel)

	t.Setenv("PORT", "9100")
	config, err = LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", config.Server.Port, "environment wins over the file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server: [unclosed")

	_, err := LoadYAML(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "port out of range",
			env:     map[string]string{"PORT": "70000"},
			wantErr: "PORT must be a number",
		},
		{
			name:    "unparseable timeout",
			env:     map[string]string{"CLI_TIMEOUT": "soon"},
			wantErr: "CLI_TIMEOUT",
		},
		{
			name:    "zero timeout",
			env:     map[string]string{"CLI_TIMEOUT": "0"},
			wantErr: "CLI_TIMEOUT must be positive",
		},
		{
			name:    "unknown default model",
			env:     map[string]string{"DEFAULT_MODEL": "gpt-4"},
			wantErr: `default model "gpt-4" is not in the catalog`,
		},
		{
			name:    "unsupported database driver",
			env:     map[string]string{"ENABLE_PERSISTENCE": "true", "DATABASE_DRIVER": "mysql"},
			wantErr: "DATABASE_DRIVER must be sqlite or postgres",
		},
		{
			name:    "zero failure threshold",
			env:     map[string]string{"CIRCUIT_BREAKER_FAILURE_THRESHOLD": "0"},
			wantErr: "failure_threshold must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := LoadYAML(missingConfigPath(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "300", want: 300 * time.Second},
		{in: " 45 ", want: 45 * time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "500ms", want: 500 * time.Millisecond},
		{in: "forever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeout(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
