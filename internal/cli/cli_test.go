package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	httpiface "github.com/nomadictuba2005/claude-code-api/interfaces/http"
	"github.com/nomadictuba2005/claude-code-api/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, httpiface.ServiceVersion+"\n", out)
}

func TestModelsCommand(t *testing.T) {
	t.Setenv("DEFAULT_MODEL", "")
	cfgPath := writeFile(t, "config.yaml", `
cli:
  default_model: claude-opus-4
  models:
    - id: house-model
      cli_model: claude-sonnet-4-20250514
`)

	out, err := runCommand(t, "--config", cfgPath, "models")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines[0], "ALIAS")
	assert.Len(t, lines, 6, "header plus five listed aliases")
	assert.Contains(t, out, "claude-sonnet-4-20250514")
	assert.NotContains(t, out, "house-model")

	for _, line := range lines {
		if strings.HasPrefix(line, "claude-opus-4 ") {
			assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "*"))
		}
	}

	out, err = runCommand(t, "--config", cfgPath, "models", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "house-model")
}

func TestModelsCommand_InvalidConfig(t *testing.T) {
	t.Setenv("DEFAULT_MODEL", "gpt-4")

	_, err := runCommand(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "models")
	assert.ErrorContains(t, err, "not in the catalog")
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "CLAUDE_CODE_API_TEST_VAR=from-file\n")

	t.Setenv("CLAUDE_CODE_API_TEST_VAR", "")
	os.Unsetenv("CLAUDE_CODE_API_TEST_VAR")
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("CLAUDE_CODE_API_TEST_VAR"))

	t.Setenv("CLAUDE_CODE_API_TEST_VAR", "from-env")
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("CLAUDE_CODE_API_TEST_VAR"), "existing variables win")

	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, loadEnvFile(""))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, key := range []string{"HOST", "PORT", "CLI_COMMAND", "CLI_TIMEOUT", "DEFAULT_MODEL", "ENABLE_PERSISTENCE", "DATABASE_DRIVER", "DATABASE_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("CLI_COMMAND", filepath.Join(t.TempDir(), "no-such-claude"))

	cfg, err := config.LoadYAML(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	return cfg
}

func serve(t *testing.T, a *app, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(w, req)
	return w
}

func TestNewApp_WithoutPersistence(t *testing.T) {
	cfg := testConfig(t)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "0.0.0.0:8000", a.server.Addr)
	assert.Nil(t, a.dbManager)

	w := serve(t, a, http.MethodGet, "/v1/models")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, a, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "missing executable degrades health")

	w = serve(t, a, http.MethodGet, "/v1/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewApp_WithPersistence(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.EnablePersistence = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.URL = ":memory:"

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.processor)
	assert.True(t, a.processor.Health().IsRunning)

	w := serve(t, a, http.MethodGet, "/v1/metrics")
	assert.Equal(t, http.StatusOK, w.Code)

	var metrics map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	assert.Equal(t, float64(0), metrics["total_requests"])

	w = serve(t, a, http.MethodGet, "/v1/requests?limit=5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"object":"list","data":[]}`, w.Body.String())

	a.Close()
	assert.Nil(t, a.processor)
	assert.Nil(t, a.dbManager)
}

func TestNewApp_BadDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.EnablePersistence = true
	cfg.Database.Driver = "mysql"

	_, err := newApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to connect to database")
}
