package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfig_MergesEnvFileAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":5000"
  client_urls:
    - "http://localhost:5173"
    - "${EXTRA_ORIGIN}"
openai:
  api_key: "${OPENAI_KEY_FOR_TEST}"
  model: gpt-4o-mini
`)
	writeFile(t, dir, "staging.yaml", `
server:
  port: ":8080"
`)
	writeFile(t, dir, "secrets.env", "OPENAI_KEY_FOR_TEST=sk-from-secrets\nEXTRA_ORIGIN='https://app.example.com'\n")

	cfg, err := LoadConfig("staging", dir)
	require.NoError(t, err)

	server := cfg["server"].(map[string]interface{})
	assert.Equal(t, ":8080", server["port"])
	assert.Equal(t, []interface{}{"http://localhost:5173", "https://app.example.com"}, server["client_urls"])

	openai := cfg["openai"].(map[string]interface{})
	assert.Equal(t, "sk-from-secrets", openai["api_key"])
	assert.Equal(t, "gpt-4o-mini", openai["model"])
}

func TestLoadConfig_SystemEnvWinsOverSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: \"${JWT_SECRET_FOR_TEST}\"\n")
	writeFile(t, dir, "secrets.env", "JWT_SECRET_FOR_TEST=from-file\n")
	t.Setenv("JWT_SECRET_FOR_TEST", "from-env")

	cfg, err := LoadConfig("local", dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg["jwt"].(map[string]interface{})["secret"])
}

func TestLoadConfig_MissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestSubstituteString(t *testing.T) {
	env := map[string]string{"A": "1", "B": "two"}
	assert.Equal(t, "x1-two", substituteString("x${A}-${B}", env))
	assert.Equal(t, "no vars", substituteString("no vars", env))
	assert.Equal(t, "-", substituteString("${MISSING}-", env))
	assert.Equal(t, "${broken", substituteString("${broken", env))
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = ParseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseDuration("soon")
	assert.Error(t, err)
}

func TestDBConfig_DSN(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "aimate"}
	assert.Equal(t, "postgres://u:p@db:5432/aimate?sslmode=disable", cfg.DSN())
}
